package deck

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"deckhand/pkg/protocol"
)

// ExtractText returns the plain text of a slide block. HTML blocks are
// stripped of markup; anything else passes through trimmed.
func ExtractText(block protocol.SlideBlock) string {
	if block.Type != "html" {
		return strings.TrimSpace(block.Content)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(block.Content))
	if err != nil {
		return strings.TrimSpace(block.Content)
	}
	return collapseWhitespace(doc.Text())
}

// SlidePreview returns a one-line text summary of a slide: its title, or
// failing that the first non-empty block text.
func SlidePreview(slide protocol.Slide) string {
	if t := strings.TrimSpace(slide.Title); t != "" {
		return t
	}
	for _, b := range slide.Blocks {
		if text := ExtractText(b); text != "" {
			return text
		}
	}
	return "(empty slide)"
}

// DeckTitle returns a display title for the deck
func DeckTitle(snap Snapshot) string {
	if t := strings.TrimSpace(snap.Metadata.Title); t != "" {
		return t
	}
	if len(snap.Slides) > 0 {
		return SlidePreview(snap.Slides[0])
	}
	return "Untitled presentation"
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
