package deck

import (
	"encoding/json"
	"log"

	"deckhand/pkg/protocol"
)

// NormalizeChatContent converts the two shapes chat content arrives in,
// bare string or structured object, into one canonical ChatContent.
// Absent or malformed content yields a zero value rather than an error;
// downstream code never branches on shape.
func NormalizeChatContent(raw json.RawMessage) protocol.ChatContent {
	if len(raw) == 0 {
		return protocol.ChatContent{}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return protocol.ChatContent{Message: s}
	}

	var content protocol.ChatContent
	if err := json.Unmarshal(raw, &content); err == nil {
		return content
	}

	log.Printf("[Deck] Unrecognized chat content shape (%d bytes), dropping", len(raw))
	return protocol.ChatContent{}
}
