package deck

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deckhand/pkg/protocol"
)

func slideDeck(n int) []protocol.Slide {
	slides := make([]protocol.Slide, n)
	for i := range slides {
		slides[i] = protocol.Slide{ID: string(rune('a' + i)), Title: "Slide"}
	}
	return slides
}

func directorWithSlides(n int) *protocol.DirectorMessage {
	return &protocol.DirectorMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeDirectorMessage},
		Data: protocol.DirectorData{
			SlideData: &protocol.SlideData{Slides: slideDeck(n)},
		},
	}
}

func directorWithChat(cd protocol.ChatData) *protocol.DirectorMessage {
	return &protocol.DirectorMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeDirectorMessage,
			Timestamp: time.Now(),
		},
		Data: protocol.DirectorData{ChatData: &cd},
	}
}

func TestReduceSlideDataReplacesWholesale(t *testing.T) {
	actions := Reduce(directorWithSlides(5))
	require.Len(t, actions, 1)

	replace, ok := actions[0].(ReplaceSlides)
	require.True(t, ok, "expected a ReplaceSlides action, got %T", actions[0])
	assert.Len(t, replace.Slides, 5)
}

func TestReduceSlideShrinkStillReplaces(t *testing.T) {
	// A smaller deck is a deliberate server edit, not a partial update
	state := NewState()
	state.ApplyAll(Reduce(directorWithSlides(8)))
	require.Equal(t, 8, state.SlideCount())

	state.ApplyAll(Reduce(directorWithSlides(3)))
	assert.Equal(t, 3, state.SlideCount())
}

func TestReduceChatAppendsTranscript(t *testing.T) {
	state := NewState()
	state.ApplyAll(Reduce(directorWithChat(protocol.ChatData{
		Type:    protocol.ChatTypeSummary,
		Content: json.RawMessage(`"Here is your outline."`),
	})))
	state.ApplyAll(Reduce(directorWithChat(protocol.ChatData{
		Type:    protocol.ChatTypeSummary,
		Content: json.RawMessage(`"And a second note."`),
	})))

	snap := state.Snapshot()
	require.Len(t, snap.Transcript, 2)
	assert.Equal(t, "Here is your outline.", snap.Transcript[0].Message)
	assert.Equal(t, "And a second note.", snap.Transcript[1].Message)
	assert.Equal(t, "director", snap.Transcript[0].Role)
	assert.False(t, snap.Processing, "summary chat means the director stopped")
}

func TestReduceStructuredQuestionContent(t *testing.T) {
	actions := Reduce(directorWithChat(protocol.ChatData{
		Type: protocol.ChatTypeQuestion,
		Content: json.RawMessage(`{
			"message": "How many slides do you need?",
			"options": ["5", "10", "15"],
			"question_id": "q_count",
			"required": true
		}`),
	}))

	var entry *ChatEntry
	for _, a := range actions {
		if ac, ok := a.(AppendChat); ok {
			entry = &ac.Entry
		}
	}
	require.NotNil(t, entry)
	assert.Equal(t, "How many slides do you need?", entry.Message)
	assert.Equal(t, []string{"5", "10", "15"}, entry.Options)
	assert.Equal(t, "q_count", entry.QuestionID)
	assert.True(t, entry.Required)
}

func TestReduceProgressCarriesExplicitPhase(t *testing.T) {
	actions := Reduce(directorWithChat(protocol.ChatData{
		Type:    protocol.ChatTypeProgress,
		Content: json.RawMessage(`"Structure looks good, please review and approve."`),
		Progress: &protocol.Progress{
			Percentage:  50,
			CurrentStep: "enhancing slide 3",
			Phase:       "enhancement",
		},
	}))

	var phases []SetPhase
	var processing *SetProcessing
	for _, a := range actions {
		switch ac := a.(type) {
		case SetPhase:
			phases = append(phases, ac)
		case SetProcessing:
			processing = &ac
		}
	}

	// The explicit phase wins; the approval-sounding text must not
	// produce a second, inferred phase action
	require.Len(t, phases, 1)
	assert.Equal(t, PhaseEnhancement, phases[0].Phase)
	assert.Equal(t, PhaseSourceExplicit, phases[0].Source)

	require.NotNil(t, processing)
	assert.True(t, processing.Processing, "progress chat means generation is running")
}

func TestReduceInfersPhaseFromTextWhenNoProgress(t *testing.T) {
	actions := Reduce(directorWithChat(protocol.ChatData{
		Type:    protocol.ChatTypeQuestion,
		Content: json.RawMessage(`"The structure is ready. Does it look good, or should I revise before you approve?"`),
	}))

	var phase *SetPhase
	for _, a := range actions {
		if ac, ok := a.(SetPhase); ok {
			phase = &ac
		}
	}
	require.NotNil(t, phase)
	assert.Equal(t, PhaseApproval, phase.Phase)
	assert.Equal(t, PhaseSourceInferred, phase.Source)
}

func TestReduceProgressThenSlides(t *testing.T) {
	// A progress update at 50% followed by a full deck: both land, the
	// deck replaces wholesale and progress stays at the last report
	state := NewState()
	state.ApplyAll(Reduce(directorWithChat(protocol.ChatData{
		Type:     protocol.ChatTypeProgress,
		Content:  json.RawMessage(`"Halfway there"`),
		Progress: &protocol.Progress{Percentage: 50, Phase: "enhancing"},
	})))
	state.ApplyAll(Reduce(directorWithSlides(5)))

	snap := state.Snapshot()
	assert.Equal(t, 5, len(snap.Slides))
	assert.Equal(t, float64(50), snap.Progress.Percentage)
	assert.Equal(t, PhaseEnhancement, snap.Phase)
}

func TestReduceErrorMessage(t *testing.T) {
	actions := Reduce(&protocol.ErrorMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeError},
		Err: protocol.ErrorDetail{
			Code:    protocol.ErrCodeServerError,
			Message: "generation failed",
		},
	})

	require.Len(t, actions, 2)
	errAct, ok := actions[0].(SetError)
	require.True(t, ok)
	assert.Equal(t, "generation failed", errAct.Err.Message)

	proc, ok := actions[1].(SetProcessing)
	require.True(t, ok)
	assert.False(t, proc.Processing)
}

func TestReduceToleratesEmptyAndUnknownInput(t *testing.T) {
	assert.Empty(t, Reduce(nil))
	assert.Empty(t, Reduce("garbage"))
	assert.Empty(t, Reduce(&protocol.PingMessage{}))

	// A director message with no payload reduces to nothing
	assert.Empty(t, Reduce(&protocol.DirectorMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeDirectorMessage},
	}))
}

func TestReduceChatWithMissingContent(t *testing.T) {
	actions := Reduce(directorWithChat(protocol.ChatData{
		Type: protocol.ChatTypeSummary,
	}))

	// Still appends an (empty) entry; malformed content never drops the
	// whole event
	var entry *ChatEntry
	for _, a := range actions {
		if ac, ok := a.(AppendChat); ok {
			entry = &ac.Entry
		}
	}
	require.NotNil(t, entry)
	assert.Empty(t, entry.Message)
}
