// Package deck turns inbound protocol events into discrete application
// state actions and accumulates them into the replayable presentation
// state: slides, transcript, progress, phase.
package deck

import (
	"time"

	"deckhand/pkg/protocol"
)

// Action is one discrete state mutation produced by the reducer. Each
// action has exactly one effect on the State, so replaying a recorded
// action list is deterministic.
type Action interface {
	Kind() string
}

// ReplaceSlides swaps the whole deck. The service always sends the full
// current deck, never a delta.
type ReplaceSlides struct {
	Slides   []protocol.Slide
	Metadata protocol.PresentationMetadata
}

func (ReplaceSlides) Kind() string { return "replace_slides" }

// AppendChat appends one entry to the conversation transcript
type AppendChat struct {
	Entry ChatEntry
}

func (AppendChat) Kind() string { return "append_chat" }

// SetProgress updates the generation progress metrics
type SetProgress struct {
	Progress protocol.Progress
}

func (SetProgress) Kind() string { return "set_progress" }

// SetAgentStatuses replaces the agent activity snapshot
type SetAgentStatuses struct {
	Agents []protocol.AgentStatus
}

func (SetAgentStatuses) Kind() string { return "set_agent_statuses" }

// PhaseSource records how a phase value was determined
type PhaseSource string

const (
	// PhaseSourceExplicit means the server supplied structured phase data
	PhaseSourceExplicit PhaseSource = "explicit"
	// PhaseSourceInferred means the phase was guessed from chat text
	PhaseSourceInferred PhaseSource = "inferred"
)

// SetPhase moves the conversation phase. The state only ever advances
// the phase; regressions are dropped except through Reset.
type SetPhase struct {
	Phase  Phase
	Source PhaseSource
}

func (SetPhase) Kind() string { return "set_phase" }

// SetProcessing toggles the "generation in flight" flag
type SetProcessing struct {
	Processing bool
}

func (SetProcessing) Kind() string { return "set_processing" }

// SetError records the most recent server error
type SetError struct {
	Err *protocol.ErrorDetail
}

func (SetError) Kind() string { return "set_error" }

// Reset clears everything back to a fresh session
type Reset struct{}

func (Reset) Kind() string { return "reset" }

// ChatEntry is one normalized transcript entry. Server chat content
// arrives either as a bare string or a structured object; both forms end
// up here.
type ChatEntry struct {
	Role       string // "user" or "director"
	Type       protocol.ChatType
	Message    string
	Context    string
	Options    []string
	QuestionID string
	Required   bool
	Actions    []protocol.ChatAction
	Timestamp  time.Time
}
