package deck

import (
	"log"
	"sync"

	"deckhand/pkg/protocol"
)

// State accumulates reducer actions into the current application state.
// Applying the same action sequence to a fresh State always produces the
// same result.
type State struct {
	mu         sync.RWMutex
	slides     []protocol.Slide
	metadata   protocol.PresentationMetadata
	transcript []ChatEntry
	progress   protocol.Progress
	agents     []protocol.AgentStatus
	phase      Phase
	processing bool
	lastError  *protocol.ErrorDetail
	version    uint64
}

// Snapshot is an immutable copy of the state at one instant
type Snapshot struct {
	Slides     []protocol.Slide
	Metadata   protocol.PresentationMetadata
	Transcript []ChatEntry
	Progress   protocol.Progress
	Agents     []protocol.AgentStatus
	Phase      Phase
	Processing bool
	LastError  *protocol.ErrorDetail
	Version    uint64
}

// NewState returns an empty state in the gathering phase
func NewState() *State {
	return &State{phase: PhaseGathering}
}

// Apply executes one action. Actions are applied in arrival order; the
// version counter increments on every applied action.
func (s *State) Apply(a Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch act := a.(type) {
	case ReplaceSlides:
		s.slides = append([]protocol.Slide(nil), act.Slides...)
		s.metadata = act.Metadata

	case AppendChat:
		// append-only within a session
		s.transcript = append(s.transcript, act.Entry)

	case SetProgress:
		s.progress = act.Progress

	case SetAgentStatuses:
		s.agents = append([]protocol.AgentStatus(nil), act.Agents...)

	case SetPhase:
		if !act.Phase.IsValid() {
			log.Printf("[Deck] Ignoring invalid phase %q", act.Phase)
			return
		}
		// The phase only moves forward; a regression from text
		// heuristics (or a stale explicit value) is dropped
		if act.Phase.Rank() < s.phase.Rank() {
			return
		}
		s.phase = act.Phase

	case SetProcessing:
		s.processing = act.Processing

	case SetError:
		s.lastError = act.Err

	case Reset:
		s.slides = nil
		s.metadata = protocol.PresentationMetadata{}
		s.transcript = nil
		s.progress = protocol.Progress{}
		s.agents = nil
		s.phase = PhaseGathering
		s.processing = false
		s.lastError = nil

	default:
		log.Printf("[Deck] Unknown action %q", a.Kind())
		return
	}

	s.version++
}

// ApplyAll applies a reducer output list in order
func (s *State) ApplyAll(actions []Action) {
	for _, a := range actions {
		s.Apply(a)
	}
}

// Snapshot returns a copy safe to read without further synchronization
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		Slides:     append([]protocol.Slide(nil), s.slides...),
		Metadata:   s.metadata,
		Transcript: append([]ChatEntry(nil), s.transcript...),
		Progress:   s.progress,
		Agents:     append([]protocol.AgentStatus(nil), s.agents...),
		Phase:      s.phase,
		Processing: s.processing,
		LastError:  s.lastError,
		Version:    s.version,
	}
}

// Phase returns the current conversation phase
func (s *State) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// SlideCount returns the current number of slides
func (s *State) SlideCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slides)
}
