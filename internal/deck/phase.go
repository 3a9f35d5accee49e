package deck

import "strings"

// Phase is the coarse stage of the presentation-generation conversation
type Phase string

const (
	PhaseGathering   Phase = "gathering"   // collecting requirements
	PhaseStructure   Phase = "structure"   // building the deck outline
	PhaseApproval    Phase = "approval"    // structure awaiting user review
	PhaseEnhancement Phase = "enhancement" // filling in and polishing content
	PhaseComplete    Phase = "complete"
)

var phaseOrder = map[Phase]int{
	PhaseGathering:   0,
	PhaseStructure:   1,
	PhaseApproval:    2,
	PhaseEnhancement: 3,
	PhaseComplete:    4,
}

// Rank returns the phase's position in the forward-only progression,
// or -1 for unknown phases
func (p Phase) Rank() int {
	if r, ok := phaseOrder[p]; ok {
		return r
	}
	return -1
}

// IsValid returns true for a defined phase value
func (p Phase) IsValid() bool {
	return p.Rank() >= 0
}

// ParsePhase maps a server-supplied phase string to a Phase. Structured
// phase data uses a few spellings across service versions.
func ParsePhase(s string) (Phase, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gathering", "requirements", "requirement_gathering":
		return PhaseGathering, true
	case "structure", "structuring", "structure_creation", "outline":
		return PhaseStructure, true
	case "approval", "review", "awaiting_approval":
		return PhaseApproval, true
	case "enhancement", "enhancing", "generation", "content":
		return PhaseEnhancement, true
	case "complete", "completed", "done", "finished":
		return PhaseComplete, true
	default:
		return "", false
	}
}

// InferPhase guesses the conversation phase from chat text. This is a
// best-effort fallback; explicit phase data from the server always takes
// precedence over it.
func InferPhase(text string) (Phase, bool) {
	t := strings.ToLower(text)

	hasAny := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(t, s) {
				return true
			}
		}
		return false
	}

	switch {
	case hasAny("structure") && hasAny("review", "approve", "approval", "look good"):
		return PhaseApproval, true
	case hasAny("presentation is complete", "deck is complete", "all slides are ready", "finished your presentation"):
		return PhaseComplete, true
	case hasAny("enhancing", "polishing", "refining", "adding content", "filling in"):
		return PhaseEnhancement, true
	case hasAny("creating the structure", "building the structure", "working on the outline", "drafting the structure"):
		return PhaseStructure, true
	default:
		return "", false
	}
}
