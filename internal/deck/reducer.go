package deck

import (
	"log"
	"time"

	"deckhand/pkg/protocol"
)

// Reduce translates one inbound protocol event into a list of discrete
// state actions. It is pure: no state lives here, and a malformed or
// unknown event reduces to no actions, never a panic, so one bad server
// message cannot crash the session.
func Reduce(inbound interface{}) []Action {
	switch msg := inbound.(type) {
	case *protocol.DirectorMessage:
		return reduceDirector(msg)

	case *protocol.ErrorMessage:
		detail := msg.Err
		return []Action{
			SetError{Err: &detail},
			SetProcessing{Processing: false},
		}

	case *protocol.AuthResponse, *protocol.PingMessage, nil:
		// connection-level traffic carries no application state
		return nil

	default:
		log.Printf("[Deck] No reduction for inbound %T", inbound)
		return nil
	}
}

func reduceDirector(msg *protocol.DirectorMessage) []Action {
	var actions []Action

	if sd := msg.Data.SlideData; sd != nil {
		// Full-deck semantics: every slide event replaces the deck
		actions = append(actions, ReplaceSlides{
			Slides:   sd.Slides,
			Metadata: sd.PresentationMetadata,
		})
	}

	if cd := msg.Data.ChatData; cd != nil {
		actions = append(actions, reduceChat(cd, msg.Timestamp)...)
	}

	if msg.Data.SlideData == nil && msg.Data.ChatData == nil {
		log.Printf("[Deck] Director message %s carried no payload", msg.MessageID)
	}

	return actions
}

func reduceChat(cd *protocol.ChatData, ts time.Time) []Action {
	content := NormalizeChatContent(cd.Content)
	if ts.IsZero() {
		ts = time.Now()
	}

	actions := []Action{AppendChat{Entry: ChatEntry{
		Role:       "director",
		Type:       cd.Type,
		Message:    content.Message,
		Context:    content.Context,
		Options:    content.Options,
		QuestionID: content.QuestionID,
		Required:   content.Required,
		Actions:    cd.Actions,
		Timestamp:  ts,
	}}}

	phased := false
	if cd.Progress != nil {
		actions = append(actions, SetProgress{Progress: *cd.Progress})
		if len(cd.Progress.Agents) > 0 {
			actions = append(actions, SetAgentStatuses{Agents: cd.Progress.Agents})
		}
		// Structured phase data beats anything inferred from text
		if phase, ok := ParsePhase(cd.Progress.Phase); ok {
			actions = append(actions, SetPhase{Phase: phase, Source: PhaseSourceExplicit})
			phased = true
		}
	}

	if !phased {
		if phase, ok := InferPhase(content.Message); ok {
			actions = append(actions, SetPhase{Phase: phase, Source: PhaseSourceInferred})
		}
	}

	// A progress update means generation is still running; any other
	// chat type means the director has stopped and is talking to us
	actions = append(actions, SetProcessing{Processing: cd.Type == protocol.ChatTypeProgress})

	return actions
}
