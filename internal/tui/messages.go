package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"deckhand/internal/client"
	"deckhand/internal/deck"
	"deckhand/internal/events"
	"deckhand/internal/session"
)

// BubbleTea message types produced by the session event bridge

// StateMsg delivers a fresh application state snapshot
type StateMsg struct {
	Snapshot deck.Snapshot
}

// ReadyMsg signals the session became ready for input
type ReadyMsg struct{}

// NotReadyMsg signals the session lost connectivity
type NotReadyMsg struct {
	Err error
}

// ReconnectingMsg signals a reconnection attempt is scheduled
type ReconnectingMsg struct {
	Attempt int
	Delay   time.Duration
}

// AuthExpiredMsg signals the credential was rejected and the user must
// re-authenticate
type AuthExpiredMsg struct{}

// sendFailedMsg reports a failed send action
type sendFailedMsg struct {
	err error
}

// Bridge forwards session events into the BubbleTea program through an
// inbox channel, following the listen-command pattern.
type Bridge struct {
	inbox  chan tea.Msg
	detach []func()
}

// NewBridge subscribes to the session's events
func NewBridge(sess *session.Session) *Bridge {
	b := &Bridge{inbox: make(chan tea.Msg, 256)}

	b.detach = append(b.detach,
		sess.Subscribe(session.EventStateUpdated, func(ev events.Event) {
			if snap, ok := ev.Payload.(deck.Snapshot); ok {
				b.push(StateMsg{Snapshot: snap})
			}
		}),
		sess.Subscribe(session.EventReady, func(ev events.Event) {
			b.push(ReadyMsg{})
		}),
		sess.Subscribe(session.EventNotReady, func(ev events.Event) {
			b.push(NotReadyMsg{Err: ev.Err})
		}),
		sess.Subscribe(session.EventAuthExpired, func(ev events.Event) {
			b.push(AuthExpiredMsg{})
		}),
		sess.Subscribe(client.EventReconnecting, func(ev events.Event) {
			if info, ok := ev.Payload.(client.ReconnectInfo); ok {
				b.push(ReconnectingMsg{Attempt: info.Attempt, Delay: info.Delay})
			}
		}),
	)
	return b
}

// Listen returns a tea.Cmd that blocks until the next bridged message
func (b *Bridge) Listen() tea.Cmd {
	return func() tea.Msg {
		return <-b.inbox
	}
}

// Close removes the session subscriptions
func (b *Bridge) Close() {
	for _, d := range b.detach {
		d()
	}
}

// push enqueues non-blocking; under backpressure older UI updates are
// droppable since every StateMsg carries the full snapshot
func (b *Bridge) push(msg tea.Msg) {
	select {
	case b.inbox <- msg:
	default:
	}
}
