package client

import (
	"time"

	"deckhand/internal/events"
)

// Event types emitted by the client. Every state transition and every
// inbound server message is re-emitted this way; the client itself holds
// no application semantics.
const (
	EventStateChanged  events.Type = "state_changed"
	EventConnected     events.Type = "connected"
	EventAuthenticated events.Type = "authenticated"
	EventAuthFailed    events.Type = "auth_failed"
	EventReconnecting  events.Type = "reconnecting"
	EventDisconnected  events.Type = "disconnected"
	EventMessage       events.Type = "director_message"
	EventServerError   events.Type = "server_error"
)

// StateChange is the payload of EventStateChanged
type StateChange struct {
	From State
	To   State
}

// ReconnectInfo is the payload of EventReconnecting
type ReconnectInfo struct {
	Attempt int
	Delay   time.Duration
}

// AuthInfo is the payload of EventAuthenticated and EventAuthFailed
type AuthInfo struct {
	SessionID string
	Restored  bool
	Reason    string
}
