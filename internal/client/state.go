package client

// State represents the connection lifecycle state. Exactly one value
// exists per client instance; it is the single source of truth for
// whether sends are queued or flushed.
type State string

const (
	StateDisconnected   State = "disconnected"
	StateConnecting     State = "connecting"
	StateConnected      State = "connected"    // transport open, auth not yet sent
	StateAuthenticating State = "authenticating"
	StateAuthenticated  State = "authenticated"
	StateReconnecting   State = "reconnecting" // waiting out a backoff delay
)

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is one of the defined values
func (s State) IsValid() bool {
	switch s {
	case StateDisconnected, StateConnecting, StateConnected,
		StateAuthenticating, StateAuthenticated, StateReconnecting:
		return true
	default:
		return false
	}
}

// connEvent is an input to the connection state machine
type connEvent int

const (
	evDial          connEvent = iota // a connect was requested
	evTransportOpen                  // dial succeeded, socket is open
	evTransportFail                  // dial failed
	evAuthStarted                    // auth message written to the socket
	evAuthOK                         // server accepted the token
	evAuthRejected                   // server rejected the token
	evCloseNormal                    // clean close (code 1000), ours or explicit
	evCloseAbnormal                  // unexpected close
	evRetryTimer                     // backoff delay elapsed
)

// effect is an action the client must execute after a transition. The
// transition function itself performs no I/O.
type effect int

const (
	fxDial              effect = iota // open the transport
	fxSendAuth                        // write the auth message
	fxRestoreSession                  // write restore_session before flushing
	fxFlushQueue                      // flush queued outbound messages in order
	fxStartHeartbeat                  // begin periodic pings
	fxStopHeartbeat                   // stop periodic pings
	fxScheduleReconnect               // arm the backoff timer
	fxCancelReconnect                 // disarm a pending backoff timer
	fxCloseTransport                  // close the socket
	fxRejectPending                   // fail all pending correlated requests
	fxClearQueue                      // drop all queued outbound messages
)

// connInput bundles an event with the context the transition needs
type connInput struct {
	event      connEvent
	hasSession bool // a prior sessionID exists and can be restored
	budgetLeft bool // reconnect attempts remain
}

// transition is the pure connection state machine: (state, input) ->
// (state, effects). It never touches the socket, timers or queues;
// the client executes the returned effects in order.
func transition(s State, in connInput) (State, []effect) {
	switch in.event {

	case evDial:
		if s == StateDisconnected || s == StateReconnecting {
			return StateConnecting, []effect{fxDial}
		}

	case evTransportOpen:
		if s == StateConnecting {
			return StateConnected, []effect{fxSendAuth}
		}

	case evTransportFail:
		if s == StateConnecting {
			if in.budgetLeft {
				return StateReconnecting, []effect{fxScheduleReconnect}
			}
			return StateDisconnected, []effect{fxRejectPending, fxClearQueue}
		}

	case evAuthStarted:
		if s == StateConnected {
			return StateAuthenticating, nil
		}

	case evAuthOK:
		if s == StateAuthenticating {
			fx := []effect{}
			if in.hasSession {
				fx = append(fx, fxRestoreSession)
			}
			fx = append(fx, fxFlushQueue, fxStartHeartbeat)
			return StateAuthenticated, fx
		}

	case evAuthRejected:
		// Never reconnect with the same token: clean teardown from any
		// state that can observe an auth result.
		switch s {
		case StateAuthenticating, StateAuthenticated, StateConnected:
			return StateDisconnected, []effect{
				fxStopHeartbeat, fxRejectPending, fxClearQueue, fxCloseTransport,
			}
		}

	case evCloseNormal:
		if s == StateDisconnected {
			return s, nil
		}
		return StateDisconnected, []effect{
			fxStopHeartbeat, fxCancelReconnect, fxRejectPending, fxClearQueue, fxCloseTransport,
		}

	case evCloseAbnormal:
		switch s {
		case StateConnected, StateAuthenticating, StateAuthenticated:
			if in.budgetLeft {
				return StateReconnecting, []effect{fxStopHeartbeat, fxScheduleReconnect}
			}
			return StateDisconnected, []effect{fxStopHeartbeat, fxRejectPending, fxClearQueue}
		}

	case evRetryTimer:
		if s == StateReconnecting {
			return StateConnecting, []effect{fxDial}
		}
	}

	// Anything else leaves the state untouched
	return s, nil
}
