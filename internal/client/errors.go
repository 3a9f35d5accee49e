package client

import (
	"fmt"
	"time"

	"deckhand/pkg/protocol"
)

// TimeoutError is returned when a correlated request receives no
// response within its timeout. The caller may retry that request.
type TimeoutError struct {
	MessageID string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %s timed out after %s", e.MessageID, e.Timeout)
}

// ConnectionClosedError is returned for requests that were pending when
// the connection was torn down, and for sends on a closed client.
type ConnectionClosedError struct {
	Reason string
}

func (e *ConnectionClosedError) Error() string {
	if e.Reason != "" {
		return "connection closed: " + e.Reason
	}
	return "connection closed"
}

// AuthFailedError is returned when the server rejects the token
type AuthFailedError struct {
	Reason string
}

func (e *AuthFailedError) Error() string {
	if e.Reason != "" {
		return "authentication failed: " + e.Reason
	}
	return "authentication failed"
}

// RequestError is a server-reported failure for a specific request
type RequestError struct {
	Code    string
	Message string
	Details map[string]interface{}
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("server error %s: %s", e.Code, e.Message)
}

// Retryable reports whether the caller may usefully retry the request
func (e *RequestError) Retryable() bool {
	switch e.Code {
	case protocol.ErrCodeRateLimited:
		return true
	case protocol.ErrCodeValidation, protocol.ErrCodeServerError:
		return false
	default:
		return false
	}
}

// RetryAfter returns the server-specified delay for rate limited
// requests, or zero when none was given
func (e *RequestError) RetryAfter() time.Duration {
	if e.Code != protocol.ErrCodeRateLimited {
		return 0
	}
	if v, ok := e.Details["retry_after"]; ok {
		if secs, ok := v.(float64); ok {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
