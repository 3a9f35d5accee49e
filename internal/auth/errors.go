package auth

import "fmt"

// AuthUnavailableError is returned when no configured token source could
// produce a credential. It is not recoverable without the user
// re-authenticating.
type AuthUnavailableError struct {
	// Attempts is the number of consecutive failed refresh attempts
	Attempts int
	// LastErr is the failure from the final source tried
	LastErr error
}

func (e *AuthUnavailableError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("no credential source succeeded after %d attempts: %v", e.Attempts, e.LastErr)
	}
	return fmt.Sprintf("no credential source succeeded after %d attempts", e.Attempts)
}

func (e *AuthUnavailableError) Unwrap() error {
	return e.LastErr
}
