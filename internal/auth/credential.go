// Package auth acquires, caches and refreshes the bearer credential used
// to authenticate the WebSocket connection to the director service.
package auth

import "time"

// SafetyMargin is subtracted from a credential's lifetime when deciding
// whether it is still usable. A token that expires within the margin is
// treated as already expired so an in-flight request never straddles the
// real expiry.
const SafetyMargin = 5 * time.Minute

// Credential is a bearer token with its expiry instant. The Manager is
// the authority on validity; persisted copies are only a cache.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Usable reports whether the credential can still be presented to the
// service at the given instant, honoring the safety margin.
func (c *Credential) Usable(now time.Time) bool {
	if c == nil || c.Token == "" {
		return false
	}
	return now.Add(SafetyMargin).Before(c.ExpiresAt)
}
