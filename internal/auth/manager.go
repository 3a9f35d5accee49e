package auth

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultMaxAttempts is the number of consecutive failed refreshes
// tolerated before GetValidToken fails fast
const DefaultMaxAttempts = 3

// Manager owns the bearer credential. It caches the current token,
// refreshes it through an ordered list of sources, and coalesces
// concurrent refresh callers into a single in-flight attempt.
type Manager struct {
	sources     []TokenSource
	store       *TokenStore // optional write-through cache
	maxAttempts int

	mu           sync.Mutex
	cred         *Credential
	refreshToken string
	inflight     *refreshAttempt
	failures     int
	lastFailure  error
	lastSource   string
}

// refreshAttempt is the shared result of one in-flight refresh. Waiters
// block on done; token/err are valid once done is closed.
type refreshAttempt struct {
	done  chan struct{}
	token string
	err   error
}

// ManagerOption customizes a Manager
type ManagerOption func(*Manager)

// WithStore enables write-through persistence of acquired credentials
func WithStore(store *TokenStore) ManagerOption {
	return func(m *Manager) { m.store = store }
}

// WithMaxAttempts overrides the consecutive-failure bound
func WithMaxAttempts(n int) ManagerOption {
	return func(m *Manager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// NewManager creates a credential manager that tries sources in order
func NewManager(sources []TokenSource, opts ...ManagerOption) *Manager {
	m := &Manager{
		sources:     sources,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddSource appends a fallback source. Useful for sources that need a
// reference back to the manager, such as refresh-token exchange.
func (m *Manager) AddSource(src TokenSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = append(m.sources, src)
}

// GetValidToken returns a token guaranteed to be usable for at least the
// safety margin. If no cached token qualifies, one refresh runs and all
// concurrent callers share its outcome.
func (m *Manager) GetValidToken(ctx context.Context) (string, error) {
	m.mu.Lock()

	if m.cred.Usable(time.Now()) {
		token := m.cred.Token
		m.mu.Unlock()
		return token, nil
	}

	// Join an in-flight refresh instead of starting a duplicate
	if m.inflight != nil {
		attempt := m.inflight
		m.mu.Unlock()
		select {
		case <-attempt.done:
			return attempt.token, attempt.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if m.failures >= m.maxAttempts {
		err := &AuthUnavailableError{Attempts: m.failures, LastErr: m.lastFailure}
		m.mu.Unlock()
		return "", err
	}

	attempt := &refreshAttempt{done: make(chan struct{})}
	m.inflight = attempt
	m.mu.Unlock()

	cred, source, err := m.refresh(ctx)

	m.mu.Lock()
	m.inflight = nil
	if err != nil {
		m.failures++
		m.lastFailure = err
		attempt.err = &AuthUnavailableError{Attempts: m.failures, LastErr: err}
	} else {
		m.cred = cred
		m.failures = 0
		m.lastFailure = nil
		m.lastSource = source
		attempt.token = cred.Token
	}
	m.mu.Unlock()
	close(attempt.done)

	if err == nil && m.store != nil && source != "stored" {
		if serr := m.store.Save(ctx, cred, m.currentRefreshToken()); serr != nil {
			log.Printf("[Auth] Failed to persist credential: %v", serr)
		}
	}

	return attempt.token, attempt.err
}

// refresh walks the source list and returns the first credential
func (m *Manager) refresh(ctx context.Context) (*Credential, string, error) {
	m.mu.Lock()
	sources := make([]TokenSource, len(m.sources))
	copy(sources, m.sources)
	m.mu.Unlock()

	var lastErr error
	for _, src := range sources {
		cred, err := src.Acquire(ctx)
		if err != nil {
			log.Printf("[Auth] Source %s failed: %v", src.Name(), err)
			lastErr = err
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			continue
		}
		log.Printf("[Auth] Acquired credential from source %s (expires %s)",
			src.Name(), cred.ExpiresAt.Format(time.RFC3339))
		return cred, src.Name(), nil
	}
	return nil, "", lastErr
}

// SetTokens installs a credential directly, for example from an external
// auth flow, and resets the failure counters.
func (m *Manager) SetTokens(token, refreshToken string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	cred := &Credential{Token: token, ExpiresAt: time.Now().Add(ttl)}

	m.mu.Lock()
	m.cred = cred
	if refreshToken != "" {
		m.refreshToken = refreshToken
	}
	m.failures = 0
	m.lastFailure = nil
	m.lastSource = "external"
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Save(context.Background(), cred, refreshToken); err != nil {
			log.Printf("[Auth] Failed to persist credential: %v", err)
		}
	}
}

// Invalidate discards the cached credential so the next GetValidToken
// re-acquires. Used after the server rejects the token mid-session.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.cred = nil
	m.failures = 0
	m.lastFailure = nil
	m.mu.Unlock()
}

// IsAuthenticated reports whether a usable credential is cached
func (m *Manager) IsAuthenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred.Usable(time.Now())
}

// LastFailure returns the most recent refresh failure for diagnostics
func (m *Manager) LastFailure() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastFailure
}

// LastSource returns the name of the source that produced the current
// credential
func (m *Manager) LastSource() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSource
}

func (m *Manager) currentRefreshToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshToken
}

// RefreshTokenFunc exposes the refresh token getter for wiring a
// SessionSource without a construction cycle
func (m *Manager) RefreshTokenFunc() func() string {
	return m.currentRefreshToken
}
