package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TokenSource is one strategy for acquiring a credential. Sources are
// tried in the order they are configured; the first success wins.
type TokenSource interface {
	// Name identifies the source in logs and diagnostics
	Name() string

	// Acquire attempts to produce a fresh credential
	Acquire(ctx context.Context) (*Credential, error)
}

// tokenResponse is the JSON body returned by the HTTP token endpoints
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"` // seconds
}

// HTTPSource acquires a token from an HTTP endpoint: POST {"user_id"}
// and decode {"access_token", "expires_in"}. The proxy and direct
// endpoints share this shape and differ only in URL.
type HTTPSource struct {
	name   string
	url    string
	userID string
	client *http.Client
}

// NewProxySource returns a source that hits the token proxy endpoint
func NewProxySource(url, userID string, client *http.Client) *HTTPSource {
	return newHTTPSource("proxy", url, userID, client)
}

// NewDirectSource returns a source that hits the service's own token endpoint
func NewDirectSource(url, userID string, client *http.Client) *HTTPSource {
	return newHTTPSource("direct", url, userID, client)
}

func newHTTPSource(name, url, userID string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPSource{name: name, url: url, userID: userID, client: client}
}

func (s *HTTPSource) Name() string { return s.name }

func (s *HTTPSource) Acquire(ctx context.Context) (*Credential, error) {
	body, err := json.Marshal(map[string]string{"user_id": s.userID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token endpoint %s unreachable: %w", s.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("token endpoint %s returned %d: %s", s.name, resp.StatusCode, string(data))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint %s returned empty access_token", s.name)
	}

	return &Credential{
		Token:     tr.AccessToken,
		ExpiresAt: time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

// SessionSource exchanges the current refresh token for a new access
// token. The refresh token lives on the Manager, so it is read through a
// callback rather than captured at construction time.
type SessionSource struct {
	url          string
	refreshToken func() string
	client       *http.Client
}

// NewSessionSource returns a source that redeems the session refresh token
func NewSessionSource(url string, refreshToken func() string, client *http.Client) *SessionSource {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &SessionSource{url: url, refreshToken: refreshToken, client: client}
}

func (s *SessionSource) Name() string { return "session" }

func (s *SessionSource) Acquire(ctx context.Context) (*Credential, error) {
	rt := s.refreshToken()
	if rt == "" {
		return nil, fmt.Errorf("no refresh token available")
	}

	body, err := json.Marshal(map[string]string{"refresh_token": rt})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("refresh endpoint returned %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("refresh endpoint returned empty access_token")
	}

	return &Credential{
		Token:     tr.AccessToken,
		ExpiresAt: time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

// StoredSource replays the last persisted credential if it is still
// usable. Useful across process restarts.
type StoredSource struct {
	store *TokenStore
}

// NewStoredSource returns a source backed by the local token cache
func NewStoredSource(store *TokenStore) *StoredSource {
	return &StoredSource{store: store}
}

func (s *StoredSource) Name() string { return "stored" }

func (s *StoredSource) Acquire(ctx context.Context) (*Credential, error) {
	cred, _, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted credential: %w", err)
	}
	if !cred.Usable(time.Now()) {
		return nil, fmt.Errorf("persisted credential expired")
	}
	return cred, nil
}

// StaticSource returns a fixed token. Development fallback only.
type StaticSource struct {
	token string
	ttl   time.Duration
}

// NewStaticSource returns a source for a pre-shared development token
func NewStaticSource(token string, ttl time.Duration) *StaticSource {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &StaticSource{token: token, ttl: ttl}
}

func (s *StaticSource) Name() string { return "static" }

func (s *StaticSource) Acquire(ctx context.Context) (*Credential, error) {
	if s.token == "" {
		return nil, fmt.Errorf("no static token configured")
	}
	return &Credential{Token: s.token, ExpiresAt: time.Now().Add(s.ttl)}, nil
}
