package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeSource is a scriptable TokenSource for manager tests
type fakeSource struct {
	name  string
	calls int32
	err   error
	token string
	ttl   time.Duration
	block chan struct{} // when set, Acquire waits until closed
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Acquire(ctx context.Context) (*Credential, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	ttl := f.ttl
	if ttl == 0 {
		ttl = time.Hour
	}
	return &Credential{Token: f.token, ExpiresAt: time.Now().Add(ttl)}, nil
}

func (f *fakeSource) callCount() int {
	return int(atomic.LoadInt32(&f.calls))
}

func TestGetValidTokenWalksSourcesInOrder(t *testing.T) {
	first := &fakeSource{name: "first", err: errors.New("endpoint down")}
	second := &fakeSource{name: "second", err: errors.New("unauthorized")}
	third := &fakeSource{name: "third", token: "abc"}

	mgr := NewManager([]TokenSource{first, second, third})
	token, err := mgr.GetValidToken(context.Background())
	if err != nil {
		t.Fatalf("GetValidToken failed: %v", err)
	}
	if token != "abc" {
		t.Errorf("token = %q, want abc", token)
	}
	if first.callCount() != 1 || second.callCount() != 1 || third.callCount() != 1 {
		t.Errorf("call counts = %d/%d/%d, want 1/1/1",
			first.callCount(), second.callCount(), third.callCount())
	}
	if got := mgr.LastSource(); got != "third" {
		t.Errorf("LastSource = %q, want third", got)
	}
}

func TestGetValidTokenCachesUntilSafetyMargin(t *testing.T) {
	src := &fakeSource{name: "only", token: "tok1", ttl: time.Hour}
	mgr := NewManager([]TokenSource{src})

	for i := 0; i < 5; i++ {
		if _, err := mgr.GetValidToken(context.Background()); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}
	if src.callCount() != 1 {
		t.Errorf("source called %d times for a still-valid token, want 1", src.callCount())
	}
}

func TestTokenInsideSafetyMarginIsRefreshed(t *testing.T) {
	// A token with less lifetime left than the safety margin must not be
	// handed out
	src := &fakeSource{name: "only", token: "short", ttl: SafetyMargin / 2}
	mgr := NewManager([]TokenSource{src})

	if _, err := mgr.GetValidToken(context.Background()); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if _, err := mgr.GetValidToken(context.Background()); err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if src.callCount() != 2 {
		t.Errorf("source called %d times, want 2 (margin makes the token unusable)", src.callCount())
	}
}

func TestConcurrentCallersShareOneRefresh(t *testing.T) {
	src := &fakeSource{name: "slow", token: "shared", block: make(chan struct{})}
	mgr := NewManager([]TokenSource{src})

	const callers = 8
	var wg sync.WaitGroup
	results := make(chan string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := mgr.GetValidToken(context.Background())
			if err != nil {
				t.Errorf("caller failed: %v", err)
				return
			}
			results <- token
		}()
	}

	// Give every caller time to reach the manager before releasing
	time.Sleep(50 * time.Millisecond)
	close(src.block)
	wg.Wait()
	close(results)

	for token := range results {
		if token != "shared" {
			t.Errorf("caller got %q, want shared", token)
		}
	}
	if src.callCount() != 1 {
		t.Errorf("source called %d times for %d concurrent callers, want 1", src.callCount(), callers)
	}
}

func TestFailFastAfterConsecutiveFailures(t *testing.T) {
	src := &fakeSource{name: "broken", err: errors.New("500")}
	mgr := NewManager([]TokenSource{src}, WithMaxAttempts(2))

	for i := 0; i < 2; i++ {
		if _, err := mgr.GetValidToken(context.Background()); err == nil {
			t.Fatalf("attempt %d unexpectedly succeeded", i)
		}
	}
	if src.callCount() != 2 {
		t.Fatalf("source called %d times, want 2", src.callCount())
	}

	// Third call must fail fast without touching the source
	_, err := mgr.GetValidToken(context.Background())
	var unavailable *AuthUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("error = %v, want AuthUnavailableError", err)
	}
	if src.callCount() != 2 {
		t.Errorf("fail-fast call still hit the source (%d calls)", src.callCount())
	}
}

func TestSetTokensResetsFailureCounter(t *testing.T) {
	src := &fakeSource{name: "broken", err: errors.New("500")}
	mgr := NewManager([]TokenSource{src}, WithMaxAttempts(1))

	if _, err := mgr.GetValidToken(context.Background()); err == nil {
		t.Fatal("expected the refresh to fail")
	}

	mgr.SetTokens("external_tok", "refresh_tok", time.Hour)
	token, err := mgr.GetValidToken(context.Background())
	if err != nil {
		t.Fatalf("GetValidToken after SetTokens failed: %v", err)
	}
	if token != "external_tok" {
		t.Errorf("token = %q, want external_tok", token)
	}
	if !mgr.IsAuthenticated() {
		t.Error("expected IsAuthenticated after SetTokens")
	}
	if got := mgr.RefreshTokenFunc()(); got != "refresh_tok" {
		t.Errorf("refresh token = %q, want refresh_tok", got)
	}
}

func TestInvalidateForcesReacquisition(t *testing.T) {
	src := &fakeSource{name: "only", token: "tok"}
	mgr := NewManager([]TokenSource{src})

	if _, err := mgr.GetValidToken(context.Background()); err != nil {
		t.Fatal(err)
	}
	mgr.Invalidate()
	if mgr.IsAuthenticated() {
		t.Error("still authenticated after Invalidate")
	}
	if _, err := mgr.GetValidToken(context.Background()); err != nil {
		t.Fatal(err)
	}
	if src.callCount() != 2 {
		t.Errorf("source called %d times, want 2", src.callCount())
	}
}

func TestHTTPSourceAcquire(t *testing.T) {
	var gotUserID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := readJSON(r, &body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		gotUserID = body["user_id"]
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token": "abc", "expires_in": 3600}`)
	}))
	defer server.Close()

	src := NewProxySource(server.URL, "user_42", nil)
	cred, err := src.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if gotUserID != "user_42" {
		t.Errorf("request carried user_id %q, want user_42", gotUserID)
	}
	if cred.Token != "abc" {
		t.Errorf("token = %q, want abc", cred.Token)
	}

	// 3600s lifetime comfortably clears the safety margin
	if !cred.Usable(time.Now()) {
		t.Error("fresh one-hour credential should be usable")
	}
	if cred.Usable(time.Now().Add(56 * time.Minute)) {
		t.Error("credential inside the safety margin should be unusable")
	}
}

func TestHTTPSourceRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer server.Close()

	src := NewDirectSource(server.URL, "user_42", nil)
	if _, err := src.Acquire(context.Background()); err == nil {
		t.Error("expected an error for a 403 response")
	}
}

func TestSessionSourceRequiresRefreshToken(t *testing.T) {
	src := NewSessionSource("http://unused", func() string { return "" }, nil)
	if _, err := src.Acquire(context.Background()); err == nil {
		t.Error("expected an error with no refresh token")
	}
}

func TestCredentialUsable(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		cred *Credential
		want bool
	}{
		{"nil credential", nil, false},
		{"empty token", &Credential{ExpiresAt: now.Add(time.Hour)}, false},
		{"fresh", &Credential{Token: "t", ExpiresAt: now.Add(time.Hour)}, true},
		{"expired", &Credential{Token: "t", ExpiresAt: now.Add(-time.Minute)}, false},
		{"inside margin", &Credential{Token: "t", ExpiresAt: now.Add(SafetyMargin - time.Second)}, false},
		{"just outside margin", &Credential{Token: "t", ExpiresAt: now.Add(SafetyMargin + time.Minute)}, true},
	}
	for _, tc := range cases {
		if got := tc.cred.Usable(now); got != tc.want {
			t.Errorf("%s: Usable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
