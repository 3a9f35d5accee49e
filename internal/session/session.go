// Package session composes the credential manager, connection client and
// protocol reducer behind the single handle the display layer consumes:
// imperative actions in, subscribable state out.
package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"sync"
	"time"

	"deckhand/internal/auth"
	"deckhand/internal/client"
	"deckhand/internal/deck"
	"deckhand/internal/events"
	"deckhand/internal/snapshot"
	"deckhand/pkg/protocol"
)

// Facade event types. Client-level events are re-emitted here as well,
// so one subscription surface covers both.
const (
	EventStateUpdated events.Type = "state_updated" // payload deck.Snapshot
	EventReady        events.Type = "ready"
	EventNotReady     events.Type = "not_ready"
	EventCompleted    events.Type = "completed" // generation reached the complete phase
	EventAuthExpired  events.Type = "auth_expired"
)

// NotReadyError is returned by actions that need connectivity while the
// session is not authenticated. Queueing is a connection-client concern;
// the facade fails fast instead.
type NotReadyError struct {
	State client.State
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("session not ready (connection %s)", e.State)
}

// SendOptions carries the optional fields of a user message
type SendOptions struct {
	ResponseTo   string // question_id being answered
	UIReferences []protocol.UIReference
}

// Session is the single handle over one logical generation session
type Session struct {
	auth      *auth.Manager
	client    *client.Client
	state     *deck.State
	snapshots *snapshot.Store // optional
	emitter   *events.Emitter

	// Autosaves run on their own goroutine; event handlers sit on the
	// client's read path and must not wait on the disk.
	saveCh   chan deck.Snapshot
	saveStop chan struct{}
	stopOnce sync.Once

	mu           sync.Mutex
	credentialOK bool
	unsubs       []func()
}

// Option customizes a Session
type Option func(*Session)

// WithSnapshots enables deck autosave through the given store
func WithSnapshots(store *snapshot.Store) Option {
	return func(s *Session) { s.snapshots = store }
}

// New wires a session over an authenticated client. The session
// subscribes to the client's events and projects them into application
// state; subscribers see both levels through Subscribe.
func New(mgr *auth.Manager, cl *client.Client, opts ...Option) *Session {
	s := &Session{
		auth:    mgr,
		client:  cl,
		state:   deck.NewState(),
		emitter: events.NewEmitter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.snapshots != nil {
		s.saveCh = make(chan deck.Snapshot, 8)
		s.saveStop = make(chan struct{})
		go s.saveLoop()
	}

	s.unsubs = append(s.unsubs,
		cl.Subscribe(client.EventMessage, s.onInbound),
		cl.Subscribe(client.EventServerError, s.onInbound),
		cl.Subscribe(client.EventAuthenticated, s.onAuthenticated),
		cl.Subscribe(client.EventAuthFailed, s.onAuthFailed),
		cl.Subscribe(client.EventDisconnected, s.onDisconnected),
		// Everything the client emits is visible on the facade too
		cl.Subscribe(events.Any, func(ev events.Event) { s.emitter.Emit(ev) }),
	)
	return s
}

// Subscribe registers a handler for facade or client events and returns
// an unsubscribe function
func (s *Session) Subscribe(t events.Type, h events.Handler) func() {
	return s.emitter.Subscribe(t, h)
}

// State returns a copy of the current application state
func (s *Session) State() deck.Snapshot {
	return s.state.Snapshot()
}

// IsReady reports whether actions can be performed right now: the
// connection is authenticated and a credential was successfully used to
// get there.
func (s *Session) IsReady() bool {
	s.mu.Lock()
	credOK := s.credentialOK
	s.mu.Unlock()
	return credOK && s.client.State() == client.StateAuthenticated
}

// Connect acquires a credential and opens the connection. Ready state is
// reached asynchronously when authentication completes.
func (s *Session) Connect(ctx context.Context) error {
	token, err := s.auth.GetValidToken(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire credential: %w", err)
	}
	if err := s.client.Connect(ctx, token); err != nil {
		return err
	}
	return nil
}

// WaitReady blocks until the session can perform actions, the server
// rejects the credential, or the context expires. Connect returns as
// soon as the transport opens, so a caller that wants to send right
// away waits here first.
func (s *Session) WaitReady(ctx context.Context) error {
	ready := make(chan struct{}, 1)
	rejected := make(chan error, 1)
	unsubReady := s.Subscribe(EventReady, func(events.Event) {
		select {
		case ready <- struct{}{}:
		default:
		}
	})
	defer unsubReady()
	unsubAuth := s.Subscribe(EventAuthExpired, func(ev events.Event) {
		select {
		case rejected <- ev.Err:
		default:
		}
	})
	defer unsubAuth()

	// Subscribed first, checked second: readiness reached in between is
	// not missed.
	if s.IsReady() {
		return nil
	}

	select {
	case <-ready:
		return nil
	case err := <-rejected:
		if err == nil {
			err = fmt.Errorf("authentication rejected")
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reconnect tears down any current connection and dials again with a
// fresh credential
func (s *Session) Reconnect(ctx context.Context) error {
	if s.client.State() != client.StateDisconnected {
		s.client.Disconnect()
	}
	return s.Connect(ctx)
}

// Close disconnects and removes all internal subscriptions
func (s *Session) Close() {
	s.client.Disconnect()
	s.stopOnce.Do(func() {
		if s.saveStop != nil {
			close(s.saveStop)
		}
	})
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}

// SendMessage sends user text to the director
func (s *Session) SendMessage(ctx context.Context, text string, opts SendOptions) (*protocol.BaseMessage, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}

	msg := &protocol.UserInputMessage{
		BaseMessage:  protocol.BaseMessage{Type: protocol.TypeUserInput},
		Text:         text,
		ResponseTo:   opts.ResponseTo,
		UIReferences: opts.UIReferences,
	}

	env, err := s.client.Send(msg)
	if err != nil {
		return nil, err
	}

	s.state.ApplyAll([]deck.Action{
		deck.AppendChat{Entry: deck.ChatEntry{
			Role:      "user",
			Message:   text,
			Timestamp: env.Timestamp,
		}},
		deck.SetProcessing{Processing: true},
	})
	s.emitState()
	return env, nil
}

// UploadFile sends a file to the director as a user-input attachment
func (s *Session) UploadFile(ctx context.Context, name, mimeType string, data []byte) (*protocol.BaseMessage, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}

	msg := &protocol.UserInputMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeUserInput},
		Attachments: []protocol.Attachment{{
			Name:     name,
			MimeType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(data),
		}},
	}

	env, err := s.client.Send(msg)
	if err != nil {
		return nil, err
	}

	s.state.ApplyAll([]deck.Action{
		deck.AppendChat{Entry: deck.ChatEntry{
			Role:      "user",
			Message:   fmt.Sprintf("Uploaded %s (%d bytes)", name, len(data)),
			Timestamp: env.Timestamp,
		}},
		deck.SetProcessing{Processing: true},
	})
	s.emitState()
	return env, nil
}

// PerformAction reports a UI action (button click, option selection)
// back to the director
func (s *Session) PerformAction(ctx context.Context, actionID, actionType string, data map[string]interface{}) (*protocol.BaseMessage, error) {
	if err := s.requireReady(); err != nil {
		return nil, err
	}

	msg := &protocol.UserInputMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeUserInput},
		FrontendActions: []protocol.FrontendAction{{
			ActionID: actionID,
			Type:     actionType,
			Data:     data,
		}},
	}
	return s.client.Send(msg)
}

// Reset abandons the current logical session: the next authentication
// starts fresh and the application state is cleared.
func (s *Session) Reset() {
	s.client.ResetSession()
	s.state.Apply(deck.Reset{})
	s.emitState()
}

func (s *Session) requireReady() error {
	if !s.IsReady() {
		return &NotReadyError{State: s.client.State()}
	}
	return nil
}

// onInbound projects one inbound protocol event into application state
func (s *Session) onInbound(ev events.Event) {
	actions := deck.Reduce(ev.Payload)
	if len(actions) == 0 {
		return
	}

	before := s.state.Phase()
	s.state.ApplyAll(actions)
	snap := s.state.Snapshot()

	for _, a := range actions {
		if _, ok := a.(deck.ReplaceSlides); ok {
			s.enqueueAutosave(snap)
			break
		}
	}

	s.emitter.Emit(events.Event{Type: EventStateUpdated, Payload: snap})
	if before != deck.PhaseComplete && snap.Phase == deck.PhaseComplete {
		s.emitter.Emit(events.Event{Type: EventCompleted, Payload: snap})
	}
}

func (s *Session) onAuthenticated(ev events.Event) {
	s.mu.Lock()
	s.credentialOK = true
	s.mu.Unlock()
	s.emitter.Emit(events.Event{Type: EventReady, Payload: ev.Payload})
}

func (s *Session) onAuthFailed(ev events.Event) {
	s.mu.Lock()
	s.credentialOK = false
	s.mu.Unlock()
	// The token the server saw is no longer good; do not hand it out again
	s.auth.Invalidate()
	s.emitter.Emit(events.Event{Type: EventAuthExpired, Err: ev.Err})
}

func (s *Session) onDisconnected(ev events.Event) {
	s.mu.Lock()
	s.credentialOK = false
	s.mu.Unlock()
	s.emitter.Emit(events.Event{Type: EventNotReady, Err: ev.Err})
}

// enqueueAutosave hands a deck snapshot to the saver goroutine without
// blocking; autosave is opportunistic, so a busy saver just skips one
func (s *Session) enqueueAutosave(snap deck.Snapshot) {
	if s.snapshots == nil || len(snap.Slides) == 0 {
		return
	}
	select {
	case s.saveCh <- snap:
	default:
		log.Printf("[Session] Deck autosave skipped, saver busy")
	}
}

func (s *Session) saveLoop() {
	for {
		select {
		case <-s.saveStop:
			return
		case snap := <-s.saveCh:
			s.autosave(snap)
		}
	}
}

// autosave persists the current deck; failures are logged, never
// surfaced
func (s *Session) autosave(snap deck.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	presentationID := snap.Metadata.ID
	if presentationID == "" {
		presentationID = s.client.SessionID()
	}

	payload := protocol.SlideData{Slides: snap.Slides, PresentationMetadata: snap.Metadata}
	if err := s.snapshots.Save(ctx, presentationID, deck.DeckTitle(snap), len(snap.Slides), payload); err != nil {
		log.Printf("[Session] Deck autosave failed: %v", err)
	}
}

func (s *Session) emitState() {
	s.emitter.Emit(events.Event{Type: EventStateUpdated, Payload: s.state.Snapshot()})
}
