// Package client owns the duplex WebSocket connection to the director
// service: connect-with-credential, heartbeat, backoff reconnection,
// outbound queueing while disconnected, request/response correlation and
// session restore. It re-emits everything as typed events and holds no
// application semantics of its own.
package client

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"deckhand/internal/events"
	"deckhand/pkg/protocol"
)

// Config holds connection client settings
type Config struct {
	// URL is the WebSocket endpoint (ws:// or wss://)
	URL string

	// TokenFunc, when set, supplies a fresh token for reconnect attempts.
	// Without it the token from the last Connect call is reused.
	TokenFunc func(ctx context.Context) (string, error)

	MaxReconnectAttempts int           // default 5, capped at 10
	BaseReconnectDelay   time.Duration // default 1s
	MaxReconnectDelay    time.Duration // default 30s
	HeartbeatInterval    time.Duration // default 30s
	RequestTimeout       time.Duration // default 30s, for SendWithResponse
	HandshakeTimeout     time.Duration // default 10s
}

func (c *Config) applyDefaults() {
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.MaxReconnectAttempts > 10 {
		c.MaxReconnectAttempts = 10
	}
	if c.BaseReconnectDelay <= 0 {
		c.BaseReconnectDelay = time.Second
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
}

// pendingResult settles a pending correlated request exactly once
type pendingResult struct {
	response interface{}
	err      error
}

// pendingRequest tracks one in-flight correlated request. The timeout
// timer is owned by the record and stopped on settlement.
type pendingRequest struct {
	messageID string
	expected  protocol.MessageType
	ch        chan pendingResult
	timer     *time.Timer
}

// Client manages the WebSocket connection to the director service
type Client struct {
	cfg      Config
	emitter  *events.Emitter
	seq      uint64
	instance string // per-instance ID component for message IDs

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	gen       int // connection generation; stale read pumps are ignored
	sessionID string
	lastToken string
	queue     []protocol.Outgoing
	pending   map[string]*pendingRequest
	attempt   int
	retry     *time.Timer
	hbStop    chan struct{}

	writeMu sync.Mutex // serializes socket writes
}

// NewClient creates a disconnected client
func NewClient(cfg Config) *Client {
	cfg.applyDefaults()
	return &Client{
		cfg:      cfg,
		emitter:  events.NewEmitter(),
		instance: uuid.New().String()[:8],
		state:    StateDisconnected,
		pending:  make(map[string]*pendingRequest),
	}
}

// Subscribe registers a handler for a client event type and returns an
// unsubscribe function
func (c *Client) Subscribe(t events.Type, h events.Handler) func() {
	return c.emitter.Subscribe(t, h)
}

// State returns the current connection state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the current logical session ID, if any
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// QueuedMessages returns the number of messages waiting to be flushed
func (c *Client) QueuedMessages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Connect opens the transport using the given token. It returns once the
// socket is open; authentication completes asynchronously and is
// announced via EventAuthenticated or EventAuthFailed.
func (c *Client) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.state != StateDisconnected && c.state != StateReconnecting {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot connect while %s", state)
	}
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.mu.Unlock()

	// advance returns fxDial; we perform the dial inline so the caller
	// sees the dial error directly.
	c.advanceAndRun(connInput{event: evDial}, nil, fxDial)

	if err := c.dial(ctx, token); err != nil {
		// The initial connect never retries on its own; the caller sees
		// the error and decides.
		c.advanceAndRun(connInput{event: evTransportFail}, err)
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

// Disconnect closes the connection cleanly (code 1000). All pending
// requests are rejected, the outbound queue is cleared and no
// reconnection is scheduled.
func (c *Client) Disconnect() {
	c.advanceAndRun(connInput{event: evCloseNormal},
		&ConnectionClosedError{Reason: "client disconnected"})
	c.emitter.Emit(events.Event{Type: EventDisconnected})
}

// Send stamps the message with a fresh message ID, timestamp and the
// current session ID, then transmits it, or queues it FIFO if the client
// is not yet authenticated. The fully addressed envelope is returned.
func (c *Client) Send(msg protocol.Outgoing) (*protocol.BaseMessage, error) {
	env := c.address(msg)
	if err := c.dispatch(msg); err != nil {
		return nil, err
	}
	return env, nil
}

// SendWithResponse is the correlated variant of Send: it registers a
// pending request keyed by the generated message ID and blocks until a
// response referencing that ID arrives, an error response arrives, the
// timeout fires, or the connection is torn down.
func (c *Client) SendWithResponse(ctx context.Context, msg protocol.Outgoing, expected protocol.MessageType, timeout time.Duration) (interface{}, error) {
	if timeout <= 0 {
		timeout = c.cfg.RequestTimeout
	}

	env := c.address(msg)
	p := &pendingRequest{
		messageID: env.MessageID,
		expected:  expected,
		ch:        make(chan pendingResult, 1),
	}

	// Register before arming the timer: a timer firing against an
	// unregistered request would settle nothing and leave the caller
	// blocked forever.
	c.mu.Lock()
	c.pending[env.MessageID] = p
	p.timer = time.AfterFunc(timeout, func() {
		c.settle(p.messageID, nil, &TimeoutError{MessageID: p.messageID, Timeout: timeout})
	})
	c.mu.Unlock()

	if err := c.dispatch(msg); err != nil {
		c.settle(env.MessageID, nil, err)
		<-p.ch
		return nil, err
	}

	select {
	case res := <-p.ch:
		return res.response, res.err
	case <-ctx.Done():
		if c.settle(env.MessageID, nil, ctx.Err()) {
			<-p.ch
			return nil, ctx.Err()
		}
		// Lost the race against a real settlement; deliver it
		res := <-p.ch
		return res.response, res.err
	}
}

// address stamps the envelope fields on an outgoing message
func (c *Client) address(msg protocol.Outgoing) *protocol.BaseMessage {
	env := msg.Envelope()
	env.MessageID = fmt.Sprintf("msg_%s_%06d", c.instance, atomic.AddUint64(&c.seq, 1))
	env.Timestamp = time.Now()

	c.mu.Lock()
	if env.SessionID == "" {
		env.SessionID = c.sessionID
	}
	c.mu.Unlock()
	return env
}

// dispatch transmits immediately when authenticated, otherwise queues
func (c *Client) dispatch(msg protocol.Outgoing) error {
	c.mu.Lock()
	if c.state == StateAuthenticated && c.conn != nil {
		conn := c.conn
		c.mu.Unlock()
		return c.writeMessage(conn, msg)
	}
	c.queue = append(c.queue, msg)
	queued := len(c.queue)
	c.mu.Unlock()

	log.Printf("[Client] Queued %s while %s (%d waiting)", msg.Envelope().Type, c.State(), queued)
	return nil
}

func (c *Client) writeMessage(conn *websocket.Conn, msg protocol.Outgoing) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

// dial opens the socket, sends auth and starts the read pump
func (c *Client) dial(ctx context.Context, token string) error {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("invalid service URL: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.gen++
	gen := c.gen
	c.lastToken = token
	c.mu.Unlock()

	c.emitter.Emit(events.Event{Type: EventConnected})
	c.advanceAndRun(connInput{event: evTransportOpen}, nil)
	go c.readPump(conn, gen)
	return nil
}

// advanceAndRun feeds an input to the pure state machine, emits the
// state change and executes the resulting effects. Effects listed in
// skip are dropped (used when the caller performs them itself).
func (c *Client) advanceAndRun(in connInput, cause error, skip ...effect) {
	c.mu.Lock()
	old := c.state
	next, fxs := transition(old, in)
	c.state = next
	c.mu.Unlock()

	if next != old {
		c.emitStateChange(old, next)
	}

	for _, fx := range fxs {
		skipped := false
		for _, s := range skip {
			if fx == s {
				skipped = true
				break
			}
		}
		if !skipped {
			c.execute(fx, cause)
		}
	}
}

func (c *Client) emitStateChange(from, to State) {
	c.emitter.Emit(events.Event{
		Type:    EventStateChanged,
		Payload: StateChange{From: from, To: to},
	})
}

// execute performs one side effect produced by the state machine
func (c *Client) execute(fx effect, cause error) {
	switch fx {
	case fxDial:
		go c.redial()

	case fxSendAuth:
		c.sendAuth()

	case fxRestoreSession:
		c.sendRestore()

	case fxFlushQueue:
		c.flushQueue()

	case fxStartHeartbeat:
		c.startHeartbeat()

	case fxStopHeartbeat:
		c.stopHeartbeat()

	case fxScheduleReconnect:
		c.scheduleReconnect()

	case fxCancelReconnect:
		c.mu.Lock()
		if c.retry != nil {
			c.retry.Stop()
			c.retry = nil
		}
		c.mu.Unlock()

	case fxCloseTransport:
		c.closeTransport()

	case fxRejectPending:
		c.rejectPending(cause)

	case fxClearQueue:
		c.mu.Lock()
		c.queue = nil
		c.mu.Unlock()
	}
}

func (c *Client) sendAuth() {
	c.mu.Lock()
	conn := c.conn
	token := c.lastToken
	c.mu.Unlock()
	if conn == nil {
		return
	}

	msg := &protocol.AuthMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeAuth},
		Token:       token,
	}
	c.address(msg)
	if err := c.writeMessage(conn, msg); err != nil {
		log.Printf("[Client] Failed to send auth: %v", err)
		return
	}
	c.advanceAndRun(connInput{event: evAuthStarted}, nil)
}

func (c *Client) sendRestore() {
	c.mu.Lock()
	conn := c.conn
	sessionID := c.sessionID
	c.mu.Unlock()
	if conn == nil || sessionID == "" {
		return
	}

	msg := &protocol.RestoreSessionMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeRestoreSession, SessionID: sessionID},
	}
	c.address(msg)
	if err := c.writeMessage(conn, msg); err != nil {
		log.Printf("[Client] Failed to send session restore: %v", err)
	}
}

// flushQueue transmits everything queued while disconnected, in the
// original enqueue order
func (c *Client) flushQueue() {
	c.mu.Lock()
	queued := c.queue
	c.queue = nil
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || len(queued) == 0 {
		return
	}

	log.Printf("[Client] Flushing %d queued messages", len(queued))
	for i, msg := range queued {
		if err := c.writeMessage(conn, msg); err != nil {
			// Put the unsent tail back at the front so order survives
			// the next flush
			c.mu.Lock()
			c.queue = append(append([]protocol.Outgoing{}, queued[i:]...), c.queue...)
			c.mu.Unlock()
			log.Printf("[Client] Flush interrupted after %d messages: %v", i, err)
			return
		}
	}
}

func (c *Client) startHeartbeat() {
	c.mu.Lock()
	if c.hbStop != nil {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.hbStop = stop
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(c.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.sendPing()
			}
		}
	}()
}

func (c *Client) stopHeartbeat() {
	c.mu.Lock()
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
	c.mu.Unlock()
}

func (c *Client) sendPing() {
	c.mu.Lock()
	conn := c.conn
	ok := c.state == StateAuthenticated
	c.mu.Unlock()
	if !ok || conn == nil {
		return
	}

	msg := &protocol.PingMessage{BaseMessage: protocol.BaseMessage{Type: protocol.TypePing}}
	c.address(msg)
	// A failed ping is not itself a failure; the read pump will observe
	// the close if the transport is gone
	if err := c.writeMessage(conn, msg); err != nil {
		log.Printf("[Client] Heartbeat write failed: %v", err)
	}
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	attempt := c.attempt
	c.attempt++
	delay := c.backoffDelay(attempt)
	if c.retry != nil {
		c.retry.Stop()
	}
	c.retry = time.AfterFunc(delay, func() {
		c.advanceAndRun(connInput{event: evRetryTimer}, nil)
	})
	c.mu.Unlock()

	log.Printf("[Client] Reconnecting in %s (attempt %d/%d)", delay, attempt+1, c.cfg.MaxReconnectAttempts)
	c.emitter.Emit(events.Event{
		Type:    EventReconnecting,
		Payload: ReconnectInfo{Attempt: attempt + 1, Delay: delay},
	})
}

// backoffDelay computes min(base << attempt, maxDelay)
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.cfg.BaseReconnectDelay << uint(attempt)
	if delay > c.cfg.MaxReconnectDelay || delay <= 0 {
		delay = c.cfg.MaxReconnectDelay
	}
	return delay
}

// redial runs on the backoff path: obtain a token and dial again
func (c *Client) redial() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout+15*time.Second)
	defer cancel()

	token := ""
	if c.cfg.TokenFunc != nil {
		t, err := c.cfg.TokenFunc(ctx)
		if err != nil {
			log.Printf("[Client] Token refresh for reconnect failed: %v", err)
		} else {
			token = t
		}
	}
	if token == "" {
		c.mu.Lock()
		token = c.lastToken
		c.mu.Unlock()
	}

	if err := c.dial(ctx, token); err != nil {
		log.Printf("[Client] Reconnect dial failed: %v", err)
		c.mu.Lock()
		budget := c.attempt < c.cfg.MaxReconnectAttempts
		c.mu.Unlock()
		c.advanceAndRun(connInput{event: evTransportFail, budgetLeft: budget}, err)
		c.mu.Lock()
		gaveUp := c.state == StateDisconnected
		c.mu.Unlock()
		if gaveUp {
			c.emitter.Emit(events.Event{Type: EventDisconnected, Err: err})
		}
	}
}

func (c *Client) closeTransport() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.gen++ // read pump exits for this conn are now stale
	c.mu.Unlock()

	if conn != nil {
		c.writeMu.Lock()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		conn.Close()
	}
}

// rejectPending fails every in-flight correlated request with the cause
func (c *Client) rejectPending(cause error) {
	if cause == nil {
		cause = &ConnectionClosedError{}
	}

	c.mu.Lock()
	pendings := c.pending
	c.pending = make(map[string]*pendingRequest)
	c.mu.Unlock()

	for _, p := range pendings {
		p.timer.Stop()
		p.ch <- pendingResult{err: cause}
	}
}

// settle resolves or rejects one pending request. Returns false if no
// request with that ID was pending (already settled or never existed).
func (c *Client) settle(messageID string, response interface{}, err error) bool {
	c.mu.Lock()
	p, ok := c.pending[messageID]
	if ok {
		delete(c.pending, messageID)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}

	p.timer.Stop()
	p.ch <- pendingResult{response: response, err: err}
	return true
}

// readPump reads inbound frames until the connection drops. Inbound
// events are processed in arrival order on this single goroutine.
func (c *Client) readPump(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(gen, err)
			return
		}

		parsed, perr := protocol.ParseMessage(data)
		if perr != nil {
			// One bad server frame must not end the session
			log.Printf("[Client] Failed to parse inbound message: %v", perr)
			continue
		}
		c.handleInbound(parsed)
	}
}

func (c *Client) handleReadError(gen int, err error) {
	c.mu.Lock()
	stale := gen != c.gen
	c.mu.Unlock()
	if stale {
		return // we tore this connection down ourselves
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		log.Printf("[Client] Server closed the connection normally")
		c.advanceAndRun(connInput{event: evCloseNormal},
			&ConnectionClosedError{Reason: "closed by server"})
		c.emitter.Emit(events.Event{Type: EventDisconnected})
		return
	}

	log.Printf("[Client] Connection lost: %v", err)
	c.mu.Lock()
	budget := c.attempt < c.cfg.MaxReconnectAttempts
	c.mu.Unlock()

	c.advanceAndRun(connInput{event: evCloseAbnormal, budgetLeft: budget},
		&ConnectionClosedError{Reason: "connection lost"})

	c.mu.Lock()
	gaveUp := c.state == StateDisconnected
	c.mu.Unlock()
	if gaveUp {
		c.emitter.Emit(events.Event{Type: EventDisconnected, Err: err})
	}
}

// handleInbound routes one parsed server message: settle correlation,
// drive the state machine for auth results, re-emit for subscribers.
func (c *Client) handleInbound(parsed interface{}) {
	switch msg := parsed.(type) {
	case *protocol.AuthResponse:
		c.handleAuthResponse(msg)

	case *protocol.DirectorMessage:
		if msg.RequestID != "" {
			c.settleIfExpected(msg.RequestID, protocol.TypeDirectorMessage, msg)
		}
		c.emitter.Emit(events.Event{Type: EventMessage, Payload: msg})

	case *protocol.ErrorMessage:
		reqErr := &RequestError{
			Code:    msg.Err.Code,
			Message: msg.Err.Message,
			Details: msg.Err.Details,
		}
		if msg.RequestID != "" {
			c.settle(msg.RequestID, nil, reqErr)
		}
		c.emitter.Emit(events.Event{Type: EventServerError, Payload: msg, Err: reqErr})

	case *protocol.PingMessage:
		// server keepalive, nothing to do

	default:
		log.Printf("[Client] Ignoring unexpected inbound message %T", parsed)
	}
}

// settleIfExpected settles a pending request only when the arrived type
// matches what the caller expects; other types keep the request pending.
func (c *Client) settleIfExpected(requestID string, got protocol.MessageType, response interface{}) {
	c.mu.Lock()
	p, ok := c.pending[requestID]
	expected := protocol.MessageType("")
	if ok {
		expected = p.expected
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	if expected != "" && expected != got {
		return
	}
	c.settle(requestID, response, nil)
}

func (c *Client) handleAuthResponse(msg *protocol.AuthResponse) {
	if msg.Success {
		c.mu.Lock()
		prior := c.sessionID
		c.attempt = 0
		c.mu.Unlock()

		// The restore handshake (when a prior session exists) must go out
		// before the queue flush, so the session is adopted first and the
		// server-assigned ID only afterwards.
		c.advanceAndRun(connInput{event: evAuthOK, hasSession: prior != ""}, nil)

		c.mu.Lock()
		if msg.SessionID != "" && c.sessionID == "" {
			c.sessionID = msg.SessionID
		}
		sessionID := c.sessionID
		c.mu.Unlock()

		c.emitter.Emit(events.Event{
			Type:    EventAuthenticated,
			Payload: AuthInfo{SessionID: sessionID, Restored: prior != ""},
		})
		return
	}

	authErr := &AuthFailedError{Reason: msg.Reason}
	log.Printf("[Client] Authentication rejected: %s", msg.Reason)
	c.advanceAndRun(connInput{event: evAuthRejected}, authErr)
	c.emitter.Emit(events.Event{
		Type:    EventAuthFailed,
		Payload: AuthInfo{Reason: msg.Reason},
		Err:     authErr,
	})
}

// ResetSession drops the logical session so the next authentication
// starts a fresh one instead of restoring
func (c *Client) ResetSession() {
	c.mu.Lock()
	c.sessionID = ""
	c.mu.Unlock()
}
