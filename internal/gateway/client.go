package gateway

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"clawpanel/internal/content"
	"clawpanel/pkg/logger"
)

// Default timeouts and reconnect backoff bounds.
const (
	DefaultVerifyTimeout  = 8 * time.Second
	DefaultRequestTimeout = 30 * time.Second

	reconnectInitialDelay = 1 * time.Second
	reconnectMaxDelay     = 15 * time.Second

	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
)

// Client identity presented during the handshake.
const (
	clientID      = "clawpanel"
	clientVersion = "0.1.0"
	clientMode    = "backend"
)

// minServerVersion is the oldest gateway release this panel is tested
// against. Older or unparseable server versions only produce a warning.
var minServerVersion = semver.MustParse("0.3.0")

// Sentinel errors surfaced by client operations.
var (
	ErrNotConnected = errors.New("not connected")
	ErrDisconnected = errors.New("disconnected")
	ErrClosed       = errors.New("connection closed")
	ErrTimeout      = errors.New("request timed out")
)

// Config holds the settings needed to reach and authenticate with a gateway.
type Config struct {
	GatewayURL string
	Token      string
	Password   string
	AgentID    string
	SessionKey string
}

// Options tune client timeouts and backoff. Zero values use the defaults;
// tests shrink them.
type Options struct {
	VerifyTimeout    time.Duration
	RequestTimeout   time.Duration
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration
}

type result struct {
	payload any
	err     error
}

// pending is one outstanding request awaiting its response frame.
type pending struct {
	resolve func(payload any)
	reject  func(err error)
}

type verifyWaiter struct {
	ch chan error
}

// Client owns one logical connection to the gateway. The instance persists
// across reconnects; Connect mutates it rather than replacing it.
type Client struct {
	handlers Handlers

	verifyTimeout    time.Duration
	requestTimeout   time.Duration
	reconnectInitial time.Duration
	reconnectMax     time.Duration

	// writeMu serializes frame writes; gorilla/websocket allows one
	// concurrent writer.
	writeMu sync.Mutex

	mu             sync.Mutex
	conn           *websocket.Conn
	connGen        int
	requestID      uint64
	authenticated  bool
	pending        map[string]*pending
	lastConfig     *Config
	reconnectTimer *time.Timer
	reconnectDelay time.Duration
	intentional    bool
	verify         *verifyWaiter
	state          ConnState
}

// NewClient creates a gateway client. Handlers may be partially nil.
func NewClient(handlers Handlers, opts Options) *Client {
	if opts.VerifyTimeout == 0 {
		opts.VerifyTimeout = DefaultVerifyTimeout
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.ReconnectInitial == 0 {
		opts.ReconnectInitial = reconnectInitialDelay
	}
	if opts.ReconnectMax == 0 {
		opts.ReconnectMax = reconnectMaxDelay
	}

	return &Client{
		handlers:         handlers,
		verifyTimeout:    opts.VerifyTimeout,
		requestTimeout:   opts.RequestTimeout,
		reconnectInitial: opts.ReconnectInitial,
		reconnectMax:     opts.ReconnectMax,
		pending:          make(map[string]*pending),
		reconnectDelay:   opts.ReconnectInitial,
		state:            StateIdle,
	}
}

// Connected reports whether the socket is open and the handshake completed.
// The client is not usable for chat until both hold.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.authenticated
}

// State returns the last reported connection state.
func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect tears down any existing socket and opens a new one. It returns
// without waiting for the dial or handshake; progress is reported through
// the state handler, and authentication happens when the gateway sends its
// challenge.
func (c *Client) Connect(cfg Config) {
	stale, gen := c.beginConnect(cfg)
	rejectAll(stale, ErrDisconnected)
	c.setState(StateConnecting, "")
	go c.dial(cfg, gen)
}

// ConnectAndVerify connects like Connect but blocks until authentication
// completes, the socket fails, or the verify timeout elapses. On timeout the
// connection is closed rather than left half-open. Exactly one outcome is
// returned even if multiple socket events occur.
func (c *Client) ConnectAndVerify(cfg Config) error {
	stale, gen := c.beginConnect(cfg)
	rejectAll(stale, ErrDisconnected)

	waiter := &verifyWaiter{ch: make(chan error, 1)}
	c.mu.Lock()
	prev := c.verify
	c.verify = waiter
	c.mu.Unlock()
	if prev != nil {
		prev.ch <- errors.New("superseded by a newer connect")
	}

	c.setState(StateConnecting, "")
	go c.dial(cfg, gen)

	timer := time.NewTimer(c.verifyTimeout)
	defer timer.Stop()

	select {
	case err := <-waiter.ch:
		return err
	case <-timer.C:
		c.mu.Lock()
		if c.verify == waiter {
			c.verify = nil
		}
		c.mu.Unlock()
		c.Disconnect()
		c.setState(StateError, "Connection timed out")
		return fmt.Errorf("connection to %s timed out", cfg.GatewayURL)
	}
}

// Disconnect closes the connection intentionally: the reconnect timer is
// cancelled permanently and all pending requests reject with ErrDisconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.intentional = true
	c.stopReconnectLocked()
	stale := c.teardownLocked()
	c.mu.Unlock()

	rejectAll(stale, ErrDisconnected)
	c.settleVerify(ErrDisconnected)
	c.setState(StateIdle, "Disconnected")
}

// SendChatMessage sends one chat turn. Fire-and-forget: the reply arrives as
// streamed chat events, not as a correlated response.
func (c *Client) SendChatMessage(text string, cfg Config) error {
	c.mu.Lock()
	if c.conn == nil || !c.authenticated {
		c.mu.Unlock()
		return ErrNotConnected
	}
	id := c.nextIDLocked()
	conn := c.conn
	c.mu.Unlock()

	sessionKey := cfg.SessionKey
	if sessionKey == "" {
		sessionKey = "main"
	}

	params := map[string]any{
		"message":        text,
		"sessionKey":     sessionKey,
		"idempotencyKey": uuid.New().String(),
	}
	if cfg.AgentID != "" {
		params["agentId"] = cfg.AgentID
	}

	return c.writeFrame(conn, &Frame{
		Type:   FrameTypeRequest,
		ID:     id,
		Method: MethodChatSend,
		Params: params,
	})
}

// Request sends a correlated RPC request and blocks until the matching
// response arrives, the request times out, or the connection goes away.
func (c *Client) Request(method string, params map[string]any) (any, error) {
	c.mu.Lock()
	if c.conn == nil || !c.authenticated {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	id := c.nextIDLocked()
	conn := c.conn

	ch := make(chan result, 1)
	c.pending[id] = &pending{
		resolve: func(payload any) { ch <- result{payload: payload} },
		reject:  func(err error) { ch <- result{err: err} },
	}
	c.mu.Unlock()

	// The timer outlives a fast response as a no-op; settled requests are
	// gone from the pending table.
	time.AfterFunc(c.requestTimeout, func() {
		c.rejectPending(id, fmt.Errorf("request %s: %w", method, ErrTimeout))
	})

	frame := &Frame{Type: FrameTypeRequest, ID: id, Method: method}
	if params != nil {
		frame.Params = params
	}
	if err := c.writeFrame(conn, frame); err != nil {
		c.rejectPending(id, err)
	}

	res := <-ch
	return res.payload, res.err
}

// beginConnect supersedes any existing socket and records the config for
// later reconnects. It returns the pending requests of the old socket and
// the generation the new socket will own.
func (c *Client) beginConnect(cfg Config) (map[string]*pending, int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.intentional = false
	c.stopReconnectLocked()
	cfgCopy := cfg
	c.lastConfig = &cfgCopy
	return c.teardownLocked(), c.connGen
}

// teardownLocked invalidates the current socket. The caller rejects the
// returned pending requests after releasing the lock.
func (c *Client) teardownLocked() map[string]*pending {
	c.connGen++
	c.authenticated = false
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	stale := c.pending
	c.pending = make(map[string]*pending)
	return stale
}

func (c *Client) dial(cfg Config, gen int) {
	conn, _, err := websocket.DefaultDialer.Dial(cfg.GatewayURL, nil)

	c.mu.Lock()
	if c.connGen != gen {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.mu.Unlock()
		logger.Warn().Err(err).Str("url", cfg.GatewayURL).Msg("gateway dial failed")
		c.setState(StateError, fmt.Sprintf("Cannot connect to %s", cfg.GatewayURL))
		c.settleVerify(fmt.Errorf("cannot connect to %s: %w", cfg.GatewayURL, err))
		c.scheduleReconnect()
		return
	}

	c.conn = conn
	// A successful open resets the backoff, authenticated or not.
	c.reconnectDelay = c.reconnectInitial
	c.mu.Unlock()

	logger.Debug().Str("url", cfg.GatewayURL).Msg("socket open, waiting for challenge")
	go c.readLoop(conn, gen, cfg)
}

func (c *Client) readLoop(conn *websocket.Conn, gen int, cfg Config) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(gen)
			return
		}

		frame := ParseFrame(data)
		if frame == nil {
			// Malformed frames are dropped, not fatal.
			logger.Debug().Msg("dropping malformed frame")
			continue
		}
		c.dispatch(frame, cfg)
	}
}

// handleClose runs once per socket when its read loop ends. Stale sockets
// (superseded by Connect or closed by Disconnect) are ignored; their pending
// requests were already rejected.
func (c *Client) handleClose(gen int) {
	c.mu.Lock()
	if c.connGen != gen {
		c.mu.Unlock()
		return
	}
	stale := c.teardownLocked()
	intentional := c.intentional
	c.mu.Unlock()

	rejectAll(stale, ErrClosed)
	c.settleVerify(ErrClosed)
	c.setState(StateIdle, "Disconnected")
	if !intentional {
		c.scheduleReconnect()
	}
}

// scheduleReconnect arms the backoff timer: 1s doubling to a 15s cap. The
// timer is cancelled by Disconnect and superseded by an explicit Connect.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.intentional || c.lastConfig == nil {
		return
	}

	c.stopReconnectLocked()
	delay := c.reconnectDelay
	c.reconnectDelay = nextReconnectDelay(delay, c.reconnectMax)

	logger.Debug().Dur("delay", delay).Msg("scheduling reconnect")
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		cfg := c.lastConfig
		intentional := c.intentional
		c.mu.Unlock()
		if cfg != nil && !intentional {
			c.Connect(*cfg)
		}
	})
}

func nextReconnectDelay(current, limit time.Duration) time.Duration {
	next := current * 2
	if next > limit {
		next = limit
	}
	return next
}

func (c *Client) stopReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Client) nextIDLocked() string {
	c.requestID++
	return strconv.FormatUint(c.requestID, 10)
}

func (c *Client) writeFrame(conn *websocket.Conn, frame *Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(frame)
}

// dispatch routes one inbound frame. Inbound req frames are not expected and
// fall through ignored; this client never answers requests.
func (c *Client) dispatch(frame *Frame, cfg Config) {
	switch frame.Type {
	case FrameTypeResponse:
		c.dispatchResponse(frame)
	case FrameTypeEvent:
		c.dispatchEvent(frame, cfg)
	}
}

func (c *Client) dispatchResponse(frame *Frame) {
	c.mu.Lock()
	p, ok := c.pending[frame.ID]
	if ok {
		delete(c.pending, frame.ID)
	}
	c.mu.Unlock()

	if ok {
		if frame.IsOK() {
			p.resolve(frame.Payload)
		} else {
			text := content.ExtractText(frame.Error)
			if text == "" {
				text = "Request failed"
			}
			p.reject(errors.New(text))
		}
		return
	}

	// No matching pending id: a response to chat.send or another
	// uncorrelated call. Forward failures, and surface spontaneous
	// successes that carry text.
	if !frame.IsOK() {
		text := content.ExtractText(frame.Error)
		if text == "" {
			text = "Gateway returned an error."
		}
		c.handlers.event(Event{Kind: KindError, Text: text})
		return
	}

	if text := content.ExtractText(frame.Payload); text != "" {
		c.handlers.event(Event{Kind: KindAssistant, Text: text})
	}
}

func (c *Client) dispatchEvent(frame *Frame, cfg Config) {
	payload, _ := frame.Payload.(map[string]any)

	switch frame.Event {
	case EventConnectChallenge:
		c.sendHandshake(cfg)

	case EventChat:
		state, _ := payload["state"].(string)

		switch state {
		case ChatStateDelta:
			// Each delta carries the full accumulated text so far.
			if text := content.ExtractText(payload["message"]); text != "" {
				c.handlers.event(Event{Kind: KindAssistantDelta, Text: text})
			}

		case ChatStateFinal:
			text := content.ExtractTextWithMedia(payload["message"])
			c.handlers.event(Event{Kind: KindAssistantDone})
			if text != "" {
				c.handlers.event(Event{Kind: KindAssistant, Text: text})
			}

		case ChatStateError, ChatStateAborted:
			errText, _ := payload["errorMessage"].(string)
			if errText == "" {
				errText = content.ExtractText(payload["message"])
			}
			if errText == "" {
				errText = "Agent error."
			}
			c.handlers.event(Event{Kind: KindError, Text: errText})
		}
	}
}

// sendHandshake answers the gateway's connect.challenge. A successful
// response marks the connection authenticated; a rejection surfaces as an
// error state and fails any pending verification.
func (c *Client) sendHandshake(cfg Config) {
	c.mu.Lock()
	id := c.nextIDLocked()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return
	}
	c.pending[id] = &pending{
		resolve: func(payload any) {
			c.mu.Lock()
			c.authenticated = true
			c.mu.Unlock()
			c.setState(StateConnected, "")
			c.checkServerVersion(payload)
			c.settleVerify(nil)
		},
		reject: func(err error) {
			c.setState(StateError, err.Error())
			c.settleVerify(err)
		},
	}
	c.mu.Unlock()

	params := map[string]any{
		"minProtocol": ProtocolVersion,
		"maxProtocol": ProtocolVersion,
		"client": map[string]any{
			"id":       clientID,
			"version":  clientVersion,
			"platform": runtime.GOOS,
			"mode":     clientMode,
		},
		"role":   "operator",
		"scopes": []string{"operator.admin"},
	}

	if cfg.Token != "" || cfg.Password != "" {
		auth := map[string]any{}
		if cfg.Token != "" {
			auth["token"] = cfg.Token
		}
		if cfg.Password != "" {
			auth["password"] = cfg.Password
		}
		params["auth"] = auth
	}

	err := c.writeFrame(conn, &Frame{
		Type:   FrameTypeRequest,
		ID:     id,
		Method: MethodConnect,
		Params: params,
	})
	if err != nil {
		c.rejectPending(id, fmt.Errorf("send handshake: %w", err))
	}
}

// checkServerVersion warns when the hello payload names a gateway release
// older than the oldest tested one. Missing or unparseable versions pass.
func (c *Client) checkServerVersion(payload any) {
	m, ok := payload.(map[string]any)
	if !ok {
		return
	}
	srv, ok := m["server"].(map[string]any)
	if !ok {
		return
	}
	raw, _ := srv["version"].(string)
	if raw == "" {
		return
	}

	v, err := semver.NewVersion(raw)
	if err != nil {
		return
	}
	if v.LessThan(minServerVersion) {
		logger.Warn().
			Str("server_version", raw).
			Str("min_tested", minServerVersion.String()).
			Msg("gateway is older than the oldest tested release")
	}
}

func (c *Client) rejectPending(id string, err error) {
	c.mu.Lock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if ok {
		p.reject(err)
	}
}

func rejectAll(stale map[string]*pending, err error) {
	for _, p := range stale {
		p.reject(err)
	}
}

// settleVerify resolves an outstanding ConnectAndVerify exactly once.
func (c *Client) settleVerify(err error) {
	c.mu.Lock()
	v := c.verify
	c.verify = nil
	c.mu.Unlock()
	if v != nil {
		v.ch <- err
	}
}

func (c *Client) setState(state ConnState, note string) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.handlers.state(state, note)
}
