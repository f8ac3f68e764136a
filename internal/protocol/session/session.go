package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/edgeio/internal/auth"
	"github.com/danmuck/edgeio/internal/observability"
	"github.com/danmuck/edgeio/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrEndpointRequired = errors.New("session: endpoint required")
	ErrTokenRequired    = errors.New("session: token required")
	ErrNotConnected     = errors.New("session: not connected")
	ErrDialFailed       = errors.New("session: dial failed")
)

// Handler receives decoded inbound envelopes in arrival order.
type Handler interface {
	HandleEnvelope(env protocol.Envelope)
}

type HandlerFunc func(env protocol.Envelope)

func (f HandlerFunc) HandleEnvelope(env protocol.Envelope) { f(env) }

// ErrorSink receives transport errors for the host's own error channel.
type ErrorSink func(err error)

type Option func(*Session)

func WithDialer(d Dialer) Option {
	return func(s *Session) { s.dialer = d }
}

func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

func WithHandler(h Handler) Option {
	return func(s *Session) { s.handler = h }
}

func WithErrorSink(fn ErrorSink) Option {
	return func(s *Session) { s.onError = fn }
}

// WithVersion supplies the host version announced in the greeting frame.
func WithVersion(fn func() string) Option {
	return func(s *Session) { s.version = fn }
}

// pendingReconnect is the single armed reconnect attempt.
type pendingReconnect struct {
	deadline time.Time
	delay    time.Duration
	timer    Timer
}

// Snapshot is a point-in-time view of a Session.
type Snapshot struct {
	Endpoint    string        `json:"endpoint"`
	State       string        `json:"state"`
	Subprotocol string        `json:"subprotocol"`
	Attempt     int           `json:"attempt"`
	NextDelay   time.Duration `json:"next_delay"`
	ReconnectAt time.Time     `json:"reconnect_at,omitzero"`
}

// Session owns the relay socket and its reconnect state machine.
type Session struct {
	cfg     Config
	dialer  Dialer
	clock   Clock
	handler Handler
	onError ErrorSink
	version func() string
	rng     *rand.Rand

	mu         sync.Mutex
	state      State
	conn       Conn
	negotiated string
	backoff    backoffState
	pending    *pendingReconnect

	writeMu sync.Mutex
}

// New validates cfg and builds an unstarted Session.
func New(cfg Config, opts ...Option) (*Session, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, ErrEndpointRequired
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, ErrTokenRequired
	}
	cfg = cfg.WithDefaults()
	if err := cfg.ValidateClientTransport(); err != nil {
		return nil, err
	}

	s := &Session{
		cfg:     cfg,
		clock:   realClock{},
		version: func() string { return "unknown" },
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		state:   StateDisconnected,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialer == nil {
		d, err := NewWebSocketDialer(cfg)
		if err != nil {
			return nil, err
		}
		s.dialer = d
	}
	log.Debug().Msgf(
		"session.New endpoint=%q subprotocol=%q token=%s",
		cfg.Endpoint,
		cfg.Subprotocol,
		maskToken(cfg.Token),
	)
	return s, nil
}

// Start makes the first connection attempt. Failures are retried in the
// background; Start itself never fails.
func (s *Session) Start() {
	s.connect()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Connected() bool {
	return s.State() == StateConnected
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Endpoint:    s.cfg.Endpoint,
		State:       s.state.String(),
		Subprotocol: s.negotiated,
		Attempt:     s.backoff.attempt,
		NextDelay:   s.backoff.next,
	}
	if s.pending != nil {
		snap.ReconnectAt = s.pending.deadline
	}
	return snap
}

func (s *Session) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", auth.Header(s.cfg.Token))
	return h
}

func (s *Session) setState(state State) {
	s.state = state
	observability.SetSessionState(state.String())
}

func (s *Session) connect() {
	s.mu.Lock()
	if state := s.state; state == StateConnecting || state == StateConnected {
		s.mu.Unlock()
		log.Warn().Msgf("session.Session.connect skipped state=%s", state)
		return
	}
	s.setState(StateConnecting)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.HandshakeTimeout)
	conn, err := s.dialer.Dial(ctx, DialRequest{
		Endpoint:     s.cfg.Endpoint,
		Header:       s.header(),
		Subprotocols: []string{s.cfg.Subprotocol},
	})
	cancel()
	if err != nil {
		observability.RecordConnectAttempt("failed")
		s.handleError(nil, fmt.Errorf("%w: %s: %v", ErrDialFailed, s.cfg.Endpoint, err))
		return
	}

	greeting := protocol.Greeting(s.cfg.HostName, s.version())

	// writeMu is held from the Connected transition until the greeting is
	// on the wire, so no other frame can precede it.
	s.writeMu.Lock()
	s.mu.Lock()
	if s.state != StateConnecting {
		// closed while the handshake was in flight
		s.mu.Unlock()
		s.writeMu.Unlock()
		observability.RecordConnectAttempt("discarded")
		_ = conn.Close()
		return
	}
	negotiated := conn.Subprotocol()
	s.conn = conn
	s.negotiated = negotiated
	s.backoff.reset()
	s.setState(StateConnected)
	s.mu.Unlock()
	greetErr := s.writeLocked(conn, websocket.TextMessage, []byte(greeting))
	s.writeMu.Unlock()
	observability.RecordConnectAttempt("ok")

	if negotiated != s.cfg.Subprotocol {
		log.Warn().Msgf(
			"session.Session.connect subprotocol mismatch declared=%q negotiated=%q",
			s.cfg.Subprotocol,
			negotiated,
		)
	}
	log.Info().Msgf("session.Session.connect connected endpoint=%q subprotocol=%q", s.cfg.Endpoint, negotiated)

	if greetErr != nil {
		log.Warn().Msgf("session.Session.connect greeting failed err=%v", greetErr)
	}
	go s.readLoop(conn)
}

func (s *Session) readLoop(conn Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if isPeerClose(err) {
				s.handleClose(conn, err)
			} else {
				s.handleError(conn, err)
			}
			return
		}
		observability.RecordFrame("in", "ok")
		env := protocol.Decode(data)
		log.Trace().Msgf("session.Session.readLoop recv %s", env)
		if s.handler != nil {
			s.handler.HandleEnvelope(env)
		}
	}
}

// detach drops conn as the live socket and moves to Reconnecting. A nil conn
// stands for a failed dial. It reports false for stale events: a conn that
// was already replaced or closed, or a dial that was abandoned by Close.
func (s *Session) detach(conn Conn) bool {
	s.mu.Lock()
	if conn == nil {
		if s.state != StateConnecting {
			s.mu.Unlock()
			return false
		}
	} else if s.conn != conn {
		s.mu.Unlock()
		return false
	}
	s.conn = nil
	s.negotiated = ""
	s.setState(StateReconnecting)
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	return true
}

func (s *Session) handleClose(conn Conn, err error) {
	if !s.detach(conn) {
		return
	}
	log.Info().Msgf("session.Session.handleClose closed err=%v", err)
	s.Reconnect()
}

func (s *Session) handleError(conn Conn, err error) {
	if !s.detach(conn) {
		return
	}
	log.Warn().Msgf("session.Session.handleError err=%v", err)
	if s.onError != nil {
		s.onError(err)
	}
	s.Reconnect()
}

// Reconnect arms one reconnect attempt using capped exponential backoff.
// It is a no-op while connected, while a handshake is in flight, or while
// an attempt is already pending.
func (s *Session) Reconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == StateConnected:
		log.Warn().Msg("session.Session.Reconnect on an already connected session")
		return
	case s.state == StateConnecting:
		log.Warn().Msg("session.Session.Reconnect while a handshake is in flight")
		return
	case s.pending != nil:
		log.Warn().Msg("session.Session.Reconnect on an already reconnecting session")
		return
	}

	if s.state != StateDisconnected {
		s.setState(StateReconnecting)
	}
	delay := s.backoff.advance(s.cfg.Backoff, s.rng)
	p := &pendingReconnect{
		deadline: s.clock.Now().Add(delay),
		delay:    delay,
	}
	p.timer = s.clock.AfterFunc(delay, func() { s.fire(p) })
	s.pending = p
	observability.RecordReconnectScheduled(delay)
	log.Warn().Msgf("session.Session.Reconnect attempt=%d in %v", s.backoff.attempt, delay)
}

func (s *Session) fire(p *pendingReconnect) {
	s.mu.Lock()
	if s.pending != p {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	s.mu.Unlock()
	s.connect()
}

// Send encodes env and writes it to the live socket. Delivery is
// fire-and-forget: there is no ack, retry or queueing.
func (s *Session) Send(env protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	log.Trace().Msgf("session.Session.Send %s", env)
	return s.write(websocket.TextMessage, data)
}

// SendText writes one unstructured text frame.
func (s *Session) SendText(text string) error {
	return s.write(websocket.TextMessage, []byte(text))
}

func (s *Session) write(messageType int, data []byte) error {
	s.mu.Lock()
	conn := s.conn
	state := s.state
	s.mu.Unlock()
	if conn == nil || state != StateConnected {
		observability.RecordFrame("out", "not_connected")
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.writeLocked(conn, messageType, data)
}

// writeLocked writes one frame to conn. The caller holds writeMu.
func (s *Session) writeLocked(conn Conn, messageType int, data []byte) error {
	_ = conn.SetWriteDeadline(s.clock.Now().Add(s.cfg.WriteTimeout))
	if err := conn.WriteMessage(messageType, data); err != nil {
		observability.RecordFrame("out", "failed")
		log.Warn().Msgf("session.Session.write err=%v", err)
		return err
	}
	observability.RecordFrame("out", "ok")
	return nil
}

// Close closes the live socket and leaves the session Disconnected. A
// reconnect that is already pending is not cancelled and will still fire.
func (s *Session) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.negotiated = ""
	s.setState(StateDisconnected)
	pending := s.pending != nil
	s.mu.Unlock()

	if pending {
		log.Warn().Msg("session.Session.Close with a pending reconnect; the attempt will still fire")
	}
	if conn == nil {
		return nil
	}
	s.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		s.clock.Now().Add(time.Second),
	)
	s.writeMu.Unlock()
	return conn.Close()
}

func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return token[:2] + strings.Repeat("*", len(token)-4) + token[len(token)-2:]
}
