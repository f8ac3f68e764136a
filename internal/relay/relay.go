// Package relay wires a host application to one relay session.
//
// Lifecycle order:
// - New validates the host and token and builds session, bridge and dispatcher
// - Start subscribes host events, then dials
// - Close closes the socket; host subscriptions stay in place
package relay

import (
	"errors"
	"strings"

	"github.com/danmuck/edgeio/internal/bridge"
	"github.com/danmuck/edgeio/internal/dispatch"
	"github.com/danmuck/edgeio/internal/host"
	"github.com/danmuck/edgeio/internal/protocol"
	"github.com/danmuck/edgeio/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

var (
	ErrHostRequired  = errors.New("relay: host required")
	ErrTokenRequired = errors.New("relay: token required")
)

// Config holds everything needed to build a Relay besides host and token.
type Config struct {
	Session        session.Config
	SessionOptions []session.Option
	Strategies     map[string]dispatch.Strategy
}

func DefaultConfig() Config {
	return Config{Session: session.DefaultConfig()}
}

type Option func(*Config)

// WithSessionConfig replaces the session configuration. The token passed to
// New always wins over cfg.Token.
func WithSessionConfig(cfg session.Config) Option {
	return func(c *Config) { c.Session = cfg }
}

func WithSessionOptions(opts ...session.Option) Option {
	return func(c *Config) { c.SessionOptions = append(c.SessionOptions, opts...) }
}

// WithStrategy registers an extra message hook strategy the relay may
// select with a botie command.
func WithStrategy(name string, s dispatch.Strategy) Option {
	return func(c *Config) {
		if c.Strategies == nil {
			c.Strategies = map[string]dispatch.Strategy{}
		}
		c.Strategies[name] = s
	}
}

// Relay mirrors host events to the relay and applies relay commands.
type Relay struct {
	host       host.Host
	session    *session.Session
	bridge     *bridge.Bridge
	dispatcher *dispatch.Dispatcher
	hooks      *dispatch.HookSlot
	registry   *dispatch.Registry
}

func New(h host.Host, token string, opts ...Option) (*Relay, error) {
	if h == nil {
		return nil, ErrHostRequired
	}
	if strings.TrimSpace(token) == "" {
		return nil, ErrTokenRequired
	}
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.Session.Token = token

	registry := dispatch.NewRegistry()
	for name, s := range cfg.Strategies {
		if err := registry.Register(name, s); err != nil {
			return nil, err
		}
	}

	r := &Relay{
		host:     h,
		hooks:    dispatch.NewHookSlot(),
		registry: registry,
	}
	sessionOpts := []session.Option{
		session.WithVersion(h.Version),
		session.WithHandler(session.HandlerFunc(r.handleEnvelope)),
		session.WithErrorSink(r.forwardError),
	}
	sessionOpts = append(sessionOpts, cfg.SessionOptions...)
	s, err := session.New(cfg.Session, sessionOpts...)
	if err != nil {
		return nil, err
	}
	r.session = s
	r.dispatcher = dispatch.New(h, s, r.hooks, registry)
	r.bridge = bridge.New(h, s, r.hooks)
	return r, nil
}

// Start attaches the bridge and makes the first connection attempt.
func (r *Relay) Start() {
	log.Info().Msgf("relay.Relay.Start endpoint=%q", r.session.Snapshot().Endpoint)
	r.bridge.Attach()
	r.session.Start()
}

func (r *Relay) Close() error {
	log.Info().Msg("relay.Relay.Close")
	return r.session.Close()
}

func (r *Relay) Session() *session.Session {
	return r.session
}

func (r *Relay) Hooks() *dispatch.HookSlot {
	return r.hooks
}

// Status is the operator view of a relay.
type Status struct {
	Session    session.Snapshot `json:"session"`
	Hook       string           `json:"hook"`
	Strategies []string         `json:"strategies"`
}

func (r *Relay) Status() Status {
	return Status{
		Session:    r.session.Snapshot(),
		Hook:       r.hooks.Name(),
		Strategies: r.registry.Names(),
	}
}

func (r *Relay) handleEnvelope(env protocol.Envelope) {
	r.dispatcher.HandleEnvelope(env)
}

// forwardError surfaces transport errors on the host's error channel.
func (r *Relay) forwardError(err error) {
	r.host.Emit(host.EventError, err)
}
