package dispatch

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/edgeio/internal/host"
	"github.com/danmuck/edgeio/internal/protocol"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidStrategy   = errors.New("dispatch: invalid hook strategy")
	ErrDuplicateStrategy = errors.New("dispatch: duplicate hook strategy")
)

// Built-in strategy names.
const (
	StrategyNoop    = "noop"
	StrategyLog     = "log"
	StrategyForward = "forward"
)

// SendFunc is the only capability a strategy receives: sending one envelope
// to the relay.
type SendFunc func(env protocol.Envelope) error

// Strategy builds a message hook. It sees nothing but the send capability.
type Strategy func(send SendFunc) MessageHook

// Registry maps strategy names to factories.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry returns a registry holding the built-in strategies.
func NewRegistry() *Registry {
	r := &Registry{strategies: map[string]Strategy{}}
	_ = r.Register(StrategyNoop, func(SendFunc) MessageHook { return noopHook })
	_ = r.Register(StrategyLog, logStrategy)
	_ = r.Register(StrategyForward, forwardStrategy)
	return r
}

func (r *Registry) Register(name string, s Strategy) error {
	name = strings.TrimSpace(name)
	if name == "" || s == nil {
		return fmt.Errorf("%w: %q", ErrInvalidStrategy, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.strategies[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateStrategy, name)
	}
	r.strategies[name] = s
	return nil
}

func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	return s, ok
}

// Names lists registered strategies in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func logStrategy(SendFunc) MessageHook {
	return func(message any) {
		log.Info().Msgf("dispatch.logStrategy message=%v", message)
	}
}

func forwardStrategy(send SendFunc) MessageHook {
	return func(message any) {
		if c, ok := message.(host.Contact); ok {
			message = c.PlainData()
		}
		if err := send(protocol.Envelope{Name: protocol.NameMessage, Payload: message}); err != nil {
			log.Debug().Msgf("dispatch.forwardStrategy dropped err=%v", err)
		}
	}
}
