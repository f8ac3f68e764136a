package host

import (
	"reflect"
	"sync"

	"github.com/rs/zerolog/log"
)

// Bus is an in-process event multiplexer. Handlers run synchronously on the
// emitting goroutine in subscription order.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func NewBus() *Bus {
	return &Bus{handlers: map[string][]Handler{}}
}

func (b *Bus) On(event string, fn Handler) {
	if fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], fn)
}

func (b *Bus) Emit(event string, payload any) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[event]...)
	b.mu.RUnlock()
	if len(handlers) == 0 {
		log.Trace().Msgf("host.Bus.Emit event=%s without subscribers", event)
		return
	}
	for _, fn := range handlers {
		fn(payload)
	}
}

// Subscribers reports how many handlers are registered for event.
func (b *Bus) Subscribers(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[event])
}

// Static is a Host with fixed identity, useful for embedding and tests.
type Static struct {
	*Bus

	mu      sync.Mutex
	version string
	user    Contact
	resets  int
	onReset func()
}

// NewStatic builds a Host reporting version and no user.
func NewStatic(version string) *Static {
	return &Static{Bus: NewBus(), version: version}
}

func (s *Static) Version() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *Static) User() (Contact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, s.user != nil
}

// SetUser replaces the current user. A nil Contact, including a typed nil
// such as PlainContact(nil), logs the user out.
func (s *Static) SetUser(c Contact) {
	if isNilContact(c) {
		c = nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = c
}

func isNilContact(c Contact) bool {
	if c == nil {
		return true
	}
	v := reflect.ValueOf(c)
	switch v.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return v.IsNil()
	}
	return false
}

// OnReset installs a callback run on every Reset.
func (s *Static) OnReset(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReset = fn
}

func (s *Static) Reset() {
	s.mu.Lock()
	s.resets++
	fn := s.onReset
	s.mu.Unlock()
	log.Info().Msg("host.Static.Reset")
	if fn != nil {
		fn()
	}
}

// Resets reports how many times Reset ran.
func (s *Static) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resets
}
