package dispatch

import (
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// MessageHook handles one inbound host message.
type MessageHook func(message any)

type hookEntry struct {
	name string
	fn   MessageHook
}

// HookSlot holds the current message hook. It starts with the noop hook
// and is replaced whole by the dispatcher.
type HookSlot struct {
	current atomic.Pointer[hookEntry]
}

func NewHookSlot() *HookSlot {
	s := &HookSlot{}
	s.current.Store(&hookEntry{name: StrategyNoop, fn: noopHook})
	return s
}

// Invoke runs the current hook with message.
func (s *HookSlot) Invoke(message any) {
	s.current.Load().fn(message)
}

// Name reports which strategy fills the slot.
func (s *HookSlot) Name() string {
	return s.current.Load().name
}

func (s *HookSlot) install(name string, fn MessageHook) {
	prev := s.current.Swap(&hookEntry{name: name, fn: fn})
	log.Info().Msgf("dispatch.HookSlot.install hook=%s replaced=%s", name, prev.name)
}

func noopHook(message any) {
	log.Debug().Msg("dispatch.noopHook message ignored until the relay installs a hook")
}
