// Package bridge mirrors selected host events to the relay.
//
// Delivery is at-most-once: events raised while the session is not
// connected are dropped, never buffered.
package bridge

import (
	"github.com/danmuck/edgeio/internal/dispatch"
	"github.com/danmuck/edgeio/internal/host"
	"github.com/danmuck/edgeio/internal/observability"
	"github.com/danmuck/edgeio/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Session is the part of the relay session the bridge forwards through.
type Session interface {
	Connected() bool
	Send(env protocol.Envelope) error
}

// Projection maps a host payload to its wire form.
type Projection func(payload any) any

// Hook is one mirrored host event.
type Hook struct {
	Event   string
	Project Projection
}

// HookEvents is the fixed table of mirrored host events.
var HookEvents = []Hook{
	{Event: host.EventScan, Project: passThrough},
	{Event: host.EventLogin, Project: projectContact},
	{Event: host.EventLogout, Project: projectContact},
	{Event: host.EventError, Project: projectError},
	{Event: host.EventHeartbeat, Project: passThrough},
}

type Bridge struct {
	host    host.Host
	session Session
	hooks   *dispatch.HookSlot
}

func New(h host.Host, s Session, hooks *dispatch.HookSlot) *Bridge {
	return &Bridge{host: h, session: s, hooks: hooks}
}

// Attach subscribes the message hook and every HookEvents entry. Calling it
// twice subscribes twice.
func (b *Bridge) Attach() {
	b.host.On(host.EventMessage, b.onMessage)
	for _, hook := range HookEvents {
		hook := hook // per-iteration copy; go directive is pre-1.22 loopvar semantics
		b.host.On(hook.Event, func(payload any) {
			b.forward(hook, payload)
		})
	}
	log.Debug().Msgf("bridge.Bridge.Attach hooks=%d", len(HookEvents)+1)
}

func (b *Bridge) onMessage(payload any) {
	b.hooks.Invoke(payload)
}

func (b *Bridge) forward(hook Hook, payload any) {
	if !b.session.Connected() {
		log.Debug().Msgf("bridge.Bridge.forward event=%s without a connected session", hook.Event)
		observability.RecordBridgeEvent(hook.Event, "dropped")
		return
	}
	env := protocol.Envelope{Name: hook.Event, Payload: hook.Project(payload)}
	if err := b.session.Send(env); err != nil {
		log.Debug().Msgf("bridge.Bridge.forward event=%s send failed err=%v", hook.Event, err)
		observability.RecordBridgeEvent(hook.Event, "failed")
		return
	}
	observability.RecordBridgeEvent(hook.Event, "sent")
}

func passThrough(payload any) any {
	return payload
}

// projectContact substitutes a contact's plain-data form.
func projectContact(payload any) any {
	if c, ok := payload.(host.Contact); ok && c != nil {
		return c.PlainData()
	}
	return payload
}

// projectError sends error values as their message; error types rarely
// carry exported fields and would encode as {}.
func projectError(payload any) any {
	if err, ok := payload.(error); ok && err != nil {
		return err.Error()
	}
	return payload
}
