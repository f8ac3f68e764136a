package dispatch

import (
	"strings"

	"github.com/danmuck/edgeio/internal/host"
	"github.com/danmuck/edgeio/internal/observability"
	"github.com/danmuck/edgeio/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Sender writes envelopes to the relay.
type Sender interface {
	Send(env protocol.Envelope) error
}

// Dispatcher routes inbound relay envelopes to local effects.
type Dispatcher struct {
	host     host.Host
	sender   Sender
	hooks    *HookSlot
	registry *Registry
}

func New(h host.Host, sender Sender, hooks *HookSlot, registry *Registry) *Dispatcher {
	if hooks == nil {
		hooks = NewHookSlot()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	return &Dispatcher{
		host:     h,
		sender:   sender,
		hooks:    hooks,
		registry: registry,
	}
}

// HandleEnvelope applies one inbound command. It never fails; rejected and
// unknown commands are logged and counted.
func (d *Dispatcher) HandleEnvelope(env protocol.Envelope) {
	switch env.Name {
	case protocol.NameBotie:
		d.botie(env.Payload)
	case protocol.NameReset:
		log.Debug().Msgf("dispatch.Dispatcher reset payload=%v", env.Payload)
		d.host.Reset()
		observability.RecordCommand(env.Name, "ok")
	case protocol.NameUpdate:
		d.update(env.Payload)
	case protocol.NameSys:
		observability.RecordCommand(env.Name, "ok")
	default:
		log.Warn().Msgf("dispatch.Dispatcher unknown command %s: %v", env.Name, env.Payload)
		observability.RecordCommand("unknown", "ignored")
	}
}

// update answers a status refresh with a synthetic login for the current
// user.
func (d *Dispatcher) update(payload any) {
	log.Debug().Msgf("dispatch.Dispatcher update payload=%v", payload)
	user, ok := d.host.User()
	if !ok || user == nil {
		observability.RecordCommand(protocol.NameUpdate, "no_user")
		return
	}
	err := d.sender.Send(protocol.Envelope{
		Name:    protocol.NameLogin,
		Payload: user.PlainData(),
	})
	if err != nil {
		log.Warn().Msgf("dispatch.Dispatcher update send failed err=%v", err)
		observability.RecordCommand(protocol.NameUpdate, "send_failed")
		return
	}
	observability.RecordCommand(protocol.NameUpdate, "ok")
}

// botie swaps the message hook for a registered strategy. The request must
// declare onMessage and name the strategy in "strategy" (or "script").
func (d *Dispatcher) botie(payload any) {
	req, ok := payload.(map[string]any)
	if !ok || !truthy(req["onMessage"]) {
		log.Warn().Msgf("dispatch.Dispatcher botie without onMessage intent payload=%v", payload)
		observability.RecordCommand(protocol.NameBotie, "ignored")
		return
	}
	name := strategyName(req)
	strategy, ok := d.registry.Get(name)
	if !ok {
		log.Warn().Msgf(
			"dispatch.Dispatcher botie strategy=%q is not registered; keeping hook=%s",
			name,
			d.hooks.Name(),
		)
		observability.RecordCommand(protocol.NameBotie, "rejected")
		return
	}
	fn := strategy(d.sender.Send)
	if fn == nil {
		log.Warn().Msgf("dispatch.Dispatcher botie strategy=%q built no hook; keeping hook=%s", name, d.hooks.Name())
		observability.RecordCommand(protocol.NameBotie, "rejected")
		return
	}
	d.hooks.install(name, fn)
	observability.RecordCommand(protocol.NameBotie, "ok")
}

func strategyName(req map[string]any) string {
	for _, key := range []string{"strategy", "script"} {
		if v, ok := req[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	default:
		return true
	}
}
