package dispatch

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/danmuck/edgeio/internal/host"
	"github.com/danmuck/edgeio/internal/protocol"
	"github.com/danmuck/edgeio/internal/testutil/testlog"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []protocol.Envelope
	err  error
}

func (r *recordingSender) Send(env protocol.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, env)
	return nil
}

func (r *recordingSender) envelopes() []protocol.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Envelope(nil), r.sent...)
}

func newTestDispatcher() (*Dispatcher, *host.Static, *recordingSender) {
	h := host.NewStatic("1.0.0")
	sender := &recordingSender{}
	return New(h, sender, nil, nil), h, sender
}

func TestUpdateSendsLoginForCurrentUser(t *testing.T) {
	testlog.Start(t)
	d, h, sender := newTestDispatcher()
	h.SetUser(host.PlainContact{"id": "u1"})

	d.HandleEnvelope(protocol.Decode([]byte(`{"name":"update","payload":{}}`)))

	got := sender.envelopes()
	want := []protocol.Envelope{{Name: "login", Payload: map[string]any{"id": "u1"}}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected outbound: %#v", got)
	}
	data, err := protocol.Encode(got[0])
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data) != `{"name":"login","payload":{"id":"u1"}}` {
		t.Fatalf("unexpected wire text: %s", data)
	}
}

func TestUpdateWithoutUserIsNoop(t *testing.T) {
	testlog.Start(t)
	d, _, sender := newTestDispatcher()

	d.HandleEnvelope(protocol.Envelope{Name: "update", Payload: map[string]any{}})

	if n := len(sender.envelopes()); n != 0 {
		t.Fatalf("expected no outbound, got %d", n)
	}
}

func TestUpdateWithTypedNilUserIsNoop(t *testing.T) {
	testlog.Start(t)
	d, h, sender := newTestDispatcher()
	h.SetUser(host.PlainContact(nil))

	d.HandleEnvelope(protocol.Envelope{Name: protocol.NameUpdate})

	if got := sender.envelopes(); len(got) != 0 {
		t.Fatalf("expected no outbound login, got %#v", got)
	}
}

func TestUpdateSendFailureIsNotFatal(t *testing.T) {
	testlog.Start(t)
	d, h, sender := newTestDispatcher()
	h.SetUser(host.PlainContact{"id": "u1"})
	sender.err = errors.New("session: not connected")

	d.HandleEnvelope(protocol.Envelope{Name: "update"})
}

func TestResetDelegatesToHost(t *testing.T) {
	testlog.Start(t)
	d, h, sender := newTestDispatcher()

	d.HandleEnvelope(protocol.Envelope{Name: "reset", Payload: "now"})

	if h.Resets() != 1 {
		t.Fatalf("expected one reset, got %d", h.Resets())
	}
	if len(sender.envelopes()) != 0 {
		t.Fatalf("reset must not send")
	}
}

func TestSysAndUnknownChangeNothing(t *testing.T) {
	testlog.Start(t)
	d, h, sender := newTestDispatcher()

	d.HandleEnvelope(protocol.Decode([]byte(`{"name":"sys","payload":null}`)))
	d.HandleEnvelope(protocol.Decode([]byte("hello")))
	d.HandleEnvelope(protocol.Envelope{Name: "teleport", Payload: 1})

	if len(sender.envelopes()) != 0 || h.Resets() != 0 {
		t.Fatalf("unexpected effects: sent=%d resets=%d", len(sender.envelopes()), h.Resets())
	}
	if d.hooks.Name() != StrategyNoop {
		t.Fatalf("hook should be untouched: %s", d.hooks.Name())
	}
}

func TestBotieInstallsRegisteredStrategy(t *testing.T) {
	testlog.Start(t)
	d, _, sender := newTestDispatcher()

	d.HandleEnvelope(protocol.Decode([]byte(`{"name":"botie","payload":{"onMessage":true,"strategy":"forward"}}`)))
	if d.hooks.Name() != StrategyForward {
		t.Fatalf("expected forward hook, got %s", d.hooks.Name())
	}

	d.hooks.Invoke(host.PlainContact{"text": "ding"})
	d.hooks.Invoke("dong")
	want := []protocol.Envelope{
		{Name: "message", Payload: map[string]any{"text": "ding"}},
		{Name: "message", Payload: "dong"},
	}
	if got := sender.envelopes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected forwarded messages: %#v", got)
	}
}

func TestBotieScriptFieldNamesStrategy(t *testing.T) {
	testlog.Start(t)
	d, _, _ := newTestDispatcher()

	d.HandleEnvelope(protocol.Envelope{Name: "botie", Payload: map[string]any{"onMessage": true, "script": " log "}})
	if d.hooks.Name() != StrategyLog {
		t.Fatalf("expected log hook, got %s", d.hooks.Name())
	}
}

func TestBotieRejectionsKeepExistingHook(t *testing.T) {
	testlog.Start(t)
	d, _, _ := newTestDispatcher()
	d.HandleEnvelope(protocol.Envelope{Name: "botie", Payload: map[string]any{"onMessage": true, "strategy": "log"}})

	rejected := []any{
		nil,
		"function (m) { return m }",
		map[string]any{"strategy": "forward"},
		map[string]any{"onMessage": false, "strategy": "forward"},
		map[string]any{"onMessage": true, "script": "(function (m) { process.exit(1) })"},
		map[string]any{"onMessage": true},
	}
	for _, payload := range rejected {
		d.HandleEnvelope(protocol.Envelope{Name: "botie", Payload: payload})
		if d.hooks.Name() != StrategyLog {
			t.Fatalf("payload %#v replaced the hook with %s", payload, d.hooks.Name())
		}
	}
}

func TestBotieNilHookIsRejected(t *testing.T) {
	testlog.Start(t)
	d, _, _ := newTestDispatcher()
	if err := d.registry.Register("broken", func(SendFunc) MessageHook { return nil }); err != nil {
		t.Fatalf("register: %v", err)
	}

	d.HandleEnvelope(protocol.Envelope{Name: "botie", Payload: map[string]any{"onMessage": true, "strategy": "broken"}})
	if d.hooks.Name() != StrategyNoop {
		t.Fatalf("nil hook must not be installed, got %s", d.hooks.Name())
	}
	d.hooks.Invoke("still safe")
}

func TestTruthy(t *testing.T) {
	testlog.Start(t)
	for _, v := range []any{true, "yes", float64(1), map[string]any{}} {
		if !truthy(v) {
			t.Fatalf("expected truthy: %#v", v)
		}
	}
	for _, v := range []any{nil, false, "", float64(0)} {
		if truthy(v) {
			t.Fatalf("expected falsy: %#v", v)
		}
	}
}
