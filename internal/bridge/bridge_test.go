package bridge

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/danmuck/edgeio/internal/dispatch"
	"github.com/danmuck/edgeio/internal/host"
	"github.com/danmuck/edgeio/internal/protocol"
	"github.com/danmuck/edgeio/internal/testutil/testlog"
)

type fakeSession struct {
	mu        sync.Mutex
	connected bool
	sent      []protocol.Envelope
}

func (f *fakeSession) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSession) Send(env protocol.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeSession) envelopes() []protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]protocol.Envelope(nil), f.sent...)
}

// contact is a structured host object; only its plain form may cross the wire.
type contact struct {
	id     string
	handle func()
}

func (c *contact) PlainData() any {
	return map[string]any{"id": c.id}
}

func attach(t *testing.T, connected bool) (*host.Bus, *fakeSession, *dispatch.HookSlot) {
	t.Helper()
	bus := host.NewBus()
	h := &busHost{Bus: bus}
	s := &fakeSession{connected: connected}
	slot := dispatch.NewHookSlot()
	New(h, s, slot).Attach()
	return bus, s, slot
}

type busHost struct {
	*host.Bus
}

func (*busHost) Version() string { return "1.0.0" }
func (*busHost) User() (host.Contact, bool) { return nil, false }
func (*busHost) Reset() {}

func TestAttachSubscribesFixedHooks(t *testing.T) {
	testlog.Start(t)
	bus, _, _ := attach(t, true)

	for _, event := range []string{"scan", "login", "logout", "error", "heartbeat", "message"} {
		if n := bus.Subscribers(event); n != 1 {
			t.Fatalf("event %s subscribers=%d", event, n)
		}
	}
	if n := bus.Subscribers("ding"); n != 0 {
		t.Fatalf("unexpected subscription for ding")
	}
}

func TestLoginLogoutProjectContact(t *testing.T) {
	testlog.Start(t)
	bus, s, _ := attach(t, true)

	bus.Emit("login", &contact{id: "u1", handle: func() {}})
	bus.Emit("logout", &contact{id: "u1"})
	bus.Emit("login", map[string]any{"id": "plain"})

	want := []protocol.Envelope{
		{Name: "login", Payload: map[string]any{"id": "u1"}},
		{Name: "logout", Payload: map[string]any{"id": "u1"}},
		{Name: "login", Payload: map[string]any{"id": "plain"}},
	}
	if got := s.envelopes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected envelopes: %#v", got)
	}
}

func TestOtherEventsPassThrough(t *testing.T) {
	testlog.Start(t)
	bus, s, _ := attach(t, true)
	c := &contact{id: "u2"}

	bus.Emit("scan", map[string]any{"url": "https://qr.invalid", "code": 0})
	bus.Emit("heartbeat", c)
	bus.Emit("error", errors.New("boom"))

	got := s.envelopes()
	if len(got) != 3 {
		t.Fatalf("unexpected envelope count: %d", len(got))
	}
	if got[0].Name != "scan" || !reflect.DeepEqual(got[0].Payload, map[string]any{"url": "https://qr.invalid", "code": 0}) {
		t.Fatalf("scan not passed through: %#v", got[0])
	}
	if got[1].Name != "heartbeat" || got[1].Payload != c {
		t.Fatalf("heartbeat payload should not be projected: %#v", got[1])
	}
	if got[2].Name != "error" || got[2].Payload != "boom" {
		t.Fatalf("unexpected error envelope: %#v", got[2])
	}
}

func TestErrorChannelOnlyFlattensErrorValues(t *testing.T) {
	testlog.Start(t)
	bus, s, _ := attach(t, true)
	detail := map[string]any{"code": 401, "reason": "expired"}

	bus.Emit("error", fmt.Errorf("dial: %w", errors.New("refused")))
	bus.Emit("error", detail)
	bus.Emit("error", "plain text")

	want := []protocol.Envelope{
		{Name: "error", Payload: "dial: refused"},
		{Name: "error", Payload: detail},
		{Name: "error", Payload: "plain text"},
	}
	if got := s.envelopes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected error envelopes: %#v", got)
	}
}

func TestEventsDroppedWhileDisconnected(t *testing.T) {
	testlog.Start(t)
	bus, s, _ := attach(t, false)

	for _, event := range []string{"scan", "login", "logout", "error", "heartbeat"} {
		bus.Emit(event, &contact{id: "u1"})
	}
	if n := len(s.envelopes()); n != 0 {
		t.Fatalf("expected zero sends while disconnected, got %d", n)
	}

	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	bus.Emit("heartbeat", "beat")
	if n := len(s.envelopes()); n != 1 {
		t.Fatalf("dropped events must not be replayed, got %d sends", n)
	}
}

func TestMessageInvokesCurrentHook(t *testing.T) {
	testlog.Start(t)
	bus, s, slot := attach(t, true)

	bus.Emit("message", "before")
	if n := len(s.envelopes()); n != 0 {
		t.Fatalf("noop hook must not send, got %d", n)
	}

	d := dispatch.New(&busHost{Bus: bus}, s, slot, nil)
	d.HandleEnvelope(protocol.Envelope{Name: "botie", Payload: map[string]any{"onMessage": true, "strategy": "forward"}})
	bus.Emit("message", "after")

	want := []protocol.Envelope{{Name: "message", Payload: "after"}}
	if got := s.envelopes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected envelopes: %#v", got)
	}
}
