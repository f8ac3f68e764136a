package relay

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/edgeio/internal/dispatch"
	"github.com/danmuck/edgeio/internal/host"
	"github.com/danmuck/edgeio/internal/protocol/session"
	"github.com/danmuck/edgeio/internal/protocol/session/sessiontest"
	"github.com/danmuck/edgeio/internal/testutil/testlog"
)

type fixture struct {
	relay  *Relay
	host   *host.Static
	clock  *sessiontest.Clock
	dialer *sessiontest.Dialer
	conn   *sessiontest.Conn
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		host:   host.NewStatic("1.2.3"),
		clock:  sessiontest.NewClock(),
		dialer: sessiontest.NewDialer(),
		conn:   sessiontest.NewConn("io|0.0.1"),
	}
	f.dialer.QueueConn(f.conn)
	opts = append(opts, WithSessionOptions(session.WithClock(f.clock), session.WithDialer(f.dialer)))
	r, err := New(f.host, "abc", opts...)
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	f.relay = r
	t.Cleanup(func() { _ = r.Close() })
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	f.relay.Start()
	if got := f.conn.NextWrite(t); got != "edgeio version 1.2.3" {
		t.Fatalf("unexpected greeting: %q", got)
	}
}

func TestNewRejectsMissingHostOrToken(t *testing.T) {
	testlog.Start(t)

	if _, err := New(nil, "abc"); !errors.Is(err, ErrHostRequired) {
		t.Fatalf("expected ErrHostRequired, got %v", err)
	}
	if _, err := New(host.NewStatic("1"), "  "); !errors.Is(err, ErrTokenRequired) {
		t.Fatalf("expected ErrTokenRequired, got %v", err)
	}
	if _, err := New(host.NewStatic("1"), "abc", WithStrategy("log", func(dispatch.SendFunc) dispatch.MessageHook { return nil })); !errors.Is(err, dispatch.ErrDuplicateStrategy) {
		t.Fatalf("expected ErrDuplicateStrategy, got %v", err)
	}
}

func TestTokenArgumentWinsOverConfig(t *testing.T) {
	testlog.Start(t)
	cfg := session.DefaultConfig()
	cfg.Token = "from-config"
	f := newFixture(t, WithSessionConfig(cfg))
	f.start(t)

	if got := f.dialer.Requests()[0].Header.Get("Authorization"); got != "Token abc" {
		t.Fatalf("unexpected auth header: %q", got)
	}
}

func TestUpdateCommandRepliesWithLogin(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	f.host.SetUser(host.PlainContact{"id": "u1"})
	f.start(t)

	f.conn.Push(`{"name":"update","payload":{}}`)

	if got := f.conn.NextWrite(t); got != `{"name":"login","payload":{"id":"u1"}}` {
		t.Fatalf("unexpected reply: %s", got)
	}
	f.conn.NoWrite(t, 30*time.Millisecond)
}

func TestRawAndSysFramesAreQuiet(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	f.start(t)

	f.conn.Push("hello")
	f.conn.Push(`{"name":"sys","payload":null}`)
	f.conn.NoWrite(t, 50*time.Millisecond)

	if !f.relay.Session().Connected() || f.host.Resets() != 0 || f.relay.Hooks().Name() != dispatch.StrategyNoop {
		t.Fatalf("unexpected state change: %+v resets=%d", f.relay.Status(), f.host.Resets())
	}
}

func TestResetCommandResetsHost(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	f.start(t)

	f.conn.Push(`{"name":"reset","payload":"remote"}`)
	sessiontest.WaitFor(t, "host reset", func() bool { return f.host.Resets() == 1 })
}

func TestHostEventsMirroredWhileConnected(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	f.relay.Start()

	f.host.Emit(host.EventLogin, host.PlainContact{"id": "u1", "name": "alice"})
	f.host.Emit(host.EventHeartbeat, "beat")
	f.conn.NextWrite(t)

	if got := f.conn.NextWrite(t); got != `{"name":"login","payload":{"id":"u1","name":"alice"}}` {
		t.Fatalf("unexpected login frame: %s", got)
	}
	if got := f.conn.NextWrite(t); got != `{"name":"heartbeat","payload":"beat"}` {
		t.Fatalf("unexpected heartbeat frame: %s", got)
	}
}

func TestTransportErrorReachesHostAndStopsMirroring(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)

	var mu sync.Mutex
	var hostErrs []error
	f.host.On(host.EventError, func(payload any) {
		if err, ok := payload.(error); ok {
			mu.Lock()
			hostErrs = append(hostErrs, err)
			mu.Unlock()
		}
	})
	f.start(t)

	boom := errors.New("connection reset by peer")
	f.conn.Fail(boom)
	sessiontest.WaitFor(t, "reconnect armed", func() bool { return f.clock.Pending() == 1 })

	mu.Lock()
	got := append([]error(nil), hostErrs...)
	mu.Unlock()
	if len(got) != 1 || !errors.Is(got[0], boom) {
		t.Fatalf("transport error not surfaced to host: %v", got)
	}

	f.host.Emit(host.EventHeartbeat, "beat")
	if n := len(f.conn.Written()); n != 1 {
		t.Fatalf("events while reconnecting must be dropped, written=%d", n)
	}
}

func TestBotieSelectsRegisteredStrategy(t *testing.T) {
	testlog.Start(t)
	var mu sync.Mutex
	var seen []any
	f := newFixture(t, WithStrategy("audit", func(send dispatch.SendFunc) dispatch.MessageHook {
		return func(message any) {
			mu.Lock()
			seen = append(seen, message)
			mu.Unlock()
		}
	}))
	f.start(t)

	f.conn.Push(`{"name":"botie","payload":{"onMessage":true,"strategy":"audit"}}`)
	sessiontest.WaitFor(t, "hook installed", func() bool { return f.relay.Hooks().Name() == "audit" })

	f.host.Emit(host.EventMessage, "ding")
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != "ding" {
		t.Fatalf("custom hook not invoked: %v", seen)
	}

	status := f.relay.Status()
	if status.Hook != "audit" || len(status.Strategies) != 4 || status.Session.State != "connected" {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestCloseLeavesHostSubscriptions(t *testing.T) {
	testlog.Start(t)
	f := newFixture(t)
	f.start(t)

	if err := f.relay.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if f.relay.Session().State() != session.StateDisconnected {
		t.Fatalf("unexpected state: %s", f.relay.Session().State())
	}
	if n := f.host.Subscribers(host.EventLogin); n != 1 {
		t.Fatalf("subscriptions should remain after close, got %d", n)
	}
	f.host.Emit(host.EventLogin, host.PlainContact{"id": "u1"})
	if n := len(f.conn.Written()); n != 1 {
		t.Fatalf("closed relay must not send, written=%d", n)
	}
}
