// Package sessiontest provides in-memory clocks, dialers and sockets for
// driving a session.Session deterministically.
package sessiontest

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/edgeio/internal/protocol/session"
	"github.com/gorilla/websocket"
)

// Clock is a manual session.Clock. Timers only run from Fire calls.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*Timer
}

type Timer struct {
	clock   *Clock
	Delay   time.Duration
	fn      func()
	fired   bool
	stopped bool
}

func NewClock() *Clock {
	return &Clock{now: time.Unix(1700000000, 0)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) AfterFunc(d time.Duration, fn func()) session.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &Timer{clock: c, Delay: d, fn: fn}
	c.timers = append(c.timers, t)
	return t
}

func (t *Timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// Delays lists every delay ever scheduled, in scheduling order.
func (c *Clock) Delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, 0, len(c.timers))
	for _, t := range c.timers {
		out = append(out, t.Delay)
	}
	return out
}

// Pending counts timers that have neither fired nor been stopped.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

// FireNext advances to the oldest pending timer and runs it on the calling
// goroutine. It reports false when nothing is pending.
func (c *Clock) FireNext() bool {
	c.mu.Lock()
	var next *Timer
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			next = t
			break
		}
	}
	if next == nil {
		c.mu.Unlock()
		return false
	}
	next.fired = true
	c.now = c.now.Add(next.Delay)
	fn := next.fn
	c.mu.Unlock()
	fn()
	return true
}

type frame struct {
	messageType int
	data        []byte
	err         error
}

// Conn is an in-memory session.Conn. Inbound frames are pushed by the test;
// outbound frames are recorded.
type Conn struct {
	subprotocol string
	inbound     chan frame
	writes      chan string
	done        chan struct{}
	closeOnce   sync.Once

	mu       sync.Mutex
	written  []string
	controls []int
}

func NewConn(subprotocol string) *Conn {
	return &Conn{
		subprotocol: subprotocol,
		inbound:     make(chan frame, 64),
		writes:      make(chan string, 64),
		done:        make(chan struct{}),
	}
}

func (c *Conn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.inbound:
		return f.messageType, f.data, f.err
	case <-c.done:
		return 0, nil, net.ErrClosed
	}
}

func (c *Conn) WriteMessage(messageType int, data []byte) error {
	if c.Closed() {
		return net.ErrClosed
	}
	c.mu.Lock()
	c.written = append(c.written, string(data))
	c.mu.Unlock()
	select {
	case c.writes <- string(data):
	default:
	}
	return nil
}

func (c *Conn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	if c.Closed() {
		return net.ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controls = append(c.controls, messageType)
	return nil
}

func (c *Conn) SetWriteDeadline(time.Time) error { return nil }

func (c *Conn) Subprotocol() string { return c.subprotocol }

func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Push queues one inbound text frame.
func (c *Conn) Push(text string) {
	c.inbound <- frame{messageType: websocket.TextMessage, data: []byte(text)}
}

// PeerClose makes the next read report an orderly close from the relay.
func (c *Conn) PeerClose(code int) {
	c.inbound <- frame{err: &websocket.CloseError{Code: code}}
}

// Fail makes the next read report a transport error.
func (c *Conn) Fail(err error) {
	c.inbound <- frame{err: err}
}

// Written returns every outbound data frame so far.
func (c *Conn) Written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

// Controls returns the control frame types written so far.
func (c *Conn) Controls() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.controls...)
}

// NextWrite waits for the next outbound frame.
func (c *Conn) NextWrite(t testing.TB) string {
	t.Helper()
	select {
	case w := <-c.writes:
		return w
	case <-time.After(2 * time.Second):
		t.Fatalf("sessiontest: no outbound frame")
		return ""
	}
}

// NoWrite asserts that nothing is written within d.
func (c *Conn) NoWrite(t testing.TB, d time.Duration) {
	t.Helper()
	select {
	case w := <-c.writes:
		t.Fatalf("sessiontest: unexpected outbound frame %q", w)
	case <-time.After(d):
	}
}

var ErrNothingQueued = errors.New("sessiontest: no dial result queued")

type dialResult struct {
	conn *Conn
	err  error
}

// Dialer hands out queued conns or errors in order.
type Dialer struct {
	mu       sync.Mutex
	results  []dialResult
	requests []session.DialRequest
}

func NewDialer() *Dialer {
	return &Dialer{}
}

func (d *Dialer) QueueConn(c *Conn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, dialResult{conn: c})
}

func (d *Dialer) QueueError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, dialResult{err: err})
}

func (d *Dialer) Requests() []session.DialRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]session.DialRequest(nil), d.requests...)
}

func (d *Dialer) Dial(_ context.Context, req session.DialRequest) (session.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)
	if len(d.results) == 0 {
		return nil, ErrNothingQueued
	}
	next := d.results[0]
	d.results = d.results[1:]
	if next.err != nil {
		return nil, next.err
	}
	return next.conn, nil
}

// WaitFor polls cond until it holds or fails the test.
func WaitFor(t testing.TB, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("sessiontest: timed out waiting for %s", what)
}
