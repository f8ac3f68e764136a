// Package host defines what the relay needs from the embedding application.
//
// The relay never owns host state. It subscribes to named host events,
// emits errors back on the host's error channel, and calls the host for
// its version, its current user and a state reset.
package host

// Event names emitted by a host.
const (
	EventScan      = "scan"
	EventLogin     = "login"
	EventLogout    = "logout"
	EventError     = "error"
	EventHeartbeat = "heartbeat"
	EventMessage   = "message"
)

// Handler receives the payload of one emitted event.
type Handler func(payload any)

// Host is the embedding application.
type Host interface {
	Version() string
	// User returns the logged-in user, if any.
	User() (Contact, bool)
	Reset()
	On(event string, fn Handler)
	Emit(event string, payload any)
}

// Contact is a structured host object that carries a plain-data form.
// Only the plain form is ever sent over the wire.
type Contact interface {
	PlainData() any
}

// PlainContact is a Contact backed by an already plain value.
type PlainContact map[string]any

func (c PlainContact) PlainData() any {
	return map[string]any(c)
}
