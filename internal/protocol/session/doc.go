// Package session owns the relay socket lifecycle.
//
// Ownership boundary:
// - dial with token auth and subprotocol negotiation
// - connection state machine and capped exponential reconnect backoff
// - inbound read loop feeding decoded envelopes to one Handler
// - fire-and-forget outbound writes
//
// State flow:
// - disconnected -> connecting -> connected
// - connected -> reconnecting on peer close or transport error
// - reconnecting -> connecting when the single pending attempt fires
// - any -> disconnected on Close
//
// At most one live socket and one pending reconnect exist at a time. Close
// does not cancel a pending reconnect.
package session
