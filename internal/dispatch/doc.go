// Package dispatch interprets commands pushed by the relay.
//
// Ownership boundary:
// - routing of inbound envelopes by name
// - the message hook slot and the named strategies that may fill it
//
// Remote hook overrides select a strategy registered in-process; the relay
// never supplies executable code.
package dispatch
