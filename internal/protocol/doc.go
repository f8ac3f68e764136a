// Package protocol owns the relay wire contract.
//
// Ownership boundary:
// - envelope shape and reserved names
// - envelope encode/decode over UTF-8 JSON text frames
// - raw passthrough for frames that are not envelopes
//
// The greeting frame sent after a handshake is plain text and never
// passes through Encode.
package protocol
