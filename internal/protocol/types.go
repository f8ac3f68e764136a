package protocol

import "fmt"

// Envelope is the named-payload unit exchanged with the relay.
type Envelope struct {
	Name    string `json:"name"`
	Payload any    `json:"payload"`
}

// Inbound names interpreted by the command dispatcher.
const (
	NameBotie  = "botie"
	NameReset  = "reset"
	NameUpdate = "update"
	NameSys    = "sys"

	// NameRaw tags frames that could not be decoded as an envelope.
	NameRaw = "raw"
)

// Outbound names mirrored from host events.
const (
	NameScan      = "scan"
	NameLogin     = "login"
	NameLogout    = "logout"
	NameError     = "error"
	NameHeartbeat = "heartbeat"
	NameMessage   = "message"
)

// Default relay connection parameters.
const (
	DefaultEndpoint    = "wss://api.wechaty.io/v0/websocket"
	DefaultSubprotocol = "io|0.0.1"
)

func (e Envelope) String() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Payload)
}

// Greeting formats the plain-text frame sent right after a handshake.
func Greeting(hostName, version string) string {
	return hostName + " version " + version
}
