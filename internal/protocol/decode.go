package protocol

import (
	"bytes"
	"encoding/json"
)

// wireEnvelope keeps payload undecoded so an absent field stays nil.
type wireEnvelope struct {
	Name    *string         `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// Decode parses one inbound frame. It never fails: anything that is not a
// JSON object with an optional string name degrades to a raw envelope
// carrying the frame text.
func Decode(data []byte) Envelope {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return rawEnvelope(data)
	}

	var wire wireEnvelope
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return rawEnvelope(data)
	}

	env := Envelope{}
	if wire.Name != nil {
		env.Name = *wire.Name
	}
	if len(wire.Payload) > 0 {
		var payload any
		if err := json.Unmarshal(wire.Payload, &payload); err != nil {
			return rawEnvelope(data)
		}
		env.Payload = payload
	}
	return env
}

func rawEnvelope(data []byte) Envelope {
	return Envelope{Name: NameRaw, Payload: string(data)}
}
