package protocol

import (
	"encoding/json"
	"fmt"
)

// Encode serializes env into one text frame.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnencodable, env.Name, err)
	}
	return data, nil
}
