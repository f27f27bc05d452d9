package messenger

import (
	"encoding/json"
	"fmt"
)

// Envelope is the frame network transports put on the wire.
// From carries the sender's node id on shared channels where a sender can
// observe its own publications.
type Envelope struct {
	Type string `json:"type"`
	Body string `json:"body"`
	From string `json:"from,omitempty"`
}

// Encode marshals the envelope.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("messenger: encode envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses a frame. A frame without a type is rejected.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("messenger: decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("messenger: envelope has no type")
	}
	return env, nil
}
