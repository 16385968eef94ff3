package wire

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Envelope frames a payload with its channel for transports that multiplex
// all push channels over a single connection. The ID is informational only,
// useful for correlating transport logs with history mutations.
type Envelope struct {
	ID      string          `json:"id"`
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload and wraps it with a fresh message ID.
func NewEnvelope(channel string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshaling %s payload: %w", channel, err)
	}
	return Envelope{
		ID:      uuid.NewString(),
		Channel: channel,
		Payload: data,
	}, nil
}

// Decode unmarshals the framed payload into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", e.Channel, err)
	}
	return nil
}
