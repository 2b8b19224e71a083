package event

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Envelope is the outer wrapper around every transmitted message.
// Payload is kept raw and decoded into a specific type by the consumer.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	MessageID string          `json:"messageId"`
}

func (e Envelope) String() string {
	return fmt.Sprintf("Envelope{Type: %s, MessageID: %s, Payload.Size: %d}", e.Type, e.MessageID, len(e.Payload))
}

// New builds an envelope around payload, stamping it with the current time
// and a fresh message id. Marshaling payload must not fail for the typed
// payloads in this package; a failure is a programmer error.
func New(t string, payload interface{}) (*Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return &Envelope{
		Type:      t,
		Payload:   b,
		Timestamp: time.Now(),
		MessageID: NewMessageID(),
	}, nil
}

func Encode(w io.Writer, e *Envelope) error {
	if err := json.NewEncoder(w).Encode(e); err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return nil
}

func Decode(r io.Reader, e *Envelope) error {
	if err := json.NewDecoder(r).Decode(e); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	return nil
}
