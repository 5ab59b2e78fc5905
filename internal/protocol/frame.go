// Package protocol defines the chat server wire format: a closed set of
// outbound commands and inbound events carried in JSON text frames.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Frame is the envelope of every message on the real-time channel.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var (
	// ErrUnknownEvent is returned when an inbound frame names an event outside the closed set.
	ErrUnknownEvent = errors.New("unknown event")
	// ErrMalformedFrame is returned when a frame cannot be parsed.
	ErrMalformedFrame = errors.New("malformed frame")
)

// ValidationError reports an inbound payload that failed boundary checks.
type ValidationError struct {
	Event string
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s payload: %s is required", e.Event, e.Field)
}

// ParseFrame decodes raw bytes into a Frame.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Event == "" {
		return Frame{}, fmt.Errorf("%w: missing event name", ErrMalformedFrame)
	}
	return f, nil
}

// Encode serializes an outbound command into a frame.
func Encode(out Outbound) ([]byte, error) {
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", out.EventName(), err)
	}
	return json.Marshal(Frame{Event: out.EventName(), Data: data})
}
