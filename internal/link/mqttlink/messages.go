package mqttlink

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Command names understood by the gateway.
const (
	CommandSet     = "set"
	CommandRefresh = "refresh"
)

// CommandMessage is published to the device's command topic.
type CommandMessage struct {
	// ID correlates the command with its AckMessage.
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Host      string    `json:"host"`
	// Command is CommandSet or CommandRefresh.
	Command string `json:"command"`
	Key     string `json:"key,omitempty"`
	Value   any    `json:"value"`
	Source  string `json:"source"`
}

// AckStatus represents the acknowledgment status of a command.
type AckStatus string

const (
	// AckAccepted indicates the device accepted the write.
	AckAccepted AckStatus = "accepted"

	// AckFailed indicates the write could not be executed.
	AckFailed AckStatus = "failed"

	// AckTimeout indicates the device did not answer the gateway in time.
	AckTimeout AckStatus = "timeout"
)

// AckMessage is published by the gateway on the device's ack topic.
type AckMessage struct {
	CommandID string    `json:"command_id"`
	Timestamp time.Time `json:"timestamp"`
	Status    AckStatus `json:"status"`
	Error     *AckError `json:"error,omitempty"`
}

// AckError contains error details for failed commands.
type AckError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StateMessage is published by the gateway on the device's status topic.
// State holds only the keys that changed, or every key after a refresh.
type StateMessage struct {
	Timestamp time.Time      `json:"timestamp"`
	State     map[string]any `json:"state"`
}

// Availability payloads on the retained availability topic.
const (
	AvailabilityOnline  = "online"
	AvailabilityOffline = "offline"
)

// decodeState parses a StateMessage, keeping integers as int64 and all
// other numbers as float64.
func decodeState(payload []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var msg StateMessage
	if err := dec.Decode(&msg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPayload, err)
	}
	if len(msg.State) == 0 {
		return nil, fmt.Errorf("%w: empty state", ErrPayload)
	}

	out := make(map[string]any, len(msg.State))
	for k, v := range msg.State {
		out[k] = normalise(v)
	}
	return out, nil
}

func normalise(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		for k, inner := range val {
			val[k] = normalise(inner)
		}
		return val
	case []any:
		for i, inner := range val {
			val[i] = normalise(inner)
		}
		return val
	default:
		return v
	}
}
