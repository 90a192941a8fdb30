// Package protocol defines the JSON envelopes exchanged over the realtime channel.
package protocol

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"timekeeper/internal/presence"
)

// EventType names the payload carried by an Envelope.
type EventType string

const (
	// TypeGlobalCounter is sent server→client with a CounterPayload.
	TypeGlobalCounter EventType = "global_counter"
	// TypeRoster is sent server→client with the full []presence.Aggregated.
	TypeRoster EventType = "roster"
	// TypePresence is sent client→server with a presence.Snapshot.
	TypePresence EventType = "presence"
)

// ErrUnknownType is returned by Decode helpers for unexpected envelopes.
var ErrUnknownType = errors.New("unknown event type")

// Envelope wraps every realtime message.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

type CounterPayload struct {
	Value int64 `json:"value"`
}

// Encode marshals payload into an envelope of the given type.
func Encode(eventType EventType, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return json.Marshal(Envelope{Type: eventType, Data: data})
}

// EncodeCounter builds a global_counter envelope.
func EncodeCounter(value int64) ([]byte, error) {
	return Encode(TypeGlobalCounter, CounterPayload{Value: value})
}

// EncodeRoster builds a roster envelope; a nil roster is sent as [].
func EncodeRoster(roster []presence.Aggregated) ([]byte, error) {
	if roster == nil {
		roster = []presence.Aggregated{}
	}
	return Encode(TypeRoster, roster)
}

// EncodePresence builds a presence envelope.
func EncodePresence(snap presence.Snapshot) ([]byte, error) {
	return Encode(TypePresence, snap)
}

// Decode parses the outer envelope.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, ErrUnknownType
	}
	return env, nil
}

// Presence extracts a presence snapshot from a presence envelope.
func (e Envelope) Presence() (presence.Snapshot, error) {
	var snap presence.Snapshot
	if e.Type != TypePresence {
		return snap, ErrUnknownType
	}
	err := json.Unmarshal(e.Data, &snap)
	return snap, err
}

// Counter extracts the value from a global_counter envelope.
func (e Envelope) Counter() (int64, error) {
	if e.Type != TypeGlobalCounter {
		return 0, ErrUnknownType
	}
	var payload CounterPayload
	if err := json.Unmarshal(e.Data, &payload); err != nil {
		return 0, err
	}
	return payload.Value, nil
}

// Roster extracts the roster from a roster envelope.
func (e Envelope) Roster() ([]presence.Aggregated, error) {
	if e.Type != TypeRoster {
		return nil, ErrUnknownType
	}
	var roster []presence.Aggregated
	if err := json.Unmarshal(e.Data, &roster); err != nil {
		return nil, err
	}
	return roster, nil
}
