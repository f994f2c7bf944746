// Package remote implements the control channel between the projection
// engine and controller pages or CLIs.
package remote

import (
	"encoding/json"
	"fmt"
)

// Message types.
const (
	TypeSettingsRequest  = "settings-request"
	TypeSettingsResponse = "settings-response"
	TypeSettingUpdate    = "setting-update"
	TypeRecordingStart   = "recording-start"
	TypeRecordingStop    = "recording-stop"
	TypeRecordingSave    = "recording-save"
	TypeRecordingSaved   = "recording-saved"
	TypeError            = "error"
)

// Message is the envelope exchanged over the channel.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SettingUpdate is the payload of a setting-update message.
type SettingUpdate struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// RecordingStart is the optional payload of a recording-start message.
type RecordingStart struct {
	Memo string `json:"memo,omitempty"`
	// Video also records the composited output to a video file.
	Video bool `json:"video,omitempty"`
}

// RecordingSave is the payload of a recording-save message.
type RecordingSave struct {
	Memo string `json:"memo"`
}

// RecordingSaved reports the outcome of a save.
type RecordingSaved struct {
	ID       string   `json:"id,omitempty"`
	Samples  int      `json:"samples"`
	Warning  string   `json:"warning,omitempty"`
	Archived []string `json:"archived,omitempty"`
}

// ErrorPayload carries a failure back to a controller.
type ErrorPayload struct {
	Message string `json:"message"`
}

// NewMessage encodes payload into a message of type typ. A nil payload
// produces a message without one.
func NewMessage(typ string, payload any) (Message, error) {
	m := Message{Type: typ}
	if payload == nil {
		return m, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return m, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	m.Payload = raw
	return m, nil
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}
