// Package store persists per-user settings behind a shape signature.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"jlpt-snap/api/internal/settings"
)

// SettingsRepo loads and saves settings wholesale, keyed by user.
type SettingsRepo interface {
	Load(ctx context.Context, key string) (settings.Settings, error)
	Save(ctx context.Context, key string, s settings.Settings) error
	Delete(ctx context.Context, key string) error
}

var errStale = errors.New("stale settings envelope")

// Envelope is the stored form: settings stamped with the signature of the
// defaults they were saved under.
type Envelope struct {
	Signature string            `json:"signature"`
	Settings  settings.Settings `json:"settings"`
}

func encode(s settings.Settings) ([]byte, error) {
	return json.Marshal(Envelope{Signature: settings.Signature(), Settings: s})
}

// decode accepts only envelopes carrying the current signature. Fields
// missing from the stored settings keep their default values.
func decode(b []byte, defaults settings.Settings) (settings.Settings, error) {
	var raw struct {
		Signature string          `json:"signature"`
		Settings  json.RawMessage `json:"settings"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return settings.Settings{}, err
	}
	if raw.Signature == "" || raw.Signature != settings.Signature() || len(raw.Settings) == 0 {
		return settings.Settings{}, errStale
	}
	s := defaults
	if err := json.Unmarshal(raw.Settings, &s); err != nil {
		return settings.Settings{}, err
	}
	return s, nil
}
