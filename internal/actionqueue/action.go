package actionqueue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind names the server mutation an action replays.
type Kind string

// KindArchive is the only action kind recorded today.
const KindArchive Kind = "archive"

// StorageKey is the well-known key holding the persisted queue.
const StorageKey = "note_action_queue"

// schemaVersion tags the persisted envelope.
const schemaVersion = 1

// PendingAction is a server mutation that has not been confirmed yet.
type PendingAction struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	NoteID    string    `json:"noteId"`
	CreatedAt time.Time `json:"-"`
	Attempts  int       `json:"attempts,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

type actionJSON struct {
	ID        string `json:"id"`
	Kind      Kind   `json:"kind"`
	Type      Kind   `json:"type,omitempty"` // legacy field name
	NoteID    string `json:"noteId"`
	CreatedAt int64  `json:"createdAt"`
	Attempts  int    `json:"attempts,omitempty"`
	LastError string `json:"lastError,omitempty"`
}

// MarshalJSON encodes CreatedAt as Unix milliseconds.
func (a PendingAction) MarshalJSON() ([]byte, error) {
	return json.Marshal(actionJSON{
		ID:        a.ID,
		Kind:      a.Kind,
		NoteID:    a.NoteID,
		CreatedAt: a.CreatedAt.UnixMilli(),
		Attempts:  a.Attempts,
		LastError: a.LastError,
	})
}

// UnmarshalJSON accepts both the current and the legacy record shape.
func (a *PendingAction) UnmarshalJSON(data []byte) error {
	var raw actionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	kind := raw.Kind
	if kind == "" {
		kind = raw.Type
	}
	*a = PendingAction{
		ID:        raw.ID,
		Kind:      kind,
		NoteID:    raw.NoteID,
		CreatedAt: time.UnixMilli(raw.CreatedAt),
		Attempts:  raw.Attempts,
		LastError: raw.LastError,
	}
	return nil
}

type envelope struct {
	Version int             `json:"version"`
	Actions []PendingAction `json:"actions"`
}

// decode parses a persisted payload. A bare array is the unversioned format
// and is accepted as version 0.
func decode(data []byte) ([]PendingAction, bool, error) {
	trimmed := firstNonSpace(data)
	if trimmed == '[' {
		var legacy []PendingAction
		if err := json.Unmarshal(data, &legacy); err != nil {
			return nil, false, fmt.Errorf("decode legacy queue: %w", err)
		}
		return legacy, true, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, false, fmt.Errorf("decode queue: %w", err)
	}
	if env.Version > schemaVersion {
		return nil, false, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, env.Version)
	}
	return env.Actions, env.Version < schemaVersion, nil
}

func encode(actions []PendingAction) ([]byte, error) {
	if actions == nil {
		actions = []PendingAction{}
	}
	return json.Marshal(envelope{Version: schemaVersion, Actions: actions})
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}

var (
	// ErrOffline marks an attempt that failed because the service is not
	// reachable. Drain stops at the first such failure.
	ErrOffline = errors.New("offline")

	// ErrPermanent marks an attempt that can never succeed, such as a note
	// that no longer exists. The action is dropped and reported as abandoned.
	ErrPermanent = errors.New("permanent failure")

	// ErrUnsupportedVersion is returned when the persisted queue was written by
	// a newer format.
	ErrUnsupportedVersion = errors.New("unsupported queue format")
)
