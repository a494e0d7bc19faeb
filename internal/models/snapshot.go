package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrDecodeSnapshot is returned when a stored or received snapshot cannot be
// decoded. Callers recover by discarding the snapshot, never by crashing.
var ErrDecodeSnapshot = errors.New("undecodable session snapshot")

// EncodeSnapshot serializes a session state for propagation or persistence.
func EncodeSnapshot(state SessionState) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses a serialized session state. Missing optional
// collections decode to empty collections so snapshots written by older
// replicas remain readable.
func DecodeSnapshot(data []byte) (SessionState, error) {
	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return SessionState{}, fmt.Errorf("%w: %v", ErrDecodeSnapshot, err)
	}
	return normalize(state), nil
}

// normalize backfills collections that were absent or null in the encoded
// form, mirroring the tolerant load path of the session's web clients.
func normalize(state SessionState) SessionState {
	if state.Polls == nil {
		state.Polls = []Poll{}
	}
	if state.Answers == nil {
		state.Answers = []Answer{}
	}
	if state.Students == nil {
		state.Students = []Student{}
	}
	if state.ChatMessages == nil {
		state.ChatMessages = []ChatMessage{}
	}
	if state.KickedStudents == nil {
		state.KickedStudents = []string{}
	}
	return state
}
