// Package broadcast keeps the session stores of independent replicas
// eventually consistent. Every successful engine command publishes the new
// snapshot; receivers install it directly with no merge logic, so the last
// published snapshot wins. Delivery is at-least-once and unordered; a
// periodic refresh against the shared backing state re-synchronizes replicas
// that missed a message.
package broadcast

import (
	"encoding/json"
	"fmt"

	"github.com/classpoll/livepoll/internal/models"
)

// Receiver installs a snapshot that arrived from another replica into the
// local store. Implementations must not re-validate: the snapshot is
// authoritative.
type Receiver func(state models.SessionState)

// StateSource reads the local replica's current snapshot, used to answer
// sync requests from replicas that joined late or missed a broadcast.
type StateSource func() models.SessionState

// envelope wraps a snapshot on the wire. The instance id lets a replica
// discard the echo of its own broadcasts.
type envelope struct {
	InstanceID string          `json:"instanceId"`
	SentAt     int64           `json:"sentAt"`
	State      json.RawMessage `json:"state"`
}

func encodeEnvelope(instanceID string, sentAt int64, state models.SessionState) ([]byte, error) {
	raw, err := models.EncodeSnapshot(state)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(envelope{InstanceID: instanceID, SentAt: sentAt, State: raw})
	if err != nil {
		return nil, fmt.Errorf("encode broadcast envelope: %w", err)
	}
	return data, nil
}

func decodeEnvelope(data []byte) (string, models.SessionState, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", models.SessionState{}, fmt.Errorf("%w: %v", models.ErrDecodeSnapshot, err)
	}
	state, err := models.DecodeSnapshot(env.State)
	if err != nil {
		return "", models.SessionState{}, err
	}
	return env.InstanceID, state, nil
}
