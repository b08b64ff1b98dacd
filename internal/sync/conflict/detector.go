// Package conflict provides divergence detection and resolution between
// the local cache and the remote backend.
package conflict

import (
	"encoding/json"
	"reflect"

	"github.com/nordqvist/fakture/internal/models"
)

// stamps are the timestamp fields every record payload carries.
type stamps struct {
	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// modifiedAt returns updated_at, falling back to created_at for records
// that were never updated after creation.
func (s stamps) modifiedAt() int64 {
	if s.UpdatedAt != 0 {
		return s.UpdatedAt
	}
	return s.CreatedAt
}

// Classify compares a local and remote snapshot of the same record.
// It returns the classification and true when the snapshots diverge.
//
// The rules are a last-writer-wins heuristic with a carve-out for true
// simultaneous edits:
//   - either snapshot absent: no conflict
//   - local stamp newer: local-newer
//   - remote stamp newer: remote-newer
//   - equal stamps, identical payloads: no conflict
//   - equal stamps, differing payloads: both-modified
func Classify(local, remote json.RawMessage) (models.Classification, bool) {
	if len(local) == 0 || len(remote) == 0 {
		return "", false
	}

	var ls, rs stamps
	if err := json.Unmarshal(local, &ls); err != nil {
		return "", false
	}
	if err := json.Unmarshal(remote, &rs); err != nil {
		return "", false
	}

	lt, rt := ls.modifiedAt(), rs.modifiedAt()
	switch {
	case lt > rt:
		return models.ClassificationLocalNewer, true
	case rt > lt:
		return models.ClassificationRemoteNewer, true
	}

	if deepEqualJSON(local, remote) {
		return "", false
	}
	return models.ClassificationBothModified, true
}

// deepEqualJSON compares two JSON documents by value, ignoring key order
// and whitespace.
func deepEqualJSON(a, b json.RawMessage) bool {
	var av, bv interface{}
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}
