// Package conflict provides divergence detection and resolution between
// the local cache and the remote backend.
package conflict

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nordqvist/fakture/internal/db"
	"github.com/nordqvist/fakture/internal/logging"
	"github.com/nordqvist/fakture/internal/models"
	"github.com/nordqvist/fakture/internal/notify"
	"github.com/nordqvist/fakture/internal/telemetry"
)

// Log durably records unresolved conflicts and notifies the user when a
// new one is detected.
type Log struct {
	store *db.Store
	sink  notify.Sink
}

// NewLog creates a conflict log over the store. A nil sink discards
// notifications.
func NewLog(store *db.Store, sink notify.Sink) *Log {
	if sink == nil {
		sink = notify.Discard
	}
	return &Log{store: store, sink: sink}
}

// Record builds and persists a Conflict for the given divergence and
// emits a user notification naming the affected entity kind.
func (l *Log) Record(kind models.Kind, recordID models.UUID, local, remote json.RawMessage, class models.Classification) (*models.Conflict, error) {
	var ls, rs stamps
	// Stamps were already parsed during classification; failures here
	// would have prevented detection.
	json.Unmarshal(local, &ls)
	json.Unmarshal(remote, &rs)

	now := time.Now()
	c := &models.Conflict{
		ID:             models.ConflictID(kind, recordID, now),
		Kind:           kind,
		RecordID:       recordID,
		LocalSnapshot:  local,
		RemoteSnapshot: remote,
		LocalStamp:     ls.modifiedAt(),
		RemoteStamp:    rs.modifiedAt(),
		Classification: class,
		DetectedAt:     now.Unix(),
	}

	if err := l.store.SaveConflict(c); err != nil {
		return nil, err
	}

	telemetry.Count("conflicts.detected", 1)

	logging.Warn("Conflict detected",
		map[string]interface{}{
			"conflict_id":    c.ID,
			"kind":           c.Kind,
			"record_id":      c.RecordID,
			"classification": c.Classification,
			"local_stamp":    c.LocalStamp,
			"remote_stamp":   c.RemoteStamp,
		})

	l.sink.Notify(notify.New(
		notify.TitleConflictDetected,
		fmt.Sprintf("A %s was modified both locally and remotely.", kind),
		notify.LevelWarning,
	))

	return c, nil
}

// Unresolved returns all conflicts with resolved = false, oldest first.
func (l *Log) Unresolved() ([]*models.Conflict, error) {
	return l.store.UnresolvedConflicts()
}

// Get returns a conflict by id.
func (l *Log) Get(id models.UUID) (*models.Conflict, error) {
	return l.store.GetConflict(id)
}

// PurgeResolved removes resolved conflicts and returns the count purged.
func (l *Log) PurgeResolved() (int, error) {
	return l.store.PurgeResolvedConflicts()
}
