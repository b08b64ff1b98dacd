// Package queue provides the durable pending-change log for offline
// mutations.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nordqvist/fakture/internal/db"
	"github.com/nordqvist/fakture/internal/logging"
	"github.com/nordqvist/fakture/internal/models"
)

// MaxAttempts is the retry ceiling. A change that fails this many drain
// attempts is moved to the failed-change collection.
const MaxAttempts = 5

// Log is the ordered pending-change log. Changes are persisted in the
// local cache store so they survive restarts; ordering is ascending by
// enqueue timestamp with insertion order as tiebreak.
type Log struct {
	store *db.Store
}

// NewLog creates a pending-change log over the store.
func NewLog(store *db.Store) *Log {
	return &Log{store: store}
}

// Add appends a change with attempt counter zero. Creates and updates
// must carry the full record snapshot; deletes must not.
func (l *Log) Add(kind models.Kind, op models.Operation, recordID models.UUID, payload json.RawMessage) (*models.PendingChange, error) {
	if !kind.Syncable() {
		return nil, fmt.Errorf("kind %q is not syncable", kind)
	}
	if recordID == "" {
		return nil, fmt.Errorf("record id is required")
	}
	switch op {
	case models.OperationCreate, models.OperationUpdate:
		if len(payload) == 0 {
			return nil, fmt.Errorf("%s change requires a payload", op)
		}
	case models.OperationDelete:
		payload = nil
	default:
		return nil, fmt.Errorf("unknown operation %q", op)
	}

	change := &models.PendingChange{
		Kind:       kind,
		Operation:  op,
		RecordID:   recordID,
		Payload:    payload,
		EnqueuedAt: time.Now().Unix(),
	}

	if err := l.store.AppendPendingChange(change); err != nil {
		return nil, err
	}

	logging.Debug("Enqueued pending change",
		map[string]interface{}{
			"change_id": change.ID,
			"kind":      change.Kind,
			"operation": change.Operation,
			"record_id": change.RecordID,
		})

	return change, nil
}

// Ordered returns all queued changes oldest-first. Changes to the same
// record come back in the order they were made.
func (l *Log) Ordered() ([]*models.PendingChange, error) {
	return l.store.PendingChanges()
}

// Len returns the number of queued changes.
func (l *Log) Len() (int, error) {
	return l.store.CountPendingChanges()
}

// Bump persists an incremented attempt counter before the change is
// dispatched, so a crash mid-drain still counts the attempt.
func (l *Log) Bump(change *models.PendingChange) error {
	change.Attempts++
	return l.store.BumpPendingChange(change.ID, change.Attempts)
}

// Remove deletes a change after successful remote application. Removing
// an already-removed change is a no-op success.
func (l *Log) Remove(id models.UUID) error {
	return l.store.RemovePendingChange(id)
}

// MoveToFailed moves an exhausted change to the failed-change collection
// instead of discarding it.
func (l *Log) MoveToFailed(change *models.PendingChange, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := l.store.MoveToFailed(change, msg); err != nil {
		return err
	}

	logging.Warn("Pending change moved to failed log",
		map[string]interface{}{
			"change_id": change.ID,
			"kind":      change.Kind,
			"operation": change.Operation,
			"record_id": change.RecordID,
			"attempts":  change.Attempts,
		})
	return nil
}

// Failed returns all changes that exhausted the retry budget.
func (l *Log) Failed() ([]*models.FailedChange, error) {
	return l.store.FailedChanges()
}

// Requeue moves a failed change back into the pending log with a reset
// attempt counter.
func (l *Log) Requeue(id models.UUID) error {
	return l.store.RequeueFailedChange(id)
}
