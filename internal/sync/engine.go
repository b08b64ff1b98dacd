// Package sync provides the offline sync engine: it drains the
// pending-change log against the remote backend and reconciles remote
// state into the local cache.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nordqvist/fakture/internal/db"
	apperrors "github.com/nordqvist/fakture/internal/errors"
	"github.com/nordqvist/fakture/internal/logging"
	"github.com/nordqvist/fakture/internal/models"
	"github.com/nordqvist/fakture/internal/notify"
	"github.com/nordqvist/fakture/internal/remote"
	"github.com/nordqvist/fakture/internal/sync/conflict"
	"github.com/nordqvist/fakture/internal/sync/monitor"
	"github.com/nordqvist/fakture/internal/sync/queue"
	"github.com/nordqvist/fakture/internal/telemetry"
)

// ErrDrainInProgress is returned when a drain is requested while another
// drain is running. The pending log removal on success is the
// de-duplication mechanism; the single-flight guard keeps two drains from
// racing on the same item in the first place.
var ErrDrainInProgress = apperrors.New(apperrors.ErrSyncInProgress, "drain already in progress")

// DrainResult summarizes one pass over the pending-change log.
type DrainResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Applied   int // changes applied remotely and removed
	Retained  int // changes that failed below the retry ceiling
	Dropped   int // changes moved to the failed log at the ceiling
}

// Engine coordinates the local cache, the pending-change log and the
// remote backend.
type Engine struct {
	store     *db.Store
	queue     *queue.Log
	backend   remote.Backend
	monitor   monitor.Notifier
	conflicts *conflict.Log
	sink      notify.Sink

	mu       sync.Mutex
	draining bool
	lastSync *time.Time
	lastErr  error
}

// NewEngine creates a sync engine. A nil sink discards notifications.
func NewEngine(store *db.Store, q *queue.Log, backend remote.Backend, mon monitor.Notifier, conflicts *conflict.Log, sink notify.Sink) *Engine {
	if sink == nil {
		sink = notify.Discard
	}
	return &Engine{
		store:     store,
		queue:     q,
		backend:   backend,
		monitor:   mon,
		conflicts: conflicts,
		sink:      sink,
	}
}

// Queue returns the engine's pending-change log.
func (e *Engine) Queue() *queue.Log {
	return e.queue
}

// Apply performs a local mutation: the record is written to (or removed
// from) the local cache, the change is appended to the pending log, and a
// drain is attempted immediately when the connectivity monitor reports
// online. The cache write is never blocked by the network.
func (e *Engine) Apply(ctx context.Context, kind models.Kind, op models.Operation, recordID models.UUID, payload json.RawMessage) (*db.CachedRecord, error) {
	collection := kind.Collection()

	var cached *db.CachedRecord
	switch op {
	case models.OperationCreate, models.OperationUpdate:
		rec, err := models.Decode(kind, payload)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrRecordInvalid, "record failed validation", err)
		}
		if recordID == "" {
			recordID = rec.RecordID()
		}
		cached, err = e.store.Put(collection, &db.CachedRecord{ID: recordID, Payload: payload})
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStore, "failed to write local cache", err)
		}
		recordID = cached.ID
	case models.OperationDelete:
		if err := e.store.Delete(collection, recordID); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStore, "failed to delete from local cache", err)
		}
	default:
		return nil, apperrors.New(apperrors.ErrInvalid, fmt.Sprintf("unknown operation %q", op))
	}

	if _, err := e.queue.Add(kind, op, recordID, payload); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "failed to enqueue change", err)
	}

	if e.monitor.Online() {
		if _, err := e.Drain(ctx); err != nil && err != ErrDrainInProgress {
			// The change stays queued; the next drain picks it up.
			logging.Warn("Immediate drain after mutation failed",
				map[string]interface{}{"error": err.Error()})
		}
	}

	return cached, nil
}

// Drain processes the pending-change log oldest-first against the remote
// backend. It is a no-op while offline. Only one drain runs at a time;
// concurrent callers get ErrDrainInProgress.
//
// Per change: the attempt counter is persisted first, then the change is
// dispatched. Success removes the change. Failure leaves it queued until
// the retry ceiling, at which point it moves to the failed-change log and
// a terminal failure notification is emitted exactly once.
func (e *Engine) Drain(ctx context.Context) (*DrainResult, error) {
	if !e.monitor.Online() {
		return &DrainResult{}, nil
	}

	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return nil, ErrDrainInProgress
	}
	e.draining = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.draining = false
		e.mu.Unlock()
	}()

	result := &DrainResult{StartTime: time.Now()}
	defer func() {
		result.EndTime = time.Now()
		result.Duration = result.EndTime.Sub(result.StartTime)

		telemetry.Count("sync.drains", 1)
		telemetry.Count("sync.applied", int64(result.Applied))
		telemetry.Count("sync.retained", int64(result.Retained))
		telemetry.Count("sync.dropped", int64(result.Dropped))
		telemetry.Timing("sync.drain", result.Duration)
	}()

	changes, err := e.queue.Ordered()
	if err != nil {
		e.setLastErr(err)
		return result, apperrors.Wrap(apperrors.ErrStore, "failed to load pending changes", err)
	}

	if len(changes) > 0 {
		logging.Info("Draining pending changes",
			map[string]interface{}{"count": len(changes)})
	}

	for _, change := range changes {
		select {
		case <-ctx.Done():
			e.setLastErr(ctx.Err())
			return result, ctx.Err()
		default:
		}

		if err := e.queue.Bump(change); err != nil {
			e.setLastErr(err)
			return result, apperrors.Wrap(apperrors.ErrStore, "failed to persist attempt counter", err)
		}

		if err := e.dispatch(ctx, change); err != nil {
			if change.Attempts >= queue.MaxAttempts {
				if mvErr := e.queue.MoveToFailed(change, err); mvErr != nil {
					e.setLastErr(mvErr)
					return result, apperrors.Wrap(apperrors.ErrStore, "failed to record exhausted change", mvErr)
				}
				result.Dropped++

				e.sink.Notify(notify.New(
					notify.TitleSyncFailed,
					fmt.Sprintf("A %s change could not be synced after multiple attempts. It was saved for manual retry.", change.Kind),
					notify.LevelError,
				))
			} else {
				result.Retained++
				logging.Warn("Pending change failed, will retry on next drain",
					map[string]interface{}{
						"change_id": change.ID,
						"attempts":  change.Attempts,
						"error":     err.Error(),
					})
			}
			continue
		}

		if err := e.queue.Remove(change.ID); err != nil {
			e.setLastErr(err)
			return result, apperrors.Wrap(apperrors.ErrStore, "failed to remove applied change", err)
		}
		result.Applied++
	}

	now := time.Now()
	if err := e.store.SetSyncStatus(models.SyncStatusLastSync, now.UTC().Format(time.RFC3339)); err != nil {
		logging.Error("Failed to record lastSync marker", err)
	}

	e.mu.Lock()
	e.lastSync = &now
	e.lastErr = nil
	e.mu.Unlock()

	if result.Applied > 0 && result.Retained == 0 && result.Dropped == 0 {
		e.sink.Notify(notify.New(
			notify.TitleSyncComplete,
			fmt.Sprintf("%d change(s) synced.", result.Applied),
			notify.LevelSuccess,
		))
	}

	return result, nil
}

// dispatch applies one pending change to the remote backend.
func (e *Engine) dispatch(ctx context.Context, change *models.PendingChange) error {
	collection := change.Kind.Collection()

	switch change.Operation {
	case models.OperationCreate, models.OperationUpdate:
		return e.backend.Upsert(ctx, collection, change.Payload)
	case models.OperationDelete:
		return e.backend.Delete(ctx, collection, change.RecordID)
	}
	return fmt.Errorf("unknown operation %q", change.Operation)
}

// Reconcile pulls remote records for the given kinds, fills the local
// cache with records that only exist remotely, and records a conflict for
// every divergence between a local and remote version. Returns the number
// of conflicts recorded.
func (e *Engine) Reconcile(ctx context.Context, userID models.UUID, kinds ...models.Kind) (int, error) {
	recorded := 0

	for _, kind := range kinds {
		if !kind.Syncable() {
			continue
		}
		collection := kind.Collection()

		remoteRows, err := e.backend.Select(ctx, collection, remote.Filter{UserID: userID})
		if err != nil {
			return recorded, apperrors.Wrap(apperrors.ErrRemote, "failed to fetch remote records", err)
		}

		for _, row := range remoteRows {
			id := recordIDOf(row)
			if id == "" {
				logging.Warn("Skipping remote record without id",
					map[string]interface{}{"kind": kind})
				continue
			}

			local, err := e.store.Get(collection, id)
			if err == db.ErrNotFound {
				// Remote-only record: adopt it locally.
				if _, err := e.store.Put(collection, &db.CachedRecord{ID: id, Payload: row}); err != nil {
					return recorded, apperrors.Wrap(apperrors.ErrStore, "failed to cache remote record", err)
				}
				continue
			}
			if err != nil {
				return recorded, apperrors.Wrap(apperrors.ErrStore, "failed to read local cache", err)
			}

			class, diverged := conflict.Classify(local.Payload, row)
			if !diverged {
				continue
			}

			if _, err := e.conflicts.Record(kind, id, local.Payload, row, class); err != nil {
				return recorded, apperrors.Wrap(apperrors.ErrStore, "failed to record conflict", err)
			}
			recorded++
		}
	}

	return recorded, nil
}

// Status is a point-in-time snapshot of the engine.
type Status struct {
	Draining  bool       `json:"draining"`
	Online    bool       `json:"online"`
	Pending   int        `json:"pending"`
	LastSync  *time.Time `json:"last_sync,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// Status returns the engine's current state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		Draining: e.draining,
		Online:   e.monitor.Online(),
		LastSync: e.lastSync,
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}
	if n, err := e.queue.Len(); err == nil {
		st.Pending = n
	}
	return st
}

func (e *Engine) setLastErr(err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
}

// recordIDOf extracts the id field from a raw record payload.
func recordIDOf(payload json.RawMessage) models.UUID {
	var probe struct {
		ID models.UUID `json:"id"`
	}
	if err := json.Unmarshal(payload, &probe); err != nil {
		return ""
	}
	return probe.ID
}
