// Package conflict provides divergence detection and resolution between
// the local cache and the remote backend.
package conflict

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nordqvist/fakture/internal/db"
	apperrors "github.com/nordqvist/fakture/internal/errors"
	"github.com/nordqvist/fakture/internal/logging"
	"github.com/nordqvist/fakture/internal/models"
	"github.com/nordqvist/fakture/internal/notify"
	"github.com/nordqvist/fakture/internal/remote"
	"github.com/nordqvist/fakture/internal/telemetry"
)

// Resolver applies a chosen resolution strategy to a recorded conflict.
type Resolver struct {
	store   *db.Store
	backend remote.Backend
	sink    notify.Sink
}

// NewResolver creates a Resolver. A nil sink discards notifications.
func NewResolver(store *db.Store, backend remote.Backend, sink notify.Sink) *Resolver {
	if sink == nil {
		sink = notify.Discard
	}
	return &Resolver{store: store, backend: backend, sink: sink}
}

// Resolve applies the strategy to the conflict:
//
//   - use-local: the remote record is overwritten with the local snapshot
//   - use-remote: the local cache is overwritten with the remote snapshot
//   - merge: remote fields as the base, local fields winning on collision,
//     stamped with a fresh updated_at, written to both sides
//   - manual: returns without resolving; the caller drives a custom flow
//
// When a remote write fails the conflict stays unresolved and the user is
// notified.
func (r *Resolver) Resolve(ctx context.Context, conflictID models.UUID, strategy models.Resolution) error {
	c, err := r.store.GetConflict(conflictID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrConflictNotFound, "conflict not found", err)
	}
	if c.Resolved {
		return apperrors.New(apperrors.ErrConflictResolved,
			fmt.Sprintf("conflict %s is already resolved", conflictID))
	}

	collection := c.Kind.Collection()

	switch strategy {
	case models.ResolutionUseLocal:
		if err := r.backend.Upsert(ctx, collection, c.LocalSnapshot); err != nil {
			return r.remoteFailure(c, err)
		}
		if err := r.writeCache(collection, c.RecordID, c.LocalSnapshot); err != nil {
			return err
		}

	case models.ResolutionUseRemote:
		if err := r.writeCache(collection, c.RecordID, c.RemoteSnapshot); err != nil {
			return err
		}

	case models.ResolutionMerge:
		merged, err := Merge(c.LocalSnapshot, c.RemoteSnapshot)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInternal, "merge failed", err)
		}
		if err := r.backend.Upsert(ctx, collection, merged); err != nil {
			return r.remoteFailure(c, err)
		}
		if err := r.writeCache(collection, c.RecordID, merged); err != nil {
			return err
		}

	case models.ResolutionManual:
		// Manual resolution is driven entirely by the caller's UI flow.
		return nil

	default:
		return apperrors.New(apperrors.ErrInvalid,
			fmt.Sprintf("unknown resolution strategy %q", strategy))
	}

	if err := r.store.MarkConflictResolved(c.ID, strategy); err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "failed to mark conflict resolved", err)
	}

	telemetry.Count("conflicts.resolved", 1)

	logging.Info("Conflict resolved",
		map[string]interface{}{
			"conflict_id": c.ID,
			"kind":        c.Kind,
			"record_id":   c.RecordID,
			"resolution":  strategy,
		})

	r.sink.Notify(notify.New(
		notify.TitleConflictResolved,
		fmt.Sprintf("The %s conflict was resolved.", c.Kind),
		notify.LevelSuccess,
	))

	return nil
}

// AutoResolve batch-applies use-local to local-newer conflicts and
// use-remote to remote-newer conflicts. Both-modified conflicts are
// skipped; they require manual review. Returns the count resolved.
func (r *Resolver) AutoResolve(ctx context.Context) (int, error) {
	unresolved, err := r.store.UnresolvedConflicts()
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, c := range unresolved {
		var strategy models.Resolution
		switch c.Classification {
		case models.ClassificationLocalNewer:
			strategy = models.ResolutionUseLocal
		case models.ClassificationRemoteNewer:
			strategy = models.ResolutionUseRemote
		default:
			// Simultaneous divergent edits cannot be auto-resolved.
			continue
		}

		if err := r.Resolve(ctx, c.ID, strategy); err != nil {
			logging.Error("Auto-resolution failed", err,
				map[string]interface{}{"conflict_id": c.ID})
			continue
		}
		resolved++
	}

	return resolved, nil
}

// Merge shallow-merges the remote fields as the base with local fields
// taking precedence on key collisions, then stamps a fresh updated_at.
// This is a field-level override merge, not a semantic 3-way merge.
func Merge(local, remote json.RawMessage) (json.RawMessage, error) {
	var localFields, remoteFields map[string]interface{}
	if err := json.Unmarshal(local, &localFields); err != nil {
		return nil, fmt.Errorf("decode local snapshot: %w", err)
	}
	if err := json.Unmarshal(remote, &remoteFields); err != nil {
		return nil, fmt.Errorf("decode remote snapshot: %w", err)
	}

	merged := make(map[string]interface{}, len(remoteFields)+len(localFields))
	for k, v := range remoteFields {
		merged[k] = v
	}
	for k, v := range localFields {
		merged[k] = v
	}
	merged["updated_at"] = time.Now().Unix()

	return json.Marshal(merged)
}

func (r *Resolver) writeCache(collection string, id models.UUID, payload json.RawMessage) error {
	_, err := r.store.Put(collection, &db.CachedRecord{ID: id, Payload: payload})
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "failed to update local cache", err)
	}
	return nil
}

func (r *Resolver) remoteFailure(c *models.Conflict, err error) error {
	logging.Error("Conflict resolution remote write failed", err,
		map[string]interface{}{"conflict_id": c.ID, "kind": c.Kind})

	r.sink.Notify(notify.New(
		notify.TitleSyncFailed,
		fmt.Sprintf("Could not apply the %s conflict resolution: %v", c.Kind, err),
		notify.LevelError,
	))

	return apperrors.Wrap(apperrors.ErrConflictUnresolved,
		"remote write failed; conflict remains unresolved", err)
}
