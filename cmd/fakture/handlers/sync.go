package handlers

import (
	"net/http"

	apperrors "github.com/nordqvist/fakture/internal/errors"
	"github.com/nordqvist/fakture/internal/models"
	syncpkg "github.com/nordqvist/fakture/internal/sync"
	"github.com/nordqvist/fakture/internal/sync/scheduler"
)

// SyncHandler exposes sync status, explicit drains, reconciliation and
// the failed-change log.
type SyncHandler struct {
	engine    *syncpkg.Engine
	scheduler *scheduler.Scheduler
	userID    models.UUID
}

// NewSyncHandler creates a SyncHandler.
func NewSyncHandler(engine *syncpkg.Engine, sched *scheduler.Scheduler, userID models.UUID) *SyncHandler {
	return &SyncHandler{engine: engine, scheduler: sched, userID: userID}
}

// Status handles GET /sync/status.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"engine":    h.engine.Status(),
		"scheduler": h.scheduler.GetStatus(),
	})
}

// SyncNow handles POST /sync/now, the explicit "sync now" action.
func (h *SyncHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := h.scheduler.SyncNow(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"applied":  result.Applied,
		"retained": result.Retained,
		"dropped":  result.Dropped,
		"duration": result.Duration.Milliseconds(),
	})
}

// Reconcile handles POST /sync/reconcile. Remote records are pulled for
// every syncable kind; remote-only records land in the cache and
// divergences are recorded as conflicts for review.
func (h *SyncHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	recorded, err := h.engine.Reconcile(r.Context(), h.userID, models.SyncableKinds()...)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"conflicts": recorded})
}

// Failed handles GET /sync/failed, listing changes that exhausted their retries.
func (h *SyncHandler) Failed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	failed, err := h.engine.Queue().Failed()
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrStore, "failed to list failed changes", err))
		return
	}
	if failed == nil {
		failed = []*models.FailedChange{}
	}
	writeJSON(w, http.StatusOK, failed)
}

// Requeue handles POST /sync/failed/requeue with body {"id": "..."}.
// The change re-enters the pending log with a reset attempt counter.
func (h *SyncHandler) Requeue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID models.UUID `json:"id"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ID == "" {
		writeError(w, apperrors.New(apperrors.ErrInvalid, "id is required"))
		return
	}

	if err := h.engine.Queue().Requeue(req.ID); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrStore, "failed to requeue change", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"requeued": true})
}
