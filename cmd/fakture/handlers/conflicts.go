package handlers

import (
	"net/http"
	"sync"

	apperrors "github.com/nordqvist/fakture/internal/errors"
	"github.com/nordqvist/fakture/internal/models"
	"github.com/nordqvist/fakture/internal/sync/conflict"
	"github.com/nordqvist/fakture/internal/sync/review"
)

// ConflictsHandler exposes the conflict log, resolution operations and
// the one-at-a-time review flow.
type ConflictsHandler struct {
	log      *conflict.Log
	resolver *conflict.Resolver

	mu      sync.Mutex
	session *review.Session
}

// NewConflictsHandler creates a ConflictsHandler.
func NewConflictsHandler(log *conflict.Log, resolver *conflict.Resolver) *ConflictsHandler {
	return &ConflictsHandler{log: log, resolver: resolver}
}

// List handles GET /conflicts, returning all unresolved conflicts oldest first.
func (h *ConflictsHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	conflicts, err := h.log.Unresolved()
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrStore, "failed to list conflicts", err))
		return
	}
	if conflicts == nil {
		conflicts = []*models.Conflict{}
	}
	writeJSON(w, http.StatusOK, conflicts)
}

// Resolve handles POST /conflicts/resolve with body
// {"id": "...", "strategy": "use-local|use-remote|merge|manual"}.
func (h *ConflictsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ID       models.UUID       `json:"id"`
		Strategy models.Resolution `json:"strategy"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ID == "" || req.Strategy == "" {
		writeError(w, apperrors.New(apperrors.ErrInvalid, "id and strategy are required"))
		return
	}

	if err := h.resolver.Resolve(r.Context(), req.ID, req.Strategy); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"resolved": req.Strategy != models.ResolutionManual})
}

// AutoResolve handles POST /conflicts/auto-resolve. Both-modified
// conflicts are left for manual review.
func (h *ConflictsHandler) AutoResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resolved, err := h.resolver.AutoResolve(r.Context())
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrStore, "auto-resolve failed", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"resolved": resolved})
}

// ReviewOpen handles POST /conflicts/review/open. It starts a fresh
// review session over the unresolved conflicts; any earlier session is
// discarded.
func (h *ConflictsHandler) ReviewOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session := review.NewSession(h.log, h.resolver)
	if err := session.Open(); err != nil {
		writeError(w, err)
		return
	}

	h.mu.Lock()
	h.session = session
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, reviewSnapshot(session))
}

// ReviewCurrent handles GET /conflicts/review/current, returning the
// session state and the conflict under review.
func (h *ConflictsHandler) ReviewCurrent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, err := h.currentSession()
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reviewSnapshot(session))
}

// ReviewResolve handles POST /conflicts/review/resolve with body
// {"strategy": "use-local|use-remote|merge|manual"}. On success the
// session advances to the next conflict.
func (h *ConflictsHandler) ReviewResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, err := h.currentSession()
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Strategy models.Resolution `json:"strategy"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Strategy == "" {
		writeError(w, apperrors.New(apperrors.ErrInvalid, "strategy is required"))
		return
	}

	if err := session.Resolve(r.Context(), req.Strategy); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reviewSnapshot(session))
}

// ReviewSkip handles POST /conflicts/review/skip. The skipped conflict
// stays unresolved and reappears on the next open.
func (h *ConflictsHandler) ReviewSkip(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, err := h.currentSession()
	if err != nil {
		writeError(w, err)
		return
	}

	session.Skip()
	writeJSON(w, http.StatusOK, reviewSnapshot(session))
}

// ReviewClose handles POST /conflicts/review/close.
func (h *ConflictsHandler) ReviewClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session, err := h.currentSession()
	if err != nil {
		writeError(w, err)
		return
	}

	session.Close()
	writeJSON(w, http.StatusOK, reviewSnapshot(session))
}

func (h *ConflictsHandler) currentSession() (*review.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.session == nil {
		return nil, apperrors.New(apperrors.ErrNotFound, "no review session is open")
	}
	return h.session, nil
}

// reviewSnapshot is the wire shape of the session state.
func reviewSnapshot(s *review.Session) map[string]interface{} {
	snap := map[string]interface{}{
		"state":     s.State(),
		"remaining": s.Remaining(),
	}
	if current := s.Current(); current != nil {
		snap["current"] = current
	}
	return snap
}

// Purge handles POST /conflicts/purge, removing resolved conflicts.
func (h *ConflictsHandler) Purge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	purged, err := h.log.PurgeResolved()
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrStore, "purge failed", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"purged": purged})
}
