package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/nordqvist/fakture/internal/db"
	apperrors "github.com/nordqvist/fakture/internal/errors"
	"github.com/nordqvist/fakture/internal/models"
	syncpkg "github.com/nordqvist/fakture/internal/sync"
)

// RecordsHandler serves record CRUD through the local cache. Every
// mutation goes through the sync engine so it is queued for the remote
// backend.
type RecordsHandler struct {
	store  *db.Store
	engine *syncpkg.Engine
}

// NewRecordsHandler creates a RecordsHandler.
func NewRecordsHandler(store *db.Store, engine *syncpkg.Engine) *RecordsHandler {
	return &RecordsHandler{store: store, engine: engine}
}

// ServeHTTP routes /records/{collection} and /records/{collection}/{id}.
func (h *RecordsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/records/")
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)

	if parts[0] == "" {
		writeError(w, apperrors.New(apperrors.ErrInvalid, "collection is required"))
		return
	}

	kind, err := models.ParseKind(parts[0])
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "unknown collection", err))
		return
	}

	var id models.UUID
	if len(parts) == 2 {
		id = models.UUID(parts[1])
	}

	switch {
	case r.Method == http.MethodGet && id == "":
		h.list(w, kind)
	case r.Method == http.MethodGet:
		h.get(w, kind, id)
	case r.Method == http.MethodPost && id == "":
		h.create(w, r, kind)
	case r.Method == http.MethodPut && id != "":
		h.update(w, r, kind, id)
	case r.Method == http.MethodDelete && id != "":
		h.delete(w, r, kind, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *RecordsHandler) list(w http.ResponseWriter, kind models.Kind) {
	records, err := h.store.GetAll(kind.Collection())
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrStore, "failed to list records", err))
		return
	}

	payloads := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		payloads = append(payloads, rec.Payload)
	}
	writeJSON(w, http.StatusOK, payloads)
}

func (h *RecordsHandler) get(w http.ResponseWriter, kind models.Kind, id models.UUID) {
	rec, err := h.store.Get(kind.Collection(), id)
	if err == db.ErrNotFound {
		writeError(w, apperrors.New(apperrors.ErrRecordNotFound, "record not found"))
		return
	}
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrStore, "failed to read record", err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(rec.Payload)
}

func (h *RecordsHandler) create(w http.ResponseWriter, r *http.Request, kind models.Kind) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "failed to read body", err))
		return
	}

	cached, err := h.engine.Apply(r.Context(), kind, models.OperationCreate, "", payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, cached)
}

func (h *RecordsHandler) update(w http.ResponseWriter, r *http.Request, kind models.Kind, id models.UUID) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "failed to read body", err))
		return
	}

	cached, err := h.engine.Apply(r.Context(), kind, models.OperationUpdate, id, payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cached)
}

func (h *RecordsHandler) delete(w http.ResponseWriter, r *http.Request, kind models.Kind, id models.UUID) {
	if _, err := h.engine.Apply(r.Context(), kind, models.OperationDelete, id, nil); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": true})
}
