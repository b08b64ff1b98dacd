package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/nordqvist/fakture/internal/export"
	"github.com/nordqvist/fakture/internal/models"
)

// BackupHandler exposes backup export and import over HTTP.
type BackupHandler struct {
	service *export.Service
	userID  models.UUID
}

// NewBackupHandler creates a BackupHandler.
func NewBackupHandler(service *export.Service, userID models.UUID) *BackupHandler {
	return &BackupHandler{service: service, userID: userID}
}

// Export handles GET /backup/export. It streams the backup file as an
// attachment.
func (h *BackupHandler) Export(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", export.BackupFileName(time.Now())))

	if err := h.service.Export(h.userID, w); err != nil {
		// Headers are already out at this point; the truncated body is
		// the best signal we can give.
		return
	}
}

// Import handles POST /backup/import. The request body is the backup
// file itself.
func (h *BackupHandler) Import(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := h.service.Import(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
