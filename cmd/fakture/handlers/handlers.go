// Package handlers provides the localhost REST API for the Fakture sync
// core.
package handlers

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/nordqvist/fakture/internal/errors"
)

// writeJSON encodes v as the JSON response body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeBody decodes the JSON request body into v.
func decodeBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "invalid JSON body", err)
	}
	return nil
}

// writeError maps an application error onto an HTTP response.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := apperrors.ErrInternal

	if appErr, ok := err.(*apperrors.AppError); ok {
		code = appErr.Code
		switch appErr.Code {
		case apperrors.ErrNotFound, apperrors.ErrRecordNotFound, apperrors.ErrConflictNotFound:
			status = http.StatusNotFound
		case apperrors.ErrInvalid, apperrors.ErrValidation, apperrors.ErrRecordInvalid, apperrors.ErrImportInvalid:
			status = http.StatusBadRequest
		case apperrors.ErrSyncInProgress, apperrors.ErrConflictResolved:
			status = http.StatusConflict
		case apperrors.ErrSyncOffline:
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
		"code":  string(code),
	})
}
