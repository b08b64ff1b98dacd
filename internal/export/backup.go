// Package export provides JSON backup export and import for the local
// cache.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/nordqvist/fakture/internal/db"
	apperrors "github.com/nordqvist/fakture/internal/errors"
	"github.com/nordqvist/fakture/internal/logging"
	"github.com/nordqvist/fakture/internal/models"
)

// BackupVersion is the current backup file format version.
const BackupVersion = "1.0"

// Backup is the JSON backup file shape. Import rejects any file missing
// version, user_id, or data before a single record is written.
type Backup struct {
	Version   string      `json:"version"`
	Timestamp string      `json:"timestamp"`
	UserID    models.UUID `json:"user_id"`
	Data      *BackupData `json:"data"`
}

// BackupData holds the per-entity record lists. Every list is optional;
// entity types import independently of one another.
type BackupData struct {
	Invoices          []json.RawMessage `json:"invoices,omitempty"`
	Estimates         []json.RawMessage `json:"estimates,omitempty"`
	Clients           []json.RawMessage `json:"clients,omitempty"`
	RecurringInvoices []json.RawMessage `json:"recurring_invoices,omitempty"`
	Profile           json.RawMessage   `json:"profile,omitempty"`
}

// ImportResult summarizes an import.
type ImportResult struct {
	Imported int            `json:"imported"`
	Skipped  int            `json:"skipped"`
	PerKind  map[string]int `json:"per_kind"`
}

// Service provides backup export/import over the local cache store.
type Service struct {
	store *db.Store
}

// NewService creates a backup service.
func NewService(store *db.Store) *Service {
	return &Service{store: store}
}

// Export writes a backup of the user's cached records to w.
func (s *Service) Export(userID models.UUID, w io.Writer) error {
	backup := Backup{
		Version:   BackupVersion,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		UserID:    userID,
		Data:      &BackupData{},
	}

	var err error
	if backup.Data.Invoices, err = s.collect(models.KindInvoice); err != nil {
		return apperrors.Wrap(apperrors.ErrExportFailed, "failed to read invoices", err)
	}
	if backup.Data.Estimates, err = s.collect(models.KindEstimate); err != nil {
		return apperrors.Wrap(apperrors.ErrExportFailed, "failed to read estimates", err)
	}
	if backup.Data.Clients, err = s.collect(models.KindClient); err != nil {
		return apperrors.Wrap(apperrors.ErrExportFailed, "failed to read clients", err)
	}
	if backup.Data.RecurringInvoices, err = s.collect(models.KindRecurringInvoice); err != nil {
		return apperrors.Wrap(apperrors.ErrExportFailed, "failed to read recurring invoices", err)
	}

	if profiles, err := s.collect(models.KindProfile); err == nil && len(profiles) > 0 {
		backup.Data.Profile = profiles[0]
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&backup); err != nil {
		return apperrors.Wrap(apperrors.ErrExportFailed, "failed to write backup", err)
	}
	return nil
}

// collect reads every cached record of a kind as raw payloads.
func (s *Service) collect(kind models.Kind) ([]json.RawMessage, error) {
	records, err := s.store.GetAll(kind.Collection())
	if err != nil {
		return nil, err
	}

	payloads := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		payloads = append(payloads, rec.Payload)
	}
	return payloads, nil
}

// ExportFile writes a backup to path, creating parent directories.
func (s *Service) ExportFile(userID models.UUID, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return apperrors.Wrap(apperrors.ErrExportFailed, "failed to create backup directory", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrExportFailed, "failed to create backup file", err)
	}
	defer f.Close()

	return s.Export(userID, f)
}

// Import reads a backup from r and writes its records into the local
// cache. The file shape is validated strictly before any write; a file
// missing version, user_id, or data is rejected outright. Records that
// fail validation are skipped and counted, and each entity type imports
// independently of the others.
func (s *Service) Import(r io.Reader) (*ImportResult, error) {
	var backup Backup
	dec := json.NewDecoder(r)
	if err := dec.Decode(&backup); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrImportInvalid, "backup file is not valid JSON", err)
	}

	if err := validateBackup(&backup); err != nil {
		return nil, err
	}

	result := &ImportResult{PerKind: make(map[string]int)}

	s.importKind(models.KindInvoice, backup.Data.Invoices, result)
	s.importKind(models.KindEstimate, backup.Data.Estimates, result)
	s.importKind(models.KindClient, backup.Data.Clients, result)
	s.importRaw(models.KindRecurringInvoice, backup.Data.RecurringInvoices, result)

	if len(backup.Data.Profile) > 0 {
		s.importRaw(models.KindProfile, []json.RawMessage{backup.Data.Profile}, result)
	}

	logging.Info("Backup imported",
		map[string]interface{}{
			"user_id":  backup.UserID,
			"imported": result.Imported,
			"skipped":  result.Skipped,
		})

	return result, nil
}

// ImportFile reads a backup from path.
func (s *Service) ImportFile(path string) (*ImportResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrImportFailed, "failed to open backup file", err)
	}
	defer f.Close()

	return s.Import(f)
}

// validateBackup rejects malformed backup files before any write occurs.
func validateBackup(b *Backup) error {
	if b.Version == "" {
		return apperrors.New(apperrors.ErrImportInvalid, "backup file is missing version")
	}
	if b.UserID == "" {
		return apperrors.New(apperrors.ErrImportInvalid, "backup file is missing user_id")
	}
	if b.Data == nil {
		return apperrors.New(apperrors.ErrImportInvalid, "backup file is missing data")
	}
	return nil
}

// importKind imports typed records, validating each through its schema.
func (s *Service) importKind(kind models.Kind, rows []json.RawMessage, result *ImportResult) {
	collection := kind.Collection()

	for _, row := range rows {
		rec, err := models.Decode(kind, row)
		if err != nil {
			logging.Warn("Skipping invalid record in backup",
				map[string]interface{}{"kind": kind, "error": err.Error()})
			result.Skipped++
			continue
		}

		if _, err := s.store.Put(collection, &db.CachedRecord{ID: rec.RecordID(), Payload: row}); err != nil {
			logging.Error("Failed to import record", err,
				map[string]interface{}{"kind": kind, "record_id": rec.RecordID()})
			result.Skipped++
			continue
		}

		result.Imported++
		result.PerKind[collection]++
	}
}

// importRaw imports backup-only kinds that carry no typed schema.
func (s *Service) importRaw(kind models.Kind, rows []json.RawMessage, result *ImportResult) {
	collection := kind.Collection()

	for _, row := range rows {
		id := recordIDOf(row)
		if id == "" {
			result.Skipped++
			continue
		}

		if _, err := s.store.Put(collection, &db.CachedRecord{ID: id, Payload: row}); err != nil {
			result.Skipped++
			continue
		}

		result.Imported++
		result.PerKind[collection]++
	}
}

func recordIDOf(payload json.RawMessage) models.UUID {
	var head struct {
		ID models.UUID `json:"id"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return ""
	}
	return head.ID
}

// BackupFileName returns the canonical name for a backup written at t.
func BackupFileName(t time.Time) string {
	return fmt.Sprintf("fakture_backup_%s.json", t.Format("20060102_150405"))
}
