// Package export provides unit tests for backup export and import.
package export

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nordqvist/fakture/internal/db"
	apperrors "github.com/nordqvist/fakture/internal/errors"
	"github.com/nordqvist/fakture/internal/models"
)

func setupTestService(t *testing.T) (*Service, *db.Store) {
	t.Helper()
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	migrator := db.NewMigrator(conn)
	if err := migrator.Initialize(); err != nil {
		t.Fatalf("Failed to initialize migrations: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	store := db.NewStore(conn)
	return NewService(store), store
}

const validInvoice = `{"id":"inv-1","number":"2026-001","client_id":"c-1","status":"draft"}`
const validClient = `{"id":"c-1","name":"Acme AB"}`

// TestExportImportRoundTrip verifies records survive a backup cycle.
func TestExportImportRoundTrip(t *testing.T) {
	svc, store := setupTestService(t)

	store.Put("invoices", &db.CachedRecord{ID: "inv-1", Payload: json.RawMessage(validInvoice)})
	store.Put("clients", &db.CachedRecord{ID: "c-1", Payload: json.RawMessage(validClient)})
	store.Put("recurring_invoices", &db.CachedRecord{ID: "rec-1",
		Payload: json.RawMessage(`{"id":"rec-1","interval":"monthly"}`)})

	var buf bytes.Buffer
	if err := svc.Export("u-1", &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	// The file shape carries version, timestamp and user.
	var backup Backup
	if err := json.Unmarshal(buf.Bytes(), &backup); err != nil {
		t.Fatalf("Export produced invalid JSON: %v", err)
	}
	if backup.Version != BackupVersion {
		t.Errorf("Expected version %s, got %s", BackupVersion, backup.Version)
	}
	if backup.UserID != "u-1" {
		t.Errorf("Expected user u-1, got %s", backup.UserID)
	}
	if backup.Timestamp == "" {
		t.Error("Expected a timestamp")
	}
	if len(backup.Data.Invoices) != 1 || len(backup.Data.Clients) != 1 {
		t.Errorf("Expected 1 invoice and 1 client, got %d and %d",
			len(backup.Data.Invoices), len(backup.Data.Clients))
	}
	if len(backup.Data.RecurringInvoices) != 1 {
		t.Errorf("Expected 1 recurring invoice, got %d", len(backup.Data.RecurringInvoices))
	}

	// Import into a fresh store restores the records.
	fresh, freshStore := setupTestService(t)
	result, err := fresh.Import(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Imported != 3 {
		t.Errorf("Expected 3 imported, got %d", result.Imported)
	}
	if result.Skipped != 0 {
		t.Errorf("Expected 0 skipped, got %d", result.Skipped)
	}

	for _, key := range []struct {
		collection string
		id         models.UUID
	}{
		{"invoices", "inv-1"},
		{"clients", "c-1"},
		{"recurring_invoices", "rec-1"},
	} {
		if _, err := freshStore.Get(key.collection, key.id); err != nil {
			t.Errorf("Expected %s/%s after import: %v", key.collection, key.id, err)
		}
	}
}

// TestExportEmptyStore verifies an empty cache exports a valid, empty
// backup.
func TestExportEmptyStore(t *testing.T) {
	svc, _ := setupTestService(t)

	var buf bytes.Buffer
	if err := svc.Export("u-1", &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var backup Backup
	if err := json.Unmarshal(buf.Bytes(), &backup); err != nil {
		t.Fatalf("Export produced invalid JSON: %v", err)
	}
	if backup.Data == nil {
		t.Fatal("Expected a data section")
	}
	if len(backup.Data.Invoices) != 0 || len(backup.Data.Clients) != 0 {
		t.Errorf("Expected no records, got %d invoices and %d clients",
			len(backup.Data.Invoices), len(backup.Data.Clients))
	}

	fresh, _ := setupTestService(t)
	result, err := fresh.Import(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Import of empty backup failed: %v", err)
	}
	if result.Imported != 0 || result.Skipped != 0 {
		t.Errorf("Expected empty import, got %d imported and %d skipped",
			result.Imported, result.Skipped)
	}
}

// TestExportIncludesProfile verifies the profile exports as a single
// document, not a list.
func TestExportIncludesProfile(t *testing.T) {
	svc, store := setupTestService(t)

	store.Put("profiles", &db.CachedRecord{ID: "u-1",
		Payload: json.RawMessage(`{"id":"u-1","business_name":"Nord Consulting"}`)})

	var buf bytes.Buffer
	if err := svc.Export("u-1", &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var backup Backup
	if err := json.Unmarshal(buf.Bytes(), &backup); err != nil {
		t.Fatalf("Export produced invalid JSON: %v", err)
	}
	if len(backup.Data.Profile) == 0 {
		t.Fatal("Expected profile in backup")
	}

	var profile map[string]interface{}
	if err := json.Unmarshal(backup.Data.Profile, &profile); err != nil {
		t.Fatalf("Profile is not a JSON object: %v", err)
	}
	if profile["business_name"] != "Nord Consulting" {
		t.Errorf("Unexpected profile payload: %v", profile)
	}
}

// TestImportRejectsMalformedFiles verifies strict validation happens
// before any write.
func TestImportRejectsMalformedFiles(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not JSON", `this is not a backup`},
		{"missing version", `{"timestamp":"t","user_id":"u-1","data":{}}`},
		{"missing user_id", `{"version":"1.0","timestamp":"t","data":{}}`},
		{"missing data", `{"version":"1.0","timestamp":"t","user_id":"u-1"}`},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			svc, store := setupTestService(t)

			_, err := svc.Import(strings.NewReader(c.body))
			if err == nil {
				t.Fatal("Expected import to be rejected")
			}
			if !apperrors.Is(err, apperrors.ErrImportInvalid) {
				t.Errorf("Expected IMPORT_INVALID, got %v", err)
			}

			// Nothing was written.
			for _, collection := range []string{"invoices", "estimates", "clients"} {
				records, _ := store.GetAll(collection)
				if len(records) != 0 {
					t.Errorf("Rejected import wrote to %s", collection)
				}
			}
		})
	}
}

// TestImportSkipsInvalidRecords verifies per-record validation failures
// are counted, not fatal.
func TestImportSkipsInvalidRecords(t *testing.T) {
	svc, store := setupTestService(t)

	body := `{
		"version": "1.0",
		"timestamp": "2026-09-01T10:00:00Z",
		"user_id": "u-1",
		"data": {
			"invoices": [
				` + validInvoice + `,
				{"id":"inv-bad","client_id":"c-1","status":"draft"}
			],
			"clients": [` + validClient + `]
		}
	}`

	result, err := svc.Import(strings.NewReader(body))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Imported != 2 {
		t.Errorf("Expected 2 imported, got %d", result.Imported)
	}
	if result.Skipped != 1 {
		t.Errorf("Expected 1 skipped, got %d", result.Skipped)
	}

	// The invalid invoice did not block the valid records.
	if _, err := store.Get("invoices", "inv-1"); err != nil {
		t.Errorf("Valid invoice missing: %v", err)
	}
	if _, err := store.Get("clients", "c-1"); err != nil {
		t.Errorf("Valid client missing: %v", err)
	}
	if _, err := store.Get("invoices", "inv-bad"); err == nil {
		t.Error("Invalid invoice should not be imported")
	}
}

// TestImportKindsAreIndependent verifies a fully invalid entity list does
// not stop the others.
func TestImportKindsAreIndependent(t *testing.T) {
	svc, store := setupTestService(t)

	body := `{
		"version": "1.0",
		"timestamp": "2026-09-01T10:00:00Z",
		"user_id": "u-1",
		"data": {
			"invoices": [{"broken": true}],
			"clients": [` + validClient + `]
		}
	}`

	result, err := svc.Import(strings.NewReader(body))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Imported != 1 || result.Skipped != 1 {
		t.Errorf("Expected 1 imported and 1 skipped, got %d and %d",
			result.Imported, result.Skipped)
	}
	if _, err := store.Get("clients", "c-1"); err != nil {
		t.Errorf("Client import should survive invoice failures: %v", err)
	}
}

// TestImportProfile verifies the single-document profile entry.
func TestImportProfile(t *testing.T) {
	svc, store := setupTestService(t)

	body := `{
		"version": "1.0",
		"timestamp": "2026-09-01T10:00:00Z",
		"user_id": "u-1",
		"data": {
			"profile": {"id":"u-1","business_name":"Nord Consulting"}
		}
	}`

	result, err := svc.Import(strings.NewReader(body))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Imported != 1 {
		t.Errorf("Expected 1 imported, got %d", result.Imported)
	}
	if _, err := store.Get("profiles", "u-1"); err != nil {
		t.Errorf("Expected profile in cache: %v", err)
	}
}

// TestBackupFileName verifies the canonical file naming.
func TestBackupFileName(t *testing.T) {
	at, err := time.Parse(time.RFC3339, "2026-09-01T10:30:45Z")
	if err != nil {
		t.Fatalf("time.Parse failed: %v", err)
	}
	name := BackupFileName(at)
	if name != "fakture_backup_20260901_103045.json" {
		t.Errorf("Unexpected file name: %s", name)
	}
}
