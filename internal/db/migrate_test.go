// Package db tests for database migration management.
package db

import (
	"database/sql"
	"strings"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestInitialize verifies schema_migrations table creation.
func TestInitialize(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db)

	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}

	// Verify table exists
	var tableName string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_migrations'").Scan(&tableName)
	if err != nil {
		t.Errorf("schema_migrations table not found: %v", err)
	}

	// Verify table structure by inserting a test row
	_, err = db.Exec("INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
		1, 123456, "test_migration", strings.Repeat("a", 64))
	if err != nil {
		t.Errorf("Failed to insert test row: %v", err)
	}
}

// TestCurrentVersion verifies version tracking.
func TestCurrentVersion(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db)

	// Before initialization
	if _, err := m.CurrentVersion(); err == nil {
		t.Error("CurrentVersion() should fail before Initialize()")
	}

	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}

	version, err := m.CurrentVersion()
	if err != nil {
		t.Errorf("CurrentVersion() failed: %v", err)
	}
	if version != 0 {
		t.Errorf("CurrentVersion() = %d, want 0", version)
	}
}

// TestUpAppliesEmbeddedMigrations verifies the full embedded migration set
// creates the application schema.
func TestUpAppliesEmbeddedMigrations(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db)

	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	if err := m.Up(); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	for _, table := range []string{"records", "pending_changes", "failed_changes", "conflicts", "sync_status"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("Table %s not created: %v", table, err)
		}
	}

	version, err := m.CurrentVersion()
	if err != nil {
		t.Fatalf("CurrentVersion() failed: %v", err)
	}
	if version < 1 {
		t.Errorf("CurrentVersion() = %d, want >= 1", version)
	}
}

// TestUpIsIdempotent verifies applied migrations are not re-run.
func TestUpIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	m := NewMigrator(db)

	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	if err := m.Up(); err != nil {
		t.Fatalf("First Up() failed: %v", err)
	}

	before, _ := m.GetAppliedMigrations()

	if err := m.Up(); err != nil {
		t.Fatalf("Second Up() failed: %v", err)
	}

	after, err := m.GetAppliedMigrations()
	if err != nil {
		t.Fatalf("GetAppliedMigrations() failed: %v", err)
	}
	if len(before) != len(after) {
		t.Errorf("Second Up() re-applied migrations: %d -> %d", len(before), len(after))
	}
}

// TestUpVersionOrdering verifies migrations apply in version order
// regardless of directory order.
func TestUpVersionOrdering(t *testing.T) {
	db := openTestDB(t)

	src := fstest.MapFS{
		"V2__add_table.up.sql": {Data: []byte(
			"CREATE TABLE second (id TEXT PRIMARY KEY, first_id TEXT REFERENCES first(id));")},
		"V1__base.up.sql": {Data: []byte(
			"CREATE TABLE first (id TEXT PRIMARY KEY);")},
	}
	m := NewMigratorFS(db, src)

	if err := m.Initialize(); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	if err := m.Up(); err != nil {
		t.Fatalf("Up() failed: %v", err)
	}

	applied, err := m.GetAppliedMigrations()
	if err != nil {
		t.Fatalf("GetAppliedMigrations() failed: %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("Expected 2 applied migrations, got %d", len(applied))
	}
	if applied[0].Version != 1 || applied[1].Version != 2 {
		t.Errorf("Migrations applied out of order: %d, %d",
			applied[0].Version, applied[1].Version)
	}
	for _, mig := range applied {
		if len(mig.Checksum) != 64 {
			t.Errorf("V%d: expected sha256 checksum, got %q", mig.Version, mig.Checksum)
		}
	}
}
