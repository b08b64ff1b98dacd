// Package review provides unit tests for the conflict review session.
package review

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/nordqvist/fakture/internal/db"
	"github.com/nordqvist/fakture/internal/models"
	"github.com/nordqvist/fakture/internal/notify"
	"github.com/nordqvist/fakture/internal/remote"
	"github.com/nordqvist/fakture/internal/sync/conflict"
)

// nullBackend accepts every remote call.
type nullBackend struct{}

func (nullBackend) Upsert(ctx context.Context, collection string, record json.RawMessage) error {
	return nil
}
func (nullBackend) Delete(ctx context.Context, collection string, id models.UUID) error {
	return nil
}
func (nullBackend) Select(ctx context.Context, collection string, filter remote.Filter) ([]json.RawMessage, error) {
	return nil, nil
}

func setupSession(t *testing.T, conflicts int) (*Session, *conflict.Log) {
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
	log := conflict.NewLog(store, notify.Discard)
	resolver := conflict.NewResolver(store, nullBackend{}, notify.Discard)

	for i := 0; i < conflicts; i++ {
		recordID := models.UUID(fmt.Sprintf("inv-%d", i))
		_, err := log.Record(models.KindInvoice, recordID,
			json.RawMessage(fmt.Sprintf(`{"id":"%s","updated_at":300}`, recordID)),
			json.RawMessage(fmt.Sprintf(`{"id":"%s","updated_at":200}`, recordID)),
			models.ClassificationLocalNewer)
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	return NewSession(log, resolver), log
}

// TestSessionStartsLoading verifies the initial state.
func TestSessionStartsLoading(t *testing.T) {
	s, _ := setupSession(t, 0)
	if s.State() != StateLoading {
		t.Errorf("Expected loading, got %s", s.State())
	}
}

// TestOpenWithNoConflicts verifies the empty transition.
func TestOpenWithNoConflicts(t *testing.T) {
	s, _ := setupSession(t, 0)

	if err := s.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if s.State() != StateEmpty {
		t.Errorf("Expected empty, got %s", s.State())
	}
	if s.Current() != nil {
		t.Error("Expected no current conflict")
	}
}

// TestOpenWithConflicts verifies the reviewing transition.
func TestOpenWithConflicts(t *testing.T) {
	s, _ := setupSession(t, 2)

	if err := s.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if s.State() != StateReviewing {
		t.Errorf("Expected reviewing, got %s", s.State())
	}
	if s.Current() == nil {
		t.Error("Expected a current conflict")
	}
	if s.Remaining() != 2 {
		t.Errorf("Expected 2 remaining, got %d", s.Remaining())
	}
}

// TestResolveAdvances verifies resolutions walk the list to empty.
func TestResolveAdvances(t *testing.T) {
	s, _ := setupSession(t, 2)
	ctx := context.Background()
	s.Open()

	first := s.Current()
	if err := s.Resolve(ctx, models.ResolutionUseLocal); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if s.State() != StateReviewing {
		t.Errorf("Expected reviewing after first resolve, got %s", s.State())
	}
	second := s.Current()
	if second == nil || second.ID == first.ID {
		t.Error("Expected the session to advance to the next conflict")
	}

	if err := s.Resolve(ctx, models.ResolutionUseRemote); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if s.State() != StateEmpty {
		t.Errorf("Expected empty after last resolve, got %s", s.State())
	}
}

// TestResolveManualStaysOnCurrent verifies the manual strategy keeps the
// conflict under review.
func TestResolveManualStaysOnCurrent(t *testing.T) {
	s, _ := setupSession(t, 1)
	ctx := context.Background()
	s.Open()

	current := s.Current()
	if err := s.Resolve(ctx, models.ResolutionManual); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if s.State() != StateReviewing {
		t.Errorf("Expected reviewing, got %s", s.State())
	}
	if s.Current() == nil || s.Current().ID != current.ID {
		t.Error("Manual strategy must keep the current conflict in place")
	}
}

// TestResolveOutsideReviewing verifies resolution is rejected without a
// current conflict.
func TestResolveOutsideReviewing(t *testing.T) {
	s, _ := setupSession(t, 0)
	s.Open()

	if err := s.Resolve(context.Background(), models.ResolutionUseLocal); err == nil {
		t.Error("Expected error outside reviewing")
	}
}

// TestSkip verifies skipped conflicts stay unresolved but the session
// moves on.
func TestSkip(t *testing.T) {
	s, log := setupSession(t, 2)
	s.Open()

	s.Skip()
	if s.State() != StateReviewing {
		t.Errorf("Expected reviewing after first skip, got %s", s.State())
	}
	s.Skip()
	if s.State() != StateEmpty {
		t.Errorf("Expected empty after last skip, got %s", s.State())
	}

	// Skipped conflicts reappear on the next open.
	unresolved, err := log.Unresolved()
	if err != nil {
		t.Fatalf("Unresolved failed: %v", err)
	}
	if len(unresolved) != 2 {
		t.Errorf("Expected 2 unresolved after skipping, got %d", len(unresolved))
	}
	if err := s.Open(); err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	if s.Remaining() != 2 {
		t.Errorf("Expected 2 remaining after reopen, got %d", s.Remaining())
	}
}

// TestCloseFromAnyState verifies dismissal.
func TestCloseFromAnyState(t *testing.T) {
	s, _ := setupSession(t, 1)

	s.Close()
	if s.State() != StateClosed {
		t.Errorf("Expected closed from loading, got %s", s.State())
	}

	s, _ = setupSession(t, 1)
	s.Open()
	s.Close()
	if s.State() != StateClosed {
		t.Errorf("Expected closed from reviewing, got %s", s.State())
	}
}
