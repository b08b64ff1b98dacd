// Integration tests for offline-first behavior: every record operation
// must work with no network connectivity, and queued work must drain
// cleanly once connectivity returns.
package integration

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/nordqvist/fakture/internal/db"
	"github.com/nordqvist/fakture/internal/export"
	"github.com/nordqvist/fakture/internal/models"
	"github.com/nordqvist/fakture/internal/notify"
	"github.com/nordqvist/fakture/internal/remote"
	syncpkg "github.com/nordqvist/fakture/internal/sync"
	"github.com/nordqvist/fakture/internal/sync/conflict"
	"github.com/nordqvist/fakture/internal/sync/monitor"
	"github.com/nordqvist/fakture/internal/sync/queue"
)

// recordingBackend captures every remote operation in order.
type recordingBackend struct {
	mu  sync.Mutex
	ops []string
}

func (b *recordingBackend) Upsert(ctx context.Context, collection string, record json.RawMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = append(b.ops, "upsert:"+collection)
	return nil
}

func (b *recordingBackend) Delete(ctx context.Context, collection string, id models.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ops = append(b.ops, "delete:"+collection+":"+id.String())
	return nil
}

func (b *recordingBackend) Select(ctx context.Context, collection string, filter remote.Filter) ([]json.RawMessage, error) {
	return nil, nil
}

func (b *recordingBackend) Ping(ctx context.Context) error { return nil }

func (b *recordingBackend) operations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.ops...)
}

// stack is a fully wired sync core over a real on-disk database.
type stack struct {
	store   *db.Store
	queue   *queue.Log
	backend *recordingBackend
	mon     *monitor.Manual
	engine  *syncpkg.Engine
	backups *export.Service
}

func setupStack(t *testing.T) *stack {
	t.Helper()

	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	migrator := db.NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		t.Fatalf("Failed to initialize migrations: %v", err)
	}
	if err := migrator.Up(); err != nil {
		t.Fatalf("Failed to apply migrations: %v", err)
	}

	store := db.NewStore(database.DB)
	backend := &recordingBackend{}
	mon := monitor.NewManual(false)
	sink := notify.NewMemory()
	q := queue.NewLog(store)
	conflicts := conflict.NewLog(store, sink)

	return &stack{
		store:   store,
		queue:   q,
		backend: backend,
		mon:     mon,
		engine:  syncpkg.NewEngine(store, q, backend, mon, conflicts, sink),
		backups: export.NewService(store),
	}
}

// TestOfflineRecordLifecycle verifies the full offline workflow: all
// CRUD against the local cache with no connectivity, then a clean
// drain once connectivity returns.
func TestOfflineRecordLifecycle(t *testing.T) {
	s := setupStack(t)
	ctx := context.Background()

	clientPayload := json.RawMessage(`{"id":"c-1","name":"Acme AB","email":"billing@acme.se","created_at":100,"updated_at":100}`)
	invoicePayload := json.RawMessage(`{"id":"inv-1","number":"2026-001","client_id":"c-1","status":"draft","created_at":100,"updated_at":100}`)

	t.Run("CreateOffline", func(t *testing.T) {
		if _, err := s.engine.Apply(ctx, models.KindClient, models.OperationCreate, "", clientPayload); err != nil {
			t.Fatalf("Create client failed: %v", err)
		}
		if _, err := s.engine.Apply(ctx, models.KindInvoice, models.OperationCreate, "", invoicePayload); err != nil {
			t.Fatalf("Create invoice failed: %v", err)
		}

		if len(s.backend.operations()) != 0 {
			t.Error("Offline creates must not touch the backend")
		}
	})

	t.Run("ReadOffline", func(t *testing.T) {
		rec, err := s.store.Get(models.KindInvoice.Collection(), "inv-1")
		if err != nil {
			t.Fatalf("Read failed: %v", err)
		}
		var invoice map[string]interface{}
		if err := json.Unmarshal(rec.Payload, &invoice); err != nil {
			t.Fatalf("Failed to decode payload: %v", err)
		}
		if invoice["number"] != "2026-001" {
			t.Errorf("Invoice number = %v", invoice["number"])
		}
	})

	t.Run("UpdateOffline", func(t *testing.T) {
		updated := json.RawMessage(`{"id":"inv-1","number":"2026-001","client_id":"c-1","status":"sent","created_at":100,"updated_at":200}`)
		if _, err := s.engine.Apply(ctx, models.KindInvoice, models.OperationUpdate, "inv-1", updated); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	})

	t.Run("DeleteOffline", func(t *testing.T) {
		if _, err := s.engine.Apply(ctx, models.KindClient, models.OperationDelete, "c-1", nil); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := s.store.Get(models.KindClient.Collection(), "c-1"); err != db.ErrNotFound {
			t.Errorf("Expected deleted client gone from cache, got %v", err)
		}
	})

	t.Run("QueueHoldsAllChanges", func(t *testing.T) {
		changes, err := s.queue.Ordered()
		if err != nil {
			t.Fatalf("Failed to read queue: %v", err)
		}
		if len(changes) != 4 {
			t.Fatalf("Expected 4 queued changes, got %d", len(changes))
		}
	})

	t.Run("DrainAfterReconnect", func(t *testing.T) {
		s.mon.Set(true)

		result, err := s.engine.Drain(ctx)
		if err != nil {
			t.Fatalf("Drain failed: %v", err)
		}
		if result.Applied != 4 {
			t.Errorf("Expected 4 applied changes, got %d", result.Applied)
		}

		// Mutation order is preserved.
		ops := s.backend.operations()
		want := []string{"upsert:clients", "upsert:invoices", "upsert:invoices", "delete:clients:c-1"}
		if len(ops) != len(want) {
			t.Fatalf("Operations = %v", ops)
		}
		for i := range want {
			if ops[i] != want[i] {
				t.Errorf("Operation %d = %s, want %s", i, ops[i], want[i])
			}
		}

		changes, err := s.queue.Ordered()
		if err != nil {
			t.Fatalf("Failed to read queue: %v", err)
		}
		if len(changes) != 0 {
			t.Errorf("Expected empty queue after drain, got %d changes", len(changes))
		}
	})
}

// TestOfflineBackupRestore verifies a backup taken offline restores a
// fresh database without any connectivity.
func TestOfflineBackupRestore(t *testing.T) {
	s := setupStack(t)
	ctx := context.Background()

	payload := json.RawMessage(`{"id":"c-1","name":"Acme AB","created_at":100,"updated_at":100}`)
	if _, err := s.engine.Apply(ctx, models.KindClient, models.OperationCreate, "", payload); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	var backup strings.Builder
	if err := s.backups.Export("u-1", &backup); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	fresh := setupStack(t)
	result, err := fresh.backups.Import(strings.NewReader(backup.String()))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Imported != 1 {
		t.Errorf("Expected 1 imported record, got %d", result.Imported)
	}

	if _, err := fresh.store.Get(models.KindClient.Collection(), "c-1"); err != nil {
		t.Errorf("Restored record not readable: %v", err)
	}

	if len(fresh.backend.operations()) != 0 {
		t.Error("Backup restore must not touch the backend")
	}
}
