// Package db provides the local cache store and its auxiliary collections.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nordqvist/fakture/internal/models"
	"github.com/nordqvist/fakture/internal/uuid"
)

// ErrNotFound is returned when a cache key does not exist.
var ErrNotFound = sql.ErrNoRows

// CachedRecord is one row of the collection-partitioned record cache.
// Payload is the record's JSON document; CreatedAt/UpdatedAt are cache
// bookkeeping stamps, not the record's own timestamps.
type CachedRecord struct {
	Collection string          `db:"collection" json:"collection"`
	ID         models.UUID     `db:"id" json:"id"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	CreatedAt  int64           `db:"created_at" json:"created_at"`
	UpdatedAt  int64           `db:"updated_at" json:"updated_at"`
}

// Store provides durable key-value persistence partitioned into named
// collections, plus the pending-change, failed-change and conflict logs.
type Store struct {
	db *sql.DB

	// Prepared statement cache for frequently used queries.
	// Statements are prepared on first use and cached for reuse.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewStore creates a new Store instance.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (s *Store) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := s.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := s.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		// Another goroutine already prepared this, close our duplicate
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}

	return stmt, nil
}

// Close closes all cached prepared statements.
func (s *Store) Close() error {
	var firstErr error
	s.stmtCache.Range(func(key, value interface{}) bool {
		stmt := value.(*sql.Stmt)
		if err := stmt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		return true
	})
	return firstErr
}

// =====================================================
// Record Cache Operations
// =====================================================

// Put upserts a record by id within its collection. A missing id is
// assigned a generated UUID. UpdatedAt never moves backwards across writes
// to the same key. Returns the stored record.
func (s *Store) Put(collection string, rec *CachedRecord) (*CachedRecord, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	if rec == nil || len(rec.Payload) == 0 {
		return nil, fmt.Errorf("record payload is required")
	}

	if rec.ID == "" {
		rec.ID = models.UUID(uuid.New())
	}
	rec.Collection = collection

	now := time.Now().Unix()

	var createdAt, updatedAt int64
	err := s.db.QueryRow(
		`SELECT created_at, updated_at FROM records WHERE collection = ? AND id = ?`,
		collection, rec.ID,
	).Scan(&createdAt, &updatedAt)
	switch err {
	case nil:
		rec.CreatedAt = createdAt
		rec.UpdatedAt = now
		if rec.UpdatedAt <= updatedAt {
			rec.UpdatedAt = updatedAt + 1
		}
	case sql.ErrNoRows:
		rec.CreatedAt = now
		rec.UpdatedAt = now
	default:
		return nil, err
	}

	query := `
	INSERT INTO records (collection, id, payload, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(collection, id) DO UPDATE SET
		payload = excluded.payload,
		updated_at = excluded.updated_at
	`
	if _, err := s.db.Exec(query, rec.Collection, rec.ID, string(rec.Payload),
		rec.CreatedAt, rec.UpdatedAt); err != nil {
		return nil, err
	}

	return rec, nil
}

// Get returns the record for collection/id, or ErrNotFound.
func (s *Store) Get(collection string, id models.UUID) (*CachedRecord, error) {
	query := `
	SELECT collection, id, payload, created_at, updated_at
	FROM records WHERE collection = ? AND id = ?
	`
	stmt, err := s.PrepareStmt(query)
	if err != nil {
		return nil, err
	}

	var rec CachedRecord
	var payload string
	err = stmt.QueryRow(collection, id).Scan(
		&rec.Collection, &rec.ID, &payload, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Payload = json.RawMessage(payload)
	return &rec, nil
}

// GetAll returns all records in the collection.
func (s *Store) GetAll(collection string) ([]*CachedRecord, error) {
	query := `
	SELECT collection, id, payload, created_at, updated_at
	FROM records WHERE collection = ?
	`
	rows, err := s.db.Query(query, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*CachedRecord
	for rows.Next() {
		var rec CachedRecord
		var payload string
		if err := rows.Scan(&rec.Collection, &rec.ID, &payload,
			&rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Payload = json.RawMessage(payload)
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Delete removes the record. Deleting a non-existent id is a no-op success.
func (s *Store) Delete(collection string, id models.UUID) error {
	_, err := s.db.Exec(`DELETE FROM records WHERE collection = ? AND id = ?`,
		collection, id)
	return err
}

// =====================================================
// Pending-Change Log Operations
// =====================================================

// AppendPendingChange appends a change to the pending-change log.
// The attempt counter starts at zero; seq is assigned by the database.
func (s *Store) AppendPendingChange(change *models.PendingChange) error {
	if change.ID == "" {
		change.ID = models.UUID(uuid.New())
	}
	if change.EnqueuedAt == 0 {
		change.EnqueuedAt = time.Now().Unix()
	}

	query := `
	INSERT INTO pending_changes (id, kind, operation, record_id, payload, enqueued_at, attempts)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.Exec(query, change.ID, change.Kind, change.Operation,
		change.RecordID, nullableJSON(change.Payload), change.EnqueuedAt, change.Attempts)
	if err != nil {
		return err
	}
	if seq, err := res.LastInsertId(); err == nil {
		change.Seq = seq
	}
	return nil
}

// PendingChanges returns all queued changes sorted ascending by enqueue
// timestamp, with seq as a stable tiebreak.
func (s *Store) PendingChanges() ([]*models.PendingChange, error) {
	query := `
	SELECT seq, id, kind, operation, record_id, payload, enqueued_at, attempts
	FROM pending_changes ORDER BY enqueued_at ASC, seq ASC
	`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []*models.PendingChange
	for rows.Next() {
		change, err := scanPendingChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	return changes, rows.Err()
}

// CountPendingChanges returns the number of queued changes.
func (s *Store) CountPendingChanges() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM pending_changes`).Scan(&n)
	return n, err
}

// BumpPendingChange persists an incremented attempt counter.
func (s *Store) BumpPendingChange(id models.UUID, attempts int) error {
	_, err := s.db.Exec(`UPDATE pending_changes SET attempts = ? WHERE id = ?`,
		attempts, id)
	return err
}

// RemovePendingChange removes a change from the log. Removing a missing
// change is a no-op success, which keeps concurrent drains from
// double-applying the same item.
func (s *Store) RemovePendingChange(id models.UUID) error {
	_, err := s.db.Exec(`DELETE FROM pending_changes WHERE id = ?`, id)
	return err
}

// =====================================================
// Failed-Change Operations
// =====================================================

// MoveToFailed moves an exhausted pending change into the failed_changes
// collection so the user can retry or export it later.
func (s *Store) MoveToFailed(change *models.PendingChange, lastError string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
	INSERT INTO failed_changes (id, kind, operation, record_id, payload, attempts, last_error, failed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := tx.Exec(query, change.ID, change.Kind, change.Operation,
		change.RecordID, nullableJSON(change.Payload), change.Attempts,
		lastError, time.Now().Unix()); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM pending_changes WHERE id = ?`, change.ID); err != nil {
		return err
	}

	return tx.Commit()
}

// FailedChanges returns all changes that exhausted their retry budget.
func (s *Store) FailedChanges() ([]*models.FailedChange, error) {
	query := `
	SELECT id, kind, operation, record_id, payload, attempts, last_error, failed_at
	FROM failed_changes ORDER BY failed_at ASC
	`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var failed []*models.FailedChange
	for rows.Next() {
		var fc models.FailedChange
		var payload, lastErr sql.NullString
		if err := rows.Scan(&fc.ID, &fc.Kind, &fc.Operation, &fc.RecordID,
			&payload, &fc.Attempts, &lastErr, &fc.FailedAt); err != nil {
			return nil, err
		}
		if payload.Valid {
			fc.Payload = json.RawMessage(payload.String)
		}
		if lastErr.Valid {
			fc.LastError = lastErr.String
		}
		failed = append(failed, &fc)
	}
	return failed, rows.Err()
}

// RequeueFailedChange moves a failed change back into the pending log with
// a reset attempt counter.
func (s *Store) RequeueFailedChange(id models.UUID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var fc models.FailedChange
	var payload sql.NullString
	err = tx.QueryRow(
		`SELECT id, kind, operation, record_id, payload FROM failed_changes WHERE id = ?`,
		id,
	).Scan(&fc.ID, &fc.Kind, &fc.Operation, &fc.RecordID, &payload)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO pending_changes (id, kind, operation, record_id, payload, enqueued_at, attempts)
	VALUES (?, ?, ?, ?, ?, ?, 0)
	`
	if _, err := tx.Exec(query, fc.ID, fc.Kind, fc.Operation, fc.RecordID,
		payload, time.Now().Unix()); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM failed_changes WHERE id = ?`, id); err != nil {
		return err
	}

	return tx.Commit()
}

// =====================================================
// Conflict Log Operations
// =====================================================

// SaveConflict inserts or updates a conflict entry.
func (s *Store) SaveConflict(c *models.Conflict) error {
	query := `
	INSERT INTO conflicts (id, kind, record_id, local_snapshot, remote_snapshot,
		local_stamp, remote_stamp, classification, resolved, resolution, detected_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		resolved = excluded.resolved,
		resolution = excluded.resolution
	`
	_, err := s.db.Exec(query, c.ID, c.Kind, c.RecordID,
		string(c.LocalSnapshot), string(c.RemoteSnapshot),
		c.LocalStamp, c.RemoteStamp, c.Classification,
		c.Resolved, string(c.Resolution), c.DetectedAt)
	return err
}

// GetConflict returns a conflict by id.
func (s *Store) GetConflict(id models.UUID) (*models.Conflict, error) {
	query := `
	SELECT id, kind, record_id, local_snapshot, remote_snapshot,
		   local_stamp, remote_stamp, classification, resolved, resolution, detected_at
	FROM conflicts WHERE id = ?
	`
	stmt, err := s.PrepareStmt(query)
	if err != nil {
		return nil, err
	}
	return scanConflict(stmt.QueryRow(id))
}

// UnresolvedConflicts returns all conflicts with resolved = false, oldest
// first.
func (s *Store) UnresolvedConflicts() ([]*models.Conflict, error) {
	query := `
	SELECT id, kind, record_id, local_snapshot, remote_snapshot,
		   local_stamp, remote_stamp, classification, resolved, resolution, detected_at
	FROM conflicts WHERE resolved = 0 ORDER BY detected_at ASC, rowid ASC
	`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conflicts []*models.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

// MarkConflictResolved sets the resolved flag and the chosen strategy.
func (s *Store) MarkConflictResolved(id models.UUID, resolution models.Resolution) error {
	res, err := s.db.Exec(
		`UPDATE conflicts SET resolved = 1, resolution = ? WHERE id = ?`,
		string(resolution), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// PurgeResolvedConflicts removes all resolved conflicts and returns the
// number purged. Conflicts are never removed implicitly.
func (s *Store) PurgeResolvedConflicts() (int, error) {
	res, err := s.db.Exec(`DELETE FROM conflicts WHERE resolved = 1`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// =====================================================
// Sync Status Operations
// =====================================================

// SetSyncStatus records a sync progress marker.
func (s *Store) SetSyncStatus(key, value string) error {
	query := `
	INSERT INTO sync_status (key, value, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		value = excluded.value,
		updated_at = excluded.updated_at
	`
	_, err := s.db.Exec(query, key, value, time.Now().Unix())
	return err
}

// GetSyncStatus returns a sync progress marker, or ErrNotFound.
func (s *Store) GetSyncStatus(key string) (*models.SyncStatus, error) {
	var st models.SyncStatus
	err := s.db.QueryRow(
		`SELECT key, value, updated_at FROM sync_status WHERE key = ?`, key,
	).Scan(&st.Key, &st.Value, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// =====================================================
// Scan Helpers
// =====================================================

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPendingChange(row rowScanner) (*models.PendingChange, error) {
	var change models.PendingChange
	var payload sql.NullString
	err := row.Scan(&change.Seq, &change.ID, &change.Kind, &change.Operation,
		&change.RecordID, &payload, &change.EnqueuedAt, &change.Attempts)
	if err != nil {
		return nil, err
	}
	if payload.Valid {
		change.Payload = json.RawMessage(payload.String)
	}
	return &change, nil
}

func scanConflict(row rowScanner) (*models.Conflict, error) {
	var c models.Conflict
	var local, remote string
	var resolution sql.NullString
	err := row.Scan(&c.ID, &c.Kind, &c.RecordID, &local, &remote,
		&c.LocalStamp, &c.RemoteStamp, &c.Classification,
		&c.Resolved, &resolution, &c.DetectedAt)
	if err != nil {
		return nil, err
	}
	c.LocalSnapshot = json.RawMessage(local)
	c.RemoteSnapshot = json.RawMessage(remote)
	if resolution.Valid {
		c.Resolution = models.Resolution(resolution.String)
	}
	return &c, nil
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
