// Package models provides data model definitions for the Fakture sync core.
package models

import (
	"encoding/json"
	"time"
)

// Operation is the kind of mutation recorded in the pending-change log.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// PendingChange is a local mutation awaiting remote application.
// Creates and updates carry the full record snapshot; deletes carry no
// payload.
type PendingChange struct {
	ID         UUID            `db:"id" json:"id"`
	Kind       Kind            `db:"kind" json:"kind"`
	Operation  Operation       `db:"operation" json:"operation"`
	RecordID   UUID            `db:"record_id" json:"record_id"`
	Payload    json.RawMessage `db:"payload" json:"payload,omitempty"`
	EnqueuedAt int64           `db:"enqueued_at" json:"enqueued_at"`
	Seq        int64           `db:"seq" json:"seq"`
	Attempts   int             `db:"attempts" json:"attempts"`
}

// TableName returns the table name for PendingChange.
func (PendingChange) TableName() string {
	return "pending_changes"
}

// EnqueuedAtTime returns EnqueuedAt as time.Time.
func (p *PendingChange) EnqueuedAtTime() time.Time {
	return time.Unix(p.EnqueuedAt, 0)
}

// FailedChange is a pending change that exhausted its retry budget.
// Kept for manual retry or export instead of being silently discarded.
type FailedChange struct {
	ID        UUID            `db:"id" json:"id"`
	Kind      Kind            `db:"kind" json:"kind"`
	Operation Operation       `db:"operation" json:"operation"`
	RecordID  UUID            `db:"record_id" json:"record_id"`
	Payload   json.RawMessage `db:"payload" json:"payload,omitempty"`
	Attempts  int             `db:"attempts" json:"attempts"`
	LastError string          `db:"last_error" json:"last_error,omitempty"`
	FailedAt  int64           `db:"failed_at" json:"failed_at"`
}

// TableName returns the table name for FailedChange.
func (FailedChange) TableName() string {
	return "failed_changes"
}
