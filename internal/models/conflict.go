// Package models provides data model definitions for the Fakture sync core.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Classification describes how a local and remote version of the same
// record diverged.
type Classification string

const (
	ClassificationLocalNewer   Classification = "local-newer"
	ClassificationRemoteNewer  Classification = "remote-newer"
	ClassificationBothModified Classification = "both-modified"
)

// Resolution is the strategy applied to settle a conflict.
type Resolution string

const (
	ResolutionUseLocal  Resolution = "use-local"
	ResolutionUseRemote Resolution = "use-remote"
	ResolutionMerge     Resolution = "merge"
	ResolutionManual    Resolution = "manual"
)

// Conflict records a detected divergence between the local cache and the
// remote backend. Conflicts are never deleted automatically; they stay in
// the log until explicitly purged.
type Conflict struct {
	ID             UUID            `db:"id" json:"id"`
	Kind           Kind            `db:"kind" json:"kind"`
	RecordID       UUID            `db:"record_id" json:"record_id"`
	LocalSnapshot  json.RawMessage `db:"local_snapshot" json:"local_snapshot"`
	RemoteSnapshot json.RawMessage `db:"remote_snapshot" json:"remote_snapshot"`
	LocalStamp     int64           `db:"local_stamp" json:"local_stamp"`
	RemoteStamp    int64           `db:"remote_stamp" json:"remote_stamp"`
	Classification Classification  `db:"classification" json:"classification"`
	Resolved       bool            `db:"resolved" json:"resolved"`
	Resolution     Resolution      `db:"resolution" json:"resolution,omitempty"`
	DetectedAt     int64           `db:"detected_at" json:"detected_at"`
}

// TableName returns the table name for Conflict.
func (Conflict) TableName() string {
	return "conflicts"
}

// ConflictID derives the conflict id from the entity kind, record id and
// detection time.
func ConflictID(kind Kind, recordID UUID, detectedAt time.Time) UUID {
	return UUID(fmt.Sprintf("%s:%s:%d", kind, recordID, detectedAt.UnixNano()))
}

// DetectedAtTime returns DetectedAt as time.Time.
func (c *Conflict) DetectedAtTime() time.Time {
	return time.Unix(c.DetectedAt, 0)
}

// SyncStatus is a single-row marker collection recording sync progress.
type SyncStatus struct {
	Key       string `db:"key" json:"key"`
	Value     string `db:"value" json:"value"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
}

// TableName returns the table name for SyncStatus.
func (SyncStatus) TableName() string {
	return "sync_status"
}

// SyncStatusLastSync is the key under which the last successful drain
// timestamp is recorded.
const SyncStatusLastSync = "lastSync"
