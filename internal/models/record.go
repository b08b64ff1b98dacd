// Package models provides data model definitions for the Fakture sync core.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// UUID is a wrapper around string for UUID v4 type safety.
type UUID string

// Value implements driver.Valuer for UUID.
func (u UUID) Value() (driver.Value, error) {
	return string(u), nil
}

// Scan implements sql.Scanner for UUID.
func (u *UUID) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*u = ""
	case []byte:
		*u = UUID(v)
	case string:
		*u = UUID(v)
	default:
		return fmt.Errorf("cannot scan %T into UUID", value)
	}
	return nil
}

// String returns the string representation of the UUID.
func (u UUID) String() string {
	return string(u)
}

// Kind identifies an entity collection in the local cache and the
// remote backend.
type Kind string

const (
	KindInvoice  Kind = "invoice"
	KindEstimate Kind = "estimate"
	KindClient   Kind = "client"

	// Backup-only kinds. They pass through export/import but are never
	// queued for sync on their own.
	KindRecurringInvoice Kind = "recurring_invoice"
	KindProfile          Kind = "profile"
)

// Syncable reports whether records of this kind flow through the
// pending-change queue and conflict detection.
func (k Kind) Syncable() bool {
	switch k {
	case KindInvoice, KindEstimate, KindClient:
		return true
	}
	return false
}

// SyncableKinds returns the kinds that flow through the sync engine.
func SyncableKinds() []Kind {
	return []Kind{KindInvoice, KindEstimate, KindClient}
}

// Collection returns the cache/remote collection name for the kind.
func (k Kind) Collection() string {
	switch k {
	case KindInvoice:
		return "invoices"
	case KindEstimate:
		return "estimates"
	case KindClient:
		return "clients"
	case KindRecurringInvoice:
		return "recurring_invoices"
	case KindProfile:
		return "profiles"
	}
	return string(k)
}

// ParseKind converts a collection or kind name into a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "invoice", "invoices":
		return KindInvoice, nil
	case "estimate", "estimates":
		return KindEstimate, nil
	case "client", "clients":
		return KindClient, nil
	case "recurring_invoice", "recurring_invoices":
		return KindRecurringInvoice, nil
	case "profile", "profiles":
		return KindProfile, nil
	}
	return "", fmt.Errorf("unknown entity kind %q", s)
}

// Record is implemented by every cached entity.
type Record interface {
	// RecordID returns the unique id within the kind's collection.
	RecordID() UUID

	// RecordKind returns the entity kind.
	RecordKind() Kind

	// ModifiedAt returns the last-modified unix timestamp, falling back
	// to the creation timestamp when the record was never updated.
	ModifiedAt() int64

	// Validate checks required fields before the record crosses the
	// cache-store or sync boundary.
	Validate() error
}

// Meta carries the fields shared by all cached records.
type Meta struct {
	ID        UUID   `db:"id" json:"id"`
	UserID    UUID   `db:"user_id" json:"user_id"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
}

// ModifiedAt returns UpdatedAt, or CreatedAt when the record was never
// touched after creation.
func (m *Meta) ModifiedAt() int64 {
	if m.UpdatedAt != 0 {
		return m.UpdatedAt
	}
	return m.CreatedAt
}

// RecordID returns the record id.
func (m *Meta) RecordID() UUID {
	return m.ID
}

// CreatedAtTime returns CreatedAt as time.Time.
func (m *Meta) CreatedAtTime() time.Time {
	return time.Unix(m.CreatedAt, 0)
}

// UpdatedAtTime returns UpdatedAt as time.Time.
func (m *Meta) UpdatedAtTime() time.Time {
	return time.Unix(m.UpdatedAt, 0)
}

// Touch advances UpdatedAt. Timestamps never move backwards, even if the
// wall clock does.
func (m *Meta) Touch() {
	now := time.Now().Unix()
	if now <= m.UpdatedAt {
		now = m.UpdatedAt + 1
	}
	m.UpdatedAt = now
}

// Decode unmarshals a raw payload into the typed record for the kind and
// validates it.
func Decode(kind Kind, data []byte) (Record, error) {
	var rec Record
	switch kind {
	case KindInvoice:
		rec = &Invoice{}
	case KindEstimate:
		rec = &Estimate{}
	case KindClient:
		rec = &Client{}
	default:
		return nil, fmt.Errorf("kind %q has no typed record", kind)
	}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}
