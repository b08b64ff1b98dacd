// Package remote provides the client for the remote record backend.
package remote

import (
	"context"
	"encoding/json"

	"github.com/nordqvist/fakture/internal/models"
)

// Filter narrows a Select call. A zero Filter selects the whole collection.
type Filter struct {
	// ID selects a single record when non-empty.
	ID models.UUID

	// UserID scopes the selection to an owning user when non-empty.
	UserID models.UUID
}

// Backend defines the remote store operations the sync core depends on.
// Implementations are opaque async operations; any failure surfaces as an
// error whose message is shown to the user.
type Backend interface {
	// Upsert creates or replaces a record in the named collection.
	Upsert(ctx context.Context, collection string, record json.RawMessage) error

	// Delete removes a record. Deleting a missing id is a success.
	Delete(ctx context.Context, collection string, id models.UUID) error

	// Select returns the records matching the filter.
	Select(ctx context.Context, collection string, filter Filter) ([]json.RawMessage, error)
}

// Pinger is implemented by backends that can answer a cheap liveness
// probe. The connectivity monitor uses it when available.
type Pinger interface {
	Ping(ctx context.Context) error
}
