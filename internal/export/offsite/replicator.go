package offsite

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"

	"github.com/nordqvist/fakture/internal/logging"
)

// ReplicatorConfig holds offsite replication settings.
type ReplicatorConfig struct {
	Prefix         string // Key prefix in the bucket (default: "backups/")
	RetentionCount int    // Remote copies to keep (0 = unlimited)
}

// Replicator uploads backup files to an object store. Backups are
// content-addressed by SHA-256: a backup identical to the previous
// upload is skipped, so an idle app does not re-upload the same data
// every interval.
type Replicator struct {
	client *Client
	config *ReplicatorConfig

	mu         sync.Mutex
	lastDigest string
}

// NewReplicator creates a Replicator.
func NewReplicator(client *Client, config *ReplicatorConfig) *Replicator {
	if config == nil {
		config = &ReplicatorConfig{}
	}
	if config.Prefix == "" {
		config.Prefix = "backups/"
	}
	if !strings.HasSuffix(config.Prefix, "/") {
		config.Prefix += "/"
	}
	return &Replicator{client: client, config: config}
}

// Digest returns the SHA-256 hex digest of backup content.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Replicate uploads a backup under prefix/name. Returns false when the
// content digest matches the previous upload and nothing was sent.
func (r *Replicator) Replicate(ctx context.Context, name string, data []byte) (bool, error) {
	digest := Digest(data)

	r.mu.Lock()
	unchanged := digest == r.lastDigest
	r.mu.Unlock()
	if unchanged {
		logging.Debug("Offsite backup unchanged, skipping upload",
			map[string]interface{}{"digest": digest})
		return false, nil
	}

	key := r.config.Prefix + name
	if err := r.client.Upload(ctx, key, data); err != nil {
		return false, err
	}

	r.mu.Lock()
	r.lastDigest = digest
	r.mu.Unlock()

	r.prune(ctx)
	return true, nil
}

// prune deletes the oldest remote backups beyond the retention count.
// Timestamped file names sort chronologically.
func (r *Replicator) prune(ctx context.Context) {
	if r.config.RetentionCount <= 0 {
		return
	}

	keys, err := r.client.List(ctx, r.config.Prefix)
	if err != nil {
		logging.Error("Failed to list offsite backups", err)
		return
	}
	if len(keys) <= r.config.RetentionCount {
		return
	}

	sort.Strings(keys)
	for _, key := range keys[:len(keys)-r.config.RetentionCount] {
		if err := r.client.Delete(ctx, key); err != nil {
			logging.Error("Failed to prune offsite backup", err)
		}
	}
}
