// Package export provides JSON backup export and import for the local
// cache.
package export

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nordqvist/fakture/internal/export/offsite"
	"github.com/nordqvist/fakture/internal/logging"
	"github.com/nordqvist/fakture/internal/models"
	"github.com/nordqvist/fakture/internal/telemetry"
)

// SchedulerConfig holds automatic backup configuration.
type SchedulerConfig struct {
	Interval       time.Duration // How often to write a backup (0 disables)
	RetentionCount int           // Number of backups to keep (0 = unlimited)
	BackupDir      string        // Directory to store backups (default: "backups")

	// Replicator uploads each backup to offsite storage when set.
	Replicator *offsite.Replicator
}

// Scheduler writes periodic backups and prunes old ones.
type Scheduler struct {
	service *Service
	userID  models.UUID
	config  *SchedulerConfig

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a backup scheduler for the given user.
func NewScheduler(service *Service, userID models.UUID, config *SchedulerConfig) *Scheduler {
	if config.BackupDir == "" {
		config.BackupDir = "backups"
	}
	if config.RetentionCount < 0 {
		config.RetentionCount = 0
	}
	return &Scheduler{
		service: service,
		userID:  userID,
		config:  config,
		stopCh:  make(chan struct{}),
	}
}

// Start begins periodic backups. A zero interval disables the scheduler.
func (s *Scheduler) Start(ctx context.Context) {
	if s.config.Interval <= 0 {
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop stops the scheduler and waits for the loop to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runBackup()
		}
	}
}

// RunOnce writes a single backup immediately.
func (s *Scheduler) RunOnce() error {
	name := BackupFileName(time.Now())
	path := filepath.Join(s.config.BackupDir, name)
	if err := s.service.ExportFile(s.userID, path); err != nil {
		return err
	}
	s.prune()
	s.replicate(name, path)
	return nil
}

// replicate uploads the backup offsite. Replication failures are
// logged but do not fail the local backup.
func (s *Scheduler) replicate(name, path string) {
	if s.config.Replicator == nil {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logging.Error("Failed to read backup for replication", err)
		return
	}

	uploaded, err := s.config.Replicator.Replicate(context.Background(), name, data)
	if err != nil {
		logging.Error("Offsite backup replication failed", err)
		return
	}
	if uploaded {
		logging.Info("Backup replicated offsite",
			map[string]interface{}{"name": name})
	}
}

func (s *Scheduler) runBackup() {
	if err := s.RunOnce(); err != nil {
		logging.Error("Scheduled backup failed", err)
		return
	}
	telemetry.Count("backup.runs", 1)
	logging.Info("Scheduled backup written",
		map[string]interface{}{"dir": s.config.BackupDir})
}

// prune removes the oldest backups beyond the retention count.
func (s *Scheduler) prune() {
	if s.config.RetentionCount <= 0 {
		return
	}

	entries, err := os.ReadDir(s.config.BackupDir)
	if err != nil {
		return
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "fakture_backup_") && strings.HasSuffix(name, ".json") {
			names = append(names, name)
		}
	}

	if len(names) <= s.config.RetentionCount {
		return
	}

	// Timestamped names sort chronologically.
	sort.Strings(names)
	for _, name := range names[:len(names)-s.config.RetentionCount] {
		os.Remove(filepath.Join(s.config.BackupDir, name))
	}
}
