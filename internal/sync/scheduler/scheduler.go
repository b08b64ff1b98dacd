// Package scheduler provides background drain scheduling for the sync
// engine: periodic drains while online and an immediate drain on every
// offline-to-online transition.
package scheduler

import (
	"context"
	stdsync "sync"
	"time"

	apperrors "github.com/nordqvist/fakture/internal/errors"
	"github.com/nordqvist/fakture/internal/logging"
	syncpkg "github.com/nordqvist/fakture/internal/sync"
	"github.com/nordqvist/fakture/internal/sync/monitor"
)

// Config holds scheduler configuration.
type Config struct {
	DrainInterval time.Duration // How often to drain when online (default: 5 minutes)
	DrainTimeout  time.Duration // Per-drain timeout (default: 5 minutes)
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		DrainInterval: 5 * time.Minute,
		DrainTimeout:  5 * time.Minute,
	}
}

// Scheduler drives the sync engine from timer ticks and connectivity
// transitions.
type Scheduler struct {
	engine   *syncpkg.Engine
	notifier monitor.Notifier
	config   *Config

	transitions chan monitor.State
	stopCh      chan struct{}
	wg          stdsync.WaitGroup

	mu        stdsync.RWMutex
	isRunning bool
	lastDrain time.Time
}

// New creates a Scheduler.
func New(engine *syncpkg.Engine, notifier monitor.Notifier, config *Config) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scheduler{
		engine:      engine,
		notifier:    notifier,
		config:      config,
		transitions: make(chan monitor.State, 8),
		stopCh:      make(chan struct{}),
	}
}

// Start starts the background loop. It subscribes to connectivity
// transitions so a reconnect drains the queue without waiting for the
// next tick.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.notifier.Subscribe(s.transitions)

	s.wg.Add(1)
	go s.loop(ctx)

	logging.Info("Sync scheduler started", nil)
}

// Stop stops the background loop and waits for it to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	logging.Info("Sync scheduler stopped", nil)
}

// loop runs periodic drains and reacts to connectivity transitions.
func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.DrainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.notifier.Online() {
				s.runDrain(ctx)
			}
		case state := <-s.transitions:
			if state == monitor.StateOnline {
				logging.Info("Connectivity restored, draining queue", nil)
				s.runDrain(ctx)
			}
		}
	}
}

// runDrain executes one drain with a timeout. An already-running drain is
// not an error; the running drain covers the queue.
func (s *Scheduler) runDrain(ctx context.Context) {
	drainCtx, cancel := context.WithTimeout(ctx, s.config.DrainTimeout)
	defer cancel()

	result, err := s.engine.Drain(drainCtx)
	if err != nil {
		if err == syncpkg.ErrDrainInProgress {
			logging.Debug("Drain already in progress, skipping", nil)
			return
		}
		logging.ErrorWithCode("Scheduled drain failed", string(apperrors.ErrSyncFailed), err)
		return
	}

	s.mu.Lock()
	s.lastDrain = time.Now()
	s.mu.Unlock()

	if result.Applied > 0 || result.Dropped > 0 {
		logging.Info("Scheduled drain completed",
			map[string]interface{}{
				"applied":  result.Applied,
				"retained": result.Retained,
				"dropped":  result.Dropped,
			})
	}
}

// SyncNow triggers an immediate drain and waits for completion. Used by
// the UI's explicit "sync now" action.
func (s *Scheduler) SyncNow(ctx context.Context) (*syncpkg.DrainResult, error) {
	drainCtx, cancel := context.WithTimeout(ctx, s.config.DrainTimeout)
	defer cancel()

	result, err := s.engine.Drain(drainCtx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.lastDrain = time.Now()
	s.mu.Unlock()

	return result, nil
}

// Status describes the scheduler's current state.
type Status struct {
	IsRunning bool       `json:"is_running"`
	Online    bool       `json:"online"`
	LastDrain *time.Time `json:"last_drain,omitempty"`
}

// GetStatus returns the scheduler status.
func (s *Scheduler) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		IsRunning: s.isRunning,
		Online:    s.notifier.Online(),
	}
	if !s.lastDrain.IsZero() {
		t := s.lastDrain
		st.LastDrain = &t
	}
	return st
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
