// Package telemetry collects local-only usage metrics: counters and
// timings for sync, conflict and backup activity. Nothing is ever
// transmitted off the machine; the collected values exist only in
// process memory and are exposed through the local API for the UI's
// diagnostics view.
package telemetry

import (
	"sync"
	"time"
)

// Collector accumulates named counters and timings.
type Collector struct {
	mu       sync.RWMutex
	counters map[string]int64
	timings  map[string]*timing
}

type timing struct {
	count int64
	total time.Duration
	max   time.Duration
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{
		counters: make(map[string]int64),
		timings:  make(map[string]*timing),
	}
}

// Count increments a named counter.
func (c *Collector) Count(name string, delta int64) {
	c.mu.Lock()
	c.counters[name] += delta
	c.mu.Unlock()
}

// Timing records a duration for a named operation.
func (c *Collector) Timing(name string, d time.Duration) {
	c.mu.Lock()
	t, ok := c.timings[name]
	if !ok {
		t = &timing{}
		c.timings[name] = t
	}
	t.count++
	t.total += d
	if d > t.max {
		t.max = d
	}
	c.mu.Unlock()
}

// TimingSnapshot describes an aggregated timing.
type TimingSnapshot struct {
	Count     int64 `json:"count"`
	TotalMs   int64 `json:"total_ms"`
	AverageMs int64 `json:"average_ms"`
	MaxMs     int64 `json:"max_ms"`
}

// Snapshot returns the current metric values.
func (c *Collector) Snapshot() (map[string]int64, map[string]TimingSnapshot) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	counters := make(map[string]int64, len(c.counters))
	for name, v := range c.counters {
		counters[name] = v
	}

	timings := make(map[string]TimingSnapshot, len(c.timings))
	for name, t := range c.timings {
		snap := TimingSnapshot{
			Count:   t.count,
			TotalMs: t.total.Milliseconds(),
			MaxMs:   t.max.Milliseconds(),
		}
		if t.count > 0 {
			snap.AverageMs = (t.total / time.Duration(t.count)).Milliseconds()
		}
		timings[name] = snap
	}

	return counters, timings
}

// Reset clears all collected metrics.
func (c *Collector) Reset() {
	c.mu.Lock()
	c.counters = make(map[string]int64)
	c.timings = make(map[string]*timing)
	c.mu.Unlock()
}

// =====================================================
// Package-Level Collector
// =====================================================

var defaultCollector = NewCollector()

// Count increments a counter on the default collector.
func Count(name string, delta int64) {
	defaultCollector.Count(name, delta)
}

// Timing records a duration on the default collector.
func Timing(name string, d time.Duration) {
	defaultCollector.Timing(name, d)
}

// Snapshot returns the default collector's metrics.
func Snapshot() (map[string]int64, map[string]TimingSnapshot) {
	return defaultCollector.Snapshot()
}

// Reset clears the default collector. Intended for tests.
func Reset() {
	defaultCollector.Reset()
}

// Transmits reports whether metrics are ever sent off the machine.
// Always false: collection is local-only and there is no opt-in
// transmission path.
func Transmits() bool {
	return false
}
