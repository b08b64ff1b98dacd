// Package monitor provides connectivity observation for the sync core.
// The notifier is injectable so tests can simulate online/offline
// transitions deterministically.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/nordqvist/fakture/internal/logging"
	"github.com/nordqvist/fakture/internal/remote"
)

// State is the connectivity state.
type State bool

const (
	StateOnline  State = true
	StateOffline State = false
)

// String returns "online" or "offline".
func (s State) String() string {
	if s == StateOnline {
		return "online"
	}
	return "offline"
}

// Notifier reports the current connectivity state and publishes
// transitions.
type Notifier interface {
	// Online reports whether the remote backend is currently reachable.
	Online() bool

	// Subscribe registers a channel that receives every state
	// transition. The channel must not block; transitions to a
	// subscriber that cannot keep up are dropped.
	Subscribe(ch chan<- State)
}

// Manual is a Notifier driven by explicit Set calls. Used by tests and
// by hosts that receive online/offline events from their environment.
type Manual struct {
	mu     sync.RWMutex
	online bool
	subs   []chan<- State
}

// NewManual creates a Manual notifier with the given initial state.
func NewManual(online bool) *Manual {
	return &Manual{online: online}
}

// Online implements Notifier.
func (m *Manual) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Subscribe implements Notifier.
func (m *Manual) Subscribe(ch chan<- State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, ch)
}

// Set changes the connectivity state, publishing a transition when the
// state actually changes.
func (m *Manual) Set(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	subs := append([]chan<- State(nil), m.subs...)
	m.mu.Unlock()

	if !changed {
		return
	}

	logging.Info("Connectivity changed",
		map[string]interface{}{"state": State(online).String()})

	for _, ch := range subs {
		select {
		case ch <- State(online):
		default:
			// Subscriber is not keeping up; it will observe the
			// state on its next poll.
		}
	}
}

// Probe is a Notifier that polls the remote backend on a fixed interval.
type Probe struct {
	*Manual
	pinger   remote.Pinger
	interval time.Duration
	timeout  time.Duration
}

// NewProbe creates a Probe polling the given backend. A zero interval
// defaults to 30 seconds.
func NewProbe(pinger remote.Pinger, interval time.Duration) *Probe {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Probe{
		Manual:   NewManual(false),
		pinger:   pinger,
		interval: interval,
		timeout:  10 * time.Second,
	}
}

// Run polls until ctx is cancelled. The first probe fires immediately so
// startup does not wait a full interval for the initial state.
func (p *Probe) Run(ctx context.Context) {
	p.probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probe(ctx)
		}
	}
}

func (p *Probe) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.pinger.Ping(probeCtx)
	p.Set(err == nil)
}
