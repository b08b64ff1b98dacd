// Package review drives the conflict review flow: it walks the
// unresolved-conflict list one item at a time and applies the strategy the
// user picks. The session is headless; rendering belongs to the host UI.
package review

import (
	"context"
	"sync"

	apperrors "github.com/nordqvist/fakture/internal/errors"
	"github.com/nordqvist/fakture/internal/models"
	"github.com/nordqvist/fakture/internal/sync/conflict"
)

// State is the review session state.
type State string

const (
	// StateLoading is the initial state while conflicts are being read.
	StateLoading State = "loading"

	// StateEmpty means no unresolved conflicts remain.
	StateEmpty State = "empty"

	// StateReviewing means a conflict is presented for a decision.
	StateReviewing State = "reviewing"

	// StateResolving is the transient state while a resolution call is
	// in flight.
	StateResolving State = "resolving"

	// StateClosed means the user dismissed the dialog.
	StateClosed State = "closed"
)

// Session cycles through unresolved conflicts one at a time.
type Session struct {
	log      *conflict.Log
	resolver *conflict.Resolver

	mu        sync.Mutex
	state     State
	conflicts []*models.Conflict
	index     int
}

// NewSession creates a session in the loading state. Call Open to load
// the unresolved conflicts.
func NewSession(log *conflict.Log, resolver *conflict.Resolver) *Session {
	return &Session{
		log:      log,
		resolver: resolver,
		state:    StateLoading,
	}
}

// Open loads the unresolved conflicts and moves to reviewing or empty.
func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conflicts, err := s.log.Unresolved()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStore, "failed to load conflicts", err)
	}

	s.conflicts = conflicts
	s.index = 0
	if len(conflicts) == 0 {
		s.state = StateEmpty
	} else {
		s.state = StateReviewing
	}
	return nil
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Remaining returns the number of conflicts left to review.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conflicts) - s.index
}

// Current returns the conflict under review, or nil outside reviewing.
func (s *Session) Current() *models.Conflict {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReviewing || s.index >= len(s.conflicts) {
		return nil
	}
	return s.conflicts[s.index]
}

// Resolve applies the strategy to the current conflict. On success the
// session advances to the next conflict, or to empty when it was the
// last one. A manual strategy keeps the current conflict in place; the
// caller drives its own flow and calls Skip or Close.
func (s *Session) Resolve(ctx context.Context, strategy models.Resolution) error {
	s.mu.Lock()
	if s.state != StateReviewing || s.index >= len(s.conflicts) {
		s.mu.Unlock()
		return apperrors.New(apperrors.ErrInvalid, "no conflict under review")
	}
	current := s.conflicts[s.index]
	s.state = StateResolving
	s.mu.Unlock()

	err := s.resolver.Resolve(ctx, current.ID, strategy)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return err
	}

	if err != nil || strategy == models.ResolutionManual {
		// The conflict stays in the list; back to reviewing.
		s.state = StateReviewing
		return err
	}

	s.index++
	if s.index >= len(s.conflicts) {
		s.state = StateEmpty
	} else {
		s.state = StateReviewing
	}
	return nil
}

// Skip moves past the current conflict without resolving it. Skipped
// conflicts stay unresolved and reappear on the next Open.
func (s *Session) Skip() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReviewing {
		return
	}
	s.index++
	if s.index >= len(s.conflicts) {
		s.state = StateEmpty
	}
}

// Close dismisses the session. Allowed from any state.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}
