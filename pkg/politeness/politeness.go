// Package politeness enforces each source's minimum interval between
// requests. Last access times are persisted so the interval also holds across
// process restarts.
package politeness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/jokemachine/pkg/record"
)

// AccessState is the persisted last access time of one source.
type AccessState struct {
	Source     string    `json:"source" db:"source"`
	LastAccess time.Time `json:"last_access" db:"last_access"`
}

// StateStore persists AccessState. GetAccessState returns an error wrapping
// record.ErrNotFound for unknown sources.
type StateStore interface {
	GetAccessState(ctx context.Context, source string) (*AccessState, error)
	PutAccessState(ctx context.Context, s *AccessState) error
}

// Scheduler computes the wait before a source may be fetched again.
type Scheduler struct {
	store StateStore
	now   func() time.Time
}

// NewScheduler creates a Scheduler. A nil now uses time.Now.
func NewScheduler(store StateStore, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{store: store, now: now}
}

// TimeUntilNextAllowed returns how long the caller must wait before fetching
// source again. A source seen for the first time gets a fresh state and no
// wait.
func (s *Scheduler) TimeUntilNextAllowed(ctx context.Context, source string, minInterval time.Duration) (time.Duration, error) {
	now := s.now().UTC()

	state, err := s.store.GetAccessState(ctx, source)
	if errors.Is(err, record.ErrNotFound) {
		if err := s.store.PutAccessState(ctx, &AccessState{Source: source, LastAccess: now}); err != nil {
			return 0, fmt.Errorf("create access state %s: %w", source, err)
		}
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get access state %s: %w", source, err)
	}

	elapsed := now.Sub(state.LastAccess)
	if elapsed >= minInterval {
		return 0, nil
	}
	if elapsed < 0 {
		// Last access lies in the future (clock moved back); wait one full interval.
		return minInterval, nil
	}
	return minInterval - elapsed, nil
}

// RecordAccess stores now as the last access time of source.
func (s *Scheduler) RecordAccess(ctx context.Context, source string) error {
	if err := s.store.PutAccessState(ctx, &AccessState{Source: source, LastAccess: s.now().UTC()}); err != nil {
		return fmt.Errorf("record access %s: %w", source, err)
	}
	return nil
}
