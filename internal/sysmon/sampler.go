//go:generate mockgen -source=sampler.go -destination=mocks/mock_sampler.go -package=mocks

package sysmon

import (
	"context"
	"time"
)

// Sampler reads OS counters on demand. The tracker calls it only from the
// polling goroutine.
type Sampler interface {
	// SampleSystem returns host-wide metrics.
	SampleSystem(ctx context.Context) (SystemSnapshot, error)
	// SampleEntity returns a full snapshot of one process. A vanished,
	// zombie or access-denied process yields an error matching
	// apperrors.ErrNotFound.
	SampleEntity(ctx context.Context, pid int32) (Entity, error)
	// ListCandidates returns every visible process with its CPU usage since
	// the previous enumeration. Processes that vanish mid-enumeration are
	// skipped.
	ListCandidates(ctx context.Context) ([]Candidate, error)
}

// Warm takes a throwaway enumeration and system sample, then waits d, so
// that the next ListCandidates reports CPU over a real interval instead of
// the zero every first reading yields.
func Warm(ctx context.Context, s Sampler, d time.Duration) error {
	if _, err := s.ListCandidates(ctx); err != nil {
		return err
	}
	if _, err := s.SampleSystem(ctx); err != nil {
		return err
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
