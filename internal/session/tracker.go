// Package session tracks which reporters are about to send a report body.
package session

import (
	"context"
	"sync"
)

// Tracker owns the per-reporter "awaiting report body" flag.
// Unknown reporters are not awaiting.
type Tracker interface {
	MarkAwaiting(ctx context.Context, reporterID int64) error
	// ConsumeIfAwaiting clears the flag and reports whether it was set, in one atomic step.
	ConsumeIfAwaiting(ctx context.Context, reporterID int64) (bool, error)
	// Reset clears the flag without reading it.
	Reset(ctx context.Context, reporterID int64) error
}

// MemoryTracker keeps flags in process memory; a restart forgets them.
type MemoryTracker struct {
	mu       sync.Mutex
	awaiting map[int64]struct{}
}

// NewMemoryTracker creates an empty tracker.
func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{awaiting: make(map[int64]struct{})}
}

func (t *MemoryTracker) MarkAwaiting(_ context.Context, reporterID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.awaiting[reporterID] = struct{}{}
	return nil
}

func (t *MemoryTracker) ConsumeIfAwaiting(_ context.Context, reporterID int64) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.awaiting[reporterID]; !ok {
		return false, nil
	}
	delete(t.awaiting, reporterID)
	return true, nil
}

func (t *MemoryTracker) Reset(_ context.Context, reporterID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.awaiting, reporterID)
	return nil
}
