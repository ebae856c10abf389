package lease

import (
	"context"
	"sync"
)

// Release gives up a held lease.
type Release func(ctx context.Context) error

// Lease provides mutual exclusion between ingestion cycles.
type Lease interface {
	// Acquire returns ok=false without error when another holder owns the lease.
	Acquire(ctx context.Context) (release Release, ok bool, err error)
}

// Local is an in-process lease for single-instance deployments.
type Local struct {
	mu sync.Mutex
}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Acquire(_ context.Context) (Release, bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(l.mu.Unlock)
		return nil
	}, true, nil
}
