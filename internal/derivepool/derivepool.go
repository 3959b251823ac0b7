// Package derivepool runs CPU-bound key derivations on a bounded pool so a
// slow PBKDF2 call cannot occupy every request-handling goroutine. Callers
// can cancel a pending derivation through the context; cancellation happens
// before any persistence, and an abandoned result is zeroed before it is
// discarded.
package derivepool

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"

	"github.com/ameerarsath/publicdocsafe-sub000/internal/kdf"
)

type Pool struct {
	slots *semaphore.Weighted
}

// New creates a pool admitting at most workers concurrent derivations.
// workers < 1 defaults to the number of CPUs.
func New(workers int) *Pool {
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	return &Pool{slots: semaphore.NewWeighted(int64(workers))}
}

type deriveResult struct {
	key []byte
	err error
}

// Derive acquires a pool slot (waiting is ctx-cancellable) and derives the
// key on a worker goroutine. If ctx expires while the derivation is in
// flight, the eventual result is zeroed and dropped.
func (p *Pool) Derive(ctx context.Context, password string, salt []byte, iterations int) ([]byte, error) {
	if err := p.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	resultCh := make(chan deriveResult, 1)
	go func() {
		defer p.slots.Release(1)
		key, err := kdf.Derive(password, salt, iterations)
		resultCh <- deriveResult{key: key, err: err}
	}()

	select {
	case res := <-resultCh:
		return res.key, res.err
	case <-ctx.Done():
		// The worker still finishes and releases its slot; its key must
		// not outlive this call.
		go func() {
			res := <-resultCh
			kdf.Zero(res.key)
		}()
		return nil, ctx.Err()
	}
}
