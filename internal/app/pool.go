package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/vcall/internal/core"
)

// WorkerFactory builds one media worker. Index is stable across the pool's
// lifetime.
type WorkerFactory func(ctx context.Context, index int) (core.Worker, error)

// WorkerPool owns the fixed set of media workers created at boot and hands
// them out round-robin. Workers are never recreated individually; a dead
// worker is reported through onDied and is fatal to the process.
type WorkerPool struct {
	mu      sync.Mutex
	workers []core.Worker
	next    int
}

// NewWorkerPool creates n workers. Any creation failure closes the ones
// already started and fails the boot; there is no degraded-pool mode.
func NewWorkerPool(ctx context.Context, n int, factory WorkerFactory, onDied func(core.Worker)) (*WorkerPool, error) {
	if n <= 0 {
		return nil, fmt.Errorf("worker pool size must be positive, got %d", n)
	}
	p := &WorkerPool{workers: make([]core.Worker, 0, n)}
	for i := 0; i < n; i++ {
		w, err := factory(ctx, i)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("create worker %d: %w", i, err)
		}
		if onDied != nil {
			w.OnDied(func() { onDied(w) })
		}
		p.workers = append(p.workers, w)
	}
	log.Info().Str("module", "app.pool").Int("workers", n).Msg("worker pool ready")
	return p, nil
}

// Next returns workers in strict round-robin order, wrapping the index.
// Safe under concurrent room creation.
func (p *WorkerPool) Next() core.Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	w := p.workers[p.next]
	p.next = (p.next + 1) % len(p.workers)
	return w
}

func (p *WorkerPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

func (p *WorkerPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.workers {
		w.Close()
	}
	p.workers = nil
}
