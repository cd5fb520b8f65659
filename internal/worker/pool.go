package worker

import (
	"context"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// Pool manages the lifecycle of all delivery workers. They share one
// queue; with the memory queue its double-select serves higher priority
// tiers first.
type Pool struct {
	workers []*Worker
	wg      conc.WaitGroup
}

// NewPool creates size identical workers.
func NewPool(size int, deps Deps, settings Settings, logger *zap.Logger, hooks MetricHooks) *Pool {
	if size < 1 {
		size = 1
	}
	workers := make([]*Worker, size)
	for i := range workers {
		workers[i] = NewWorker(i, deps, settings, logger.With(zap.Int("worker_id", i)), hooks)
	}
	return &Pool{workers: workers}
}

// Start launches all workers. Cancelling ctx stops them once their
// current job is done.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		w := w
		p.wg.Go(func() { w.Run(ctx) })
	}
}

// Wait blocks until every worker has returned. A panic that escaped a
// worker is re-raised here.
func (p *Pool) Wait() {
	p.wg.Wait()
}
