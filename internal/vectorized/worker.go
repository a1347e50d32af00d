package vectorized

import (
	"fmt"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"

	cferrors "github.com/paveg/colflow/internal/errors"
	"github.com/paveg/colflow/internal/logging"
	"github.com/paveg/colflow/internal/monitoring"
)

// Worker kinds used in logs and metrics.
const (
	WorkerCPU    = "cpu"
	WorkerDevice = "device"
)

// WorkerPool is a fixed set of workers draining one queue. Workers start on
// construction; Close ends the input and joins them.
type WorkerPool struct {
	queue   TaskQueue
	kind    string
	logger  log.Logger
	metrics *monitoring.Metrics
	verbose bool

	group     errgroup.Group
	closeOnce sync.Once
	err       error
}

// PoolOptions configures a worker pool.
type PoolOptions struct {
	Kind    string
	Logger  log.Logger
	Metrics *monitoring.Metrics
	// Verbose logs every executed task at debug level.
	Verbose bool
}

// StartWorkers launches n workers on queue. n below 1 is treated as 1.
func StartWorkers(queue TaskQueue, n int, opts PoolOptions) *WorkerPool {
	if opts.Kind == "" {
		opts.Kind = WorkerCPU
	}
	p := &WorkerPool{
		queue:   queue,
		kind:    opts.Kind,
		logger:  logging.With(opts.Logger, "worker-pool"),
		metrics: opts.Metrics,
		verbose: opts.Verbose,
	}
	for id := range max(n, 1) {
		p.group.Go(func() error { return p.run(id) })
	}
	return p
}

// run executes tasks until end-of-stream. A failing task does not stop the
// worker; the first failure is returned once the queue is drained.
func (p *WorkerPool) run(id int) error {
	var first error
	for {
		t, ok := p.queue.Dequeue()
		if !ok {
			return first
		}
		err := execute(t)
		p.metrics.RecordTask(p.kind, t.Rows(), err)
		if err != nil {
			level.Warn(p.logger).Log("msg", "task failed", "kind", p.kind, "worker", id, "err", err)
			if first == nil {
				first = err
			}
			continue
		}
		if p.verbose {
			level.Debug(p.logger).Log("msg", "task done", "kind", p.kind, "worker", id, "rows", t.Rows())
		}
	}
}

func execute(t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = cferrors.NewInternalError("execute", fmt.Errorf("task panicked: %v", r))
		}
	}()
	return t.Execute()
}

// Close closes the queue input and waits for every worker. It returns the
// first task error. Close is safe to call more than once.
func (p *WorkerPool) Close() error {
	p.closeOnce.Do(func() {
		p.queue.CloseInput()
		p.err = p.group.Wait()
	})
	return p.err
}
