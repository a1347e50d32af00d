package distributed

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/oklog/ulid/v2"

	"github.com/paveg/colflow/internal/config"
	cferrors "github.com/paveg/colflow/internal/errors"
	"github.com/paveg/colflow/internal/logging"
	"github.com/paveg/colflow/internal/matrix"
	"github.com/paveg/colflow/internal/monitoring"
	"github.com/paveg/colflow/internal/vectorized"
	"github.com/paveg/colflow/internal/version"
)

// Worker is the transport to one remote worker.
type Worker interface {
	// Store places m at the worker.
	Store(ctx context.Context, m *matrix.DenseMatrix[float64]) (StoredData, error)
	// Compute runs a task and stores its outputs at the worker.
	Compute(ctx context.Context, task Task) (ComputeResult, error)
	// Transfer fetches stored data.
	Transfer(ctx context.Context, data StoredData) (*matrix.DenseMatrix[float64], error)
}

// Cluster resolves addresses to workers.
type Cluster struct {
	workers map[string]Worker
}

// NewCluster returns an empty cluster.
func NewCluster() *Cluster {
	return &Cluster{workers: make(map[string]Worker)}
}

// NewLocalCluster starts n in-process workers addressed worker-0..worker-(n-1).
func NewLocalCluster(n int, cfg config.Config, logger log.Logger, metrics *monitoring.Metrics) *Cluster {
	c := NewCluster()
	for i := range n {
		addr := fmt.Sprintf("worker-%d", i)
		c.Add(addr, NewLocalWorker(addr, cfg, logger, metrics))
	}
	return c
}

// Add registers w under addr.
func (c *Cluster) Add(addr string, w Worker) {
	c.workers[addr] = w
}

// Addresses returns the worker addresses in sorted order.
func (c *Cluster) Addresses() []string {
	out := make([]string, 0, len(c.workers))
	for a := range c.workers {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Worker returns the worker at addr.
func (c *Cluster) Worker(addr string) (Worker, error) {
	w, ok := c.workers[addr]
	if !ok {
		return nil, cferrors.NewResourceError("distributed", fmt.Sprintf("no worker at %q", addr), nil)
	}
	return w, nil
}

// Program is a pipeline a LocalWorker can run. Stored inputs are split by
// rows and inline inputs are handed whole to every batch. The single output
// takes the shape of the first stored input, collapsed to one row when it is
// add-combined.
type Program struct {
	Func    vectorized.PipelineFunc[float64]
	Combine vectorized.CombineMode
}

// LocalWorker is an in-process worker. Matrices are kept in memory under
// ULID identifiers and programs run on a vectorized wrapper.
type LocalWorker struct {
	addr     string
	wrapper  *vectorized.Wrapper[float64]
	logger   log.Logger
	verbose  bool
	mu       sync.RWMutex
	store    map[string]*matrix.DenseMatrix[float64]
	programs map[string]Program
}

// NewLocalWorker returns a worker with an empty store.
func NewLocalWorker(addr string, cfg config.Config, logger log.Logger, metrics *monitoring.Metrics) *LocalWorker {
	logger = log.With(logging.With(logger, "distributed"), "worker", addr)
	return &LocalWorker{
		addr:     addr,
		wrapper:  vectorized.NewWrapper[float64](cfg, logger, metrics),
		logger:   logger,
		verbose:  cfg.VerboseLogging,
		store:    make(map[string]*matrix.DenseMatrix[float64]),
		programs: make(map[string]Program),
	}
}

// Register makes p available under code.
func (w *LocalWorker) Register(code string, p Program) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.programs[code] = p
}

// Store keeps a copy of m under a new ULID.
func (w *LocalWorker) Store(_ context.Context, m *matrix.DenseMatrix[float64]) (StoredData, error) {
	id := ulid.Make().String()
	w.mu.Lock()
	w.store[id] = m.Clone()
	w.mu.Unlock()
	return StoredData{Identifier: id, NumRows: m.NumRows(), NumCols: m.NumCols()}, nil
}

// Transfer returns a copy of the stored matrix.
func (w *LocalWorker) Transfer(_ context.Context, data StoredData) (*matrix.DenseMatrix[float64], error) {
	m, err := w.lookup(data)
	if err != nil {
		return nil, err
	}
	return m.Clone(), nil
}

// Compute runs the registered pipeline named by the task code. The task
// client must pass version.CheckPeer. Outputs are stored at the worker.
func (w *LocalWorker) Compute(ctx context.Context, task Task) (ComputeResult, error) {
	if err := ctx.Err(); err != nil {
		return ComputeResult{}, err
	}
	if err := version.CheckPeer(task.Client); err != nil {
		return ComputeResult{}, cferrors.NewInvalidInputError("compute", err.Error())
	}
	code, err := DecodeCode(task.Code)
	if err != nil {
		return ComputeResult{}, err
	}
	w.mu.RLock()
	prog, ok := w.programs[code]
	w.mu.RUnlock()
	if !ok {
		return ComputeResult{}, cferrors.NewUnsupportedTypeError("compute", fmt.Sprintf("pipeline %q", code))
	}
	if len(task.Inputs) == 0 {
		return ComputeResult{}, cferrors.NewInvalidInputError("compute", "task has no inputs")
	}

	inputs := make([]*matrix.DenseMatrix[float64], len(task.Inputs))
	splits := make([]vectorized.SplitMode, len(task.Inputs))
	for i, in := range task.Inputs {
		switch {
		case in.Stored != nil:
			if inputs[i], err = w.lookup(*in.Stored); err != nil {
				return ComputeResult{}, err
			}
		case in.Values != nil:
			inputs[i] = in.Values
			splits[i] = vectorized.SplitNone
		default:
			return ComputeResult{}, cferrors.NewInvalidInputError("compute", fmt.Sprintf("input %d is empty", i))
		}
	}

	shape := inputs[0]
	for i, s := range splits {
		if s == vectorized.SplitRows {
			shape = inputs[i]
			break
		}
	}
	rows, cols := shape.NumRows(), shape.NumCols()
	if prog.Combine == vectorized.CombineAdd {
		rows = 1
	}
	outs, err := w.wrapper.Execute(
		[]vectorized.PipelineFunc[float64]{prog.Func},
		[]*matrix.DenseMatrix[float64]{nil},
		inputs,
		vectorized.ExecSpec{
			Splits:   splits,
			Combines: []vectorized.CombineMode{prog.Combine},
			OutRows:  []int{rows},
			OutCols:  []int{cols},
		},
		&vectorized.Context{Logger: w.logger, Verbose: w.verbose})
	if err != nil {
		return ComputeResult{}, fmt.Errorf("worker %s: %w", w.addr, err)
	}

	res := ComputeResult{Outputs: make([]Data, len(outs))}
	for i, out := range outs {
		sd, err := w.Store(ctx, out)
		if err != nil {
			return ComputeResult{}, err
		}
		res.Outputs[i] = Data{Stored: &sd}
	}
	level.Debug(w.logger).Log("msg", "task computed", "pipeline", code, "inputs", len(inputs), "rows", rows)
	return res, nil
}

func (w *LocalWorker) lookup(data StoredData) (*matrix.DenseMatrix[float64], error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	m, ok := w.store[data.Identifier]
	if !ok {
		return nil, cferrors.NewInvalidInputError("distributed", fmt.Sprintf("no data stored under %s at %s", data.Identifier, w.addr))
	}
	return m, nil
}
