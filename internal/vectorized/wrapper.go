package vectorized

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/paveg/colflow/internal/config"
	cferrors "github.com/paveg/colflow/internal/errors"
	"github.com/paveg/colflow/internal/logging"
	"github.com/paveg/colflow/internal/matrix"
	"github.com/paveg/colflow/internal/monitoring"
	"github.com/paveg/colflow/internal/partition"
)

// ExecSpec describes the operands of one execution. Splits has one entry per
// input; Combines, OutRows and OutCols have one entry per output.
type ExecSpec struct {
	Splits   []SplitMode
	Combines []CombineMode
	OutRows  []int
	OutCols  []int
}

// Wrapper runs pipelines over CPU workers and, when the context has devices,
// a second set of device workers.
type Wrapper[T matrix.Number] struct {
	threads     int
	policy      partition.Policy
	chunkParam  int
	batchSize   int
	deviceRatio float64
	queueCap    int

	logger  log.Logger
	metrics *monitoring.Metrics
}

// NewWrapper builds a wrapper from cfg. The thread count is resolved once
// here.
func NewWrapper[T matrix.Number](cfg config.Config, logger log.Logger, metrics *monitoring.Metrics) *Wrapper[T] {
	cfg = cfg.WithDefaults()
	return &Wrapper[T]{
		threads:     cfg.ResolveThreads(),
		policy:      cfg.Policy(),
		chunkParam:  cfg.ChunkParam,
		batchSize:   cfg.BatchSize,
		deviceRatio: cfg.DeviceTaskRatio,
		queueCap:    cfg.QueueCapacity,
		logger:      logging.With(logger, "vectorized"),
		metrics:     metrics,
	}
}

// Threads returns the total worker count.
func (w *Wrapper[T]) Threads() int { return w.threads }

// Execute runs funcs over inputs and returns the outputs. Nil entries of
// outputs are allocated from the hints in spec. funcs[0] runs on CPU
// workers; funcs[1], if given, runs on device workers.
//
// Outputs are complete only when Execute returns. After an error their
// contents are undefined.
func (w *Wrapper[T]) Execute(funcs []PipelineFunc[T], outputs, inputs []*matrix.DenseMatrix[T], spec ExecSpec, ctx *Context) (res []*matrix.DenseMatrix[T], err error) {
	start := time.Now()
	defer func() { w.metrics.RecordExecution(time.Since(start), err) }()

	if err := validate(funcs, outputs, inputs, spec); err != nil {
		return nil, err
	}

	n := 0
	for i, in := range inputs {
		if spec.Splits[i] == SplitRows {
			n = max(n, in.NumRows())
		}
	}

	outputs = append([]*matrix.DenseMatrix[T](nil), outputs...)
	for i, out := range outputs {
		if out != nil {
			continue
		}
		if spec.OutRows[i] < 0 || spec.OutCols[i] < 0 {
			return nil, cferrors.NewInvalidInputError("execute", fmt.Sprintf("output %d has no shape hint", i))
		}
		outputs[i] = matrix.New[T](spec.OutRows[i], spec.OutCols[i])
	}
	if n == 0 {
		return outputs, nil
	}

	devices := 0
	ratio := 0.0
	if ctx.UsesDevice() && len(funcs) > 1 && n > 1 {
		devices = ctx.Devices
		ratio = w.deviceRatio
	}
	cpuWorkers := max(w.threads-devices, 0)
	cpuLen := 0
	if cpuWorkers > 0 {
		cpuLen = min(int(math.Ceil(float64(n)*(1-ratio))), n)
	}

	if ctx != nil && ctx.Verbose {
		level.Debug(w.logger).Log("msg", "spawning workers", "cpu", cpuWorkers, "device", devices,
			"rows", n, "cpu_rows", cpuLen)
	}

	var mu sync.Mutex
	task := func(fn PipelineFunc[T], outs []*matrix.DenseMatrix[T], lo, hi, batch, offset int) *CompiledPipelineTask[T] {
		return &CompiledPipelineTask[T]{
			Pipeline:      fn,
			Outputs:       outs,
			Inputs:        inputs,
			Splits:        spec.Splits,
			Combines:      spec.Combines,
			Start:         lo,
			End:           hi,
			BatchSize:     batch,
			OutOffset:     offset,
			ReductionLock: &mu,
			Ctx:           ctx,
		}
	}
	opts := func(kind string) PoolOptions {
		return PoolOptions{Kind: kind, Logger: w.logger, Metrics: w.metrics, Verbose: ctx != nil && ctx.Verbose}
	}

	var pools []*WorkerPool
	defer func() {
		for _, p := range pools {
			if cerr := p.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
		if err != nil {
			res = nil
		}
	}()

	if cpuLen > 0 {
		outs, err := sideOutputs(outputs, spec.Combines, 0, cpuLen)
		if err != nil {
			return nil, err
		}
		q := NewTaskQueue(w.queueCap)
		pool := StartWorkers(q, cpuWorkers, opts(WorkerCPU))
		pools = append(pools, pool)

		lp := partition.New(w.policy, cpuLen, w.chunkParam, cpuWorkers)
		for begin := 0; lp.HasNextChunk(); {
			end := begin + lp.NextChunk()
			if err := q.Enqueue(task(funcs[0], outs, begin, end, w.batchSize, 0)); err != nil {
				return nil, err
			}
			begin = end
		}
		q.CloseInput()
	}

	if devices > 0 && cpuLen < n {
		outs, err := sideOutputs(outputs, spec.Combines, cpuLen, n)
		if err != nil {
			return nil, err
		}
		q := NewTaskQueue(w.queueCap)
		pool := StartWorkers(q, devices, opts(WorkerDevice))
		pools = append(pools, pool)

		blk := max((n-cpuLen)/(devices*2), 1)
		for k := cpuLen; k < n; k += blk {
			if err := q.Enqueue(task(funcs[1], outs, k, min(k+blk, n), blk, cpuLen)); err != nil {
				return nil, err
			}
		}
		q.CloseInput()
	}

	// join barrier
	for _, p := range pools {
		if err := p.Close(); err != nil {
			return nil, err
		}
	}
	return outputs, nil
}

// sideOutputs returns the outputs seen by the workers of rows [start, end):
// row-combined outputs are narrowed to those rows.
func sideOutputs[T matrix.Number](outputs []*matrix.DenseMatrix[T], combines []CombineMode, start, end int) ([]*matrix.DenseMatrix[T], error) {
	outs := make([]*matrix.DenseMatrix[T], len(outputs))
	for i, out := range outputs {
		if combines[i] != CombineRows {
			outs[i] = out
			continue
		}
		view, err := out.SliceRows(start, end)
		if err != nil {
			return nil, fmt.Errorf("%w: output %d: %v", cferrors.ErrShapeMismatch, i, err)
		}
		outs[i] = view
	}
	return outs, nil
}

func validate[T matrix.Number](funcs []PipelineFunc[T], outputs, inputs []*matrix.DenseMatrix[T], spec ExecSpec) error {
	switch {
	case len(funcs) == 0:
		return cferrors.NewInvalidInputError("execute", "no pipeline given")
	case len(spec.Splits) != len(inputs):
		return cferrors.NewInvalidInputError("execute",
			fmt.Sprintf("%d split modes for %d inputs", len(spec.Splits), len(inputs)))
	case len(spec.Combines) != len(outputs) || len(spec.OutRows) != len(outputs) || len(spec.OutCols) != len(outputs):
		return cferrors.NewInvalidInputError("execute",
			fmt.Sprintf("combine modes and shape hints must match %d outputs", len(outputs)))
	}
	for i, in := range inputs {
		if in == nil {
			return cferrors.NewInvalidInputError("execute", fmt.Sprintf("input %d is nil", i))
		}
	}
	return nil
}
