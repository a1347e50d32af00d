package vectorized

import (
	"fmt"
	"sync"

	"github.com/go-kit/log"

	cferrors "github.com/paveg/colflow/internal/errors"
	"github.com/paveg/colflow/internal/matrix"
	"github.com/paveg/colflow/internal/monitoring"
)

// SplitMode says how an input is divided among tasks.
type SplitMode uint8

const (
	// SplitRows hands each task the rows of its range.
	SplitRows SplitMode = iota
	// SplitNone hands every task the whole input.
	SplitNone
)

func (s SplitMode) String() string {
	switch s {
	case SplitRows:
		return "ROWS"
	case SplitNone:
		return "NONE"
	default:
		return fmt.Sprintf("SplitMode(%d)", s)
	}
}

// CombineMode says how per-task results are merged into an output.
type CombineMode uint8

const (
	// CombineRows concatenates disjoint row blocks.
	CombineRows CombineMode = iota
	// CombineAdd sums the partial results of every task.
	CombineAdd
)

func (c CombineMode) String() string {
	switch c {
	case CombineRows:
		return "ROWS"
	case CombineAdd:
		return "ADD"
	default:
		return fmt.Sprintf("CombineMode(%d)", c)
	}
}

// Context is handed to every pipeline invocation.
type Context struct {
	// Devices is the number of accelerator devices. Zero disables the
	// device path.
	Devices int
	Logger  log.Logger
	Metrics *monitoring.Metrics
	Verbose bool
}

// UsesDevice reports whether the device path is enabled.
func (c *Context) UsesDevice() bool {
	return c != nil && c.Devices > 0
}

// PipelineFunc is a compiled operator pipeline. It reads the rows of inputs
// and writes outputs, which have exactly as many rows as the row-split
// inputs for row-combined outputs.
type PipelineFunc[T matrix.Number] func(outputs, inputs []*matrix.DenseMatrix[T], ctx *Context) error

// CompiledPipelineTask runs a pipeline over the rows [Start, End) in batches.
type CompiledPipelineTask[T matrix.Number] struct {
	Pipeline PipelineFunc[T]
	// Outputs are shared with every other task of the execution. A
	// row-combined output holds row r of the range at r - OutOffset.
	Outputs   []*matrix.DenseMatrix[T]
	Inputs    []*matrix.DenseMatrix[T]
	Splits    []SplitMode
	Combines  []CombineMode
	Start     int
	End       int
	BatchSize int
	OutOffset int
	// ReductionLock guards accumulation into add-combined outputs.
	ReductionLock *sync.Mutex
	Ctx           *Context
}

// Rows returns the number of rows the task covers.
func (t *CompiledPipelineTask[T]) Rows() int { return t.End - t.Start }

// Execute runs the pipeline batch by batch and merges add-combined partials
// into the shared outputs under the reduction lock.
func (t *CompiledPipelineTask[T]) Execute() error {
	batch := t.BatchSize
	if batch <= 0 {
		batch = t.End - t.Start
	}

	// add-combined outputs accumulate into task-local partials
	partials := make([]*matrix.DenseMatrix[T], len(t.Outputs))
	scratch := make([]*matrix.DenseMatrix[T], len(t.Outputs))
	for i, out := range t.Outputs {
		if t.Combines[i] == CombineAdd {
			partials[i] = matrix.New[T](out.NumRows(), out.NumCols())
			scratch[i] = matrix.New[T](out.NumRows(), out.NumCols())
		}
	}

	ins := make([]*matrix.DenseMatrix[T], len(t.Inputs))
	outs := make([]*matrix.DenseMatrix[T], len(t.Outputs))
	for start := t.Start; start < t.End; start += batch {
		end := min(start+batch, t.End)
		for i, in := range t.Inputs {
			if t.Splits[i] != SplitRows {
				ins[i] = in
				continue
			}
			view, err := in.SliceRows(start, end)
			if err != nil {
				return cferrors.NewInvalidInputError("execute", fmt.Sprintf("input %d: %v", i, err))
			}
			ins[i] = view
		}
		for i, out := range t.Outputs {
			if t.Combines[i] == CombineAdd {
				scratch[i].Fill(0)
				outs[i] = scratch[i]
				continue
			}
			view, err := out.SliceRows(start-t.OutOffset, end-t.OutOffset)
			if err != nil {
				return cferrors.NewInvalidInputError("execute", fmt.Sprintf("output %d: %v", i, err))
			}
			outs[i] = view
		}

		if err := t.Pipeline(outs, ins, t.Ctx); err != nil {
			return fmt.Errorf("rows [%d, %d): %w", start, end, err)
		}
		for i, p := range partials {
			if p == nil {
				continue
			}
			if err := p.AddFrom(scratch[i]); err != nil {
				return err
			}
		}
	}

	return t.accumulate(partials)
}

func (t *CompiledPipelineTask[T]) accumulate(partials []*matrix.DenseMatrix[T]) error {
	var locked bool
	defer func() {
		if locked {
			t.ReductionLock.Unlock()
		}
	}()
	for i, p := range partials {
		if p == nil {
			continue
		}
		if !locked {
			t.ReductionLock.Lock()
			locked = true
		}
		if err := t.Outputs[i].AddFrom(p); err != nil {
			return err
		}
	}
	return nil
}
