package distributed

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/paveg/colflow/internal/matrix"
	"github.com/paveg/colflow/internal/version"
)

type placedAt struct {
	ix  Index
	rng Range
}

// Distribute splits the rows of m into one block per worker of the cluster
// and stores each block. Earlier workers receive the extra rows.
func Distribute(ctx context.Context, c *Cluster, m *matrix.DenseMatrix[float64]) (*Handle, error) {
	addrs := c.Addresses()
	if len(addrs) == 0 {
		return nil, errors.New("distribute: cluster has no workers")
	}
	h := NewHandle(addrs...)
	caller := NewCaller[placedAt](ctx, func(ctx context.Context, addr string, block *matrix.DenseMatrix[float64]) (StoredData, error) {
		w, err := c.Worker(addr)
		if err != nil {
			return StoredData{}, err
		}
		return w.Store(ctx, block)
	})

	rows, start := m.NumRows(), 0
	for i, addr := range addrs {
		n := rows / len(addrs)
		if i < rows%len(addrs) {
			n++
		}
		block, err := m.SliceRows(start, start+n)
		if err != nil {
			caller.Drain()
			return nil, err
		}
		caller.Call(addr, placedAt{ix: Index{Row: i}, rng: Range{RowStart: start, RowLen: n, ColLen: m.NumCols()}}, block)
		start += n
	}

	var errs []error
	for _, r := range caller.Drain() {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("store at %s: %w", r.Addr, r.Err))
			continue
		}
		h.Insert(r.Addr, Placement{Index: r.Info.ix, Data: r.Result, Range: r.Info.rng, Placed: true})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return h, nil
}

// Compute ships one task per worker of args, binding every placement held at
// that worker as an input, and returns a handle to the stored outputs. Task i
// in address order gets row index i; outputs cover the rows of their inputs.
// literals are appended to every task as inline inputs.
func Compute(ctx context.Context, c *Cluster, args *Handle, code string, literals ...*matrix.DenseMatrix[float64]) (*Handle, error) {
	blob, err := EncodeCode(code)
	if err != nil {
		return nil, err
	}

	addrs := args.Addresses()
	res := NewHandle(addrs...)
	caller := NewCaller[placedAt](ctx, func(ctx context.Context, addr string, task Task) (ComputeResult, error) {
		w, err := c.Worker(addr)
		if err != nil {
			return ComputeResult{}, err
		}
		return w.Compute(ctx, task)
	})

	for i, addr := range addrs {
		placements := args.Placements(addr)
		if len(placements) == 0 {
			continue
		}
		task := Task{Client: version.UserAgent(), Code: blob}
		rng := placements[0].Range
		for _, p := range placements {
			task.Inputs = append(task.Inputs, Data{Stored: &p.Data})
		}
		for _, l := range literals {
			task.Inputs = append(task.Inputs, Data{Values: l})
		}
		caller.Call(addr, placedAt{ix: Index{Row: i}, rng: rng}, task)
	}

	var errs []error
	for _, r := range caller.Drain() {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("compute at %s: %w", r.Addr, r.Err))
			continue
		}
		for _, out := range r.Result.Outputs {
			if out.Stored == nil {
				errs = append(errs, fmt.Errorf("compute at %s: output is not stored", r.Addr))
				continue
			}
			rng := r.Info.rng
			rng.RowLen, rng.ColLen = out.Stored.NumRows, out.Stored.NumCols
			res.Insert(r.Addr, Placement{Index: r.Info.ix, Data: *out.Stored, Range: rng, Placed: true})
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return res, nil
}

type fetched = Response[Placement, *matrix.DenseMatrix[float64]]

// fetch transfers every placed block of h, ordered by row index.
func fetch(ctx context.Context, c *Cluster, h *Handle) []fetched {
	caller := NewCaller[Placement](ctx, func(ctx context.Context, addr string, data StoredData) (*matrix.DenseMatrix[float64], error) {
		w, err := c.Worker(addr)
		if err != nil {
			return nil, err
		}
		return w.Transfer(ctx, data)
	})
	for _, addr := range h.Addresses() {
		for _, p := range h.Placements(addr) {
			if p.Placed {
				caller.Call(addr, p, p.Data)
			}
		}
	}

	responses := caller.Drain()
	slices.SortFunc(responses, func(a, b fetched) int {
		return a.Info.Index.Row - b.Info.Index.Row
	})
	return responses
}

// Collect copies every placed block of h into dst at its range and marks it
// collected.
func Collect(ctx context.Context, c *Cluster, h *Handle, dst *matrix.DenseMatrix[float64]) error {
	var errs []error
	for _, r := range fetch(ctx, c, h) {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("transfer from %s: %w", r.Addr, r.Err))
			continue
		}
		if err := place(dst, r.Info.Range, r.Result); err != nil {
			errs = append(errs, fmt.Errorf("collect %s from %s: %w", r.Info.Index, r.Addr, err))
			continue
		}
		h.update(r.Addr, r.Info.Data.Identifier, func(p *Placement) { p.Placed = false })
	}
	return errors.Join(errs...)
}

// Reduce adds every placed block of h into dst, which must have the shape of
// each block. It is the collect step of add-combined pipelines.
func Reduce(ctx context.Context, c *Cluster, h *Handle, dst *matrix.DenseMatrix[float64]) error {
	var errs []error
	for _, r := range fetch(ctx, c, h) {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("transfer from %s: %w", r.Addr, r.Err))
			continue
		}
		if err := dst.AddFrom(r.Result); err != nil {
			errs = append(errs, fmt.Errorf("reduce %s from %s: %w", r.Info.Index, r.Addr, err))
			continue
		}
		h.update(r.Addr, r.Info.Data.Identifier, func(p *Placement) { p.Placed = false })
	}
	return errors.Join(errs...)
}

func place(dst *matrix.DenseMatrix[float64], rng Range, block *matrix.DenseMatrix[float64]) error {
	if rng.ColStart+block.NumCols() > dst.NumCols() {
		return fmt.Errorf("block of %d columns at column %d exceeds %d columns", block.NumCols(), rng.ColStart, dst.NumCols())
	}
	view, err := dst.SliceRows(rng.RowStart, rng.RowStart+block.NumRows())
	if err != nil {
		return err
	}
	for r := range block.NumRows() {
		copy(view.Row(r)[rng.ColStart:], block.Row(r))
	}
	return nil
}
