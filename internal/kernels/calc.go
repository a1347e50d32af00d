package kernels

import (
	"fmt"

	cferrors "github.com/paveg/colflow/internal/errors"
	"github.com/paveg/colflow/internal/ir"
	"github.com/paveg/colflow/internal/matrix"
)

func apply[T matrix.Number](op ir.CalcOp, a, b T) (T, error) {
	switch op {
	case ir.CalcAdd:
		return a + b, nil
	case ir.CalcSub:
		return a - b, nil
	case ir.CalcMul:
		return a * b, nil
	case ir.CalcDiv:
		if b == 0 {
			return 0, cferrors.NewInvalidInputError("calc", "division by zero")
		}
		return a / b, nil
	default:
		return 0, cferrors.NewUnsupportedTypeError("calc", op.String())
	}
}

// Calc combines two equally long columns elementwise.
func Calc(op ir.CalcOp, lhs, rhs []int64) ([]int64, error) {
	if len(lhs) != len(rhs) {
		return nil, fmt.Errorf("%w: calc over %d and %d values", cferrors.ErrShapeMismatch, len(lhs), len(rhs))
	}
	out := make([]int64, len(lhs))
	for i := range lhs {
		v, err := apply(op, lhs[i], rhs[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Sum adds up a column.
func Sum(values []int64) int64 {
	var s int64
	for _, v := range values {
		s += v
	}
	return s
}

// CalcBinary writes lhs op rhs into out. rhs may be a single row, which is
// broadcast over every row of lhs. out must have the shape of lhs and may
// alias it.
func CalcBinary[T matrix.Number](op ir.CalcOp, out, lhs, rhs *matrix.DenseMatrix[T]) error {
	rows, cols := lhs.NumRows(), lhs.NumCols()
	if out.NumRows() != rows || out.NumCols() != cols || rhs.NumCols() != cols ||
		(rhs.NumRows() != rows && rhs.NumRows() != 1) {
		return fmt.Errorf("%w: calc_binary %s over %dx%d and %dx%d into %dx%d", cferrors.ErrShapeMismatch,
			op, rows, cols, rhs.NumRows(), rhs.NumCols(), out.NumRows(), out.NumCols())
	}
	for r := range rows {
		a, dst := lhs.Row(r), out.Row(r)
		b := rhs.Row(0)
		if rhs.NumRows() != 1 {
			b = rhs.Row(r)
		}
		for c := range a {
			v, err := apply(op, a[c], b[c])
			if err != nil {
				return err
			}
			dst[c] = v
		}
	}
	return nil
}

// ColumnSums adds every row of in into the single row of out.
func ColumnSums[T matrix.Number](out, in *matrix.DenseMatrix[T]) error {
	if out.NumRows() != 1 || out.NumCols() != in.NumCols() {
		return fmt.Errorf("%w: column sums of %dx%d into %dx%d", cferrors.ErrShapeMismatch,
			in.NumRows(), in.NumCols(), out.NumRows(), out.NumCols())
	}
	dst := out.Row(0)
	for r := range in.NumRows() {
		for c, v := range in.Row(r) {
			dst[c] += v
		}
	}
	return nil
}
