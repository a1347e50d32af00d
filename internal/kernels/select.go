// Package kernels holds the reference column and matrix kernels the
// evaluator and the vectorized pipelines call. Position lists and row masks
// are both roaring bitmaps of row indices.
package kernels

import (
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring"

	cferrors "github.com/paveg/colflow/internal/errors"
	"github.com/paveg/colflow/internal/ir"
)

// Matches reports whether v pred rhs holds.
func Matches(pred ir.CmpPred, v, rhs int64) bool {
	switch pred {
	case ir.PredEQ:
		return v == rhs
	case ir.PredNEQ:
		return v != rhs
	case ir.PredLT:
		return v < rhs
	case ir.PredLE:
		return v <= rhs
	case ir.PredGT:
		return v > rhs
	case ir.PredGE:
		return v >= rhs
	default:
		return false
	}
}

// Select returns the positions of the values satisfying pred against rhs.
func Select(values []int64, pred ir.CmpPred, rhs int64) *roaring.Bitmap {
	out := roaring.New()
	for i, v := range values {
		if Matches(pred, v, rhs) {
			out.Add(uint32(i))
		}
	}
	return out
}

// Between returns the positions of the values in [lo, hi].
func Between(values []int64, lo, hi int64) *roaring.Bitmap {
	out := roaring.New()
	for i, v := range values {
		if lo <= v && v <= hi {
			out.Add(uint32(i))
		}
	}
	return out
}

// Intersect returns the positions present in both lists.
func Intersect(a, b *roaring.Bitmap) *roaring.Bitmap {
	return roaring.And(a, b)
}

// Positions converts row indices into a position list.
func Positions(rows []int64) (*roaring.Bitmap, error) {
	out := roaring.New()
	for _, r := range rows {
		if r < 0 || r > math.MaxUint32 {
			return nil, cferrors.NewInvalidInputError("positions", fmt.Sprintf("row index %d out of range", r))
		}
		out.Add(uint32(r))
	}
	return out, nil
}

// Rows returns the positions as ints in ascending order.
func Rows(pos *roaring.Bitmap) []int {
	out := make([]int, 0, pos.GetCardinality())
	it := pos.Iterator()
	for it.HasNext() {
		out = append(out, int(it.Next()))
	}
	return out
}
