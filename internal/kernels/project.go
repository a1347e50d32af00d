package kernels

import (
	"fmt"

	"github.com/RoaringBitmap/roaring"

	cferrors "github.com/paveg/colflow/internal/errors"
)

// Project returns values[p] for every position p in ascending order.
func Project(values []int64, pos *roaring.Bitmap) ([]int64, error) {
	out := make([]int64, 0, pos.GetCardinality())
	it := pos.Iterator()
	for it.HasNext() {
		p := int(it.Next())
		if p >= len(values) {
			return nil, outOfRange("project", p, len(values))
		}
		out = append(out, values[p])
	}
	return out, nil
}

// ProjectPath applies a fused chain of projections. lists holds the newest
// position list first, so for lists [PN, ..., P1] the i-th result is
// values[P1[...PN[i]]].
func ProjectPath(values []int64, lists []*roaring.Bitmap) ([]int64, error) {
	if len(lists) == 0 {
		return append([]int64(nil), values...), nil
	}

	idx := Rows(lists[0])
	for _, l := range lists[1:] {
		rows := l.ToArray()
		for i, p := range idx {
			if p >= len(rows) {
				return nil, outOfRange("project_path", p, len(rows))
			}
			idx[i] = int(rows[p])
		}
	}

	out := make([]int64, len(idx))
	for i, p := range idx {
		if p >= len(values) {
			return nil, outOfRange("project_path", p, len(values))
		}
		out[i] = values[p]
	}
	return out, nil
}

func outOfRange(op string, p, n int) error {
	return cferrors.NewInvalidInputError(op, fmt.Sprintf("position %d out of range for length %d", p, n))
}
