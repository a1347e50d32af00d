package kernels

import (
	"encoding/binary"

	"github.com/RoaringBitmap/roaring"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/cespare/xxhash/v2"

	cferrors "github.com/paveg/colflow/internal/errors"
	"github.com/paveg/colflow/internal/frame"
)

// FilterRows keeps the rows of f whose index is set in mask.
func FilterRows(f *frame.Frame, mask *roaring.Bitmap, mem memory.Allocator) (*frame.Frame, error) {
	rows := Rows(mask)
	if n := len(rows); n > 0 && rows[n-1] >= f.Len() {
		return nil, outOfRange("filter_row", rows[n-1], f.Len())
	}
	return f.Take(rows, mem)
}

func hashKey(v int64) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(v))
	return xxhash.Sum64(buf[:])
}

// InnerJoin joins lhs and rhs on lhs.lhsOn = rhs.rhsOn. The result holds the
// columns of lhs followed by those of rhs; rows are ordered by lhs row, then
// rhs row.
func InnerJoin(lhs, rhs *frame.Frame, lhsOn, rhsOn string, mem memory.Allocator) (*frame.Frame, error) {
	lkey, ok := lhs.Column(lhsOn)
	if !ok {
		return nil, cferrors.NewColumnNotFoundError("inner_join", "lhs", lhsOn)
	}
	rkey, ok := rhs.Column(rhsOn)
	if !ok {
		return nil, cferrors.NewColumnNotFoundError("inner_join", "rhs", rhsOn)
	}

	rvals := rkey.Values()
	build := make(map[uint64][]int, len(rvals))
	for r, v := range rvals {
		h := hashKey(v)
		build[h] = append(build[h], r)
	}

	var lrows, rrows []int
	for l, v := range lkey.Values() {
		for _, r := range build[hashKey(v)] {
			if rvals[r] == v {
				lrows = append(lrows, l)
				rrows = append(rrows, r)
			}
		}
	}

	left, err := lhs.Take(lrows, mem)
	if err != nil {
		return nil, err
	}
	right, err := rhs.Take(rrows, mem)
	if err != nil {
		return nil, err
	}
	return left.Concat(right)
}
