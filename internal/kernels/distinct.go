package kernels

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/axiomhq/hyperloglog"

	cferrors "github.com/paveg/colflow/internal/errors"
	"github.com/paveg/colflow/internal/matrix"
)

// DefaultDistinctPrecision gives 2^14 registers, a standard error of
// 1.04/sqrt(2^14), about 0.8%.
const DefaultDistinctPrecision = 14

func valueKey[T matrix.Number](v T, buf *[8]byte) []byte {
	var bits uint64
	switch x := any(v).(type) {
	case float64:
		if x == 0 {
			x = 0 // -0
		}
		bits = math.Float64bits(x)
	case float32:
		if x == 0 {
			x = 0
		}
		bits = math.Float64bits(float64(x))
	default:
		bits = uint64(int64(v))
	}
	binary.LittleEndian.PutUint64(buf[:], bits)
	return buf[:]
}

// NumDistinctApprox estimates the number of distinct values of m with a
// HyperLogLog sketch of 2^precision registers. precision must lie in
// [4, 18]. Small counts stay in the sparse representation and are close to
// exact.
func NumDistinctApprox[T matrix.Number](m *matrix.DenseMatrix[T], precision uint8) (int64, error) {
	hll, err := hyperloglog.NewSketch(precision, true)
	if err != nil {
		return 0, cferrors.NewInvalidInputError("num_distinct_approx",
			fmt.Sprintf("precision %d: %v", precision, err))
	}

	var buf [8]byte
	for r := range m.NumRows() {
		for _, v := range m.Row(r) {
			hll.Insert(valueKey(v, &buf))
		}
	}
	return int64(hll.Estimate()), nil
}
