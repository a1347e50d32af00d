package kernels_test

import (
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cferrors "github.com/paveg/colflow/internal/errors"
	"github.com/paveg/colflow/internal/frame"
	"github.com/paveg/colflow/internal/ir"
	"github.com/paveg/colflow/internal/kernels"
	"github.com/paveg/colflow/internal/matrix"
)

func TestSelect(t *testing.T) {
	values := []int64{5, 10, 15, 20, 25}
	tests := []struct {
		pred ir.CmpPred
		rhs  int64
		want []uint32
	}{
		{ir.PredEQ, 15, []uint32{2}},
		{ir.PredNEQ, 15, []uint32{0, 1, 3, 4}},
		{ir.PredLT, 15, []uint32{0, 1}},
		{ir.PredLE, 15, []uint32{0, 1, 2}},
		{ir.PredGT, 15, []uint32{3, 4}},
		{ir.PredGE, 15, []uint32{2, 3, 4}},
		{ir.PredGT, 99, []uint32{}},
	}
	for _, tt := range tests {
		t.Run(tt.pred.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, kernels.Select(values, tt.pred, tt.rhs).ToArray())
		})
	}
}

func TestBetweenMatchesIntersectedBounds(t *testing.T) {
	values := []int64{9, 10, 11, 19, 20, 21, 10, 20}
	for _, bounds := range [][2]int64{{10, 20}, {10, 10}, {21, 9}, {0, 100}} {
		lo, hi := bounds[0], bounds[1]
		fused := kernels.Between(values, lo, hi)
		split := kernels.Intersect(
			kernels.Select(values, ir.PredLE, hi),
			kernels.Select(values, ir.PredGE, lo),
		)
		assert.True(t, fused.Equals(split), "bounds [%d, %d]", lo, hi)
	}
	assert.Equal(t, []uint32{1, 2, 3, 4, 6, 7}, kernels.Between(values, 10, 20).ToArray())
}

func TestProjectPath(t *testing.T) {
	values := []int64{100, 101, 102, 103, 104, 105, 106, 107}
	p1 := roaring.BitmapOf(1, 2, 4, 6, 7)
	p2 := roaring.BitmapOf(0, 2, 3, 4)
	p3 := roaring.BitmapOf(1, 3)

	step1, err := kernels.Project(values, p1)
	require.NoError(t, err)
	step2, err := kernels.Project(step1, p2)
	require.NoError(t, err)
	step3, err := kernels.Project(step2, p3)
	require.NoError(t, err)
	assert.Equal(t, []int64{104, 107}, step3)

	fused, err := kernels.ProjectPath(values, []*roaring.Bitmap{p3, p2, p1})
	require.NoError(t, err)
	assert.Equal(t, step3, fused)

	_, err = kernels.Project(values, roaring.BitmapOf(8))
	require.Error(t, err)
	_, err = kernels.ProjectPath(values, []*roaring.Bitmap{roaring.BitmapOf(9), p1})
	require.Error(t, err)
}

func TestCalc(t *testing.T) {
	out, err := kernels.Calc(ir.CalcSub, []int64{5, 6}, []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 4}, out)

	_, err = kernels.Calc(ir.CalcDiv, []int64{1}, []int64{0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "division by zero")

	_, err = kernels.Calc(ir.CalcAdd, []int64{1}, nil)
	assert.ErrorIs(t, err, cferrors.ErrShapeMismatch)

	assert.Equal(t, int64(15), kernels.Sum([]int64{1, 2, 3, 4, 5}))
}

func TestCalcBinary(t *testing.T) {
	lhs := matrix.Column[int64](0, 11, 20, 33, 44, 55, 60, 77, 88, 99)
	rhs := matrix.Column[int64](100, 90, 80, 70, 60, 50, 40, 30, 20, 10)
	out := matrix.New[int64](10, 1)

	require.NoError(t, kernels.CalcBinary(ir.CalcAdd, out, lhs, rhs))
	assert.Equal(t, []int64{100, 101, 100, 103, 104, 105, 100, 107, 108, 109}, out.Values())

	wide, err := matrix.FromValues(2, 2, []float64{1, 2, 3, 4})
	require.NoError(t, err)
	scale, err := matrix.FromValues(1, 2, []float64{10, 100})
	require.NoError(t, err)
	require.NoError(t, kernels.CalcBinary(ir.CalcMul, wide, wide, scale))
	assert.Equal(t, []float64{10, 200, 30, 400}, wide.Values())

	err = kernels.CalcBinary(ir.CalcAdd, out, lhs, matrix.Column[int64](1, 2))
	assert.ErrorIs(t, err, cferrors.ErrShapeMismatch)
}

func TestColumnSums(t *testing.T) {
	in, err := matrix.FromValues(3, 2, []int64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	out := matrix.New[int64](1, 2)
	require.NoError(t, kernels.ColumnSums(out, in))
	require.NoError(t, kernels.ColumnSums(out, in))
	assert.Equal(t, []int64{18, 24}, out.Values())
}

func TestInnerJoinAndFilter(t *testing.T) {
	l, err := frame.FromValues([]string{"id", "x"}, map[string][]int64{
		"id": {1, 2, 3, 2},
		"x":  {10, 20, 30, 40},
	}, nil)
	require.NoError(t, err)
	r, err := frame.FromValues([]string{"key", "y"}, map[string][]int64{
		"key": {2, 3, 2, 4},
		"y":   {7, 8, 9, 6},
	}, nil)
	require.NoError(t, err)

	j, err := kernels.InnerJoin(l, r, "id", "key", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "x", "key", "y"}, j.Labels())
	assert.Equal(t, [][]int64{
		{2, 20, 2, 7},
		{2, 20, 2, 9},
		{3, 30, 3, 8},
		{2, 40, 2, 7},
		{2, 40, 2, 9},
	}, j.Rows())

	x, _ := j.Column("x")
	filtered, err := kernels.FilterRows(j, kernels.Select(x.Values(), ir.PredGT, 20), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, filtered.Len())

	_, err = kernels.InnerJoin(l, r, "id", "nope", nil)
	var opErr *cferrors.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "nope", opErr.Column)

	_, err = kernels.FilterRows(l, roaring.BitmapOf(4), nil)
	require.Error(t, err)
}
