package vectorized_test

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paveg/colflow/internal/config"
	cferrors "github.com/paveg/colflow/internal/errors"
	"github.com/paveg/colflow/internal/ir"
	"github.com/paveg/colflow/internal/kernels"
	"github.com/paveg/colflow/internal/matrix"
	"github.com/paveg/colflow/internal/monitoring"
	"github.com/paveg/colflow/internal/partition"
	"github.com/paveg/colflow/internal/vectorized"
)

func testConfig(threads int) config.Config {
	cfg := config.NewConfig()
	cfg.Threads = threads
	return cfg
}

func calc[T matrix.Number](op ir.CalcOp) vectorized.PipelineFunc[T] {
	return func(outs, ins []*matrix.DenseMatrix[T], _ *vectorized.Context) error {
		return kernels.CalcBinary(op, outs[0], ins[0], ins[1])
	}
}

func sums[T matrix.Number]() vectorized.PipelineFunc[T] {
	return func(outs, ins []*matrix.DenseMatrix[T], _ *vectorized.Context) error {
		return kernels.ColumnSums(outs[0], ins[0])
	}
}

func rowsSpec(inputs, rows, cols int) vectorized.ExecSpec {
	splits := make([]vectorized.SplitMode, inputs)
	return vectorized.ExecSpec{
		Splits:   splits,
		Combines: []vectorized.CombineMode{vectorized.CombineRows},
		OutRows:  []int{rows},
		OutCols:  []int{cols},
	}
}

func TestExecute_CalcBinaryAdd(t *testing.T) {
	lhs := matrix.Column[int64](0, 11, 20, 33, 44, 55, 60, 77, 88, 99)
	rhs := matrix.Column[int64](100, 90, 80, 70, 60, 50, 40, 30, 20, 10)

	cfg := testConfig(3)
	cfg.BatchSize = 2
	w := vectorized.NewWrapper[int64](cfg, nil, nil)
	out, err := w.Execute(
		[]vectorized.PipelineFunc[int64]{calc[int64](ir.CalcAdd)},
		[]*matrix.DenseMatrix[int64]{nil},
		[]*matrix.DenseMatrix[int64]{lhs, rhs},
		rowsSpec(2, 10, 1), nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []int64{100, 101, 100, 103, 104, 105, 100, 107, 108, 109}, out[0].Values())
}

func TestExecute_RowCombineIsDeterministic(t *testing.T) {
	const rows, cols = 1037, 3
	values := make([]float64, rows*cols)
	for i := range values {
		values[i] = float64(i%97) * 0.25
	}
	in, err := matrix.FromValues(rows, cols, values)
	require.NoError(t, err)
	scale, err := matrix.FromValues(1, cols, []float64{1.5, -2, 0.125})
	require.NoError(t, err)

	run := func(cfg config.Config) *matrix.DenseMatrix[float64] {
		spec := rowsSpec(2, rows, cols)
		spec.Splits[1] = vectorized.SplitNone
		out, err := vectorized.NewWrapper[float64](cfg, nil, nil).Execute(
			[]vectorized.PipelineFunc[float64]{calc[float64](ir.CalcMul)},
			[]*matrix.DenseMatrix[float64]{nil},
			[]*matrix.DenseMatrix[float64]{in, scale},
			spec, nil)
		require.NoError(t, err)
		return out[0]
	}

	want := run(testConfig(1))
	for _, p := range partition.Policies() {
		t.Run(p.String(), func(t *testing.T) {
			cfg := testConfig(7)
			cfg.Partitioning = p.String()
			cfg.BatchSize = 16
			assert.True(t, want.Equal(run(cfg)))
		})
	}
}

func TestExecute_AddCombine(t *testing.T) {
	const rows = 500
	ints := make([]int64, rows*2)
	floats := make([]float64, rows*2)
	for i := range ints {
		ints[i] = int64(i*7%31 - 15)
		floats[i] = float64(i%13) * 0.1
	}
	intIn, err := matrix.FromValues(rows, 2, ints)
	require.NoError(t, err)
	floatIn, err := matrix.FromValues(rows, 2, floats)
	require.NoError(t, err)

	spec := vectorized.ExecSpec{
		Splits:   []vectorized.SplitMode{vectorized.SplitRows},
		Combines: []vectorized.CombineMode{vectorized.CombineAdd},
		OutRows:  []int{1},
		OutCols:  []int{2},
	}

	var wantInt []int64
	var wantFloat []float64
	for _, threads := range []int{1, 2, 8} {
		cfg := testConfig(threads)
		cfg.BatchSize = 9

		gotInt, err := vectorized.NewWrapper[int64](cfg, nil, nil).Execute(
			[]vectorized.PipelineFunc[int64]{sums[int64]()},
			[]*matrix.DenseMatrix[int64]{nil},
			[]*matrix.DenseMatrix[int64]{intIn}, spec, nil)
		require.NoError(t, err)
		gotFloat, err := vectorized.NewWrapper[float64](cfg, nil, nil).Execute(
			[]vectorized.PipelineFunc[float64]{sums[float64]()},
			[]*matrix.DenseMatrix[float64]{nil},
			[]*matrix.DenseMatrix[float64]{floatIn}, spec, nil)
		require.NoError(t, err)

		if wantInt == nil {
			wantInt, wantFloat = gotInt[0].Values(), gotFloat[0].Values()
			continue
		}
		assert.Equal(t, wantInt, gotInt[0].Values(), "threads=%d", threads)
		assert.InDeltaSlice(t, wantFloat, gotFloat[0].Values(), 1e-9, "threads=%d", threads)
	}

	var direct int64
	for r := range rows {
		direct += intIn.At(r, 0)
	}
	assert.Equal(t, direct, wantInt[0])
}

func TestExecute_DeviceSplit(t *testing.T) {
	const rows = 100
	values := make([]int64, rows)
	for i := range values {
		values[i] = int64(i)
	}
	in := matrix.Column(values...)
	ones := matrix.Column[int64](1)

	var cpuRows, deviceRows atomic.Int64
	count := func(n *atomic.Int64) vectorized.PipelineFunc[int64] {
		add := calc[int64](ir.CalcAdd)
		return func(outs, ins []*matrix.DenseMatrix[int64], ctx *vectorized.Context) error {
			n.Add(int64(ins[0].NumRows()))
			return add(outs, ins, ctx)
		}
	}

	metrics := monitoring.NewMetrics()
	spec := rowsSpec(2, rows, 1)
	spec.Splits[1] = vectorized.SplitNone
	out, err := vectorized.NewWrapper[int64](testConfig(4), nil, metrics).Execute(
		[]vectorized.PipelineFunc[int64]{count(&cpuRows), count(&deviceRows)},
		[]*matrix.DenseMatrix[int64]{nil},
		[]*matrix.DenseMatrix[int64]{in, ones},
		spec, &vectorized.Context{Devices: 2})
	require.NoError(t, err)

	want := make([]int64, rows)
	for i := range want {
		want[i] = int64(i + 1)
	}
	assert.Equal(t, want, out[0].Values())
	assert.Equal(t, int64(40), cpuRows.Load())
	assert.Equal(t, int64(60), deviceRows.Load())

	series, err := testutil.GatherAndCount(metrics.Gatherer(), "colflow_runtime_tasks_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series)
}

func TestExecute_SinglePipelineIgnoresDevices(t *testing.T) {
	in := matrix.Column[int64](1, 2, 3, 4)
	out, err := vectorized.NewWrapper[int64](testConfig(2), nil, nil).Execute(
		[]vectorized.PipelineFunc[int64]{calc[int64](ir.CalcMul)},
		[]*matrix.DenseMatrix[int64]{nil},
		[]*matrix.DenseMatrix[int64]{in, in},
		rowsSpec(2, 4, 1), &vectorized.Context{Devices: 4})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4, 9, 16}, out[0].Values())
}

func TestExecute_PreallocatedOutput(t *testing.T) {
	in := matrix.Column[int64](1, 2, 3)
	dst := matrix.New[int64](3, 1)
	out, err := vectorized.NewWrapper[int64](testConfig(2), nil, nil).Execute(
		[]vectorized.PipelineFunc[int64]{calc[int64](ir.CalcAdd)},
		[]*matrix.DenseMatrix[int64]{dst},
		[]*matrix.DenseMatrix[int64]{in, in},
		rowsSpec(2, -1, -1), nil)
	require.NoError(t, err)
	assert.Same(t, dst, out[0])
	assert.Equal(t, []int64{2, 4, 6}, dst.Values())
}

func TestExecute_EmptyInput(t *testing.T) {
	calls := 0
	out, err := vectorized.NewWrapper[int64](testConfig(4), nil, nil).Execute(
		[]vectorized.PipelineFunc[int64]{func(_, _ []*matrix.DenseMatrix[int64], _ *vectorized.Context) error {
			calls++
			return nil
		}},
		[]*matrix.DenseMatrix[int64]{nil},
		[]*matrix.DenseMatrix[int64]{matrix.New[int64](0, 1)},
		rowsSpec(1, 0, 1), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, out[0].NumRows())
	assert.Zero(t, calls)
}

func TestExecute_Errors(t *testing.T) {
	in := matrix.Column[int64](1, 2, 3, 4, 5, 6)
	boom := errors.New("boom")

	tests := []struct {
		name  string
		funcs []vectorized.PipelineFunc[int64]
		spec  vectorized.ExecSpec
		check func(t *testing.T, err error)
	}{
		{
			name: "pipeline failure",
			funcs: []vectorized.PipelineFunc[int64]{func(_, ins []*matrix.DenseMatrix[int64], _ *vectorized.Context) error {
				if ins[0].At(0, 0) >= 4 {
					return boom
				}
				return nil
			}},
			spec: rowsSpec(1, 6, 1),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, boom)
			},
		},
		{
			name: "pipeline panic",
			funcs: []vectorized.PipelineFunc[int64]{func(_, _ []*matrix.DenseMatrix[int64], _ *vectorized.Context) error {
				panic("index out of range")
			}},
			spec: rowsSpec(1, 6, 1),
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "task panicked")
			},
		},
		{
			name:  "no pipeline",
			funcs: nil,
			spec:  rowsSpec(1, 6, 1),
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "no pipeline given")
			},
		},
		{
			name:  "split modes do not match inputs",
			funcs: []vectorized.PipelineFunc[int64]{sums[int64]()},
			spec:  rowsSpec(2, 6, 1),
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "2 split modes for 1 inputs")
			},
		},
		{
			name:  "missing shape hint",
			funcs: []vectorized.PipelineFunc[int64]{sums[int64]()},
			spec:  rowsSpec(1, -1, 1),
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "no shape hint")
			},
		},
		{
			name:  "output shorter than input",
			funcs: []vectorized.PipelineFunc[int64]{sums[int64]()},
			spec:  rowsSpec(1, 3, 1),
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, cferrors.ErrShapeMismatch)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(2)
			cfg.BatchSize = 1
			out, err := vectorized.NewWrapper[int64](cfg, nil, nil).Execute(
				tt.funcs, []*matrix.DenseMatrix[int64]{nil}, []*matrix.DenseMatrix[int64]{in}, tt.spec, nil)
			require.Error(t, err)
			assert.Nil(t, out)
			tt.check(t, err)
		})
	}
}
