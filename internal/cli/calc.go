package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/paveg/colflow/internal/distributed"
	cfio "github.com/paveg/colflow/internal/io"
	"github.com/paveg/colflow/internal/ir"
	"github.com/paveg/colflow/internal/kernels"
	"github.com/paveg/colflow/internal/matrix"
	"github.com/paveg/colflow/internal/vectorized"
)

const (
	calcAddCode = "calc_binary<add>"
	sumAddCode  = "column_sums(calc_binary<add>)"
)

// CalcOptions holds flags for the calc command.
type CalcOptions struct {
	*RootOptions
	Rows        int
	Cols        int
	Threads     int
	Devices     int
	Distributed bool
	Combine     string
	Input       string
	Out         string
	Distinct    uint8
}

// NewCalcCommand creates the calc command.
func NewCalcCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CalcOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Run a generated calc_binary<add> pipeline and report timing",
		Long: `Add two generated float64 matrices on the vectorized runtime. With
--distributed the left matrix is split over in-process workers and a bias row
is added to every block instead.

--combine add reduces the sum to one row of column totals, merged across
tasks (or workers) by addition. --input replaces the generated left matrix
with the columns of a .csv or .parquet frame file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCalc(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Rows, "rows", 1_000_000, "number of rows")
	cmd.Flags().IntVar(&opts.Cols, "cols", 4, "number of columns")
	cmd.Flags().IntVar(&opts.Threads, "threads", 0, "worker count (0 = configuration)")
	cmd.Flags().IntVar(&opts.Devices, "devices", 0, "device workers running the second pipeline")
	cmd.Flags().BoolVar(&opts.Distributed, "distributed", false, "run on in-process distributed workers")
	cmd.Flags().StringVar(&opts.Combine, "combine", "rows", "how partial results are merged (rows|add)")
	cmd.Flags().StringVar(&opts.Input, "input", "", "read the left matrix from a .csv or .parquet file")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the result matrix to a .csv or .parquet file")
	cmd.Flags().Uint8Var(&opts.Distinct, "distinct", 0, "estimate the number of distinct result values with a HyperLogLog sketch of this precision (4-18)")
	cmd.Flags().Lookup("distinct").NoOptDefVal = strconv.Itoa(kernels.DefaultDistinctPrecision)

	return cmd
}

func addPipeline(outs, ins []*matrix.DenseMatrix[float64], _ *vectorized.Context) error {
	return kernels.CalcBinary(ir.CalcAdd, outs[0], ins[0], ins[1])
}

// sumPipeline adds its inputs and accumulates the column totals of the sum
// into a single output row.
func sumPipeline(outs, ins []*matrix.DenseMatrix[float64], _ *vectorized.Context) error {
	tmp := matrix.New[float64](ins[0].NumRows(), ins[0].NumCols())
	if err := kernels.CalcBinary(ir.CalcAdd, tmp, ins[0], ins[1]); err != nil {
		return err
	}
	return kernels.ColumnSums(outs[0], tmp)
}

// program returns the pipeline code and body for a --combine value.
func program(combine string) (string, distributed.Program, error) {
	switch strings.ToLower(combine) {
	case "rows", "":
		return calcAddCode, distributed.Program{Func: addPipeline, Combine: vectorized.CombineRows}, nil
	case "add":
		return sumAddCode, distributed.Program{Func: sumPipeline, Combine: vectorized.CombineAdd}, nil
	default:
		return "", distributed.Program{}, fmt.Errorf("unknown combine mode %q: must be rows or add", combine)
	}
}

// loadMatrix reads a frame file and converts its columns to float64.
func loadMatrix(path string) (*matrix.DenseMatrix[float64], error) {
	fr, err := cfio.ReadFile(path, nil)
	if err != nil {
		return nil, err
	}
	defer fr.Release()
	rec := fr.ToRecord()
	defer rec.Release()
	m, err := matrix.FromRecord[float64](rec)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// writeMatrix writes m to a frame file with columns c0, c1, ...
func writeMatrix(path string, m *matrix.DenseMatrix[float64]) error {
	rec, err := m.ToRecord(nil)
	if err != nil {
		return err
	}
	defer rec.Release()
	return cfio.WriteRecordFile(path, rec)
}

// sequence returns a rows x cols matrix holding 0, step, 2*step, ... in
// row-major order.
func sequence(rows, cols int, step float64) *matrix.DenseMatrix[float64] {
	values := make([]float64, rows*cols)
	for i := range values {
		values[i] = float64(i) * step
	}
	m, _ := matrix.FromValues(rows, cols, values)
	return m
}

func checksum(m *matrix.DenseMatrix[float64]) float64 {
	var s float64
	for _, v := range m.Values() {
		s += v
	}
	return s
}

func runCalc(opts *CalcOptions, cmd *cobra.Command) error {
	code, prog, err := program(opts.Combine)
	if err != nil {
		return err
	}
	var lhs *matrix.DenseMatrix[float64]
	if opts.Input != "" {
		if lhs, err = loadMatrix(opts.Input); err != nil {
			return err
		}
		opts.Rows, opts.Cols = lhs.NumRows(), lhs.NumCols()
	}
	if opts.Rows < 0 || opts.Cols <= 0 {
		return fmt.Errorf("invalid shape %dx%d", opts.Rows, opts.Cols)
	}
	if lhs == nil {
		lhs = sequence(opts.Rows, opts.Cols, 1)
	}
	cfg := opts.cfg
	if opts.Threads > 0 {
		cfg.Threads = opts.Threads
	}
	cfg = cfg.TuneForRows(opts.Rows)

	outRows := opts.Rows
	if prog.Combine == vectorized.CombineAdd {
		outRows = 1
	}

	var (
		out     *matrix.DenseMatrix[float64]
		workers int
	)
	start := time.Now()
	if opts.Distributed {
		out, err = distributedRun(cmd.Context(), opts, cfg.DistributedWorkers, code, prog, lhs, outRows)
		workers = cfg.DistributedWorkers
	} else {
		w := vectorized.NewWrapper[float64](cfg, opts.logger, opts.metrics)
		funcs := []vectorized.PipelineFunc[float64]{prog.Func}
		if opts.Devices > 0 {
			funcs = append(funcs, prog.Func)
		}
		var outs []*matrix.DenseMatrix[float64]
		outs, err = w.Execute(funcs,
			[]*matrix.DenseMatrix[float64]{nil},
			[]*matrix.DenseMatrix[float64]{lhs, sequence(opts.Rows, opts.Cols, 2)},
			vectorized.ExecSpec{
				Splits:   []vectorized.SplitMode{vectorized.SplitRows, vectorized.SplitRows},
				Combines: []vectorized.CombineMode{prog.Combine},
				OutRows:  []int{outRows},
				OutCols:  []int{opts.Cols},
			},
			&vectorized.Context{Devices: opts.Devices, Logger: opts.logger, Metrics: opts.metrics, Verbose: cfg.VerboseLogging})
		if err == nil {
			out = outs[0]
		}
		workers = w.Threads()
	}
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if opts.Out != "" {
		if err := writeMatrix(opts.Out, out); err != nil {
			return err
		}
	}

	line := fmt.Sprintf("%s rows=%d cols=%d workers=%d checksum=%g", code, opts.Rows, opts.Cols, workers, checksum(out))
	if opts.Distinct > 0 {
		n, err := kernels.NumDistinctApprox(out, opts.Distinct)
		if err != nil {
			return err
		}
		line += fmt.Sprintf(" distinct~%d", n)
	}

	level.Debug(opts.logger).Log("msg", "calc finished", "pipeline", code, "rows", opts.Rows, "elapsed", elapsed)
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s elapsed=%s\n", line, elapsed)
	return err
}

// distributedRun splits lhs over n local workers and adds a bias row to
// every block. Row-combined results are collected in place, add-combined
// ones are reduced.
func distributedRun(ctx context.Context, opts *CalcOptions, n int, code string, prog distributed.Program,
	lhs *matrix.DenseMatrix[float64], outRows int) (*matrix.DenseMatrix[float64], error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cluster := distributed.NewCluster()
	for i := range n {
		addr := fmt.Sprintf("worker-%d", i)
		w := distributed.NewLocalWorker(addr, opts.cfg, opts.logger, opts.metrics)
		w.Register(code, prog)
		cluster.Add(addr, w)
	}

	args, err := distributed.Distribute(ctx, cluster, lhs)
	if err != nil {
		return nil, err
	}
	res, err := distributed.Compute(ctx, cluster, args, code, sequence(1, opts.Cols, 1))
	if err != nil {
		return nil, err
	}
	out := matrix.New[float64](outRows, opts.Cols)
	if prog.Combine == vectorized.CombineAdd {
		err = distributed.Reduce(ctx, cluster, res, out)
	} else {
		err = distributed.Collect(ctx, cluster, res, out)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}
