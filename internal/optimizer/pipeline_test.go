package optimizer_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/paveg/colflow/internal/config"
	cferrors "github.com/paveg/colflow/internal/errors"
	"github.com/paveg/colflow/internal/ir"
	"github.com/paveg/colflow/internal/logging"
	"github.com/paveg/colflow/internal/monitoring"
	"github.com/paveg/colflow/internal/optimizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mixedGraph has one opportunity for each pass.
func mixedGraph(t *testing.T) *ir.Graph {
	t.Helper()
	b := ir.NewBuilder()
	l := b.Input("l", "a", "b")
	r := b.Input("r", "c", "d")
	j := b.Join(l, r, "a", "c")
	f := b.Filter(j, b.Compare(ir.PredGT, b.Extract(j, "d"), b.Int(3)))

	col := b.ColumnInput("x")
	le := b.Cmp(ir.PredLE, col, b.Int(20))
	ge := b.Cmp(ir.PredGE, col, b.Int(10))
	sel := b.Intersect(le, ge)
	proj := b.Project(b.Project(col, sel), b.PositionsInput("p"))

	b.Return(f, proj)
	require.NoError(t, b.Err())
	return b.Graph()
}

func TestPipeline_RunsAllPasses(t *testing.T) {
	g := mixedGraph(t)
	before := g.String()

	var buf bytes.Buffer
	logger, err := logging.New(&buf, "debug")
	require.NoError(t, err)
	metrics := monitoring.NewMetrics()

	cfg := config.NewConfig()
	cfg.VerifyRewrites = true
	out, stats, err := optimizer.NewPipeline(cfg, logger, metrics).Run(g)
	require.NoError(t, err)

	assert.Equal(t, before, g.String(), "input graph must not change")
	require.Len(t, stats, 3)
	assert.Equal(t, optimizer.PassSelectionPushdown, stats[0].Pass)
	assert.Equal(t, optimizer.PassRangeFusion, stats[1].Pass)
	assert.Equal(t, optimizer.PassProjectionPath, stats[2].Pass)
	for _, s := range stats {
		assert.Equal(t, 1, s.Rewrites, s.Pass)
	}

	counts := out.Counts()
	assert.Equal(t, 1, counts[ir.OpColumnBetween])
	assert.Equal(t, 1, counts[ir.OpColumnProjectionPath])
	assert.Equal(t, 0, counts[ir.OpColumnProject])
	assert.Equal(t, 0, counts[ir.OpColumnIntersect])
	returns := out.Returns()
	require.Len(t, returns, 2)
	assert.Equal(t, ir.OpInnerJoin, out.Producer(returns[0]).Kind())

	series, err := testutil.GatherAndCount(metrics.Gatherer(), "colflow_optimizer_rewrites_total")
	require.NoError(t, err)
	assert.Equal(t, 3, series)
	assert.Contains(t, buf.String(), "rewrite committed")
}

func TestPipeline_DisabledPasses(t *testing.T) {
	cfg := config.NewConfig()
	cfg.RangeFusion = false
	cfg.SelectionPushdown = false

	out, stats, err := optimizer.NewPipeline(cfg, nil, nil).Run(mixedGraph(t))
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, optimizer.PassProjectionPath, stats[0].Pass)

	counts := out.Counts()
	assert.Equal(t, 0, counts[ir.OpColumnBetween])
	assert.Equal(t, 1, counts[ir.OpFilterRow])
	assert.Equal(t, 2, counts[ir.OpColumnCmp])
	assert.Equal(t, 1, counts[ir.OpColumnProjectionPath])
}

func TestPipeline_AbortsOnFirstError(t *testing.T) {
	b := ir.NewBuilder()
	j := b.Join(b.Input("l", "a"), b.Input("r", "c"), "a", "c")
	b.Return(b.Filter(j, b.Compare(ir.PredEQ, b.Extract(j, "missing"), b.Int(0))))
	require.NoError(t, b.Err())

	out, stats, err := optimizer.NewPipeline(config.NewConfig(), nil, nil).Run(b.Graph())
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Empty(t, stats)

	var opErr *cferrors.OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "missing", opErr.Column)
}

func TestPipeline_IterationBound(t *testing.T) {
	cfg := config.NewConfig()
	cfg.MaxRewriteIterations = 1

	_, _, err := optimizer.NewPipeline(cfg, nil, nil).Run(mixedGraph(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, cferrors.ErrNotConverged)
}

func TestOptimize_UsesGlobalConfig(t *testing.T) {
	original := config.GetGlobalConfig()
	defer config.SetGlobalConfig(original)

	cfg := config.NewConfig()
	cfg.ProjectionPathFusion = false
	config.SetGlobalConfig(cfg)

	out, err := optimizer.Optimize(mixedGraph(t))
	require.NoError(t, err)
	assert.Equal(t, 2, out.Counts()[ir.OpColumnProject])
}
