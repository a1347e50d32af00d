package optimizer_test

import (
	"fmt"
	"testing"

	"github.com/paveg/colflow/internal/ir"
	"github.com/paveg/colflow/internal/optimizer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// projectChain builds n nested ColumnProjects over one column.
func projectChain(t *testing.T, n int) (*ir.Graph, ir.Value, []ir.Value) {
	t.Helper()
	b := ir.NewBuilder()
	col := b.ColumnInput("c")
	lists := make([]ir.Value, n)
	for i := range lists {
		lists[i] = b.PositionsInput(fmt.Sprintf("p%d", i+1))
	}
	cur := col
	for _, p := range lists {
		cur = b.Project(cur, p)
	}
	b.Return(cur)
	require.NoError(t, b.Err())
	return b.Graph(), col, lists
}

func TestProjectionPath_Fuses(t *testing.T) {
	for _, n := range []int{2, 3, 5} {
		t.Run(fmt.Sprintf("depth %d", n), func(t *testing.T) {
			g, col, lists := projectChain(t, n)

			stats := runPass(t, g, optimizer.ProjectionPath{})
			assert.Equal(t, n-1, stats.Rewrites)

			counts := g.Counts()
			assert.Equal(t, 0, counts[ir.OpColumnProject])
			path := single(t, g, ir.OpColumnProjectionPath)

			// newest list first
			want := []ir.Value{col}
			for i := n - 1; i >= 0; i-- {
				want = append(want, lists[i])
			}
			assert.Equal(t, want, path.Operands())
			assert.Equal(t, []ir.Value{path.Result(0)}, g.Returns())
			assert.Equal(t, ir.TypeColumn, path.ResultType(0).Kind)
		})
	}
}

func TestProjectionPath_SingleProjectIsLegal(t *testing.T) {
	g, _, _ := projectChain(t, 1)
	before := g.String()

	stats := runPass(t, g, optimizer.ProjectionPath{})
	assert.Equal(t, 0, stats.Rewrites)
	assert.Equal(t, 1, stats.Iterations)
	assert.Equal(t, before, g.String())
}

func TestProjectionPath_KeepsSharedPredecessor(t *testing.T) {
	b := ir.NewBuilder()
	col := b.ColumnInput("c")
	p1, p2 := b.PositionsInput("p1"), b.PositionsInput("p2")
	first := b.Project(col, p1)
	second := b.Project(first, p2)
	b.Return(first, second)
	require.NoError(t, b.Err())
	g := b.Graph()

	runPass(t, g, optimizer.ProjectionPath{})

	assert.True(t, g.Live(first.Node))
	assert.False(t, g.Live(second.Node))
	path := single(t, g, ir.OpColumnProjectionPath)
	assert.Equal(t, []ir.Value{col, p2, p1}, path.Operands())
	assert.Equal(t, []ir.Value{first, path.Result(0)}, g.Returns())
}
