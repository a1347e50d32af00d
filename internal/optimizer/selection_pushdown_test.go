package optimizer_test

import (
	"strconv"
	"testing"

	cferrors "github.com/paveg/colflow/internal/errors"
	"github.com/paveg/colflow/internal/ir"
	"github.com/paveg/colflow/internal/optimizer"
	"github.com/paveg/colflow/internal/rewrite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cond struct {
	column string
	pred   ir.CmpPred
	value  int64
}

// filteredJoin builds filter(join(l[a,b], r[c,d]), AND(conds...)).
func filteredJoin(t *testing.T, conds ...cond) (*ir.Graph, ir.Value, ir.Value, ir.Value) {
	t.Helper()
	b := ir.NewBuilder()
	l := b.Input("l", "a", "b")
	r := b.Input("r", "c", "d")
	j := b.Join(l, r, "a", "c")
	var mask ir.Value
	for i, c := range conds {
		m := b.Compare(c.pred, b.Extract(j, c.column), b.Int(c.value))
		if i == 0 {
			mask = m
		} else {
			mask = b.And(mask, m)
		}
	}
	b.Return(b.Filter(j, mask))
	require.NoError(t, b.Err())
	return b.Graph(), l, r, j
}

// sideFilter checks that v is a FilterRow over frame and returns the
// predicates applied to it in chain order.
func sideFilter(t *testing.T, g *ir.Graph, v, frame ir.Value) []string {
	t.Helper()
	f := g.Producer(v)
	require.Equal(t, ir.OpFilterRow, f.Kind())
	require.Equal(t, frame, f.Operand(0))

	var preds []string
	var walk func(m ir.Value)
	walk = func(m ir.Value) {
		n := g.Producer(m)
		if n.Kind() == ir.OpEwAnd {
			walk(n.Operand(0))
			walk(n.Operand(1))
			return
		}
		require.Equal(t, ir.OpCompare, n.Kind())
		extract := g.Producer(n.Operand(0))
		require.Equal(t, frame, extract.Operand(0))
		name := g.Producer(extract.Operand(1)).Op().(ir.Constant).Value.(string)
		bound := g.Producer(n.Operand(1)).Op().(ir.Constant).Value.(int64)
		preds = append(preds, name+" "+n.Op().(ir.Compare).Pred.String()+" "+strconv.FormatInt(bound, 10))
	}
	walk(f.Operand(1))
	return preds
}

func TestSelectionPushdown(t *testing.T) {
	tests := []struct {
		name  string
		conds []cond
		left  []string
		right []string
	}{
		{
			name:  "both sides",
			conds: []cond{{"a", ir.PredGT, 5}, {"d", ir.PredLT, 7}},
			left:  []string{"a gt 5"},
			right: []string{"d lt 7"},
		},
		{
			name:  "left only",
			conds: []cond{{"b", ir.PredEQ, 1}},
			left:  []string{"b eq 1"},
		},
		{
			name:  "right only",
			conds: []cond{{"c", ir.PredGE, 2}, {"d", ir.PredNEQ, 3}},
			right: []string{"c ge 2", "d neq 3"},
		},
		{
			name:  "interleaved",
			conds: []cond{{"a", ir.PredGT, 1}, {"c", ir.PredGT, 2}, {"b", ir.PredLE, 3}, {"d", ir.PredLT, 4}},
			left:  []string{"a gt 1", "b le 3"},
			right: []string{"c gt 2", "d lt 4"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, l, r, j := filteredJoin(t, tt.conds...)

			stats := runPass(t, g, optimizer.SelectionPushdown{})
			assert.Equal(t, 1, stats.Rewrites)

			assert.Equal(t, []ir.Value{j}, g.Returns())
			join := g.Node(j.Node)
			if tt.left != nil {
				assert.Equal(t, tt.left, sideFilter(t, g, join.Operand(0), l))
			} else {
				assert.Equal(t, l, join.Operand(0))
			}
			if tt.right != nil {
				assert.Equal(t, tt.right, sideFilter(t, g, join.Operand(1), r))
			} else {
				assert.Equal(t, r, join.Operand(1))
			}
			assert.Equal(t, ir.FrameOf("a", "b", "c", "d"), g.TypeOf(j))
		})
	}
}

func TestSelectionPushdown_ChainedJoins(t *testing.T) {
	b := ir.NewBuilder()
	l := b.Input("l", "a", "b")
	r := b.Input("r", "c", "d")
	s := b.Input("s", "e", "f")
	inner := b.Join(l, r, "a", "c")
	outer := b.Join(inner, s, "a", "e")
	mask := b.And(
		b.Compare(ir.PredGT, b.Extract(outer, "b"), b.Int(1)),
		b.Compare(ir.PredLT, b.Extract(outer, "f"), b.Int(9)),
	)
	b.Return(b.Filter(outer, mask))
	require.NoError(t, b.Err())
	g := b.Graph()

	stats := runPass(t, g, optimizer.SelectionPushdown{})
	assert.Equal(t, 2, stats.Rewrites)

	outerNode := g.Node(outer.Node)
	assert.Equal(t, inner, outerNode.Operand(0))
	assert.Equal(t, []string{"f lt 9"}, sideFilter(t, g, outerNode.Operand(1), s))

	innerNode := g.Node(inner.Node)
	assert.Equal(t, []string{"b gt 1"}, sideFilter(t, g, innerNode.Operand(0), l))
	assert.Equal(t, r, innerNode.Operand(1))
	assert.Equal(t, 2, g.Counts()[ir.OpFilterRow])
}

func TestSelectionPushdown_CastWrappers(t *testing.T) {
	b := ir.NewBuilder()
	l := b.Input("l", "a")
	r := b.Input("r", "c")
	j := b.Join(l, r, "a", "c")
	m := b.Cast(b.Compare(ir.PredEQ, b.Cast(b.Extract(j, "c")), b.Int(4)))
	b.Return(b.Filter(j, m))
	require.NoError(t, b.Err())
	g := b.Graph()

	runPass(t, g, optimizer.SelectionPushdown{})

	f := g.Producer(g.Node(j.Node).Operand(1))
	require.Equal(t, ir.OpFilterRow, f.Kind())
	assert.Equal(t, r, f.Operand(0))
	mask := g.Producer(f.Operand(1))
	require.Equal(t, ir.OpCast, mask.Kind())
	cmp := g.Producer(mask.Operand(0))
	require.Equal(t, ir.OpCompare, cmp.Kind())
	assert.Equal(t, ir.OpCast, g.Producer(cmp.Operand(0)).Kind())
}

func TestSelectionPushdown_Declines(t *testing.T) {
	t.Run("join used elsewhere", func(t *testing.T) {
		b := ir.NewBuilder()
		l := b.Input("l", "a")
		r := b.Input("r", "c")
		j := b.Join(l, r, "a", "c")
		m := b.Compare(ir.PredGT, b.Extract(j, "a"), b.Int(1))
		b.Return(b.Filter(j, m), j)
		require.NoError(t, b.Err())
		g := b.Graph()
		before := g.String()

		stats := runPass(t, g, optimizer.SelectionPushdown{})
		assert.Equal(t, 0, stats.Rewrites)
		assert.Equal(t, before, g.String())
	})

	t.Run("filter not over a join", func(t *testing.T) {
		b := ir.NewBuilder()
		l := b.Input("l", "a")
		m := b.Compare(ir.PredGT, b.Extract(l, "a"), b.Int(1))
		b.Return(b.Filter(l, m))
		require.NoError(t, b.Err())
		g := b.Graph()
		before := g.String()

		runPass(t, g, optimizer.SelectionPushdown{})
		assert.Equal(t, before, g.String())
	})
}

func TestSelectionPushdown_Errors(t *testing.T) {
	t.Run("unknown column", func(t *testing.T) {
		g, _, _, _ := filteredJoin(t, cond{"a", ir.PredGT, 1}, cond{"z", ir.PredLT, 2})
		before := g.String()

		_, err := rewrite.NewEngine("push", optimizer.SelectionPushdown{}).Run(g)
		require.Error(t, err)
		var opErr *cferrors.OpError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, "SelectionPushdown", opErr.Op)
		assert.Equal(t, "z", opErr.Column)
		assert.Equal(t, before, g.String())
	})

	t.Run("comparison over a plain column", func(t *testing.T) {
		b := ir.NewBuilder()
		l := b.Input("l", "a")
		r := b.Input("r", "c")
		j := b.Join(l, r, "a", "c")
		m := b.Compare(ir.PredGT, b.ColumnInput("x"), b.Int(1))
		b.Return(b.Filter(j, m))
		require.NoError(t, b.Err())

		_, err := rewrite.NewEngine("push", optimizer.SelectionPushdown{}).Run(b.Graph())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not compare an extracted column")
	})

	t.Run("mask that is not a comparison", func(t *testing.T) {
		b := ir.NewBuilder()
		l := b.Input("l", "a")
		r := b.Input("r", "c")
		j := b.Join(l, r, "a", "c")
		m := b.Compare(ir.PredGT, b.Extract(j, "a"), b.Int(1))
		b.Return(b.Filter(j, b.And(m, b.Cast(b.Cast(m)))))
		require.NoError(t, b.Err())

		_, err := rewrite.NewEngine("push", optimizer.SelectionPushdown{}).Run(b.Graph())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "is not a comparison")
	})
}
