package optimizer

import (
	"fmt"

	cferrors "github.com/paveg/colflow/internal/errors"
	"github.com/paveg/colflow/internal/ir"
	"github.com/paveg/colflow/internal/rewrite"
)

const pushdownPass = "SelectionPushdown"

// SelectionPushdown moves the conjuncts of a FilterRow over an InnerJoin to
// the join side whose labels they reference. Filters created on a side that
// is itself a join are picked up by the next sweep, so pushdown continues
// through chains of joins.
type SelectionPushdown struct{}

// Name implements rewrite.Pattern.
func (SelectionPushdown) Name() string { return "push-selection" }

// Legal reports false only for a FilterRow whose frame comes from an
// InnerJoin.
func (SelectionPushdown) Legal(g *ir.Graph, id ir.NodeID) bool {
	n := g.Node(id)
	if n.Kind() != ir.OpFilterRow {
		return true
	}
	return g.Producer(n.Operand(0)).Kind() != ir.OpInnerJoin
}

// conjunct is one comparison of the AND chain, unpacked.
type conjunct struct {
	pred   ir.CmpPred
	column string
	frame  ir.Value
	rhs    ir.Value

	// castLeaf and castCol record Cast wrappers around the mask and the
	// compared column.
	castLeaf bool
	castCol  bool

	nodes []ir.NodeID
}

// Match splits the filter predicate by join side and rebuilds one filter per
// side in front of the join. It declines when the predicate reads another
// frame or any of its nodes has users outside the filter.
func (SelectionPushdown) Match(g *ir.Graph, id ir.NodeID) (*rewrite.Plan, error) {
	filter := g.Node(id)
	join := g.Producer(filter.Operand(0))

	chain, conjuncts, err := splitConjunction(g, filter.Operand(1))
	if err != nil {
		return nil, err
	}

	for _, c := range conjuncts {
		if c.frame != filter.Operand(0) {
			return nil, nil
		}
	}

	// Everything feeding the predicate must be private to this filter.
	owned := map[ir.NodeID]bool{id: true}
	for _, x := range chain {
		owned[x] = true
	}
	for _, c := range conjuncts {
		for _, x := range c.nodes {
			owned[x] = true
		}
	}
	if !onlyUsedBy(g, join.ID(), owned) {
		return nil, nil
	}
	for x := range owned {
		if x != id && !onlyUsedBy(g, x, owned) {
			return nil, nil
		}
	}

	lhs, rhs := join.Operand(0), join.Operand(1)
	lhsType, rhsType := g.TypeOf(lhs), g.TypeOf(rhs)
	var left, right []conjunct
	for _, c := range conjuncts {
		switch {
		case lhsType.HasLabel(c.column):
			left = append(left, c)
		case rhsType.HasLabel(c.column):
			right = append(right, c)
		default:
			return nil, cferrors.NewColumnNotFoundError(pushdownPass, ir.OpFilterRow.String(), c.column)
		}
	}

	for _, c := range conjuncts {
		if g.Producer(c.rhs).Kind() != ir.OpConstant && g.Position(c.rhs.Node) >= g.Position(join.ID()) {
			// The comparison operand is computed after the join; it cannot
			// move ahead of it.
			return nil, nil
		}
	}

	plan := rewrite.NewPlan()
	if len(left) > 0 {
		f := buildSideFilter(g, plan, join.ID(), lhs, left)
		plan.SetOperand(join.ID(), 0, f)
	}
	if len(right) > 0 {
		f := buildSideFilter(g, plan, join.ID(), rhs, right)
		plan.SetOperand(join.ID(), 1, f)
	}
	plan.ReplaceAllUses(filter.Result(0), join.Result(0))
	plan.EraseIfDead(id)
	return plan, nil
}

// splitConjunction walks the EwAnd chain down its left operands. It returns
// the chain nodes and the leaves, the last applied conjunct first.
func splitConjunction(g *ir.Graph, mask ir.Value) ([]ir.NodeID, []conjunct, error) {
	var chain []ir.NodeID
	var leaves []ir.Value
	v := mask
	for {
		n := g.Producer(v)
		if n.Kind() == ir.OpCast && g.Producer(n.Operand(0)).Kind() == ir.OpEwAnd {
			chain = append(chain, n.ID())
			v = n.Operand(0)
			continue
		}
		if n.Kind() != ir.OpEwAnd {
			leaves = append(leaves, v)
			break
		}
		chain = append(chain, n.ID())
		leaves = append(leaves, n.Operand(1))
		v = n.Operand(0)
	}

	out := make([]conjunct, 0, len(leaves))
	for _, leaf := range leaves {
		c, err := unpackConjunct(g, leaf)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, c)
	}
	return chain, out, nil
}

func unpackConjunct(g *ir.Graph, leaf ir.Value) (conjunct, error) {
	var c conjunct
	n := g.Producer(leaf)
	if n.Kind() == ir.OpCast {
		c.castLeaf = true
		c.nodes = append(c.nodes, n.ID())
		n = g.Producer(n.Operand(0))
	}
	cmp, ok := n.Op().(ir.Compare)
	if !ok {
		return c, cferrors.NewMalformedPredicateError(pushdownPass, n.Kind().String(),
			fmt.Sprintf("conjunct %%%d is not a comparison", n.ID()))
	}
	c.pred = cmp.Pred
	c.rhs = n.Operand(1)
	c.nodes = append(c.nodes, n.ID())

	col := g.Producer(n.Operand(0))
	if col.Kind() == ir.OpCast {
		c.castCol = true
		c.nodes = append(c.nodes, col.ID())
		col = g.Producer(col.Operand(0))
	}
	if col.Kind() != ir.OpExtractCol {
		return c, cferrors.NewMalformedPredicateError(pushdownPass, col.Kind().String(),
			fmt.Sprintf("comparison %%%d does not compare an extracted column", n.ID()))
	}
	c.nodes = append(c.nodes, col.ID())
	c.frame = col.Operand(0)

	name, ok := g.Producer(col.Operand(1)).Op().(ir.Constant)
	label, isString := name.Value.(string)
	if !ok || !isString {
		return c, cferrors.NewMalformedPredicateError(pushdownPass, col.Kind().String(),
			fmt.Sprintf("column name of %%%d is not a string constant", col.ID()))
	}
	c.column = label
	return c, nil
}

// onlyUsedBy reports whether every user of id is in owned.
func onlyUsedBy(g *ir.Graph, id ir.NodeID, owned map[ir.NodeID]bool) bool {
	n := g.Node(id)
	for i := range n.NumResults() {
		for _, u := range g.Users(n.Result(i)) {
			if !owned[u.User] {
				return false
			}
		}
	}
	return true
}

// buildSideFilter re-creates the conjuncts against frame in front of the
// join and returns the filtered frame. Constants are re-created too since
// the originals may sit after the join.
func buildSideFilter(g *ir.Graph, plan *rewrite.Plan, join ir.NodeID, frame ir.Value, conjuncts []conjunct) ir.Value {
	masks := make([]ir.Value, len(conjuncts))
	for i, c := range conjuncts {
		name := plan.InsertBefore(join, ir.Constant{Value: c.column})
		col := plan.InsertBefore(join, ir.ExtractCol{}, frame, name)
		if c.castCol {
			col = plan.InsertBefore(join, ir.Cast{}, col)
		}
		rhs := c.rhs
		if k, ok := g.Producer(rhs).Op().(ir.Constant); ok {
			rhs = plan.InsertBefore(join, k)
		}
		m := plan.InsertBefore(join, ir.Compare{Pred: c.pred}, col, rhs)
		if c.castLeaf {
			m = plan.InsertBefore(join, ir.Cast{}, m)
		}
		masks[i] = m
	}
	// Rebuild the chain innermost first so the original nesting is kept.
	acc := masks[len(masks)-1]
	for i := len(masks) - 2; i >= 0; i-- {
		acc = plan.InsertBefore(join, ir.EwAnd{}, acc, masks[i])
	}
	return plan.InsertBefore(join, ir.FilterRow{}, frame, acc)
}
