package optimizer

import (
	"github.com/paveg/colflow/internal/ir"
	"github.com/paveg/colflow/internal/rewrite"
)

// ProjectionPath folds a ColumnProject whose input is itself a projection
// into one ColumnProjectionPath. The newest position list goes first, so a
// path [PN, ..., P1] over column C yields C[P1[...PN[i]]].
type ProjectionPath struct{}

// Name implements rewrite.Pattern.
func (ProjectionPath) Name() string { return "fuse-projection" }

// Legal reports false for a ColumnProject stacked on another projection.
func (ProjectionPath) Legal(g *ir.Graph, id ir.NodeID) bool {
	n := g.Node(id)
	if n.Kind() != ir.OpColumnProject {
		return true
	}
	switch g.Producer(n.Operand(0)).Kind() {
	case ir.OpColumnProject, ir.OpColumnProjectionPath:
		return false
	default:
		return true
	}
}

// Match replaces the projection with a path that extends the one below it.
func (ProjectionPath) Match(g *ir.Graph, id ir.NodeID) (*rewrite.Plan, error) {
	n := g.Node(id)
	prev := g.Producer(n.Operand(0))
	prevOps := prev.Operands()

	operands := make([]ir.Value, 0, len(prevOps)+1)
	operands = append(operands, prevOps[0], n.Operand(1))
	operands = append(operands, prevOps[1:]...)

	plan := rewrite.NewPlan()
	path := plan.InsertBefore(id, ir.ColumnProjectionPath{}, operands...)
	plan.ReplaceAllUses(n.Result(0), path)
	plan.EraseIfDead(id)
	return plan, nil
}
