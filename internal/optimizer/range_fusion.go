package optimizer

import (
	"github.com/paveg/colflow/internal/ir"
	"github.com/paveg/colflow/internal/rewrite"
)

// RangeFusion fuses a `<=` and a `>=` selection on the same column that meet
// in a common intersection into a single ColumnBetween.
type RangeFusion struct{}

// Name implements rewrite.Pattern.
func (RangeFusion) Name() string { return "fuse-range" }

// Legal reports true for everything except one-sided range bounds.
func (RangeFusion) Legal(g *ir.Graph, id ir.NodeID) bool {
	_, ok := rangeBound(g.Node(id))
	return !ok
}

func rangeBound(n *ir.Node) (ir.CmpPred, bool) {
	cmp, ok := n.Op().(ir.ColumnCmp)
	if !ok || (cmp.Pred != ir.PredLE && cmp.Pred != ir.PredGE) {
		return 0, false
	}
	return cmp.Pred, true
}

// Match looks for the opposite bound on the same column whose intersection
// chain meets this one. It returns a nil plan when there is none, or when
// the chains cannot be spliced without touching shared nodes.
func (RangeFusion) Match(g *ir.Graph, id ir.NodeID) (*rewrite.Plan, error) {
	n := g.Node(id)
	pred, _ := rangeBound(n)
	src := n.Operand(0)
	opposite := ir.PredGE
	if pred == ir.PredGE {
		opposite = ir.PredLE
	}

	for _, u := range g.Users(src) {
		if u.Operand != 0 || u.User == id {
			continue
		}
		sib := g.Node(u.User)
		if p, ok := rangeBound(sib); !ok || p != opposite {
			continue
		}
		le, ge := n, sib
		if pred == ir.PredGE {
			le, ge = sib, n
		}
		leWalk := collectIntersections(g, le.Result(0))
		geWalk := collectIntersections(g, ge.Result(0))
		common := ir.InvalidNode
		for _, x := range leWalk.order {
			if geWalk.contains(x) {
				common = x
				break
			}
		}
		if common == ir.InvalidNode {
			continue
		}
		return planRangeFusion(g, src, le, ge, leWalk.path(common), geWalk.path(common)), nil
	}
	return nil, nil
}

// intersectionWalk records the intersections reachable from a bound through
// chains of intersections, in preorder, with the value each was reached from.
type intersectionWalk struct {
	order  []ir.NodeID
	parent map[ir.NodeID]ir.Value
}

func collectIntersections(g *ir.Graph, start ir.Value) intersectionWalk {
	w := intersectionWalk{parent: make(map[ir.NodeID]ir.Value)}
	var visit func(v ir.Value)
	visit = func(v ir.Value) {
		for _, id := range g.UserNodes(v) {
			if g.Node(id).Kind() != ir.OpColumnIntersect || w.contains(id) {
				continue
			}
			w.parent[id] = v
			w.order = append(w.order, id)
			visit(ir.Value{Node: id})
		}
	}
	visit(start)
	return w
}

func (w intersectionWalk) contains(id ir.NodeID) bool {
	_, ok := w.parent[id]
	return ok
}

// path returns the intersections from the one consuming the bound up to and
// including target.
func (w intersectionWalk) path(target ir.NodeID) []ir.NodeID {
	var rev []ir.NodeID
	for id := target; ; {
		rev = append(rev, id)
		from := w.parent[id]
		if !w.contains(from.Node) {
			break
		}
		id = from.Node
	}
	out := make([]ir.NodeID, len(rev))
	for i, id := range rev {
		out[len(rev)-1-i] = id
	}
	return out
}

// planRangeFusion builds the rewrite for bounds le and ge meeting in the last
// element of both paths. It returns nil when the shape cannot be rewritten
// without changing what other consumers observe.
func planRangeFusion(g *ir.Graph, src ir.Value, le, ge *ir.Node, lePath, gePath []ir.NodeID) *rewrite.Plan {
	common := lePath[len(lePath)-1]
	for _, path := range [][]ir.NodeID{lePath, gePath} {
		for i, x := range path {
			xn := g.Node(x)
			if xn.Operand(0) == xn.Operand(1) {
				return nil
			}
			if i < len(path)-1 && g.NumUses(xn.Result(0)) != 1 {
				return nil
			}
		}
	}

	leV, geV := le.Result(0), ge.Result(0)
	anchor := le.ID()
	if g.Position(ge.ID()) > g.Position(anchor) {
		anchor = ge.ID()
	}

	plan := rewrite.NewPlan()
	between := plan.InsertAfter(anchor, ir.ColumnBetween{}, src, ge.Operand(1), le.Operand(1))

	cn := g.Node(common)
	a, b := cn.Operand(0), cn.Operand(1)
	if (a == leV && b == geV) || (a == geV && b == leV) {
		plan.ReplaceAllUses(cn.Result(0), between)
		plan.EraseIfDead(common)
	} else {
		// Drop one bound from its chain and put between in place of the
		// other. The ge side is dropped unless it feeds common directly.
		elidePath, elideBound := gePath, geV
		splicePath, spliceBound := lePath, leV
		if len(gePath) < 2 {
			elidePath, elideBound = lePath, leV
			splicePath, spliceBound = gePath, geV
		}
		elided := g.Node(elidePath[0])
		target := splicePath[0]
		if target == elided.ID() || g.Position(target) <= g.Position(anchor) {
			return nil
		}
		rest := elided.Operand(0)
		if rest == elideBound {
			rest = elided.Operand(1)
		}
		plan.ReplaceAllUses(elided.Result(0), rest)
		plan.ReplaceUsesIn(target, spliceBound, between)
		plan.EraseIfDead(elided.ID())
	}
	plan.EraseIfDead(le.ID())
	plan.EraseIfDead(ge.ID())
	return plan
}
