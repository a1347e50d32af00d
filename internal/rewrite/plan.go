// Package rewrite provides the pattern-rewrite engine shared by the optimizer
// passes. Patterns never mutate the graph directly: Match returns a Plan that
// lists every new node and every rewiring, and the engine commits the plan
// atomically once it validates.
package rewrite

import (
	"fmt"

	cferrors "github.com/paveg/colflow/internal/errors"
	"github.com/paveg/colflow/internal/ir"
)

// firstProvisional is the id of the first planned node. Planned nodes count
// downwards so they never collide with arena ids or ir.InvalidNode.
const firstProvisional ir.NodeID = -2

type placement uint8

const (
	placeBefore placement = iota
	placeAfter
)

type plannedNode struct {
	op       ir.Op
	operands []ir.Value
	anchor   ir.NodeID
	where    placement
}

type editKind uint8

const (
	editReplaceAllUses editKind = iota
	editReplaceUsesIn
	editSetOperand
	editMoveBefore
	editEraseIfDead
)

type edit struct {
	kind   editKind
	node   ir.NodeID
	anchor ir.NodeID
	index  int
	old    ir.Value
	repl   ir.Value
}

// Plan is a replacement computed against a graph without mutating it.
// Values returned by InsertBefore/InsertAfter are provisional and may be used
// as operands, anchors and replacement targets within the same plan.
type Plan struct {
	nodes []plannedNode
	edits []edit
}

// NewPlan returns an empty plan.
func NewPlan() *Plan {
	return &Plan{}
}

// Empty reports whether the plan does nothing.
func (p *Plan) Empty() bool {
	return len(p.nodes) == 0 && len(p.edits) == 0
}

// InsertBefore plans a new node immediately before anchor.
func (p *Plan) InsertBefore(anchor ir.NodeID, op ir.Op, operands ...ir.Value) ir.Value {
	return p.add(anchor, placeBefore, op, operands)
}

// InsertAfter plans a new node immediately after anchor.
func (p *Plan) InsertAfter(anchor ir.NodeID, op ir.Op, operands ...ir.Value) ir.Value {
	return p.add(anchor, placeAfter, op, operands)
}

func (p *Plan) add(anchor ir.NodeID, where placement, op ir.Op, operands []ir.Value) ir.Value {
	id := firstProvisional - ir.NodeID(len(p.nodes))
	p.nodes = append(p.nodes, plannedNode{
		op:       op,
		operands: append([]ir.Value(nil), operands...),
		anchor:   anchor,
		where:    where,
	})
	return ir.Value{Node: id}
}

// ReplaceAllUses plans rewiring every consumer of old to repl.
func (p *Plan) ReplaceAllUses(old, repl ir.Value) {
	p.edits = append(p.edits, edit{kind: editReplaceAllUses, old: old, repl: repl})
}

// ReplaceUsesIn plans rewiring the operands of user that reference old.
func (p *Plan) ReplaceUsesIn(user ir.NodeID, old, repl ir.Value) {
	p.edits = append(p.edits, edit{kind: editReplaceUsesIn, node: user, old: old, repl: repl})
}

// SetOperand plans rebinding operand idx of user.
func (p *Plan) SetOperand(user ir.NodeID, idx int, v ir.Value) {
	p.edits = append(p.edits, edit{kind: editSetOperand, node: user, index: idx, repl: v})
}

// MoveBefore plans moving node id to immediately before anchor.
func (p *Plan) MoveBefore(id, anchor ir.NodeID) {
	p.edits = append(p.edits, edit{kind: editMoveBefore, node: id, anchor: anchor})
}

// EraseIfDead plans erasing id once the other edits left it without users.
func (p *Plan) EraseIfDead(id ir.NodeID) {
	p.edits = append(p.edits, edit{kind: editEraseIfDead, node: id})
}

// Validate applies the plan to a copy of g and verifies the result, so
// dead references, operand kind mismatches and rewirings that would place a
// value after its own user are reported before g is touched.
func (p *Plan) Validate(g *ir.Graph) error {
	if err := p.checkRefs(g); err != nil {
		return err
	}
	dry := g.Clone()
	if _, err := p.apply(dry); err != nil {
		return err
	}
	return dry.Verify()
}

// Commit validates the plan and applies it to g. A plan that fails
// validation leaves g untouched. It returns the number of erased nodes.
func (p *Plan) Commit(g *ir.Graph) (int, error) {
	if err := p.Validate(g); err != nil {
		return 0, fmt.Errorf("invalid rewrite plan: %w", err)
	}
	erased, err := p.apply(g)
	if err != nil {
		// Validation applied the same edits to an identical copy.
		return erased, cferrors.NewInternalError("commit", err)
	}
	return erased, nil
}

// checkRefs rejects references to dead nodes and to planned nodes that do
// not exist yet at the point of use.
func (p *Plan) checkRefs(g *ir.Graph) error {
	check := func(id ir.NodeID, planned int) error {
		if id <= firstProvisional {
			if int(firstProvisional-id) >= planned {
				return cferrors.NewInvalidInputError("plan", fmt.Sprintf("provisional node %d referenced before it is planned", id))
			}
			return nil
		}
		if !g.Live(id) {
			return cferrors.NewInvalidInputError("plan", fmt.Sprintf("node %%%d is not live", id))
		}
		return nil
	}
	for i, n := range p.nodes {
		if err := check(n.anchor, i); err != nil {
			return err
		}
		for _, v := range n.operands {
			if err := check(v.Node, i); err != nil {
				return err
			}
		}
	}
	for _, e := range p.edits {
		ids := []ir.NodeID{}
		switch e.kind {
		case editReplaceAllUses:
			ids = append(ids, e.old.Node, e.repl.Node)
		case editReplaceUsesIn:
			ids = append(ids, e.node, e.old.Node, e.repl.Node)
		case editSetOperand:
			ids = append(ids, e.node, e.repl.Node)
		case editMoveBefore:
			ids = append(ids, e.node, e.anchor)
		case editEraseIfDead:
			ids = append(ids, e.node)
		}
		for _, id := range ids {
			if err := check(id, len(p.nodes)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Plan) apply(g *ir.Graph) (int, error) {
	created := make([]ir.NodeID, 0, len(p.nodes))
	resolve := func(id ir.NodeID) ir.NodeID {
		if id <= firstProvisional {
			return created[firstProvisional-id]
		}
		return id
	}
	value := func(v ir.Value) ir.Value {
		return ir.Value{Node: resolve(v.Node), Slot: v.Slot}
	}

	for _, n := range p.nodes {
		operands := make([]ir.Value, len(n.operands))
		for i, v := range n.operands {
			operands[i] = value(v)
		}
		var (
			id  ir.NodeID
			err error
		)
		if n.where == placeAfter {
			id, err = g.InsertAfter(resolve(n.anchor), n.op, operands...)
		} else {
			id, err = g.InsertBefore(resolve(n.anchor), n.op, operands...)
		}
		if err != nil {
			return 0, err
		}
		created = append(created, id)
	}

	erased := 0
	for _, e := range p.edits {
		var err error
		switch e.kind {
		case editReplaceAllUses:
			err = g.ReplaceAllUsesWith(value(e.old), value(e.repl))
		case editReplaceUsesIn:
			err = g.ReplaceUsesIn(resolve(e.node), value(e.old), value(e.repl))
		case editSetOperand:
			err = g.SetOperand(resolve(e.node), e.index, value(e.repl))
		case editMoveBefore:
			err = g.MoveBefore(resolve(e.node), resolve(e.anchor))
		case editEraseIfDead:
			id := resolve(e.node)
			if g.Live(id) && !g.HasUsers(id) {
				err = g.Erase(id)
				erased++
			}
		}
		if err != nil {
			return erased, err
		}
	}
	return erased, g.RefreshTypes()
}
