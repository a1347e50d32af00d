package ir

import (
	"fmt"

	cferrors "github.com/paveg/colflow/internal/errors"
)

// Verify checks the structural invariants of the graph: operands reference
// live values that precede their users, the users index matches the operand
// lists exactly, and every node's operand kinds are accepted by its op.
func (g *Graph) Verify() error {
	seen := make(map[NodeID]bool, len(g.order))
	for _, id := range g.order {
		n := g.Node(id)
		if n == nil {
			return verifyError(nil, fmt.Sprintf("program order references erased node %%%d", id))
		}
		if seen[id] {
			return verifyError(n, fmt.Sprintf("node %%%d appears twice in program order", id))
		}
		for i, v := range n.operands {
			p := g.Node(v.Node)
			if p == nil || v.Slot < 0 || v.Slot >= len(p.results) {
				return verifyError(n, fmt.Sprintf("%%%d operand %d references dead value %s", id, i, v))
			}
			if !seen[v.Node] {
				return verifyError(n, fmt.Sprintf("%%%d operand %d (%s) is not dominated", id, i, v))
			}
			if _, ok := g.users[v][Use{User: id, Operand: i}]; !ok {
				return verifyError(n, fmt.Sprintf("%%%d operand %d missing from users of %s", id, i, v))
			}
		}
		results, err := n.op.infer(g.operandTypes(n))
		if err != nil {
			return fmt.Errorf("verify %%%d: %w", id, err)
		}
		for i := range results {
			if results[i].Kind != n.results[i].Kind {
				return verifyError(n, fmt.Sprintf("%%%d result %d is %s, inferred %s", id, i, n.results[i], results[i]))
			}
		}
		seen[id] = true
	}

	live := 0
	for _, n := range g.nodes {
		if n != nil {
			live++
		}
	}
	if live != len(g.order) {
		return verifyError(nil, fmt.Sprintf("%d live nodes but %d in program order", live, len(g.order)))
	}

	for v, set := range g.users {
		for u := range set {
			n := g.Node(u.User)
			if n == nil {
				return verifyError(nil, fmt.Sprintf("users of %s lists erased node %%%d", v, u.User))
			}
			if u.Operand >= len(n.operands) || n.operands[u.Operand] != v {
				return verifyError(n, fmt.Sprintf("users of %s lists %%%d operand %d which does not consume it", v, u.User, u.Operand))
			}
		}
	}
	return nil
}

func verifyError(n *Node, msg string) error {
	e := &cferrors.OpError{Op: "verify", Message: msg}
	if n != nil {
		e.Kind = n.Kind().String()
	}
	return e
}
