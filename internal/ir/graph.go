// Package ir implements the column-oriented operator graph rewritten by the
// optimizer.
//
// Nodes live in an arena and are addressed by stable NodeIDs. Edges are Values
// (producer node, result slot) owned by the consuming node; the graph keeps a
// reverse index from each Value to its Uses so rewiring is O(1) per use. An
// explicit program order is maintained in which every producer precedes its
// users.
package ir

import (
	"fmt"
	"slices"

	cferrors "github.com/paveg/colflow/internal/errors"
)

// NodeID addresses a node in the arena. IDs are never reused.
type NodeID int32

// InvalidNode is returned where no node exists.
const InvalidNode NodeID = -1

// Value references one result slot of a producer node.
type Value struct {
	Node NodeID
	Slot int
}

func (v Value) String() string {
	if v.Slot == 0 {
		return fmt.Sprintf("%%%d", v.Node)
	}
	return fmt.Sprintf("%%%d#%d", v.Node, v.Slot)
}

// Use identifies operand Operand of node User.
type Use struct {
	User    NodeID
	Operand int
}

// Node is a single operation. Operands and result types must not be modified
// through the returned slices; use the Graph mutators instead.
type Node struct {
	id       NodeID
	op       Op
	operands []Value
	results  []Type
}

// ID returns the arena index of the node.
func (n *Node) ID() NodeID { return n.id }

// Op returns the operation with its attributes.
func (n *Node) Op() Op { return n.op }

// Kind is shorthand for n.Op().Kind().
func (n *Node) Kind() OpKind { return n.op.Kind() }

// Operands returns the values the node reads, in operand order.
func (n *Node) Operands() []Value { return n.operands }

// Operand returns operand i. It panics if i is out of range.
func (n *Node) Operand(i int) Value { return n.operands[i] }

// NumOperands returns the number of operands.
func (n *Node) NumOperands() int { return len(n.operands) }

// Results returns the inferred result types.
func (n *Node) Results() []Type { return n.results }

// NumResults returns the number of result slots.
func (n *Node) NumResults() int { return len(n.results) }

// ResultType returns the type of result slot i.
func (n *Node) ResultType(i int) Type { return n.results[i] }

// Result returns the value for result slot i.
func (n *Node) Result(i int) Value { return Value{Node: n.id, Slot: i} }

// Graph is a single block of nodes in program order. It is not safe for
// concurrent use.
type Graph struct {
	nodes []*Node
	users map[Value]map[Use]struct{}
	order []NodeID

	// pos caches the program position of each node; rebuilt when dirty.
	pos   []int
	dirty bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{users: make(map[Value]map[Use]struct{})}
}

// Node returns the live node with the given id, or nil.
func (g *Graph) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

// Live reports whether id names a node that has not been erased.
func (g *Graph) Live(id NodeID) bool {
	return g.Node(id) != nil
}

// Len returns the number of live nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// Nodes returns the live node ids in program order. The slice is a copy.
func (g *Graph) Nodes() []NodeID {
	return slices.Clone(g.order)
}

// Walk calls fn for each live node in program order, stopping when fn returns
// false. Nodes created or erased by fn are not observed by the current walk.
func (g *Graph) Walk(fn func(*Node) bool) {
	for _, id := range g.Nodes() {
		n := g.Node(id)
		if n == nil {
			continue
		}
		if !fn(n) {
			return
		}
	}
}

// Position returns the program position of a live node, or -1.
func (g *Graph) Position(id NodeID) int {
	if !g.Live(id) {
		return -1
	}
	if g.dirty || len(g.pos) != len(g.nodes) {
		g.reindex()
	}
	return g.pos[id]
}

func (g *Graph) reindex() {
	g.pos = slices.Grow(g.pos[:0], len(g.nodes))[:len(g.nodes)]
	for i := range g.pos {
		g.pos[i] = -1
	}
	for i, id := range g.order {
		g.pos[id] = i
	}
	g.dirty = false
}

// Producer returns the node producing v, or nil if it is not live.
func (g *Graph) Producer(v Value) *Node {
	return g.Node(v.Node)
}

// TypeOf returns the type of value v. Invalid values report TypeUnknown.
func (g *Graph) TypeOf(v Value) Type {
	n := g.Node(v.Node)
	if n == nil || v.Slot < 0 || v.Slot >= len(n.results) {
		return Type{}
	}
	return n.results[v.Slot]
}

// Create appends a new node at the end of the program.
func (g *Graph) Create(op Op, operands ...Value) (NodeID, error) {
	return g.insertAt(len(g.order), op, operands)
}

// InsertAfter creates a node immediately after anchor.
func (g *Graph) InsertAfter(anchor NodeID, op Op, operands ...Value) (NodeID, error) {
	p := g.Position(anchor)
	if p < 0 {
		return InvalidNode, deadNode("insert", anchor)
	}
	return g.insertAt(p+1, op, operands)
}

// InsertBefore creates a node immediately before anchor.
func (g *Graph) InsertBefore(anchor NodeID, op Op, operands ...Value) (NodeID, error) {
	p := g.Position(anchor)
	if p < 0 {
		return InvalidNode, deadNode("insert", anchor)
	}
	return g.insertAt(p, op, operands)
}

func (g *Graph) insertAt(at int, op Op, operands []Value) (NodeID, error) {
	types := make([]Type, len(operands))
	for i, v := range operands {
		n := g.Node(v.Node)
		if n == nil || v.Slot < 0 || v.Slot >= len(n.results) {
			return InvalidNode, &cferrors.OpError{
				Op:      "create",
				Kind:    op.Kind().String(),
				Message: fmt.Sprintf("operand %d references dead value %s", i, v),
			}
		}
		if g.Position(v.Node) >= at {
			return InvalidNode, &cferrors.OpError{
				Op:      "create",
				Kind:    op.Kind().String(),
				Message: fmt.Sprintf("operand %d (%s) does not dominate the insertion point", i, v),
			}
		}
		types[i] = n.results[v.Slot]
	}
	results, err := op.infer(types)
	if err != nil {
		return InvalidNode, err
	}

	id := NodeID(len(g.nodes))
	n := &Node{id: id, op: op, operands: slices.Clone(operands), results: results}
	g.nodes = append(g.nodes, n)
	g.order = slices.Insert(g.order, at, id)
	g.dirty = true
	for i, v := range n.operands {
		g.addUse(v, Use{User: id, Operand: i})
	}
	return id, nil
}

func (g *Graph) addUse(v Value, u Use) {
	set, ok := g.users[v]
	if !ok {
		set = make(map[Use]struct{})
		g.users[v] = set
	}
	set[u] = struct{}{}
}

func (g *Graph) dropUse(v Value, u Use) {
	set := g.users[v]
	delete(set, u)
	if len(set) == 0 {
		delete(g.users, v)
	}
}

// Users returns the uses of v ordered by user position, then operand index.
func (g *Graph) Users(v Value) []Use {
	set := g.users[v]
	if len(set) == 0 {
		return nil
	}
	uses := make([]Use, 0, len(set))
	for u := range set {
		uses = append(uses, u)
	}
	slices.SortFunc(uses, func(a, b Use) int {
		if pa, pb := g.Position(a.User), g.Position(b.User); pa != pb {
			return pa - pb
		}
		return a.Operand - b.Operand
	})
	return uses
}

// UserNodes returns the distinct nodes consuming v in program order.
func (g *Graph) UserNodes(v Value) []NodeID {
	uses := g.Users(v)
	ids := make([]NodeID, 0, len(uses))
	for _, u := range uses {
		if len(ids) == 0 || ids[len(ids)-1] != u.User {
			ids = append(ids, u.User)
		}
	}
	return ids
}

// NumUses returns how many operands consume v.
func (g *Graph) NumUses(v Value) int {
	return len(g.users[v])
}

// HasUsers reports whether any result of id is consumed.
func (g *Graph) HasUsers(id NodeID) bool {
	n := g.Node(id)
	if n == nil {
		return false
	}
	for i := range n.results {
		if len(g.users[n.Result(i)]) > 0 {
			return true
		}
	}
	return false
}

// SetOperand rebinds operand idx of user to v and re-infers the user's result
// types. Result kinds must not change.
func (g *Graph) SetOperand(user NodeID, idx int, v Value) error {
	n := g.Node(user)
	if n == nil {
		return deadNode("set operand", user)
	}
	if idx < 0 || idx >= len(n.operands) {
		return &cferrors.OpError{
			Op:      "set operand",
			Kind:    n.Kind().String(),
			Message: fmt.Sprintf("operand index %d out of range", idx),
		}
	}
	p := g.Node(v.Node)
	if p == nil || v.Slot < 0 || v.Slot >= len(p.results) {
		return deadNode("set operand", v.Node)
	}
	if g.Position(v.Node) >= g.Position(user) {
		return &cferrors.OpError{
			Op:      "set operand",
			Kind:    n.Kind().String(),
			Message: fmt.Sprintf("%s does not dominate %%%d", v, user),
		}
	}
	old := n.operands[idx]
	if old == v {
		return nil
	}
	types := g.operandTypes(n)
	types[idx] = p.results[v.Slot]
	results, err := n.op.infer(types)
	if err != nil {
		return err
	}
	for i := range results {
		if results[i].Kind != n.results[i].Kind {
			return &cferrors.OpError{
				Op:      "set operand",
				Kind:    n.Kind().String(),
				Message: fmt.Sprintf("result %d would change from %s to %s", i, n.results[i].Kind, results[i].Kind),
			}
		}
	}
	g.dropUse(old, Use{User: user, Operand: idx})
	n.operands[idx] = v
	n.results = results
	g.addUse(v, Use{User: user, Operand: idx})
	return nil
}

// ReplaceAllUsesWith rewires every consumer of old to consume repl instead.
func (g *Graph) ReplaceAllUsesWith(old, repl Value) error {
	if old == repl {
		return nil
	}
	for _, u := range g.Users(old) {
		if err := g.SetOperand(u.User, u.Operand, repl); err != nil {
			return fmt.Errorf("replace uses of %s: %w", old, err)
		}
	}
	return nil
}

// ReplaceUsesIn rewires the operands of user that reference old.
func (g *Graph) ReplaceUsesIn(user NodeID, old, repl Value) error {
	n := g.Node(user)
	if n == nil {
		return deadNode("replace uses", user)
	}
	for i, v := range n.operands {
		if v != old {
			continue
		}
		if err := g.SetOperand(user, i, repl); err != nil {
			return err
		}
	}
	return nil
}

// MoveBefore moves node id to immediately before anchor. The move must keep
// every operand of id ahead of it and every user behind it.
func (g *Graph) MoveBefore(id, anchor NodeID) error {
	n := g.Node(id)
	if n == nil {
		return deadNode("move", id)
	}
	if !g.Live(anchor) {
		return deadNode("move", anchor)
	}
	if id == anchor {
		return nil
	}
	from := g.Position(id)
	to := g.Position(anchor)
	if from+1 == to {
		return nil
	}
	target := to
	if from < to {
		target--
	}
	if from > to {
		for _, v := range n.operands {
			if g.Position(v.Node) >= to {
				return moveError(n, "operand "+v.String()+" would follow its user")
			}
		}
	} else {
		for i := range n.results {
			for _, u := range g.Users(n.Result(i)) {
				if g.Position(u.User) < to {
					return moveError(n, fmt.Sprintf("user %%%d would precede its operand", u.User))
				}
			}
		}
	}
	g.order = slices.Delete(g.order, from, from+1)
	g.order = slices.Insert(g.order, target, id)
	g.dirty = true
	return nil
}

func moveError(n *Node, msg string) error {
	return &cferrors.OpError{Op: "move", Kind: n.Kind().String(), Message: msg}
}

// Erase removes a node that has no users.
func (g *Graph) Erase(id NodeID) error {
	n := g.Node(id)
	if n == nil {
		return deadNode("erase", id)
	}
	if g.HasUsers(id) {
		return &cferrors.OpError{
			Op:      "erase",
			Kind:    n.Kind().String(),
			Message: fmt.Sprintf("%%%d still has users", id),
		}
	}
	for i, v := range n.operands {
		g.dropUse(v, Use{User: id, Operand: i})
	}
	p := g.Position(id)
	g.order = slices.Delete(g.order, p, p+1)
	g.nodes[id] = nil
	g.dirty = true
	return nil
}

// DependsOn reports whether node a transitively consumes a result of node b.
func (g *Graph) DependsOn(a, b NodeID) bool {
	if a == b {
		return false
	}
	seen := make(map[NodeID]bool)
	stack := []NodeID{a}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n := g.Node(id)
		if n == nil {
			continue
		}
		for _, v := range n.operands {
			if v.Node == b {
				return true
			}
			if !seen[v.Node] {
				seen[v.Node] = true
				stack = append(stack, v.Node)
			}
		}
	}
	return false
}

// Clone returns a deep copy that preserves node ids.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		nodes: make([]*Node, len(g.nodes)),
		users: make(map[Value]map[Use]struct{}, len(g.users)),
		order: slices.Clone(g.order),
		dirty: true,
	}
	for i, n := range g.nodes {
		if n == nil {
			continue
		}
		results := make([]Type, len(n.results))
		for j, t := range n.results {
			results[j] = Type{Kind: t.Kind, Labels: slices.Clone(t.Labels)}
		}
		c.nodes[i] = &Node{id: n.id, op: n.op, operands: slices.Clone(n.operands), results: results}
	}
	for v, set := range g.users {
		cs := make(map[Use]struct{}, len(set))
		for u := range set {
			cs[u] = struct{}{}
		}
		c.users[v] = cs
	}
	return c
}

// RefreshTypes re-infers result types in program order so frame labels
// follow rewired operands.
func (g *Graph) RefreshTypes() error {
	for _, id := range g.order {
		n := g.nodes[id]
		results, err := n.op.infer(g.operandTypes(n))
		if err != nil {
			return fmt.Errorf("refresh %%%d: %w", id, err)
		}
		n.results = results
	}
	return nil
}

func (g *Graph) operandTypes(n *Node) []Type {
	types := make([]Type, len(n.operands))
	for i, v := range n.operands {
		types[i] = g.TypeOf(v)
	}
	return types
}

// Returns lists the values consumed by Return nodes in program order.
func (g *Graph) Returns() []Value {
	var out []Value
	for _, id := range g.order {
		if n := g.nodes[id]; n.Kind() == OpReturn {
			out = append(out, n.operands...)
		}
	}
	return out
}

func deadNode(op string, id NodeID) error {
	return &cferrors.OpError{Op: op, Message: fmt.Sprintf("node %%%d is not live", id)}
}
