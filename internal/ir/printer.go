package ir

import (
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Print writes one line per node in program order, e.g.
//
//	%4 = column_cmp<le>(%0, %2) : positions
func (g *Graph) Print(w io.Writer) error {
	for _, id := range g.order {
		if _, err := io.WriteString(w, g.formatNode(g.nodes[id])+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) String() string {
	var buf bytes.Buffer
	_ = g.Print(&buf)
	return buf.String()
}

func (g *Graph) formatNode(n *Node) string {
	var sb strings.Builder
	if len(n.results) > 0 {
		fmt.Fprintf(&sb, "%%%d = ", n.id)
	}
	sb.WriteString(n.Kind().String())
	attrs := n.op.attrs()
	switch {
	case strings.HasPrefix(attrs, "<"):
		sb.WriteString(attrs)
	case attrs != "":
		sb.WriteString(" " + attrs)
	}
	if len(n.operands) > 0 {
		ops := make([]string, len(n.operands))
		for i, v := range n.operands {
			ops[i] = v.String()
		}
		sb.WriteString("(" + strings.Join(ops, ", ") + ")")
	}
	if len(n.results) > 0 {
		types := make([]string, len(n.results))
		for i, t := range n.results {
			types[i] = t.String()
		}
		sb.WriteString(" : " + strings.Join(types, ", "))
	}
	return sb.String()
}

// Counts returns the number of live nodes per op kind.
func (g *Graph) Counts() map[OpKind]int {
	out := make(map[OpKind]int)
	for _, id := range g.order {
		out[g.nodes[id].Kind()]++
	}
	return out
}
