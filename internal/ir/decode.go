package ir

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	cferrors "github.com/paveg/colflow/internal/errors"
)

// Document is a graph decoded from YAML together with the inline data of its
// inputs.
type Document struct {
	Graph  *Graph
	Inputs []InputSpec
	// Values maps node and input names to their first result.
	Values map[string]Value
}

// InputSpec declares a graph argument. Frames list their labels and may carry
// one int64 slice per label in Columns; column and position inputs use Values.
type InputSpec struct {
	Name    string             `yaml:"name" json:"name"`
	Kind    string             `yaml:"kind" json:"kind"`
	Labels  []string           `yaml:"labels,omitempty" json:"labels,omitempty"`
	Columns map[string][]int64 `yaml:"columns,omitempty" json:"columns,omitempty"`
	Values  []int64            `yaml:"values,omitempty" json:"values,omitempty"`
}

// NodeSpec is one node entry. Args reference earlier names; "name#1" selects
// result slot 1. Column is shorthand for the name constant of extract_col.
type NodeSpec struct {
	ID     string    `yaml:"id"`
	Op     string    `yaml:"op"`
	Args   []string  `yaml:"args"`
	Value  yaml.Node `yaml:"value"`
	Pred   string    `yaml:"pred"`
	Calc   string    `yaml:"calc"`
	Column string    `yaml:"column"`
}

type document struct {
	Inputs []InputSpec `yaml:"inputs"`
	Nodes  []NodeSpec  `yaml:"nodes"`
}

// Decode reads a YAML graph document:
//
//	inputs:
//	  - {name: t, kind: frame, labels: [a, b]}
//	nodes:
//	  - {id: a, op: extract_col, args: [t], column: a}
//	  - {id: ten, op: constant, value: 10}
//	  - {id: m, op: compare, pred: le, args: [a, ten]}
//	  - {op: return, args: [m]}
func Decode(r io.Reader) (*Document, error) {
	var raw document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode graph document: %w", err)
	}

	b := NewBuilder()
	doc := &Document{Graph: b.Graph(), Inputs: raw.Inputs, Values: make(map[string]Value)}

	for _, in := range raw.Inputs {
		if _, dup := doc.Values[in.Name]; dup || in.Name == "" {
			return nil, cferrors.NewInvalidInputError("decode", fmt.Sprintf("input name %q is empty or duplicated", in.Name))
		}
		var v Value
		switch in.Kind {
		case "frame", "":
			v = b.Input(in.Name, in.Labels...)
		case "column":
			v = b.ColumnInput(in.Name)
		case "positions":
			v = b.PositionsInput(in.Name)
		default:
			return nil, cferrors.NewUnsupportedTypeError("decode", in.Kind)
		}
		doc.Values[in.Name] = v
	}

	for i, ns := range raw.Nodes {
		if err := decodeNode(b, doc, ns); err != nil {
			return nil, fmt.Errorf("node %d (%s): %w", i, ns.Op, err)
		}
		if b.Err() != nil {
			return nil, fmt.Errorf("node %d (%s): %w", i, ns.Op, b.Err())
		}
	}
	return doc, nil
}

func decodeNode(b *Builder, doc *Document, ns NodeSpec) error {
	kind, ok := ParseOpKind(ns.Op)
	if !ok {
		return cferrors.NewUnsupportedTypeError("decode", ns.Op)
	}
	args := make([]Value, len(ns.Args))
	for i, a := range ns.Args {
		v, err := resolveArg(doc, a)
		if err != nil {
			return err
		}
		args[i] = v
	}

	var op Op
	switch kind {
	case OpConstant:
		c, err := decodeConstant(&ns.Value)
		if err != nil {
			return err
		}
		op = Constant{Value: c}
	case OpExtractCol:
		if ns.Column != "" {
			args = append(args, b.Str(ns.Column))
		}
		op = ExtractCol{}
	case OpCast:
		op = Cast{}
	case OpCompare, OpColumnCmp:
		p, ok := ParseCmpPred(ns.Pred)
		if !ok {
			return cferrors.NewInvalidInputError("decode", fmt.Sprintf("unknown predicate %q", ns.Pred))
		}
		if kind == OpCompare {
			op = Compare{Pred: p}
		} else {
			op = ColumnCmp{Pred: p}
		}
	case OpEwAnd:
		op = EwAnd{}
	case OpFilterRow:
		op = FilterRow{}
	case OpInnerJoin:
		op = InnerJoin{}
	case OpColumnIntersect:
		op = ColumnIntersect{}
	case OpColumnBetween:
		op = ColumnBetween{}
	case OpColumnProject:
		op = ColumnProject{}
	case OpColumnProjectionPath:
		op = ColumnProjectionPath{}
	case OpColumnCalc:
		c, ok := ParseCalcOp(ns.Calc)
		if !ok {
			return cferrors.NewInvalidInputError("decode", fmt.Sprintf("unknown calc op %q", ns.Calc))
		}
		op = ColumnCalc{Op: c}
	case OpColumnSum:
		op = ColumnSum{}
	case OpReturn:
		op = Return{}
	default:
		return cferrors.NewInvalidInputError("decode", fmt.Sprintf("%s nodes are declared under inputs", kind))
	}

	v := b.Add(op, args...)
	if ns.ID != "" && b.Err() == nil {
		if _, dup := doc.Values[ns.ID]; dup {
			return cferrors.NewInvalidInputError("decode", fmt.Sprintf("duplicate id %q", ns.ID))
		}
		doc.Values[ns.ID] = v
	}
	return nil
}

func resolveArg(doc *Document, ref string) (Value, error) {
	name, slot := ref, 0
	if i := strings.LastIndexByte(ref, '#'); i >= 0 {
		n, err := strconv.Atoi(ref[i+1:])
		if err != nil {
			return Value{}, cferrors.NewInvalidInputError("decode", fmt.Sprintf("bad slot in %q", ref))
		}
		name, slot = ref[:i], n
	}
	v, ok := doc.Values[name]
	if !ok {
		return Value{}, cferrors.NewInvalidInputError("decode", fmt.Sprintf("undefined reference %q", name))
	}
	v.Slot = slot
	return v, nil
}

func decodeConstant(n *yaml.Node) (any, error) {
	if n.Kind != yaml.ScalarNode {
		return nil, cferrors.NewInvalidInputError("decode", "constant needs a scalar value")
	}
	if n.Tag == "!!int" {
		var i int64
		if err := n.Decode(&i); err != nil {
			return nil, err
		}
		return i, nil
	}
	return n.Value, nil
}
