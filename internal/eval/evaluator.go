// Package eval executes an operator graph with the reference kernels. It is
// used to check that lowering preserves results and by the CLI.
package eval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/apache/arrow-go/v18/arrow/memory"

	cferrors "github.com/paveg/colflow/internal/errors"
	"github.com/paveg/colflow/internal/frame"
	"github.com/paveg/colflow/internal/ir"
	"github.com/paveg/colflow/internal/kernels"
)

// Value is the runtime value of one graph result. Exactly one field is set,
// according to Kind; positions and masks both use Positions.
type Value struct {
	Kind      ir.TypeKind
	Frame     *frame.Frame
	Column    []int64
	Positions *roaring.Bitmap
	Scalar    any
}

// FrameValue, ColumnValue and PositionsValue wrap inputs for Evaluate.
func FrameValue(f *frame.Frame) Value        { return Value{Kind: ir.TypeFrame, Frame: f} }
func ColumnValue(values []int64) Value       { return Value{Kind: ir.TypeColumn, Column: values} }
func PositionsValue(p *roaring.Bitmap) Value { return Value{Kind: ir.TypePositions, Positions: p} }

func (v Value) String() string {
	switch v.Kind {
	case ir.TypeFrame:
		return v.Frame.String()
	case ir.TypeColumn:
		return fmt.Sprint(v.Column)
	case ir.TypePositions, ir.TypeMask:
		return fmt.Sprint(v.Positions.ToArray())
	case ir.TypeScalar:
		if s, ok := v.Scalar.(string); ok {
			return strconv.Quote(s)
		}
		return fmt.Sprint(v.Scalar)
	default:
		return "<unknown>"
	}
}

// Bindings maps input names to their values.
type Bindings map[string]Value

// BindDocument builds bindings from the inline data of a decoded document.
func BindDocument(doc *ir.Document, mem memory.Allocator) (Bindings, error) {
	out := make(Bindings, len(doc.Inputs))
	for _, in := range doc.Inputs {
		switch in.Kind {
		case "frame", "":
			f, err := frame.FromValues(in.Labels, in.Columns, mem)
			if err != nil {
				return nil, fmt.Errorf("input %q: %w", in.Name, err)
			}
			out[in.Name] = FrameValue(f)
		case "column":
			out[in.Name] = ColumnValue(in.Values)
		case "positions":
			p, err := kernels.Positions(in.Values)
			if err != nil {
				return nil, fmt.Errorf("input %q: %w", in.Name, err)
			}
			out[in.Name] = PositionsValue(p)
		default:
			return nil, cferrors.NewUnsupportedTypeError("bind", in.Kind)
		}
	}
	return out, nil
}

// Evaluator runs graphs against bound inputs.
type Evaluator struct {
	mem memory.Allocator
}

// NewEvaluator creates a new graph evaluator
func NewEvaluator(mem memory.Allocator) *Evaluator {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &Evaluator{mem: mem}
}

// Evaluate runs g in program order and returns the values consumed by its
// Return nodes.
func (e *Evaluator) Evaluate(g *ir.Graph, inputs Bindings) ([]Value, error) {
	results := make(map[ir.Value]Value, g.Len())
	var err error
	g.Walk(func(n *ir.Node) bool {
		if n.Kind() == ir.OpReturn {
			return true
		}
		args := make([]Value, n.NumOperands())
		for i, v := range n.Operands() {
			args[i] = results[v]
		}
		var out Value
		out, err = e.evaluateNode(n, args, inputs)
		if err != nil {
			err = fmt.Errorf("evaluating %%%d (%s): %w", n.ID(), n.Kind(), err)
			return false
		}
		results[n.Result(0)] = out
		return true
	})
	if err != nil {
		return nil, err
	}

	returns := g.Returns()
	out := make([]Value, len(returns))
	for i, v := range returns {
		out[i] = results[v]
	}
	return out, nil
}

func (e *Evaluator) evaluateNode(n *ir.Node, args []Value, inputs Bindings) (Value, error) {
	switch op := n.Op().(type) {
	case ir.Input:
		return bound(inputs, op.Name, ir.TypeFrame)
	case ir.ColumnInput:
		return bound(inputs, op.Name, ir.TypeColumn)
	case ir.PositionsInput:
		return bound(inputs, op.Name, ir.TypePositions)
	case ir.Constant:
		return Value{Kind: ir.TypeScalar, Scalar: op.Value}, nil
	case ir.ExtractCol:
		name, err := stringScalar(args[1])
		if err != nil {
			return Value{}, err
		}
		col, ok := args[0].Frame.Column(name)
		if !ok {
			return Value{}, cferrors.NewColumnNotFoundError("evaluate", n.Kind().String(), name)
		}
		return ColumnValue(col.Values()), nil
	case ir.Cast:
		return args[0], nil
	case ir.Compare:
		rhs, err := intScalar(args[1])
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: ir.TypeMask, Positions: kernels.Select(args[0].Column, op.Pred, rhs)}, nil
	case ir.EwAnd:
		return Value{Kind: ir.TypeMask, Positions: kernels.Intersect(args[0].Positions, args[1].Positions)}, nil
	case ir.FilterRow:
		f, err := kernels.FilterRows(args[0].Frame, args[1].Positions, e.mem)
		if err != nil {
			return Value{}, err
		}
		return FrameValue(f), nil
	case ir.InnerJoin:
		lhsOn, err := stringScalar(args[2])
		if err != nil {
			return Value{}, err
		}
		rhsOn, err := stringScalar(args[3])
		if err != nil {
			return Value{}, err
		}
		f, err := kernels.InnerJoin(args[0].Frame, args[1].Frame, lhsOn, rhsOn, e.mem)
		if err != nil {
			return Value{}, err
		}
		return FrameValue(f), nil
	case ir.ColumnCmp:
		rhs, err := intScalar(args[1])
		if err != nil {
			return Value{}, err
		}
		return PositionsValue(kernels.Select(args[0].Column, op.Pred, rhs)), nil
	case ir.ColumnIntersect:
		return PositionsValue(kernels.Intersect(args[0].Positions, args[1].Positions)), nil
	case ir.ColumnBetween:
		lo, err := intScalar(args[1])
		if err != nil {
			return Value{}, err
		}
		hi, err := intScalar(args[2])
		if err != nil {
			return Value{}, err
		}
		return PositionsValue(kernels.Between(args[0].Column, lo, hi)), nil
	case ir.ColumnProject:
		col, err := kernels.Project(args[0].Column, args[1].Positions)
		return ColumnValue(col), err
	case ir.ColumnProjectionPath:
		lists := make([]*roaring.Bitmap, 0, len(args)-1)
		for _, a := range args[1:] {
			lists = append(lists, a.Positions)
		}
		col, err := kernels.ProjectPath(args[0].Column, lists)
		return ColumnValue(col), err
	case ir.ColumnCalc:
		col, err := kernels.Calc(op.Op, args[0].Column, args[1].Column)
		return ColumnValue(col), err
	case ir.ColumnSum:
		return Value{Kind: ir.TypeScalar, Scalar: kernels.Sum(args[0].Column)}, nil
	default:
		return Value{}, cferrors.NewUnsupportedTypeError("evaluate", n.Kind().String())
	}
}

func bound(inputs Bindings, name string, kind ir.TypeKind) (Value, error) {
	v, ok := inputs[name]
	if !ok {
		return Value{}, cferrors.NewInvalidInputError("evaluate", fmt.Sprintf("input %q is not bound", name))
	}
	if v.Kind != kind {
		return Value{}, cferrors.NewInvalidInputError("evaluate",
			fmt.Sprintf("input %q is bound to a %s, expected %s", name, v.Kind, kind))
	}
	return v, nil
}

func stringScalar(v Value) (string, error) {
	s, ok := v.Scalar.(string)
	if !ok {
		return "", cferrors.NewInvalidInputError("evaluate", fmt.Sprintf("expected a string constant, got %v", v.Scalar))
	}
	return s, nil
}

func intScalar(v Value) (int64, error) {
	i, ok := v.Scalar.(int64)
	if !ok {
		return 0, cferrors.NewInvalidInputError("evaluate", fmt.Sprintf("expected an int64 constant, got %v", v.Scalar))
	}
	return i, nil
}

// Format renders values one per line.
func Format(values []Value) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strings.TrimRight(v.String(), "\n")
	}
	return strings.Join(parts, "\n") + "\n"
}
