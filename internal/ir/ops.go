package ir

import (
	"fmt"
	"strconv"

	cferrors "github.com/paveg/colflow/internal/errors"
)

// OpKind tags the closed set of operator variants.
type OpKind uint8

const (
	OpInput OpKind = iota
	OpColumnInput
	OpPositionsInput
	OpConstant
	OpExtractCol
	OpCast
	OpCompare
	OpEwAnd
	OpFilterRow
	OpInnerJoin
	OpColumnCmp
	OpColumnIntersect
	OpColumnBetween
	OpColumnProject
	OpColumnProjectionPath
	OpColumnCalc
	OpColumnSum
	OpReturn
)

var opKindNames = [...]string{
	OpInput:                "input",
	OpColumnInput:          "column_input",
	OpPositionsInput:       "positions_input",
	OpConstant:             "constant",
	OpExtractCol:           "extract_col",
	OpCast:                 "cast",
	OpCompare:              "compare",
	OpEwAnd:                "ew_and",
	OpFilterRow:            "filter_row",
	OpInnerJoin:            "inner_join",
	OpColumnCmp:            "column_cmp",
	OpColumnIntersect:      "column_intersect",
	OpColumnBetween:        "column_between",
	OpColumnProject:        "column_project",
	OpColumnProjectionPath: "column_projection_path",
	OpColumnCalc:           "column_calc",
	OpColumnSum:            "column_sum",
	OpReturn:               "return",
}

func (k OpKind) String() string {
	if int(k) < len(opKindNames) {
		return opKindNames[k]
	}
	return fmt.Sprintf("OpKind(%d)", k)
}

// ParseOpKind maps the textual operator name back to its kind.
func ParseOpKind(s string) (OpKind, bool) {
	for k, name := range opKindNames {
		if name == s {
			return OpKind(k), true
		}
	}
	return 0, false
}

// CmpPred is the comparison performed by Compare and ColumnCmp.
type CmpPred uint8

const (
	PredEQ CmpPred = iota
	PredNEQ
	PredLT
	PredLE
	PredGT
	PredGE
)

var predNames = [...]string{"eq", "neq", "lt", "le", "gt", "ge"}

func (p CmpPred) String() string {
	if int(p) < len(predNames) {
		return predNames[p]
	}
	return fmt.Sprintf("CmpPred(%d)", p)
}

// ParseCmpPred parses eq, neq, lt, le, gt or ge.
func ParseCmpPred(s string) (CmpPred, bool) {
	for p, name := range predNames {
		if name == s {
			return CmpPred(p), true
		}
	}
	return 0, false
}

// CalcOp is the arithmetic performed by ColumnCalc.
type CalcOp uint8

const (
	CalcAdd CalcOp = iota + 1
	CalcSub
	CalcMul
	CalcDiv
)

func (c CalcOp) String() string {
	switch c {
	case CalcAdd:
		return "add"
	case CalcSub:
		return "sub"
	case CalcMul:
		return "mul"
	case CalcDiv:
		return "div"
	default:
		return fmt.Sprintf("CalcOp(%d)", c)
	}
}

// ParseCalcOp parses add, sub, mul or div.
func ParseCalcOp(s string) (CalcOp, bool) {
	for _, c := range []CalcOp{CalcAdd, CalcSub, CalcMul, CalcDiv} {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}

// Op is the sealed sum type of operator variants. Each variant carries exactly
// the attributes its kind needs.
type Op interface {
	Kind() OpKind
	// infer validates operand types and returns the result types.
	infer(operands []Type) ([]Type, error)
	attrs() string
}

type (
	// Input is a named frame argument of the graph.
	Input struct {
		Name   string
		Labels []string
	}
	// ColumnInput is a named column argument of the graph.
	ColumnInput struct{ Name string }
	// PositionsInput is a named position-list argument of the graph.
	PositionsInput struct{ Name string }
	// Constant holds an int64 or string literal.
	Constant struct{ Value any }
	// ExtractCol(frame, name) selects one column of a frame.
	ExtractCol struct{}
	// Cast(x) converts between representations without changing contents.
	Cast struct{}
	// Compare(column, scalar) produces a row mask.
	Compare struct{ Pred CmpPred }
	// EwAnd(mask, mask) conjoins two masks.
	EwAnd struct{}
	// FilterRow(frame, mask) keeps the rows set in the mask.
	FilterRow struct{}
	// InnerJoin(lhs, rhs, lhsOn, rhsOn) is an equi-join on one column per side.
	InnerJoin struct{}
	// ColumnCmp(column, scalar) selects the positions satisfying Pred.
	ColumnCmp struct{ Pred CmpPred }
	// ColumnIntersect(positions, positions) intersects two position lists.
	ColumnIntersect struct{}
	// ColumnBetween(column, lower, upper) selects lower <= c <= upper.
	ColumnBetween struct{}
	// ColumnProject(column, positions) gathers the given positions.
	ColumnProject struct{}
	// ColumnProjectionPath(column, pN, ..., p1) applies p1 first and pN last.
	ColumnProjectionPath struct{}
	// ColumnCalc(column, column) combines two columns elementwise.
	ColumnCalc struct{ Op CalcOp }
	// ColumnSum(column) sums all values.
	ColumnSum struct{}
	// Return marks the values observable outside the graph.
	Return struct{}
)

// Kind implements Op.
func (Input) Kind() OpKind                { return OpInput }
func (ColumnInput) Kind() OpKind          { return OpColumnInput }
func (PositionsInput) Kind() OpKind       { return OpPositionsInput }
func (Constant) Kind() OpKind             { return OpConstant }
func (ExtractCol) Kind() OpKind           { return OpExtractCol }
func (Cast) Kind() OpKind                 { return OpCast }
func (Compare) Kind() OpKind              { return OpCompare }
func (EwAnd) Kind() OpKind                { return OpEwAnd }
func (FilterRow) Kind() OpKind            { return OpFilterRow }
func (InnerJoin) Kind() OpKind            { return OpInnerJoin }
func (ColumnCmp) Kind() OpKind            { return OpColumnCmp }
func (ColumnIntersect) Kind() OpKind      { return OpColumnIntersect }
func (ColumnBetween) Kind() OpKind        { return OpColumnBetween }
func (ColumnProject) Kind() OpKind        { return OpColumnProject }
func (ColumnProjectionPath) Kind() OpKind { return OpColumnProjectionPath }
func (ColumnCalc) Kind() OpKind           { return OpColumnCalc }
func (ColumnSum) Kind() OpKind            { return OpColumnSum }
func (Return) Kind() OpKind               { return OpReturn }

func (o Input) infer(ops []Type) ([]Type, error) {
	if err := expect(o, ops); err != nil {
		return nil, err
	}
	return []Type{FrameOf(o.Labels...)}, nil
}

func (o ColumnInput) infer(ops []Type) ([]Type, error) {
	return single(o, ops, TypeColumn)
}

func (o PositionsInput) infer(ops []Type) ([]Type, error) {
	return single(o, ops, TypePositions)
}

func (o Constant) infer(ops []Type) ([]Type, error) {
	switch o.Value.(type) {
	case int64, string:
	default:
		return nil, cferrors.NewUnsupportedTypeError("constant", fmt.Sprintf("%T", o.Value))
	}
	return single(o, ops, TypeScalar)
}

func (o ExtractCol) infer(ops []Type) ([]Type, error) {
	return single(o, ops, TypeColumn, TypeFrame, TypeScalar)
}

func (o Cast) infer(ops []Type) ([]Type, error) {
	if err := expect(o, ops, TypeUnknown); err != nil {
		return nil, err
	}
	return []Type{ops[0]}, nil
}

func (o Compare) infer(ops []Type) ([]Type, error) {
	return single(o, ops, TypeMask, TypeColumn, TypeScalar)
}

func (o EwAnd) infer(ops []Type) ([]Type, error) {
	return single(o, ops, TypeMask, TypeMask, TypeMask)
}

func (o FilterRow) infer(ops []Type) ([]Type, error) {
	if err := expect(o, ops, TypeFrame, TypeMask); err != nil {
		return nil, err
	}
	return []Type{ops[0]}, nil
}

func (o InnerJoin) infer(ops []Type) ([]Type, error) {
	if err := expect(o, ops, TypeFrame, TypeFrame, TypeScalar, TypeScalar); err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(ops[0].Labels)+len(ops[1].Labels))
	labels = append(labels, ops[0].Labels...)
	labels = append(labels, ops[1].Labels...)
	return []Type{FrameOf(labels...)}, nil
}

func (o ColumnCmp) infer(ops []Type) ([]Type, error) {
	return single(o, ops, TypePositions, TypeColumn, TypeScalar)
}

func (o ColumnIntersect) infer(ops []Type) ([]Type, error) {
	return single(o, ops, TypePositions, TypePositions, TypePositions)
}

func (o ColumnBetween) infer(ops []Type) ([]Type, error) {
	return single(o, ops, TypePositions, TypeColumn, TypeScalar, TypeScalar)
}

func (o ColumnProject) infer(ops []Type) ([]Type, error) {
	return single(o, ops, TypeColumn, TypeColumn, TypePositions)
}

func (o ColumnProjectionPath) infer(ops []Type) ([]Type, error) {
	if len(ops) < 2 {
		return nil, arityError(o, len(ops), "at least 2")
	}
	want := make([]TypeKind, len(ops))
	want[0] = TypeColumn
	for i := 1; i < len(ops); i++ {
		want[i] = TypePositions
	}
	return single(o, ops, TypeColumn, want...)
}

func (o ColumnCalc) infer(ops []Type) ([]Type, error) {
	return single(o, ops, TypeColumn, TypeColumn, TypeColumn)
}

func (o ColumnSum) infer(ops []Type) ([]Type, error) {
	return single(o, ops, TypeScalar, TypeColumn)
}

func (o Return) infer(_ []Type) ([]Type, error) {
	return nil, nil
}

func (o Input) attrs() string              { return strconv.Quote(o.Name) }
func (o ColumnInput) attrs() string        { return strconv.Quote(o.Name) }
func (o PositionsInput) attrs() string     { return strconv.Quote(o.Name) }
func (o Constant) attrs() string           { return formatConstant(o.Value) }
func (ExtractCol) attrs() string           { return "" }
func (Cast) attrs() string                 { return "" }
func (o Compare) attrs() string            { return "<" + o.Pred.String() + ">" }
func (EwAnd) attrs() string                { return "" }
func (FilterRow) attrs() string            { return "" }
func (InnerJoin) attrs() string            { return "" }
func (o ColumnCmp) attrs() string          { return "<" + o.Pred.String() + ">" }
func (ColumnIntersect) attrs() string      { return "" }
func (ColumnBetween) attrs() string        { return "" }
func (ColumnProject) attrs() string        { return "" }
func (ColumnProjectionPath) attrs() string { return "" }
func (o ColumnCalc) attrs() string         { return "<" + o.Op.String() + ">" }
func (ColumnSum) attrs() string            { return "" }
func (Return) attrs() string               { return "" }

// IsPure reports whether a node of this op may be removed once unused. Graph
// arguments and Return are kept.
func IsPure(op Op) bool {
	switch op.(type) {
	case Input, ColumnInput, PositionsInput, Return:
		return false
	default:
		return true
	}
}

func formatConstant(v any) string {
	switch v := v.(type) {
	case string:
		return strconv.Quote(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// single checks operand kinds and returns one result of kind res.
func single(op Op, ops []Type, res TypeKind, want ...TypeKind) ([]Type, error) {
	if err := expect(op, ops, want...); err != nil {
		return nil, err
	}
	return []Type{Of(res)}, nil
}

func expect(op Op, ops []Type, want ...TypeKind) error {
	if len(ops) != len(want) {
		return arityError(op, len(ops), strconv.Itoa(len(want)))
	}
	for i, t := range ops {
		if !t.Compatible(want[i]) {
			return &cferrors.OpError{
				Op:      "verify",
				Kind:    op.Kind().String(),
				Message: fmt.Sprintf("operand %d has type %s, want %s", i, t, want[i]),
			}
		}
	}
	return nil
}

func arityError(op Op, got int, want string) error {
	return &cferrors.OpError{
		Op:      "verify",
		Kind:    op.Kind().String(),
		Message: fmt.Sprintf("got %d operands, want %s", got, want),
	}
}
