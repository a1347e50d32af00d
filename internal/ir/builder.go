package ir

// Builder constructs a graph by appending nodes. The first error is kept and
// every later call becomes a no-op, so construction code can check Err once.
type Builder struct {
	g   *Graph
	err error
}

// NewBuilder returns a builder over an empty graph.
func NewBuilder() *Builder {
	return &Builder{g: New()}
}

// Graph returns the graph under construction.
func (b *Builder) Graph() *Graph { return b.g }

// Err returns the first construction error.
func (b *Builder) Err() error { return b.err }

// Add appends op and returns its first result.
func (b *Builder) Add(op Op, operands ...Value) Value {
	if b.err != nil {
		return Value{Node: InvalidNode}
	}
	id, err := b.g.Create(op, operands...)
	if err != nil {
		b.err = err
		return Value{Node: InvalidNode}
	}
	return Value{Node: id}
}

// Input appends a frame input with the given column labels.
func (b *Builder) Input(name string, labels ...string) Value {
	return b.Add(Input{Name: name, Labels: labels})
}

// ColumnInput appends a named column input.
func (b *Builder) ColumnInput(name string) Value {
	return b.Add(ColumnInput{Name: name})
}

// PositionsInput appends a named position list input.
func (b *Builder) PositionsInput(name string) Value {
	return b.Add(PositionsInput{Name: name})
}

// Int appends an integer constant.
func (b *Builder) Int(v int64) Value {
	return b.Add(Constant{Value: v})
}

// Str appends a string constant.
func (b *Builder) Str(s string) Value {
	return b.Add(Constant{Value: s})
}

// Extract appends a column-name constant and an ExtractCol over frame.
func (b *Builder) Extract(frame Value, column string) Value {
	return b.Add(ExtractCol{}, frame, b.Str(column))
}

// Cast appends a Cast of v.
func (b *Builder) Cast(v Value) Value {
	return b.Add(Cast{}, v)
}

// Compare appends an elementwise comparison producing a row mask.
func (b *Builder) Compare(pred CmpPred, col, rhs Value) Value {
	return b.Add(Compare{Pred: pred}, col, rhs)
}

// And appends the elementwise AND of two masks.
func (b *Builder) And(lhs, rhs Value) Value {
	return b.Add(EwAnd{}, lhs, rhs)
}

// Filter appends a FilterRow keeping the rows set in mask.
func (b *Builder) Filter(frame, mask Value) Value {
	return b.Add(FilterRow{}, frame, mask)
}

// Join appends an InnerJoin on lhsOn = rhsOn.
func (b *Builder) Join(lhs, rhs Value, lhsOn, rhsOn string) Value {
	return b.Add(InnerJoin{}, lhs, rhs, b.Str(lhsOn), b.Str(rhsOn))
}

// Cmp appends a ColumnCmp selecting the positions that satisfy pred.
func (b *Builder) Cmp(pred CmpPred, col, bound Value) Value {
	return b.Add(ColumnCmp{Pred: pred}, col, bound)
}

// Intersect appends the intersection of two position lists.
func (b *Builder) Intersect(lhs, rhs Value) Value {
	return b.Add(ColumnIntersect{}, lhs, rhs)
}

// Between appends a ColumnBetween over the inclusive range [lo, hi].
func (b *Builder) Between(col, lo, hi Value) Value {
	return b.Add(ColumnBetween{}, col, lo, hi)
}

// Project appends a ColumnProject gathering col at pos.
func (b *Builder) Project(col, pos Value) Value {
	return b.Add(ColumnProject{}, col, pos)
}

// Calc appends an elementwise arithmetic ColumnCalc.
func (b *Builder) Calc(op CalcOp, lhs, rhs Value) Value {
	return b.Add(ColumnCalc{Op: op}, lhs, rhs)
}

// Sum appends a ColumnSum over col.
func (b *Builder) Sum(col Value) Value {
	return b.Add(ColumnSum{}, col)
}

// Return appends a Return node and returns its id.
func (b *Builder) Return(values ...Value) NodeID {
	return b.Add(Return{}, values...).Node
}
