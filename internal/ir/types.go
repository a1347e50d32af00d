package ir

import (
	"fmt"
	"slices"
	"strings"
)

// TypeKind classifies the values flowing along graph edges.
type TypeKind uint8

const (
	// TypeUnknown is compatible with every other kind.
	TypeUnknown TypeKind = iota
	// TypeFrame is a labelled collection of equally long columns.
	TypeFrame
	// TypeColumn is a single column (an n x 1 matrix).
	TypeColumn
	// TypePositions is a sorted list of row positions.
	TypePositions
	// TypeMask is a 0/1 row bitmap as produced by elementwise comparisons.
	TypeMask
	// TypeScalar is a single int64 or string value.
	TypeScalar
)

var typeKindNames = [...]string{
	TypeUnknown:   "unknown",
	TypeFrame:     "frame",
	TypeColumn:    "column",
	TypePositions: "positions",
	TypeMask:      "mask",
	TypeScalar:    "scalar",
}

func (k TypeKind) String() string {
	if int(k) < len(typeKindNames) {
		return typeKindNames[k]
	}
	return fmt.Sprintf("TypeKind(%d)", k)
}

// Type describes one node result. Frame types carry their column labels in
// order.
type Type struct {
	Kind   TypeKind
	Labels []string
}

// FrameOf returns a frame type with the given labels.
func FrameOf(labels ...string) Type {
	return Type{Kind: TypeFrame, Labels: slices.Clone(labels)}
}

// Of returns a label-less type of the given kind.
func Of(kind TypeKind) Type {
	return Type{Kind: kind}
}

// Compatible reports whether a value of type t may feed an operand expecting
// type want.
func (t Type) Compatible(want TypeKind) bool {
	return t.Kind == TypeUnknown || want == TypeUnknown || t.Kind == want
}

// HasLabel reports whether a frame type carries the given column label.
func (t Type) HasLabel(name string) bool {
	return slices.Contains(t.Labels, name)
}

// Equal compares kind and labels.
func (t Type) Equal(o Type) bool {
	return t.Kind == o.Kind && slices.Equal(t.Labels, o.Labels)
}

func (t Type) String() string {
	if t.Kind == TypeFrame {
		return fmt.Sprintf("frame[%s]", strings.Join(t.Labels, ","))
	}
	return t.Kind.String()
}
