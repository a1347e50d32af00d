// Package matrix provides the row-major dense matrices that vectorized
// pipelines read and write.
package matrix

import (
	"fmt"

	"golang.org/x/exp/constraints"

	cferrors "github.com/paveg/colflow/internal/errors"
)

// Number is the element type of a DenseMatrix.
type Number interface {
	constraints.Integer | constraints.Float
}

// DenseMatrix is a row-major matrix. Row slices share the backing array of
// the matrix they were taken from, so writes through a view are visible in
// the parent.
type DenseMatrix[T Number] struct {
	rows    int
	cols    int
	rowSkip int
	values  []T
}

// New returns a zeroed rows x cols matrix.
func New[T Number](rows, cols int) *DenseMatrix[T] {
	rows, cols = max(rows, 0), max(cols, 0)
	return &DenseMatrix[T]{
		rows:    rows,
		cols:    cols,
		rowSkip: cols,
		values:  make([]T, rows*cols),
	}
}

// FromValues wraps values, which must hold exactly rows*cols elements.
func FromValues[T Number](rows, cols int, values []T) (*DenseMatrix[T], error) {
	if rows < 0 || cols < 0 || len(values) != rows*cols {
		return nil, fmt.Errorf("matrix of %dx%d needs %d values, got %d", rows, cols, rows*cols, len(values))
	}
	return &DenseMatrix[T]{rows: rows, cols: cols, rowSkip: cols, values: values}, nil
}

// Column returns a rows x 1 matrix holding values.
func Column[T Number](values ...T) *DenseMatrix[T] {
	m, _ := FromValues(len(values), 1, values)
	return m
}

// NumRows returns the number of rows.
func (m *DenseMatrix[T]) NumRows() int { return m.rows }

// NumCols returns the number of columns.
func (m *DenseMatrix[T]) NumCols() int { return m.cols }

// At returns the element at (r, c).
func (m *DenseMatrix[T]) At(r, c int) T {
	return m.values[r*m.rowSkip+c]
}

// Set stores v at (r, c).
func (m *DenseMatrix[T]) Set(r, c int, v T) {
	m.values[r*m.rowSkip+c] = v
}

// Row returns row r. The slice aliases the matrix.
func (m *DenseMatrix[T]) Row(r int) []T {
	start := r * m.rowSkip
	return m.values[start : start+m.cols : start+m.cols]
}

// SliceRows returns a view of rows [start, end).
func (m *DenseMatrix[T]) SliceRows(start, end int) (*DenseMatrix[T], error) {
	if start < 0 || end < start || end > m.rows {
		return nil, fmt.Errorf("row slice [%d, %d) out of bounds for %d rows", start, end, m.rows)
	}
	view := &DenseMatrix[T]{rows: end - start, cols: m.cols, rowSkip: m.rowSkip}
	if view.rows > 0 {
		view.values = m.values[start*m.rowSkip : (end-1)*m.rowSkip+m.cols]
	}
	return view, nil
}

// Values returns a row-major copy of the elements.
func (m *DenseMatrix[T]) Values() []T {
	out := make([]T, 0, m.rows*m.cols)
	for r := range m.rows {
		out = append(out, m.Row(r)...)
	}
	return out
}

// Clone returns a deep copy with its own storage.
func (m *DenseMatrix[T]) Clone() *DenseMatrix[T] {
	out, _ := FromValues(m.rows, m.cols, m.Values())
	return out
}

// Fill sets every element to v.
func (m *DenseMatrix[T]) Fill(v T) {
	for r := range m.rows {
		row := m.Row(r)
		for c := range row {
			row[c] = v
		}
	}
}

// CopyFrom copies src, which must have the same shape, into m.
func (m *DenseMatrix[T]) CopyFrom(src *DenseMatrix[T]) error {
	if err := m.sameShape(src); err != nil {
		return err
	}
	for r := range m.rows {
		copy(m.Row(r), src.Row(r))
	}
	return nil
}

// AddFrom adds src elementwise into m.
func (m *DenseMatrix[T]) AddFrom(src *DenseMatrix[T]) error {
	if err := m.sameShape(src); err != nil {
		return err
	}
	for r := range m.rows {
		dst, s := m.Row(r), src.Row(r)
		for c := range dst {
			dst[c] += s[c]
		}
	}
	return nil
}

// Equal reports whether o has the same shape and elements.
func (m *DenseMatrix[T]) Equal(o *DenseMatrix[T]) bool {
	if m.rows != o.rows || m.cols != o.cols {
		return false
	}
	for r := range m.rows {
		a, b := m.Row(r), o.Row(r)
		for c := range a {
			if a[c] != b[c] {
				return false
			}
		}
	}
	return true
}

func (m *DenseMatrix[T]) sameShape(o *DenseMatrix[T]) error {
	if m.rows != o.rows || m.cols != o.cols {
		return fmt.Errorf("%w: %dx%d vs %dx%d", cferrors.ErrShapeMismatch, m.rows, m.cols, o.rows, o.cols)
	}
	return nil
}

func (m *DenseMatrix[T]) String() string {
	return fmt.Sprintf("DenseMatrix(%dx%d)%v", m.rows, m.cols, m.Values())
}
