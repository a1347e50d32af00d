package matrix

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	cferrors "github.com/paveg/colflow/internal/errors"
)

// ToRecord converts m into an arrow record with one column per matrix
// column, named c0, c1, ...
func (m *DenseMatrix[T]) ToRecord(mem memory.Allocator) (arrow.Record, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}

	fields := make([]arrow.Field, m.cols)
	cols := make([]arrow.Array, 0, m.cols)
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	for c := range m.cols {
		arr, err := m.columnArray(c, mem)
		if err != nil {
			return nil, err
		}
		cols = append(cols, arr)
		fields[c] = arrow.Field{Name: fmt.Sprintf("c%d", c), Type: arr.DataType()}
	}
	return array.NewRecord(arrow.NewSchema(fields, nil), cols, int64(m.rows)), nil
}

func (m *DenseMatrix[T]) columnArray(c int, mem memory.Allocator) (arrow.Array, error) {
	switch any(*new(T)).(type) {
	case int64:
		b := array.NewInt64Builder(mem)
		defer b.Release()
		for r := range m.rows {
			b.Append(int64(m.At(r, c)))
		}
		return b.NewArray(), nil
	case int32:
		b := array.NewInt32Builder(mem)
		defer b.Release()
		for r := range m.rows {
			b.Append(int32(m.At(r, c)))
		}
		return b.NewArray(), nil
	case uint64:
		b := array.NewUint64Builder(mem)
		defer b.Release()
		for r := range m.rows {
			b.Append(uint64(m.At(r, c)))
		}
		return b.NewArray(), nil
	case float64:
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		for r := range m.rows {
			b.Append(float64(m.At(r, c)))
		}
		return b.NewArray(), nil
	case float32:
		b := array.NewFloat32Builder(mem)
		defer b.Release()
		for r := range m.rows {
			b.Append(float32(m.At(r, c)))
		}
		return b.NewArray(), nil
	default:
		return nil, cferrors.NewUnsupportedTypeError("matrix", fmt.Sprintf("%T", *new(T)))
	}
}

// FromRecord copies a record of non-null numeric columns into a new matrix.
func FromRecord[T Number](rec arrow.Record) (*DenseMatrix[T], error) {
	rows, cols := int(rec.NumRows()), int(rec.NumCols())
	m := New[T](rows, cols)
	for c := range cols {
		col := rec.Column(c)
		if col.NullN() > 0 {
			return nil, cferrors.NewInvalidInputError("matrix",
				fmt.Sprintf("column %q holds %d nulls", rec.ColumnName(c), col.NullN()))
		}
		switch arr := col.(type) {
		case *array.Int64:
			for r := range rows {
				m.Set(r, c, T(arr.Value(r)))
			}
		case *array.Int32:
			for r := range rows {
				m.Set(r, c, T(arr.Value(r)))
			}
		case *array.Uint64:
			for r := range rows {
				m.Set(r, c, T(arr.Value(r)))
			}
		case *array.Float64:
			for r := range rows {
				m.Set(r, c, T(arr.Value(r)))
			}
		case *array.Float32:
			for r := range rows {
				m.Set(r, c, T(arr.Value(r)))
			}
		default:
			return nil, cferrors.NewUnsupportedTypeError("matrix", col.DataType().String())
		}
	}
	return m, nil
}
