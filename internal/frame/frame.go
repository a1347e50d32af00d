package frame

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	cferrors "github.com/paveg/colflow/internal/errors"
)

// Frame is an ordered list of equally long labelled columns. Labels need not
// be unique; lookups return the first match, as joins may repeat a label.
type Frame struct {
	columns []*Column
	rows    int
}

// New creates a frame from columns of equal length.
func New(columns ...*Column) (*Frame, error) {
	f := &Frame{columns: columns}
	for i, c := range columns {
		if i == 0 {
			f.rows = c.Len()
			continue
		}
		if c.Len() != f.rows {
			return nil, fmt.Errorf("%w: column %q has %d rows, expected %d",
				cferrors.ErrShapeMismatch, c.Name(), c.Len(), f.rows)
		}
	}
	return f, nil
}

// FromValues creates a frame whose columns follow labels.
func FromValues(labels []string, data map[string][]int64, mem memory.Allocator) (*Frame, error) {
	columns := make([]*Column, 0, len(labels))
	for _, l := range labels {
		values, ok := data[l]
		if !ok {
			return nil, cferrors.NewColumnNotFoundError("frame", "input", l)
		}
		columns = append(columns, NewColumn(l, values, mem))
	}
	return New(columns...)
}

// Len returns the number of rows.
func (f *Frame) Len() int { return f.rows }

// Width returns the number of columns.
func (f *Frame) Width() int { return len(f.columns) }

// Labels returns the column labels in order.
func (f *Frame) Labels() []string {
	out := make([]string, len(f.columns))
	for i, c := range f.columns {
		out[i] = c.Name()
	}
	return out
}

// Columns returns the columns in order.
func (f *Frame) Columns() []*Column {
	return append([]*Column(nil), f.columns...)
}

// HasColumn reports whether a column is labelled name.
func (f *Frame) HasColumn(name string) bool {
	_, ok := f.Column(name)
	return ok
}

// Column returns the first column labelled name.
func (f *Frame) Column(name string) (*Column, bool) {
	for _, c := range f.columns {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Take returns a frame holding the given rows of every column, in order.
func (f *Frame) Take(rows []int, mem memory.Allocator) (*Frame, error) {
	columns := make([]*Column, len(f.columns))
	for i, c := range f.columns {
		taken, err := c.Take(rows, mem)
		if err != nil {
			return nil, err
		}
		columns[i] = taken
	}
	return &Frame{columns: columns, rows: len(rows)}, nil
}

// Concat returns a frame holding the columns of f followed by those of o.
func (f *Frame) Concat(o *Frame) (*Frame, error) {
	columns := make([]*Column, 0, len(f.columns)+len(o.columns))
	columns = append(columns, f.columns...)
	columns = append(columns, o.columns...)
	return New(columns...)
}

// Rows returns the frame row by row.
func (f *Frame) Rows() [][]int64 {
	out := make([][]int64, f.rows)
	for r := range out {
		row := make([]int64, len(f.columns))
		for i, c := range f.columns {
			row[i] = c.Value(r)
		}
		out[r] = row
	}
	return out
}

// ToRecord converts the frame into an arrow record.
func (f *Frame) ToRecord() arrow.Record {
	fields := make([]arrow.Field, len(f.columns))
	arrays := make([]arrow.Array, len(f.columns))
	for i, c := range f.columns {
		fields[i] = arrow.Field{Name: c.Name(), Type: c.DataType()}
		arrays[i] = c.array
	}
	return array.NewRecord(arrow.NewSchema(fields, nil), arrays, int64(f.rows))
}

// Release releases every column.
func (f *Frame) Release() {
	for _, c := range f.columns {
		c.Release()
	}
}

// String renders the frame as a small table.
func (f *Frame) String() string {
	var sb strings.Builder
	sb.WriteString(strings.Join(f.Labels(), "\t"))
	sb.WriteByte('\n')
	for _, row := range f.Rows() {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = strconv.FormatInt(v, 10)
		}
		sb.WriteString(strings.Join(cells, "\t"))
		sb.WriteByte('\n')
	}
	return sb.String()
}
