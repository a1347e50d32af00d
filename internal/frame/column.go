// Package frame provides arrow-backed int64 columns and the labelled frames
// the reference evaluator operates on.
package frame

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Column is a named int64 column with an Apache Arrow backend.
type Column struct {
	name  string
	array *array.Int64
}

// NewColumn creates a column from values.
func NewColumn(name string, values []int64, mem memory.Allocator) *Column {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	builder := array.NewInt64Builder(mem)
	defer builder.Release()
	builder.AppendValues(values, nil)
	return &Column{name: name, array: builder.NewInt64Array()}
}

// Name returns the column name
func (c *Column) Name() string {
	return c.name
}

// Len returns the number of values
func (c *Column) Len() int {
	return c.array.Len()
}

// Values returns the data as a Go slice. The slice is a copy.
func (c *Column) Values() []int64 {
	out := make([]int64, c.array.Len())
	copy(out, c.array.Int64Values())
	return out
}

// Value returns the value at index, or 0 when out of range.
func (c *Column) Value(index int) int64 {
	if index < 0 || index >= c.array.Len() {
		return 0
	}
	return c.array.Value(index)
}

// Rename returns a column sharing c's data under a new name.
func (c *Column) Rename(name string) *Column {
	c.array.Retain()
	return &Column{name: name, array: c.array}
}

// Take returns a new column holding the rows at the given indices, in order.
func (c *Column) Take(rows []int, mem memory.Allocator) (*Column, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	builder := array.NewInt64Builder(mem)
	defer builder.Release()
	builder.Reserve(len(rows))
	for _, r := range rows {
		if r < 0 || r >= c.array.Len() {
			return nil, fmt.Errorf("row %d out of range for column %q of length %d", r, c.name, c.array.Len())
		}
		builder.UnsafeAppend(c.array.Value(r))
	}
	return &Column{name: c.name, array: builder.NewInt64Array()}, nil
}

// DataType returns the Arrow data type
func (c *Column) DataType() arrow.DataType {
	return c.array.DataType()
}

func (c *Column) String() string {
	return fmt.Sprintf("Column[int64]: %s (len=%d)", c.name, c.Len())
}

// Array returns the underlying Arrow array (retains a reference)
func (c *Column) Array() arrow.Array {
	c.array.Retain()
	return c.array
}

// Release releases the underlying Arrow memory
func (c *Column) Release() {
	if c.array != nil {
		c.array.Release()
	}
}
