package io_test

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cferrors "github.com/paveg/colflow/internal/errors"
	"github.com/paveg/colflow/internal/frame"
	cfio "github.com/paveg/colflow/internal/io"
	"github.com/paveg/colflow/internal/matrix"
)

func sampleFrame(t *testing.T, mem memory.Allocator) *frame.Frame {
	t.Helper()
	f, err := frame.FromValues([]string{"id", "price"}, map[string][]int64{
		"id":    {1, 2, 3},
		"price": {100, -20, 7},
	}, mem)
	require.NoError(t, err)
	return f
}

func TestCSVReader(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		options func(*cfio.CSVOptions)
		labels  []string
		rows    [][]int64
	}{
		{
			name:   "header",
			input:  "a,b\n1,2\n3,4\n",
			labels: []string{"a", "b"},
			rows:   [][]int64{{1, 2}, {3, 4}},
		},
		{
			name:    "no header",
			input:   "1,2\n3,4\n",
			options: func(o *cfio.CSVOptions) { o.Header = false },
			labels:  []string{"column_0", "column_1"},
			rows:    [][]int64{{1, 2}, {3, 4}},
		},
		{
			name:    "semicolon and comments",
			input:   "# prices\na; b\n-1; 9\n",
			options: func(o *cfio.CSVOptions) { o.Delimiter, o.Comment, o.SkipInitialSpace = ';', '#', true },
			labels:  []string{"a", "b"},
			rows:    [][]int64{{-1, 9}},
		},
		{
			name:   "header only",
			input:  "a,b\n",
			labels: []string{"a", "b"},
			rows:   [][]int64{},
		},
		{
			name:   "empty",
			input:  "",
			labels: []string{},
			rows:   [][]int64{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := cfio.DefaultCSVOptions()
			if tt.options != nil {
				tt.options(&opts)
			}
			f, err := cfio.NewCSVReader(strings.NewReader(tt.input), opts, nil).Read()
			require.NoError(t, err)
			assert.Equal(t, tt.labels, f.Labels())
			assert.Equal(t, tt.rows, f.Rows())
		})
	}
}

func TestCSVReaderErrors(t *testing.T) {
	_, err := cfio.NewCSVReader(strings.NewReader("a,b\n1,x\n"), cfio.DefaultCSVOptions(), nil).Read()
	require.Error(t, err)
	var opErr *cferrors.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Contains(t, err.Error(), `column "b" row 0`)

	_, err = cfio.NewCSVReader(strings.NewReader("a,b\n1\n"), cfio.DefaultCSVOptions(), nil).Read()
	require.Error(t, err)
}

func TestCSVRoundTrip(t *testing.T) {
	f := sampleFrame(t, nil)
	var buf bytes.Buffer
	require.NoError(t, cfio.NewCSVWriter(&buf, cfio.DefaultCSVOptions()).Write(f))
	assert.Equal(t, "id,price\n1,100\n2,-20\n3,7\n", buf.String())

	back, err := cfio.NewCSVReader(&buf, cfio.DefaultCSVOptions(), nil).Read()
	require.NoError(t, err)
	assert.Equal(t, f.Rows(), back.Rows())
}

func TestParquetRoundTrip(t *testing.T) {
	mem := memory.NewGoAllocator()
	for _, compression := range []string{"snappy", "zstd", "uncompressed"} {
		t.Run(compression, func(t *testing.T) {
			f := sampleFrame(t, mem)
			defer f.Release()

			var buf bytes.Buffer
			opts := cfio.DefaultParquetOptions()
			opts.Compression = compression
			require.NoError(t, cfio.NewParquetWriter(&buf, opts).Write(f))

			back, err := cfio.NewParquetReader(&buf, mem).Read()
			require.NoError(t, err)
			defer back.Release()
			assert.Equal(t, f.Labels(), back.Labels())
			assert.Equal(t, f.Rows(), back.Rows())
		})
	}
}

func TestParquetErrors(t *testing.T) {
	opts := cfio.DefaultParquetOptions()
	opts.Compression = "brotli-ish"
	err := cfio.NewParquetWriter(&bytes.Buffer{}, opts).Write(sampleFrame(t, nil))
	require.Error(t, err)

	_, err = cfio.NewParquetReader(strings.NewReader("not parquet"), nil).Read()
	require.Error(t, err)
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	f := sampleFrame(t, nil)
	for _, name := range []string{"prices.csv", "prices.parquet"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, cfio.WriteFile(path, f))
			back, err := cfio.ReadFile(path, nil)
			require.NoError(t, err)
			assert.Equal(t, f.Rows(), back.Rows())
		})
	}

	require.Error(t, cfio.WriteFile(filepath.Join(dir, "prices.xlsx"), f))
	_, err := cfio.ReadFile(filepath.Join(dir, "missing.csv"), nil)
	require.Error(t, err)
}

func TestWriteRecord(t *testing.T) {
	m, err := matrix.FromValues(2, 2, []float64{1.5, 2, -3, 0.25})
	require.NoError(t, err)
	rec, err := m.ToRecord(nil)
	require.NoError(t, err)
	defer rec.Release()

	var buf bytes.Buffer
	require.NoError(t, cfio.NewCSVWriter(&buf, cfio.DefaultCSVOptions()).WriteRecord(rec))
	assert.Equal(t, "c0,c1\n1.5,2\n-3,0.25\n", buf.String())

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "m.csv")
	require.NoError(t, cfio.WriteRecordFile(csvPath, rec))
	written, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, buf.String(), string(written))

	// float columns are valid parquet but not a frame
	pqPath := filepath.Join(dir, "m.parquet")
	require.NoError(t, cfio.WriteRecordFile(pqPath, rec))
	_, err = cfio.ReadFile(pqPath, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")

	ints, err := matrix.FromValues(1, 3, []int32{7, -1, 0})
	require.NoError(t, err)
	irec, err := ints.ToRecord(nil)
	require.NoError(t, err)
	defer irec.Release()
	buf.Reset()
	require.NoError(t, cfio.NewCSVWriter(&buf, cfio.CSVOptions{Delimiter: ';'}).WriteRecord(irec))
	assert.Equal(t, "7;-1;0\n", buf.String())
}

func TestWriteRecordErrors(t *testing.T) {
	mem := memory.NewGoAllocator()
	b := array.NewStringBuilder(mem)
	b.AppendValues([]string{"x"}, nil)
	strs := b.NewArray()
	b.Release()
	defer strs.Release()

	nb := array.NewFloat64Builder(mem)
	nb.AppendNull()
	nulls := nb.NewArray()
	nb.Release()
	defer nulls.Release()

	tests := []struct {
		name string
		col  arrow.Array
		want string
	}{
		{"unsupported", strs, "unsupported type"},
		{"nulls", nulls, "holds 1 nulls"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema := arrow.NewSchema([]arrow.Field{{Name: "v", Type: tt.col.DataType(), Nullable: true}}, nil)
			rec := array.NewRecord(schema, []arrow.Array{tt.col}, 1)
			defer rec.Release()
			err := cfio.NewCSVWriter(io.Discard, cfio.DefaultCSVOptions()).WriteRecord(rec)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
