// Package io reads and writes frames as CSV and Parquet.
//
// Every column is int64. Readers reject cells or arrow columns of any other
// type instead of coercing them.
package io

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/paveg/colflow/internal/frame"
)

// DefaultBatchSize is the parquet row group batch size.
const DefaultBatchSize = 1000

// FrameReader reads one frame from a source.
type FrameReader interface {
	Read() (*frame.Frame, error)
}

// FrameWriter writes one frame to a destination.
type FrameWriter interface {
	Write(f *frame.Frame) error
}

// RecordWriter writes an arbitrary numeric arrow record, such as a dense
// matrix converted with ToRecord.
type RecordWriter interface {
	WriteRecord(rec arrow.Record) error
}

// CSVOptions contains configuration options for CSV operations
type CSVOptions struct {
	// Delimiter is the field delimiter (default: comma)
	Delimiter rune
	// Comment is the comment character (default: 0 = disabled)
	Comment rune
	// Header indicates whether the first row contains labels. Without one
	// columns are labelled column_0, column_1, ...
	Header bool
	// SkipInitialSpace indicates whether to skip initial whitespace
	SkipInitialSpace bool
}

// DefaultCSVOptions returns default CSV options
func DefaultCSVOptions() CSVOptions {
	return CSVOptions{
		Delimiter: ',',
		Header:    true,
	}
}

// CSVReader reads CSV data into a frame.
type CSVReader struct {
	reader  io.Reader
	options CSVOptions
	mem     memory.Allocator
}

// NewCSVReader creates a new CSV reader with the specified options
func NewCSVReader(reader io.Reader, options CSVOptions, mem memory.Allocator) *CSVReader {
	return &CSVReader{
		reader:  reader,
		options: options,
		mem:     mem,
	}
}

// CSVWriter writes frames as CSV.
type CSVWriter struct {
	writer  io.Writer
	options CSVOptions
}

// NewCSVWriter creates a new CSV writer with the specified options
func NewCSVWriter(writer io.Writer, options CSVOptions) *CSVWriter {
	return &CSVWriter{
		writer:  writer,
		options: options,
	}
}

// ParquetOptions contains configuration options for Parquet operations
type ParquetOptions struct {
	// Compression is one of snappy, gzip, lz4, zstd or uncompressed.
	Compression string
	// BatchSize for writing operations
	BatchSize int
}

// DefaultParquetOptions returns default Parquet options
func DefaultParquetOptions() ParquetOptions {
	return ParquetOptions{
		Compression: "snappy",
		BatchSize:   DefaultBatchSize,
	}
}

// ParquetReader reads a Parquet file into a frame.
type ParquetReader struct {
	reader io.Reader
	mem    memory.Allocator
}

// NewParquetReader creates a new Parquet reader
func NewParquetReader(reader io.Reader, mem memory.Allocator) *ParquetReader {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	return &ParquetReader{
		reader: reader,
		mem:    mem,
	}
}

// ParquetWriter writes frames as Parquet.
type ParquetWriter struct {
	writer  io.Writer
	options ParquetOptions
}

// NewParquetWriter creates a new Parquet writer with the specified options
func NewParquetWriter(writer io.Writer, options ParquetOptions) *ParquetWriter {
	return &ParquetWriter{
		writer:  writer,
		options: options,
	}
}

func format(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return "csv", nil
	case ".parquet", ".pq":
		return "parquet", nil
	default:
		return "", fmt.Errorf("unsupported frame file format %q", ext)
	}
}

// ReadFile reads the frame stored at path, choosing the format by extension.
func ReadFile(path string, mem memory.Allocator) (*frame.Frame, error) {
	kind, err := format(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r FrameReader = NewCSVReader(f, DefaultCSVOptions(), mem)
	if kind == "parquet" {
		r = NewParquetReader(f, mem)
	}
	fr, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fr, nil
}

// WriteFile writes fr to path, choosing the format by extension.
func WriteFile(path string, fr *frame.Frame) error {
	rec := fr.ToRecord()
	defer rec.Release()
	return WriteRecordFile(path, rec)
}

// WriteRecordFile writes rec to path, choosing the format by extension.
func WriteRecordFile(path string, rec arrow.Record) error {
	kind, err := format(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	var w RecordWriter = NewCSVWriter(f, DefaultCSVOptions())
	if kind == "parquet" {
		w = NewParquetWriter(f, DefaultParquetOptions())
	}
	if err := w.WriteRecord(rec); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	// The parquet writer may already have closed f.
	if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}
