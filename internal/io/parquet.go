package io

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	cferrors "github.com/paveg/colflow/internal/errors"
	"github.com/paveg/colflow/internal/frame"
)

// Read reads Parquet data and returns a frame. Every column must be an int64
// column without nulls.
func (r *ParquetReader) Read() (*frame.Frame, error) {
	data, err := io.ReadAll(r.reader)
	if err != nil {
		return nil, fmt.Errorf("reading data: %w", err)
	}

	pqReader, err := file.NewParquetReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating parquet file reader: %w", err)
	}
	defer pqReader.Close()

	arrowReader, err := pqarrow.NewFileReader(pqReader, pqarrow.ArrowReadProperties{}, r.mem)
	if err != nil {
		return nil, fmt.Errorf("creating arrow file reader: %w", err)
	}

	table, err := arrowReader.ReadTable(context.Background())
	if err != nil {
		return nil, fmt.Errorf("reading table: %w", err)
	}
	defer table.Release()

	columns := make([]*frame.Column, table.NumCols())
	for i := range columns {
		col := table.Column(i)
		values, err := int64Values(col)
		if err != nil {
			return nil, err
		}
		columns[i] = frame.NewColumn(col.Name(), values, r.mem)
	}
	return frame.New(columns...)
}

func int64Values(col *arrow.Column) ([]int64, error) {
	if col.DataType().ID() != arrow.INT64 {
		return nil, cferrors.NewUnsupportedTypeError("read_parquet", col.DataType().String())
	}
	out := make([]int64, 0, col.Len())
	for _, chunk := range col.Data().Chunks() {
		ints := chunk.(*array.Int64)
		if ints.NullN() > 0 {
			return nil, cferrors.NewInvalidInputError("read_parquet",
				fmt.Sprintf("column %q holds %d nulls", col.Name(), ints.NullN()))
		}
		out = append(out, ints.Int64Values()...)
	}
	return out, nil
}

func codec(name string) (compress.Compression, error) {
	switch name {
	case "snappy", "":
		return compress.Codecs.Snappy, nil
	case "gzip":
		return compress.Codecs.Gzip, nil
	case "lz4":
		return compress.Codecs.Lz4Raw, nil
	case "zstd":
		return compress.Codecs.Zstd, nil
	case "uncompressed":
		return compress.Codecs.Uncompressed, nil
	default:
		return compress.Codecs.Uncompressed, cferrors.NewUnsupportedTypeError("write_parquet", "compression "+name)
	}
}

// Write writes the frame as one Parquet file.
func (w *ParquetWriter) Write(f *frame.Frame) error {
	record := f.ToRecord()
	defer record.Release()
	return w.WriteRecord(record)
}

// WriteRecord writes rec as one Parquet file. Any arrow schema is accepted.
func (w *ParquetWriter) WriteRecord(record arrow.Record) error {
	compression, err := codec(w.options.Compression)
	if err != nil {
		return err
	}

	props := parquet.NewWriterProperties(
		parquet.WithCompression(compression),
		parquet.WithBatchSize(int64(max(w.options.BatchSize, 1))),
	)
	writer, err := pqarrow.NewFileWriter(record.Schema(), w.writer, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("creating file writer: %w", err)
	}
	if err := writer.Write(record); err != nil {
		writer.Close()
		return fmt.Errorf("writing record: %w", err)
	}
	return writer.Close()
}
