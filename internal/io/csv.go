package io

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"

	cferrors "github.com/paveg/colflow/internal/errors"
	"github.com/paveg/colflow/internal/frame"
)

// Read reads CSV data and returns a frame. An empty input yields a frame
// without columns.
func (r *CSVReader) Read() (*frame.Frame, error) {
	csvReader := csv.NewReader(r.reader)
	csvReader.Comma = r.options.Delimiter
	csvReader.Comment = r.options.Comment
	csvReader.TrimLeadingSpace = r.options.SkipInitialSpace

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading CSV: %w", err)
	}
	if len(records) == 0 {
		return frame.New()
	}

	var headers []string
	dataRows := records
	if r.options.Header {
		headers, dataRows = records[0], records[1:]
	} else {
		headers = make([]string, len(records[0]))
		for i := range headers {
			headers[i] = fmt.Sprintf("column_%d", i)
		}
	}

	columns := make([]*frame.Column, len(headers))
	for i, header := range headers {
		values := make([]int64, len(dataRows))
		for j, row := range dataRows {
			v, err := strconv.ParseInt(strings.TrimSpace(row[i]), 10, 64)
			if err != nil {
				return nil, cferrors.NewInvalidInputError("read_csv",
					fmt.Sprintf("column %q row %d: %q is not an int64", header, j, row[i]))
			}
			values[j] = v
		}
		columns[i] = frame.NewColumn(header, values, r.mem)
	}
	return frame.New(columns...)
}

// Write writes the frame as CSV
func (w *CSVWriter) Write(f *frame.Frame) error {
	rec := f.ToRecord()
	defer rec.Release()
	return w.WriteRecord(rec)
}

// WriteRecord writes rec as CSV, one line per row. Columns must be integer
// or floating point arrays without nulls.
func (w *CSVWriter) WriteRecord(rec arrow.Record) error {
	csvWriter := csv.NewWriter(w.writer)
	csvWriter.Comma = w.options.Delimiter

	if w.options.Header {
		names := make([]string, rec.NumCols())
		for i, f := range rec.Schema().Fields() {
			names[i] = f.Name
		}
		if err := csvWriter.Write(names); err != nil {
			return fmt.Errorf("writing headers: %w", err)
		}
	}

	cols := rec.Columns()
	for i, col := range cols {
		if col.NullN() > 0 {
			return cferrors.NewInvalidInputError("write_csv",
				fmt.Sprintf("column %q holds %d nulls", rec.ColumnName(i), col.NullN()))
		}
	}
	line := make([]string, len(cols))
	for r := range int(rec.NumRows()) {
		for c, col := range cols {
			cell, err := formatCell(col, r)
			if err != nil {
				return err
			}
			line[c] = cell
		}
		if err := csvWriter.Write(line); err != nil {
			return fmt.Errorf("writing row %d: %w", r, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

func formatCell(col arrow.Array, row int) (string, error) {
	switch arr := col.(type) {
	case *array.Int64:
		return strconv.FormatInt(arr.Value(row), 10), nil
	case *array.Int32:
		return strconv.FormatInt(int64(arr.Value(row)), 10), nil
	case *array.Uint64:
		return strconv.FormatUint(arr.Value(row), 10), nil
	case *array.Float64:
		return strconv.FormatFloat(arr.Value(row), 'g', -1, 64), nil
	case *array.Float32:
		return strconv.FormatFloat(float64(arr.Value(row)), 'g', -1, 32), nil
	default:
		return "", cferrors.NewUnsupportedTypeError("write_csv", col.DataType().String())
	}
}
