// Package source reads raw export files into header keyed rows.
package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for file extensions with no reader.
var ErrUnsupportedFormat = errors.New("unsupported source format")

// Row maps a column name to its raw string value.
type Row map[string]string

// Get returns the trimmed value of column.
func (r Row) Get(column string) string {
	return strings.TrimSpace(r[column])
}

// Reader yields rows one at a time. Header is available before the first
// call to Next; Next returns io.EOF once the input is exhausted.
type Reader interface {
	Header() []string
	Next() (Row, error)
	Close() error
}

// Open picks a Reader from the file extension. Delimited text uses delimiter;
// .json expects an array of objects; .xlsx reads the first sheet.
func Open(path string, delimiter rune) (Reader, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".csv", ".txt", ".psv", ".tsv":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		r, err := NewDelimitedReader(f, delimiter)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return r, nil
	case ".json":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r, err := NewJSONReader(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return r, nil
	case ".xlsx":
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r, err := NewXLSXReader(f, "")
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// ReadAll drains r into memory.
func ReadAll(r Reader) ([]Row, error) {
	var rows []Row
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
}

// sliceReader serves rows that were decoded up front.
type sliceReader struct {
	header []string
	rows   []Row
	pos    int
}

func (s *sliceReader) Header() []string { return s.header }

func (s *sliceReader) Next() (Row, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

func (s *sliceReader) Close() error { return nil }

// NewSliceReader returns a Reader over rows already in memory.
func NewSliceReader(header []string, rows []Row) Reader {
	return &sliceReader{header: header, rows: rows}
}

func rowFromRecord(header, record []string) Row {
	row := make(Row, len(header))
	for i, col := range header {
		if i < len(record) {
			row[col] = record[i]
		} else {
			row[col] = ""
		}
	}
	return row
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func cleanHeader(record []string) []string {
	header := make([]string, len(record))
	for i, h := range record {
		header[i] = strings.TrimSpace(h)
	}
	return header
}
