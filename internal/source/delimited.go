package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

// DelimitedReader streams rows from delimited UTF-8 text.
type DelimitedReader struct {
	csv    *csv.Reader
	closer io.Closer
	header []string
}

// NewDelimitedReader reads the header line immediately. If r is an
// io.Closer it is closed by Close.
func NewDelimitedReader(r io.Reader, delimiter rune) (*DelimitedReader, error) {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = br.Discard(len(byteOrderMark))
	}

	cr := csv.NewReader(br)
	cr.Comma = delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	d := &DelimitedReader{csv: cr}
	if c, ok := r.(io.Closer); ok {
		d.closer = c
	}

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil, errors.New("no header row found")
		}
		if err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		if isBlank(record) {
			continue
		}
		d.header = cleanHeader(record)
		return d, nil
	}
}

func (d *DelimitedReader) Header() []string { return d.header }

func (d *DelimitedReader) Next() (Row, error) {
	for {
		record, err := d.csv.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("read row: %w", err)
		}
		if isBlank(record) {
			continue
		}
		return rowFromRecord(d.header, record), nil
	}
}

func (d *DelimitedReader) Close() error {
	if d.closer != nil {
		return d.closer.Close()
	}
	return nil
}
