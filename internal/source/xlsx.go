package source

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// NewXLSXReader reads sheet (the first sheet when empty) of a workbook. The
// first non-blank row is the header.
func NewXLSXReader(r io.Reader, sheet string) (Reader, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("excel file has no sheets")
		}
		sheet = sheets[0]
	}

	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	var (
		header []string
		rows   []Row
	)
	for _, record := range records {
		if isBlank(record) {
			continue
		}
		if header == nil {
			header = cleanHeader(record)
			continue
		}
		rows = append(rows, rowFromRecord(header, record))
	}
	if header == nil {
		return nil, errors.New("no header row found")
	}
	return NewSliceReader(header, rows), nil
}
