// Package validate applies declarative per-column validation to raw source
// rows, splitting them into normalized rows and a per-row error report.
package validate

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ehr/migrate/internal/source"
)

// ErrMissingHeaders means the input lacks required columns. It aborts the
// whole run before any row is read.
var ErrMissingHeaders = errors.New("incorrect headers")

// Column names every schema keys rows by.
const (
	ColumnID      = "ID"
	ColumnPatient = "Patient Identifier"
)

// Field binds an ordered validator chain to a column.
type Field struct {
	Name       string
	Validators []Func
}

// RowRule checks a whole row after its fields have been normalized. It may
// add derived columns to row. A non-nil error is reported against the row.
type RowRule func(row source.Row) error

// Schema is the validation contract of one resource export.
type Schema struct {
	Resource string
	Headers  []string
	Fields   []Field
	Rules    []RowRule
}

// ValidatedRow is a row that passed every validator.
type ValidatedRow struct {
	// Key is "<ID> <Patient Identifier>", the key of the validation report.
	Key       string
	SourceID  string
	PatientID string
	Values    source.Row
}

// Get returns the trimmed normalized value of column.
func (v ValidatedRow) Get(column string) string {
	return v.Values.Get(column)
}

// RowKey builds the report key of row.
func RowKey(row source.Row) string {
	return row.Get(ColumnID) + " " + row.Get(ColumnPatient)
}

// CheckHeader fails with ErrMissingHeaders when header is not a superset of
// the schema's required headers.
func (s *Schema) CheckHeader(header []string) error {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	var missing []string
	for _, h := range s.Headers {
		if !present[h] {
			missing = append(missing, h)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s from the supplied file with headers [%s]",
			ErrMissingHeaders, strings.Join(missing, ", "), strings.Join(header, ", "))
	}
	return nil
}

// ValidateRow normalizes one row. Within a field the chain stops at the
// first failure; every field and rule is still evaluated so that a row
// reports all of its problems.
func (s *Schema) ValidateRow(row source.Row) (ValidatedRow, []string) {
	values := make(source.Row, len(row))
	for k, v := range row {
		values[k] = v
	}

	var errs []string
	for _, f := range s.Fields {
		value := strings.TrimSpace(values[f.Name])
		failed := false
		for _, fn := range f.Validators {
			normalized, err := fn(value, f.Name)
			if err != nil {
				errs = append(errs, err.Error())
				failed = true
				break
			}
			value = normalized
		}
		if !failed {
			values[f.Name] = value
		}
	}
	for _, rule := range s.Rules {
		if err := rule(values); err != nil {
			errs = append(errs, err.Error())
		}
	}

	return ValidatedRow{
		Key:       RowKey(row),
		SourceID:  row.Get(ColumnID),
		PatientID: row.Get(ColumnPatient),
		Values:    values,
	}, errs
}

// Validate checks the header and then every row of r. A header failure is
// returned before any row is read; read errors abort the pass. Row level
// failures are collected in the Report.
func (s *Schema) Validate(r source.Reader) (*Report, error) {
	if err := s.CheckHeader(r.Header()); err != nil {
		return nil, err
	}

	report := newReport(s.Resource)
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return report, nil
		}
		if err != nil {
			return nil, fmt.Errorf("validate %s: %w", s.Resource, err)
		}
		report.Total++

		vr, errs := s.ValidateRow(row)
		if len(errs) > 0 {
			report.Errors[vr.Key] = append(report.Errors[vr.Key], errs...)
			report.Rejected++
			continue
		}
		report.Rows = append(report.Rows, vr)
	}
}
