// Package condition migrates problem list entries as FHIR Conditions coded
// with ICD-10.
package condition

import (
	"fmt"
	"strings"

	"github.com/ehr/migrate/internal/source"
	"github.com/ehr/migrate/internal/validate"
)

const Resource = "condition"

// Export columns.
const (
	ColClinicalStatus   = "Clinical Status"
	ColICD10Code        = "ICD-10 Code"
	ColOnsetDate        = "Onset Date"
	ColResolvedDate     = "Resolved Date"
	ColNotes            = "Free text notes"
	ColRecordedProvider = "Recorded Provider"
	ColName             = "Name"

	// ColICD10Display is added during validation.
	ColICD10Display = "ICD-10 Display"
)

// CodeMapICD10 is the code map of ICD-10 display names, keyed by code
// without punctuation.
const CodeMapICD10 = "icd10"

// DisplayLookup returns the display name of an ICD-10 code.
type DisplayLookup func(code string) (string, bool)

// NormalizeICD10 strips the dot and dash separators from code.
func NormalizeICD10(code string) string {
	return strings.NewReplacer(".", "", "-", "").Replace(strings.TrimSpace(code))
}

// Schema returns the condition export schema. When lookup is nil the
// display falls back to the Name column.
func Schema(lookup DisplayLookup) *validate.Schema {
	s := &validate.Schema{
		Resource: Resource,
		Headers: []string{
			validate.ColumnID, validate.ColumnPatient, ColClinicalStatus, ColICD10Code,
			ColOnsetDate, ColNotes, ColResolvedDate, ColRecordedProvider, ColName,
		},
		Fields: []validate.Field{
			{Name: validate.ColumnID, Validators: []validate.Func{validate.Required}},
			{Name: validate.ColumnPatient, Validators: []validate.Func{validate.Required}},
			{Name: ColICD10Code, Validators: []validate.Func{validate.Required}},
			{Name: ColOnsetDate, Validators: []validate.Func{validate.Date}},
			{Name: ColResolvedDate, Validators: []validate.Func{validate.Date}},
			{Name: ColClinicalStatus, Validators: []validate.Func{validate.Required, validate.Enum("active", "resolved")}},
		},
	}
	if lookup != nil {
		s.Rules = append(s.Rules, icd10Display(lookup))
	}
	return s
}

func icd10Display(lookup DisplayLookup) validate.RowRule {
	return func(row source.Row) error {
		code := NormalizeICD10(row[ColICD10Code])
		if code == "" {
			return nil
		}
		display, ok := lookup(code)
		if !ok {
			return fmt.Errorf("display lookup for ICD-10 %s|%s not found", row.Get(ColName), code)
		}
		row[ColICD10Display] = display
		return nil
	}
}
