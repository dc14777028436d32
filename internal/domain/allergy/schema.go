// Package allergy migrates allergies and intolerances as FHIR
// AllergyIntolerances coded with FDB.
package allergy

import (
	"errors"
	"strings"

	"github.com/ehr/migrate/internal/source"
	"github.com/ehr/migrate/internal/validate"
)

const Resource = "allergy"

// Export columns.
const (
	ColClinicalStatus   = "Clinical Status"
	ColType             = "Type"
	ColFDBCode          = "FDB Code"
	ColName             = "Name"
	ColOnsetDate        = "Onset Date"
	ColNote             = "Free Text Note"
	ColReaction         = "Reaction"
	ColRecordedProvider = "Recorded Provider"
	ColSeverity         = "Severity"
	ColOriginalName     = "Original Name"
)

// CodeMapAllergy maps "<Name>|<FDB Code>" or a bare FDB code to the target
// allergen coding.
const CodeMapAllergy = "allergy"

// codeSeparator joins several FDB codes in one export cell.
const codeSeparator = "```"

var errMultipleCodes = errors.New("FDB Code holds more than one code, export one row per code")

// Schema returns the allergy export schema.
func Schema() *validate.Schema {
	return &validate.Schema{
		Resource: Resource,
		Headers: []string{
			validate.ColumnID, validate.ColumnPatient, ColClinicalStatus, ColType, ColFDBCode, ColName,
			ColOnsetDate, ColNote, ColReaction, ColRecordedProvider, ColSeverity, ColOriginalName,
		},
		Fields: []validate.Field{
			{Name: validate.ColumnID, Validators: []validate.Func{validate.Required}},
			{Name: validate.ColumnPatient, Validators: []validate.Func{validate.Required}},
			{Name: ColClinicalStatus, Validators: []validate.Func{validate.Required, validate.Enum("active", "inactive")}},
			{Name: ColType, Validators: []validate.Func{validate.Required, validate.Enum("allergy", "intolerance")}},
			{Name: ColFDBCode, Validators: []validate.Func{validate.Required}},
			{Name: ColName, Validators: []validate.Func{validate.Required}},
			{Name: ColOnsetDate, Validators: []validate.Func{validate.Date}},
			{Name: ColSeverity, Validators: []validate.Func{validate.Enum("mild", "moderate", "severe")}},
		},
		Rules: []validate.RowRule{singleCode},
	}
}

func singleCode(row source.Row) error {
	if strings.Contains(row[ColFDBCode], codeSeparator) {
		return errMultipleCodes
	}
	return nil
}
