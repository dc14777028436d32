// Package medication migrates medication list entries as FHIR
// MedicationStatements.
package medication

import (
	"github.com/ehr/migrate/internal/validate"
)

const Resource = "medication"

// Export columns. Name, OriginalCode, StartDate and EndDate are optional.
const (
	ColStatus       = "Status"
	ColCode         = "RxNorm/FDB Code"
	ColSIG          = "SIG"
	ColName         = "Medication Name"
	ColOriginalCode = "Original Code"
	ColStartDate    = "Start Date"
	ColEndDate      = "End Date"
)

// CodeMapMedication maps "<code>|<name>", a bare code or a bare name to the
// target medication coding.
const CodeMapMedication = "medication"

// Schema returns the medication export schema.
func Schema() *validate.Schema {
	return &validate.Schema{
		Resource: Resource,
		Headers:  []string{validate.ColumnID, validate.ColumnPatient, ColStatus, ColCode, ColSIG},
		Fields: []validate.Field{
			{Name: validate.ColumnID, Validators: []validate.Func{validate.Required}},
			{Name: validate.ColumnPatient, Validators: []validate.Func{validate.Required}},
			{Name: ColStatus, Validators: []validate.Func{validate.Required, validate.Enum("active", "stopped")}},
			{Name: ColCode, Validators: []validate.Func{validate.Required}},
			{Name: ColStartDate, Validators: []validate.Func{validate.Date}},
			{Name: ColEndDate, Validators: []validate.Func{validate.Date}},
		},
	}
}
