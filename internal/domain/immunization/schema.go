// Package immunization migrates immunization history as FHIR Immunizations.
package immunization

import (
	"github.com/ehr/migrate/internal/validate"
)

const Resource = "immunization"

// Export columns.
const (
	ColText          = "Immunization Text"
	ColCVXCode       = "CVX Code"
	ColDatePerformed = "Date Performed"
	ColComment       = "Comment"
)

// Schema returns the immunization export schema.
func Schema() *validate.Schema {
	return &validate.Schema{
		Resource: Resource,
		Headers: []string{
			validate.ColumnID, validate.ColumnPatient, ColDatePerformed, ColText, ColCVXCode, ColComment,
		},
		Fields: []validate.Field{
			{Name: validate.ColumnID, Validators: []validate.Func{validate.Required}},
			{Name: validate.ColumnPatient, Validators: []validate.Func{validate.Required}},
			{Name: ColDatePerformed, Validators: []validate.Func{validate.Required, validate.Date}},
			{Name: ColText, Validators: []validate.Func{validate.Required}},
		},
	}
}
