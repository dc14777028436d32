// Package coverage migrates insurance policies as FHIR Coverages.
package coverage

import (
	"github.com/ehr/migrate/internal/validate"
)

const Resource = "coverage"

// Export columns. Type, Coverage End Date and Plan Name are optional.
const (
	ColType         = "Type"
	ColSubscriber   = "Subscriber"
	ColMemberID     = "Member ID"
	ColGroupNumber  = "Group Number"
	ColPlanName     = "Plan Name"
	ColStartDate    = "Coverage Start Date"
	ColEndDate      = "Coverage End Date"
	ColPayorID      = "Payor ID"
	ColOrder        = "Order"
	ColRelationship = "Relationship to Subscriber"
)

// CodeMapPayor maps export payor ids to clearinghouse payer ids.
const CodeMapPayor = "payor"

// Schema returns the coverage export schema.
func Schema() *validate.Schema {
	return &validate.Schema{
		Resource: Resource,
		Headers: []string{
			validate.ColumnID, validate.ColumnPatient, ColSubscriber, ColMemberID, ColRelationship,
			ColStartDate, ColPayorID, ColOrder, ColGroupNumber,
		},
		Fields: []validate.Field{
			{Name: validate.ColumnID, Validators: []validate.Func{validate.Required}},
			{Name: validate.ColumnPatient, Validators: []validate.Func{validate.Required}},
			{Name: ColMemberID, Validators: []validate.Func{validate.Required}},
			{Name: ColStartDate, Validators: []validate.Func{validate.Date}},
			{Name: ColEndDate, Validators: []validate.Func{validate.Date}},
			{Name: ColPayorID, Validators: []validate.Func{validate.Required}},
			{Name: ColOrder, Validators: []validate.Func{validate.Required, validate.Enum("1", "2", "3", "4", "5")}},
			{Name: ColRelationship, Validators: []validate.Func{validate.Enum("self", "child", "spouse", "other", "injured")}},
		},
	}
}
