package coverage

import (
	"strconv"

	"github.com/ehr/migrate/internal/platform/fhir"
	"github.com/ehr/migrate/internal/validate"
	"github.com/ehr/migrate/pkg/fhirmodels"
)

// Record is one validated coverage row.
type Record struct {
	SourceID     string
	PatientID    string
	Type         string
	Subscriber   string
	MemberID     string
	GroupNumber  string
	PlanName     string
	StartDate    string
	EndDate      string
	PayorID      string
	Order        int
	Relationship string
}

// FromRow reads the normalized columns of row. Relationship defaults to
// self.
func FromRow(row validate.ValidatedRow) Record {
	order, _ := strconv.Atoi(row.Get(ColOrder))
	r := Record{
		SourceID:     row.SourceID,
		PatientID:    row.PatientID,
		Type:         row.Get(ColType),
		Subscriber:   row.Get(ColSubscriber),
		MemberID:     row.Get(ColMemberID),
		GroupNumber:  row.Get(ColGroupNumber),
		PlanName:     row.Get(ColPlanName),
		StartDate:    row.Get(ColStartDate),
		EndDate:      row.Get(ColEndDate),
		PayorID:      row.Get(ColPayorID),
		Order:        order,
		Relationship: row.Get(ColRelationship),
	}
	if r.Relationship == "" {
		r.Relationship = fhirmodels.RelationshipSelf
	}
	return r
}

func coverageClass(code, value string) map[string]interface{} {
	return map[string]interface{}{
		"type":  fhir.CodeableConcept{Coding: []fhir.Coding{{System: fhirmodels.SystemCoverageClass, Code: code}}},
		"value": value,
	}
}

// ToFHIR renders the Coverage create payload.
func (r Record) ToFHIR(patientKey, subscriberKey, payorID string) map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": "Coverage",
		"order":        r.Order,
		"status":       "active",
		"subscriber":   fhir.NewReference("Patient", subscriberKey),
		"subscriberId": r.MemberID,
		"beneficiary":  fhir.NewReference("Patient", patientKey),
		"relationship": fhir.CodeableConcept{
			Coding: []fhir.Coding{{System: fhirmodels.SystemSubscriberRelation, Code: r.Relationship}},
		},
		"payor": []map[string]interface{}{{
			"identifier": fhir.Identifier{System: fhirmodels.SystemPayorERA, Value: payorID},
		}},
	}
	if r.Type != "" {
		result["type"] = fhir.CodeableConcept{Text: r.Type}
	}

	var classes []map[string]interface{}
	if r.PlanName != "" {
		classes = append(classes, coverageClass("plan", r.PlanName))
	}
	if r.GroupNumber != "" {
		classes = append(classes, coverageClass("group", r.GroupNumber))
	}
	if len(classes) > 0 {
		result["class"] = classes
	}
	if r.StartDate != "" || r.EndDate != "" {
		result["period"] = fhir.Period{Start: r.StartDate, End: r.EndDate}
	}
	return result
}
