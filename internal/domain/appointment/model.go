package appointment

import (
	"github.com/ehr/migrate/internal/platform/fhir"
	"github.com/ehr/migrate/internal/validate"
	"github.com/ehr/migrate/pkg/fhirmodels"
)

const meetingEndpointID = "appointment-meeting-endpoint"

// Record is one validated appointment row.
type Record struct {
	SourceID   string
	PatientID  string
	Type       string
	TypeSystem string
	ReasonCode string
	ReasonText string
	Location   string
	MeetingURL string
	Provider   string
	Start      string
	End        string
	Status     string
}

// FromRow reads the normalized columns of row. Status defaults to fulfilled.
func FromRow(row validate.ValidatedRow) Record {
	r := Record{
		SourceID:   row.SourceID,
		PatientID:  row.PatientID,
		Type:       row.Get(ColType),
		TypeSystem: row.Get(ColTypeSystem),
		ReasonCode: row.Get(ColReasonCode),
		ReasonText: row.Get(ColReasonText),
		Location:   row.Get(ColLocation),
		MeetingURL: row.Get(ColMeetingURL),
		Provider:   row.Get(ColProvider),
		Start:      row.Get(ColStart),
		End:        row.Get(ColEnd),
		Status:     row.Get(ColStatus),
	}
	if r.Status == "" {
		r.Status = fhirmodels.AppointmentFulfilled
	}
	return r
}

// Keys are the resolved target identifiers an appointment refers to.
type Keys struct {
	Patient      string
	Practitioner string
	Location     string
	// Reason is the resolved reason for visit coding, if the row has a code.
	Reason *fhir.Coding
}

func (r Record) reasonCode(reason *fhir.Coding) fhir.CodeableConcept {
	var cc fhir.CodeableConcept
	if reason != nil {
		cc.Coding = []fhir.Coding{*reason}
	}
	cc.Text = r.ReasonText
	if reason == nil && cc.Text == "" {
		cc.Text = "No Reason Given"
	}
	return cc
}

// ToFHIR renders the Appointment create payload. sourceSystem names the
// identifier system of the export ids.
func (r Record) ToFHIR(sourceSystem string, keys Keys) map[string]interface{} {
	typeSystem := r.TypeSystem
	if typeSystem == "" {
		typeSystem = fhirmodels.SystemAppointmentTypeLocal
	}
	typeCode := r.Type
	if typeCode == "" {
		typeCode = sourceSystem + "_historical_note"
	}

	supporting := []fhir.Reference{fhir.NewReference("Location", keys.Location)}
	result := map[string]interface{}{
		"resourceType": "Appointment",
		"identifier":   []fhir.Identifier{{System: sourceSystem, Value: r.SourceID}},
		"status":       r.Status,
		"appointmentType": fhir.CodeableConcept{
			Coding: []fhir.Coding{{System: typeSystem, Code: typeCode}},
		},
		"reasonCode": []fhir.CodeableConcept{r.reasonCode(keys.Reason)},
		"start":      r.Start,
		"end":        r.End,
		"participant": []map[string]interface{}{
			{"actor": fhir.NewReference("Patient", keys.Patient), "status": "accepted"},
			{"actor": fhir.NewReference("Practitioner", keys.Practitioner), "status": "accepted"},
		},
	}
	if r.MeetingURL != "" {
		supporting = append(supporting, fhir.Reference{Reference: "#" + meetingEndpointID, Type: "Endpoint"})
		result["contained"] = []map[string]interface{}{{
			"resourceType":   "Endpoint",
			"id":             meetingEndpointID,
			"address":        r.MeetingURL,
			"status":         "fulfilled",
			"connectionType": fhir.Coding{Code: "https"},
			"payloadType": []fhir.CodeableConcept{{
				Coding: []fhir.Coding{{Code: "video-call"}},
			}},
		}}
	}
	result["supportingInformation"] = supporting
	return result
}
