package medication

import (
	"github.com/ehr/migrate/internal/platform/fhir"
	"github.com/ehr/migrate/internal/validate"
	"github.com/ehr/migrate/pkg/fhirmodels"
)

// Record is one validated medication row.
type Record struct {
	SourceID     string
	PatientID    string
	Status       string
	Code         string
	SIG          string
	Name         string
	OriginalCode string
	StartDate    string
	EndDate      string
}

// FromRow reads the normalized columns of row.
func FromRow(row validate.ValidatedRow) Record {
	return Record{
		SourceID:     row.SourceID,
		PatientID:    row.PatientID,
		Status:       row.Get(ColStatus),
		Code:         row.Get(ColCode),
		SIG:          row.Get(ColSIG),
		Name:         row.Get(ColName),
		OriginalCode: row.Get(ColOriginalCode),
		StartDate:    row.Get(ColStartDate),
		EndDate:      row.Get(ColEndDate),
	}
}

// displayName is the best human readable label of the medication.
func (r Record) displayName() string {
	switch {
	case r.Name != "":
		return r.Name
	case r.SIG != "":
		return r.SIG
	}
	return r.Code
}

// ToFHIR renders the MedicationStatement create payload. FDB codings are
// sent as a Medication reference, everything else as a codeable concept.
func (r Record) ToFHIR(coding fhir.Coding, patientKey, noteID string) map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": "MedicationStatement",
		"extension":    []fhir.Extension{fhir.NoteExtension(fhirmodels.ExtensionNoteID, noteID)},
		"status":       r.Status,
		"subject":      fhir.NewReference("Patient", patientKey),
	}
	if coding.System == fhirmodels.SystemFDB {
		result["medicationReference"] = fhir.NewReference("Medication", "fdb-"+coding.Code)
	} else {
		result["medicationCodeableConcept"] = fhir.CodeableConcept{Coding: []fhir.Coding{coding}}
	}
	if r.SIG != "" {
		result["dosage"] = []map[string]string{{"text": r.SIG}}
	}
	if r.StartDate != "" || r.EndDate != "" {
		result["effectivePeriod"] = fhir.Period{Start: r.StartDate, End: r.EndDate}
	}
	return result
}
