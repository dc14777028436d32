package condition

import (
	"github.com/ehr/migrate/internal/platform/fhir"
	"github.com/ehr/migrate/internal/validate"
	"github.com/ehr/migrate/pkg/fhirmodels"
)

// Record is one validated condition row.
type Record struct {
	SourceID         string
	PatientID        string
	ClinicalStatus   string
	ICD10Code        string
	ICD10Display     string
	Name             string
	OnsetDate        string
	ResolvedDate     string
	Notes            string
	RecordedProvider string
}

// FromRow reads the normalized columns of row.
func FromRow(row validate.ValidatedRow) Record {
	return Record{
		SourceID:         row.SourceID,
		PatientID:        row.PatientID,
		ClinicalStatus:   row.Get(ColClinicalStatus),
		ICD10Code:        row.Get(ColICD10Code),
		ICD10Display:     row.Get(ColICD10Display),
		Name:             row.Get(ColName),
		OnsetDate:        row.Get(ColOnsetDate),
		ResolvedDate:     row.Get(ColResolvedDate),
		Notes:            row.Get(ColNotes),
		RecordedProvider: row.Get(ColRecordedProvider),
	}
}

// ToFHIR renders the Condition create payload.
func (r Record) ToFHIR(patientKey, practitionerKey, noteID string) map[string]interface{} {
	display := r.ICD10Display
	if display == "" {
		display = r.Name
	}
	result := map[string]interface{}{
		"resourceType": "Condition",
		"extension":    []fhir.Extension{fhir.NoteExtension(fhirmodels.ExtensionNoteID, noteID)},
		"clinicalStatus": fhir.CodeableConcept{
			Coding: []fhir.Coding{{
				System: fhirmodels.SystemConditionClinical,
				Code:   r.ClinicalStatus,
			}},
		},
		"category": []fhir.CodeableConcept{{
			Coding: []fhir.Coding{{
				System:  fhirmodels.SystemConditionCategory,
				Code:    "encounter-diagnosis",
				Display: "Encounter Diagnosis",
			}},
		}},
		"code": fhir.CodeableConcept{
			Coding: []fhir.Coding{{
				System:  fhirmodels.SystemICD10CM,
				Code:    r.ICD10Code,
				Display: display,
			}},
		},
		"subject": fhir.NewReference("Patient", patientKey),
	}
	if r.OnsetDate != "" {
		result["onsetDateTime"] = r.OnsetDate
	}
	if r.ResolvedDate != "" {
		result["abatementDateTime"] = r.ResolvedDate
	}
	if r.Notes != "" {
		result["note"] = []fhir.Annotation{{Text: r.Notes}}
	}
	if practitionerKey != "" {
		result["recorder"] = fhir.NewReference("Practitioner", practitionerKey)
	}
	return result
}
