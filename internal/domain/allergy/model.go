package allergy

import (
	"github.com/ehr/migrate/internal/platform/fhir"
	"github.com/ehr/migrate/internal/validate"
	"github.com/ehr/migrate/pkg/fhirmodels"
)

// Record is one validated allergy row.
type Record struct {
	SourceID         string
	PatientID        string
	ClinicalStatus   string
	Type             string
	FDBCode          string
	Name             string
	OnsetDate        string
	Note             string
	Reaction         string
	RecordedProvider string
	Severity         string
	OriginalName     string
}

// FromRow reads the normalized columns of row.
func FromRow(row validate.ValidatedRow) Record {
	return Record{
		SourceID:         row.SourceID,
		PatientID:        row.PatientID,
		ClinicalStatus:   row.Get(ColClinicalStatus),
		Type:             row.Get(ColType),
		FDBCode:          row.Get(ColFDBCode),
		Name:             row.Get(ColName),
		OnsetDate:        row.Get(ColOnsetDate),
		Note:             row.Get(ColNote),
		Reaction:         row.Get(ColReaction),
		RecordedProvider: row.Get(ColRecordedProvider),
		Severity:         row.Get(ColSeverity),
		OriginalName:     row.Get(ColOriginalName),
	}
}

// notes lists the original name, the reaction and the free text note, in
// that order, skipping empty ones.
func (r Record) notes() []fhir.Annotation {
	var out []fhir.Annotation
	if r.OriginalName != "" {
		out = append(out, fhir.Annotation{Text: r.OriginalName})
	}
	if r.Reaction != "" {
		out = append(out, fhir.Annotation{Text: r.Reaction})
	}
	if r.Note != "" {
		out = append(out, fhir.Annotation{Text: "Notes: " + r.Note})
	}
	return out
}

// ToFHIR renders the AllergyIntolerance create payload for the resolved
// allergen coding.
func (r Record) ToFHIR(coding fhir.Coding, patientKey, practitionerKey, noteID string) map[string]interface{} {
	result := map[string]interface{}{
		"resourceType": "AllergyIntolerance",
		"extension":    []fhir.Extension{fhir.NoteExtension(fhirmodels.ExtensionNoteID, noteID)},
		"clinicalStatus": fhir.CodeableConcept{
			Coding: []fhir.Coding{{System: fhirmodels.SystemAllergyClinical, Code: r.ClinicalStatus}},
		},
		"verificationStatus": fhir.CodeableConcept{
			Coding: []fhir.Coding{{
				System:  fhirmodels.SystemAllergyVerification,
				Code:    "confirmed",
				Display: "Confirmed",
			}},
			Text: "Confirmed",
		},
		"type":    r.Type,
		"code":    fhir.CodeableConcept{Coding: []fhir.Coding{coding}},
		"patient": fhir.NewReference("Patient", patientKey),
	}
	if notes := r.notes(); len(notes) > 0 {
		result["note"] = notes
	}
	if r.OnsetDate != "" {
		result["onsetDateTime"] = r.OnsetDate
	}
	if practitionerKey != "" {
		result["recorder"] = fhir.NewReference("Practitioner", practitionerKey)
	}
	if r.Severity != "" {
		result["reaction"] = []map[string]interface{}{{
			"manifestation": []fhir.CodeableConcept{{
				Coding: []fhir.Coding{{
					System:  fhirmodels.SystemDataAbsentReason,
					Code:    "unknown",
					Display: "Unknown",
				}},
				Text: "Unknown",
			}},
			"severity": r.Severity,
		}}
	}
	return result
}
