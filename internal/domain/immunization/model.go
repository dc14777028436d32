package immunization

import (
	"github.com/ehr/migrate/internal/platform/fhir"
	"github.com/ehr/migrate/internal/validate"
	"github.com/ehr/migrate/pkg/fhirmodels"
)

// Record is one validated immunization row.
type Record struct {
	SourceID      string
	PatientID     string
	Text          string
	CVXCode       string
	DatePerformed string
	Comment       string
}

// FromRow reads the normalized columns of row.
func FromRow(row validate.ValidatedRow) Record {
	return Record{
		SourceID:      row.SourceID,
		PatientID:     row.PatientID,
		Text:          row.Get(ColText),
		CVXCode:       row.Get(ColCVXCode),
		DatePerformed: row.Get(ColDatePerformed),
		Comment:       row.Get(ColComment),
	}
}

// VaccineCode is CVX when the export has a code, else unstructured text.
func (r Record) VaccineCode() fhir.Coding {
	if r.CVXCode != "" {
		return fhir.Coding{System: fhirmodels.SystemCVX, Code: r.CVXCode, Display: r.Text}
	}
	return fhir.Coding{System: fhirmodels.SystemUnstructured, Code: "N/A", Display: r.Text}
}

// ToFHIR renders the Immunization create payload. Migrated immunizations are
// historical statements, not administrations recorded by the practice.
func (r Record) ToFHIR(patientKey, noteID string) map[string]interface{} {
	result := map[string]interface{}{
		"resourceType":       "Immunization",
		"extension":          []fhir.Extension{fhir.NoteExtension(fhirmodels.ExtensionNoteID, noteID)},
		"status":             fhirmodels.ImmunizationCompleted,
		"vaccineCode":        fhir.CodeableConcept{Coding: []fhir.Coding{r.VaccineCode()}, Text: r.Text},
		"patient":            fhir.NewReference("Patient", patientKey),
		"occurrenceDateTime": r.DatePerformed,
		"primarySource":      false,
	}
	if r.Comment != "" {
		result["note"] = []fhir.Annotation{{Text: r.Comment}}
	}
	return result
}
