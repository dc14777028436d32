package allergy

import (
	"context"

	"github.com/ehr/migrate/internal/domain/historical"
	"github.com/ehr/migrate/internal/load"
	"github.com/ehr/migrate/internal/platform/fhir"
	"github.com/ehr/migrate/internal/resolve"
	"github.com/ehr/migrate/internal/validate"
	"github.com/ehr/migrate/pkg/fhirmodels"
)

// Builder builds AllergyIntolerance creates.
type Builder struct {
	resolver load.Resolver
	notes    *historical.Notes
	// mapped is set when an allergy code map is loaded; otherwise the export
	// FDB code is sent as is.
	mapped bool
}

// NewBuilder returns a Builder. When mapped is true every allergen goes
// through the CodeMapAllergy code map.
func NewBuilder(resolver load.Resolver, notes *historical.Notes, mapped bool) *Builder {
	return &Builder{resolver: resolver, notes: notes, mapped: mapped}
}

func (b *Builder) Build(ctx context.Context, row validate.ValidatedRow) (*load.Request, error) {
	rec := FromRow(row)

	patientKey, err := b.resolver.Patient(rec.PatientID)
	if err != nil {
		return nil, err
	}
	practitionerKey, err := b.resolver.Provider(rec.RecordedProvider)
	if err != nil {
		return nil, err
	}
	coding, err := b.allergen(rec)
	if err != nil {
		return nil, err
	}
	noteID, err := b.notes.For(ctx, row, patientKey)
	if err != nil {
		return nil, err
	}

	return &load.Request{
		ResourceType:    "AllergyIntolerance",
		Payload:         rec.ToFHIR(coding, patientKey, practitionerKey, noteID),
		TargetPatientID: patientKey,
		Extra:           []string{coding.Code},
	}, nil
}

// allergen resolves the FDB coding of rec. Allergens with no structured
// equivalent become the "no allergy information" concept; the export name
// is kept in the notes.
func (b *Builder) allergen(rec Record) (fhir.Coding, error) {
	coding := fhir.Coding{System: fhirmodels.SystemFDB, Code: rec.FDBCode}
	if b.mapped {
		key := rec.Name + "|" + rec.FDBCode
		res := b.resolver.Code(CodeMapAllergy, key, rec.FDBCode)
		if err := res.Err(CodeMapAllergy, key); err != nil {
			return fhir.Coding{}, err
		}
		if res.Status == resolve.CodeUnstructured {
			coding.Code = fhirmodels.FDBNoAllergyInfoCode
		} else {
			coding = res.Coding
		}
	}
	switch {
	case coding.Code == fhirmodels.FDBNoAllergyInfoCode:
		coding.System = fhirmodels.SystemFDB
		coding.Display = fhirmodels.FDBNoAllergyInfoDisplay
	case coding.Display == "":
		coding.Display = rec.Name
	}
	return coding, nil
}
