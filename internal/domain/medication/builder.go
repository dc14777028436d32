package medication

import (
	"context"

	"github.com/ehr/migrate/internal/domain/historical"
	"github.com/ehr/migrate/internal/load"
	"github.com/ehr/migrate/internal/platform/fhir"
	"github.com/ehr/migrate/internal/resolve"
	"github.com/ehr/migrate/internal/validate"
	"github.com/ehr/migrate/pkg/fhirmodels"
)

// Builder builds MedicationStatement creates.
type Builder struct {
	resolver load.Resolver
	notes    *historical.Notes
	mapped   bool
}

// NewBuilder returns a Builder. When mapped is false the export code is
// sent as an RxNorm coding.
func NewBuilder(resolver load.Resolver, notes *historical.Notes, mapped bool) *Builder {
	return &Builder{resolver: resolver, notes: notes, mapped: mapped}
}

func (b *Builder) Build(ctx context.Context, row validate.ValidatedRow) (*load.Request, error) {
	rec := FromRow(row)

	patientKey, err := b.resolver.Patient(rec.PatientID)
	if err != nil {
		return nil, err
	}
	coding, err := b.medication(rec)
	if err != nil {
		return nil, err
	}
	noteID, err := b.notes.For(ctx, row, patientKey)
	if err != nil {
		return nil, err
	}

	return &load.Request{
		ResourceType:    "MedicationStatement",
		Payload:         rec.ToFHIR(coding, patientKey, noteID),
		TargetPatientID: patientKey,
		Extra:           []string{coding.System + "|" + coding.Code},
	}, nil
}

func (b *Builder) medication(rec Record) (fhir.Coding, error) {
	if !b.mapped {
		return fhir.Coding{System: fhirmodels.SystemRxNorm, Code: rec.Code, Display: rec.displayName()}, nil
	}

	candidates := []string{rec.Code + "|" + rec.Name, rec.Code}
	if rec.OriginalCode != "" {
		candidates = append(candidates, rec.OriginalCode)
	}
	if rec.Name != "" {
		candidates = append(candidates, rec.Name)
	}
	res := b.resolver.Code(CodeMapMedication, candidates...)
	if err := res.Err(CodeMapMedication, rec.Code, rec.Name); err != nil {
		return fhir.Coding{}, err
	}
	coding := res.Coding
	if res.Status == resolve.CodeUnstructured || coding.Display == "" {
		coding.Display = rec.displayName()
	}
	return coding, nil
}
