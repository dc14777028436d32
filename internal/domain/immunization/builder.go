package immunization

import (
	"context"

	"github.com/ehr/migrate/internal/domain/historical"
	"github.com/ehr/migrate/internal/load"
	"github.com/ehr/migrate/internal/validate"
)

// Builder builds Immunization creates.
type Builder struct {
	resolver load.Resolver
	notes    *historical.Notes
}

// NewBuilder returns a Builder.
func NewBuilder(resolver load.Resolver, notes *historical.Notes) *Builder {
	return &Builder{resolver: resolver, notes: notes}
}

func (b *Builder) Build(ctx context.Context, row validate.ValidatedRow) (*load.Request, error) {
	rec := FromRow(row)

	patientKey, err := b.resolver.Patient(rec.PatientID)
	if err != nil {
		return nil, err
	}
	noteID, err := b.notes.For(ctx, row, patientKey)
	if err != nil {
		return nil, err
	}
	return &load.Request{
		ResourceType:    "Immunization",
		Payload:         rec.ToFHIR(patientKey, noteID),
		TargetPatientID: patientKey,
		Extra:           []string{rec.VaccineCode().Code},
	}, nil
}
