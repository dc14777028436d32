package condition

import (
	"context"

	"github.com/ehr/migrate/internal/domain/historical"
	"github.com/ehr/migrate/internal/load"
	"github.com/ehr/migrate/internal/validate"
)

// MaxNoteLength is the longest free text note the target accepts.
const MaxNoteLength = 1000

// Builder builds Condition creates.
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
	practitionerKey, err := b.resolver.Provider(rec.RecordedProvider)
	if err != nil {
		return nil, err
	}
	if n := len(rec.Notes); n > MaxNoteLength {
		return nil, load.Ignore("notes exceed the character limit: %d > %d", n, MaxNoteLength)
	}
	noteID, err := b.notes.For(ctx, row, patientKey)
	if err != nil {
		return nil, err
	}

	return &load.Request{
		ResourceType:    "Condition",
		Payload:         rec.ToFHIR(patientKey, practitionerKey, noteID),
		TargetPatientID: patientKey,
		Extra:           []string{rec.ICD10Code},
	}, nil
}
