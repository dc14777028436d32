package appointment

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/ehr/migrate/internal/load"
	"github.com/ehr/migrate/internal/platform/fhir"
	"github.com/ehr/migrate/internal/validate"
	"github.com/ehr/migrate/pkg/fhirmodels"
)

// Remote is the part of the FHIR client appointments need besides create.
// *fhir.Client implements it.
type Remote interface {
	Search(ctx context.Context, resourceType string, params url.Values) (*fhir.Bundle, error)
	NoteIDForResource(ctx context.Context, resourceType, id string) (string, error)
	CheckInAndLock(ctx context.Context, noteKey string) error
}

// Option configures a Builder.
type Option func(*Builder)

// WithCutoff ignores appointments that start after t.
func WithCutoff(t time.Time) Option {
	return func(b *Builder) { b.cutoff = t }
}

// WithReasonMap resolves reason for visit codes through the CodeMapReason
// code map instead of sending them with the local system.
func WithReasonMap() Option {
	return func(b *Builder) { b.reasonMapped = true }
}

// WithDuplicateCheck searches for an existing appointment of the same
// patient and start before creating one.
func WithDuplicateCheck(enabled bool) Option {
	return func(b *Builder) { b.checkDuplicates = enabled }
}

// Builder builds Appointment creates.
type Builder struct {
	resolver     load.Resolver
	remote       Remote
	sourceSystem string

	cutoff          time.Time
	reasonMapped    bool
	checkDuplicates bool
}

// NewBuilder returns a Builder. sourceSystem is the identifier system the
// export ids are recorded under.
func NewBuilder(resolver load.Resolver, remote Remote, sourceSystem string, opts ...Option) *Builder {
	b := &Builder{resolver: resolver, remote: remote, sourceSystem: sourceSystem, checkDuplicates: true}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Builder) Build(ctx context.Context, row validate.ValidatedRow) (*load.Request, error) {
	rec := FromRow(row)

	start, err := time.Parse(validate.ISO8601, rec.Start)
	if err != nil {
		return nil, fmt.Errorf("parse start %q: %w", rec.Start, err)
	}
	if !b.cutoff.IsZero() && start.After(b.cutoff) {
		return nil, load.Ignore("start time %s is after the cut-off %s", rec.Start, b.cutoff.Format(validate.ISO8601))
	}

	var keys Keys
	if keys.Patient, err = b.resolver.Patient(rec.PatientID); err != nil {
		return nil, err
	}
	if keys.Practitioner, err = b.resolver.Provider(rec.Provider); err != nil {
		return nil, err
	}
	if keys.Location, err = b.resolver.Location(rec.Location); err != nil {
		return nil, err
	}
	if keys.Reason, err = b.reason(rec); err != nil {
		return nil, err
	}

	if b.checkDuplicates {
		if err := b.duplicate(ctx, keys.Patient, rec.Start); err != nil {
			return nil, err
		}
	}

	req := &load.Request{
		ResourceType:    "Appointment",
		Payload:         rec.ToFHIR(b.sourceSystem, keys),
		TargetPatientID: keys.Patient,
	}
	if rec.Status == fhirmodels.AppointmentFulfilled {
		req.FollowUp = b.lockNote
	}
	return req, nil
}

func (b *Builder) reason(rec Record) (*fhir.Coding, error) {
	if rec.ReasonCode == "" {
		return nil, nil
	}
	if !b.reasonMapped {
		return &fhir.Coding{System: fhirmodels.SystemAppointmentTypeLocal, Code: rec.ReasonCode}, nil
	}
	res := b.resolver.Code(CodeMapReason, rec.ReasonCode)
	if err := res.Err(CodeMapReason, rec.ReasonCode); err != nil {
		return nil, err
	}
	return &res.Coding, nil
}

// duplicate returns an ignore error when the patient already has an
// appointment at start.
func (b *Builder) duplicate(ctx context.Context, patientKey, start string) error {
	params := url.Values{}
	params.Set("patient", fhir.FormatReference("Patient", patientKey))
	params.Set("date", "eq"+start)
	bundle, err := b.remote.Search(ctx, "Appointment", params)
	if err != nil {
		return fmt.Errorf("search existing appointments: %w", err)
	}
	if bundle.TotalOrLen() > 0 {
		return load.Ignore("appointment already exists for patient %s at %s", patientKey, start)
	}
	return nil
}

// lockNote checks in and locks the note of a historical appointment.
func (b *Builder) lockNote(ctx context.Context, targetID string) error {
	noteID, err := b.remote.NoteIDForResource(ctx, "Appointment", targetID)
	if err != nil {
		return err
	}
	return b.remote.CheckInAndLock(ctx, noteID)
}
