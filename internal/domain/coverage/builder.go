package coverage

import (
	"context"

	"github.com/ehr/migrate/internal/load"
	"github.com/ehr/migrate/internal/validate"
)

// Builder builds Coverage creates.
type Builder struct {
	resolver load.Resolver
	mapped   bool
}

// NewBuilder returns a Builder. When mapped is false payor ids are sent as
// exported.
func NewBuilder(resolver load.Resolver, mapped bool) *Builder {
	return &Builder{resolver: resolver, mapped: mapped}
}

func (b *Builder) Build(ctx context.Context, row validate.ValidatedRow) (*load.Request, error) {
	rec := FromRow(row)

	patientKey, err := b.resolver.Patient(rec.PatientID)
	if err != nil {
		return nil, err
	}
	subscriberKey := patientKey
	if rec.Subscriber != "" && rec.Subscriber != rec.PatientID {
		if subscriberKey, err = b.resolver.Patient(rec.Subscriber); err != nil {
			return nil, err
		}
	}
	payorID, err := b.payor(rec.PayorID)
	if err != nil {
		return nil, err
	}

	return &load.Request{
		ResourceType:    "Coverage",
		Payload:         rec.ToFHIR(patientKey, subscriberKey, payorID),
		TargetPatientID: patientKey,
	}, nil
}

func (b *Builder) payor(id string) (string, error) {
	if !b.mapped {
		return id, nil
	}
	res := b.resolver.Code(CodeMapPayor, id)
	if err := res.Err(CodeMapPayor, id); err != nil {
		return "", err
	}
	return res.Coding.Code, nil
}
