package load

import (
	"context"

	"github.com/ehr/migrate/internal/resolve"
	"github.com/ehr/migrate/internal/validate"
)

// Request is a create call built from one validated row.
type Request struct {
	ResourceType    string
	Payload         interface{}
	TargetPatientID string
	// Extra is appended to the done journal line.
	Extra []string
	// FollowUp runs after a successful create. Its failure is journaled
	// separately and leaves the row done.
	FollowUp func(ctx context.Context, targetID string) error
}

// Builder turns a validated row into a Request. Errors are classified with
// Classify.
type Builder interface {
	Build(ctx context.Context, row validate.ValidatedRow) (*Request, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context, row validate.ValidatedRow) (*Request, error)

func (f BuilderFunc) Build(ctx context.Context, row validate.ValidatedRow) (*Request, error) {
	return f(ctx, row)
}

// Resolver is the lookup surface builders depend on; *resolve.Resolver
// implements it.
type Resolver interface {
	Patient(sourceID string) (string, error)
	Provider(sourceID string) (string, error)
	Location(sourceID string) (string, error)
	Code(name string, candidates ...string) resolve.CodeResult
	CompanionNote(ctx context.Context, patientKey string, create func(context.Context) (string, error)) (string, error)
}

// Creator creates resources on the target system.
type Creator interface {
	Create(ctx context.Context, resourceType string, payload interface{}) (string, error)
}
