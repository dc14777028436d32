package load

import (
	"errors"
	"fmt"

	"github.com/ehr/migrate/internal/resolve"
)

// Outcome is what happened to one row in a load run.
type Outcome int

const (
	OutcomeDone Outcome = iota
	OutcomeIgnored
	OutcomeErrored
	// OutcomeSkipped rows were done or ignored by an earlier run, or repeat a
	// row earlier in this batch. Nothing is called or journaled.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDone:
		return "done"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeErrored:
		return "errored"
	case OutcomeSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// IgnoreError is an expected reason not to migrate a row.
type IgnoreError struct {
	Reason string
}

func (e *IgnoreError) Error() string { return e.Reason }

// Ignore returns an IgnoreError with a formatted reason.
func Ignore(format string, args ...interface{}) error {
	return &IgnoreError{Reason: fmt.Sprintf(format, args...)}
}

// Classify maps a per-row error to its outcome. Missing identifier or code
// mappings, do-not-migrate codes and business rule skips are ignored;
// everything else is errored and retried on the next run.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeDone
	}
	var ig *IgnoreError
	if errors.As(err, &ig) || resolve.IsNotFound(err) || errors.Is(err, resolve.ErrDoNotMigrate) {
		return OutcomeIgnored
	}
	return OutcomeErrored
}
