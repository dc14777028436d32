// Package journal records per-record migration outcomes so that a run can
// be stopped and resumed without duplicating work.
package journal

import (
	"context"
	"strings"
	"time"
)

// Kind selects one of the append-only journals of a resource.
type Kind string

const (
	KindDone    Kind = "done"
	KindErrored Kind = "errored"
	KindIgnored Kind = "ignored"
	// KindFollowUp holds failures of secondary side effects (note state
	// transitions) of records that are already done.
	KindFollowUp Kind = "note_state"
)

// Kinds lists every journal kind in display order.
var Kinds = []Kind{KindDone, KindErrored, KindIgnored, KindFollowUp}

// Entry is one journaled outcome.
type Entry struct {
	Kind            Kind
	SourceID        string
	SourcePatientID string
	TargetPatientID string
	// TargetID is the created record (done) or the record a follow-up
	// failed on.
	TargetID string
	// Message is the error (errored, follow-up) or the reason (ignored).
	Message string
	Extra   []string
	At      time.Time
}

// Store is an append-only outcome log for one resource type.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Entries(ctx context.Context, kind Kind) ([]Entry, error)
	Close() error
}

// SingleLine collapses newlines and runs of whitespace so a message fits on
// one journal line.
func SingleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SkipSet collects the source ids that must not be processed again: every
// done id, and every ignored id unless retry reports its reason as
// retryable.
func SkipSet(ctx context.Context, s Store, retry func(reason string) bool) (map[string]bool, error) {
	skip := map[string]bool{}
	done, err := s.Entries(ctx, KindDone)
	if err != nil {
		return nil, err
	}
	for _, e := range done {
		skip[e.SourceID] = true
	}
	ignored, err := s.Entries(ctx, KindIgnored)
	if err != nil {
		return nil, err
	}
	for _, e := range ignored {
		if retry != nil && retry(e.Message) {
			continue
		}
		skip[e.SourceID] = true
	}
	return skip, nil
}

// Counts returns the number of entries per kind.
func Counts(ctx context.Context, s Store) (map[Kind]int, error) {
	out := make(map[Kind]int, len(Kinds))
	for _, k := range Kinds {
		entries, err := s.Entries(ctx, k)
		if err != nil {
			return nil, err
		}
		out[k] = len(entries)
	}
	return out, nil
}

// RunSummary tallies one load run.
type RunSummary struct {
	RunID      string
	Resource   string
	Phase      string
	Total      int
	Done       int
	Errored    int
	Ignored    int
	Skipped    int
	StartedAt  time.Time
	FinishedAt time.Time
}

// RunRecorder is implemented by stores that persist run summaries.
type RunRecorder interface {
	RecordRun(ctx context.Context, r RunSummary) error
}
