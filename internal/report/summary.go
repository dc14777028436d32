// Package report summarizes the journals of each resource type for the
// operator, on the console and over HTTP.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"text/tabwriter"

	"github.com/ehr/migrate/internal/journal"
	"github.com/ehr/migrate/internal/load"
	"github.com/ehr/migrate/internal/validate"
)

// ResourceSummary is the journal state of one resource type. Errored counts
// only records still waiting for a retry: an id that was later done or
// ignored is no longer outstanding.
type ResourceSummary struct {
	Resource           string       `json:"resource"`
	Done               int          `json:"done"`
	Ignored            int          `json:"ignored"`
	Errored            int          `json:"errored"`
	FollowUpErrors     int          `json:"follow_up_errors"`
	ValidationRejected int          `json:"validation_rejected"`
	Ignores            []load.Group `json:"ignores"`
	Errors             []load.Group `json:"errors"`
	FollowUps          []load.Group `json:"follow_ups"`
}

// Summarize reads every journal of store.
func Summarize(ctx context.Context, resource string, store journal.Store) (*ResourceSummary, error) {
	entries := make(map[journal.Kind][]journal.Entry, len(journal.Kinds))
	for _, kind := range journal.Kinds {
		e, err := store.Entries(ctx, kind)
		if err != nil {
			return nil, fmt.Errorf("summarize %s: %w", resource, err)
		}
		entries[kind] = e
	}

	done := map[string]bool{}
	for _, e := range entries[journal.KindDone] {
		done[e.SourceID] = true
	}

	ignored := latestBySource(entries[journal.KindIgnored], done)
	resolved := make(map[string]bool, len(done)+len(ignored))
	for id := range done {
		resolved[id] = true
	}
	for id := range ignored {
		resolved[id] = true
	}
	errored := latestBySource(entries[journal.KindErrored], resolved)
	followUps := latestBySource(entries[journal.KindFollowUp], nil)

	return &ResourceSummary{
		Resource:       resource,
		Done:           len(done),
		Ignored:        len(ignored),
		Errored:        len(errored),
		FollowUpErrors: len(followUps),
		Ignores:        load.Breakdown(invert(ignored)),
		Errors:         load.Breakdown(invert(errored)),
		FollowUps:      load.Breakdown(invert(followUps)),
	}, nil
}

// latestBySource keeps the last message per source id, dropping ids in
// exclude.
func latestBySource(entries []journal.Entry, exclude map[string]bool) map[string]string {
	out := map[string]string{}
	for _, e := range entries {
		if exclude[e.SourceID] {
			continue
		}
		out[e.SourceID] = e.Message
	}
	return out
}

func invert(m map[string]string) map[string][]string {
	out := map[string][]string{}
	for id, msg := range m {
		out[msg] = append(out[msg], id)
	}
	for _, ids := range out {
		sort.Strings(ids)
	}
	return out
}

// AddValidation counts the rows rejected by the last validation pass. A
// missing report means nothing was rejected.
func (s *ResourceSummary) AddValidation(reportPath string) error {
	errs, err := validate.ReadErrors(reportPath)
	if errors.Is(err, fs.ErrNotExist) {
		s.ValidationRejected = 0
		return nil
	}
	if err != nil {
		return err
	}
	s.ValidationRejected = len(errs)
	return nil
}

// Print writes summaries as a table followed by the ignore and error
// breakdowns.
func Print(w io.Writer, summaries ...*ResourceSummary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RESOURCE\tDONE\tIGNORED\tERRORED\tNOTE STATE\tREJECTED")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n",
			s.Resource, s.Done, s.Ignored, s.Errored, s.FollowUpErrors, s.ValidationRejected)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, s := range summaries {
		printGroups(w, s.Resource, "ignored", s.Ignores)
		printGroups(w, s.Resource, "errored", s.Errors)
		printGroups(w, s.Resource, "note state", s.FollowUps)
	}
	return nil
}

func printGroups(w io.Writer, resource, label string, groups []load.Group) {
	if len(groups) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s %s:\n", resource, label)
	for _, g := range groups {
		fmt.Fprintf(w, "  %d x %s\n    ids: %s\n", len(g.IDs), g.Message, g.Sample())
	}
}
