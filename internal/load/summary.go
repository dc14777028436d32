package load

import (
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/migrate/internal/journal"
)

// breakdownSample is how many ids are listed per ignore or error message.
const breakdownSample = 10

// Summary tallies a load run.
type Summary struct {
	RunID    string
	Resource string
	Total    int
	Done     int
	Ignored  int
	Errored  int
	Skipped  int
	// FollowUpErrors counts done rows whose follow-up failed.
	FollowUpErrors int
	Started        time.Time
	Finished       time.Time

	// Ignores and Errors map a message to the source ids it was recorded for.
	Ignores map[string][]string
	Errors  map[string][]string
}

func newSummary(runID, resource string, total int, started time.Time) *Summary {
	return &Summary{
		RunID:    runID,
		Resource: resource,
		Total:    total,
		Started:  started,
		Ignores:  map[string][]string{},
		Errors:   map[string][]string{},
	}
}

func (s *Summary) add(r RowResult) {
	switch r.Outcome {
	case OutcomeDone:
		s.Done++
		if r.Err != nil {
			s.FollowUpErrors++
		}
	case OutcomeIgnored:
		s.Ignored++
		msg := journal.SingleLine(r.Err.Error())
		s.Ignores[msg] = append(s.Ignores[msg], r.SourceID)
	case OutcomeErrored:
		s.Errored++
		msg := journal.SingleLine(r.Err.Error())
		s.Errors[msg] = append(s.Errors[msg], r.SourceID)
	case OutcomeSkipped:
		s.Skipped++
	}
}

// Processed is the number of rows that reached an outcome. It falls short of
// Total when a run is interrupted.
func (s *Summary) Processed() int {
	return s.Done + s.Ignored + s.Errored + s.Skipped
}

// RunSummary converts s for stores that persist run history.
func (s *Summary) RunSummary() journal.RunSummary {
	return journal.RunSummary{
		RunID:      s.RunID,
		Resource:   s.Resource,
		Phase:      "load",
		Total:      s.Total,
		Done:       s.Done,
		Errored:    s.Errored,
		Ignored:    s.Ignored,
		Skipped:    s.Skipped,
		StartedAt:  s.Started,
		FinishedAt: s.Finished,
	}
}

// Group is one message with the ids it applies to.
type Group struct {
	Message string   `json:"message"`
	IDs     []string `json:"ids"`
}

// Breakdown orders groups by size, largest first.
func Breakdown(m map[string][]string) []Group {
	groups := make([]Group, 0, len(m))
	for msg, ids := range m {
		groups = append(groups, Group{Message: msg, IDs: ids})
	}
	sort.Slice(groups, func(i, j int) bool {
		if len(groups[i].IDs) != len(groups[j].IDs) {
			return len(groups[i].IDs) > len(groups[j].IDs)
		}
		return groups[i].Message < groups[j].Message
	})
	return groups
}

// Sample returns up to breakdownSample ids joined for display.
func (g Group) Sample() string {
	ids := g.IDs
	if len(ids) > breakdownSample {
		ids = ids[:breakdownSample]
	}
	return strings.Join(ids, ", ")
}

// Log writes the totals and the ignore and error breakdowns.
func (s *Summary) Log(logger zerolog.Logger) {
	logger.Info().
		Str("resource", s.Resource).
		Str("run_id", s.RunID).
		Int("total", s.Total).
		Int("done", s.Done).
		Int("ignored", s.Ignored).
		Int("errored", s.Errored).
		Int("skipped", s.Skipped).
		Int("processed", s.Processed()).
		Int("follow_up_errors", s.FollowUpErrors).
		Dur("elapsed", s.Finished.Sub(s.Started)).
		Msg("load finished")

	for _, g := range Breakdown(s.Ignores) {
		logger.Info().Str("reason", g.Message).Int("count", len(g.IDs)).Str("ids", g.Sample()).Msg("ignored")
	}
	for _, g := range Breakdown(s.Errors) {
		logger.Warn().Str("error", g.Message).Int("count", len(g.IDs)).Str("ids", g.Sample()).Msg("errored")
	}
}
