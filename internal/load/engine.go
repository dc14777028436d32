// Package load uploads validated rows to the target system, journaling one
// outcome per row so that runs are idempotent and resumable.
package load

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/migrate/internal/journal"
	"github.com/ehr/migrate/internal/resolve"
	"github.com/ehr/migrate/internal/validate"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the progress logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(e *Engine) { e.runID = id }
}

// WithRetryIgnored decides which journaled ignore reasons are attempted
// again. The default retries ignores caused by missing mappings.
func WithRetryIgnored(fn func(reason string) bool) Option {
	return func(e *Engine) { e.retryIgnored = fn }
}

// Engine runs the per-row load loop for one resource type.
type Engine struct {
	resource string
	store    journal.Store
	creator  Creator
	builder  Builder

	logger       zerolog.Logger
	runID        string
	retryIgnored func(string) bool
	now          func() time.Time
}

// New creates an Engine.
func New(resource string, store journal.Store, creator Creator, builder Builder, opts ...Option) *Engine {
	e := &Engine{
		resource:     resource,
		store:        store,
		creator:      creator,
		builder:      builder,
		logger:       zerolog.Nop(),
		runID:        uuid.NewString(),
		retryIgnored: resolve.IsUnmappedReason,
		now:          time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// RowResult is the outcome of one row.
type RowResult struct {
	SourceID        string
	TargetPatientID string
	TargetID        string
	Outcome         Outcome
	Err             error
}

// Load processes rows in order. Per-row failures are journaled and never
// stop the batch. Load returns early only when ctx is cancelled or a
// journal write fails; the summary covers the rows processed so far.
func (e *Engine) Load(ctx context.Context, rows []validate.ValidatedRow) (*Summary, error) {
	sum := newSummary(e.runID, e.resource, len(rows), e.now())

	skip, err := journal.SkipSet(ctx, e.store, e.retryIgnored)
	if err != nil {
		return sum, fmt.Errorf("load %s journal: %w", e.resource, err)
	}
	e.logger.Info().
		Str("resource", e.resource).
		Str("run_id", e.runID).
		Int("rows", len(rows)).
		Int("already_processed", len(skip)).
		Msg("load started")

	seen := make(map[string]bool, len(rows))
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return e.finish(ctx, sum), err
		}

		progress := fmt.Sprintf("(%d/%d)", i+1, len(rows))
		if skip[row.SourceID] || seen[row.SourceID] {
			sum.add(RowResult{SourceID: row.SourceID, Outcome: OutcomeSkipped})
			e.logger.Info().Str("progress", progress).Str("source_id", row.SourceID).Msg("already did record")
			continue
		}
		seen[row.SourceID] = true

		res, err := e.processRow(ctx, row)
		if err != nil {
			return e.finish(ctx, sum), err
		}
		sum.add(res)

		evt := e.logger.Info()
		if res.Outcome == OutcomeErrored {
			evt = e.logger.Warn().Err(res.Err)
		} else if res.Outcome == OutcomeIgnored {
			evt = evt.Str("reason", res.Err.Error())
		}
		evt.Str("progress", progress).
			Str("source_id", row.SourceID).
			Str("target_id", res.TargetID).
			Str("outcome", res.Outcome.String()).
			Msg("ingesting")
	}

	return e.finish(ctx, sum), nil
}

// processRow returns an error only for failures that must abort the run.
func (e *Engine) processRow(ctx context.Context, row validate.ValidatedRow) (RowResult, error) {
	res := RowResult{SourceID: row.SourceID}

	req, targetID, err := e.buildAndCreate(ctx, row)
	if req != nil {
		res.TargetPatientID = req.TargetPatientID
	}
	if err != nil && ctx.Err() != nil {
		// interrupted mid-row; leave it unjournaled so the next run retries it
		return res, ctx.Err()
	}

	entry := journal.Entry{
		SourceID:        row.SourceID,
		SourcePatientID: row.PatientID,
		TargetPatientID: res.TargetPatientID,
		At:              e.now(),
	}
	switch {
	case err == nil:
		res.Outcome = OutcomeDone
		res.TargetID = targetID
		entry.Kind = journal.KindDone
		entry.TargetID = targetID
		entry.Extra = req.Extra
	case Classify(err) == OutcomeIgnored:
		res.Outcome = OutcomeIgnored
		res.Err = err
		entry = journal.Entry{Kind: journal.KindIgnored, SourceID: row.SourceID, Message: err.Error(), At: entry.At}
	default:
		res.Outcome = OutcomeErrored
		res.Err = err
		entry.Kind = journal.KindErrored
		entry.Message = err.Error()
	}

	// the remote side already acted on the row; record it even if ctx is done
	jctx := context.WithoutCancel(ctx)
	if err := e.store.Append(jctx, entry); err != nil {
		return res, fmt.Errorf("journal %s %s: %w", entry.Kind, row.SourceID, err)
	}

	if res.Outcome == OutcomeDone && req.FollowUp != nil {
		if ferr := e.followUp(ctx, req, targetID); ferr != nil {
			res.Err = ferr
			e.logger.Warn().Err(ferr).Str("source_id", row.SourceID).Str("target_id", targetID).Msg("follow-up failed")
			fe := journal.Entry{
				Kind:            journal.KindFollowUp,
				SourceID:        row.SourceID,
				SourcePatientID: row.PatientID,
				TargetID:        targetID,
				Message:         ferr.Error(),
				At:              e.now(),
			}
			if err := e.store.Append(jctx, fe); err != nil {
				return res, fmt.Errorf("journal follow-up %s: %w", row.SourceID, err)
			}
		}
	}
	return res, nil
}

func (e *Engine) buildAndCreate(ctx context.Context, row validate.ValidatedRow) (req *Request, targetID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			var stack [4096]byte
			n := runtime.Stack(stack[:], false)
			e.logger.Error().
				Str("source_id", row.SourceID).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(stack[:n])).
				Msg("panic recovered")
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	req, err = e.builder.Build(ctx, row)
	if err != nil {
		return req, "", err
	}
	if req == nil {
		return nil, "", fmt.Errorf("builder returned no request")
	}
	targetID, err = e.creator.Create(ctx, req.ResourceType, req.Payload)
	return req, targetID, err
}

func (e *Engine) followUp(ctx context.Context, req *Request, targetID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return req.FollowUp(ctx, targetID)
}

func (e *Engine) finish(ctx context.Context, sum *Summary) *Summary {
	sum.Finished = e.now()
	if rec, ok := e.store.(journal.RunRecorder); ok {
		if err := rec.RecordRun(context.WithoutCancel(ctx), sum.RunSummary()); err != nil {
			e.logger.Warn().Err(err).Msg("record run summary")
		}
	}
	sum.Log(e.logger)
	return sum
}
