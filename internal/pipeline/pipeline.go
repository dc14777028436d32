// Package pipeline binds a resource type's validation schema, payload builder
// and journal into the two operator-driven phases: validate and load.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/ehr/migrate/internal/journal"
	"github.com/ehr/migrate/internal/load"
	"github.com/ehr/migrate/internal/source"
	"github.com/ehr/migrate/internal/validate"
)

// ErrNotConfigured is returned by Load when the pipeline has no journal or
// no remote client.
var ErrNotConfigured = errors.New("pipeline not configured for loading")

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger passed to the load engine.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithResultsDir sets where the validation report is written.
func WithResultsDir(dir string) Option {
	return func(p *Pipeline) { p.resultsDir = dir }
}

// WithDelimiter sets the delimiter of delimited source files.
func WithDelimiter(d rune) Option {
	return func(p *Pipeline) { p.delimiter = d }
}

// WithLoader attaches the journal and the remote client used by Load.
func WithLoader(store journal.Store, creator load.Creator) Option {
	return func(p *Pipeline) {
		p.store = store
		p.creator = creator
	}
}

// WithEngineOptions forwards options to every load engine the pipeline
// creates.
func WithEngineOptions(opts ...load.Option) Option {
	return func(p *Pipeline) { p.engineOpts = append(p.engineOpts, opts...) }
}

// Pipeline runs one resource type. Validate and Load are separate steps;
// the operator reviews the validation report before loading.
type Pipeline struct {
	schema  *validate.Schema
	builder load.Builder

	store      journal.Store
	creator    load.Creator
	engineOpts []load.Option

	logger     zerolog.Logger
	resultsDir string
	delimiter  rune
}

// New creates a Pipeline for the resource described by schema.
func New(schema *validate.Schema, builder load.Builder, opts ...Option) *Pipeline {
	p := &Pipeline{
		schema:     schema,
		builder:    builder,
		logger:     zerolog.Nop(),
		resultsDir: "results",
		delimiter:  '|',
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Resource is the resource type name, e.g. "condition".
func (p *Pipeline) Resource() string { return p.schema.Resource }

// ReportPath is the validation error report of the resource.
func (p *Pipeline) ReportPath() string {
	return ReportPath(p.resultsDir, p.schema.Resource)
}

// ReportPath returns errored_<resource>_validation.json under dir.
func ReportPath(dir, resource string) string {
	return filepath.Join(dir, fmt.Sprintf("errored_%s_validation.json", resource))
}

// Validate reads the export at path, writes the error report and returns
// the validated rows.
func (p *Pipeline) Validate(path string) (*validate.Report, error) {
	r, err := source.Open(path, p.delimiter)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return p.ValidateReader(r)
}

// ValidateReader is Validate over an open reader.
func (p *Pipeline) ValidateReader(r source.Reader) (*validate.Report, error) {
	report, err := p.schema.Validate(r)
	if err != nil {
		return nil, err
	}
	if err := report.WriteErrors(p.ReportPath()); err != nil {
		return report, err
	}

	if report.OK() {
		p.logger.Info().
			Str("resource", p.schema.Resource).
			Int("rows", report.Total).
			Msg("All rows have passed validation!")
	} else {
		p.logger.Warn().
			Str("resource", p.schema.Resource).
			Int("rows", report.Total).
			Int("rejected", report.Rejected).
			Str("report", p.ReportPath()).
			Msg("some rows failed validation, see validation error file")
	}
	return report, nil
}

// Load uploads rows through a fresh engine.
func (p *Pipeline) Load(ctx context.Context, rows []validate.ValidatedRow) (*load.Summary, error) {
	if p.store == nil || p.creator == nil {
		return nil, ErrNotConfigured
	}
	opts := append([]load.Option{load.WithLogger(p.logger)}, p.engineOpts...)
	engine := load.New(p.schema.Resource, p.store, p.creator, p.builder, opts...)
	return engine.Load(ctx, rows)
}
