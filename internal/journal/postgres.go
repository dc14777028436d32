package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type journalQuerier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// PGStore keeps journals in the migration_journal table (see
// migrations/001_migration_journal.sql). The pool is owned by the caller.
type PGStore struct {
	db       journalQuerier
	resource string
	run      string
}

// NewPGStore returns a store for resource. run tags entries with the id of
// the process that wrote them.
func NewPGStore(db journalQuerier, resource, run string) *PGStore {
	return &PGStore{db: db, resource: resource, run: run}
}

const insertEntrySQL = `INSERT INTO migration_journal
    (resource, kind, source_id, source_patient_id, target_patient_id, target_id, message, extra, run_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// Append inserts e. Each insert commits on its own.
func (s *PGStore) Append(ctx context.Context, e Entry) error {
	extra := e.Extra
	if extra == nil {
		extra = []string{}
	}
	_, err := s.db.Exec(ctx, insertEntrySQL,
		s.resource, string(e.Kind), e.SourceID, e.SourcePatientID, e.TargetPatientID,
		e.TargetID, SingleLine(e.Message), extra, s.run,
	)
	if err != nil {
		return fmt.Errorf("insert %s journal entry %s: %w", e.Kind, e.SourceID, err)
	}
	return nil
}

const selectEntriesSQL = `SELECT source_id, source_patient_id, target_patient_id, target_id, message, extra, created_at
FROM migration_journal
WHERE resource = $1 AND kind = $2
ORDER BY id`

// Entries returns kind in insertion order.
func (s *PGStore) Entries(ctx context.Context, kind Kind) ([]Entry, error) {
	rows, err := s.db.Query(ctx, selectEntriesSQL, s.resource, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query %s journal: %w", kind, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e := Entry{Kind: kind}
		if err := rows.Scan(&e.SourceID, &e.SourcePatientID, &e.TargetPatientID, &e.TargetID, &e.Message, &e.Extra, &e.At); err != nil {
			return nil, fmt.Errorf("scan %s journal entry: %w", kind, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s journal: %w", kind, err)
	}
	return out, nil
}

// Close is a no-op; the pool outlives the store.
func (s *PGStore) Close() error { return nil }

const upsertRunSQL = `INSERT INTO migration_runs
    (run_id, resource, phase, total, done, errored, ignored, skipped, started_at, finished_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (run_id) DO UPDATE SET
    total = EXCLUDED.total, done = EXCLUDED.done, errored = EXCLUDED.errored,
    ignored = EXCLUDED.ignored, skipped = EXCLUDED.skipped, finished_at = EXCLUDED.finished_at`

// RecordRun upserts the summary of a run.
func (s *PGStore) RecordRun(ctx context.Context, r RunSummary) error {
	_, err := s.db.Exec(ctx, upsertRunSQL,
		r.RunID, r.Resource, r.Phase, r.Total, r.Done, r.Errored, r.Ignored, r.Skipped, r.StartedAt, r.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.RunID, err)
	}
	return nil
}
