// Package historical creates the per-patient "historical data" note that
// migrated records are documented in.
package historical

import (
	"context"
	"time"

	"github.com/ehr/migrate/internal/load"
	"github.com/ehr/migrate/internal/platform/fhir"
	"github.com/ehr/migrate/internal/validate"
)

// ColumnNoteID lets an export name the note a row belongs to.
const ColumnNoteID = "Note ID"

// NoteCreator is satisfied by *fhir.Client.
type NoteCreator interface {
	CreateNote(ctx context.Context, req fhir.NoteRequest) (string, error)
}

// Settings describe the companion note created for each patient.
type Settings struct {
	NoteTypeName string
	ProviderKey  string
	LocationKey  string
	// ServiceTime is the encounter start of every companion note. The
	// creation time is used when empty.
	ServiceTime string
}

// Notes finds or creates companion notes through the resolver's cache.
type Notes struct {
	resolver load.Resolver
	creator  NoteCreator
	settings Settings
	now      func() time.Time
}

// New returns a Notes.
func New(resolver load.Resolver, creator NoteCreator, settings Settings) *Notes {
	return &Notes{resolver: resolver, creator: creator, settings: settings, now: time.Now}
}

// For returns the note of row: its Note ID column when set, otherwise the
// patient's companion note.
func (n *Notes) For(ctx context.Context, row validate.ValidatedRow, patientKey string) (string, error) {
	if id := row.Get(ColumnNoteID); id != "" {
		return id, nil
	}
	return n.resolver.CompanionNote(ctx, patientKey, func(ctx context.Context) (string, error) {
		start := n.settings.ServiceTime
		if start == "" {
			start = n.now().UTC().Format(time.RFC3339)
		}
		return n.creator.CreateNote(ctx, fhir.NoteRequest{
			NoteTypeName:        n.settings.NoteTypeName,
			PatientKey:          patientKey,
			ProviderKey:         n.settings.ProviderKey,
			PracticeLocationKey: n.settings.LocationKey,
			EncounterStartTime:  start,
		})
	})
}
