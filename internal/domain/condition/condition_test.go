package condition

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ehr/migrate/internal/domain/historical"
	"github.com/ehr/migrate/internal/load"
	"github.com/ehr/migrate/internal/platform/fhir"
	"github.com/ehr/migrate/internal/resolve"
	"github.com/ehr/migrate/internal/source"
	"github.com/ehr/migrate/internal/validate"
)

var header = []string{"ID", "Patient Identifier", "Clinical Status", "ICD-10 Code", "Onset Date", "Free text notes", "Resolved Date", "Recorded Provider", "Name"}

func conditionRow(id, patient, status, code, onset, notes string) source.Row {
	return source.Row{
		"ID": id, "Patient Identifier": patient, "Clinical Status": status, "ICD-10 Code": code,
		"Onset Date": onset, "Free text notes": notes, "Resolved Date": "", "Recorded Provider": "", "Name": "Hypertension",
	}
}

func icd10(code string) (string, bool) {
	if code == "I10" {
		return "Essential (primary) hypertension", true
	}
	return "", false
}

func TestSchema_Validate(t *testing.T) {
	rows := []source.Row{
		conditionRow("7", "P1", "Active", "I10", "03/01/2020", ""),
		conditionRow("8", "P1", "Active", "I10", "2020-13-40", ""),
		conditionRow("9", "P2", "chronic", "Z99.9", "", ""),
	}
	report, err := Schema(icd10).Validate(source.NewSliceReader(header, rows))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Rows)+len(report.Errors) != len(rows) {
		t.Fatalf("every row must be accounted for: %d valid, %d errors", len(report.Rows), len(report.Errors))
	}

	got := report.Rows[0]
	if got.Get(ColOnsetDate) != "2020-03-01" || got.Get(ColClinicalStatus) != "active" {
		t.Errorf("unexpected normalization %v", got.Values)
	}
	if got.Get(ColICD10Display) != "Essential (primary) hypertension" {
		t.Errorf("expected display to be looked up, got %q", got.Get(ColICD10Display))
	}
	if msgs := report.Errors["8 P1"]; len(msgs) != 1 {
		t.Errorf("expected one error for 8 P1, got %v", msgs)
	}
	msgs := report.Errors["9 P2"]
	if len(msgs) != 2 || !strings.Contains(msgs[1], "Z999") {
		t.Errorf("expected enum and display errors for 9 P2, got %v", msgs)
	}
}

func TestSchema_MissingHeader(t *testing.T) {
	_, err := Schema(nil).Validate(source.NewSliceReader(header[:3], nil))
	if err == nil {
		t.Fatal("expected a header error")
	}
}

type fakeNotes struct{ n int }

func (f *fakeNotes) CreateNote(ctx context.Context, req fhir.NoteRequest) (string, error) {
	f.n++
	return "note-1", nil
}

func newBuilder(t *testing.T) (*Builder, *fakeNotes) {
	t.Helper()
	cache, err := resolve.OpenNoteCache(filepath.Join(t.TempDir(), "notes.json"))
	if err != nil {
		t.Fatal(err)
	}
	res := resolve.New(resolve.IdentifierMap{"P1": "pat-1"},
		resolve.WithNoteCache(cache),
		resolve.WithProviders(resolve.IdentifierMap{"DR1": "staff-1"}),
		resolve.WithDefaults("bot", "loc"),
	)
	fake := &fakeNotes{}
	return NewBuilder(res, historical.New(res, fake, historical.Settings{NoteTypeName: "Data Migration"})), fake
}

func validated(t *testing.T, row source.Row) validate.ValidatedRow {
	t.Helper()
	vr, errs := Schema(icd10).ValidateRow(row)
	if len(errs) > 0 {
		t.Fatalf("row should validate: %v", errs)
	}
	return vr
}

func TestBuilder_Payload(t *testing.T) {
	b, notes := newBuilder(t)
	row := conditionRow("7", "P1", "Active", "I10", "03/01/2020", "since 2019")
	row[ColRecordedProvider] = "DR1"

	req, err := b.Build(context.Background(), validated(t, row))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.ResourceType != "Condition" || req.TargetPatientID != "pat-1" || req.Extra[0] != "I10" {
		t.Errorf("unexpected request %+v", req)
	}
	p := req.Payload.(map[string]interface{})
	if p["onsetDateTime"] != "2020-03-01" {
		t.Errorf("unexpected onset %v", p["onsetDateTime"])
	}
	if p["subject"].(fhir.Reference).Reference != "Patient/pat-1" {
		t.Errorf("unexpected subject %v", p["subject"])
	}
	if p["recorder"].(fhir.Reference).Reference != "Practitioner/staff-1" {
		t.Errorf("unexpected recorder %v", p["recorder"])
	}
	code := p["code"].(fhir.CodeableConcept).Coding[0]
	if code.Code != "I10" || code.Display != "Essential (primary) hypertension" {
		t.Errorf("unexpected code %+v", code)
	}
	ext := p["extension"].([]fhir.Extension)
	if ext[0].ValueID != "note-1" {
		t.Errorf("expected note extension, got %+v", ext)
	}
	if _, ok := p["abatementDateTime"]; ok {
		t.Error("abatementDateTime should be omitted when empty")
	}
	if notes.n != 1 {
		t.Errorf("expected one companion note, got %d", notes.n)
	}
}

func TestBuilder_Outcomes(t *testing.T) {
	b, _ := newBuilder(t)
	ctx := context.Background()

	_, err := b.Build(ctx, validated(t, conditionRow("1", "P9", "active", "I10", "", "")))
	if load.Classify(err) != load.OutcomeIgnored || err.Error() != "unmapped patient P9" {
		t.Errorf("unmapped patient should be ignored, got %v", err)
	}

	long := conditionRow("2", "P1", "active", "I10", "", strings.Repeat("x", MaxNoteLength+1))
	_, err = b.Build(ctx, validated(t, long))
	if load.Classify(err) != load.OutcomeIgnored {
		t.Errorf("long notes should be ignored, got %v", err)
	}

	unknown := conditionRow("3", "P1", "active", "I10", "", "")
	unknown[ColRecordedProvider] = "DR9"
	_, err = b.Build(ctx, validated(t, unknown))
	if load.Classify(err) != load.OutcomeIgnored {
		t.Errorf("unmapped provider should be ignored, got %v", err)
	}
}
