package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ehr/migrate/internal/journal"
	"github.com/ehr/migrate/internal/load"
	"github.com/ehr/migrate/internal/resolve"
	"github.com/ehr/migrate/internal/validate"
)

func testSchema() *validate.Schema {
	return &validate.Schema{
		Resource: "condition",
		Headers:  []string{"ID", "Patient Identifier", "Clinical Status", "Onset Date"},
		Fields: []validate.Field{
			{Name: "ID", Validators: []validate.Func{validate.Required}},
			{Name: "Patient Identifier", Validators: []validate.Func{validate.Required}},
			{Name: "Clinical Status", Validators: []validate.Func{validate.Required, validate.Enum("active", "resolved")}},
			{Name: "Onset Date", Validators: []validate.Func{validate.Date}},
		},
	}
}

type stubCreator struct{ n int }

func (s *stubCreator) Create(ctx context.Context, resourceType string, payload interface{}) (string, error) {
	s.n++
	return "c-" + payload.(string), nil
}

func builder(res *resolve.Resolver) load.Builder {
	return load.BuilderFunc(func(ctx context.Context, row validate.ValidatedRow) (*load.Request, error) {
		pk, err := res.Patient(row.PatientID)
		if err != nil {
			return nil, err
		}
		return &load.Request{ResourceType: "Condition", Payload: row.SourceID, TargetPatientID: pk}, nil
	})
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidate_WritesReport(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "conditions.csv",
		"ID|Patient Identifier|Clinical Status|Onset Date\n"+
			"7|P1|Active|03/01/2020\n"+
			"8|P1|Active|2020-13-40\n")

	p := New(testSchema(), builder(resolve.New(nil)), WithResultsDir(dir))
	report, err := p.Validate(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Rows) != 1 || len(report.Errors) != 1 {
		t.Fatalf("expected 1 valid row and 1 error, got %d and %d", len(report.Rows), len(report.Errors))
	}
	row := report.Rows[0]
	if row.Get("Onset Date") != "2020-03-01" || row.Get("Clinical Status") != "active" {
		t.Errorf("row not normalized: %v", row.Values)
	}

	errs, err := validate.ReadErrors(p.ReportPath())
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if msgs := errs["8 P1"]; len(msgs) != 1 {
		t.Errorf("expected one message for 8 P1, got %v", errs)
	}
	if filepath.Base(p.ReportPath()) != "errored_condition_validation.json" {
		t.Errorf("unexpected report name %s", p.ReportPath())
	}
}

func TestValidate_CleanRunRemovesStaleReport(t *testing.T) {
	dir := t.TempDir()
	p := New(testSchema(), nil, WithResultsDir(dir), WithDelimiter(','))
	stale := writeFile(t, dir, "errored_condition_validation.json", `{"1 P1":["old"]}`)
	in := writeFile(t, dir, "conditions.csv", "ID,Patient Identifier,Clinical Status,Onset Date\n7,P1,resolved,\n")

	report, err := p.Validate(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.OK() {
		t.Fatalf("expected clean report, got %v", report.Errors)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale report should be removed, stat err = %v", err)
	}
}

func TestValidate_BadHeader(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "conditions.csv", "ID|Clinical Status\n7|active\n")

	p := New(testSchema(), nil, WithResultsDir(dir))
	if _, err := p.Validate(in); !errors.Is(err, validate.ErrMissingHeaders) {
		t.Fatalf("expected ErrMissingHeaders, got %v", err)
	}
	if _, err := os.Stat(p.ReportPath()); !os.IsNotExist(err) {
		t.Errorf("no report should be written on a header failure")
	}
}

func TestLoad_NotConfigured(t *testing.T) {
	p := New(testSchema(), nil)
	if _, err := p.Load(context.Background(), nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestValidateThenLoad(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "conditions.csv",
		"ID|Patient Identifier|Clinical Status|Onset Date\n"+
			"7|P1|Active|03/01/2020\n")

	store, err := journal.NewFileStore(dir, "condition", '|')
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	creator := &stubCreator{}
	run := func(res *resolve.Resolver) {
		p := New(testSchema(), builder(res), WithResultsDir(dir), WithLoader(store, creator))
		report, err := p.Validate(in)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := p.Load(context.Background(), report.Rows); err != nil {
			t.Fatal(err)
		}
	}

	run(resolve.New(resolve.IdentifierMap{}))
	run(resolve.New(resolve.IdentifierMap{"P1": "pat-1"}))
	run(resolve.New(resolve.IdentifierMap{"P1": "pat-1"}))

	done, err := store.Entries(context.Background(), journal.KindDone)
	if err != nil {
		t.Fatal(err)
	}
	if len(done) != 1 || done[0].TargetID != "c-7" {
		t.Errorf("expected exactly one done line, got %+v", done)
	}
	if creator.n != 1 {
		t.Errorf("expected one create call, got %d", creator.n)
	}
}
