package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ehr/migrate/internal/config"
	"github.com/ehr/migrate/internal/domain/condition"
	"github.com/ehr/migrate/internal/validate"
	"github.com/ehr/migrate/pkg/fhirmodels"
)

func TestResourceNames(t *testing.T) {
	names := resourceNames()
	want := []string{"allergy", "appointment", "condition", "coverage", "immunization", "medication"}
	if len(names) != len(want) {
		t.Fatalf("resourceNames() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("resourceNames()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestLookupResource(t *testing.T) {
	def, err := lookupResource("Condition")
	if err != nil || def.name != "condition" {
		t.Fatalf("lookupResource(Condition) = %v, %v", def.name, err)
	}
	if _, err := lookupResource("vitals"); err == nil {
		t.Error("expected an error for an unknown resource")
	}
}

func TestSchemasKeyRowsByIDAndPatient(t *testing.T) {
	for _, name := range resourceNames() {
		s := resources[name].schema(nil)
		if s.Resource != name {
			t.Errorf("%s: schema resource = %q", name, s.Resource)
		}
		has := map[string]bool{}
		for _, h := range s.Headers {
			has[h] = true
		}
		if !has[validate.ColumnID] || !has[validate.ColumnPatient] {
			t.Errorf("%s: headers %v lack the row key columns", name, s.Headers)
		}
	}
}

func TestMappingFile(t *testing.T) {
	dir := t.TempDir()
	if got := mappingFile(dir, "icd10"); got != filepath.Join(dir, "icd10.json") {
		t.Errorf("missing map should default to json, got %s", got)
	}
	if err := os.WriteFile(filepath.Join(dir, "icd10.yaml"), []byte("I10: Essential hypertension\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if got := mappingFile(dir, "icd10"); got != filepath.Join(dir, "icd10.yaml") {
		t.Errorf("expected the yaml map, got %s", got)
	}
}

func TestLoadCodeMapsAndICD10Lookup(t *testing.T) {
	dir := t.TempDir()
	data := []byte(`{"I10": {"code": "I10", "display": "Essential (primary) hypertension"}, "Z99": "do_not_migrate"}`)
	if err := os.WriteFile(filepath.Join(dir, "icd10.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	def, _ := lookupResource(condition.Resource)
	codes, err := loadCodeMaps(dir, def)
	if err != nil {
		t.Fatalf("loadCodeMaps: %v", err)
	}
	cm := codes[condition.CodeMapICD10]
	if cm == nil || cm.System != fhirmodels.SystemICD10CM {
		t.Fatalf("expected the icd10 map, got %+v", codes)
	}

	lookup := icd10Lookup(cm)
	if display, ok := lookup("I10"); !ok || display != "Essential (primary) hypertension" {
		t.Errorf("lookup(I10) = %q, %v", display, ok)
	}
	if _, ok := lookup("Z99"); ok {
		t.Error("do not migrate entries have no display")
	}
	if icd10Lookup(nil) != nil {
		t.Error("a missing map should disable the lookup")
	}

	none, err := loadCodeMaps(t.TempDir(), def)
	if err != nil || len(none) != 0 {
		t.Errorf("missing maps should be skipped, got %v, %v", none, err)
	}
}

func TestCodeFiles(t *testing.T) {
	def, _ := lookupResource("coverage")
	files := codeFiles("maps", def)
	cf, ok := files["payor"]
	if !ok || cf.System != fhirmodels.SystemPayorERA || cf.Path != filepath.Join("maps", "payor.json") {
		t.Errorf("unexpected code files %+v", files)
	}
	imm, _ := lookupResource("immunization")
	if len(codeFiles("maps", imm)) != 0 {
		t.Error("immunization has no code maps")
	}
}

func TestParseCutoff(t *testing.T) {
	got, err := parseCutoff("2024-01-31")
	if err != nil {
		t.Fatalf("parseCutoff: %v", err)
	}
	if !got.Equal(time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("parseCutoff = %v", got)
	}
	if got, err := parseCutoff(""); err != nil || !got.IsZero() {
		t.Errorf("empty cutoff = %v, %v", got, err)
	}
	if _, err := parseCutoff("next week"); err == nil {
		t.Error("expected an error for an invalid cutoff")
	}
}

func TestJournalsFileBackend(t *testing.T) {
	cfg := &config.Config{ResultsDir: t.TempDir(), Delimiter: "|", JournalBackend: config.JournalBackendFile}
	js, err := openJournals(context.Background(), cfg, "run-1")
	if err != nil {
		t.Fatalf("openJournals: %v", err)
	}
	defer js.Close()

	store, err := js.open("condition")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	if js.pool != nil {
		t.Error("file backend should not connect to a database")
	}
}
