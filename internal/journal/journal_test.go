package journal

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/ehr/migrate/internal/resolve"
)

func TestFileName(t *testing.T) {
	tests := map[Kind]string{
		KindDone:     "done_condition.csv",
		KindErrored:  "errored_condition.csv",
		KindIgnored:  "ignored_condition.csv",
		KindFollowUp: "errored_condition_note_state.csv",
	}
	for kind, want := range tests {
		if got := FileName("condition", kind); got != want {
			t.Errorf("FileName(%s) = %q, want %q", kind, got, want)
		}
	}
}

func TestFileStore_AppendAndRead(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir, "condition", '|')
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := []Entry{
		{Kind: KindDone, SourceID: "1", SourcePatientID: "P1", TargetPatientID: "pat-1", TargetID: "c-1", Extra: []string{"note-1"}},
		{Kind: KindErrored, SourceID: "2", SourcePatientID: "P2", TargetPatientID: "pat-2", Message: "POST failed\nwith 422 | bad"},
		{Kind: KindIgnored, SourceID: "3", Message: "unmapped patient P3"},
		{Kind: KindFollowUp, SourceID: "1", SourcePatientID: "P1", TargetID: "c-1", Message: "lock note n-1: 400"},
	}
	for _, e := range entries {
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("Append(%s): %v", e.Kind, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(s.Path(KindDone))
	if err != nil {
		t.Fatal(err)
	}
	if got := string(data); got != "id|patient_id|target_patient_id|target_id\n1|P1|pat-1|c-1|note-1\n" {
		t.Errorf("unexpected done file:\n%s", got)
	}

	// reopen: header must not be repeated
	s2, _ := NewFileStore(dir, "condition", '|')
	defer s2.Close()
	if err := s2.Append(ctx, Entry{Kind: KindDone, SourceID: "4", SourcePatientID: "P4", TargetPatientID: "pat-4", TargetID: "c-4"}); err != nil {
		t.Fatal(err)
	}
	done, err := s2.Entries(ctx, KindDone)
	if err != nil {
		t.Fatal(err)
	}
	if len(done) != 2 || done[0].TargetID != "c-1" || done[1].SourceID != "4" {
		t.Fatalf("unexpected done entries %+v", done)
	}
	if len(done[0].Extra) != 1 || done[0].Extra[0] != "note-1" {
		t.Errorf("extra fields lost: %+v", done[0])
	}

	errored, _ := s2.Entries(ctx, KindErrored)
	if len(errored) != 1 || errored[0].Message != "POST failed with 422 | bad" {
		t.Errorf("error message should be one line and round trip, got %+v", errored)
	}
	followUp, _ := s2.Entries(ctx, KindFollowUp)
	if len(followUp) != 1 || followUp[0].TargetID != "c-1" {
		t.Errorf("unexpected follow-up entries %+v", followUp)
	}
}

func TestFileStore_MissingAndTruncated(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, _ := NewFileStore(dir, "allergy", '|')
	defer s.Close()

	got, err := s.Entries(ctx, KindDone)
	if err != nil || len(got) != 0 {
		t.Fatalf("missing journal should be empty, got %v %v", got, err)
	}

	content := "id|patient_id|target_patient_id|target_id\n1|P1|pat-1|a-1\n2|P2\n"
	if err := os.WriteFile(s.Path(KindDone), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	got, err = s.Entries(ctx, KindDone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("truncated line should be skipped, got %+v", got)
	}
}

func TestFileStore_AppendAfterPartialLine(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, _ := NewFileStore(dir, "allergy", '|')
	defer s.Close()

	content := "id|patient_id|target_patient_id|target_id\n1|P1|pat-1|a-1\n2|P2|pat"
	if err := os.WriteFile(s.Path(KindDone), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if err := s.Append(ctx, Entry{Kind: KindDone, SourceID: "3", SourcePatientID: "P3", TargetPatientID: "pat-3", TargetID: "a-3"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	raw, err := os.ReadFile(s.Path(KindDone))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(raw), "2|P2|pat\n3|P3|pat-3|a-3\n") {
		t.Errorf("new entry should start on its own line, file is %q", raw)
	}

	skip, err := SkipSet(ctx, s, resolve.IsUnmappedReason)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !skip["1"] || !skip["3"] || skip["2"] || len(skip) != 2 {
		t.Errorf("expected rows 1 and 3 done and the partial row 2 retried, got %v", skip)
	}
}

func TestSkipSet(t *testing.T) {
	ctx := context.Background()
	s, _ := NewFileStore(t.TempDir(), "condition", ',')
	defer s.Close()

	s.Append(ctx, Entry{Kind: KindDone, SourceID: "1"})
	s.Append(ctx, Entry{Kind: KindErrored, SourceID: "2", Message: "timeout"})
	s.Append(ctx, Entry{Kind: KindIgnored, SourceID: "3", Message: "do not migrate"})
	s.Append(ctx, Entry{Kind: KindIgnored, SourceID: "4", Message: "unmapped patient P4"})

	skip, err := SkipSet(ctx, s, resolve.IsUnmappedReason)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]bool{"1": true, "3": true}
	if len(skip) != len(want) {
		t.Fatalf("unexpected skip set %v", skip)
	}
	for id := range want {
		if !skip[id] {
			t.Errorf("expected %s in skip set", id)
		}
	}

	counts, _ := Counts(ctx, s)
	if counts[KindDone] != 1 || counts[KindIgnored] != 2 || counts[KindErrored] != 1 || counts[KindFollowUp] != 0 {
		t.Errorf("unexpected counts %v", counts)
	}
}

func TestSingleLine(t *testing.T) {
	if got := SingleLine(" a\n  b\r\n\tc "); got != "a b c" {
		t.Errorf("SingleLine = %q", got)
	}
	if strings.Contains(SingleLine("x\ny"), "\n") {
		t.Error("newline survived")
	}
}
