package source

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestDelimitedReader_Pipe(t *testing.T) {
	input := "\xEF\xBB\xBFID|Patient Identifier|Name\n1|P1|Peanut\n\n2|P2\n"
	r, err := NewDelimitedReader(strings.NewReader(input), '|')
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Join(r.Header(), ","); got != "ID,Patient Identifier,Name" {
		t.Fatalf("unexpected header %q", got)
	}

	rows, err := ReadAll(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["Name"] != "Peanut" {
		t.Errorf("expected Peanut, got %q", rows[0]["Name"])
	}
	if v, ok := rows[1]["Name"]; !ok || v != "" {
		t.Errorf("short row should be padded, got %q (present=%v)", v, ok)
	}
}

func TestDelimitedReader_QuotedComma(t *testing.T) {
	input := "ID,Note\n1,\"a, b\"\n"
	r, err := NewDelimitedReader(strings.NewReader(input), ',')
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	row, err := r.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row["Note"] != "a, b" {
		t.Errorf("expected quoted field, got %q", row["Note"])
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestDelimitedReader_Empty(t *testing.T) {
	if _, err := NewDelimitedReader(strings.NewReader("\n\n"), ','); err == nil {
		t.Fatal("expected error for input without header")
	}
}

func TestJSONReader(t *testing.T) {
	input := `[
		{"ID": "1", "Patient Identifier": "P1", "Count": 3, "Active": true, "Note": null},
		{"ID": "2", "Patient Identifier": "P2", "Extra": {"a": 1}}
	]`
	r, err := NewJSONReader(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "ID,Patient Identifier,Count,Active,Note,Extra"
	if got := strings.Join(r.Header(), ","); got != want {
		t.Errorf("header = %q, want %q", got, want)
	}
	rows, _ := ReadAll(r)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["Count"] != "3" || rows[0]["Active"] != "true" || rows[0]["Note"] != "" {
		t.Errorf("unexpected scalar rendering: %v", rows[0])
	}
	if rows[1]["Extra"] != `{"a": 1}` {
		t.Errorf("nested value should stay raw, got %q", rows[1]["Extra"])
	}
	if v, ok := rows[1]["Count"]; !ok || v != "" {
		t.Errorf("missing keys should be filled, got %q", v)
	}
}

func TestJSONReader_NotArray(t *testing.T) {
	if _, err := NewJSONReader(strings.NewReader(`{"ID": "1"}`)); err == nil {
		t.Fatal("expected error for a top level object")
	}
}

func TestXLSXReader(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	if err := f.SetSheetRow(sheet, "A1", &[]interface{}{"ID", "Patient Identifier", "CVX Code"}); err != nil {
		t.Fatal(err)
	}
	if err := f.SetSheetRow(sheet, "A2", &[]interface{}{"10", "P9", "207"}); err != nil {
		t.Fatal(err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	r, err := NewXLSXReader(buf, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rows, _ := ReadAll(r)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0]["CVX Code"] != "207" || rows[0]["Patient Identifier"] != "P9" {
		t.Errorf("unexpected row %v", rows[0])
	}
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conditions.csv")
	if err := os.WriteFile(path, []byte("ID|Name\n1|Flu\n"), 0644); err != nil {
		t.Fatal(err)
	}
	r, err := Open(path, '|')
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()
	rows, err := ReadAll(r)
	if err != nil || len(rows) != 1 || rows[0].Get("Name") != "Flu" {
		t.Errorf("unexpected result %v, %v", rows, err)
	}

	if _, err := Open(filepath.Join(dir, "x.parquet"), ','); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}
