package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Report is the outcome of a validation pass.
type Report struct {
	Resource string
	Total    int
	Rejected int
	Rows     []ValidatedRow
	// Errors maps a row key to its failures in validator order.
	Errors map[string][]string
}

func newReport(resource string) *Report {
	return &Report{Resource: resource, Errors: map[string][]string{}}
}

// OK reports whether every row passed.
func (r *Report) OK() bool { return len(r.Errors) == 0 }

// WriteErrors writes the error map as JSON to path in one go. When there are
// no errors a stale report from an earlier pass is removed instead.
func (r *Report) WriteErrors(path string) error {
	if r.OK() {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove stale validation report: %w", err)
		}
		return nil
	}

	data, err := json.MarshalIndent(r.Errors, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal validation errors: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create results dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write validation report: %w", err)
	}
	return nil
}

// ReadErrors loads a report written by WriteErrors.
func ReadErrors(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := map[string][]string{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode validation report %s: %w", path, err)
	}
	return out, nil
}
