package resolve

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ehr/migrate/internal/platform/fhir"
	"github.com/ehr/migrate/pkg/fhirmodels"
)

// IdentifierMap maps a source identifier to a target identifier.
type IdentifierMap map[string]string

// LoadIdentifierMap reads a JSON object of string keys to string values.
func LoadIdentifierMap(path string) (IdentifierMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read identifier map: %w", err)
	}
	m := IdentifierMap{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode identifier map %s: %w", path, err)
	}
	return m, nil
}

// WriteJSONFile writes v as indented JSON, replacing path atomically so a
// crash never leaves a truncated map behind.
func WriteJSONFile(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// CodeStatus is the outcome of a code lookup.
type CodeStatus int

const (
	// CodeMapped is a concrete target coding.
	CodeMapped CodeStatus = iota
	// CodeUnstructured means no structured equivalent exists; the record is
	// migrated as free text.
	CodeUnstructured
	// CodeDoNotMigrate means the record must be skipped.
	CodeDoNotMigrate
	// CodeNotFound means none of the candidate keys is mapped.
	CodeNotFound
)

func (s CodeStatus) String() string {
	switch s {
	case CodeMapped:
		return "mapped"
	case CodeUnstructured:
		return "unstructured"
	case CodeDoNotMigrate:
		return "do-not-migrate"
	default:
		return "not-found"
	}
}

// Sentinel values accepted in code map files.
const (
	SentinelUnstructured = "unstructured"
	SentinelDoNotMigrate = "do_not_migrate"
)

// CodeResult is what a code lookup resolved to.
type CodeResult struct {
	Status CodeStatus
	Coding fhir.Coding
	// Key is the candidate that matched.
	Key string
}

// Err converts the non-mapped outcomes to errors: nil for mapped and
// unstructured, ErrDoNotMigrate, or a *NotFoundError.
func (c CodeResult) Err(system string, candidates ...string) error {
	switch c.Status {
	case CodeDoNotMigrate:
		return ErrDoNotMigrate
	case CodeNotFound:
		return &NotFoundError{Kind: system + " code", Key: strings.Join(nonEmpty(candidates), "|")}
	}
	return nil
}

type codeEntry struct {
	status CodeStatus
	coding fhir.Coding
}

// CodeMap maps normalized source keys to target codings of one code system.
type CodeMap struct {
	System  string
	entries map[string]codeEntry
}

// NormalizeKey is the lookup form of a code map key.
func NormalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// NewCodeMap builds a CodeMap from decoded file content. Values may be a
// sentinel string, a bare target code, an object with system/code/display,
// or such an object nested under "coding".
func NewCodeMap(system string, raw map[string]interface{}) (*CodeMap, error) {
	cm := &CodeMap{System: system, entries: make(map[string]codeEntry, len(raw))}
	for k, v := range raw {
		entry, err := parseCodeEntry(system, v)
		if err != nil {
			return nil, fmt.Errorf("code map %s key %q: %w", system, k, err)
		}
		cm.entries[NormalizeKey(k)] = entry
	}
	return cm, nil
}

func parseCodeEntry(system string, v interface{}) (codeEntry, error) {
	switch val := v.(type) {
	case string:
		switch NormalizeKey(val) {
		case SentinelUnstructured:
			return codeEntry{status: CodeUnstructured, coding: fhir.Coding{System: fhirmodels.SystemUnstructured}}, nil
		case SentinelDoNotMigrate, "do not migrate":
			return codeEntry{status: CodeDoNotMigrate}, nil
		}
		return codeEntry{status: CodeMapped, coding: fhir.Coding{System: system, Code: val}}, nil
	case map[string]interface{}:
		if nested, ok := val["coding"].(map[string]interface{}); ok {
			val = nested
		}
		c := fhir.Coding{System: system}
		if s, ok := val["system"].(string); ok && s != "" {
			c.System = s
		}
		c.Code, _ = val["code"].(string)
		c.Display, _ = val["display"].(string)
		if c.System == fhirmodels.SystemUnstructured {
			return codeEntry{status: CodeUnstructured, coding: c}, nil
		}
		return codeEntry{status: CodeMapped, coding: c}, nil
	case nil:
		return codeEntry{}, fmt.Errorf("empty mapping")
	default:
		return codeEntry{}, fmt.Errorf("unsupported mapping value %T", v)
	}
}

// LoadCodeMap reads a .json, .yaml or .yml code map file.
func LoadCodeMap(system, path string) (*CodeMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read code map: %w", err)
	}
	raw := map[string]interface{}{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		err = json.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, fmt.Errorf("decode code map %s: %w", path, err)
	}
	return NewCodeMap(system, raw)
}

// Lookup tries candidates in order and returns the first mapped entry.
// Unstructured results keep the matched candidate as display text and "N/A"
// as code when the map supplies none.
func (m *CodeMap) Lookup(candidates ...string) CodeResult {
	for _, cand := range candidates {
		key := NormalizeKey(cand)
		if key == "" {
			continue
		}
		entry, ok := m.entries[key]
		if !ok {
			continue
		}
		res := CodeResult{Status: entry.status, Coding: entry.coding, Key: cand}
		switch entry.status {
		case CodeUnstructured:
			if res.Coding.Code == "" {
				res.Coding.Code = "N/A"
			}
			if res.Coding.Display == "" {
				res.Coding.Display = strings.TrimSpace(cand)
			}
		case CodeMapped:
			if res.Coding.Code == "" {
				res.Coding.Code = strings.TrimSpace(cand)
			}
		}
		return res
	}
	return CodeResult{Status: CodeNotFound}
}

// Len returns the number of entries.
func (m *CodeMap) Len() int { return len(m.entries) }

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
