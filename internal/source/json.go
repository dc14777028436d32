package source

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// NewJSONReader decodes a JSON array of flat objects. Header order follows
// first appearance of each key. Numbers and booleans are rendered as text,
// null as an empty string; nested values are kept as raw JSON.
func NewJSONReader(r io.Reader) (Reader, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, fmt.Errorf("decode json: expected an array of objects")
	}

	var (
		header []string
		seen   = map[string]bool{}
		rows   []Row
	)
	for dec.More() {
		obj, keys, err := decodeObject(dec)
		if err != nil {
			return nil, fmt.Errorf("decode json row %d: %w", len(rows)+1, err)
		}
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
		}
		rows = append(rows, obj)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	for _, row := range rows {
		for _, col := range header {
			if _, ok := row[col]; !ok {
				row[col] = ""
			}
		}
	}
	return NewSliceReader(header, rows), nil
}

func decodeObject(dec *json.Decoder) (Row, []string, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected an object")
	}

	row := Row{}
	var keys []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, err
		}
		row[key] = scalarText(raw)
		keys = append(keys, key)
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, err
	}
	return row, keys, nil
}

func scalarText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return strconv.FormatBool(b)
		}
	}
	return string(raw)
}
