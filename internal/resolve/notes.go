package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
)

// NoteCache is a read-through cache of companion notes keyed by target
// patient key, backed by a JSON file that is rewritten on every new entry.
type NoteCache struct {
	path string

	mu    sync.Mutex
	notes map[string]string
}

// OpenNoteCache loads path, starting empty when it does not exist yet.
func OpenNoteCache(path string) (*NoteCache, error) {
	c := &NoteCache{path: path, notes: map[string]string{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read note cache: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &c.notes); err != nil {
			return nil, fmt.Errorf("decode note cache %s: %w", path, err)
		}
	}
	return c, nil
}

// Get returns the cached note of patientKey.
func (c *NoteCache) Get(patientKey string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.notes[patientKey]
	return id, ok
}

// GetOrCreate returns the cached note or creates one. A new note is written
// to disk before it is returned.
func (c *NoteCache) GetOrCreate(ctx context.Context, patientKey string, create func(context.Context) (string, error)) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id, ok := c.notes[patientKey]; ok {
		return id, nil
	}
	id, err := create(ctx)
	if err != nil {
		return "", fmt.Errorf("create companion note for patient %s: %w", patientKey, err)
	}
	c.notes[patientKey] = id
	if err := WriteJSONFile(c.path, c.notes); err != nil {
		return "", fmt.Errorf("persist companion note %s for patient %s: %w", id, patientKey, err)
	}
	return id, nil
}

// Len returns the number of cached notes.
func (c *NoteCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.notes)
}
