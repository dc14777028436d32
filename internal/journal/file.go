package journal

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

var fileHeaders = map[Kind][]string{
	KindDone:     {"id", "patient_id", "target_patient_id", "target_id"},
	KindErrored:  {"id", "patient_id", "target_patient_id", "error"},
	KindIgnored:  {"id", "reason"},
	KindFollowUp: {"id", "patient_id", "target_id", "error"},
}

// FileName returns the journal file name of kind for resource, for example
// done_condition.csv or errored_appointment_note_state.csv.
func FileName(resource string, kind Kind) string {
	if kind == KindFollowUp {
		return fmt.Sprintf("errored_%s_%s.csv", resource, kind)
	}
	return fmt.Sprintf("%s_%s.csv", kind, resource)
}

// FileStore keeps each journal as a delimited text file in dir. Files are
// opened lazily in append mode and every entry is flushed as it is written.
type FileStore struct {
	dir       string
	resource  string
	delimiter rune

	mu    sync.Mutex
	files map[Kind]*os.File
}

// NewFileStore creates dir if needed.
func NewFileStore(dir, resource string, delimiter rune) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, resource: resource, delimiter: delimiter, files: map[Kind]*os.File{}}, nil
}

// Path returns the file backing kind.
func (s *FileStore) Path(kind Kind) string {
	return filepath.Join(s.dir, FileName(s.resource, kind))
}

func (s *FileStore) file(kind Kind) (*os.File, error) {
	if f, ok := s.files[kind]; ok {
		return f, nil
	}
	header, ok := fileHeaders[kind]
	if !ok {
		return nil, fmt.Errorf("unknown journal kind %q", kind)
	}
	path := s.Path(kind)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat journal %s: %w", path, err)
	}
	if info.Size() == 0 {
		if err := s.writeRecord(f, header); err != nil {
			f.Close()
			return nil, err
		}
	} else if err := terminateLastLine(f, info.Size()); err != nil {
		f.Close()
		return nil, fmt.Errorf("repair journal %s: %w", path, err)
	}
	s.files[kind] = f
	return f, nil
}

// terminateLastLine ends a partial line left by an interrupted run, so the
// next entry starts on its own line and the partial one stays unparseable.
func terminateLastLine(f *os.File, size int64) error {
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err := f.Write([]byte{'\n'})
	return err
}

func (s *FileStore) writeRecord(w io.Writer, record []string) error {
	cw := csv.NewWriter(w)
	cw.Comma = s.delimiter
	if err := cw.Write(record); err != nil {
		return fmt.Errorf("write journal line: %w", err)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush journal line: %w", err)
	}
	return nil
}

func record(e Entry) []string {
	var rec []string
	switch e.Kind {
	case KindDone:
		rec = []string{e.SourceID, e.SourcePatientID, e.TargetPatientID, e.TargetID}
	case KindErrored:
		rec = []string{e.SourceID, e.SourcePatientID, e.TargetPatientID, SingleLine(e.Message)}
	case KindIgnored:
		rec = []string{e.SourceID, SingleLine(e.Message)}
	case KindFollowUp:
		rec = []string{e.SourceID, e.SourcePatientID, e.TargetID, SingleLine(e.Message)}
	}
	return append(rec, e.Extra...)
}

// Append writes e to its journal.
func (s *FileStore) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.file(e.Kind)
	if err != nil {
		return err
	}
	return s.writeRecord(f, record(e))
}

// Entries reads kind back. A missing file has no entries; a truncated last
// line from an interrupted run is skipped.
func (s *FileStore) Entries(_ context.Context, kind Kind) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	header, ok := fileHeaders[kind]
	if !ok {
		return nil, fmt.Errorf("unknown journal kind %q", kind)
	}
	f, err := os.Open(s.Path(kind))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.Comma = s.delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var out []Entry
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read journal %s: %w", s.Path(kind), err)
		}
		if first {
			first = false
			if len(rec) > 0 && rec[0] == header[0] {
				continue
			}
		}
		if len(rec) < len(header) {
			continue
		}
		out = append(out, parseRecord(kind, rec, len(header)))
	}
}

func parseRecord(kind Kind, rec []string, n int) Entry {
	e := Entry{Kind: kind, SourceID: rec[0]}
	switch kind {
	case KindDone:
		e.SourcePatientID, e.TargetPatientID, e.TargetID = rec[1], rec[2], rec[3]
	case KindErrored:
		e.SourcePatientID, e.TargetPatientID, e.Message = rec[1], rec[2], rec[3]
	case KindIgnored:
		e.Message = rec[1]
	case KindFollowUp:
		e.SourcePatientID, e.TargetID, e.Message = rec[1], rec[2], rec[3]
	}
	if len(rec) > n {
		e.Extra = append([]string(nil), rec[n:]...)
	}
	return e
}

// Close closes every open journal file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for k, f := range s.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(s.files, k)
	}
	return errors.Join(errs...)
}
