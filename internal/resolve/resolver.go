// Package resolve maps source system identifiers and codes to their target
// system equivalents.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Identifier kinds used in NotFoundError.
const (
	KindPatient  = "patient"
	KindProvider = "provider"
	KindLocation = "location"
)

// Resolver holds the identifier and code maps of one run. It is built once
// and read only, except for the companion note cache which writes through
// on every new entry.
type Resolver struct {
	patients  IdentifierMap
	providers IdentifierMap
	locations IdentifierMap
	codes     map[string]*CodeMap
	notes     *NoteCache

	defaultProvider string
	defaultLocation string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithProviders sets the provider map. Without one, provider identifiers are
// assumed to already be target keys.
func WithProviders(m IdentifierMap) Option {
	return func(r *Resolver) { r.providers = m }
}

// WithLocations sets the practice location map. Without one, location
// identifiers are assumed to already be target keys.
func WithLocations(m IdentifierMap) Option {
	return func(r *Resolver) { r.locations = m }
}

// WithCodeMap registers a code map under name.
func WithCodeMap(name string, m *CodeMap) Option {
	return func(r *Resolver) { r.codes[name] = m }
}

// WithNoteCache enables companion note lookups.
func WithNoteCache(c *NoteCache) Option {
	return func(r *Resolver) { r.notes = c }
}

// WithDefaults sets the provider and location used when a row leaves them
// blank.
func WithDefaults(provider, location string) Option {
	return func(r *Resolver) {
		r.defaultProvider = provider
		r.defaultLocation = location
	}
}

// New builds a Resolver around the patient map.
func New(patients IdentifierMap, opts ...Option) *Resolver {
	if patients == nil {
		patients = IdentifierMap{}
	}
	r := &Resolver{patients: patients, codes: map[string]*CodeMap{}}
	for _, o := range opts {
		o(r)
	}
	return r
}

// CodeFile names a code map file and the code system of its values.
type CodeFile struct {
	System string
	Path   string
}

// Files lists the side files a Resolver is loaded from. Only Patients is
// required; empty paths and missing optional files are skipped.
type Files struct {
	Patients  string
	Providers string
	Locations string
	Notes     string
	Codes     map[string]CodeFile
}

// Load reads files and builds a Resolver.
func Load(files Files, opts ...Option) (*Resolver, error) {
	patients, err := LoadIdentifierMap(files.Patients)
	if err != nil {
		return nil, fmt.Errorf("patient map: %w", err)
	}

	var loaded []Option
	if m, err := loadOptional(files.Providers); err != nil {
		return nil, fmt.Errorf("provider map: %w", err)
	} else if m != nil {
		loaded = append(loaded, WithProviders(m))
	}
	if m, err := loadOptional(files.Locations); err != nil {
		return nil, fmt.Errorf("location map: %w", err)
	} else if m != nil {
		loaded = append(loaded, WithLocations(m))
	}
	for name, cf := range files.Codes {
		cm, err := LoadCodeMap(cf.System, cf.Path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, WithCodeMap(name, cm))
	}
	if files.Notes != "" {
		nc, err := OpenNoteCache(files.Notes)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, WithNoteCache(nc))
	}

	return New(patients, append(loaded, opts...)...), nil
}

func loadOptional(path string) (IdentifierMap, error) {
	if path == "" {
		return nil, nil
	}
	m, err := LoadIdentifierMap(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return m, err
}

// Patient returns the target patient key of a source patient identifier.
func (r *Resolver) Patient(sourceID string) (string, error) {
	id := strings.TrimSpace(sourceID)
	if target, ok := r.patients[id]; ok && target != "" {
		return target, nil
	}
	return "", &NotFoundError{Kind: KindPatient, Key: id}
}

// Provider returns the target staff key. A blank identifier resolves to the
// default provider.
func (r *Resolver) Provider(sourceID string) (string, error) {
	return r.lookupOptional(r.providers, KindProvider, sourceID, r.defaultProvider)
}

// Location returns the target practice location key. A blank identifier
// resolves to the default location.
func (r *Resolver) Location(sourceID string) (string, error) {
	return r.lookupOptional(r.locations, KindLocation, sourceID, r.defaultLocation)
}

func (r *Resolver) lookupOptional(m IdentifierMap, kind, sourceID, fallback string) (string, error) {
	id := strings.TrimSpace(sourceID)
	if id == "" {
		return fallback, nil
	}
	if m == nil {
		return id, nil
	}
	if target, ok := m[id]; ok && target != "" {
		return target, nil
	}
	return "", &NotFoundError{Kind: kind, Key: id}
}

// Code looks candidates up, in order, in the code map registered as name.
// Callers branch on the Status of the result.
func (r *Resolver) Code(name string, candidates ...string) CodeResult {
	cm, ok := r.codes[name]
	if !ok {
		return CodeResult{Status: CodeNotFound}
	}
	return cm.Lookup(candidates...)
}

// HasCodeMap reports whether a code map is registered under name.
func (r *Resolver) HasCodeMap(name string) bool {
	_, ok := r.codes[name]
	return ok
}

// CompanionNote returns the cached companion note of patientKey, calling
// create and persisting the result when there is none yet.
func (r *Resolver) CompanionNote(ctx context.Context, patientKey string, create func(context.Context) (string, error)) (string, error) {
	if r.notes == nil {
		return "", errors.New("companion note cache is not configured")
	}
	return r.notes.GetOrCreate(ctx, patientKey, create)
}

// Counts reports the size of each identifier map, for logging.
func (r *Resolver) Counts() map[string]int {
	return map[string]int{
		KindPatient:  len(r.patients),
		KindProvider: len(r.providers),
		KindLocation: len(r.locations),
		"code_maps":  len(r.codes),
	}
}
