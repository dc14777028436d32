package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ehr/migrate/internal/domain/allergy"
	"github.com/ehr/migrate/internal/domain/appointment"
	"github.com/ehr/migrate/internal/domain/condition"
	"github.com/ehr/migrate/internal/domain/coverage"
	"github.com/ehr/migrate/internal/domain/historical"
	"github.com/ehr/migrate/internal/domain/immunization"
	"github.com/ehr/migrate/internal/domain/medication"
	"github.com/ehr/migrate/internal/load"
	"github.com/ehr/migrate/internal/platform/fhir"
	"github.com/ehr/migrate/internal/resolve"
	"github.com/ehr/migrate/internal/validate"
	"github.com/ehr/migrate/pkg/fhirmodels"
)

// Mapping file names under MAPPINGS_DIR.
const (
	patientMapFile  = "patient_id_map"
	providerMapFile = "provider_map"
	locationMapFile = "location_map"
	noteCacheFile   = "historical_notes.json"
)

// deps are what builders are constructed from.
type deps struct {
	resolver     *resolve.Resolver
	client       *fhir.Client
	notes        *historical.Notes
	sourceSystem string
	cutoff       time.Time
	noDupCheck   bool
}

// codeMap is a code map a resource reads, by resolver name.
type codeMap struct {
	name   string
	system string
}

type resourceDef struct {
	name     string
	codeMaps []codeMap
	schema   func(codes map[string]*resolve.CodeMap) *validate.Schema
	builder  func(d deps) load.Builder
}

var resources = map[string]resourceDef{
	allergy.Resource: {
		name:     allergy.Resource,
		codeMaps: []codeMap{{allergy.CodeMapAllergy, fhirmodels.SystemFDB}},
		schema:   func(map[string]*resolve.CodeMap) *validate.Schema { return allergy.Schema() },
		builder: func(d deps) load.Builder {
			return allergy.NewBuilder(d.resolver, d.notes, d.resolver.HasCodeMap(allergy.CodeMapAllergy))
		},
	},
	appointment.Resource: {
		name:     appointment.Resource,
		codeMaps: []codeMap{{appointment.CodeMapReason, fhirmodels.SystemAppointmentTypeLocal}},
		schema:   func(map[string]*resolve.CodeMap) *validate.Schema { return appointment.Schema() },
		builder: func(d deps) load.Builder {
			opts := []appointment.Option{appointment.WithDuplicateCheck(!d.noDupCheck)}
			if !d.cutoff.IsZero() {
				opts = append(opts, appointment.WithCutoff(d.cutoff))
			}
			if d.resolver.HasCodeMap(appointment.CodeMapReason) {
				opts = append(opts, appointment.WithReasonMap())
			}
			return appointment.NewBuilder(d.resolver, d.client, d.sourceSystem, opts...)
		},
	},
	condition.Resource: {
		name:     condition.Resource,
		codeMaps: []codeMap{{condition.CodeMapICD10, fhirmodels.SystemICD10CM}},
		schema: func(codes map[string]*resolve.CodeMap) *validate.Schema {
			return condition.Schema(icd10Lookup(codes[condition.CodeMapICD10]))
		},
		builder: func(d deps) load.Builder {
			return condition.NewBuilder(d.resolver, d.notes)
		},
	},
	coverage.Resource: {
		name:     coverage.Resource,
		codeMaps: []codeMap{{coverage.CodeMapPayor, fhirmodels.SystemPayorERA}},
		schema:   func(map[string]*resolve.CodeMap) *validate.Schema { return coverage.Schema() },
		builder: func(d deps) load.Builder {
			return coverage.NewBuilder(d.resolver, d.resolver.HasCodeMap(coverage.CodeMapPayor))
		},
	},
	immunization.Resource: {
		name:   immunization.Resource,
		schema: func(map[string]*resolve.CodeMap) *validate.Schema { return immunization.Schema() },
		builder: func(d deps) load.Builder {
			return immunization.NewBuilder(d.resolver, d.notes)
		},
	},
	medication.Resource: {
		name:     medication.Resource,
		codeMaps: []codeMap{{medication.CodeMapMedication, fhirmodels.SystemFDB}},
		schema:   func(map[string]*resolve.CodeMap) *validate.Schema { return medication.Schema() },
		builder: func(d deps) load.Builder {
			return medication.NewBuilder(d.resolver, d.notes, d.resolver.HasCodeMap(medication.CodeMapMedication))
		},
	},
}

func resourceNames() []string {
	names := make([]string, 0, len(resources))
	for n := range resources {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func lookupResource(name string) (resourceDef, error) {
	def, ok := resources[strings.ToLower(name)]
	if !ok {
		return resourceDef{}, fmt.Errorf("unknown resource %q (expected one of %s)", name, strings.Join(resourceNames(), ", "))
	}
	return def, nil
}

// icd10Lookup adapts an ICD-10 code map to a display lookup. A nil map
// disables the lookup.
func icd10Lookup(cm *resolve.CodeMap) condition.DisplayLookup {
	if cm == nil {
		return nil
	}
	return func(code string) (string, bool) {
		res := cm.Lookup(code)
		if res.Status != resolve.CodeMapped || res.Coding.Display == "" {
			return "", false
		}
		return res.Coding.Display, true
	}
}

// mappingFile returns the first of name.json, name.yaml and name.yml that
// exists in dir, or name.json when none does.
func mappingFile(dir, name string) string {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		p := filepath.Join(dir, name+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(dir, name+".json")
}

// codeFiles lists the code maps of def for resolve.Load.
func codeFiles(dir string, def resourceDef) map[string]resolve.CodeFile {
	out := make(map[string]resolve.CodeFile, len(def.codeMaps))
	for _, cm := range def.codeMaps {
		out[cm.name] = resolve.CodeFile{System: cm.system, Path: mappingFile(dir, cm.name)}
	}
	return out
}

// loadCodeMaps reads the code maps of def that exist, for validation.
func loadCodeMaps(dir string, def resourceDef) (map[string]*resolve.CodeMap, error) {
	out := map[string]*resolve.CodeMap{}
	for name, cf := range codeFiles(dir, def) {
		if _, err := os.Stat(cf.Path); err != nil {
			continue
		}
		cm, err := resolve.LoadCodeMap(cf.System, cf.Path)
		if err != nil {
			return nil, err
		}
		out[name] = cm
	}
	return out, nil
}

// sourceFile is the default export path of a resource.
func sourceFile(dataDir, resource string) string {
	return filepath.Join(dataDir, resource+".csv")
}

// parseCutoff accepts a date or an ISO-8601 timestamp.
func parseCutoff(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	v, err := validate.DateTime(s, "cutoff")
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(validate.ISO8601, v)
}
