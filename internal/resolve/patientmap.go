package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// Searcher pages through a remote search.
type Searcher interface {
	SearchAll(ctx context.Context, resourceType string, params url.Values, pageSize int, fn func(json.RawMessage) error) error
}

type patientIdentifiers struct {
	ID         string `json:"id"`
	Identifier []struct {
		System string `json:"system"`
		Value  string `json:"value"`
	} `json:"identifier"`
}

// BuildPatientMap searches every patient carrying an identifier of system
// and maps the identifier value to the patient id.
func BuildPatientMap(ctx context.Context, s Searcher, system string, pageSize int) (IdentifierMap, error) {
	params := url.Values{}
	params.Set("identifier", system+"|")

	out := IdentifierMap{}
	err := s.SearchAll(ctx, "Patient", params, pageSize, func(raw json.RawMessage) error {
		var p patientIdentifiers
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decode patient: %w", err)
		}
		for _, ident := range p.Identifier {
			if ident.System == system && ident.Value != "" {
				out[ident.Value] = p.ID
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("build patient map: %w", err)
	}
	return out, nil
}
