package fhir

import (
	"encoding/json"

	"github.com/ehr/migrate/pkg/pagination"
)

// Bundle represents a searchset Bundle returned by the remote API.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// TotalOrLen returns Bundle.total when present, else the number of entries.
func (b *Bundle) TotalOrLen() int {
	if b.Total != nil {
		return *b.Total
	}
	return len(b.Entry)
}

// NextURL returns the "next" paging link, if present.
func (b *Bundle) NextURL() (string, bool) {
	links := make([]pagination.Link, len(b.Link))
	for i, l := range b.Link {
		links[i] = pagination.Link{Relation: l.Relation, URL: l.URL}
	}
	return pagination.NextURL(links)
}
