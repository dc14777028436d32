package pagination

import (
	"net/url"
	"strconv"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Params holds offset pagination parameters for a FHIR search.
type Params struct {
	Limit  int
	Offset int
}

// New returns Params clamped to sane bounds.
func New(limit, offset int) Params {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return Params{Limit: limit, Offset: offset}
}

// Apply writes _count and _offset into a copy of query.
func (p Params) Apply(query url.Values) url.Values {
	out := url.Values{}
	for k, v := range query {
		out[k] = append([]string(nil), v...)
	}
	out.Set("_count", strconv.Itoa(p.Limit))
	out.Set("_offset", strconv.Itoa(p.Offset))
	return out
}

// Next returns the parameters for the following page.
func (p Params) Next() Params {
	return Params{Limit: p.Limit, Offset: p.Offset + p.Limit}
}

// Link is a relation/url pair as found in a searchset Bundle.
type Link struct {
	Relation string
	URL      string
}

// NextURL returns the url of the "next" link, if any.
func NextURL(links []Link) (string, bool) {
	for _, l := range links {
		if l.Relation == "next" && l.URL != "" {
			return l.URL, true
		}
	}
	return "", false
}
