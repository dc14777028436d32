package pagination

import (
	"net/url"
	"testing"
)

func TestNew_Defaults(t *testing.T) {
	p := New(0, -5)
	if p.Limit != DefaultLimit {
		t.Errorf("expected limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected offset 0, got %d", p.Offset)
	}
}

func TestNew_MaxLimit(t *testing.T) {
	p := New(5000, 10)
	if p.Limit != MaxLimit {
		t.Errorf("expected limit capped to %d, got %d", MaxLimit, p.Limit)
	}
	if p.Offset != 10 {
		t.Errorf("expected offset 10, got %d", p.Offset)
	}
}

func TestParams_ApplyDoesNotMutate(t *testing.T) {
	q := url.Values{"identifier": {"http://ehr.example|"}}
	out := New(50, 100).Apply(q)

	if out.Get("_count") != "50" || out.Get("_offset") != "100" {
		t.Errorf("unexpected paging params: %v", out)
	}
	if out.Get("identifier") != "http://ehr.example|" {
		t.Errorf("expected identifier to be preserved, got %q", out.Get("identifier"))
	}
	if q.Get("_count") != "" {
		t.Error("expected original query to be left untouched")
	}
}

func TestParams_Next(t *testing.T) {
	p := New(25, 0).Next().Next()
	if p.Offset != 50 {
		t.Errorf("expected offset 50, got %d", p.Offset)
	}
	if p.Limit != 25 {
		t.Errorf("expected limit 25, got %d", p.Limit)
	}
}

func TestNextURL(t *testing.T) {
	links := []Link{{Relation: "self", URL: "a"}, {Relation: "next", URL: "b"}}
	u, ok := NextURL(links)
	if !ok || u != "b" {
		t.Errorf("expected next link b, got %q (%v)", u, ok)
	}

	if _, ok := NextURL([]Link{{Relation: "self", URL: "a"}}); ok {
		t.Error("expected no next link")
	}
}
