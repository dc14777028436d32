package fhir

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// countingTokens hands out tok-1, tok-2, ... each time the cache is invalidated.
type countingTokens struct {
	issued      int32
	invalidated int32
}

func (c *countingTokens) Token(context.Context) (string, error) {
	n := atomic.LoadInt32(&c.invalidated) + 1
	atomic.StoreInt32(&c.issued, n)
	return "tok-" + string(rune('0'+n)), nil
}

func (c *countingTokens) Invalidate() { atomic.AddInt32(&c.invalidated, 1) }

func TestClient_Create_IDFromLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/Condition" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer abc" {
			t.Errorf("expected bearer token, got %q", got)
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header")
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body["resourceType"] != "Condition" {
			t.Errorf("unexpected payload %v", body)
		}
		w.Header().Set("Location", "https://fhir.example.com/Condition/c-42/_history/1")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken("abc"))
	id, err := c.Create(context.Background(), "Condition", map[string]string{"resourceType": "Condition"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "c-42" {
		t.Errorf("expected id c-42, got %q", id)
	}
}

func TestClient_Create_IDFromBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"resourceType":"Coverage","id":"cov-1"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken("abc"))
	id, err := c.Create(context.Background(), "Coverage", map[string]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "cov-1" {
		t.Errorf("expected cov-1, got %q", id)
	}
}

func TestClient_Create_ReauthOn401(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				t.Errorf("first call should use tok-1, got %q", r.Header.Get("Authorization"))
			}
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok-2" {
			t.Errorf("retry should use tok-2, got %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Location", "/AllergyIntolerance/a-1")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	tokens := &countingTokens{}
	c := NewClient(srv.URL, tokens)
	id, err := c.Create(context.Background(), "AllergyIntolerance", map[string]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "a-1" {
		t.Errorf("expected a-1, got %q", id)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestClient_Create_Persistent401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &countingTokens{})
	_, err := c.Create(context.Background(), "Condition", map[string]string{})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestClient_Create_OperationOutcome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Fumage-Correlation-Id", "corr-9")
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"resourceType":"OperationOutcome","issue":[{"severity":"error","code":"invalid","diagnostics":"bad onset\ndate"}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken("abc"))
	_, err := c.Create(context.Background(), "Condition", map[string]string{})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", apiErr.StatusCode)
	}
	if apiErr.CorrelationID != "corr-9" {
		t.Errorf("expected correlation id corr-9, got %q", apiErr.CorrelationID)
	}
	if !strings.Contains(err.Error(), "error: bad onset") {
		t.Errorf("expected outcome summary in error, got %q", err.Error())
	}
	if !IsStatus(err, http.StatusUnprocessableEntity) {
		t.Error("IsStatus should match 422")
	}
}

func TestClient_SearchAll_FollowsNextLink(t *testing.T) {
	var pages int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&pages, 1)
		q := r.URL.Query()
		if q.Get("identifier") != "sys|" {
			t.Errorf("expected identifier param to be kept, got %q", q.Get("identifier"))
		}
		if q.Get("_count") != "2" {
			t.Errorf("expected _count=2, got %q", q.Get("_count"))
		}
		switch q.Get("_offset") {
		case "0":
			io.WriteString(w, `{"resourceType":"Bundle","type":"searchset",
				"link":[{"relation":"next","url":"http://x/Patient?_offset=2"}],
				"entry":[{"resource":{"resourceType":"Patient","id":"p1"}},{"resource":{"resourceType":"Patient","id":"p2"}}]}`)
		case "2":
			io.WriteString(w, `{"resourceType":"Bundle","type":"searchset",
				"entry":[{"resource":{"resourceType":"Patient","id":"p3"}}]}`)
		default:
			t.Errorf("unexpected offset %q", q.Get("_offset"))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken("abc"))
	params := map[string][]string{"identifier": {"sys|"}}
	var ids []string
	err := c.SearchAll(context.Background(), "Patient", params, 2, func(raw json.RawMessage) error {
		var r Resource
		if err := json.Unmarshal(raw, &r); err != nil {
			return err
		}
		ids = append(ids, r.ID)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(ids, ",") != "p1,p2,p3" {
		t.Errorf("unexpected ids %v", ids)
	}
	if pages != 2 {
		t.Errorf("expected 2 pages, got %d", pages)
	}
}

func TestClient_TransitionNote_AlreadyInState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/core/api/notes/v1/Note/n-1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["stateChange"] == "LKD" {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":"invalid state transition LKD -> LKD"}`)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/fhir", StaticToken("abc"), WithAPIBaseURL(srv.URL))
	if err := c.CheckInAndLock(context.Background(), "n-1"); err != nil {
		t.Fatalf("expected already-locked note to be accepted, got %v", err)
	}
}

func TestClient_TransitionNote_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"invalid state transition NEW -> LKD"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken("abc"), WithAPIBaseURL(srv.URL))
	err := c.TransitionNote(context.Background(), "n-1", "LKD")
	if !IsStatus(err, http.StatusBadRequest) {
		t.Fatalf("expected 400 APIError, got %v", err)
	}
}

func TestClient_CreateNote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req NoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.PatientKey != "pat-1" || req.NoteTypeName != "Data Migration" {
			t.Errorf("unexpected request %+v", req)
		}
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"noteKey":"note-7"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken("abc"), WithAPIBaseURL(srv.URL))
	key, err := c.CreateNote(context.Background(), NoteRequest{
		NoteTypeName:       "Data Migration",
		PatientKey:         "pat-1",
		ProviderKey:        "prov-1",
		EncounterStartTime: "2024-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "note-7" {
		t.Errorf("expected note-7, got %q", key)
	}
}

func TestClient_CreateNote_NoAPIBase(t *testing.T) {
	c := NewClient("http://unused", StaticToken("abc"))
	if _, err := c.CreateNote(context.Background(), NoteRequest{}); err == nil {
		t.Fatal("expected error without api base url")
	}
}

func TestClient_NoteIDForResource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"resourceType":"Appointment","id":"ap-1","extension":[
			{"url":"http://schemas.canvasmedical.com/fhir/extensions/note-id","valueId":"note-3"}]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken("abc"))
	id, err := c.NoteIDForResource(context.Background(), "Appointment", "ap-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "note-3" {
		t.Errorf("expected note-3, got %q", id)
	}
}

func TestIDFromLocation(t *testing.T) {
	tests := []struct {
		location string
		want     string
	}{
		{"https://host/fhir/Condition/abc/_history/1", "abc"},
		{"/Condition/abc", "abc"},
		{"Condition/xyz/_history/3", "xyz"},
		{"https://host/fhir/Patient/abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := IDFromLocation(tt.location, "Condition"); got != tt.want {
			t.Errorf("IDFromLocation(%q) = %q, want %q", tt.location, got, tt.want)
		}
	}
}

func TestClient_Create_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, StaticToken("abc"), WithTimeout(50*time.Millisecond))
	start := time.Now()
	_, err := c.Create(context.Background(), "Condition", map[string]string{"resourceType": "Condition"})
	if err == nil {
		t.Fatal("expected the slow create to time out")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected the call to give up near its timeout, took %s", elapsed)
	}
	if !strings.Contains(err.Error(), "/Condition") {
		t.Errorf("error should name the request, got %v", err)
	}
}
