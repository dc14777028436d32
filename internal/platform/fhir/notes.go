package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ehr/migrate/pkg/fhirmodels"
)

const notesPath = "/core/api/notes/v1/Note"

// NoteRequest creates a note through the notes API.
type NoteRequest struct {
	NoteTypeName        string `json:"noteTypeName"`
	PatientKey          string `json:"patientKey"`
	ProviderKey         string `json:"providerKey"`
	PracticeLocationKey string `json:"practiceLocationKey,omitempty"`
	EncounterStartTime  string `json:"encounterStartTime"`
	Title               string `json:"title,omitempty"`
}

type noteResponse struct {
	NoteKey string `json:"noteKey"`
}

func (c *Client) notesURL(parts ...string) (string, error) {
	if c.apiBaseURL == "" {
		return "", fmt.Errorf("notes api: api base url is not configured")
	}
	u := c.apiBaseURL + notesPath
	if len(parts) > 0 {
		u += "/" + strings.Join(parts, "/")
	}
	return u, nil
}

// CreateNote creates a note and returns its key.
func (c *Client) CreateNote(ctx context.Context, req NoteRequest) (string, error) {
	target, err := c.notesURL()
	if err != nil {
		return "", err
	}
	resp, body, err := c.do(ctx, http.MethodPost, target, req)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", c.apiError(http.MethodPost, target, resp, body)
	}
	var nr noteResponse
	if err := json.Unmarshal(body, &nr); err != nil {
		return "", fmt.Errorf("decode note response: %w", err)
	}
	if nr.NoteKey == "" {
		return "", fmt.Errorf("note created for patient %s but response has no noteKey", req.PatientKey)
	}
	return nr.NoteKey, nil
}

// TransitionNote moves a note to state. A note already in that state is not
// an error.
func (c *Client) TransitionNote(ctx context.Context, noteKey, state string) error {
	target, err := c.notesURL(noteKey)
	if err != nil {
		return err
	}
	resp, body, err := c.do(ctx, http.MethodPatch, target, map[string]string{"stateChange": state})
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	if strings.Contains(string(body), state+" -> "+state) {
		return nil
	}
	return c.apiError(http.MethodPatch, target, resp, body)
}

// CheckInAndLock checks a note in and then locks it.
func (c *Client) CheckInAndLock(ctx context.Context, noteKey string) error {
	if err := c.TransitionNote(ctx, noteKey, fhirmodels.NoteStateCheckedIn); err != nil {
		return fmt.Errorf("check in note %s: %w", noteKey, err)
	}
	if err := c.TransitionNote(ctx, noteKey, fhirmodels.NoteStateLocked); err != nil {
		return fmt.Errorf("lock note %s: %w", noteKey, err)
	}
	return nil
}

// NoteIDForResource reads resourceType/id and returns the note it is
// documented in.
func (c *Client) NoteIDForResource(ctx context.Context, resourceType, id string) (string, error) {
	var res Resource
	if err := c.Read(ctx, resourceType, id, &res); err != nil {
		return "", err
	}
	if v, ok := res.ExtensionValue(fhirmodels.ExtensionNoteID); ok {
		return v, nil
	}
	return "", fmt.Errorf("%s/%s has no note id extension", resourceType, id)
}
