package fhir

import (
	"strings"
)

// Resource is the minimal envelope shared by every FHIR resource returned by
// the remote API.
type Resource struct {
	ResourceType string      `json:"resourceType"`
	ID           string      `json:"id"`
	Extension    []Extension `json:"extension,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

type Identifier struct {
	Use    string `json:"use,omitempty"`
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
}

type Period struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

type Annotation struct {
	Text string `json:"text"`
}

type Extension struct {
	URL         string `json:"url"`
	ValueString string `json:"valueString,omitempty"`
	ValueID     string `json:"valueId,omitempty"`
}

// FormatReference builds a relative literal reference such as "Patient/123".
func FormatReference(resourceType, id string) string {
	return resourceType + "/" + id
}

// NewReference returns a Reference to resourceType/id.
func NewReference(resourceType, id string) Reference {
	return Reference{Reference: FormatReference(resourceType, id)}
}

// NoteExtension links a resource to the note it is documented in.
func NoteExtension(url, noteID string) Extension {
	return Extension{URL: url, ValueID: noteID}
}

// ExtensionValue returns the valueId (or valueString) of the first extension
// with the given url.
func (r *Resource) ExtensionValue(url string) (string, bool) {
	for _, e := range r.Extension {
		if e.URL != url {
			continue
		}
		if e.ValueID != "" {
			return e.ValueID, true
		}
		return e.ValueString, e.ValueString != ""
	}
	return "", false
}

// OperationOutcome represents a FHIR OperationOutcome returned on errors.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string           `json:"severity"`
	Code        string           `json:"code"`
	Details     *CodeableConcept `json:"details,omitempty"`
	Diagnostics string           `json:"diagnostics,omitempty"`
	Expression  []string         `json:"expression,omitempty"`
}

// Summary flattens the issues into a single human readable line.
func (o *OperationOutcome) Summary() string {
	parts := make([]string, 0, len(o.Issue))
	for _, issue := range o.Issue {
		msg := issue.Diagnostics
		if msg == "" && issue.Details != nil {
			msg = issue.Details.Text
		}
		if msg == "" {
			msg = issue.Code
		}
		if len(issue.Expression) > 0 {
			msg += " (" + strings.Join(issue.Expression, ", ") + ")"
		}
		parts = append(parts, issue.Severity+": "+msg)
	}
	return strings.Join(parts, "; ")
}
