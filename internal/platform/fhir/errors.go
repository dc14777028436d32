package fhir

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrUnauthorized is returned when the API keeps rejecting a freshly issued token.
var ErrUnauthorized = errors.New("fhir: unauthorized")

// APIError is a non-2xx response from the remote API.
type APIError struct {
	Method        string
	URL           string
	StatusCode    int
	CorrelationID string
	Body          string
	Outcome       *OperationOutcome
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s returned %d", e.Method, e.URL, e.StatusCode)
	if e.CorrelationID != "" {
		fmt.Fprintf(&b, " (correlation id %s)", e.CorrelationID)
	}
	switch {
	case e.Outcome != nil && len(e.Outcome.Issue) > 0:
		b.WriteString(": ")
		b.WriteString(e.Outcome.Summary())
	case e.Body != "":
		b.WriteString(": ")
		b.WriteString(e.Body)
	}
	return b.String()
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

const maxErrorBody = 4096

func newAPIError(method, url string, status int, correlationID string, body []byte) *APIError {
	e := &APIError{
		Method:        method,
		URL:           url,
		StatusCode:    status,
		CorrelationID: correlationID,
	}
	body = truncateUTF8(body, maxErrorBody)
	var oo OperationOutcome
	if err := json.Unmarshal(body, &oo); err == nil && oo.ResourceType == "OperationOutcome" {
		e.Outcome = &oo
	}
	e.Body = strings.TrimSpace(string(body))
	return e
}

// truncateUTF8 cuts b to at most n bytes without splitting a rune.
func truncateUTF8(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	for n > 0 && !utf8.RuneStart(b[n]) {
		n--
	}
	return b[:n]
}
