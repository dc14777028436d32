package fhir

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/migrate/pkg/pagination"
)

// correlationHeaders are checked, in order, for a server side request id
// worth quoting in error messages.
var correlationHeaders = []string{"Fumage-Correlation-Id", "X-Correlation-Id", "X-Request-Id"}

const maxResponseBody = 10 << 20

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-call timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// WithAPIBaseURL sets the base url of the non-FHIR API (notes).
func WithAPIBaseURL(u string) ClientOption {
	return func(c *Client) { c.apiBaseURL = strings.TrimRight(u, "/") }
}

// Client talks to the target system's FHIR API.
type Client struct {
	baseURL    string
	apiBaseURL string
	httpClient *http.Client
	tokens     TokenSource
	logger     zerolog.Logger
}

// NewClient creates a Client for the FHIR endpoint at baseURL.
func NewClient(baseURL string, tokens TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokens:     tokens,
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the FHIR base url.
func (c *Client) BaseURL() string { return c.baseURL }

// do performs one request, re-authenticating once on a 401.
func (c *Client) do(ctx context.Context, method, rawURL string, payload interface{}) (*http.Response, []byte, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal %s payload: %w", method, err)
		}
	}

	for attempt := 1; ; attempt++ {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, nil, err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			return nil, nil, fmt.Errorf("build request: %w", err)
		}
		reqID := uuid.NewString()
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")
		req.Header.Set("X-Request-ID", reqID)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, nil, fmt.Errorf("%s %s: %w", method, rawURL, err)
		}
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		resp.Body.Close()

		c.logger.Debug().
			Str("request_id", reqID).
			Str("method", method).
			Str("url", rawURL).
			Int("status", resp.StatusCode).
			Dur("latency", time.Since(start)).
			Msg("api call")

		if readErr != nil {
			return nil, nil, fmt.Errorf("read %s %s response: %w", method, rawURL, readErr)
		}

		if resp.StatusCode == http.StatusUnauthorized {
			c.tokens.Invalidate()
			if attempt == 1 {
				continue
			}
			return resp, respBody, fmt.Errorf("%w: %s", ErrUnauthorized, c.apiError(method, rawURL, resp, respBody))
		}
		return resp, respBody, nil
	}
}

func (c *Client) apiError(method, rawURL string, resp *http.Response, body []byte) *APIError {
	var correlationID string
	for _, h := range correlationHeaders {
		if v := resp.Header.Get(h); v != "" {
			correlationID = v
			break
		}
	}
	return newAPIError(method, rawURL, resp.StatusCode, correlationID, body)
}

func (c *Client) resourceURL(resourceType string, parts ...string) string {
	u := c.baseURL + "/" + resourceType
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

// Create posts payload to the type endpoint and returns the id of the
// created resource.
func (c *Client) Create(ctx context.Context, resourceType string, payload interface{}) (string, error) {
	target := c.resourceURL(resourceType)
	resp, body, err := c.do(ctx, http.MethodPost, target, payload)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", c.apiError(http.MethodPost, target, resp, body)
	}

	if id := IDFromLocation(resp.Header.Get("Location"), resourceType); id != "" {
		return id, nil
	}
	var created Resource
	if err := json.Unmarshal(body, &created); err == nil && created.ID != "" {
		return created.ID, nil
	}
	return "", fmt.Errorf("create %s succeeded with status %d but returned no resource id", resourceType, resp.StatusCode)
}

// IDFromLocation extracts the logical id from a Location header such as
// "https://host/fhir/Condition/abc/_history/1".
func IDFromLocation(location, resourceType string) string {
	if location == "" {
		return ""
	}
	if u, err := url.Parse(location); err == nil {
		location = u.Path
	}
	segments := strings.Split(strings.Trim(location, "/"), "/")
	for i := len(segments) - 2; i >= 0; i-- {
		if segments[i] == resourceType && segments[i+1] != "" {
			return segments[i+1]
		}
	}
	return ""
}

// Read fetches resourceType/id into out.
func (c *Client) Read(ctx context.Context, resourceType, id string, out interface{}) error {
	target := c.resourceURL(resourceType, id)
	resp, body, err := c.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return c.apiError(http.MethodGet, target, resp, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s/%s: %w", resourceType, id, err)
	}
	return nil
}

// Search runs a single search request and returns the result bundle.
func (c *Client) Search(ctx context.Context, resourceType string, params url.Values) (*Bundle, error) {
	target := c.resourceURL(resourceType)
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	resp, body, err := c.do(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(http.MethodGet, target, resp, body)
	}
	var bundle Bundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		return nil, fmt.Errorf("decode %s search bundle: %w", resourceType, err)
	}
	return &bundle, nil
}

// SearchAll pages through a search with _count/_offset, calling fn for every
// entry, until the server stops returning a next link or a page is empty.
func (c *Client) SearchAll(ctx context.Context, resourceType string, params url.Values, pageSize int, fn func(json.RawMessage) error) error {
	page := pagination.New(pageSize, 0)
	for {
		bundle, err := c.Search(ctx, resourceType, page.Apply(params))
		if err != nil {
			return err
		}
		for _, e := range bundle.Entry {
			if err := fn(e.Resource); err != nil {
				return err
			}
		}
		c.logger.Info().
			Str("resource_type", resourceType).
			Int("offset", page.Offset).
			Int("entries", len(bundle.Entry)).
			Msg("search page")

		if _, ok := bundle.NextURL(); !ok || len(bundle.Entry) == 0 {
			return nil
		}
		page = page.Next()
	}
}
