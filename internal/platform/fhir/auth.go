package fhir

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ClientAssertionType is the SMART backend services assertion type.
const ClientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// TokenSource supplies bearer tokens for API calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	// Invalidate drops the cached token so the next call fetches a new one.
	Invalidate()
}

// ClientCredentials obtains tokens with the OAuth2 client_credentials grant.
// When PrivateKey is set the client authenticates with a signed JWT
// assertion (private_key_jwt) instead of the shared secret.
type ClientCredentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	PrivateKey   *rsa.PrivateKey
	KeyID        string
	HTTPClient   *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
	nowFn  func() time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// refreshMargin renews tokens slightly before they expire.
const refreshMargin = 30 * time.Second

func (c *ClientCredentials) now() time.Time {
	if c.nowFn != nil {
		return c.nowFn()
	}
	return time.Now()
}

// Token returns a cached token or requests a new one.
func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && (c.expiry.IsZero() || c.now().Before(c.expiry.Add(-refreshMargin))) {
		return c.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.ClientID)
	if c.PrivateKey != nil {
		assertion, err := c.signAssertion()
		if err != nil {
			return "", err
		}
		form.Set("client_assertion_type", ClientAssertionType)
		form.Set("client_assertion", assertion)
	} else {
		form.Set("client_secret", c.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unable to get a valid bearer token for client %s: %w",
			c.ClientID, newAPIError(http.MethodPost, c.TokenURL, resp.StatusCode, "", body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token response from %s has no access_token", c.TokenURL)
	}

	c.token = tr.AccessToken
	c.expiry = time.Time{}
	if tr.ExpiresIn > 0 {
		c.expiry = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return c.token, nil
}

func (c *ClientCredentials) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiry = time.Time{}
	c.mu.Unlock()
}

// signAssertion builds the RS384 client assertion described by SMART
// backend services: iss and sub are the client id, aud is the token url.
func (c *ClientCredentials) signAssertion() (string, error) {
	now := c.now()
	claims := jwt.RegisteredClaims{
		Issuer:    c.ClientID,
		Subject:   c.ClientID,
		Audience:  jwt.ClaimStrings{c.TokenURL},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS384, claims)
	if c.KeyID != "" {
		token.Header["kid"] = c.KeyID
	}
	signed, err := token.SignedString(c.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("sign client assertion: %w", err)
	}
	return signed, nil
}

// LoadPrivateKey reads a PEM encoded RSA private key.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key %s: %w", path, err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parse private key %s: %w", path, err)
	}
	return key, nil
}

// StaticToken is a TokenSource returning a fixed token. Useful for local
// instances and tests.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }
func (s StaticToken) Invalidate()                             {}
