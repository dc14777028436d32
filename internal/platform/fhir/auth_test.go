package fhir

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestClientCredentials_SecretAndCaching(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "client_credentials" {
			t.Errorf("unexpected grant_type %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("client_id") != "cid" || r.PostForm.Get("client_secret") != "shh" {
			t.Errorf("unexpected credentials %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"access_token":"t1","token_type":"Bearer","expires_in":3600}`)
	}))
	defer srv.Close()

	cc := &ClientCredentials{TokenURL: srv.URL, ClientID: "cid", ClientSecret: "shh"}
	for i := 0; i < 3; i++ {
		tok, err := cc.Token(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if tok != "t1" {
			t.Errorf("expected t1, got %q", tok)
		}
	}
	if calls != 1 {
		t.Errorf("expected one token request, got %d", calls)
	}

	cc.Invalidate()
	if _, err := cc.Token(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected a new token request after Invalidate, got %d calls", calls)
	}
}

func TestClientCredentials_RefreshesBeforeExpiry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		io.WriteString(w, `{"access_token":"t","expires_in":60}`)
	}))
	defer srv.Close()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cc := &ClientCredentials{TokenURL: srv.URL, ClientID: "cid", nowFn: func() time.Time { return now }}
	if _, err := cc.Token(context.Background()); err != nil {
		t.Fatal(err)
	}
	now = now.Add(45 * time.Second)
	if _, err := cc.Token(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("expected refresh inside the margin, got %d calls", calls)
	}
}

func TestClientCredentials_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":"invalid_client"}`)
	}))
	defer srv.Close()

	cc := &ClientCredentials{TokenURL: srv.URL, ClientID: "cid", ClientSecret: "bad"}
	_, err := cc.Token(context.Background())
	if !IsStatus(err, http.StatusBadRequest) {
		t.Fatalf("expected 400 APIError, got %v", err)
	}
}

func TestClientCredentials_PrivateKeyAssertion(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	var tokenURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("client_secret") != "" {
			t.Error("client_secret must not be sent with an assertion")
		}
		if r.PostForm.Get("client_assertion_type") != ClientAssertionType {
			t.Errorf("unexpected assertion type %q", r.PostForm.Get("client_assertion_type"))
		}
		claims := &jwt.RegisteredClaims{}
		tok, err := jwt.ParseWithClaims(r.PostForm.Get("client_assertion"), claims, func(tok *jwt.Token) (interface{}, error) {
			return &key.PublicKey, nil
		}, jwt.WithValidMethods([]string{"RS384"}), jwt.WithAudience(tokenURL))
		if err != nil || !tok.Valid {
			t.Errorf("assertion did not verify: %v", err)
		} else {
			if claims.Issuer != "cid" || claims.Subject != "cid" {
				t.Errorf("unexpected iss/sub %q/%q", claims.Issuer, claims.Subject)
			}
			if claims.ID == "" {
				t.Error("expected jti")
			}
			if tok.Header["kid"] != "k1" {
				t.Errorf("expected kid k1, got %v", tok.Header["kid"])
			}
		}
		io.WriteString(w, `{"access_token":"signed","expires_in":300}`)
	}))
	defer srv.Close()
	tokenURL = srv.URL

	cc := &ClientCredentials{TokenURL: srv.URL, ClientID: "cid", PrivateKey: key, KeyID: "k1"}
	tok, err := cc.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok != "signed" {
		t.Errorf("expected signed, got %q", tok)
	}
}

func TestClientCredentials_ShortBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "200")
		io.WriteString(w, `{"access_token":"t1"`)
	}))
	defer srv.Close()

	cc := &ClientCredentials{TokenURL: srv.URL, ClientID: "cid", ClientSecret: "shh"}
	_, err := cc.Token(context.Background())
	if err == nil || !strings.Contains(err.Error(), "read token response") {
		t.Fatalf("expected a read error, got %v", err)
	}
}
