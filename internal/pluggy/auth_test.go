package pluggy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/openfinance-sync/internal/domain"
)

func newAuthServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestTokenCache_CachesUntilExpiry(t *testing.T) {
	srv, calls := newAuthServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode auth body: %v", err)
		}
		if body["clientId"] != "id" || body["clientSecret"] != "secret" {
			t.Errorf("auth body = %v", body)
		}
		w.Write([]byte(`{"apiKey":"key-1"}`))
	})

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := NewTokenCache(srv.URL, "id", "secret", srv.Client())
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	first, err := cache.Credential(ctx, false)
	if err != nil {
		t.Fatalf("Credential() error: %v", err)
	}
	if want := now.Add(CredentialLifetime); !first.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want %v", first.ExpiresAt, want)
	}

	if _, err := cache.Credential(ctx, false); err != nil {
		t.Fatalf("Credential() error: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("auth calls after cached read = %d, want 1", got)
	}

	now = now.Add(CredentialLifetime + time.Second)
	if _, err := cache.Credential(ctx, false); err != nil {
		t.Fatalf("Credential() error: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("auth calls after expiry = %d, want 2", got)
	}

	if _, err := cache.Credential(ctx, true); err != nil {
		t.Fatalf("Credential(force) error: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("auth calls after forced refresh = %d, want 3", got)
	}
}

func TestTokenCache_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "rejected credentials",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"message":"invalid client"}`, http.StatusUnauthorized)
			},
		},
		{
			name: "missing api key",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"token":"wrong-field"}`))
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`not json`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newAuthServer(t, tt.handler)
			cache := NewTokenCache(srv.URL, "id", "secret", srv.Client())

			_, err := cache.Credential(context.Background(), false)
			if !errors.Is(err, domain.ErrAuth) {
				t.Errorf("Credential() error = %v, want ErrAuth", err)
			}
		})
	}
}

func TestCredential_Valid(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		cred Credential
		want bool
	}{
		{"empty", Credential{}, false},
		{"live", Credential{Token: "k", ExpiresAt: now.Add(time.Minute)}, true},
		{"expired", Credential{Token: "k", ExpiresAt: now.Add(-time.Minute)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cred.Valid(now); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}
