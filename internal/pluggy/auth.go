package pluggy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dvloznov/openfinance-sync/internal/domain"
	"github.com/dvloznov/openfinance-sync/internal/metrics"
)

// CredentialLifetime is how long a fetched API key is reused. The aggregator
// issues keys valid for two hours.
const CredentialLifetime = 114 * time.Minute

// TokenCache obtains and caches the aggregator API key. One cache is shared
// by every job of the process; the last successful refresh wins.
type TokenCache struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	now          func() time.Time

	mu   sync.Mutex
	cred Credential
}

// NewTokenCache creates a cache that authenticates against baseURL.
func NewTokenCache(baseURL, clientID, clientSecret string, httpClient *http.Client) *TokenCache {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &TokenCache{
		baseURL:      baseURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		now:          time.Now,
	}
}

// Credential returns the cached credential, refreshing it when it expired
// or when forceRefresh is set.
func (c *TokenCache) Credential(ctx context.Context, forceRefresh bool) (Credential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !forceRefresh && c.cred.Valid(c.now()) {
		return c.cred, nil
	}

	token, err := c.authenticate(ctx)
	if err != nil {
		metrics.CredentialRefreshes.WithLabelValues("error").Inc()
		return Credential{}, err
	}
	metrics.CredentialRefreshes.WithLabelValues("ok").Inc()

	c.cred = Credential{Token: token, ExpiresAt: c.now().Add(CredentialLifetime)}
	return c.cred, nil
}

func (c *TokenCache) authenticate(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"clientId":     c.clientID,
		"clientSecret": c.clientSecret,
	})
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("authenticate: %w: %v", domain.ErrAuth, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("authenticate: %w: reading response: %v", domain.ErrAuth, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("authenticate: %w: status %d: %s", domain.ErrAuth, resp.StatusCode, truncate(body))
	}

	var out struct {
		APIKey string `json:"apiKey"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("authenticate: %w: malformed response: %v", domain.ErrAuth, err)
	}
	if out.APIKey == "" {
		return "", fmt.Errorf("authenticate: %w: response has no apiKey", domain.ErrAuth)
	}

	return out.APIKey, nil
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
