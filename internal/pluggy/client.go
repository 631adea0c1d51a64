package pluggy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"golang.org/x/time/rate"

	"github.com/dvloznov/openfinance-sync/internal/logger"
	"github.com/dvloznov/openfinance-sync/internal/metrics"
)

// Options tunes retries, pacing and pagination of a Client.
type Options struct {
	HTTPClient        *http.Client
	MaxAttempts       int
	RetryBaseDelay    time.Duration
	RequestsPerSecond float64
	PageSize          int
}

// Client calls the aggregator data endpoints. Every call is paced by a
// token-bucket limiter and retried with exponential backoff on transport
// errors, 429 and 5xx. A 401 forces one credential refresh and one replay.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	tokens      *TokenCache
	limiter     *rate.Limiter
	maxAttempts int
	baseDelay   time.Duration
	pageSize    int
}

// NewClient creates a client for baseURL authenticating through tokens.
func NewClient(baseURL string, tokens *TokenCache, opts Options) *Client {
	c := &Client{
		baseURL:     baseURL,
		httpClient:  opts.HTTPClient,
		tokens:      tokens,
		limiter:     rate.NewLimiter(rate.Inf, 1),
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.RetryBaseDelay,
		pageSize:    opts.PageSize,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 3
	}
	if c.baseDelay <= 0 {
		c.baseDelay = 500 * time.Millisecond
	}
	if c.pageSize <= 0 {
		c.pageSize = 500
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c
}

// ListAccounts returns every account of an item.
func (c *Client) ListAccounts(ctx context.Context, itemID string) ([]Account, error) {
	var out page[Account]
	q := url.Values{"itemId": {itemID}}
	if err := c.do(ctx, "accounts", http.MethodGet, "/accounts", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// ListTransactions returns the account's transactions dated on or after from,
// following pagination until the last page.
func (c *Client) ListTransactions(ctx context.Context, accountID string, from civil.Date) ([]Transaction, error) {
	var all []Transaction
	for pageNum := 1; ; pageNum++ {
		q := url.Values{
			"accountId": {accountID},
			"from":      {from.String()},
			"page":      {strconv.Itoa(pageNum)},
			"pageSize":  {strconv.Itoa(c.pageSize)},
		}
		var out page[Transaction]
		if err := c.do(ctx, "transactions", http.MethodGet, "/transactions", q, nil, &out); err != nil {
			return nil, err
		}
		all = append(all, out.Results...)

		if pageNum >= out.TotalPages || len(out.Results) == 0 {
			return all, nil
		}
	}
}

// ListBills returns the credit card bills of an account.
func (c *Client) ListBills(ctx context.Context, accountID string) ([]Bill, error) {
	var out page[Bill]
	q := url.Values{"accountId": {accountID}}
	if err := c.do(ctx, "bills", http.MethodGet, "/bills", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// GetItem returns the connection status of an item.
func (c *Client) GetItem(ctx context.Context, itemID string) (Item, error) {
	var out Item
	err := c.do(ctx, "items", http.MethodGet, "/items/"+url.PathEscape(itemID), nil, nil, &out)
	return out, err
}

// RefreshItem asks the connector to refresh an item's data from the bank.
func (c *Client) RefreshItem(ctx context.Context, itemID string) (Item, error) {
	var out Item
	err := c.do(ctx, "items", http.MethodPatch, "/items/"+url.PathEscape(itemID), nil, struct{}{}, &out)
	return out, err
}

// DeleteItem removes an item and its data at the aggregator.
func (c *Client) DeleteItem(ctx context.Context, itemID string) error {
	return c.do(ctx, "items", http.MethodDelete, "/items/"+url.PathEscape(itemID), nil, nil, nil)
}

// CreateConnectToken issues a connect-widget token for a user. A non-empty
// itemID scopes the token to updating that item.
func (c *Client) CreateConnectToken(ctx context.Context, clientUserID, itemID string) (ConnectToken, error) {
	body := map[string]any{
		"options": map[string]string{"clientUserId": clientUserID},
	}
	if itemID != "" {
		body["itemId"] = itemID
	}
	var out ConnectToken
	err := c.do(ctx, "connect_token", http.MethodPost, "/connect_token", nil, body, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, body, out any) error {
	log := logger.FromContext(ctx)

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("%s: encoding request: %w", endpoint, err)
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	forceRefresh := false
	refreshed := false
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			metrics.AggregatorRetries.WithLabelValues(endpoint).Inc()
			delay := c.baseDelay << (attempt - 1)
			log.Warn().Err(lastErr).Str("endpoint", endpoint).Int("attempt", attempt+1).Dur("backoff", delay).Msg("Retrying aggregator request")
			if err := sleep(ctx, delay); err != nil {
				return fmt.Errorf("%s: %w", endpoint, err)
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: rate limiter: %w", endpoint, err)
		}

		cred, err := c.tokens.Credential(ctx, forceRefresh)
		if err != nil {
			return fmt.Errorf("%s: %w", endpoint, err)
		}
		forceRefresh = false

		status, respBody, err := c.send(ctx, method, target, cred.Token, payload)
		metrics.AggregatorRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%s: %w", endpoint, ctx.Err())
			}
			lastErr = err
			continue
		}

		if status >= 200 && status < 300 {
			if out == nil || len(respBody) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("%s: decoding response: %w", endpoint, err)
			}
			return nil
		}

		apiErr := &APIError{Endpoint: endpoint, StatusCode: status, Body: truncate(respBody)}
		if status == http.StatusUnauthorized && !refreshed {
			// The cached key was revoked early; refresh once and replay
			// without consuming a retry attempt.
			log.Info().Str("endpoint", endpoint).Msg("Aggregator rejected credential, refreshing")
			refreshed = true
			forceRefresh = true
			attempt--
			continue
		}
		if !apiErr.Retryable() {
			return apiErr
		}
		lastErr = apiErr
	}

	return fmt.Errorf("%s: giving up after %d attempts: %w", endpoint, c.maxAttempts, lastErr)
}

func (c *Client) send(ctx context.Context, method, target, token string, payload []byte) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("X-API-KEY", token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, b, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
