package pluggy

import (
	"fmt"
	"net/http"

	"github.com/dvloznov/openfinance-sync/internal/domain"
)

// APIError is a non-2xx aggregator response.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: aggregator returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Retryable reports whether the call may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Unwrap maps rejected credentials onto domain.ErrAuth.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return domain.ErrAuth
	}
	return nil
}
