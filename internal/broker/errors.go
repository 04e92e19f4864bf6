package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// APIError represents a provider error with status code and response body.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// IsNotFound reports whether the error is a provider 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 404
}

// IsRetryable reports whether the error is transient: timeouts,
// cancelled contexts excluded, rate limits, and provider 5xx.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == 429 || apiErr.Status >= 500
	}
	return false
}

// IsTimeout reports whether the error is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsProviderError reports whether the error carries a provider status.
func IsProviderError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// IsInsufficientFunds reports whether the provider rejected an order
// for lack of buying power. Tradier signals this in the response body
// rather than with a dedicated status code.
func IsInsufficientFunds(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	body := strings.ToLower(apiErr.Body)
	return strings.Contains(body, "insufficient") || strings.Contains(body, "buying power")
}

// IsMarketClosed reports whether the provider rejected a request
// because the market session is closed.
func IsMarketClosed(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return strings.Contains(strings.ToLower(apiErr.Body), "market is closed")
}
