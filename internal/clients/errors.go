package clients

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrMarketplaceRejected matches every MarketplaceError via errors.Is
var ErrMarketplaceRejected = errors.New("marketplace rejected request")

// MarketplaceError is a non-2xx response, or a Failure acknowledgement inside
// a 200 envelope. Detail carries the marketplace's own error body verbatim.
type MarketplaceError struct {
	API        string
	Operation  string
	StatusCode int
	Detail     string
	RetryAfter time.Duration
}

func (e *MarketplaceError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s failed: %s", e.API, e.Operation, e.Detail)
	}
	return fmt.Sprintf("%s %s failed (status %d): %s", e.API, e.Operation, e.StatusCode, e.Detail)
}

// Is makes errors.Is(err, ErrMarketplaceRejected) hold for marketplace errors
func (e *MarketplaceError) Is(target error) bool {
	return target == ErrMarketplaceRejected
}

// NewHTTPError builds a MarketplaceError from a failed HTTP response
func NewHTTPError(api, operation string, resp *http.Response, body []byte) *MarketplaceError {
	return &MarketplaceError{
		API:        api,
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Detail:     string(body),
		RetryAfter: ParseRetryAfter(resp),
	}
}

// ParseRetryAfter extracts the Retry-After duration from an HTTP response
func ParseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}

	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}

	// Try parsing as seconds
	if seconds, err := strconv.Atoi(retryAfter); err == nil {
		return time.Duration(seconds) * time.Second
	}

	// Try parsing as HTTP-date
	if t, err := http.ParseTime(retryAfter); err == nil {
		return time.Until(t)
	}

	return 0
}

// IsStatus reports whether err is a MarketplaceError with the given status code
func IsStatus(err error, status int) bool {
	var mpErr *MarketplaceError
	return errors.As(err, &mpErr) && mpErr.StatusCode == status
}
