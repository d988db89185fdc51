package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Error taxonomy of the sync engine. Marketplace rejections are
// *clients.MarketplaceError and match clients.ErrMarketplaceRejected.
var (
	// ErrUnauthorized means the caller carried no usable identity
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTokenInvalid means the connection cannot be used until the tenant re-authorizes
	ErrTokenInvalid = errors.New("marketplace token invalid, re-authorization required")

	// ErrValidationFailed wraps malformed caller input
	ErrValidationFailed = errors.New("validation failed")

	// ErrNotFound means the addressed resource does not exist for the tenant
	ErrNotFound = errors.New("not found")

	// ErrNotConnected means the tenant has no marketplace connection
	ErrNotConnected = fmt.Errorf("%w: no marketplace connection", ErrNotFound)
)

func validationErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidationFailed, fmt.Sprintf(format, args...))
}

// notFoundOr maps a missing row onto ErrNotFound and passes other errors through
func notFoundOr(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
	}
	return err
}
