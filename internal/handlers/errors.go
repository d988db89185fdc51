package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/services"
)

// respondError maps the service error taxonomy onto HTTP statuses. A token
// error wrapping a marketplace rejection is still a 401.
func respondError(c *gin.Context, err error) {
	status, body := errorResponse(c, err)
	c.JSON(status, body)
}

// errorResponse builds the status and body for err. A marketplace
// Retry-After is passed on as a header and as retryAfter seconds.
func errorResponse(c *gin.Context, err error) (int, gin.H) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidationFailed):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrUnauthorized), errors.Is(err, services.ErrTokenInvalid):
		status = http.StatusUnauthorized
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, clients.ErrMarketplaceRejected):
		status = http.StatusBadGateway
	}

	body := gin.H{"error": err.Error()}
	var mpErr *clients.MarketplaceError
	if errors.As(err, &mpErr) {
		if mpErr.Detail != "" {
			body["detail"] = mpErr.Detail
		}
		if mpErr.RetryAfter > 0 {
			seconds := int(math.Ceil(mpErr.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
			body["retryAfter"] = seconds
		}
	}
	return status, body
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}
