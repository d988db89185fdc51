package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"marketplace-sync-service/internal/middleware"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/services"
)

// ListingDiscoverer discovers a connection's listings
type ListingDiscoverer interface {
	DiscoverListings(ctx context.Context, tenantID string, connectionID *uuid.UUID, forceRefresh bool) (*services.DiscoveryResult, error)
}

// SelectionManager reads and replaces a connection's selection set
type SelectionManager interface {
	GetSelection(ctx context.Context, tenantID string, connectionID *uuid.UUID) ([]models.SelectedListing, error)
	SaveSelection(ctx context.Context, tenantID string, connectionID *uuid.UUID, inputs []services.SelectionInput) ([]models.SelectedListing, error)
}

// ListingHandler handles listing discovery and selection endpoints
type ListingHandler struct {
	discovery  ListingDiscoverer
	selections SelectionManager
}

// NewListingHandler creates a new listing handler
func NewListingHandler(discovery ListingDiscoverer, selections SelectionManager) *ListingHandler {
	return &ListingHandler{discovery: discovery, selections: selections}
}

// Discover returns the merged listing catalog. ?refresh=true bypasses the cache.
func (h *ListingHandler) Discover(c *gin.Context) {
	id, ok := connectionIDParam(c)
	if !ok {
		return
	}
	refresh, _ := strconv.ParseBool(c.Query("refresh"))

	result, err := h.discovery.DiscoverListings(c.Request.Context(), middleware.GetTenantID(c), &id, refresh)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// GetSelection returns the saved selection set
func (h *ListingHandler) GetSelection(c *gin.Context) {
	id, ok := connectionIDParam(c)
	if !ok {
		return
	}

	selected, err := h.selections.GetSelection(c.Request.Context(), middleware.GetTenantID(c), &id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": selected})
}

// SaveSelectionRequest replaces the whole selection set
type SaveSelectionRequest struct {
	Listings []services.SelectionInput `json:"listings"`
}

// SaveSelection replaces the selection set
func (h *ListingHandler) SaveSelection(c *gin.Context) {
	id, ok := connectionIDParam(c)
	if !ok {
		return
	}

	var req SaveSelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	selected, err := h.selections.SaveSelection(c.Request.Context(), middleware.GetTenantID(c), &id, req.Listings)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  selected,
		"total": len(selected),
	})
}
