package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"marketplace-sync-service/internal/middleware"
	"marketplace-sync-service/internal/services"
)

// InventoryReconciler moves quantities between the marketplace and inventory records
type InventoryReconciler interface {
	RefreshInventoryFromMarketplace(ctx context.Context, tenantID string, connectionID *uuid.UUID) (*services.RefreshResult, error)
	SetMarketplaceQuantity(ctx context.Context, tenantID string, connectionID *uuid.UUID, update services.QuantityUpdate) (*services.QuantityResult, error)
}

// InventoryHandler handles inventory reconciliation endpoints
type InventoryHandler struct {
	service InventoryReconciler
}

// NewInventoryHandler creates a new inventory handler
func NewInventoryHandler(service InventoryReconciler) *InventoryHandler {
	return &InventoryHandler{service: service}
}

// Refresh pulls marketplace quantities into the inventory records
func (h *InventoryHandler) Refresh(c *gin.Context) {
	id, ok := connectionIDParam(c)
	if !ok {
		return
	}

	result, err := h.service.RefreshInventoryFromMarketplace(c.Request.Context(), middleware.GetTenantID(c), &id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// SetQuantityRequest is a quantity to push to one listing
type SetQuantityRequest struct {
	ListingID string `json:"listingId"`
	OfferID   string `json:"offerId"`
	Quantity  *int   `json:"quantity" binding:"required"`
}

// SetQuantity pushes a quantity to the marketplace
func (h *InventoryHandler) SetQuantity(c *gin.Context) {
	id, ok := connectionIDParam(c)
	if !ok {
		return
	}

	var req SetQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.service.SetMarketplaceQuantity(c.Request.Context(), middleware.GetTenantID(c), &id, services.QuantityUpdate{
		ListingID: req.ListingID,
		OfferID:   req.OfferID,
		Quantity:  *req.Quantity,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
