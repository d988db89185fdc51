package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"marketplace-sync-service/internal/middleware"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/repository"
	"marketplace-sync-service/internal/services"
)

// OrderService syncs and reads marketplace orders
type OrderService interface {
	SyncOrders(ctx context.Context, tenantID string, connectionID *uuid.UUID, opts services.SyncOptions) (*services.SyncResult, error)
	GetOrder(ctx context.Context, tenantID, orderID string) (*models.MarketplaceOrder, error)
	ListOrders(ctx context.Context, tenantID string, opts repository.OrderListOptions) ([]models.MarketplaceOrder, int64, error)
}

// Fulfiller submits shipping fulfillments
type Fulfiller interface {
	FulfillOrder(ctx context.Context, tenantID string, connectionID *uuid.UUID, orderID string, lineItems []services.FulfillmentLineItem, opts services.FulfillmentOptions) (*services.FulfillmentResult, error)
}

// OrderHandler handles order sync, read and fulfillment endpoints
type OrderHandler struct {
	orders      OrderService
	fulfillment Fulfiller
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orders OrderService, fulfillment Fulfiller) *OrderHandler {
	return &OrderHandler{orders: orders, fulfillment: fulfillment}
}

// Sync pulls orders for one connection. The body is optional. A failed sync
// still reports the counts gathered before the failure under "result".
func (h *OrderHandler) Sync(c *gin.Context) {
	id, ok := connectionIDParam(c)
	if !ok {
		return
	}

	var opts services.SyncOptions
	if err := c.ShouldBindJSON(&opts); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return
	}

	result, err := h.orders.SyncOrders(c.Request.Context(), middleware.GetTenantID(c), &id, opts)
	if err != nil {
		status, body := errorResponse(c, err)
		if result != nil {
			body["result"] = result
		}
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// List returns stored orders, filtered by ?connectionId and ?status
func (h *OrderHandler) List(c *gin.Context) {
	opts := repository.OrderListOptions{
		FulfillmentStatus: c.Query("status"),
	}
	if raw := c.Query("connectionId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequest(c, "invalid connectionId")
			return
		}
		opts.ConnectionID = &id
	}
	opts.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	opts.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	orders, total, err := h.orders.ListOrders(c.Request.Context(), middleware.GetTenantID(c), opts)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  orders,
		"total": total,
	})
}

// Get returns one stored order
func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), middleware.GetTenantID(c), c.Param("orderId"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}

// FulfillRequest marks line items of an order shipped
type FulfillRequest struct {
	LineItems      []services.FulfillmentLineItem `json:"lineItems"`
	CarrierCode    string                         `json:"carrierCode"`
	TrackingNumber string                         `json:"trackingNumber"`
	ShippedDate    *time.Time                     `json:"shippedDate"`
}

// Fulfill submits a shipping fulfillment to the marketplace
func (h *OrderHandler) Fulfill(c *gin.Context) {
	id, ok := connectionIDParam(c)
	if !ok {
		return
	}

	var req FulfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.fulfillment.FulfillOrder(c.Request.Context(), middleware.GetTenantID(c), &id, c.Param("orderId"), req.LineItems, services.FulfillmentOptions{
		CarrierCode:    req.CarrierCode,
		TrackingNumber: req.TrackingNumber,
		ShippedDate:    req.ShippedDate,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": result})
}
