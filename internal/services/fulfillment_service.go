package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/repository"
)

// FulfillmentLineItem is one line item to mark shipped
type FulfillmentLineItem struct {
	LineItemID string `json:"lineItemId"`
	Quantity   int    `json:"quantity"`
}

// FulfillmentOptions carries the optional shipment details. Carrier and
// tracking number go together or not at all.
type FulfillmentOptions struct {
	CarrierCode    string     `json:"carrierCode,omitempty"`
	TrackingNumber string     `json:"trackingNumber,omitempty"`
	ShippedDate    *time.Time `json:"shippedDate,omitempty"`
}

// FulfillmentResult reports a submitted shipping fulfillment
type FulfillmentResult struct {
	OK            bool   `json:"ok"`
	FulfillmentID string `json:"fulfillmentId,omitempty"`
}

// FulfillmentService pushes shipped confirmations to the marketplace. It does
// not write the order store; the next order sync observes the new status.
type FulfillmentService struct {
	tokens *TokenService
	orders repository.OrderRepositoryInterface
	logger *logrus.Entry
	now    func() time.Time
}

// NewFulfillmentService creates a new fulfillment service
func NewFulfillmentService(tokens *TokenService, orders repository.OrderRepositoryInterface, logger *logrus.Entry) *FulfillmentService {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &FulfillmentService{
		tokens: tokens,
		orders: orders,
		logger: logger.WithField("component", "fulfillment_service"),
		now:    time.Now,
	}
}

// FulfillOrder submits a shipping fulfillment for the given line items
func (s *FulfillmentService) FulfillOrder(ctx context.Context, tenantID string, connectionID *uuid.UUID, orderID string, lineItems []FulfillmentLineItem, opts FulfillmentOptions) (*FulfillmentResult, error) {
	if tenantID == "" {
		return nil, ErrUnauthorized
	}
	if err := validateFulfillment(orderID, lineItems, opts); err != nil {
		return nil, err
	}
	if err := s.checkStoredOrder(ctx, tenantID, orderID, lineItems); err != nil {
		return nil, err
	}

	conn, err := s.tokens.GetValidToken(ctx, tenantID, connectionID)
	if err != nil {
		return nil, err
	}

	shipped := s.now().UTC()
	if opts.ShippedDate != nil {
		shipped = opts.ShippedDate.UTC()
	}
	req := &clients.ShippingFulfillmentRequest{
		LineItems:           make([]clients.FulfillmentLineItem, 0, len(lineItems)),
		ShippedDate:         shipped.Format("2006-01-02T15:04:05.000Z"),
		ShippingCarrierCode: strings.TrimSpace(opts.CarrierCode),
		TrackingNumber:      strings.TrimSpace(opts.TrackingNumber),
	}
	for _, li := range lineItems {
		req.LineItems = append(req.LineItems, clients.FulfillmentLineItem{
			LineItemID: li.LineItemID,
			Quantity:   li.Quantity,
		})
	}

	log := s.logger.WithFields(logrus.Fields{
		"tenant_id":     tenantID,
		"connection_id": conn.ID,
		"order_id":      orderID,
	})

	fulfillmentID, err := s.tokens.Client(conn).CreateShippingFulfillment(ctx, conn.AccessToken, orderID, req)
	if err != nil {
		log.WithError(err).Error("Shipping fulfillment rejected")
		return nil, fmt.Errorf("failed to create shipping fulfillment: %w", err)
	}

	log.WithField("fulfillment_id", fulfillmentID).Info("Shipping fulfillment created")
	return &FulfillmentResult{OK: true, FulfillmentID: fulfillmentID}, nil
}

func validateFulfillment(orderID string, lineItems []FulfillmentLineItem, opts FulfillmentOptions) error {
	if strings.TrimSpace(orderID) == "" {
		return validationErrorf("order id is required")
	}
	if len(lineItems) == 0 {
		return validationErrorf("at least one line item is required")
	}
	for i, li := range lineItems {
		if strings.TrimSpace(li.LineItemID) == "" {
			return validationErrorf("line item %d has no lineItemId", i)
		}
		if li.Quantity <= 0 {
			return validationErrorf("line item %s needs a positive quantity", li.LineItemID)
		}
	}

	hasCarrier := strings.TrimSpace(opts.CarrierCode) != ""
	hasTracking := strings.TrimSpace(opts.TrackingNumber) != ""
	if hasCarrier != hasTracking {
		return validationErrorf("carrierCode and trackingNumber must be provided together")
	}
	return nil
}

// checkStoredOrder rejects line items the stored projection already knows to
// be fulfilled. Orders not yet synced are left to the marketplace to judge.
func (s *FulfillmentService) checkStoredOrder(ctx context.Context, tenantID, orderID string, lineItems []FulfillmentLineItem) error {
	if s.orders == nil {
		return nil
	}
	order, err := s.orders.GetOrder(ctx, tenantID, orderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load order: %w", err)
	}

	for _, li := range lineItems {
		stored, ok := order.FindLineItem(li.LineItemID)
		if ok && stored.FulfillmentStatus != "" && !stored.Fulfillable() {
			return validationErrorf("line item %s is already %s", li.LineItemID, stored.FulfillmentStatus)
		}
	}
	return nil
}
