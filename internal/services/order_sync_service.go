package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/repository"
)

const (
	defaultOrderPageSize = 50
	defaultOrderMaxPages = 5
	maxOrderPageSize     = 200
)

// SyncOptions bounds one order sync call
type SyncOptions struct {
	// FilterNotStarted restricts the search to orders still to be shipped
	FilterNotStarted bool `json:"filterNotStarted"`
	MaxPages         int  `json:"maxPages"`
	PageSize         int  `json:"pageSize"`
}

// SyncResult reports one order sync call. TotalFetched counts every order
// seen; TotalSaved counts upserts.
type SyncResult struct {
	OK           bool      `json:"ok"`
	ConnectionID uuid.UUID `json:"connectionId"`
	TotalFetched int       `json:"totalFetched"`
	TotalSaved   int       `json:"totalSaved"`
	Pages        int       `json:"pages"`
	Error        string    `json:"error,omitempty"`
}

// OrderSyncService pulls marketplace orders into the order store
type OrderSyncService struct {
	tokens     *TokenService
	selections *SelectionService
	orders     repository.OrderRepositoryInterface
	logger     *logrus.Entry
	now        func() time.Time
}

// NewOrderSyncService creates a new order sync service
func NewOrderSyncService(tokens *TokenService, selections *SelectionService, orders repository.OrderRepositoryInterface, logger *logrus.Entry) *OrderSyncService {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &OrderSyncService{
		tokens:     tokens,
		selections: selections,
		orders:     orders,
		logger:     logger.WithField("component", "order_sync_service"),
		now:        time.Now,
	}
}

// SyncOrders pages the order search endpoint and upserts every order that
// has at least one selected line item. A marketplace error aborts the call;
// the counts gathered so far are returned with it.
func (s *OrderSyncService) SyncOrders(ctx context.Context, tenantID string, connectionID *uuid.UUID, opts SyncOptions) (*SyncResult, error) {
	opts = normalizeSyncOptions(opts)

	conn, err := s.tokens.GetValidToken(ctx, tenantID, connectionID)
	if err != nil {
		return &SyncResult{Error: err.Error()}, err
	}
	result := &SyncResult{ConnectionID: conn.ID}

	filter, _, err := s.selections.Filter(ctx, tenantID, conn.ID)
	if err != nil {
		result.Error = err.Error()
		return result, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"tenant_id":     tenantID,
		"connection_id": conn.ID,
	})

	search := &clients.OrderSearchOptions{Limit: opts.PageSize}
	if opts.FilterNotStarted {
		search.FulfillmentStatuses = []string{models.FulfillmentNotStarted, models.FulfillmentInProgress}
	}

	client := s.tokens.Client(conn)
	for result.Pages < opts.MaxPages {
		page, err := client.SearchOrders(ctx, conn.AccessToken, search)
		if err != nil {
			log.WithError(err).WithField("page", result.Pages+1).Error("Order search failed, aborting sync")
			result.Error = err.Error()
			return result, fmt.Errorf("order search failed: %w", err)
		}
		result.Pages++
		result.TotalFetched += len(page.Orders)

		for i := range page.Orders {
			saved, err := s.saveOrder(ctx, tenantID, conn.ID, filter, &page.Orders[i])
			if err != nil {
				result.Error = err.Error()
				return result, err
			}
			if saved {
				result.TotalSaved++
			}
		}

		if page.Next == "" || len(page.Orders) < opts.PageSize {
			break
		}
		search = &clients.OrderSearchOptions{Next: page.Next}
	}

	result.OK = true
	log.WithFields(logrus.Fields{
		"fetched": result.TotalFetched,
		"saved":   result.TotalSaved,
		"pages":   result.Pages,
	}).Info("Order sync finished")
	return result, nil
}

// saveOrder upserts the order with its matching line items. An order with no
// matching items is skipped and any stored copy is left as it is.
func (s *OrderSyncService) saveOrder(ctx context.Context, tenantID string, connectionID uuid.UUID, filter models.SelectionFilter, order *clients.ExternalOrder) (bool, error) {
	matching := filter.Matching(toLineItems(order.LineItems))
	if len(matching) == 0 {
		return false, nil
	}

	key := models.OrderKey{TenantID: tenantID, OrderID: order.OrderID}
	if _, err := s.orders.UpsertOrder(ctx, key, buildOrderPatch(connectionID, order, matching, s.now())); err != nil {
		return false, fmt.Errorf("failed to save order %s: %w", order.OrderID, err)
	}
	return true, nil
}

func normalizeSyncOptions(opts SyncOptions) SyncOptions {
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaultOrderMaxPages
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultOrderPageSize
	}
	if opts.PageSize > maxOrderPageSize {
		opts.PageSize = maxOrderPageSize
	}
	return opts
}

func toLineItems(items []clients.ExternalLineItem) []models.LineItem {
	out := make([]models.LineItem, 0, len(items))
	for _, li := range items {
		out = append(out, models.LineItem{
			LineItemID:        li.LineItemID,
			ListingID:         li.LegacyItemID,
			SKU:               li.SKU,
			Title:             li.Title,
			Quantity:          li.Quantity,
			FulfillmentStatus: li.FulfillmentStatus,
		})
	}
	return out
}

// buildOrderPatch carries only the fields the marketplace reported, so a
// sparse response never blanks a stored value.
func buildOrderPatch(connectionID uuid.UUID, order *clients.ExternalOrder, items []models.LineItem, syncAt time.Time) models.OrderPatch {
	patch := models.OrderPatch{
		ConnectionID: &connectionID,
		LineItems:    &items,
		SyncAt:       &syncAt,
	}
	if !order.CreationDate.IsZero() {
		created := order.CreationDate
		patch.CreationDate = &created
	}
	if !order.LastModifiedDate.IsZero() {
		modified := order.LastModifiedDate
		patch.LastModifiedDate = &modified
	}
	if order.FulfillmentStatus != "" {
		status := order.FulfillmentStatus
		patch.FulfillmentStatus = &status
	}
	if order.PaymentStatus != "" {
		payment := order.PaymentStatus
		patch.PaymentStatus = &payment
	}
	if order.BuyerUsername != "" || order.BuyerEmail != "" || order.BuyerName != "" {
		patch.Buyer = &models.Buyer{
			Username: order.BuyerUsername,
			Email:    order.BuyerEmail,
			FullName: order.BuyerName,
		}
	}
	if order.TotalValue != "" {
		total := order.TotalValue
		patch.TotalValue = &total
	}
	if order.Currency != "" {
		currency := order.Currency
		patch.Currency = &currency
	}
	return patch
}

// GetOrder returns one stored order
func (s *OrderSyncService) GetOrder(ctx context.Context, tenantID, orderID string) (*models.MarketplaceOrder, error) {
	if tenantID == "" {
		return nil, ErrUnauthorized
	}
	order, err := s.orders.GetOrder(ctx, tenantID, orderID)
	if err != nil {
		return nil, notFoundOr(err, "order %s", orderID)
	}
	return order, nil
}

// ListOrders returns stored orders with pagination and filtering
func (s *OrderSyncService) ListOrders(ctx context.Context, tenantID string, opts repository.OrderListOptions) ([]models.MarketplaceOrder, int64, error) {
	if tenantID == "" {
		return nil, 0, ErrUnauthorized
	}
	if opts.Limit <= 0 || opts.Limit > 200 {
		opts.Limit = 50
	}
	return s.orders.ListOrders(ctx, tenantID, opts)
}
