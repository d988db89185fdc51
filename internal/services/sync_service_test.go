package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
)

func singleOrderPage(orderID, listingID string) *clients.OrdersResult {
	return &clients.OrdersResult{Orders: []clients.ExternalOrder{{
		OrderID:           orderID,
		FulfillmentStatus: models.FulfillmentNotStarted,
		LineItems: []clients.ExternalLineItem{
			{LineItemID: orderID + "-li", LegacyItemID: listingID, Quantity: 1, FulfillmentStatus: models.FulfillmentNotStarted},
		},
	}}}
}

func TestRunAutoSync_FailingConnectionDoesNotBlockOthers(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := env.seedConnection(t, "tenant-1", "token-1", validUntil(), "")
	second := env.seedConnection(t, "tenant-2", "expired", testNow.Add(-time.Minute), "revoked")
	third := env.seedConnection(t, "tenant-3", "token-3", validUntil(), "")
	for _, conn := range []*models.Connection{first, second, third} {
		env.seedSelection(t, conn, models.SelectedListing{ListingID: "A"})
	}

	env.client.On("RefreshAccessToken", mock.Anything, "revoked").Return(nil, &clients.MarketplaceError{
		API: "oauth", Operation: "refresh token", StatusCode: 400, Detail: "invalid_grant",
	})
	env.client.On("SearchOrders", mock.Anything, "token-1", mock.Anything).Return(singleOrderPage("order-1", "A"), nil)
	env.client.On("SearchOrders", mock.Anything, "token-3", mock.Anything).Return(singleOrderPage("order-3", "A"), nil)

	report, err := env.sync.RunAutoSync(ctx, AutoSyncOptions{MaxConnections: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Scanned)
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 2, report.SyncedConnections)
	assert.Equal(t, 2, report.TotalFetched)
	assert.Equal(t, 2, report.TotalSaved)
	require.Len(t, report.Errors, 1)
	assert.True(t, strings.HasPrefix(report.Errors[0], fmt.Sprintf("tenant-2/%s: ", second.ID)))
	assert.Contains(t, report.Errors[0], "invalid_grant")

	_, err = env.orderRepo.GetOrder(ctx, "tenant-1", "order-1")
	assert.NoError(t, err)
	_, err = env.orderRepo.GetOrder(ctx, "tenant-3", "order-3")
	assert.NoError(t, err)

	failed, err := env.connectionRepo.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Contains(t, failed.LastError, "invalid_grant")
	assert.Nil(t, failed.LastSyncAt)

	synced, err := env.connectionRepo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, synced.LastError)
	require.NotNil(t, synced.LastSyncAt)
	assert.True(t, synced.LastSyncAt.Equal(testNow))

	runs, err := env.sync.ListRecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, report.RunID, runs[0].ID)
	assert.Equal(t, models.TriggerCron, runs[0].TriggeredBy)
	assert.Equal(t, report.Errors, runs[0].Errors)
}

func TestRunAutoSync_SkipsConnectionsWithoutSelection(t *testing.T) {
	env := newTestEnv(t)
	env.seedConnection(t, "tenant-1", "token-1", validUntil(), "")

	report, err := env.sync.RunAutoSync(context.Background(), AutoSyncOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 0, report.Attempted)
	assert.Empty(t, report.Errors)
	env.client.AssertNotCalled(t, "SearchOrders", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunAutoSync_RespectsMaxConnections(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		env.seedConnection(t, fmt.Sprintf("tenant-%d", i), "token", validUntil(), "")
	}

	report, err := env.sync.RunAutoSync(context.Background(), AutoSyncOptions{MaxConnections: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
}

func TestRunAutoSync_RequestsOnlyUnshippedOrders(t *testing.T) {
	env := newTestEnv(t)
	conn := env.seedConnection(t, "tenant-1", "token-1", validUntil(), "")
	env.seedSelection(t, conn, models.SelectedListing{ListingID: "A"})

	env.client.On("SearchOrders", mock.Anything, "token-1", mock.MatchedBy(func(o *clients.OrderSearchOptions) bool {
		return len(o.FulfillmentStatuses) == 2 && o.Limit == 25
	})).Return(singleOrderPage("order-1", "A"), nil)

	report, err := env.sync.RunAutoSync(context.Background(), AutoSyncOptions{PageSize: 25, MaxPages: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, report.SyncedConnections)
	env.client.AssertExpectations(t)
}

func TestRunAutoSync_RefreshesInventory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conn := env.seedConnection(t, "tenant-1", "token-1", validUntil(), "")
	env.seedSelection(t, conn,
		models.SelectedListing{ListingID: "A", OfferID: strPtr("offer-a")},
		models.SelectedListing{ListingID: "B", OfferID: strPtr("offer-b")},
	)

	env.client.On("SearchOrders", mock.Anything, "token-1", mock.Anything).Return(singleOrderPage("order-1", "A"), nil)
	env.client.On("GetOffer", mock.Anything, "token-1", "offer-a").Return(&clients.Offer{OfferID: "offer-a", AvailableQuantity: 2}, nil)
	env.client.On("GetOffer", mock.Anything, "token-1", "offer-b").Return(nil, &clients.MarketplaceError{
		API: "inventory", Operation: "get offer", StatusCode: 404, Detail: "offer not found",
	})

	report, err := env.sync.RunAutoSync(ctx, AutoSyncOptions{RefreshInventory: true, TriggeredBy: models.TriggerSchedule})
	require.NoError(t, err)
	assert.Equal(t, 1, report.SyncedConnections)
	assert.Equal(t, 1, report.TotalSaved)
	assert.Equal(t, 1, report.InventoryUpdated)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "offer-b")

	runs, err := env.syncRepo.ListRecentRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.TriggerSchedule, runs[0].TriggeredBy)
	assert.Equal(t, 1, runs[0].InventoryUpdated)
}

func TestRunAutoSync_IncludeFulfilledDropsStatusFilter(t *testing.T) {
	env := newTestEnv(t)
	conn := env.seedConnection(t, "tenant-1", "token-1", validUntil(), "")
	env.seedSelection(t, conn, models.SelectedListing{ListingID: "A"})

	env.client.On("SearchOrders", mock.Anything, "token-1", mock.MatchedBy(func(o *clients.OrderSearchOptions) bool {
		return len(o.FulfillmentStatuses) == 0
	})).Return(singleOrderPage("order-1", "A"), nil)

	report, err := env.sync.RunAutoSync(context.Background(), AutoSyncOptions{MaxPages: 1, IncludeFulfilled: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.SyncedConnections)
	env.client.AssertExpectations(t)
}

func TestRunAutoSync_ReportsRetryAfter(t *testing.T) {
	env := newTestEnv(t)
	conn := env.seedConnection(t, "tenant-1", "token-1", validUntil(), "")
	env.seedSelection(t, conn, models.SelectedListing{ListingID: "A"})

	env.client.On("SearchOrders", mock.Anything, "token-1", mock.Anything).Return(nil, &clients.MarketplaceError{
		API: "fulfillment", Operation: "search orders", StatusCode: 429, Detail: "throttled", RetryAfter: 90 * time.Second,
	})

	report, err := env.sync.RunAutoSync(context.Background(), AutoSyncOptions{})
	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "retry after 1m30s")
}
