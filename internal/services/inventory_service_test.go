package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
)

func TestRefreshInventory_BothAPIs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conn := env.seedConnection(t, "tenant-a", "token", validUntil(), "")
	env.seedSelection(t, conn,
		models.SelectedListing{ListingID: "A", OfferID: strPtr("offer-a"), Title: "Widget", Source: models.SourceInventoryAPI},
		models.SelectedListing{ListingID: "C", SKU: "sku-c", Title: "Legacy", Source: models.SourceTradingAPI},
	)

	env.client.On("GetOffer", mock.Anything, "token", "offer-a").Return(&clients.Offer{
		OfferID: "offer-a", SKU: "sku-a", ListingID: "A", AvailableQuantity: 4,
	}, nil)
	env.client.On("GetSellerListings", mock.Anything, "token", 1, tradingPageSize).Return(&clients.SellerListingsPage{
		Listings:   []models.TradingAPIListing{{ItemID: "C", Quantity: intPtr(10), QuantitySold: intPtr(3)}},
		TotalPages: 1,
	}, nil)

	result, err := env.inventory.RefreshInventoryFromMarketplace(ctx, "tenant-a", &conn.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Updated)
	assert.Empty(t, result.Errors)

	offerRecord, err := env.inventoryRepo.GetRecord(ctx, "tenant-a", models.InventoryRecordID(conn.ID, "offer-a"))
	require.NoError(t, err)
	assert.Equal(t, 4, offerRecord.Quantity)
	assert.Equal(t, "sku-a", offerRecord.SKU)
	assert.Equal(t, "Widget", offerRecord.Name)
	assert.Equal(t, models.StockInStock, offerRecord.Status)
	assert.Equal(t, "offer-a", offerRecord.OfferID)

	tradingRecord, err := env.inventoryRepo.GetRecord(ctx, "tenant-a", models.InventoryRecordID(conn.ID, "C"))
	require.NoError(t, err)
	assert.Equal(t, 7, tradingRecord.Quantity)
	assert.Equal(t, "sku-c", tradingRecord.SKU)
	assert.Equal(t, models.InventorySourceEbay, tradingRecord.Source)

	// a second pass updates the same records
	_, err = env.inventory.RefreshInventoryFromMarketplace(ctx, "tenant-a", &conn.ID)
	require.NoError(t, err)
	records, err := env.inventoryRepo.ListByConnection(ctx, "tenant-a", conn.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRefreshInventory_QuantityFallbacks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conn := env.seedConnection(t, "tenant-a", "token", validUntil(), "")
	env.seedSelection(t, conn,
		models.SelectedListing{ListingID: "raw"},
		models.SelectedListing{ListingID: "none"},
	)

	env.client.On("GetSellerListings", mock.Anything, "token", 1, tradingPageSize).Return(&clients.SellerListingsPage{
		Listings: []models.TradingAPIListing{
			{ItemID: "raw", Quantity: intPtr(5)},
			{ItemID: "none"},
		},
		TotalPages: 1,
	}, nil)

	_, err := env.inventory.RefreshInventoryFromMarketplace(ctx, "tenant-a", &conn.ID)
	require.NoError(t, err)

	raw, err := env.inventoryRepo.GetRecord(ctx, "tenant-a", models.InventoryRecordID(conn.ID, "raw"))
	require.NoError(t, err)
	assert.Equal(t, 5, raw.Quantity)

	none, err := env.inventoryRepo.GetRecord(ctx, "tenant-a", models.InventoryRecordID(conn.ID, "none"))
	require.NoError(t, err)
	assert.Equal(t, 0, none.Quantity)
	assert.Equal(t, models.StockOutOfStock, none.Status)
}

func TestRefreshInventory_ReportsPerListingFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conn := env.seedConnection(t, "tenant-a", "token", validUntil(), "")
	env.seedSelection(t, conn,
		models.SelectedListing{ListingID: "A", OfferID: strPtr("offer-a")},
		models.SelectedListing{ListingID: "B", OfferID: strPtr("offer-b")},
		models.SelectedListing{ListingID: "gone"},
	)

	env.client.On("GetOffer", mock.Anything, "token", "offer-a").Return(nil, errors.New("offer lookup timed out"))
	env.client.On("GetOffer", mock.Anything, "token", "offer-b").Return(&clients.Offer{OfferID: "offer-b", AvailableQuantity: 2}, nil)
	env.client.On("GetSellerListings", mock.Anything, "token", 1, tradingPageSize).Return(&clients.SellerListingsPage{TotalPages: 1}, nil)

	result, err := env.inventory.RefreshInventoryFromMarketplace(ctx, "tenant-a", &conn.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Skipped)
	assert.Len(t, result.Errors, 2)

	_, err = env.inventoryRepo.GetRecord(ctx, "tenant-a", models.InventoryRecordID(conn.ID, "gone"))
	assert.Error(t, err)
}

func TestRefreshInventory_KeepsDashboardFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conn := env.seedConnection(t, "tenant-a", "token", validUntil(), "")
	env.seedSelection(t, conn, models.SelectedListing{ListingID: "A", OfferID: strPtr("offer-a")})

	recordID := models.InventoryRecordID(conn.ID, "offer-a")
	name := "Named in dashboard"
	_, err := env.inventoryRepo.UpsertRecord(ctx, "tenant-a", recordID, models.InventoryPatch{Name: &name})
	require.NoError(t, err)

	env.client.On("GetOffer", mock.Anything, "token", "offer-a").Return(&clients.Offer{OfferID: "offer-a", AvailableQuantity: 0}, nil)

	_, err = env.inventory.RefreshInventoryFromMarketplace(ctx, "tenant-a", &conn.ID)
	require.NoError(t, err)

	record, err := env.inventoryRepo.GetRecord(ctx, "tenant-a", recordID)
	require.NoError(t, err)
	assert.Equal(t, name, record.Name)
	assert.Equal(t, models.StockOutOfStock, record.Status)
	env.client.AssertNotCalled(t, "GetSellerListings", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSetMarketplaceQuantity_OfferPutsFullObject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conn := env.seedConnection(t, "tenant-a", "token", validUntil(), "")
	env.seedSelection(t, conn, models.SelectedListing{ListingID: "A", OfferID: strPtr("offer-a"), SKU: "sku-a"})

	raw := map[string]interface{}{
		"offerId":           "offer-a",
		"availableQuantity": float64(9),
		"pricingSummary":    map[string]interface{}{"price": map[string]interface{}{"value": "10.00"}},
	}
	env.client.On("GetOffer", mock.Anything, "token", "offer-a").Return(&clients.Offer{
		OfferID: "offer-a", SKU: "sku-a", ListingID: "A", AvailableQuantity: 9, Raw: raw,
	}, nil)
	env.client.On("UpdateOffer", mock.Anything, "token", mock.MatchedBy(func(o *clients.Offer) bool {
		return o.OfferID == "offer-a" && o.AvailableQuantity == 3 && o.Raw["pricingSummary"] != nil
	})).Return(nil)

	// listing id alone resolves the offer through the selection
	result, err := env.inventory.SetMarketplaceQuantity(ctx, "tenant-a", &conn.ID, QuantityUpdate{ListingID: "A", Quantity: 3})
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, models.SourceInventoryAPI, result.API)
	require.NotNil(t, result.Record)
	assert.Equal(t, 3, result.Record.Quantity)
	assert.Equal(t, models.InventoryRecordID(conn.ID, "offer-a"), result.Record.RecordID)
	env.client.AssertNotCalled(t, "ReviseInventoryStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestSetMarketplaceQuantity_TradingRevisionClampsNegative(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conn := env.seedConnection(t, "tenant-a", "token", validUntil(), "")
	env.seedSelection(t, conn, models.SelectedListing{ListingID: "C", Source: models.SourceTradingAPI})

	env.client.On("ReviseInventoryStatus", mock.Anything, "token", mock.MatchedBy(func(r *clients.InventoryStatusRevision) bool {
		return r.ItemID == "C" && r.Quantity == 0
	})).Return(nil)

	result, err := env.inventory.SetMarketplaceQuantity(ctx, "tenant-a", &conn.ID, QuantityUpdate{ListingID: "C", Quantity: -5})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Quantity)
	assert.Equal(t, models.SourceTradingAPI, result.API)
	assert.Equal(t, models.StockOutOfStock, result.Record.Status)
}

func TestSetMarketplaceQuantity_FailureAckIsError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conn := env.seedConnection(t, "tenant-a", "token", validUntil(), "")

	env.client.On("ReviseInventoryStatus", mock.Anything, "token", mock.Anything).Return(&clients.MarketplaceError{
		API: "trading", Operation: "ReviseInventoryStatus", Detail: "Failure: item ended",
	})

	_, err := env.inventory.SetMarketplaceQuantity(ctx, "tenant-a", &conn.ID, QuantityUpdate{ListingID: "C", Quantity: 1})
	assert.ErrorIs(t, err, clients.ErrMarketplaceRejected)

	_, err = env.inventoryRepo.GetRecord(ctx, "tenant-a", models.InventoryRecordID(conn.ID, "C"))
	assert.Error(t, err)
}

func TestSetMarketplaceQuantity_RequiresIdentifier(t *testing.T) {
	env := newTestEnv(t)
	conn := env.seedConnection(t, "tenant-a", "token", validUntil(), "")

	_, err := env.inventory.SetMarketplaceQuantity(context.Background(), "tenant-a", &conn.ID, QuantityUpdate{Quantity: 1})
	assert.ErrorIs(t, err, ErrValidationFailed)
}
