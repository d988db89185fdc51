package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"marketplace-sync-service/internal/cache"
	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
)

func TestMergeListings_DropsTradingDuplicates(t *testing.T) {
	inventory := []models.InventoryAPIListing{
		{SKU: "sku-a", Title: "A", OfferID: "offer-a", ListingID: "A", ListingStatus: "ACTIVE", AvailableQuantity: 1},
		{SKU: "sku-b", Title: "B from inventory", OfferID: "offer-b", ListingID: "B", OfferStatus: "PUBLISHED", AvailableQuantity: 2},
	}
	trading := []models.TradingAPIListing{
		{ItemID: "B", Title: "B from trading", Quantity: intPtr(9)},
		{ItemID: "C", Title: "C", Quantity: intPtr(10), QuantitySold: intPtr(3)},
	}

	merged := MergeListings(inventory, trading)
	require.Len(t, merged, 3)

	assert.Equal(t, "A", merged[0].ListingID)
	assert.Equal(t, "B", merged[1].ListingID)
	assert.Equal(t, models.SourceInventoryAPI, merged[1].Source)
	assert.Equal(t, "B from inventory", merged[1].Title)
	assert.Equal(t, "offer-b", merged[1].OfferID)
	assert.Equal(t, "PUBLISHED", merged[1].Status)

	assert.Equal(t, "C", merged[2].ListingID)
	assert.Equal(t, models.SourceTradingAPI, merged[2].Source)
	assert.Equal(t, 7, merged[2].Quantity)
	assert.Equal(t, "Active", merged[2].Status)
}

func TestMergeListings_SkipsEmptyListingIDs(t *testing.T) {
	merged := MergeListings(
		[]models.InventoryAPIListing{{SKU: "draft", OfferID: "offer-x"}},
		[]models.TradingAPIListing{{Title: "no id"}},
	)
	assert.Empty(t, merged)
}

func TestDiscoverListings_BothSources(t *testing.T) {
	env := newTestEnv(t)
	conn := env.seedConnection(t, "tenant-a", "token", validUntil(), "")

	env.client.On("ListInventoryItems", mock.Anything, "token", inventoryPageSize, 0).Return(&clients.InventoryItemPage{
		Items: []clients.InventoryItem{{SKU: "sku-a", Title: "Widget"}, {SKU: "sku-b"}},
	}, nil)
	env.client.On("ListOffers", mock.Anything, "token", "sku-a").Return([]clients.Offer{
		{OfferID: "offer-a", SKU: "sku-a", ListingID: "A", Status: "PUBLISHED", AvailableQuantity: 3},
		{OfferID: "offer-draft", SKU: "sku-a", Status: "UNPUBLISHED"},
	}, nil)
	env.client.On("ListOffers", mock.Anything, "token", "sku-b").Return([]clients.Offer{
		{OfferID: "offer-b", SKU: "sku-b", ListingID: "B", Status: "PUBLISHED", AvailableQuantity: 1},
	}, nil)
	env.client.On("GetInventoryItem", mock.Anything, "token", "sku-b").Return(&clients.InventoryItem{SKU: "sku-b", Title: "Gadget"}, nil)
	env.client.On("GetSellerListings", mock.Anything, "token", 1, tradingPageSize).Return(&clients.SellerListingsPage{
		Listings:   []models.TradingAPIListing{{ItemID: "B"}, {ItemID: "C", QuantityAvailable: intPtr(4)}},
		PageNumber: 1,
		TotalPages: 1,
	}, nil)

	result, err := env.discovery.DiscoverListings(context.Background(), "tenant-a", &conn.ID, false)
	require.NoError(t, err)
	assert.False(t, result.Partial)
	assert.Empty(t, result.Warnings)
	require.Len(t, result.Listings, 3)

	ids := []string{result.Listings[0].ListingID, result.Listings[1].ListingID, result.Listings[2].ListingID}
	assert.Equal(t, []string{"A", "B", "C"}, ids)
	assert.Equal(t, "Gadget", result.Listings[1].Title)
	assert.Equal(t, models.SourceInventoryAPI, result.Listings[1].Source)
	assert.Equal(t, 4, result.Listings[2].Quantity)
	env.client.AssertNotCalled(t, "GetInventoryItem", mock.Anything, "token", "sku-a")
}

func TestDiscoverListings_FailedSourceIsPartial(t *testing.T) {
	env := newTestEnv(t)
	conn := env.seedConnection(t, "tenant-a", "token", validUntil(), "")

	env.client.On("ListInventoryItems", mock.Anything, "token", inventoryPageSize, 0).Return(nil, &clients.MarketplaceError{
		API: "inventory", Operation: "list inventory items", StatusCode: 500, Detail: "boom",
	})
	env.client.On("GetSellerListings", mock.Anything, "token", 1, tradingPageSize).Return(&clients.SellerListingsPage{
		Listings:   []models.TradingAPIListing{{ItemID: "C", Quantity: intPtr(2)}},
		PageNumber: 1,
		TotalPages: 2,
	}, nil)
	env.client.On("GetSellerListings", mock.Anything, "token", 2, tradingPageSize).Return(nil, errors.New("timeout"))

	result, err := env.discovery.DiscoverListings(context.Background(), "tenant-a", &conn.ID, false)
	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.Len(t, result.Warnings, 2)
	require.Len(t, result.Listings, 1)
	assert.Equal(t, "C", result.Listings[0].ListingID)
}

type memoryListingCache struct {
	entries map[string]*cache.CachedListings
	sets    int
}

func (c *memoryListingCache) key(tenantID string, connectionID uuid.UUID) string {
	return tenantID + "/" + connectionID.String()
}

func (c *memoryListingCache) Get(_ context.Context, tenantID string, connectionID uuid.UUID) (*cache.CachedListings, error) {
	return c.entries[c.key(tenantID, connectionID)], nil
}

func (c *memoryListingCache) Set(_ context.Context, tenantID string, connectionID uuid.UUID, cached *cache.CachedListings) error {
	c.sets++
	c.entries[c.key(tenantID, connectionID)] = cached
	return nil
}

func (c *memoryListingCache) Invalidate(_ context.Context, tenantID string, connectionID uuid.UUID) error {
	delete(c.entries, c.key(tenantID, connectionID))
	return nil
}

func TestDiscoverListings_ServesCacheUnlessRefreshForced(t *testing.T) {
	env := newTestEnv(t)
	conn := env.seedConnection(t, "tenant-a", "token", validUntil(), "")
	listingCache := &memoryListingCache{entries: map[string]*cache.CachedListings{}}
	env.discovery.cache = listingCache

	env.client.On("ListInventoryItems", mock.Anything, "token", inventoryPageSize, 0).Return(&clients.InventoryItemPage{}, nil)
	env.client.On("GetSellerListings", mock.Anything, "token", 1, tradingPageSize).Return(&clients.SellerListingsPage{
		Listings:   []models.TradingAPIListing{{ItemID: "C"}},
		TotalPages: 1,
	}, nil)

	first, err := env.discovery.DiscoverListings(context.Background(), "tenant-a", &conn.ID, false)
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := env.discovery.DiscoverListings(context.Background(), "tenant-a", &conn.ID, false)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Listings, second.Listings)
	env.client.AssertNumberOfCalls(t, "GetSellerListings", 1)

	_, err = env.discovery.DiscoverListings(context.Background(), "tenant-a", &conn.ID, true)
	require.NoError(t, err)
	env.client.AssertNumberOfCalls(t, "GetSellerListings", 2)
	assert.Equal(t, 2, listingCache.sets)
	assert.WithinDuration(t, testNow, listingCache.entries[listingCache.key("tenant-a", conn.ID)].CachedAt, time.Second)
}

func TestDiscoverListings_ForcedPartialRefreshDropsCachedEntry(t *testing.T) {
	env := newTestEnv(t)
	conn := env.seedConnection(t, "tenant-a", "token", validUntil(), "")
	listingCache := &memoryListingCache{entries: map[string]*cache.CachedListings{}}
	listingCache.entries[listingCache.key("tenant-a", conn.ID)] = &cache.CachedListings{
		Listings: []models.Listing{{ListingID: "stale"}},
	}
	env.discovery.cache = listingCache

	env.client.On("ListInventoryItems", mock.Anything, "token", inventoryPageSize, 0).Return(nil, errors.New("timeout"))
	env.client.On("GetSellerListings", mock.Anything, "token", 1, tradingPageSize).Return(&clients.SellerListingsPage{
		Listings:   []models.TradingAPIListing{{ItemID: "C"}},
		TotalPages: 1,
	}, nil)

	result, err := env.discovery.DiscoverListings(context.Background(), "tenant-a", &conn.ID, true)
	require.NoError(t, err)
	assert.True(t, result.Partial)
	assert.Empty(t, listingCache.entries)
	assert.Zero(t, listingCache.sets)

	next, err := env.discovery.DiscoverListings(context.Background(), "tenant-a", &conn.ID, false)
	require.NoError(t, err)
	assert.False(t, next.Cached)
	env.client.AssertNumberOfCalls(t, "GetSellerListings", 2)
}

func TestDiscoverListings_PageCapMarksResultPartial(t *testing.T) {
	env := newTestEnv(t)
	conn := env.seedConnection(t, "tenant-a", "token", validUntil(), "")
	listingCache := &memoryListingCache{entries: map[string]*cache.CachedListings{}}
	env.discovery.cache = listingCache
	env.discovery.maxInventoryPages = 1
	env.discovery.maxTradingPages = 1

	fullPage := make([]clients.InventoryItem, inventoryPageSize)
	for i := range fullPage {
		fullPage[i] = clients.InventoryItem{SKU: uuid.NewString(), Title: "Item"}
	}
	env.client.On("ListInventoryItems", mock.Anything, "token", inventoryPageSize, 0).Return(&clients.InventoryItemPage{Items: fullPage}, nil)
	env.client.On("ListOffers", mock.Anything, "token", mock.Anything).Return([]clients.Offer{}, nil)
	env.client.On("GetSellerListings", mock.Anything, "token", 1, tradingPageSize).Return(&clients.SellerListingsPage{
		Listings:   []models.TradingAPIListing{{ItemID: "C"}},
		TotalPages: 3,
	}, nil)

	result, err := env.discovery.DiscoverListings(context.Background(), "tenant-a", &conn.ID, false)
	require.NoError(t, err)
	assert.True(t, result.Partial)
	require.Len(t, result.Warnings, 2)
	assert.Contains(t, result.Warnings[0], "truncated")
	assert.Contains(t, result.Warnings[1], "truncated")
	assert.Zero(t, listingCache.sets)
	env.client.AssertNotCalled(t, "ListInventoryItems", mock.Anything, "token", inventoryPageSize, inventoryPageSize)
	env.client.AssertNotCalled(t, "GetSellerListings", mock.Anything, "token", 2, tradingPageSize)
}
