package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"marketplace-sync-service/internal/cache"
	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
)

const (
	inventoryPageSize   = 100
	maxInventoryPages   = 200
	tradingPageSize     = 200
	maxTradingPages     = 100
	offerFetchBatchSize = 5
)

// ListingCacher stores discovery results per connection
type ListingCacher interface {
	Get(ctx context.Context, tenantID string, connectionID uuid.UUID) (*cache.CachedListings, error)
	Set(ctx context.Context, tenantID string, connectionID uuid.UUID, cached *cache.CachedListings) error
	Invalidate(ctx context.Context, tenantID string, connectionID uuid.UUID) error
}

// DiscoveryResult is the merged listing catalog of a connection. Partial is
// set when a source stopped paging early; Warnings says why.
type DiscoveryResult struct {
	ConnectionID uuid.UUID        `json:"connectionId"`
	Listings     []models.Listing `json:"listings"`
	Partial      bool             `json:"partial"`
	Warnings     []string         `json:"warnings,omitempty"`
	Cached       bool             `json:"cached"`
	DiscoveredAt time.Time        `json:"discoveredAt"`
}

// DiscoveryService discovers listings across the Inventory and Trading APIs
type DiscoveryService struct {
	tokens *TokenService
	cache  ListingCacher
	logger *logrus.Entry
	now    func() time.Time

	maxInventoryPages int
	maxTradingPages   int
}

// NewDiscoveryService creates a new discovery service. cache may be nil.
func NewDiscoveryService(tokens *TokenService, listingCache ListingCacher, logger *logrus.Entry) *DiscoveryService {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &DiscoveryService{
		tokens: tokens,
		cache:  listingCache,
		logger: logger.WithField("component", "discovery_service"),
		now:    time.Now,

		maxInventoryPages: maxInventoryPages,
		maxTradingPages:   maxTradingPages,
	}
}

// DiscoverListings returns the connection's merged listing catalog. A cached
// result is served unless forceRefresh is set. Partial results are never
// cached, and a forced refresh that comes back partial drops the cached entry.
func (s *DiscoveryService) DiscoverListings(ctx context.Context, tenantID string, connectionID *uuid.UUID, forceRefresh bool) (*DiscoveryResult, error) {
	conn, err := s.tokens.GetValidToken(ctx, tenantID, connectionID)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"tenant_id":     tenantID,
		"connection_id": conn.ID,
	})

	if !forceRefresh && s.cache != nil {
		cached, err := s.cache.Get(ctx, tenantID, conn.ID)
		if err != nil {
			log.WithError(err).Warn("Listing cache read failed")
		} else if cached != nil {
			return &DiscoveryResult{
				ConnectionID: conn.ID,
				Listings:     cached.Listings,
				Partial:      cached.Partial,
				Warnings:     cached.Warnings,
				Cached:       true,
				DiscoveredAt: cached.CachedAt,
			}, nil
		}
	}

	result := s.discover(ctx, conn)
	log.WithFields(logrus.Fields{
		"listings": len(result.Listings),
		"partial":  result.Partial,
	}).Info("Listing discovery finished")

	switch {
	case s.cache == nil:
	case !result.Partial:
		if err := s.cache.Set(ctx, tenantID, conn.ID, &cache.CachedListings{
			Listings: result.Listings,
			CachedAt: result.DiscoveredAt,
		}); err != nil {
			log.WithError(err).Warn("Listing cache write failed")
		}
	case forceRefresh:
		if err := s.cache.Invalidate(ctx, tenantID, conn.ID); err != nil {
			log.WithError(err).Warn("Listing cache invalidation failed")
		}
	}
	return result, nil
}

func (s *DiscoveryService) discover(ctx context.Context, conn *models.Connection) *DiscoveryResult {
	client := s.tokens.Client(conn)

	inventoryListings, warnings := s.discoverInventoryAPI(ctx, client, conn)
	tradingListings, tradingWarnings := s.discoverTradingAPI(ctx, client, conn)
	warnings = append(warnings, tradingWarnings...)

	return &DiscoveryResult{
		ConnectionID: conn.ID,
		Listings:     MergeListings(inventoryListings, tradingListings),
		Partial:      len(warnings) > 0,
		Warnings:     warnings,
		DiscoveredAt: s.now(),
	}
}

// discoverInventoryAPI pages the inventory item list, then fetches offers for
// each SKU with bounded concurrency.
func (s *DiscoveryService) discoverInventoryAPI(ctx context.Context, client clients.InventoryAPI, conn *models.Connection) ([]models.InventoryAPIListing, []string) {
	var warnings []string
	var items []clients.InventoryItem

	exhausted := false
	for page := 0; page < s.maxInventoryPages; page++ {
		offset := page * inventoryPageSize
		result, err := client.ListInventoryItems(ctx, conn.AccessToken, inventoryPageSize, offset)
		if err != nil {
			s.logger.WithError(err).WithField("offset", offset).Warn("Inventory item page failed, stopping inventory pagination")
			warnings = append(warnings, fmt.Sprintf("inventory-api: page at offset %d failed: %v", offset, err))
			exhausted = true
			break
		}
		items = append(items, result.Items...)
		if len(result.Items) < inventoryPageSize {
			exhausted = true
			break
		}
	}
	if !exhausted {
		s.logger.WithField("max_pages", s.maxInventoryPages).Warn("Inventory item page cap reached")
		warnings = append(warnings, fmt.Sprintf("inventory-api: stopped after %d pages, catalog truncated", s.maxInventoryPages))
	}

	rows := make([][]models.InventoryAPIListing, len(items))
	itemWarnings := make([]string, len(items))

	var g errgroup.Group
	g.SetLimit(offerFetchBatchSize)
	for i := range items {
		g.Go(func() error {
			rows[i], itemWarnings[i] = s.fetchOffers(ctx, client, conn, items[i])
			return nil
		})
	}
	_ = g.Wait()

	var listings []models.InventoryAPIListing
	for i := range rows {
		listings = append(listings, rows[i]...)
		if itemWarnings[i] != "" {
			warnings = append(warnings, itemWarnings[i])
		}
	}
	return listings, warnings
}

func (s *DiscoveryService) fetchOffers(ctx context.Context, client clients.InventoryAPI, conn *models.Connection, item clients.InventoryItem) ([]models.InventoryAPIListing, string) {
	offers, err := client.ListOffers(ctx, conn.AccessToken, item.SKU)
	if err != nil {
		s.logger.WithError(err).WithField("sku", item.SKU).Warn("Offer lookup failed")
		return nil, fmt.Sprintf("inventory-api: offers for sku %s failed: %v", item.SKU, err)
	}

	title := item.Title
	if title == "" && len(offers) > 0 {
		if detail, err := client.GetInventoryItem(ctx, conn.AccessToken, item.SKU); err == nil {
			title = detail.Title
		}
	}

	var rows []models.InventoryAPIListing
	for _, offer := range offers {
		// unpublished offers have no marketplace listing yet
		if offer.ListingID == "" {
			continue
		}
		rows = append(rows, models.InventoryAPIListing{
			SKU:               item.SKU,
			Title:             title,
			OfferID:           offer.OfferID,
			OfferStatus:       offer.Status,
			ListingID:         offer.ListingID,
			ListingStatus:     offer.ListingStatus,
			AvailableQuantity: offer.AvailableQuantity,
		})
	}
	return rows, ""
}

// discoverTradingAPI pages GetMyeBaySelling until the reported page count is exhausted
func (s *DiscoveryService) discoverTradingAPI(ctx context.Context, client clients.TradingAPI, conn *models.Connection) ([]models.TradingAPIListing, []string) {
	listings, err := fetchAllTradingListings(ctx, client, conn.AccessToken, s.maxTradingPages)
	if err != nil {
		s.logger.WithError(err).Warn("Trading listing pass incomplete")
		return listings, []string{fmt.Sprintf("trading-api: %v", err)}
	}
	return listings, nil
}

// fetchAllTradingListings returns every active Trading API listing. On a page
// failure or when maxPages is reached first it returns what was gathered so
// far together with an error.
func fetchAllTradingListings(ctx context.Context, client clients.TradingAPI, accessToken string, maxPages int) ([]models.TradingAPIListing, error) {
	var listings []models.TradingAPIListing
	for page := 1; page <= maxPages; page++ {
		result, err := client.GetSellerListings(ctx, accessToken, page, tradingPageSize)
		if err != nil {
			return listings, fmt.Errorf("page %d failed: %w", page, err)
		}
		listings = append(listings, result.Listings...)
		if page >= result.TotalPages {
			return listings, nil
		}
	}
	return listings, fmt.Errorf("stopped after %d pages, catalog truncated", maxPages)
}

// MergeListings normalizes both sources into one catalog. A Trading API row
// whose listing id already came from the Inventory API is dropped.
func MergeListings(inventory []models.InventoryAPIListing, trading []models.TradingAPIListing) []models.Listing {
	merged := make([]models.Listing, 0, len(inventory)+len(trading))
	seen := make(map[string]struct{}, len(inventory)+len(trading))

	add := func(src models.ListingSource) {
		listing := src.Normalize()
		if listing.ListingID == "" {
			return
		}
		if _, dup := seen[listing.ListingID]; dup {
			return
		}
		seen[listing.ListingID] = struct{}{}
		merged = append(merged, listing)
	}

	for _, l := range inventory {
		add(l)
	}
	for _, l := range trading {
		add(l)
	}
	return merged
}
