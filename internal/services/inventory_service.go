package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/repository"
)

// RefreshResult reports one inventory pull. Errors holds one entry per
// selected listing that could not be refreshed.
type RefreshResult struct {
	ConnectionID uuid.UUID `json:"connectionId"`
	Updated      int       `json:"updated"`
	Skipped      int       `json:"skipped"`
	Errors       []string  `json:"errors,omitempty"`
}

// QuantityUpdate is an explicit quantity to push to the marketplace. At least
// one of ListingID and OfferID is required.
type QuantityUpdate struct {
	ListingID string `json:"listingId,omitempty"`
	OfferID   string `json:"offerId,omitempty"`
	Quantity  int    `json:"quantity"`
}

// QuantityResult reports a pushed quantity and the record it was mirrored to
type QuantityResult struct {
	OK       bool                    `json:"ok"`
	Quantity int                     `json:"quantity"`
	API      models.ListingSourceTag `json:"api"`
	Record   *models.InventoryRecord `json:"record,omitempty"`
}

// InventoryService reconciles selected listing quantities with the internal
// inventory records in both directions.
type InventoryService struct {
	tokens     *TokenService
	selections *SelectionService
	inventory  repository.InventoryRepositoryInterface
	logger     *logrus.Entry
	now        func() time.Time
}

// NewInventoryService creates a new inventory service
func NewInventoryService(tokens *TokenService, selections *SelectionService, inventory repository.InventoryRepositoryInterface, logger *logrus.Entry) *InventoryService {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &InventoryService{
		tokens:     tokens,
		selections: selections,
		inventory:  inventory,
		logger:     logger.WithField("component", "inventory_service"),
		now:        time.Now,
	}
}

type offerQuantity struct {
	offer *clients.Offer
	err   error
}

// RefreshInventoryFromMarketplace pulls the available quantity of every
// selected listing into its inventory record. Offer-backed listings are read
// from the Inventory API; the rest from one Trading API listing pass.
func (s *InventoryService) RefreshInventoryFromMarketplace(ctx context.Context, tenantID string, connectionID *uuid.UUID) (*RefreshResult, error) {
	conn, err := s.tokens.GetValidToken(ctx, tenantID, connectionID)
	if err != nil {
		return nil, err
	}
	_, selected, err := s.selections.Filter(ctx, tenantID, conn.ID)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"tenant_id":     tenantID,
		"connection_id": conn.ID,
	})
	result := &RefreshResult{ConnectionID: conn.ID}
	if len(selected) == 0 {
		return result, nil
	}

	client := s.tokens.Client(conn)

	var withOffer, tradingOnly []models.SelectedListing
	for _, sel := range selected {
		if sel.HasOffer() {
			withOffer = append(withOffer, sel)
		} else {
			tradingOnly = append(tradingOnly, sel)
		}
	}

	offers := make([]offerQuantity, len(withOffer))
	var g errgroup.Group
	g.SetLimit(offerFetchBatchSize)
	for i := range withOffer {
		g.Go(func() error {
			offer, err := client.GetOffer(ctx, conn.AccessToken, *withOffer[i].OfferID)
			offers[i] = offerQuantity{offer: offer, err: err}
			return nil
		})
	}
	_ = g.Wait()

	for i, sel := range withOffer {
		if offers[i].err != nil {
			log.WithError(offers[i].err).WithField("offer_id", *sel.OfferID).Warn("Offer lookup failed")
			result.Errors = append(result.Errors, fmt.Sprintf("offer %s: %v", *sel.OfferID, offers[i].err))
			continue
		}
		sku := offers[i].offer.SKU
		if sku == "" {
			sku = sel.SKU
		}
		if err := s.writeQuantity(ctx, conn, sel, sku, offers[i].offer.AvailableQuantity); err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Updated++
	}

	if len(tradingOnly) > 0 {
		listings, err := fetchAllTradingListings(ctx, client, conn.AccessToken, maxTradingPages)
		if err != nil {
			log.WithError(err).Warn("Trading listing pass incomplete")
			result.Errors = append(result.Errors, fmt.Sprintf("trading-api: %v", err))
		}
		byItemID := make(map[string]models.TradingAPIListing, len(listings))
		for _, l := range listings {
			byItemID[l.ItemID] = l
		}

		for _, sel := range tradingOnly {
			listing, ok := byItemID[sel.ListingID]
			if !ok {
				result.Skipped++
				result.Errors = append(result.Errors, fmt.Sprintf("listing %s: not found among active trading listings", sel.ListingID))
				continue
			}
			sku := listing.SKU
			if sku == "" {
				sku = sel.SKU
			}
			if err := s.writeQuantity(ctx, conn, sel, sku, listing.ResolvedQuantity()); err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			result.Updated++
		}
	}

	log.WithFields(logrus.Fields{
		"updated": result.Updated,
		"skipped": result.Skipped,
		"errors":  len(result.Errors),
	}).Info("Inventory refresh finished")
	return result, nil
}

func (s *InventoryService) writeQuantity(ctx context.Context, conn *models.Connection, sel models.SelectedListing, sku string, quantity int) error {
	if quantity < 0 {
		quantity = 0
	}
	status := models.StockStatus(quantity)
	source := models.InventorySourceEbay
	connID := conn.ID
	listingID := sel.ListingID
	updatedAt := s.now()

	patch := models.InventoryPatch{
		Quantity:     &quantity,
		Status:       &status,
		Source:       &source,
		ConnectionID: &connID,
		ListingID:    &listingID,
		UpdatedAt:    &updatedAt,
	}
	if sku != "" {
		patch.SKU = &sku
	}
	if sel.Title != "" {
		name := sel.Title
		patch.Name = &name
	}
	if sel.HasOffer() {
		offerID := *sel.OfferID
		patch.OfferID = &offerID
	}

	recordID := models.InventoryRecordID(conn.ID, sel.ListingKey())
	if _, err := s.inventory.UpsertRecord(ctx, conn.TenantID, recordID, patch); err != nil {
		return fmt.Errorf("listing %s: failed to save inventory record: %w", sel.ListingID, err)
	}
	return nil
}

// SetMarketplaceQuantity pushes an explicit quantity to whichever API owns the
// listing, then mirrors it into the inventory record. Negative quantities are
// clamped to zero.
func (s *InventoryService) SetMarketplaceQuantity(ctx context.Context, tenantID string, connectionID *uuid.UUID, update QuantityUpdate) (*QuantityResult, error) {
	if tenantID == "" {
		return nil, ErrUnauthorized
	}
	update.ListingID = strings.TrimSpace(update.ListingID)
	update.OfferID = strings.TrimSpace(update.OfferID)
	if update.ListingID == "" && update.OfferID == "" {
		return nil, validationErrorf("listingId or offerId is required")
	}
	if update.Quantity < 0 {
		update.Quantity = 0
	}

	conn, err := s.tokens.GetValidToken(ctx, tenantID, connectionID)
	if err != nil {
		return nil, err
	}
	_, selected, err := s.selections.Filter(ctx, tenantID, conn.ID)
	if err != nil {
		return nil, err
	}
	sel := resolveSelected(selected, update)

	log := s.logger.WithFields(logrus.Fields{
		"tenant_id":     tenantID,
		"connection_id": conn.ID,
		"listing_id":    sel.ListingID,
		"quantity":      update.Quantity,
	})

	client := s.tokens.Client(conn)
	result := &QuantityResult{Quantity: update.Quantity}
	sku := sel.SKU

	if sel.HasOffer() {
		offer, err := client.GetOffer(ctx, conn.AccessToken, *sel.OfferID)
		if err != nil {
			return nil, fmt.Errorf("failed to load offer %s: %w", *sel.OfferID, err)
		}
		offer.AvailableQuantity = update.Quantity
		if err := client.UpdateOffer(ctx, conn.AccessToken, offer); err != nil {
			log.WithError(err).Error("Offer quantity update rejected")
			return nil, fmt.Errorf("failed to update offer %s: %w", *sel.OfferID, err)
		}
		if offer.SKU != "" {
			sku = offer.SKU
		}
		if sel.ListingID == "" {
			sel.ListingID = offer.ListingID
		}
		result.API = models.SourceInventoryAPI
	} else {
		revision := &clients.InventoryStatusRevision{ItemID: sel.ListingID, Quantity: update.Quantity}
		if err := client.ReviseInventoryStatus(ctx, conn.AccessToken, revision); err != nil {
			log.WithError(err).Error("Inventory status revision rejected")
			return nil, fmt.Errorf("failed to revise listing %s: %w", sel.ListingID, err)
		}
		result.API = models.SourceTradingAPI
	}

	if err := s.writeQuantity(ctx, conn, sel, sku, update.Quantity); err != nil {
		return nil, err
	}
	record, err := s.inventory.GetRecord(ctx, tenantID, models.InventoryRecordID(conn.ID, sel.ListingKey()))
	if err != nil {
		return nil, fmt.Errorf("failed to reload inventory record: %w", err)
	}

	log.WithField("api", result.API).Info("Marketplace quantity updated")
	result.OK = true
	result.Record = record
	return result, nil
}

// resolveSelected finds the selected listing an update refers to, filling in
// the offer id from the selection when only the listing id was given.
func resolveSelected(selected []models.SelectedListing, update QuantityUpdate) models.SelectedListing {
	for _, sel := range selected {
		if update.ListingID != "" && sel.ListingID == update.ListingID {
			if update.OfferID != "" {
				offerID := update.OfferID
				sel.OfferID = &offerID
			}
			return sel
		}
		if update.ListingID == "" && sel.HasOffer() && *sel.OfferID == update.OfferID {
			return sel
		}
	}

	sel := models.SelectedListing{ListingID: update.ListingID}
	if update.OfferID != "" {
		offerID := update.OfferID
		sel.OfferID = &offerID
	}
	return sel
}
