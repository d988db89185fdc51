package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/repository"
)

// SelectionInput is one listing the tenant marks as fulfilled internally
type SelectionInput struct {
	ListingID string `json:"listingId"`
	OfferID   string `json:"offerId,omitempty"`
	SKU       string `json:"sku,omitempty"`
	Title     string `json:"title,omitempty"`
	Status    string `json:"status,omitempty"`
	Source    string `json:"source,omitempty"`
}

// SelectionService manages the per-connection selection set
type SelectionService struct {
	tokens     *TokenService
	selections repository.SelectionRepositoryInterface
	logger     *logrus.Entry
}

// NewSelectionService creates a new selection service
func NewSelectionService(tokens *TokenService, selections repository.SelectionRepositoryInterface, logger *logrus.Entry) *SelectionService {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SelectionService{
		tokens:     tokens,
		selections: selections,
		logger:     logger.WithField("component", "selection_service"),
	}
}

// GetSelection returns the selection set of a connection
func (s *SelectionService) GetSelection(ctx context.Context, tenantID string, connectionID *uuid.UUID) ([]models.SelectedListing, error) {
	if tenantID == "" {
		return nil, ErrUnauthorized
	}
	conn, err := s.tokens.loadConnection(ctx, tenantID, connectionID)
	if err != nil {
		return nil, err
	}
	return s.selections.ListForConnection(ctx, tenantID, conn.ID)
}

// Filter returns the selection filter of a connection
func (s *SelectionService) Filter(ctx context.Context, tenantID string, connectionID uuid.UUID) (models.SelectionFilter, []models.SelectedListing, error) {
	selected, err := s.selections.ListForConnection(ctx, tenantID, connectionID)
	if err != nil {
		return models.SelectionFilter{}, nil, fmt.Errorf("failed to load selection: %w", err)
	}
	return models.NewSelectionFilter(selected), selected, nil
}

// SaveSelection replaces the whole selection set. Listing ids must be present
// and unique; an empty input clears the selection.
func (s *SelectionService) SaveSelection(ctx context.Context, tenantID string, connectionID *uuid.UUID, inputs []SelectionInput) ([]models.SelectedListing, error) {
	if tenantID == "" {
		return nil, ErrUnauthorized
	}

	selected := make([]models.SelectedListing, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for i, in := range inputs {
		listingID := strings.TrimSpace(in.ListingID)
		if listingID == "" {
			return nil, validationErrorf("listing %d has no listingId", i)
		}
		if _, dup := seen[listingID]; dup {
			return nil, validationErrorf("listing %s selected more than once", listingID)
		}
		seen[listingID] = struct{}{}

		item := models.SelectedListing{
			ListingID: listingID,
			SKU:       in.SKU,
			Title:     in.Title,
			Status:    in.Status,
			Source:    models.ParseListingSourceTag(in.Source),
		}
		if offerID := strings.TrimSpace(in.OfferID); offerID != "" {
			item.OfferID = &offerID
		}
		selected = append(selected, item)
	}

	conn, err := s.tokens.loadConnection(ctx, tenantID, connectionID)
	if err != nil {
		return nil, err
	}

	if err := s.selections.ReplaceForConnection(ctx, tenantID, conn.ID, selected); err != nil {
		return nil, fmt.Errorf("failed to save selection: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id":     tenantID,
		"connection_id": conn.ID,
		"count":         len(selected),
	}).Info("Selection saved")

	return s.selections.ListForConnection(ctx, tenantID, conn.ID)
}
