package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"marketplace-sync-service/internal/models"
)

// SelectionRepository stores the listings a tenant fulfills internally
type SelectionRepository struct {
	db *gorm.DB
}

// NewSelectionRepository creates a new selection repository
func NewSelectionRepository(db *gorm.DB) *SelectionRepository {
	return &SelectionRepository{db: db}
}

// ListForConnection returns the selection set of a connection
func (r *SelectionRepository) ListForConnection(ctx context.Context, tenantID string, connectionID uuid.UUID) ([]models.SelectedListing, error) {
	var selected []models.SelectedListing
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND connection_id = ?", tenantID, connectionID).
		Order("id ASC").
		Find(&selected).Error
	return selected, err
}

// ReplaceForConnection swaps the whole selection set in one transaction.
// Readers see either the old set or the new one.
func (r *SelectionRepository) ReplaceForConnection(ctx context.Context, tenantID string, connectionID uuid.UUID, selected []models.SelectedListing) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ? AND connection_id = ?", tenantID, connectionID).
			Delete(&models.SelectedListing{}).Error; err != nil {
			return err
		}
		if len(selected) == 0 {
			return nil
		}
		for i := range selected {
			selected[i].ID = 0
			selected[i].TenantID = tenantID
			selected[i].ConnectionID = connectionID
		}
		return tx.CreateInBatches(selected, 100).Error
	})
}

// DeleteForConnection removes the selection set of a connection
func (r *SelectionRepository) DeleteForConnection(ctx context.Context, connectionID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Delete(&models.SelectedListing{}, "connection_id = ?", connectionID).Error
}
