package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketplace-sync-service/internal/models"
)

// InventoryRepository handles inventory-related database operations
type InventoryRepository struct {
	db *gorm.DB
}

// NewInventoryRepository creates a new inventory repository
func NewInventoryRepository(db *gorm.DB) *InventoryRepository {
	return &InventoryRepository{db: db}
}

// UpsertRecord merges patch into the stored record, creating it when absent.
// Fields the patch leaves nil, and any column the sync engine does not own,
// keep their stored values.
func (r *InventoryRepository) UpsertRecord(ctx context.Context, tenantID, recordID string, patch models.InventoryPatch) (*models.InventoryRecord, error) {
	var merged models.InventoryRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.InventoryRecord
		var current *models.InventoryRecord

		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ? AND record_id = ?", tenantID, recordID).
			First(&existing).Error
		switch {
		case err == nil:
			current = &existing
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		merged = models.MergeInventory(current, tenantID, recordID, patch)
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&merged).Error
	})
	if err != nil {
		return nil, err
	}
	return &merged, nil
}

// GetRecord retrieves an inventory record by its key
func (r *InventoryRepository) GetRecord(ctx context.Context, tenantID, recordID string) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND record_id = ?", tenantID, recordID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListByConnection retrieves the records mirrored from one connection
func (r *InventoryRepository) ListByConnection(ctx context.Context, tenantID string, connectionID uuid.UUID) ([]models.InventoryRecord, error) {
	var records []models.InventoryRecord
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND connection_id = ?", tenantID, connectionID).
		Order("record_id ASC").
		Find(&records).Error
	return records, err
}
