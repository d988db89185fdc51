package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"marketplace-sync-service/internal/models"
)

// SyncRepository stores orchestrator run summaries
type SyncRepository struct {
	db *gorm.DB
}

// NewSyncRepository creates a new sync repository
func NewSyncRepository(db *gorm.DB) *SyncRepository {
	return &SyncRepository{db: db}
}

// CreateRun persists a finished run
func (r *SyncRepository) CreateRun(ctx context.Context, run *models.SyncRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(run).Error
}

// ListRecentRuns returns the newest runs first
func (r *SyncRepository) ListRecentRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []models.SyncRun
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}
