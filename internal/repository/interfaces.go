package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"marketplace-sync-service/internal/models"
)

// ConnectionRepositoryInterface defines the connection store operations
type ConnectionRepositoryInterface interface {
	Create(ctx context.Context, connection *models.Connection) error
	Reauthorize(ctx context.Context, connection *models.Connection) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Connection, error)
	GetForTenant(ctx context.Context, tenantID string, id uuid.UUID) (*models.Connection, error)
	GetLatestForTenant(ctx context.Context, tenantID string) (*models.Connection, error)
	GetByTenant(ctx context.Context, tenantID string) ([]models.Connection, error)
	List(ctx context.Context, opts ListOptions) ([]models.Connection, int64, error)
	UpdateTokens(ctx context.Context, connection *models.Connection) error
	RecordSyncResult(ctx context.Context, id uuid.UUID, syncedAt time.Time, lastError string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// SelectionRepositoryInterface defines the selection store operations
type SelectionRepositoryInterface interface {
	ListForConnection(ctx context.Context, tenantID string, connectionID uuid.UUID) ([]models.SelectedListing, error)
	ReplaceForConnection(ctx context.Context, tenantID string, connectionID uuid.UUID, selected []models.SelectedListing) error
	DeleteForConnection(ctx context.Context, connectionID uuid.UUID) error
}

// OrderRepositoryInterface defines the order store operations
type OrderRepositoryInterface interface {
	UpsertOrder(ctx context.Context, key models.OrderKey, patch models.OrderPatch) (*models.MarketplaceOrder, error)
	GetOrder(ctx context.Context, tenantID, orderID string) (*models.MarketplaceOrder, error)
	ListOrders(ctx context.Context, tenantID string, opts OrderListOptions) ([]models.MarketplaceOrder, int64, error)
}

// InventoryRepositoryInterface defines the inventory record operations
type InventoryRepositoryInterface interface {
	UpsertRecord(ctx context.Context, tenantID, recordID string, patch models.InventoryPatch) (*models.InventoryRecord, error)
	GetRecord(ctx context.Context, tenantID, recordID string) (*models.InventoryRecord, error)
	ListByConnection(ctx context.Context, tenantID string, connectionID uuid.UUID) ([]models.InventoryRecord, error)
}

// SyncRepositoryInterface defines the sync run store operations
type SyncRepositoryInterface interface {
	CreateRun(ctx context.Context, run *models.SyncRun) error
	ListRecentRuns(ctx context.Context, limit int) ([]models.SyncRun, error)
}

var (
	_ ConnectionRepositoryInterface = (*ConnectionRepository)(nil)
	_ SelectionRepositoryInterface  = (*SelectionRepository)(nil)
	_ OrderRepositoryInterface      = (*OrderRepository)(nil)
	_ InventoryRepositoryInterface  = (*InventoryRepository)(nil)
	_ SyncRepositoryInterface       = (*SyncRepository)(nil)
)
