package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"marketplace-sync-service/internal/encryption"
	"marketplace-sync-service/internal/models"
)

// ConnectionRepository handles database operations for marketplace
// connections. With an encryptor, OAuth tokens are sealed at rest and every
// connection it returns carries plaintext tokens.
type ConnectionRepository struct {
	db        *gorm.DB
	encryptor *encryption.PIIEncryptor
}

// NewConnectionRepository creates a new connection repository. encryptor may be nil.
func NewConnectionRepository(db *gorm.DB, encryptor *encryption.PIIEncryptor) *ConnectionRepository {
	return &ConnectionRepository{db: db, encryptor: encryptor}
}

// Create creates a new marketplace connection
func (r *ConnectionRepository) Create(ctx context.Context, connection *models.Connection) error {
	if connection.ID == uuid.Nil {
		connection.ID = uuid.New()
	}

	stored := *connection
	access, refresh, err := r.sealTokens(ctx, connection)
	if err != nil {
		return err
	}
	stored.AccessToken, stored.RefreshToken = access, refresh
	if err := r.db.WithContext(ctx).Create(&stored).Error; err != nil {
		return err
	}

	connection.CreatedAt = stored.CreatedAt
	connection.UpdatedAt = stored.UpdatedAt
	return nil
}

// Reauthorize writes a new grant and the seller profile of an existing
// connection and clears its last error. Sync stamps are left alone.
func (r *ConnectionRepository) Reauthorize(ctx context.Context, connection *models.Connection) error {
	access, refresh, err := r.sealTokens(ctx, connection)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&models.Connection{}).
		Where("id = ?", connection.ID).
		Updates(map[string]interface{}{
			"access_token":             access,
			"access_token_expires_at":  connection.AccessTokenExpiresAt,
			"refresh_token":            refresh,
			"refresh_token_expires_at": connection.RefreshTokenExpiresAt,
			"marketplace_user_id":      connection.MarketplaceUserID,
			"display_name":             connection.DisplayName,
			"last_error":               "",
			"updated_at":               time.Now(),
		}).Error
}

// GetByID retrieves a connection by ID
func (r *ConnectionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Connection, error) {
	var connection models.Connection
	if err := r.db.WithContext(ctx).First(&connection, "id = ?", id).Error; err != nil {
		return nil, err
	}
	if err := r.openTokens(ctx, &connection); err != nil {
		return nil, err
	}
	return &connection, nil
}

// GetForTenant retrieves a connection by ID, scoped to its tenant
func (r *ConnectionRepository) GetForTenant(ctx context.Context, tenantID string, id uuid.UUID) (*models.Connection, error) {
	var connection models.Connection
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&connection).Error
	if err != nil {
		return nil, err
	}
	if err := r.openTokens(ctx, &connection); err != nil {
		return nil, err
	}
	return &connection, nil
}

// GetLatestForTenant retrieves the most recently created connection of a tenant
func (r *ConnectionRepository) GetLatestForTenant(ctx context.Context, tenantID string) (*models.Connection, error) {
	var connection models.Connection
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		First(&connection).Error
	if err != nil {
		return nil, err
	}
	if err := r.openTokens(ctx, &connection); err != nil {
		return nil, err
	}
	return &connection, nil
}

// GetByTenant retrieves all connections for a tenant
func (r *ConnectionRepository) GetByTenant(ctx context.Context, tenantID string) ([]models.Connection, error) {
	var connections []models.Connection
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&connections).Error
	if err != nil {
		return nil, err
	}
	if err := r.openAll(ctx, connections); err != nil {
		return nil, err
	}
	return connections, nil
}

// List retrieves connections across all tenants, newest first
func (r *ConnectionRepository) List(ctx context.Context, opts ListOptions) ([]models.Connection, int64, error) {
	var connections []models.Connection
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Connection{})
	if opts.TenantID != "" {
		query = query.Where("tenant_id = ?", opts.TenantID)
	}

	// Get total count
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}
	if err := query.Order("created_at DESC").Find(&connections).Error; err != nil {
		return nil, 0, err
	}
	if err := r.openAll(ctx, connections); err != nil {
		return nil, 0, err
	}

	return connections, total, nil
}

// UpdateTokens persists the token columns of a connection
func (r *ConnectionRepository) UpdateTokens(ctx context.Context, connection *models.Connection) error {
	access, refresh, err := r.sealTokens(ctx, connection)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&models.Connection{}).
		Where("id = ?", connection.ID).
		Updates(map[string]interface{}{
			"access_token":             access,
			"access_token_expires_at":  connection.AccessTokenExpiresAt,
			"refresh_token":            refresh,
			"refresh_token_expires_at": connection.RefreshTokenExpiresAt,
			"updated_at":               time.Now(),
		}).Error
}

// RecordSyncResult stamps the outcome of a sync. An empty lastError clears it.
func (r *ConnectionRepository) RecordSyncResult(ctx context.Context, id uuid.UUID, syncedAt time.Time, lastError string) error {
	updates := map[string]interface{}{
		"last_error": lastError,
		"updated_at": time.Now(),
	}
	if lastError == "" {
		updates["last_sync_at"] = syncedAt
	}
	return r.db.WithContext(ctx).
		Model(&models.Connection{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// Delete removes a connection
func (r *ConnectionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.Connection{}, "id = ?", id).Error
}

func (r *ConnectionRepository) sealTokens(ctx context.Context, connection *models.Connection) (string, *string, error) {
	if r.encryptor == nil {
		return connection.AccessToken, connection.RefreshToken, nil
	}

	access, err := r.encryptor.EncryptString(ctx, connection.TenantID, connection.AccessToken)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	if connection.RefreshToken == nil {
		return access, nil, nil
	}
	refresh, err := r.encryptor.EncryptString(ctx, connection.TenantID, *connection.RefreshToken)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	return access, &refresh, nil
}

func (r *ConnectionRepository) openTokens(ctx context.Context, connection *models.Connection) error {
	if r.encryptor == nil {
		return nil
	}

	access, err := r.encryptor.DecryptString(ctx, connection.TenantID, connection.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to decrypt access token of connection %s: %w", connection.ID, err)
	}
	connection.AccessToken = access
	if connection.RefreshToken != nil {
		refresh, err := r.encryptor.DecryptString(ctx, connection.TenantID, *connection.RefreshToken)
		if err != nil {
			return fmt.Errorf("failed to decrypt refresh token of connection %s: %w", connection.ID, err)
		}
		connection.RefreshToken = &refresh
	}
	return nil
}

func (r *ConnectionRepository) openAll(ctx context.Context, connections []models.Connection) error {
	for i := range connections {
		if err := r.openTokens(ctx, &connections[i]); err != nil {
			return err
		}
	}
	return nil
}

// ListOptions contains options for listing connections
type ListOptions struct {
	TenantID string
	Limit    int
	Offset   int
}
