package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketplace-sync-service/internal/encryption"
	"marketplace-sync-service/internal/models"
)

// OrderRepository handles database operations for projected marketplace
// orders. With an encryptor, buyer email and name are sealed before they
// are written and opened after every read.
type OrderRepository struct {
	db        *gorm.DB
	encryptor *encryption.PIIEncryptor
}

// NewOrderRepository creates a new order repository. encryptor may be nil.
func NewOrderRepository(db *gorm.DB, encryptor *encryption.PIIEncryptor) *OrderRepository {
	return &OrderRepository{db: db, encryptor: encryptor}
}

// UpsertOrder merges patch into the stored order, creating it when absent
func (r *OrderRepository) UpsertOrder(ctx context.Context, key models.OrderKey, patch models.OrderPatch) (*models.MarketplaceOrder, error) {
	var merged models.MarketplaceOrder
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.MarketplaceOrder
		var current *models.MarketplaceOrder

		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ? AND order_id = ?", key.TenantID, key.OrderID).
			First(&existing).Error
		switch {
		case err == nil:
			current = &existing
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		merged = models.MergeOrder(current, key, patch)
		if patch.Buyer != nil {
			if err := r.sealBuyer(ctx, &merged); err != nil {
				return err
			}
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&merged).Error
	})
	if err != nil {
		return nil, err
	}
	if err := r.openBuyer(ctx, &merged); err != nil {
		return nil, err
	}
	return &merged, nil
}

// GetOrder retrieves an order by its natural key
func (r *OrderRepository) GetOrder(ctx context.Context, tenantID, orderID string) (*models.MarketplaceOrder, error) {
	var order models.MarketplaceOrder
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND order_id = ?", tenantID, orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	if err := r.openBuyer(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders retrieves a tenant's orders with pagination and filtering
func (r *OrderRepository) ListOrders(ctx context.Context, tenantID string, opts OrderListOptions) ([]models.MarketplaceOrder, int64, error) {
	var orders []models.MarketplaceOrder
	var total int64

	query := r.db.WithContext(ctx).Model(&models.MarketplaceOrder{}).
		Where("tenant_id = ?", tenantID)
	if opts.ConnectionID != nil {
		query = query.Where("connection_id = ?", *opts.ConnectionID)
	}
	if opts.FulfillmentStatus != "" {
		query = query.Where("fulfillment_status = ?", opts.FulfillmentStatus)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if opts.Limit > 0 {
		query = query.Limit(opts.Limit).Offset(opts.Offset)
	}
	if err := query.Order("creation_date DESC").Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	for i := range orders {
		if err := r.openBuyer(ctx, &orders[i]); err != nil {
			return nil, 0, err
		}
	}

	return orders, total, nil
}

// sealBuyer moves the buyer's email and name into the ciphertext columns
func (r *OrderRepository) sealBuyer(ctx context.Context, order *models.MarketplaceOrder) error {
	if r.encryptor == nil || order.Buyer == nil {
		return nil
	}

	buyer := *order.Buyer
	order.Buyer = &models.Buyer{Username: buyer.Username}
	order.BuyerPIICiphertext, order.BuyerPIINonce = nil, nil
	if buyer.Email == "" && buyer.FullName == "" {
		return nil
	}

	pii := &encryption.PIIFields{}
	if buyer.Email != "" {
		pii.Email = &buyer.Email
	}
	if buyer.FullName != "" {
		pii.FullName = &buyer.FullName
	}
	encrypted, err := r.encryptor.EncryptPII(ctx, order.TenantID, pii)
	if err != nil {
		return fmt.Errorf("failed to encrypt buyer PII: %w", err)
	}
	ciphertext, nonce, err := encrypted.Raw()
	if err != nil {
		return err
	}
	order.BuyerPIICiphertext = ciphertext
	order.BuyerPIINonce = nonce
	order.BuyerPIIKeyVersion = encrypted.KeyVersion
	return nil
}

// openBuyer restores the buyer's email and name from the ciphertext columns
func (r *OrderRepository) openBuyer(ctx context.Context, order *models.MarketplaceOrder) error {
	if r.encryptor == nil || len(order.BuyerPIICiphertext) == 0 {
		return nil
	}

	pii, err := r.encryptor.DecryptPII(ctx, order.TenantID,
		encryption.NewEncryptedData(order.BuyerPIICiphertext, order.BuyerPIINonce, order.BuyerPIIKeyVersion))
	if err != nil {
		return fmt.Errorf("failed to decrypt buyer PII for order %s: %w", order.OrderID, err)
	}

	buyer := models.Buyer{}
	if order.Buyer != nil {
		buyer = *order.Buyer
	}
	if pii.Email != nil {
		buyer.Email = *pii.Email
	}
	if pii.FullName != nil {
		buyer.FullName = *pii.FullName
	}
	order.Buyer = &buyer
	return nil
}

// OrderListOptions contains options for listing orders
type OrderListOptions struct {
	ConnectionID      *uuid.UUID
	FulfillmentStatus string
	Limit             int
	Offset            int
}
