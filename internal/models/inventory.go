package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Inventory record stock statuses
const (
	StockInStock    = "In Stock"
	StockOutOfStock = "Out of Stock"
)

// InventorySourceEbay marks records mirrored from the marketplace
const InventorySourceEbay = "ebay"

// InventoryRecord is one internal SKU-level stock record. The dashboard owns
// its lifecycle; the sync engine only merge-upserts marketplace-sourced fields.
type InventoryRecord struct {
	TenantID     string     `gorm:"type:varchar(255);primaryKey" json:"tenantId"`
	RecordID     string     `gorm:"type:varchar(255);primaryKey" json:"id"`
	SKU          string     `gorm:"type:varchar(255);index:idx_inventory_records_sku" json:"sku"`
	Name         string     `gorm:"type:varchar(500)" json:"name"`
	Quantity     int        `json:"quantity"`
	Status       string     `gorm:"type:varchar(50)" json:"status"`
	Source       string     `gorm:"type:varchar(50)" json:"source,omitempty"`
	ConnectionID *uuid.UUID `gorm:"type:uuid;index:idx_inventory_records_connection" json:"connectionId,omitempty"`
	ListingID    string     `gorm:"type:varchar(255)" json:"listingId,omitempty"`
	OfferID      string     `gorm:"type:varchar(255)" json:"offerId,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// TableName specifies the table name for InventoryRecord
func (InventoryRecord) TableName() string {
	return "inventory_records"
}

// InventoryRecordID is the deterministic id of the record mirroring a listing,
// so repeated refreshes update one record instead of adding new ones.
func InventoryRecordID(connectionID uuid.UUID, listingKey string) string {
	return fmt.Sprintf("ebay_%s_%s", connectionID, listingKey)
}

// StockStatus maps a quantity onto the record status
func StockStatus(quantity int) string {
	if quantity > 0 {
		return StockInStock
	}
	return StockOutOfStock
}

// InventoryPatch is a partial inventory record. Nil fields are left untouched.
type InventoryPatch struct {
	SKU          *string
	Name         *string
	Quantity     *int
	Status       *string
	Source       *string
	ConnectionID *uuid.UUID
	ListingID    *string
	OfferID      *string
	UpdatedAt    *time.Time
}

// MergeInventory applies patch onto existing (nil for a first write)
func MergeInventory(existing *InventoryRecord, tenantID, recordID string, patch InventoryPatch) InventoryRecord {
	var merged InventoryRecord
	if existing != nil {
		merged = *existing
	}
	merged.TenantID = tenantID
	merged.RecordID = recordID

	if patch.SKU != nil {
		merged.SKU = *patch.SKU
	}
	if patch.Name != nil {
		merged.Name = *patch.Name
	}
	if patch.Quantity != nil {
		merged.Quantity = *patch.Quantity
	}
	if patch.Status != nil {
		merged.Status = *patch.Status
	}
	if patch.Source != nil {
		merged.Source = *patch.Source
	}
	if patch.ConnectionID != nil {
		id := *patch.ConnectionID
		merged.ConnectionID = &id
	}
	if patch.ListingID != nil {
		merged.ListingID = *patch.ListingID
	}
	if patch.OfferID != nil {
		merged.OfferID = *patch.OfferID
	}
	if patch.UpdatedAt != nil {
		merged.UpdatedAt = *patch.UpdatedAt
	}
	return merged
}
