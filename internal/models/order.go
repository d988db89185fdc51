package models

import (
	"time"

	"github.com/google/uuid"
)

// Line item fulfillment statuses reported by the Fulfillment API
const (
	FulfillmentNotStarted = "NOT_STARTED"
	FulfillmentInProgress = "IN_PROGRESS"
	FulfillmentFulfilled  = "FULFILLED"
)

// LineItem is one ordered unit-group within an order
type LineItem struct {
	LineItemID        string `json:"lineItemId"`
	ListingID         string `json:"listingId"`
	SKU               string `json:"sku,omitempty"`
	Title             string `json:"title"`
	Quantity          int    `json:"quantity"`
	FulfillmentStatus string `json:"fulfillmentStatus"`
}

// Fulfillable reports whether a shipping fulfillment may be submitted for the item
func (li LineItem) Fulfillable() bool {
	return li.FulfillmentStatus == FulfillmentNotStarted || li.FulfillmentStatus == FulfillmentInProgress
}

// Buyer is the optional contact attached to an order. Email and FullName
// are stored encrypted when the order store has an encryptor.
type Buyer struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"fullName,omitempty"`
}

// MarketplaceOrder is the internal projection of a marketplace order.
// LineItems holds only the items whose listing is selected.
type MarketplaceOrder struct {
	TenantID          string     `gorm:"type:varchar(255);primaryKey" json:"tenantId"`
	OrderID           string     `gorm:"type:varchar(255);primaryKey" json:"orderId"`
	ConnectionID      uuid.UUID  `gorm:"type:uuid;index:idx_ebay_orders_connection" json:"connectionId"`
	CreationDate      time.Time  `json:"creationDate"`
	LastModifiedDate  time.Time  `json:"lastModifiedDate"`
	FulfillmentStatus string     `gorm:"type:varchar(50);index:idx_ebay_orders_fulfillment" json:"fulfillmentStatus"`
	PaymentStatus     string     `gorm:"type:varchar(50)" json:"paymentStatus"`
	Buyer             *Buyer     `gorm:"type:jsonb;serializer:json" json:"buyer,omitempty"`
	TotalValue        string     `gorm:"type:varchar(50)" json:"totalValue,omitempty"`
	Currency          string     `gorm:"type:varchar(3)" json:"currency,omitempty"`
	LineItems         []LineItem `gorm:"type:jsonb;serializer:json" json:"lineItems"`
	SyncAt            time.Time  `json:"syncAt"`

	// Sealed buyer email and name
	BuyerPIICiphertext []byte `gorm:"column:buyer_pii_ciphertext;type:bytea" json:"-"`
	BuyerPIINonce      []byte `gorm:"column:buyer_pii_nonce;type:bytea" json:"-"`
	BuyerPIIKeyVersion int    `gorm:"column:buyer_pii_key_version;default:1" json:"-"`
}

// TableName specifies the table name for MarketplaceOrder
func (MarketplaceOrder) TableName() string {
	return "ebay_orders"
}

// OrderKey is the natural key of a MarketplaceOrder
type OrderKey struct {
	TenantID string
	OrderID  string
}

// OrderPatch is a partial order document. Nil fields leave the stored value untouched.
type OrderPatch struct {
	ConnectionID      *uuid.UUID
	CreationDate      *time.Time
	LastModifiedDate  *time.Time
	FulfillmentStatus *string
	PaymentStatus     *string
	Buyer             *Buyer
	TotalValue        *string
	Currency          *string
	LineItems         *[]LineItem
	SyncAt            *time.Time
}

// MergeOrder applies patch onto existing (nil for a first write) and returns
// the merged record. Merging is field level: a present field overwrites, an
// absent field is kept. Line items are replaced as a whole, never merged item by item.
func MergeOrder(existing *MarketplaceOrder, key OrderKey, patch OrderPatch) MarketplaceOrder {
	var merged MarketplaceOrder
	if existing != nil {
		merged = *existing
		merged.LineItems = append([]LineItem(nil), existing.LineItems...)
	}
	merged.TenantID = key.TenantID
	merged.OrderID = key.OrderID

	if patch.ConnectionID != nil {
		merged.ConnectionID = *patch.ConnectionID
	}
	if patch.CreationDate != nil {
		merged.CreationDate = *patch.CreationDate
	}
	if patch.LastModifiedDate != nil {
		merged.LastModifiedDate = *patch.LastModifiedDate
	}
	if patch.FulfillmentStatus != nil {
		merged.FulfillmentStatus = *patch.FulfillmentStatus
	}
	if patch.PaymentStatus != nil {
		merged.PaymentStatus = *patch.PaymentStatus
	}
	if patch.Buyer != nil {
		buyer := *patch.Buyer
		merged.Buyer = &buyer
	}
	if patch.TotalValue != nil {
		merged.TotalValue = *patch.TotalValue
	}
	if patch.Currency != nil {
		merged.Currency = *patch.Currency
	}
	if patch.LineItems != nil {
		merged.LineItems = append([]LineItem(nil), (*patch.LineItems)...)
	}
	if patch.SyncAt != nil {
		merged.SyncAt = *patch.SyncAt
	}
	return merged
}

// FindLineItem returns the stored line item with the given id
func (o *MarketplaceOrder) FindLineItem(lineItemID string) (LineItem, bool) {
	for _, li := range o.LineItems {
		if li.LineItemID == lineItemID {
			return li, true
		}
	}
	return LineItem{}, false
}
