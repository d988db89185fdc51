package models

import (
	"time"

	"github.com/google/uuid"
)

// ListingSourceTag names the marketplace API a listing was discovered through
type ListingSourceTag string

const (
	SourceInventoryAPI ListingSourceTag = "inventory-api"
	SourceTradingAPI   ListingSourceTag = "trading-api"
	SourceUnknown      ListingSourceTag = "unknown"
)

// ParseListingSourceTag maps free-form input onto a known tag
func ParseListingSourceTag(value string) ListingSourceTag {
	switch ListingSourceTag(value) {
	case SourceInventoryAPI, SourceTradingAPI:
		return ListingSourceTag(value)
	default:
		return SourceUnknown
	}
}

// Listing is the normalized shape of a marketplace listing from either API
type Listing struct {
	OfferID   string           `json:"offerId,omitempty"`
	SKU       string           `json:"sku"`
	Title     string           `json:"title"`
	Status    string           `json:"status"`
	ListingID string           `json:"listingId"`
	Quantity  int              `json:"quantity"`
	Source    ListingSourceTag `json:"source"`
}

// ListingSource is a listing as reported by one of the two marketplace APIs.
// The set of implementations is closed: InventoryAPIListing and TradingAPIListing.
type ListingSource interface {
	Normalize() Listing
	source() ListingSourceTag
}

// InventoryAPIListing is one offer of an inventory item from the REST Inventory API
type InventoryAPIListing struct {
	SKU               string
	Title             string
	OfferID           string
	OfferStatus       string
	ListingID         string
	ListingStatus     string
	AvailableQuantity int
}

func (l InventoryAPIListing) source() ListingSourceTag { return SourceInventoryAPI }

// Normalize converts the offer into a Listing
func (l InventoryAPIListing) Normalize() Listing {
	status := l.ListingStatus
	if status == "" {
		status = l.OfferStatus
	}
	return Listing{
		OfferID:   l.OfferID,
		SKU:       l.SKU,
		Title:     l.Title,
		Status:    status,
		ListingID: l.ListingID,
		Quantity:  l.AvailableQuantity,
		Source:    SourceInventoryAPI,
	}
}

// TradingAPIListing is one item from the legacy Trading API. The quantity
// fields are pointers because the API omits them inconsistently.
type TradingAPIListing struct {
	ItemID            string
	SKU               string
	Title             string
	ListingStatus     string
	Quantity          *int
	QuantitySold      *int
	QuantityAvailable *int
}

func (l TradingAPIListing) source() ListingSourceTag { return SourceTradingAPI }

// ResolvedQuantity picks QuantityAvailable, then Quantity - QuantitySold,
// then Quantity. Nothing reported resolves to zero.
func (l TradingAPIListing) ResolvedQuantity() int {
	switch {
	case l.QuantityAvailable != nil:
		return nonNegative(*l.QuantityAvailable)
	case l.Quantity != nil && l.QuantitySold != nil:
		return nonNegative(*l.Quantity - *l.QuantitySold)
	case l.Quantity != nil:
		return nonNegative(*l.Quantity)
	default:
		return 0
	}
}

// Normalize converts the item into a Listing
func (l TradingAPIListing) Normalize() Listing {
	status := l.ListingStatus
	if status == "" {
		status = "Active"
	}
	return Listing{
		SKU:       l.SKU,
		Title:     l.Title,
		Status:    status,
		ListingID: l.ItemID,
		Quantity:  l.ResolvedQuantity(),
		Source:    SourceTradingAPI,
	}
}

// SourceOf returns the tag of a listing source
func SourceOf(l ListingSource) ListingSourceTag {
	return l.source()
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// SelectedListing is a tenant's declaration that a listing is fulfilled internally
type SelectedListing struct {
	ID           uint             `gorm:"primaryKey" json:"-"`
	TenantID     string           `gorm:"type:varchar(255);not null;index:idx_ebay_selected_tenant" json:"-"`
	ConnectionID uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:idx_ebay_selected_conn_listing" json:"-"`
	ListingID    string           `gorm:"type:varchar(255);not null;uniqueIndex:idx_ebay_selected_conn_listing" json:"listingId"`
	OfferID      *string          `gorm:"type:varchar(255)" json:"offerId,omitempty"`
	SKU          string           `gorm:"type:varchar(255)" json:"sku,omitempty"`
	Title        string           `gorm:"type:varchar(500)" json:"title,omitempty"`
	Status       string           `gorm:"type:varchar(50)" json:"status,omitempty"`
	Source       ListingSourceTag `gorm:"type:varchar(20);not null;default:'unknown'" json:"source"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// TableName specifies the table name for SelectedListing
func (SelectedListing) TableName() string {
	return "ebay_selected_listings"
}

// HasOffer reports whether the REST offer id is known
func (s SelectedListing) HasOffer() bool {
	return s.OfferID != nil && *s.OfferID != ""
}

// ListingKey is the offer id when known, else the listing id
func (s SelectedListing) ListingKey() string {
	if s.HasOffer() {
		return *s.OfferID
	}
	return s.ListingID
}

// SelectionFilter gates which line items are relevant to a connection.
// An empty filter allows everything.
type SelectionFilter struct {
	ids map[string]struct{}
}

// NewSelectionFilter builds a filter from a selection set
func NewSelectionFilter(selected []SelectedListing) SelectionFilter {
	ids := make(map[string]struct{}, len(selected))
	for _, s := range selected {
		if s.ListingID != "" {
			ids[s.ListingID] = struct{}{}
		}
	}
	return SelectionFilter{ids: ids}
}

// IsEmpty reports whether no listing is selected
func (f SelectionFilter) IsEmpty() bool {
	return len(f.ids) == 0
}

// Allows reports whether a listing id passes the filter
func (f SelectionFilter) Allows(listingID string) bool {
	if f.IsEmpty() {
		return true
	}
	_, ok := f.ids[listingID]
	return ok
}

// Matching returns the line items that pass the filter, preserving order
func (f SelectionFilter) Matching(items []LineItem) []LineItem {
	out := make([]LineItem, 0, len(items))
	for _, li := range items {
		if f.Allows(li.ListingID) {
			out = append(out, li)
		}
	}
	return out
}
