package clients

import (
	"context"
	"time"

	"marketplace-sync-service/internal/models"
)

// MarketplaceClient is everything the sync engine needs from one marketplace
// environment. Every call takes the connection's current access token.
type MarketplaceClient interface {
	InventoryAPI
	FulfillmentAPI
	TradingAPI
	OAuthAPI
}

// InventoryAPI is the REST Inventory API
type InventoryAPI interface {
	ListInventoryItems(ctx context.Context, accessToken string, limit, offset int) (*InventoryItemPage, error)
	GetInventoryItem(ctx context.Context, accessToken, sku string) (*InventoryItem, error)
	ListOffers(ctx context.Context, accessToken, sku string) ([]Offer, error)
	GetOffer(ctx context.Context, accessToken, offerID string) (*Offer, error)
	UpdateOffer(ctx context.Context, accessToken string, offer *Offer) error
}

// FulfillmentAPI is the REST Fulfillment API
type FulfillmentAPI interface {
	SearchOrders(ctx context.Context, accessToken string, opts *OrderSearchOptions) (*OrdersResult, error)
	CreateShippingFulfillment(ctx context.Context, accessToken, orderID string, req *ShippingFulfillmentRequest) (string, error)
}

// TradingAPI is the legacy XML Trading API
type TradingAPI interface {
	GetSellerListings(ctx context.Context, accessToken string, pageNumber, entriesPerPage int) (*SellerListingsPage, error)
	ReviseInventoryStatus(ctx context.Context, accessToken string, revision *InventoryStatusRevision) error
}

// OAuthAPI is the identity token endpoint plus the user lookup done after consent
type OAuthAPI interface {
	AuthorizationURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*models.TokenGrant, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*models.TokenGrant, error)
	GetUser(ctx context.Context, accessToken string) (*MarketplaceUser, error)
}

// ClientFactory returns the client for a connection's environment
type ClientFactory func(env models.Environment) MarketplaceClient

// InventoryItem is one SKU from the Inventory API
type InventoryItem struct {
	SKU      string `json:"sku"`
	Title    string `json:"title"`
	Quantity int    `json:"quantity"`
}

// InventoryItemPage is one offset page of inventory items
type InventoryItemPage struct {
	Items  []InventoryItem
	Total  int
	Limit  int
	Offset int
}

// Offer is one REST offer. Raw holds the full object as returned so that
// an update can PUT it back whole.
type Offer struct {
	OfferID           string
	SKU               string
	Status            string
	ListingID         string
	ListingStatus     string
	AvailableQuantity int
	Raw               map[string]interface{}
}

// OrderSearchOptions contains order search pagination and filters
type OrderSearchOptions struct {
	Limit               int
	Next                string
	FulfillmentStatuses []string
}

// OrdersResult contains one page of order search results
type OrdersResult struct {
	Orders []ExternalOrder
	Next   string
	Total  int
	Limit  int
}

// ExternalOrder is an order as returned by the Fulfillment API
type ExternalOrder struct {
	OrderID           string
	CreationDate      time.Time
	LastModifiedDate  time.Time
	FulfillmentStatus string
	PaymentStatus     string
	BuyerUsername     string
	BuyerEmail        string
	BuyerName         string
	TotalValue        string
	Currency          string
	LineItems         []ExternalLineItem
}

// ExternalLineItem is an order line item as returned by the Fulfillment API
type ExternalLineItem struct {
	LineItemID        string
	LegacyItemID      string
	SKU               string
	Title             string
	Quantity          int
	FulfillmentStatus string
}

// FulfillmentLineItem is a line item reference in a shipping fulfillment
type FulfillmentLineItem struct {
	LineItemID string `json:"lineItemId"`
	Quantity   int    `json:"quantity"`
}

// ShippingFulfillmentRequest marks line items shipped
type ShippingFulfillmentRequest struct {
	LineItems           []FulfillmentLineItem `json:"lineItems"`
	ShippedDate         string                `json:"shippedDate,omitempty"`
	ShippingCarrierCode string                `json:"shippingCarrierCode,omitempty"`
	TrackingNumber      string                `json:"trackingNumber,omitempty"`
}

// SellerListingsPage is one page of active Trading API listings
type SellerListingsPage struct {
	Listings     []models.TradingAPIListing
	PageNumber   int
	TotalPages   int
	TotalEntries int
}

// InventoryStatusRevision sets the quantity of one Trading API listing
type InventoryStatusRevision struct {
	ItemID   string
	SKU      string
	Quantity int
}

// MarketplaceUser identifies the seller account behind a token
type MarketplaceUser struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}
