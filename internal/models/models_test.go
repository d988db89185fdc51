package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func strPtr(s string) *string { return &s }

func TestResolvedQuantity(t *testing.T) {
	tests := []struct {
		name    string
		listing TradingAPIListing
		want    int
	}{
		{"available wins", TradingAPIListing{QuantityAvailable: intPtr(4), Quantity: intPtr(10), QuantitySold: intPtr(3)}, 4},
		{"quantity minus sold", TradingAPIListing{Quantity: intPtr(10), QuantitySold: intPtr(3)}, 7},
		{"raw quantity", TradingAPIListing{Quantity: intPtr(10)}, 10},
		{"nothing reported", TradingAPIListing{}, 0},
		{"oversold clamps", TradingAPIListing{Quantity: intPtr(2), QuantitySold: intPtr(5)}, 0},
		{"zero available is kept", TradingAPIListing{QuantityAvailable: intPtr(0), Quantity: intPtr(10)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.listing.ResolvedQuantity())
		})
	}
}

func TestListingSources_Normalize(t *testing.T) {
	inv := InventoryAPIListing{SKU: "s", Title: "T", OfferID: "o", OfferStatus: "PUBLISHED", ListingID: "1", AvailableQuantity: 2}
	trd := TradingAPIListing{ItemID: "2", Title: "U", ListingStatus: "Completed", Quantity: intPtr(1)}

	assert.Equal(t, SourceInventoryAPI, SourceOf(inv))
	assert.Equal(t, SourceTradingAPI, SourceOf(trd))
	assert.Equal(t, Listing{OfferID: "o", SKU: "s", Title: "T", Status: "PUBLISHED", ListingID: "1", Quantity: 2, Source: SourceInventoryAPI}, inv.Normalize())
	assert.Equal(t, "Completed", trd.Normalize().Status)
	assert.Empty(t, trd.Normalize().OfferID)
}

func TestSelectionFilter(t *testing.T) {
	items := []LineItem{{LineItemID: "1", ListingID: "A"}, {LineItemID: "2", ListingID: "B"}, {LineItemID: "3", ListingID: "C"}}

	empty := NewSelectionFilter(nil)
	assert.True(t, empty.IsEmpty())
	assert.Len(t, empty.Matching(items), 3)

	filter := NewSelectionFilter([]SelectedListing{{ListingID: "A"}, {ListingID: "C"}, {ListingID: ""}})
	matched := filter.Matching(items)
	require.Len(t, matched, 2)
	assert.Equal(t, "1", matched[0].LineItemID)
	assert.Equal(t, "3", matched[1].LineItemID)

	none := NewSelectionFilter([]SelectedListing{{ListingID: "Z"}})
	assert.Empty(t, none.Matching(items))
}

func TestSelectedListing_ListingKey(t *testing.T) {
	assert.Equal(t, "offer-1", SelectedListing{ListingID: "1", OfferID: strPtr("offer-1")}.ListingKey())
	assert.Equal(t, "1", SelectedListing{ListingID: "1", OfferID: strPtr("")}.ListingKey())
	assert.Equal(t, "1", SelectedListing{ListingID: "1"}.ListingKey())
}

func TestConnection_TokenExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	conn := &Connection{AccessTokenExpiresAt: now}
	assert.True(t, conn.AccessTokenExpired(now))

	conn.AccessTokenExpiresAt = now.Add(time.Second)
	assert.False(t, conn.AccessTokenExpired(now))

	assert.False(t, conn.CanRefresh(now))
	conn.RefreshToken = strPtr("r")
	assert.True(t, conn.CanRefresh(now))
	expired := now
	conn.RefreshTokenExpiresAt = &expired
	assert.False(t, conn.CanRefresh(now))
}

func TestConnection_ApplyKeepsRefreshToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	conn := &Connection{RefreshToken: strPtr("keep")}

	conn.Apply(&TokenGrant{AccessToken: "a", AccessTokenExpiresAt: now})
	assert.Equal(t, "a", conn.AccessToken)
	assert.Equal(t, "keep", *conn.RefreshToken)

	conn.Apply(&TokenGrant{AccessToken: "b", AccessTokenExpiresAt: now, RefreshToken: "rotated"})
	assert.Equal(t, "rotated", *conn.RefreshToken)
}

func TestMergeOrder(t *testing.T) {
	key := OrderKey{TenantID: "t", OrderID: "o"}
	connID := uuid.New()
	paid := "PAID"
	total := "10.00"
	items := []LineItem{{LineItemID: "1"}, {LineItemID: "2"}}

	first := MergeOrder(nil, key, OrderPatch{
		ConnectionID:  &connID,
		PaymentStatus: &paid,
		TotalValue:    &total,
		Buyer:         &Buyer{Username: "b"},
		LineItems:     &items,
	})
	assert.Equal(t, "t", first.TenantID)
	assert.Equal(t, connID, first.ConnectionID)
	assert.Len(t, first.LineItems, 2)

	shipped := FulfillmentFulfilled
	fewer := []LineItem{{LineItemID: "2", FulfillmentStatus: FulfillmentFulfilled}}
	second := MergeOrder(&first, key, OrderPatch{FulfillmentStatus: &shipped, LineItems: &fewer})
	assert.Equal(t, FulfillmentFulfilled, second.FulfillmentStatus)
	assert.Equal(t, "PAID", second.PaymentStatus)
	assert.Equal(t, "10.00", second.TotalValue)
	require.NotNil(t, second.Buyer)
	assert.Equal(t, "b", second.Buyer.Username)
	assert.Equal(t, fewer, second.LineItems)

	// the earlier value is not aliased
	items[0].LineItemID = "changed"
	assert.Equal(t, "1", first.LineItems[0].LineItemID)

	stored, ok := second.FindLineItem("2")
	require.True(t, ok)
	assert.False(t, stored.Fulfillable())
	_, ok = second.FindLineItem("1")
	assert.False(t, ok)
}

func TestMergeInventory(t *testing.T) {
	name := "Dashboard name"
	base := MergeInventory(nil, "t", "r", InventoryPatch{Name: &name})

	qty := 3
	status := StockStatus(qty)
	merged := MergeInventory(&base, "t", "r", InventoryPatch{Quantity: &qty, Status: &status})
	assert.Equal(t, name, merged.Name)
	assert.Equal(t, 3, merged.Quantity)
	assert.Equal(t, StockInStock, merged.Status)
	assert.Equal(t, StockOutOfStock, StockStatus(0))

	connID := uuid.New()
	assert.Equal(t, "ebay_"+connID.String()+"_offer-1", InventoryRecordID(connID, "offer-1"))
}
