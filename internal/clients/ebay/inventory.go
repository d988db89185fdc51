package ebay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"marketplace-sync-service/internal/clients"
)

const inventoryPath = "/sell/inventory/v1"

// ListInventoryItems fetches one offset page of the seller's inventory items
func (c *Client) ListInventoryItems(ctx context.Context, accessToken string, limit, offset int) (*clients.InventoryItemPage, error) {
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	body, _, err := c.doRequest(ctx, apiInventory, "getInventoryItems", http.MethodGet, inventoryPath+"/inventory_item", accessToken, params, nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Total          int                 `json:"total"`
		Limit          int                 `json:"limit"`
		Offset         int                 `json:"offset"`
		InventoryItems []ebayInventoryItem `json:"inventoryItems"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse inventory items response: %w", err)
	}

	items := make([]clients.InventoryItem, 0, len(response.InventoryItems))
	for _, item := range response.InventoryItems {
		items = append(items, item.convert())
	}

	return &clients.InventoryItemPage{
		Items:  items,
		Total:  response.Total,
		Limit:  limit,
		Offset: offset,
	}, nil
}

// GetInventoryItem fetches a single inventory item by SKU
func (c *Client) GetInventoryItem(ctx context.Context, accessToken, sku string) (*clients.InventoryItem, error) {
	path := inventoryPath + "/inventory_item/" + url.PathEscape(sku)
	body, _, err := c.doRequest(ctx, apiInventory, "getInventoryItem", http.MethodGet, path, accessToken, nil, nil)
	if err != nil {
		return nil, err
	}

	var item ebayInventoryItem
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("failed to parse inventory item response: %w", err)
	}
	if item.SKU == "" {
		item.SKU = sku
	}
	converted := item.convert()
	return &converted, nil
}

// ListOffers fetches the offers of one SKU. A SKU without offers is reported
// by eBay as 404 and returned here as an empty list.
func (c *Client) ListOffers(ctx context.Context, accessToken, sku string) ([]clients.Offer, error) {
	params := url.Values{}
	params.Set("sku", sku)

	body, _, err := c.doRequest(ctx, apiInventory, "getOffers", http.MethodGet, inventoryPath+"/offer", accessToken, params, nil)
	if err != nil {
		if clients.IsStatus(err, http.StatusNotFound) {
			return []clients.Offer{}, nil
		}
		return nil, err
	}

	var response struct {
		Offers []json.RawMessage `json:"offers"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse offers response: %w", err)
	}

	offers := make([]clients.Offer, 0, len(response.Offers))
	for _, raw := range response.Offers {
		offer, err := parseOffer(raw)
		if err != nil {
			return nil, err
		}
		offers = append(offers, *offer)
	}
	return offers, nil
}

// GetOffer fetches a single offer by id, keeping the full object in Raw
func (c *Client) GetOffer(ctx context.Context, accessToken, offerID string) (*clients.Offer, error) {
	path := inventoryPath + "/offer/" + url.PathEscape(offerID)
	body, _, err := c.doRequest(ctx, apiInventory, "getOffer", http.MethodGet, path, accessToken, nil, nil)
	if err != nil {
		return nil, err
	}
	return parseOffer(body)
}

// UpdateOffer replaces the offer with its full object. The update endpoint
// has replace semantics, so the object must come from GetOffer.
func (c *Client) UpdateOffer(ctx context.Context, accessToken string, offer *clients.Offer) error {
	if offer == nil || offer.OfferID == "" {
		return fmt.Errorf("offer id is required")
	}
	payload := make(map[string]interface{}, len(offer.Raw)+1)
	for k, v := range offer.Raw {
		payload[k] = v
	}
	payload["availableQuantity"] = offer.AvailableQuantity

	path := inventoryPath + "/offer/" + url.PathEscape(offer.OfferID)
	_, _, err := c.doRequest(ctx, apiInventory, "updateOffer", http.MethodPut, path, accessToken, nil, payload)
	return err
}

// eBay data structures
type ebayInventoryItem struct {
	SKU     string `json:"sku"`
	Product struct {
		Title string `json:"title"`
	} `json:"product"`
	Availability struct {
		ShipToLocationAvailability struct {
			Quantity int `json:"quantity"`
		} `json:"shipToLocationAvailability"`
	} `json:"availability"`
}

func (i ebayInventoryItem) convert() clients.InventoryItem {
	return clients.InventoryItem{
		SKU:      i.SKU,
		Title:    i.Product.Title,
		Quantity: i.Availability.ShipToLocationAvailability.Quantity,
	}
}

type ebayOffer struct {
	OfferID           string `json:"offerId"`
	SKU               string `json:"sku"`
	Status            string `json:"status"`
	AvailableQuantity int    `json:"availableQuantity"`
	Listing           struct {
		ListingID     string `json:"listingId"`
		ListingStatus string `json:"listingStatus"`
	} `json:"listing"`
}

func parseOffer(data []byte) (*clients.Offer, error) {
	var typed ebayOffer
	if err := json.Unmarshal(data, &typed); err != nil {
		return nil, fmt.Errorf("failed to parse offer: %w", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse offer: %w", err)
	}
	return &clients.Offer{
		OfferID:           typed.OfferID,
		SKU:               typed.SKU,
		Status:            typed.Status,
		ListingID:         typed.Listing.ListingID,
		ListingStatus:     typed.Listing.ListingStatus,
		AvailableQuantity: typed.AvailableQuantity,
		Raw:               raw,
	}, nil
}
