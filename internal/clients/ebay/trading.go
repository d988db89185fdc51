package ebay

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"

	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
)

const maxTradingPageEntries = 200

// GetSellerListings fetches one page of the seller's active listings with
// GetMyeBaySelling.
func (c *Client) GetSellerListings(ctx context.Context, accessToken string, pageNumber, entriesPerPage int) (*clients.SellerListingsPage, error) {
	if pageNumber < 1 {
		pageNumber = 1
	}
	if entriesPerPage <= 0 || entriesPerPage > maxTradingPageEntries {
		entriesPerPage = maxTradingPageEntries
	}

	req := getMyeBaySellingRequest{DetailLevel: "ReturnAll"}
	req.ActiveList.Include = true
	req.ActiveList.Pagination.EntriesPerPage = entriesPerPage
	req.ActiveList.Pagination.PageNumber = pageNumber

	var resp getMyeBaySellingResponse
	if err := c.callTrading(ctx, "GetMyeBaySelling", accessToken, &req, &resp); err != nil {
		return nil, err
	}

	page := &clients.SellerListingsPage{
		PageNumber:   pageNumber,
		TotalPages:   resp.ActiveList.PaginationResult.TotalNumberOfPages,
		TotalEntries: resp.ActiveList.PaginationResult.TotalNumberOfEntries,
	}
	for _, item := range resp.ActiveList.ItemArray.Items {
		page.Listings = append(page.Listings, item.convert())
	}
	return page, nil
}

// ReviseInventoryStatus sets the available quantity of one listing
func (c *Client) ReviseInventoryStatus(ctx context.Context, accessToken string, revision *clients.InventoryStatusRevision) error {
	if revision == nil || (revision.ItemID == "" && revision.SKU == "") {
		return fmt.Errorf("item id or sku is required")
	}

	req := reviseInventoryStatusRequest{}
	req.InventoryStatus.ItemID = revision.ItemID
	if revision.ItemID == "" {
		req.InventoryStatus.SKU = revision.SKU
	}
	req.InventoryStatus.Quantity = revision.Quantity

	var resp reviseInventoryStatusResponse
	return c.callTrading(ctx, "ReviseInventoryStatus", accessToken, &req, &resp)
}

// callTrading posts an XML call and decodes the envelope. A Failure
// acknowledgement is an error even on HTTP 200.
func (c *Client) callTrading(ctx context.Context, callName, accessToken string, request interface{}, response tradingEnvelope) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(request); err != nil {
		return fmt.Errorf("failed to encode %s request: %w", callName, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TradingURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/xml")
	req.Header.Set("X-EBAY-API-CALL-NAME", callName)
	req.Header.Set("X-EBAY-API-COMPATIBILITY-LEVEL", c.cfg.CompatibilityLevel)
	req.Header.Set("X-EBAY-API-SITEID", c.cfg.SiteID)
	req.Header.Set("X-EBAY-API-IAF-TOKEN", accessToken)

	body, _, err := c.send(req, apiTrading, callName)
	if err != nil {
		return err
	}

	if err := xml.Unmarshal(body, response); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", callName, err)
	}

	env := response.envelope()
	switch env.Ack {
	case "Success", "Warning":
		return nil
	default:
		return &clients.MarketplaceError{
			API:        apiTrading,
			Operation:  callName,
			StatusCode: 0,
			Detail:     env.describe(),
		}
	}
}

// Trading API data structures
type tradingEnvelope interface {
	envelope() *tradingResponse
}

type tradingResponse struct {
	Ack    string         `xml:"Ack"`
	Errors []tradingError `xml:"Errors"`
}

func (r *tradingResponse) envelope() *tradingResponse { return r }

func (r *tradingResponse) describe() string {
	if len(r.Errors) == 0 {
		return fmt.Sprintf("ack %s", r.Ack)
	}
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msg := e.LongMessage
		if msg == "" {
			msg = e.ShortMessage
		}
		parts = append(parts, fmt.Sprintf("[%s] %s", e.ErrorCode, msg))
	}
	return strings.Join(parts, "; ")
}

type tradingError struct {
	ShortMessage string `xml:"ShortMessage"`
	LongMessage  string `xml:"LongMessage"`
	ErrorCode    string `xml:"ErrorCode"`
	SeverityCode string `xml:"SeverityCode"`
}

type getMyeBaySellingRequest struct {
	XMLName    xml.Name `xml:"urn:ebay:apis:eBLBaseComponents GetMyeBaySellingRequest"`
	ActiveList struct {
		Include    bool `xml:"Include"`
		Pagination struct {
			EntriesPerPage int `xml:"EntriesPerPage"`
			PageNumber     int `xml:"PageNumber"`
		} `xml:"Pagination"`
	} `xml:"ActiveList"`
	DetailLevel string `xml:"DetailLevel,omitempty"`
}

type getMyeBaySellingResponse struct {
	tradingResponse
	ActiveList struct {
		ItemArray struct {
			Items []tradingItem `xml:"Item"`
		} `xml:"ItemArray"`
		PaginationResult struct {
			TotalNumberOfPages   int `xml:"TotalNumberOfPages"`
			TotalNumberOfEntries int `xml:"TotalNumberOfEntries"`
		} `xml:"PaginationResult"`
	} `xml:"ActiveList"`
}

type tradingItem struct {
	ItemID            string `xml:"ItemID"`
	SKU               string `xml:"SKU"`
	Title             string `xml:"Title"`
	Quantity          *int   `xml:"Quantity"`
	QuantityAvailable *int   `xml:"QuantityAvailable"`
	SellingStatus     struct {
		QuantitySold  *int   `xml:"QuantitySold"`
		ListingStatus string `xml:"ListingStatus"`
	} `xml:"SellingStatus"`
}

func (i tradingItem) convert() models.TradingAPIListing {
	return models.TradingAPIListing{
		ItemID:            i.ItemID,
		SKU:               i.SKU,
		Title:             i.Title,
		ListingStatus:     i.SellingStatus.ListingStatus,
		Quantity:          i.Quantity,
		QuantitySold:      i.SellingStatus.QuantitySold,
		QuantityAvailable: i.QuantityAvailable,
	}
}

type reviseInventoryStatusRequest struct {
	XMLName         xml.Name `xml:"urn:ebay:apis:eBLBaseComponents ReviseInventoryStatusRequest"`
	InventoryStatus struct {
		ItemID   string `xml:"ItemID,omitempty"`
		SKU      string `xml:"SKU,omitempty"`
		Quantity int    `xml:"Quantity"`
	} `xml:"InventoryStatus"`
}

type reviseInventoryStatusResponse struct {
	tradingResponse
}
