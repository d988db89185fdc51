package ebay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"marketplace-sync-service/internal/clients"
)

const fulfillmentPath = "/sell/fulfillment/v1"

// SearchOrders fetches one page of orders. When opts.Next is set it is
// followed as returned by the previous page and the other options are ignored.
func (c *Client) SearchOrders(ctx context.Context, accessToken string, opts *clients.OrderSearchOptions) (*clients.OrdersResult, error) {
	if opts == nil {
		opts = &clients.OrderSearchOptions{}
	}

	requestPath := fulfillmentPath + "/order"
	var params url.Values
	if opts.Next != "" {
		requestPath = opts.Next
	} else {
		params = url.Values{}
		limit := opts.Limit
		if limit <= 0 {
			limit = 50
		}
		params.Set("limit", strconv.Itoa(limit))
		if len(opts.FulfillmentStatuses) > 0 {
			params.Set("filter", "orderfulfillmentstatus:{"+strings.Join(opts.FulfillmentStatuses, "|")+"}")
		}
	}

	body, _, err := c.doRequest(ctx, apiFulfillment, "getOrders", http.MethodGet, requestPath, accessToken, params, nil)
	if err != nil {
		return nil, err
	}

	var response struct {
		Total  int         `json:"total"`
		Limit  int         `json:"limit"`
		Next   string      `json:"next"`
		Orders []ebayOrder `json:"orders"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse orders response: %w", err)
	}

	orders := make([]clients.ExternalOrder, 0, len(response.Orders))
	for _, o := range response.Orders {
		orders = append(orders, o.convert())
	}

	return &clients.OrdersResult{
		Orders: orders,
		Next:   response.Next,
		Total:  response.Total,
		Limit:  response.Limit,
	}, nil
}

// CreateShippingFulfillment marks line items shipped and returns the
// fulfillment id taken from the Location header.
func (c *Client) CreateShippingFulfillment(ctx context.Context, accessToken, orderID string, req *clients.ShippingFulfillmentRequest) (string, error) {
	p := fulfillmentPath + "/order/" + url.PathEscape(orderID) + "/shipping_fulfillment"
	body, headers, err := c.doRequest(ctx, apiFulfillment, "createShippingFulfillment", http.MethodPost, p, accessToken, nil, req)
	if err != nil {
		return "", err
	}

	if location := headers.Get("Location"); location != "" {
		return path.Base(strings.TrimRight(location, "/")), nil
	}

	var response struct {
		FulfillmentID string `json:"fulfillmentId"`
	}
	if len(body) > 0 {
		_ = json.Unmarshal(body, &response)
	}
	return response.FulfillmentID, nil
}

// eBay data structures
type ebayOrder struct {
	OrderID                string `json:"orderId"`
	CreationDate           string `json:"creationDate"`
	LastModifiedDate       string `json:"lastModifiedDate"`
	OrderFulfillmentStatus string `json:"orderFulfillmentStatus"`
	OrderPaymentStatus     string `json:"orderPaymentStatus"`
	Buyer                  struct {
		Username                 string `json:"username"`
		BuyerRegistrationAddress struct {
			FullName string `json:"fullName"`
			Email    string `json:"email"`
		} `json:"buyerRegistrationAddress"`
	} `json:"buyer"`
	PricingSummary struct {
		Total struct {
			Value    string `json:"value"`
			Currency string `json:"currency"`
		} `json:"total"`
	} `json:"pricingSummary"`
	LineItems []ebayLineItem `json:"lineItems"`
}

type ebayLineItem struct {
	LineItemID                string `json:"lineItemId"`
	LegacyItemID              string `json:"legacyItemId"`
	SKU                       string `json:"sku"`
	Title                     string `json:"title"`
	Quantity                  int    `json:"quantity"`
	LineItemFulfillmentStatus string `json:"lineItemFulfillmentStatus"`
}

func (o ebayOrder) convert() clients.ExternalOrder {
	items := make([]clients.ExternalLineItem, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		items = append(items, clients.ExternalLineItem{
			LineItemID:        li.LineItemID,
			LegacyItemID:      li.LegacyItemID,
			SKU:               li.SKU,
			Title:             li.Title,
			Quantity:          li.Quantity,
			FulfillmentStatus: li.LineItemFulfillmentStatus,
		})
	}

	return clients.ExternalOrder{
		OrderID:           o.OrderID,
		CreationDate:      parseTime(o.CreationDate),
		LastModifiedDate:  parseTime(o.LastModifiedDate),
		FulfillmentStatus: o.OrderFulfillmentStatus,
		PaymentStatus:     o.OrderPaymentStatus,
		BuyerUsername:     o.Buyer.Username,
		BuyerEmail:        o.Buyer.BuyerRegistrationAddress.Email,
		BuyerName:         o.Buyer.BuyerRegistrationAddress.FullName,
		TotalValue:        o.PricingSummary.Total.Value,
		Currency:          o.PricingSummary.Total.Currency,
		LineItems:         items,
	}
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
