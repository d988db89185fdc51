package ebay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
)

// AuthorizationURL builds the consent URL the seller is redirected to
func (c *Client) AuthorizationURL(state string) string {
	params := url.Values{}
	params.Set("client_id", c.cfg.ClientID)
	params.Set("redirect_uri", c.cfg.RuName)
	params.Set("response_type", "code")
	params.Set("scope", strings.Join(c.cfg.Scopes, " "))
	if state != "" {
		params.Set("state", state)
	}
	return c.cfg.AuthURL + "?" + params.Encode()
}

// ExchangeCode trades an authorization code for a token pair
func (c *Client) ExchangeCode(ctx context.Context, code string) (*models.TokenGrant, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("redirect_uri", c.cfg.RuName)

	return c.requestToken(ctx, "exchangeCode", data)
}

// RefreshAccessToken mints a new access token. eBay does not rotate refresh
// tokens, so the grant normally carries an empty RefreshToken.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*models.TokenGrant, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	if len(c.cfg.Scopes) > 0 {
		data.Set("scope", strings.Join(c.cfg.Scopes, " "))
	}

	return c.requestToken(ctx, "refreshToken", data)
}

// GetUser looks up the seller account behind an access token
func (c *Client) GetUser(ctx context.Context, accessToken string) (*clients.MarketplaceUser, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.IdentityURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	body, _, err := c.send(req, apiIdentity, "getUser")
	if err != nil {
		return nil, err
	}

	var user clients.MarketplaceUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user response: %w", err)
	}
	return &user, nil
}

func (c *Client) requestToken(ctx context.Context, operation string, data url.Values) (*models.TokenGrant, error) {
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return nil, fmt.Errorf("marketplace client credentials are not configured")
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(c.cfg.ClientID + ":" + c.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+credentials)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	body, _, err := c.send(req, apiOAuth, operation)
	if err != nil {
		return nil, err
	}

	var tokenResp struct {
		AccessToken           string `json:"access_token"`
		ExpiresIn             int    `json:"expires_in"`
		RefreshToken          string `json:"refresh_token"`
		RefreshTokenExpiresIn int    `json:"refresh_token_expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, &clients.MarketplaceError{API: apiOAuth, Operation: operation, Detail: "token response carried no access token"}
	}

	now := c.now()
	grant := &models.TokenGrant{
		AccessToken:          tokenResp.AccessToken,
		AccessTokenExpiresAt: now.Add(time.Duration(tokenResp.ExpiresIn) * time.Second),
		RefreshToken:         tokenResp.RefreshToken,
	}
	if tokenResp.RefreshToken != "" && tokenResp.RefreshTokenExpiresIn > 0 {
		exp := now.Add(time.Duration(tokenResp.RefreshTokenExpiresIn) * time.Second)
		grant.RefreshTokenExpiresAt = &exp
	}
	return grant, nil
}
