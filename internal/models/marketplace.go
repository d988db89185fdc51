package models

import (
	"time"

	"github.com/google/uuid"
)

// Environment of a marketplace connection
type Environment string

const (
	EnvironmentSandbox    Environment = "sandbox"
	EnvironmentProduction Environment = "production"
)

// Connection is one tenant's OAuth-authorized link to one marketplace seller account
type Connection struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID string    `gorm:"type:varchar(255);not null;index:idx_ebay_connections_tenant" json:"tenantId"`

	Environment       Environment `gorm:"type:varchar(20);not null;default:'production'" json:"environment"`
	MarketplaceUserID string      `gorm:"type:varchar(255)" json:"marketplaceUserId,omitempty"`
	DisplayName       string      `gorm:"type:varchar(255)" json:"displayName,omitempty"`

	// Token lifecycle, written only by the token service
	AccessToken           string     `gorm:"type:text;not null" json:"-"`
	RefreshToken          *string    `gorm:"type:text" json:"-"`
	AccessTokenExpiresAt  time.Time  `gorm:"not null" json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt *time.Time `json:"refreshTokenExpiresAt,omitempty"`

	// Metadata
	LastSyncAt *time.Time `json:"lastSyncAt,omitempty"`
	LastError  string     `gorm:"type:text" json:"lastError,omitempty"`

	CreatedAt time.Time `gorm:"index:idx_ebay_connections_created" json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for Connection
func (Connection) TableName() string {
	return "ebay_connections"
}

// AccessTokenExpired reports whether the access token may no longer be used at now.
// A token expiring exactly at now is expired.
func (c *Connection) AccessTokenExpired(now time.Time) bool {
	return !c.AccessTokenExpiresAt.After(now)
}

// CanRefresh reports whether a refresh token is stored and not known to be expired
func (c *Connection) CanRefresh(now time.Time) bool {
	if c.RefreshToken == nil || *c.RefreshToken == "" {
		return false
	}
	if c.RefreshTokenExpiresAt != nil && !c.RefreshTokenExpiresAt.After(now) {
		return false
	}
	return true
}

// TokenGrant is the result of an OAuth code exchange or refresh
type TokenGrant struct {
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt *time.Time
}

// Apply writes the grant into the connection. A grant without a refresh
// token keeps the stored one.
func (c *Connection) Apply(grant *TokenGrant) {
	c.AccessToken = grant.AccessToken
	c.AccessTokenExpiresAt = grant.AccessTokenExpiresAt
	if grant.RefreshToken != "" {
		refresh := grant.RefreshToken
		c.RefreshToken = &refresh
		if grant.RefreshTokenExpiresAt != nil {
			exp := *grant.RefreshTokenExpiresAt
			c.RefreshTokenExpiresAt = &exp
		}
	}
}
