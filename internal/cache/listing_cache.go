package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"marketplace-sync-service/internal/models"
)

// CachedListings is one discovery result as stored in Redis
type CachedListings struct {
	Listings []models.Listing `json:"listings"`
	Partial  bool             `json:"partial"`
	Warnings []string         `json:"warnings,omitempty"`
	CachedAt time.Time        `json:"cachedAt"`
}

// ListingCache caches discovered listings per connection in Redis.
// A cache without a client is a no-op.
type ListingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewListingCache connects to redisURL. An empty URL, or a server that does
// not answer, yields a cache that never hits.
func NewListingCache(redisURL string, ttl time.Duration) *ListingCache {
	if redisURL == "" {
		return &ListingCache{ttl: ttl}
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return &ListingCache{ttl: ttl}
	}
	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return &ListingCache{ttl: ttl}
	}

	return NewListingCacheWithClient(client, ttl)
}

// NewListingCacheWithClient wraps an existing client
func NewListingCacheWithClient(client *redis.Client, ttl time.Duration) *ListingCache {
	return &ListingCache{client: client, ttl: ttl}
}

// Enabled reports whether a Redis client is attached
func (c *ListingCache) Enabled() bool {
	return c != nil && c.client != nil
}

func (c *ListingCache) cacheKey(tenantID string, connectionID uuid.UUID) string {
	return fmt.Sprintf("ebay:listings:%s:%s", tenantID, connectionID.String())
}

// Get returns the cached result, or nil on a miss
func (c *ListingCache) Get(ctx context.Context, tenantID string, connectionID uuid.UUID) (*CachedListings, error) {
	if !c.Enabled() {
		return nil, nil
	}

	data, err := c.client.Get(ctx, c.cacheKey(tenantID, connectionID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var cached CachedListings
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

// Set stores a result for the configured TTL
func (c *ListingCache) Set(ctx context.Context, tenantID string, connectionID uuid.UUID, cached *CachedListings) error {
	if !c.Enabled() || c.ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.cacheKey(tenantID, connectionID), data, c.ttl).Err()
}

// Invalidate removes the cached result of a connection
func (c *ListingCache) Invalidate(ctx context.Context, tenantID string, connectionID uuid.UUID) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Del(ctx, c.cacheKey(tenantID, connectionID)).Err()
}

// Close closes the Redis client
func (c *ListingCache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}
