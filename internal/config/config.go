package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tesseract-Nexus/go-shared/secrets"
)

// Environment flags understood by the marketplace clients
const (
	EnvironmentSandbox    = "sandbox"
	EnvironmentProduction = "production"
)

// Config holds all configuration for the marketplace sync service
type Config struct {
	// Server
	Port        string
	Environment string
	LogLevel    string

	// Database
	DatabaseURL string

	// Redis (listing cache)
	RedisURL        string
	ListingCacheTTL time.Duration

	// GCP
	GCPProjectID string

	// PII and token encryption; used when GCP Secret Manager is not configured
	PIIEncryptionKey string

	// Marketplace
	Marketplace MarketplaceClientConfig

	// Cron trigger
	CronSecret string
	AutoSync   AutoSyncConfig

	// CORS
	AllowedOrigins []string
}

// MarketplaceClientConfig is built once at startup and handed to every
// component that talks to the marketplace.
type MarketplaceClientConfig struct {
	Environment        string
	APIBaseURL         string
	TradingURL         string
	TokenURL           string
	AuthURL            string
	IdentityURL        string
	ClientID           string
	ClientSecret       string
	ClientSecretName   string
	RuName             string
	Scopes             []string
	SiteID             string
	CompatibilityLevel string
	RateLimit          int
	HTTPTimeout        time.Duration
}

// AutoSyncConfig caps a single orchestrator run
type AutoSyncConfig struct {
	MaxPages         int
	MaxConnections   int
	PageSize         int
	RefreshInventory bool
	Interval         time.Duration
	FullSyncEvery    int
}

var defaultScopes = []string{
	"https://api.ebay.com/oauth/api_scope",
	"https://api.ebay.com/oauth/api_scope/sell.inventory",
	"https://api.ebay.com/oauth/api_scope/sell.fulfillment",
	"https://api.ebay.com/oauth/api_scope/commerce.identity.readonly",
}

// Load loads configuration from environment variables
func Load() *Config {
	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL == "" {
		dbHost := getEnv("DB_HOST", "localhost")
		dbPort := getEnv("DB_PORT", "5432")
		dbUser := getEnv("DB_USER", "postgres")
		dbPassword := secrets.GetDBPassword()
		dbName := getEnv("DB_NAME", "tesseract_hub")
		dbSSLMode := getEnv("DB_SSLMODE", "disable")

		databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
			dbUser, dbPassword, dbHost, dbPort, dbName, dbSSLMode)
	}

	config := &Config{
		Port:        getEnv("PORT", "8099"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: databaseURL,

		RedisURL:        getEnv("REDIS_URL", ""),
		ListingCacheTTL: getEnvAsDuration("LISTING_CACHE_TTL", 10*time.Minute),

		GCPProjectID:     getEnv("GCP_PROJECT_ID", ""),
		PIIEncryptionKey: getEnv("PII_ENCRYPTION_KEY", ""),

		Marketplace: NewMarketplaceClientConfig(getEnv("EBAY_ENVIRONMENT", EnvironmentProduction)),

		CronSecret: getEnv("CRON_SECRET", ""),
		AutoSync: AutoSyncConfig{
			MaxPages:         getEnvAsInt("AUTO_SYNC_MAX_PAGES", 5),
			MaxConnections:   getEnvAsInt("AUTO_SYNC_MAX_CONNECTIONS", 50),
			PageSize:         getEnvAsInt("AUTO_SYNC_PAGE_SIZE", 50),
			RefreshInventory: getEnvAsBool("AUTO_SYNC_REFRESH_INVENTORY", true),
			Interval:         getEnvAsDuration("AUTO_SYNC_INTERVAL", 0),
			FullSyncEvery:    getEnvAsInt("AUTO_SYNC_FULL_EVERY", 24),
		},

		AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{
			"https://*.tesserix.app",
			"http://localhost:3000",
			"http://localhost:3001",
		}),
	}

	mp := &config.Marketplace
	mp.ClientID = getEnv("EBAY_CLIENT_ID", "")
	mp.ClientSecret = getEnv("EBAY_CLIENT_SECRET", "")
	mp.ClientSecretName = getEnv("EBAY_CLIENT_SECRET_NAME", "")
	mp.RuName = getEnv("EBAY_RUNAME", "")
	mp.Scopes = getEnvAsList("EBAY_SCOPES", defaultScopes)
	mp.SiteID = getEnv("EBAY_SITE_ID", mp.SiteID)
	mp.CompatibilityLevel = getEnv("EBAY_COMPAT_LEVEL", mp.CompatibilityLevel)
	mp.RateLimit = getEnvAsInt("EBAY_RATE_LIMIT", mp.RateLimit)
	mp.HTTPTimeout = getEnvAsDuration("HTTP_TIMEOUT", mp.HTTPTimeout)

	if config.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	if mp.ClientID == "" {
		log.Println("Warning: EBAY_CLIENT_ID not set, token refresh will fail")
	}
	if config.CronSecret == "" {
		log.Println("Warning: CRON_SECRET not set, cron endpoint will reject every call")
	}

	return config
}

// NewMarketplaceClientConfig returns endpoint defaults for the given
// environment. Unknown values fall back to production.
func NewMarketplaceClientConfig(environment string) MarketplaceClientConfig {
	cfg := MarketplaceClientConfig{
		Environment:        EnvironmentProduction,
		APIBaseURL:         "https://api.ebay.com",
		TradingURL:         "https://api.ebay.com/ws/api.dll",
		TokenURL:           "https://api.ebay.com/identity/v1/oauth2/token",
		AuthURL:            "https://auth.ebay.com/oauth2/authorize",
		IdentityURL:        "https://apiz.ebay.com/commerce/identity/v1/user/",
		SiteID:             "0",
		CompatibilityLevel: "1193",
		RateLimit:          5,
		HTTPTimeout:        30 * time.Second,
	}
	if strings.EqualFold(environment, EnvironmentSandbox) {
		cfg.Environment = EnvironmentSandbox
		cfg.APIBaseURL = "https://api.sandbox.ebay.com"
		cfg.TradingURL = "https://api.sandbox.ebay.com/ws/api.dll"
		cfg.TokenURL = "https://api.sandbox.ebay.com/identity/v1/oauth2/token"
		cfg.AuthURL = "https://auth.sandbox.ebay.com/oauth2/authorize"
		cfg.IdentityURL = "https://apiz.sandbox.ebay.com/commerce/identity/v1/user/"
	}
	return cfg
}

// ForEnvironment returns a copy of the config pointed at the hosts of the
// given environment, keeping credentials and tuning. A connection created in
// the sandbox must keep talking to the sandbox.
func (c MarketplaceClientConfig) ForEnvironment(environment string) MarketplaceClientConfig {
	if environment == "" || strings.EqualFold(environment, c.Environment) {
		return c
	}
	hosts := NewMarketplaceClientConfig(environment)
	c.Environment = hosts.Environment
	c.APIBaseURL = hosts.APIBaseURL
	c.TradingURL = hosts.TradingURL
	c.TokenURL = hosts.TokenURL
	c.AuthURL = hosts.AuthURL
	c.IdentityURL = hosts.IdentityURL
	return c
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolValue
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

// getEnvAsList splits a comma separated environment variable
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
