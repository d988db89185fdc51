package secrets

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	secretmanagerpb "cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"marketplace-sync-service/internal/config"
)

// MarketplaceAppSecret is the JSON shape of an application credential secret.
// A payload that is not JSON is taken as the bare client secret.
type MarketplaceAppSecret struct {
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret"`
	RuName       string `json:"ru_name,omitempty"`
}

// cacheEntry represents a cached secret with expiration
type cacheEntry struct {
	payload   []byte
	expiresAt time.Time
}

type accessFunc func(ctx context.Context, name string) ([]byte, error)

// createFunc stores payload as the first version of a new secret. It
// returns errSecretExists when another writer created the secret first.
type createFunc func(ctx context.Context, secretID string, payload []byte) error

var errSecretExists = errors.New("secret already exists")

// GCPSecretManager reads secrets from Google Cloud Secret Manager
type GCPSecretManager struct {
	client    *secretmanager.Client
	access    accessFunc
	create    createFunc
	projectID string
	cache     map[string]*cacheEntry
	cacheMu   sync.RWMutex
	cacheTTL  time.Duration
}

// NewGCPSecretManager creates a new GCP Secret Manager client
func NewGCPSecretManager(ctx context.Context, projectID string) (*GCPSecretManager, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}

	sm := newManager(projectID, func(ctx context.Context, name string) ([]byte, error) {
		result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
		if err != nil {
			return nil, err
		}
		return result.Payload.Data, nil
	})
	sm.create = func(ctx context.Context, secretID string, payload []byte) error {
		secret, err := client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
			Parent:   fmt.Sprintf("projects/%s", projectID),
			SecretId: secretID,
			Secret: &secretmanagerpb.Secret{
				Replication: &secretmanagerpb.Replication{
					Replication: &secretmanagerpb.Replication_Automatic_{
						Automatic: &secretmanagerpb.Replication_Automatic{},
					},
				},
			},
		})
		if status.Code(err) == codes.AlreadyExists {
			return errSecretExists
		}
		if err != nil {
			return err
		}
		_, err = client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
			Parent:  secret.Name,
			Payload: &secretmanagerpb.SecretPayload{Data: payload},
		})
		return err
	}
	sm.client = client
	return sm, nil
}

func newManager(projectID string, access accessFunc) *GCPSecretManager {
	return &GCPSecretManager{
		access:    access,
		projectID: projectID,
		cache:     make(map[string]*cacheEntry),
		cacheTTL:  5 * time.Minute,
	}
}

// Close closes the Secret Manager client
func (sm *GCPSecretManager) Close() error {
	if sm.client != nil {
		return sm.client.Close()
	}
	return nil
}

// BuildSecretName expands a bare secret id into its full resource name.
// Names that are already fully qualified are returned unchanged.
func (sm *GCPSecretManager) BuildSecretName(secretID string) string {
	if strings.HasPrefix(secretID, "projects/") {
		return secretID
	}
	return fmt.Sprintf("projects/%s/secrets/%s", sm.projectID, sanitizeSecretID(secretID))
}

// GetSecret retrieves the latest version of a secret
func (sm *GCPSecretManager) GetSecret(ctx context.Context, secretName string) ([]byte, error) {
	// Check cache first
	sm.cacheMu.RLock()
	if entry, ok := sm.cache[secretName]; ok && time.Now().Before(entry.expiresAt) {
		sm.cacheMu.RUnlock()
		return entry.payload, nil
	}
	sm.cacheMu.RUnlock()

	payload, err := sm.access(ctx, secretName+"/versions/latest")
	if err != nil {
		return nil, fmt.Errorf("failed to access secret: %w", err)
	}

	// Cache the result
	sm.cacheMu.Lock()
	sm.cache[secretName] = &cacheEntry{
		payload:   payload,
		expiresAt: time.Now().Add(sm.cacheTTL),
	}
	sm.cacheMu.Unlock()

	return payload, nil
}

// InvalidateCache removes a secret from the cache
func (sm *GCPSecretManager) InvalidateCache(secretName string) {
	sm.cacheMu.Lock()
	delete(sm.cache, secretName)
	sm.cacheMu.Unlock()
}

// ResolveMarketplaceCredentials fills the client secret from Secret Manager
// when cfg names a secret and no plaintext secret was configured.
func (sm *GCPSecretManager) ResolveMarketplaceCredentials(ctx context.Context, cfg *config.MarketplaceClientConfig) error {
	if cfg.ClientSecret != "" || cfg.ClientSecretName == "" {
		return nil
	}

	payload, err := sm.GetSecret(ctx, sm.BuildSecretName(cfg.ClientSecretName))
	if err != nil {
		return err
	}

	secret := parseAppSecret(payload)
	if secret.ClientSecret == "" {
		return fmt.Errorf("secret %s carries no client secret", cfg.ClientSecretName)
	}
	cfg.ClientSecret = secret.ClientSecret
	if cfg.ClientID == "" {
		cfg.ClientID = secret.ClientID
	}
	if cfg.RuName == "" {
		cfg.RuName = secret.RuName
	}
	return nil
}

// TenantDataKey returns the tenant's 32-byte PII data encryption key,
// generating and storing it on first use. When two writers race to create
// the key, both end up with the version Secret Manager kept.
func (sm *GCPSecretManager) TenantDataKey(ctx context.Context, tenantID string) ([]byte, error) {
	secretID := sanitizeSecretID(fmt.Sprintf("tenant-%s-dek", tenantID))
	name := sm.BuildSecretName(secretID)

	key, err := sm.GetSecret(ctx, name)
	if err == nil {
		return key, nil
	}
	if status.Code(err) != codes.NotFound {
		return nil, err
	}
	if sm.create == nil {
		return nil, fmt.Errorf("data key %s not found", secretID)
	}

	key = make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	if err := sm.create(ctx, secretID, key); err != nil && !errors.Is(err, errSecretExists) {
		return nil, fmt.Errorf("failed to store key: %w", err)
	}

	sm.InvalidateCache(name)
	return sm.GetSecret(ctx, name)
}

func parseAppSecret(payload []byte) MarketplaceAppSecret {
	trimmed := strings.TrimSpace(string(payload))
	var secret MarketplaceAppSecret
	if strings.HasPrefix(trimmed, "{") && json.Unmarshal([]byte(trimmed), &secret) == nil {
		return secret
	}
	return MarketplaceAppSecret{ClientSecret: trimmed}
}

// sanitizeSecretID removes or replaces invalid characters for GCP secret IDs
// Secret IDs can only contain alphanumeric characters, hyphens, and underscores
func sanitizeSecretID(input string) string {
	var result strings.Builder
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			result.WriteRune(r)
		} else {
			result.WriteRune('-')
		}
	}
	return result.String()
}
