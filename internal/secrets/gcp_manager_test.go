package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"marketplace-sync-service/internal/config"
)

func TestResolveMarketplaceCredentials_JSONPayload(t *testing.T) {
	calls := 0
	sm := newManager("proj", func(ctx context.Context, name string) ([]byte, error) {
		calls++
		assert.Equal(t, "projects/proj/secrets/ebay-app/versions/latest", name)
		return []byte(`{"client_id":"id-from-secret","client_secret":"s3cret","ru_name":"ru"}`), nil
	})

	cfg := config.NewMarketplaceClientConfig(config.EnvironmentProduction)
	cfg.ClientSecretName = "ebay-app"
	require.NoError(t, sm.ResolveMarketplaceCredentials(context.Background(), &cfg))
	assert.Equal(t, "s3cret", cfg.ClientSecret)
	assert.Equal(t, "id-from-secret", cfg.ClientID)
	assert.Equal(t, "ru", cfg.RuName)

	// second resolve is served from cache
	cfg.ClientSecret = ""
	require.NoError(t, sm.ResolveMarketplaceCredentials(context.Background(), &cfg))
	assert.Equal(t, 1, calls)
}

func TestResolveMarketplaceCredentials_PlainPayload(t *testing.T) {
	sm := newManager("proj", func(ctx context.Context, name string) ([]byte, error) {
		return []byte("plain-secret\n"), nil
	})

	cfg := config.MarketplaceClientConfig{ClientID: "id", ClientSecretName: "projects/other/secrets/x"}
	require.NoError(t, sm.ResolveMarketplaceCredentials(context.Background(), &cfg))
	assert.Equal(t, "plain-secret", cfg.ClientSecret)
	assert.Equal(t, "id", cfg.ClientID)
}

func TestResolveMarketplaceCredentials_SkipsWhenConfigured(t *testing.T) {
	sm := newManager("proj", func(ctx context.Context, name string) ([]byte, error) {
		return nil, errors.New("should not be called")
	})

	cfg := config.MarketplaceClientConfig{ClientSecret: "already", ClientSecretName: "ebay-app"}
	require.NoError(t, sm.ResolveMarketplaceCredentials(context.Background(), &cfg))
	assert.Equal(t, "already", cfg.ClientSecret)
}

func TestBuildSecretName(t *testing.T) {
	sm := newManager("proj", nil)
	assert.Equal(t, "projects/proj/secrets/ebay-app-prod", sm.BuildSecretName("ebay.app/prod"))
	assert.Equal(t, "projects/a/secrets/b", sm.BuildSecretName("projects/a/secrets/b"))
}

func TestTenantDataKey_CreatesOnFirstUse(t *testing.T) {
	stored := map[string][]byte{}
	sm := newManager("proj", func(ctx context.Context, name string) ([]byte, error) {
		if payload, ok := stored[name]; ok {
			return payload, nil
		}
		return nil, status.Error(codes.NotFound, "missing")
	})
	sm.create = func(ctx context.Context, secretID string, payload []byte) error {
		stored["projects/proj/secrets/"+secretID+"/versions/latest"] = payload
		return nil
	}

	key, err := sm.TenantDataKey(context.Background(), "tenant.a")
	require.NoError(t, err)
	assert.Len(t, key, 32)
	assert.Contains(t, stored, "projects/proj/secrets/tenant-tenant-a-dek/versions/latest")

	again, err := sm.TenantDataKey(context.Background(), "tenant.a")
	require.NoError(t, err)
	assert.Equal(t, key, again)
}

func TestTenantDataKey_LosingRaceReadsWinner(t *testing.T) {
	winner := []byte("0123456789abcdef0123456789abcdef")
	created := false
	sm := newManager("proj", func(ctx context.Context, name string) ([]byte, error) {
		if created {
			return winner, nil
		}
		return nil, status.Error(codes.NotFound, "missing")
	})
	sm.create = func(ctx context.Context, secretID string, payload []byte) error {
		created = true
		return errSecretExists
	}

	key, err := sm.TenantDataKey(context.Background(), "t")
	require.NoError(t, err)
	assert.Equal(t, winner, key)
}

func TestTenantDataKey_OtherErrorsDoNotCreate(t *testing.T) {
	sm := newManager("proj", func(ctx context.Context, name string) ([]byte, error) {
		return nil, status.Error(codes.PermissionDenied, "denied")
	})
	sm.create = func(ctx context.Context, secretID string, payload []byte) error {
		t.Fatal("key must not be created")
		return nil
	}

	_, err := sm.TenantDataKey(context.Background(), "t")
	assert.Error(t, err)
}
