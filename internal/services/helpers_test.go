package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/repository"
)

// MockMarketplaceClient is a mock implementation of clients.MarketplaceClient
type MockMarketplaceClient struct {
	mock.Mock
}

// Ensure MockMarketplaceClient implements the interface
var _ clients.MarketplaceClient = (*MockMarketplaceClient)(nil)

func (m *MockMarketplaceClient) ListInventoryItems(ctx context.Context, accessToken string, limit, offset int) (*clients.InventoryItemPage, error) {
	args := m.Called(ctx, accessToken, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.InventoryItemPage), args.Error(1)
}

func (m *MockMarketplaceClient) GetInventoryItem(ctx context.Context, accessToken, sku string) (*clients.InventoryItem, error) {
	args := m.Called(ctx, accessToken, sku)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.InventoryItem), args.Error(1)
}

func (m *MockMarketplaceClient) ListOffers(ctx context.Context, accessToken, sku string) ([]clients.Offer, error) {
	args := m.Called(ctx, accessToken, sku)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]clients.Offer), args.Error(1)
}

func (m *MockMarketplaceClient) GetOffer(ctx context.Context, accessToken, offerID string) (*clients.Offer, error) {
	args := m.Called(ctx, accessToken, offerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.Offer), args.Error(1)
}

func (m *MockMarketplaceClient) UpdateOffer(ctx context.Context, accessToken string, offer *clients.Offer) error {
	args := m.Called(ctx, accessToken, offer)
	return args.Error(0)
}

func (m *MockMarketplaceClient) SearchOrders(ctx context.Context, accessToken string, opts *clients.OrderSearchOptions) (*clients.OrdersResult, error) {
	args := m.Called(ctx, accessToken, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.OrdersResult), args.Error(1)
}

func (m *MockMarketplaceClient) CreateShippingFulfillment(ctx context.Context, accessToken, orderID string, req *clients.ShippingFulfillmentRequest) (string, error) {
	args := m.Called(ctx, accessToken, orderID, req)
	return args.String(0), args.Error(1)
}

func (m *MockMarketplaceClient) GetSellerListings(ctx context.Context, accessToken string, pageNumber, entriesPerPage int) (*clients.SellerListingsPage, error) {
	args := m.Called(ctx, accessToken, pageNumber, entriesPerPage)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.SellerListingsPage), args.Error(1)
}

func (m *MockMarketplaceClient) ReviseInventoryStatus(ctx context.Context, accessToken string, revision *clients.InventoryStatusRevision) error {
	args := m.Called(ctx, accessToken, revision)
	return args.Error(0)
}

func (m *MockMarketplaceClient) AuthorizationURL(state string) string {
	args := m.Called(state)
	return args.String(0)
}

func (m *MockMarketplaceClient) ExchangeCode(ctx context.Context, code string) (*models.TokenGrant, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TokenGrant), args.Error(1)
}

func (m *MockMarketplaceClient) RefreshAccessToken(ctx context.Context, refreshToken string) (*models.TokenGrant, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.TokenGrant), args.Error(1)
}

func (m *MockMarketplaceClient) GetUser(ctx context.Context, accessToken string) (*clients.MarketplaceUser, error) {
	args := m.Called(ctx, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.MarketplaceUser), args.Error(1)
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testEnv wires every service against one in-memory database and one mock client
type testEnv struct {
	db     *gorm.DB
	client *MockMarketplaceClient

	connectionRepo *repository.ConnectionRepository
	selectionRepo  *repository.SelectionRepository
	orderRepo      *repository.OrderRepository
	inventoryRepo  *repository.InventoryRepository
	syncRepo       *repository.SyncRepository

	tokens      *TokenService
	selections  *SelectionService
	discovery   *DiscoveryService
	orders      *OrderSyncService
	fulfillment *FulfillmentService
	inventory   *InventoryService
	sync        *SyncService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.Connection{},
		&models.SelectedListing{},
		&models.MarketplaceOrder{},
		&models.InventoryRecord{},
		&models.SyncRun{},
	))

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	entry := logrus.NewEntry(log)

	env := &testEnv{
		db:             db,
		client:         &MockMarketplaceClient{},
		connectionRepo: repository.NewConnectionRepository(db, nil),
		selectionRepo:  repository.NewSelectionRepository(db),
		orderRepo:      repository.NewOrderRepository(db, nil),
		inventoryRepo:  repository.NewInventoryRepository(db),
		syncRepo:       repository.NewSyncRepository(db),
	}
	factory := func(models.Environment) clients.MarketplaceClient { return env.client }

	env.tokens = NewTokenService(env.connectionRepo, env.selectionRepo, factory, models.EnvironmentProduction, entry)
	env.selections = NewSelectionService(env.tokens, env.selectionRepo, entry)
	env.discovery = NewDiscoveryService(env.tokens, nil, entry)
	env.orders = NewOrderSyncService(env.tokens, env.selections, env.orderRepo, entry)
	env.fulfillment = NewFulfillmentService(env.tokens, env.orderRepo, entry)
	env.inventory = NewInventoryService(env.tokens, env.selections, env.inventoryRepo, entry)
	env.sync = NewSyncService(env.tokens, env.syncRepo, env.selections, env.orders, env.inventory, entry)

	clock := func() time.Time { return testNow }
	env.tokens.now = clock
	env.discovery.now = clock
	env.orders.now = clock
	env.fulfillment.now = clock
	env.inventory.now = clock
	env.sync.now = clock
	return env
}

// seedConnection stores a connection whose access token expires at expiresAt
func (e *testEnv) seedConnection(t *testing.T, tenantID, accessToken string, expiresAt time.Time, refreshToken string) *models.Connection {
	t.Helper()
	conn := &models.Connection{
		ID:                   uuid.New(),
		TenantID:             tenantID,
		Environment:          models.EnvironmentProduction,
		AccessToken:          accessToken,
		AccessTokenExpiresAt: expiresAt,
	}
	if refreshToken != "" {
		conn.RefreshToken = &refreshToken
	}
	require.NoError(t, e.connectionRepo.Create(context.Background(), conn))
	return conn
}

// seedSelection replaces the selection of conn
func (e *testEnv) seedSelection(t *testing.T, conn *models.Connection, selected ...models.SelectedListing) {
	t.Helper()
	for i := range selected {
		selected[i].TenantID = conn.TenantID
		selected[i].ConnectionID = conn.ID
		if selected[i].Source == "" {
			selected[i].Source = models.SourceUnknown
		}
	}
	require.NoError(t, e.selectionRepo.ReplaceForConnection(context.Background(), conn.TenantID, conn.ID, selected))
}

func validUntil() time.Time { return testNow.Add(time.Hour) }

func strPtr(s string) *string { return &s }

func intPtr(v int) *int { return &v }
