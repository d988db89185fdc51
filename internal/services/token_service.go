package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/repository"
)

// TokenService owns the token lifecycle of marketplace connections. It is the
// only writer of connection records; other components report through it.
type TokenService struct {
	connections repository.ConnectionRepositoryInterface
	selections  repository.SelectionRepositoryInterface
	clientFor   clients.ClientFactory
	defaultEnv  models.Environment
	logger      *logrus.Entry
	now         func() time.Time

	refreshGroup singleflight.Group
}

// NewTokenService creates a new token service
func NewTokenService(
	connections repository.ConnectionRepositoryInterface,
	selections repository.SelectionRepositoryInterface,
	clientFor clients.ClientFactory,
	defaultEnv models.Environment,
	logger *logrus.Entry,
) *TokenService {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if defaultEnv == "" {
		defaultEnv = models.EnvironmentProduction
	}
	return &TokenService{
		connections: connections,
		selections:  selections,
		clientFor:   clientFor,
		defaultEnv:  defaultEnv,
		logger:      logger.WithField("component", "token_service"),
		now:         time.Now,
	}
}

// Client returns the marketplace client for a connection's environment
func (s *TokenService) Client(conn *models.Connection) clients.MarketplaceClient {
	return s.clientFor(conn.Environment)
}

// GetValidToken returns the connection with an access token usable right now.
// A nil connectionID selects the tenant's most recently created connection.
// An access token expiring at or before now is refreshed first.
func (s *TokenService) GetValidToken(ctx context.Context, tenantID string, connectionID *uuid.UUID) (*models.Connection, error) {
	if tenantID == "" {
		return nil, ErrUnauthorized
	}

	conn, err := s.loadConnection(ctx, tenantID, connectionID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !conn.AccessTokenExpired(now) {
		return conn, nil
	}
	return s.refresh(ctx, conn, now)
}

func (s *TokenService) loadConnection(ctx context.Context, tenantID string, connectionID *uuid.UUID) (*models.Connection, error) {
	var conn *models.Connection
	var err error
	if connectionID == nil {
		conn, err = s.connections.GetLatestForTenant(ctx, tenantID)
	} else {
		conn, err = s.connections.GetForTenant(ctx, tenantID, *connectionID)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}
	return conn, nil
}

// refresh exchanges the stored refresh token. Concurrent refreshes of the
// same connection share one token endpoint call.
func (s *TokenService) refresh(ctx context.Context, conn *models.Connection, now time.Time) (*models.Connection, error) {
	log := s.logger.WithFields(logrus.Fields{
		"tenant_id":     conn.TenantID,
		"connection_id": conn.ID,
	})

	if !conn.CanRefresh(now) {
		log.Warn("Access token expired and no usable refresh token")
		return nil, fmt.Errorf("%w: connection %s has no usable refresh token", ErrTokenInvalid, conn.ID)
	}

	v, err, _ := s.refreshGroup.Do(conn.ID.String(), func() (interface{}, error) {
		grant, err := s.clientFor(conn.Environment).RefreshAccessToken(ctx, *conn.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
		}

		refreshed := *conn
		refreshed.Apply(grant)
		if err := s.connections.UpdateTokens(ctx, &refreshed); err != nil {
			return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
		}
		return &refreshed, nil
	})
	if err != nil {
		log.WithError(err).Warn("Token refresh failed")
		return nil, err
	}

	log.Info("Access token refreshed")
	refreshed := *v.(*models.Connection)
	return &refreshed, nil
}

// AuthorizationURL returns the consent URL for the given environment
func (s *TokenService) AuthorizationURL(env models.Environment, state string) string {
	if env == "" {
		env = s.defaultEnv
	}
	return s.clientFor(env).AuthorizationURL(state)
}

// ExchangeCode completes the authorization-code flow and upserts the
// connection. Reconnecting the same seller account updates its connection.
func (s *TokenService) ExchangeCode(ctx context.Context, tenantID string, env models.Environment, code string) (*models.Connection, error) {
	if tenantID == "" {
		return nil, ErrUnauthorized
	}
	if code == "" {
		return nil, validationErrorf("authorization code is required")
	}
	if env == "" {
		env = s.defaultEnv
	}
	if env != models.EnvironmentSandbox && env != models.EnvironmentProduction {
		return nil, validationErrorf("unknown environment %q", env)
	}

	log := s.logger.WithFields(logrus.Fields{
		"tenant_id":   tenantID,
		"environment": env,
	})

	client := s.clientFor(env)
	grant, err := client.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	var userID, username string
	if user, err := client.GetUser(ctx, grant.AccessToken); err != nil {
		log.WithError(err).Warn("Failed to fetch marketplace user, continuing without it")
	} else {
		userID, username = user.UserID, user.Username
	}

	existing, err := s.findSellerConnection(ctx, tenantID, env, userID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		existing.Apply(grant)
		if username != "" {
			existing.DisplayName = username
		}
		existing.LastError = ""
		if err := s.connections.Reauthorize(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to update connection: %w", err)
		}
		log.WithField("connection_id", existing.ID).Info("Marketplace connection re-authorized")
		return existing, nil
	}

	conn := &models.Connection{
		ID:                uuid.New(),
		TenantID:          tenantID,
		Environment:       env,
		MarketplaceUserID: userID,
		DisplayName:       username,
	}
	conn.Apply(grant)
	if err := s.connections.Create(ctx, conn); err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}

	log.WithField("connection_id", conn.ID).Info("Marketplace connection created")
	return conn, nil
}

func (s *TokenService) findSellerConnection(ctx context.Context, tenantID string, env models.Environment, userID string) (*models.Connection, error) {
	if userID == "" {
		return nil, nil
	}
	connections, err := s.connections.GetByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load connections: %w", err)
	}
	for i := range connections {
		if connections[i].MarketplaceUserID == userID && connections[i].Environment == env {
			return &connections[i], nil
		}
	}
	return nil, nil
}

// ScanConnections returns up to limit connections across every tenant, newest first
func (s *TokenService) ScanConnections(ctx context.Context, limit int) ([]models.Connection, error) {
	connections, _, err := s.connections.List(ctx, repository.ListOptions{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return connections, nil
}

// RecordSyncResult stamps a sync outcome on the connection. A non-empty
// lastError keeps the previous LastSyncAt.
func (s *TokenService) RecordSyncResult(ctx context.Context, connectionID uuid.UUID, lastError string) error {
	if err := s.connections.RecordSyncResult(ctx, connectionID, s.now(), lastError); err != nil {
		return fmt.Errorf("failed to record sync result: %w", err)
	}
	return nil
}

// ListConnections returns a tenant's connections, newest first
func (s *TokenService) ListConnections(ctx context.Context, tenantID string) ([]models.Connection, error) {
	if tenantID == "" {
		return nil, ErrUnauthorized
	}
	return s.connections.GetByTenant(ctx, tenantID)
}

// Disconnect deletes a connection and its selection set. Orders and
// inventory records already written are kept.
func (s *TokenService) Disconnect(ctx context.Context, tenantID string, connectionID uuid.UUID) error {
	conn, err := s.loadConnection(ctx, tenantID, &connectionID)
	if err != nil {
		return err
	}

	if err := s.selections.DeleteForConnection(ctx, conn.ID); err != nil {
		return fmt.Errorf("failed to delete selection: %w", err)
	}
	if err := s.connections.Delete(ctx, conn.ID); err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"tenant_id":     tenantID,
		"connection_id": conn.ID,
	}).Info("Marketplace connection removed")
	return nil
}
