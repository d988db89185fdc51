package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"marketplace-sync-service/internal/middleware"
	"marketplace-sync-service/internal/models"
)

// ConnectionService is the connection lifecycle used by ConnectionHandler
type ConnectionService interface {
	AuthorizationURL(env models.Environment, state string) string
	ExchangeCode(ctx context.Context, tenantID string, env models.Environment, code string) (*models.Connection, error)
	ListConnections(ctx context.Context, tenantID string) ([]models.Connection, error)
	Disconnect(ctx context.Context, tenantID string, connectionID uuid.UUID) error
}

// ConnectionHandler handles marketplace connection endpoints
type ConnectionHandler struct {
	service ConnectionService
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(service ConnectionService) *ConnectionHandler {
	return &ConnectionHandler{service: service}
}

// AuthURL returns the consent URL and the state value the dashboard must echo back
func (h *ConnectionHandler) AuthURL(c *gin.Context) {
	state := c.Query("state")
	if state == "" {
		state = uuid.NewString()
	}
	env := models.Environment(c.Query("environment"))

	c.JSON(http.StatusOK, gin.H{
		"url":   h.service.AuthorizationURL(env, state),
		"state": state,
	})
}

// ExchangeCodeRequest is the OAuth callback payload
type ExchangeCodeRequest struct {
	Code        string             `json:"code" binding:"required"`
	Environment models.Environment `json:"environment"`
}

// Exchange completes the OAuth flow and stores the connection
func (h *ConnectionHandler) Exchange(c *gin.Context) {
	var req ExchangeCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	conn, err := h.service.ExchangeCode(c.Request.Context(), middleware.GetTenantID(c), req.Environment, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": conn})
}

// List returns the tenant's connections
func (h *ConnectionHandler) List(c *gin.Context) {
	connections, err := h.service.ListConnections(c.Request.Context(), middleware.GetTenantID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  connections,
		"total": len(connections),
	})
}

// Delete removes a connection and its selection
func (h *ConnectionHandler) Delete(c *gin.Context) {
	id, ok := connectionIDParam(c)
	if !ok {
		return
	}

	if err := h.service.Disconnect(c.Request.Context(), middleware.GetTenantID(c), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "connection deleted"})
}

// connectionIDParam parses the :id path parameter, answering 400 when malformed
func connectionIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid connection id")
		return uuid.Nil, false
	}
	return id, true
}
