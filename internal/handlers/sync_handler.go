package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"marketplace-sync-service/internal/config"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/services"
)

// AutoSyncer runs the batch orchestrator and lists its past runs
type AutoSyncer interface {
	RunAutoSync(ctx context.Context, opts services.AutoSyncOptions) (*services.AutoSyncReport, error)
	ListRecentRuns(ctx context.Context, limit int) ([]models.SyncRun, error)
}

// SyncHandler handles the cron-triggered batch sync
type SyncHandler struct {
	service  AutoSyncer
	defaults config.AutoSyncConfig
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(service AutoSyncer, defaults config.AutoSyncConfig) *SyncHandler {
	return &SyncHandler{service: service, defaults: defaults}
}

// Run executes one orchestrator pass. Query parameters maxPages,
// maxConnections, pageSize and refreshInventory override the configured caps;
// includeFulfilled=true also re-reads orders that are already fulfilled.
func (h *SyncHandler) Run(c *gin.Context) {
	opts := services.AutoSyncOptions{
		MaxPages:         queryInt(c, "maxPages", h.defaults.MaxPages),
		MaxConnections:   queryInt(c, "maxConnections", h.defaults.MaxConnections),
		PageSize:         queryInt(c, "pageSize", h.defaults.PageSize),
		RefreshInventory: h.defaults.RefreshInventory,
		TriggeredBy:      models.TriggerCron,
	}
	if raw := c.Query("refreshInventory"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			opts.RefreshInventory = v
		}
	}
	if v, err := strconv.ParseBool(c.Query("includeFulfilled")); err == nil {
		opts.IncludeFulfilled = v
	}

	report, err := h.service.RunAutoSync(c.Request.Context(), opts)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":     true,
		"report": report,
	})
}

// Runs lists recent orchestrator runs
func (h *SyncHandler) Runs(c *gin.Context) {
	runs, err := h.service.ListRecentRuns(c.Request.Context(), queryInt(c, "limit", 20))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": runs})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil && v > 0 {
		return v
	}
	return fallback
}
