package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"marketplace-sync-service/internal/clients"
	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/repository"
)

// AutoSyncOptions caps one orchestrator run. Runs fetch only orders still
// awaiting fulfillment unless IncludeFulfilled is set.
type AutoSyncOptions struct {
	MaxPages         int                `json:"maxPages"`
	MaxConnections   int                `json:"maxConnections"`
	PageSize         int                `json:"pageSize"`
	RefreshInventory bool               `json:"refreshInventory"`
	IncludeFulfilled bool               `json:"includeFulfilled"`
	TriggeredBy      models.TriggerType `json:"triggeredBy"`
}

// AutoSyncReport aggregates one orchestrator run. Errors are formatted as
// "{tenant}/{connection}: {reason}".
type AutoSyncReport struct {
	RunID             uuid.UUID `json:"runId"`
	Scanned           int       `json:"scanned"`
	Attempted         int       `json:"attempted"`
	SyncedConnections int       `json:"syncedConnections"`
	TotalFetched      int       `json:"totalFetched"`
	TotalSaved        int       `json:"totalSaved"`
	InventoryUpdated  int       `json:"inventoryUpdated"`
	Errors            []string  `json:"errors"`
}

// SyncService runs order sync and inventory refresh across every tenant's
// connections. A failing connection never stops the others. Connection
// records are read and stamped through the token service.
type SyncService struct {
	tokens      *TokenService
	runs        repository.SyncRepositoryInterface
	selections  *SelectionService
	orders      *OrderSyncService
	inventory   *InventoryService
	logger      *logrus.Entry
	now         func() time.Time
}

// NewSyncService creates a new sync service
func NewSyncService(
	tokens *TokenService,
	runs repository.SyncRepositoryInterface,
	selections *SelectionService,
	orders *OrderSyncService,
	inventory *InventoryService,
	logger *logrus.Entry,
) *SyncService {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SyncService{
		tokens:      tokens,
		runs:        runs,
		selections:  selections,
		orders:      orders,
		inventory:   inventory,
		logger:      logger.WithField("component", "sync_service"),
		now:         time.Now,
	}
}

// RunAutoSync syncs up to MaxConnections connections. Only storage failures
// while listing connections abort the run; everything else lands in Errors.
func (s *SyncService) RunAutoSync(ctx context.Context, opts AutoSyncOptions) (*AutoSyncReport, error) {
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 50
	}
	if opts.TriggeredBy == "" {
		opts.TriggeredBy = models.TriggerCron
	}

	startedAt := s.now()
	report := &AutoSyncReport{RunID: uuid.New(), Errors: []string{}}

	connections, err := s.tokens.ScanConnections(ctx, opts.MaxConnections)
	if err != nil {
		return nil, err
	}
	report.Scanned = len(connections)

	for i := range connections {
		if ctx.Err() != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("run stopped: %v", ctx.Err()))
			break
		}
		s.syncConnection(ctx, &connections[i], opts, report)
	}

	s.persistRun(ctx, report, opts.TriggeredBy, startedAt)

	s.logger.WithFields(logrus.Fields{
		"run_id":      report.RunID,
		"scanned":     report.Scanned,
		"attempted":   report.Attempted,
		"synced":      report.SyncedConnections,
		"fetched":     report.TotalFetched,
		"saved":       report.TotalSaved,
		"inventory":   report.InventoryUpdated,
		"error_count": len(report.Errors),
	}).Info("Auto sync run finished")
	return report, nil
}

func (s *SyncService) syncConnection(ctx context.Context, conn *models.Connection, opts AutoSyncOptions, report *AutoSyncReport) {
	log := s.logger.WithFields(logrus.Fields{
		"tenant_id":     conn.TenantID,
		"connection_id": conn.ID,
	})
	prefix := fmt.Sprintf("%s/%s", conn.TenantID, conn.ID)

	filter, _, err := s.selections.Filter(ctx, conn.TenantID, conn.ID)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", prefix, err))
		return
	}
	if filter.IsEmpty() {
		log.Debug("No listings selected, skipping connection")
		return
	}

	report.Attempted++
	var failures []string

	id := conn.ID
	result, err := s.orders.SyncOrders(ctx, conn.TenantID, &id, SyncOptions{
		FilterNotStarted: !opts.IncludeFulfilled,
		MaxPages:         opts.MaxPages,
		PageSize:         opts.PageSize,
	})
	if result != nil {
		report.TotalFetched += result.TotalFetched
		report.TotalSaved += result.TotalSaved
	}
	if err != nil {
		log.WithError(err).Warn("Order sync failed")
		failures = append(failures, describeFailure(err))
	} else {
		report.SyncedConnections++

		if opts.RefreshInventory && s.inventory != nil {
			refreshed, err := s.inventory.RefreshInventoryFromMarketplace(ctx, conn.TenantID, &id)
			if err != nil {
				log.WithError(err).Warn("Inventory refresh failed")
				failures = append(failures, "inventory refresh: "+describeFailure(err))
			} else {
				report.InventoryUpdated += refreshed.Updated
				for _, e := range refreshed.Errors {
					failures = append(failures, fmt.Sprintf("inventory refresh: %s", e))
				}
			}
		}
	}

	for _, f := range failures {
		report.Errors = append(report.Errors, fmt.Sprintf("%s: %s", prefix, f))
	}

	if err := s.tokens.RecordSyncResult(ctx, conn.ID, strings.Join(failures, "; ")); err != nil {
		log.WithError(err).Warn("Failed to record sync result")
	}
}

// describeFailure renders err for the run report, with the marketplace's
// Retry-After hint when it sent one.
func describeFailure(err error) string {
	var mpErr *clients.MarketplaceError
	if errors.As(err, &mpErr) && mpErr.RetryAfter > 0 {
		return fmt.Sprintf("%v (retry after %s)", err, mpErr.RetryAfter.Round(time.Second))
	}
	return err.Error()
}

func (s *SyncService) persistRun(ctx context.Context, report *AutoSyncReport, trigger models.TriggerType, startedAt time.Time) {
	if s.runs == nil {
		return
	}
	finishedAt := s.now()
	run := &models.SyncRun{
		ID:                report.RunID,
		TriggeredBy:       trigger,
		Scanned:           report.Scanned,
		Attempted:         report.Attempted,
		SyncedConnections: report.SyncedConnections,
		TotalFetched:      report.TotalFetched,
		TotalSaved:        report.TotalSaved,
		InventoryUpdated:  report.InventoryUpdated,
		Errors:            report.Errors,
		StartedAt:         startedAt,
		FinishedAt:        &finishedAt,
	}
	if err := s.runs.CreateRun(ctx, run); err != nil {
		s.logger.WithError(err).WithField("run_id", report.RunID).Warn("Failed to persist sync run")
	}
}

// ListRecentRuns returns the latest orchestrator runs
func (s *SyncService) ListRecentRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	return s.runs.ListRecentRuns(ctx, limit)
}
