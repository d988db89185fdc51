package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"marketplace-sync-service/internal/models"
	"marketplace-sync-service/internal/services"
)

// AutoSyncRunner runs one orchestrator pass
type AutoSyncRunner interface {
	RunAutoSync(ctx context.Context, opts services.AutoSyncOptions) (*services.AutoSyncReport, error)
}

// AutoSyncJob runs the orchestrator on a fixed interval inside the service,
// for deployments without an external cron.
type AutoSyncJob struct {
	runner   AutoSyncRunner
	opts     services.AutoSyncOptions
	logger   *logrus.Entry
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once

	fullEvery int
	runs      int
}

// NewAutoSyncJob creates a new auto sync job
func NewAutoSyncJob(runner AutoSyncRunner, opts services.AutoSyncOptions, interval time.Duration, logger *logrus.Entry) *AutoSyncJob {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	opts.TriggeredBy = models.TriggerSchedule
	return &AutoSyncJob{
		runner:   runner,
		opts:     opts,
		logger:   logger.WithField("component", "auto_sync_job"),
		interval: interval,
		timeout:  interval,
		stopCh:   make(chan struct{}),
	}
}

// WithFullSyncEvery makes every nth run include already fulfilled orders so
// fulfillments made outside the service are picked up. Zero disables it.
func (j *AutoSyncJob) WithFullSyncEvery(n int) *AutoSyncJob {
	j.fullEvery = n
	return j
}

// Start blocks running the orchestrator every interval until Stop or ctx is done
func (j *AutoSyncJob) Start(ctx context.Context) {
	j.logger.WithField("interval", j.interval.String()).Info("Auto sync job started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.runOnce(ctx)
		case <-j.stopCh:
			j.logger.Info("Auto sync job stopped")
			return
		case <-ctx.Done():
			j.logger.Info("Auto sync job context cancelled")
			return
		}
	}
}

// Stop signals the job to stop
func (j *AutoSyncJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
}

// runOnce bounds a pass by the interval so runs never overlap
func (j *AutoSyncJob) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	report, err := j.runner.RunAutoSync(runCtx, j.nextOptions())
	if err != nil {
		j.logger.WithError(err).Error("Scheduled auto sync failed")
		return
	}
	j.logger.WithFields(logrus.Fields{
		"run_id":    report.RunID,
		"attempted": report.Attempted,
		"synced":    report.SyncedConnections,
		"errors":    len(report.Errors),
	}).Info("Scheduled auto sync finished")
}

func (j *AutoSyncJob) nextOptions() services.AutoSyncOptions {
	j.runs++
	opts := j.opts
	if j.fullEvery > 0 && j.runs%j.fullEvery == 0 {
		opts.IncludeFulfilled = true
	}
	return opts
}
