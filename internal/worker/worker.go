// Package worker runs the portal's scheduled maintenance tasks.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/voltclub/portal/internal/config"
	"github.com/voltclub/portal/internal/metrics"
	"github.com/voltclub/portal/internal/notify"
	"github.com/voltclub/portal/internal/store"
)

// Task names, also used as the metrics label
const (
	TaskPurgeGrants        = "purge_expired_grants"
	TaskPurgeNotifications = "purge_dismissed_notifications"
)

// Worker purges expired permission grants and old dismissed notifications
// on cron schedules.
type Worker struct {
	grants    *store.Grants
	notifier  *notify.Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cfg       config.MaintenanceConfig
	now       func() time.Time
	mu        sync.Mutex // serializes task runs
	scheduler *cron.Cron
}

// New creates a new worker instance
func New(grants *store.Grants, notifier *notify.Notifier, m *metrics.Metrics, cfg config.MaintenanceConfig, logger *slog.Logger) *Worker {
	return &Worker{
		grants:   grants,
		notifier: notifier,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Schedule registers the tasks on a fresh scheduler without starting it.
func (w *Worker) Schedule() error {
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cron.PrintfLogger(slog.NewLogLogger(w.logger.Handler(), slog.LevelError)))),
	)

	jobs := []struct {
		name     string
		schedule string
	}{
		{TaskPurgeGrants, w.cfg.GrantPurgeSchedule},
		{TaskPurgeNotifications, w.cfg.NotificationPurgeSchedule},
	}
	for _, job := range jobs {
		name := job.name
		if _, err := c.AddFunc(job.schedule, func() { w.run(context.Background(), name) }); err != nil {
			return fmt.Errorf("invalid schedule %q for %s: %w", job.schedule, name, err)
		}
	}

	w.scheduler = c
	return nil
}

// Start runs the scheduler until ctx is cancelled, then waits for any
// running task to finish.
func (w *Worker) Start(ctx context.Context) error {
	if !w.cfg.Enabled {
		w.logger.Info("Maintenance worker disabled")
		<-ctx.Done()
		return ctx.Err()
	}
	if w.scheduler == nil {
		if err := w.Schedule(); err != nil {
			return err
		}
	}

	w.scheduler.Start()
	w.logger.Info("Maintenance worker started",
		"grant_purge_schedule", w.cfg.GrantPurgeSchedule,
		"notification_purge_schedule", w.cfg.NotificationPurgeSchedule)

	<-ctx.Done()
	w.logger.Info("Maintenance worker shutting down, waiting for running tasks")
	<-w.scheduler.Stop().Done()
	w.logger.Info("Maintenance worker stopped")
	return ctx.Err()
}

// RunOnce runs every task immediately and returns the rows removed per task.
func (w *Worker) RunOnce(ctx context.Context) (map[string]int64, error) {
	results := make(map[string]int64, 2)
	for _, name := range []string{TaskPurgeGrants, TaskPurgeNotifications} {
		n, err := w.run(ctx, name)
		if err != nil {
			return results, err
		}
		results[name] = n
	}
	return results, nil
}

func (w *Worker) run(ctx context.Context, name string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	start := time.Now()
	var (
		n   int64
		err error
	)
	switch name {
	case TaskPurgeGrants:
		n, err = w.grants.PurgeExpired(ctx, w.now())
	case TaskPurgeNotifications:
		cutoff := w.now().AddDate(0, 0, -w.cfg.NotificationRetentionDays)
		n, err = w.notifier.PurgeDismissed(ctx, cutoff)
	default:
		err = fmt.Errorf("unknown task %s", name)
	}

	if err != nil {
		w.logger.Error("Maintenance task failed", "task", name, "error", err)
		return 0, fmt.Errorf("%s: %w", name, err)
	}

	w.metrics.Purged(name, n)
	w.logger.Info("Maintenance task completed", "task", name, "rows", n, "duration", time.Since(start))
	return n, nil
}
