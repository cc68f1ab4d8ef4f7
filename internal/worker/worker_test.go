package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/voltclub/portal/internal/config"
	"github.com/voltclub/portal/internal/metrics"
	"github.com/voltclub/portal/internal/models"
	"github.com/voltclub/portal/internal/notify"
	"github.com/voltclub/portal/internal/rbac"
	"github.com/voltclub/portal/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupWorker(t *testing.T, cfg config.MaintenanceConfig) (*Worker, *gorm.DB, *metrics.Metrics) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "worker.db")), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.UserPermission{}, &models.Notification{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	m := metrics.New(prometheus.NewRegistry())
	w := New(store.NewGrants(db), notify.New(db, nil, m), m, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return w, db, m
}

func defaultConfig() config.MaintenanceConfig {
	return config.MaintenanceConfig{
		Enabled:                   true,
		GrantPurgeSchedule:        "@hourly",
		NotificationPurgeSchedule: "30 3 * * *",
		NotificationRetentionDays: 30,
	}
}

func TestRunOnce(t *testing.T) {
	w, db, m := setupWorker(t, defaultConfig())
	ctx := context.Background()
	now := time.Now().UTC()
	user := uuid.New()

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	grants := []models.UserPermission{
		{UserID: user, Permission: rbac.CreateEvent, ExpiresAt: &past},
		{UserID: user, Permission: rbac.FeatureProject, ExpiresAt: &future},
		{UserID: user, Permission: rbac.MentorMembers},
	}
	if err := db.Create(&grants).Error; err != nil {
		t.Fatalf("create grants: %v", err)
	}

	old := models.Notification{UserID: user, Title: "old", Message: "m"}
	recent := models.Notification{UserID: user, Title: "recent", Message: "m"}
	kept := models.Notification{UserID: user, Title: "kept", Message: "m"}
	for _, n := range []*models.Notification{&old, &recent, &kept} {
		if err := db.Create(n).Error; err != nil {
			t.Fatalf("create notification: %v", err)
		}
	}
	db.Unscoped().Model(&old).Update("deleted_at", now.AddDate(0, 0, -31))
	db.Unscoped().Model(&recent).Update("deleted_at", now.AddDate(0, 0, -2))

	results, err := w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if results[TaskPurgeGrants] != 1 {
		t.Errorf("expected 1 grant purged, got %d", results[TaskPurgeGrants])
	}
	if results[TaskPurgeNotifications] != 1 {
		t.Errorf("expected 1 notification purged, got %d", results[TaskPurgeNotifications])
	}

	var remaining int64
	db.Model(&models.UserPermission{}).Count(&remaining)
	if remaining != 2 {
		t.Errorf("expected 2 grants left, got %d", remaining)
	}
	db.Unscoped().Model(&models.Notification{}).Count(&remaining)
	if remaining != 2 {
		t.Errorf("expected 2 notifications left, got %d", remaining)
	}

	if got := testutil.ToFloat64(m.MaintenancePurged.WithLabelValues(TaskPurgeGrants)); got != 1 {
		t.Errorf("expected purge metric 1, got %v", got)
	}

	// Nothing left to do
	results, err = w.RunOnce(ctx)
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if results[TaskPurgeGrants] != 0 || results[TaskPurgeNotifications] != 0 {
		t.Errorf("expected nothing purged, got %v", results)
	}
}

func TestSchedule_InvalidExpression(t *testing.T) {
	cfg := defaultConfig()
	cfg.GrantPurgeSchedule = "every now and then"
	w, _, _ := setupWorker(t, cfg)

	if err := w.Schedule(); err == nil {
		t.Fatal("expected invalid schedule to be rejected")
	}
	if err := w.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail on invalid schedule")
	}
}

func TestStart_StopsOnCancel(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		cfg := defaultConfig()
		cfg.Enabled = enabled
		w, _, _ := setupWorker(t, cfg)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Start(ctx) }()
		cancel()

		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("enabled=%v: expected context.Canceled, got %v", enabled, err)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("enabled=%v: worker did not stop", enabled)
		}
	}
}
