package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/voltclub/portal/internal/auth"
	"github.com/voltclub/portal/internal/metrics"
	"github.com/voltclub/portal/internal/models"
	"github.com/voltclub/portal/internal/notify"
	"github.com/voltclub/portal/internal/rbac"
	"github.com/voltclub/portal/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testEnv bundles the services under test with a controllable clock.
type testEnv struct {
	db          *gorm.DB
	clock       time.Time
	metrics     *metrics.Metrics
	broker      *notify.Broker
	auth        *auth.BasicAuthenticator
	evaluator   *rbac.Evaluator
	profiles    *ProfileService
	requests    *RoleRequestService
	permissions *PermissionService
	reg         *Registration
}

func (e *testEnv) now() time.Time { return e.clock }

// testSetup creates a file-backed DB in a temp dir, migrates models and
// wires every service the way the server does.
func testSetup(t *testing.T) *testEnv {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(
		&models.Account{},
		&models.Profile{},
		&models.RoleRequest{},
		&models.UserPermission{},
		&models.Notification{},
		&models.AuditLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	policy, err := rbac.NewPolicy(nil)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}

	env := &testEnv{
		db:      db,
		clock:   time.Now().UTC(),
		metrics: metrics.New(prometheus.NewRegistry()),
		broker:  notify.NewBroker(),
	}
	env.evaluator = rbac.NewEvaluator(policy, store.NewProfiles(db), store.NewGrants(db),
		rbac.WithClock(env.now), rbac.WithMetrics(env.metrics))

	notifier := notify.New(db, env.broker, env.metrics)
	env.auth = auth.NewBasicAuthenticator(db, "test-secret")
	env.profiles = NewProfileService(db, env.evaluator, notifier)
	env.requests = NewRoleRequestService(db, env.evaluator, notifier, env.metrics)
	env.permissions = NewPermissionService(db, env.evaluator, notifier)
	env.permissions.now = env.now
	env.reg = NewRegistration(db, env.auth, env.profiles, env.requests, notifier, LogConfirmationSender{}, env.metrics)
	return env
}

// createMember inserts an account and an active, completed profile with role.
func createMember(t *testing.T, env *testEnv, username string, role rbac.Role) uuid.UUID {
	t.Helper()
	account := models.Account{Email: username + "@test.com", Provider: models.ProviderEmail}
	if err := env.db.Create(&account).Error; err != nil {
		t.Fatalf("create account: %v", err)
	}
	profile := models.Profile{
		ID:               account.ID,
		Username:         username,
		Email:            account.Email,
		FullName:         username,
		Role:             role,
		Status:           models.ProfileStatusActive,
		ProfileCompleted: true,
	}
	if err := env.db.Create(&profile).Error; err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return account.ID
}

func loadProfile(t *testing.T, env *testEnv, id uuid.UUID) models.Profile {
	t.Helper()
	var p models.Profile
	if err := env.db.First(&p, "id = ?", id).Error; err != nil {
		t.Fatalf("load profile: %v", err)
	}
	return p
}

func notificationsFor(t *testing.T, env *testEnv, id uuid.UUID) []models.Notification {
	t.Helper()
	var ns []models.Notification
	if err := env.db.Where("user_id = ?", id).Order("created_at").Find(&ns).Error; err != nil {
		t.Fatalf("load notifications: %v", err)
	}
	return ns
}

func auditActions(t *testing.T, env *testEnv, action string) []models.AuditLog {
	t.Helper()
	var logs []models.AuditLog
	if err := env.db.Where("action = ?", action).Find(&logs).Error; err != nil {
		t.Fatalf("load audit logs: %v", err)
	}
	return logs
}

var ctx = context.Background()
