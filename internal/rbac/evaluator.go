package rbac

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/voltclub/portal/internal/metrics"
)

// ErrPermissionDenied is returned by Require when the caller lacks a permission.
var ErrPermissionDenied = errors.New("permission denied")

// RoleSource resolves the role stored on a user's profile. It returns an
// error when the user has no profile.
type RoleSource interface {
	RoleOf(ctx context.Context, userID uuid.UUID) (Role, error)
}

// GrantSource reads per-user permission grants.
type GrantSource interface {
	HasActiveGrant(ctx context.Context, userID uuid.UUID, p Permission, now time.Time) (bool, error)
	ActiveGrants(ctx context.Context, userID uuid.UUID, now time.Time) ([]Permission, error)
}

// Evaluator decides whether a user holds a permission. It is read-only and
// fails closed: any lookup error results in a deny.
type Evaluator struct {
	policy  *Policy
	roles   RoleSource
	grants  GrantSource
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// EvaluatorOption customises an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithMetrics records every decision in m.
func WithMetrics(m *metrics.Metrics) EvaluatorOption {
	return func(e *Evaluator) { e.metrics = m }
}

// WithClock overrides the clock used to decide grant expiry.
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) { e.now = now }
}

// WithLogger sets the logger used for failed lookups.
func WithLogger(l *slog.Logger) EvaluatorOption {
	return func(e *Evaluator) { e.logger = l }
}

// NewEvaluator creates an evaluator. grants may be nil, in which case only
// role permissions are considered.
func NewEvaluator(policy *Policy, roles RoleSource, grants GrantSource, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		policy: policy,
		roles:  roles,
		grants: grants,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HasPermission reports whether userID holds p, either through the role on
// their profile or through an unexpired grant.
func (e *Evaluator) HasPermission(ctx context.Context, p Permission, userID uuid.UUID) bool {
	if !p.Valid() {
		e.metrics.PermissionCheck("unknown", "unknown")
		return false
	}

	role, err := e.roles.RoleOf(ctx, userID)
	if err != nil {
		e.logger.Warn("Permission check could not resolve profile", "user_id", userID, "permission", p, "error", err)
		e.metrics.PermissionCheck(string(p), "error")
		return false
	}

	allowed, err := e.policy.Allows(role, p)
	if err != nil {
		e.logger.Warn("Permission check failed to evaluate role policy", "user_id", userID, "role", role, "permission", p, "error", err)
		e.metrics.PermissionCheck(string(p), "error")
		return false
	}
	if allowed {
		e.metrics.PermissionCheck(string(p), "role")
		return true
	}

	if e.grants == nil {
		e.metrics.PermissionCheck(string(p), "denied")
		return false
	}

	granted, err := e.grants.HasActiveGrant(ctx, userID, p, e.now())
	if err != nil {
		e.logger.Warn("Permission check failed to read grants", "user_id", userID, "permission", p, "error", err)
		e.metrics.PermissionCheck(string(p), "error")
		return false
	}
	if granted {
		e.metrics.PermissionCheck(string(p), "grant")
		return true
	}

	e.metrics.PermissionCheck(string(p), "denied")
	return false
}

// HasPermissionNamed is HasPermission for an untyped permission name.
// Unknown names are denied.
func (e *Evaluator) HasPermissionNamed(ctx context.Context, name string, userID uuid.UUID) bool {
	p, ok := ParsePermission(name)
	if !ok {
		e.metrics.PermissionCheck("unknown", "unknown")
		return false
	}
	return e.HasPermission(ctx, p, userID)
}

// Require returns ErrPermissionDenied unless userID holds p.
func (e *Evaluator) Require(ctx context.Context, p Permission, userID uuid.UUID) error {
	if !e.HasPermission(ctx, p, userID) {
		return ErrPermissionDenied
	}
	return nil
}

// EffectivePermissions lists everything userID currently holds, role
// permissions first, then grants not already covered by the role.
func (e *Evaluator) EffectivePermissions(ctx context.Context, userID uuid.UUID) ([]Permission, error) {
	role, err := e.roles.RoleOf(ctx, userID)
	if err != nil {
		return nil, err
	}

	perms := PermissionsFor(role)
	if e.grants == nil {
		return perms, nil
	}

	granted, err := e.grants.ActiveGrants(ctx, userID, e.now())
	if err != nil {
		return nil, err
	}

	seen := make(map[Permission]bool, len(perms))
	for _, p := range perms {
		seen[p] = true
	}
	for _, p := range granted {
		if p.Valid() && !seen[p] {
			perms = append(perms, p)
			seen[p] = true
		}
	}
	return perms, nil
}
