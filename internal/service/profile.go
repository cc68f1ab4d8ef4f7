package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/voltclub/portal/internal/audit"
	"github.com/voltclub/portal/internal/auth"
	"github.com/voltclub/portal/internal/models"
	"github.com/voltclub/portal/internal/notify"
	"github.com/voltclub/portal/internal/rbac"
	"github.com/voltclub/portal/internal/store"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var usernamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{2,29}$`)

// ProfileService contains the business logic for member profiles.
type ProfileService struct {
	db        *gorm.DB
	evaluator *rbac.Evaluator
	notifier  *notify.Notifier
}

// NewProfileService creates a new ProfileService.
func NewProfileService(db *gorm.DB, evaluator *rbac.Evaluator, notifier *notify.Notifier) *ProfileService {
	return &ProfileService{db: db, evaluator: evaluator, notifier: notifier}
}

// Get returns the profile of userID.
func (s *ProfileService) Get(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	return store.NewProfiles(s.db).Get(ctx, userID)
}

// CreateOrUpdateProfile upserts the caller's profile. Username, full name
// and avatar fall back to identity-derived defaults only when neither the
// update nor the stored row provides them. email_verified always follows
// the identity.
func (s *ProfileService) CreateOrUpdateProfile(ctx context.Context, identity *auth.Identity, upd ProfileUpdate) (*models.Profile, error) {
	return s.upsert(ctx, identity, upd, false)
}

// CompleteProfile applies upd and marks the profile complete. A complete
// profile has a username, a full name and a department. Nothing is stored
// when a required field is missing.
func (s *ProfileService) CompleteProfile(ctx context.Context, identity *auth.Identity, upd ProfileUpdate) (*models.Profile, error) {
	return s.upsert(ctx, identity, upd, true)
}

func (s *ProfileService) upsert(ctx context.Context, identity *auth.Identity, upd ProfileUpdate, complete bool) (*models.Profile, error) {
	if identity == nil || identity.UserID == uuid.Nil {
		return nil, auth.ErrUnauthorized
	}

	var saved models.Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profiles := store.NewProfiles(tx)

		before, p, created, err := mergeProfile(ctx, profiles, identity, upd)
		if err != nil {
			return err
		}
		if complete {
			if err := requireComplete(&p); err != nil {
				return err
			}
			p.ProfileCompleted = true
		}

		if created {
			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoNothing: true,
			}).Create(&p)
			if result.Error != nil {
				return fmt.Errorf("save profile: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				// A concurrent first sign-in inserted the row; update it instead.
				before, p, created, err = mergeProfile(ctx, profiles, identity, upd)
				if err != nil {
					return err
				}
				if created {
					return fmt.Errorf("save profile: row for %s vanished", identity.UserID)
				}
				if complete {
					if err := requireComplete(&p); err != nil {
						return err
					}
					p.ProfileCompleted = true
				}
			}
		}
		if !created {
			if err := tx.Save(&p).Error; err != nil {
				return fmt.Errorf("save profile: %w", err)
			}
		}

		changed := changedFields(&before, &p)
		if created {
			changed = nil
		}
		details := map[string]interface{}{"created": created, "changed_fields": changed}
		if err := audit.LogAction(tx, identity.UserID, audit.ActionUpdateProfile, audit.Resource("profile", p.ID), details); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		if complete && !before.ProfileCompleted {
			if err := audit.LogAction(tx, p.ID, audit.ActionCompleteProfile, audit.Resource("profile", p.ID), nil); err != nil {
				return fmt.Errorf("audit: %w", err)
			}
		}

		saved = p
		return nil
	})
	if err != nil {
		slog.Warn("Profile upsert failed", "user_id", identity.UserID, "complete", complete, "error", err)
		return nil, err
	}
	return &saved, nil
}

// mergeProfile loads the stored profile (or a fresh default) and applies upd
// and the identity-derived defaults to a copy. before is the stored state.
func mergeProfile(ctx context.Context, profiles *store.Profiles, identity *auth.Identity, upd ProfileUpdate) (before, p models.Profile, created bool, err error) {
	existing, err := profiles.Get(ctx, identity.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return before, p, false, err
	}
	created = existing == nil

	if created {
		before = models.Profile{
			ID:     identity.UserID,
			Role:   rbac.RoleMember,
			Status: models.ProfileStatusActive,
		}
	} else {
		before = *existing
	}
	p = before

	if err := applyUpdate(&p, upd); err != nil {
		return before, p, created, err
	}
	if p.Username != before.Username || created {
		if err := ensureUsername(ctx, profiles, &p, identity.Email); err != nil {
			return before, p, created, err
		}
	}
	if p.FullName == "" {
		p.FullName = defaultFullName(identity)
	}
	if p.AvatarURL == "" {
		p.AvatarURL = identity.Metadata.AvatarURL
	}
	p.Email = identity.Email
	p.EmailVerified = identity.EmailConfirmed
	return before, p, created, nil
}

func requireComplete(p *models.Profile) error {
	var missing []string
	if strings.TrimSpace(p.FullName) == "" {
		missing = append(missing, "full_name")
	}
	if strings.TrimSpace(p.Department) == "" {
		missing = append(missing, "department")
	}
	if len(missing) > 0 {
		return &ValidationError{Message: "missing required fields: " + strings.Join(missing, ", ")}
	}
	return nil
}

// SetRole changes a member's role. The actor needs edit_user_roles and
// cannot change their own role.
func (s *ProfileService) SetRole(ctx context.Context, actorID, userID uuid.UUID, role rbac.Role) (*models.Profile, error) {
	if err := s.evaluator.Require(ctx, rbac.EditUserRoles, actorID); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, &ValidationError{Message: fmt.Sprintf("unknown role %q", role)}
	}
	if actorID == userID {
		return nil, &ValidationError{Message: "you cannot change your own role"}
	}

	var previous rbac.Role
	p, err := s.updateProfile(ctx, userID, func(tx *gorm.DB, p *models.Profile) error {
		previous = p.Role
		if previous == role {
			return nil
		}
		if err := tx.Model(p).Update("role", role).Error; err != nil {
			return err
		}
		p.Role = role
		return audit.LogAction(tx, actorID, audit.ActionChangeRole, audit.Resource("profile", userID),
			map[string]interface{}{"from": previous, "to": role})
	})
	if err != nil {
		return nil, err
	}

	if previous != role {
		slog.Info("Role changed", "user_id", userID, "from", previous, "to", role, "by", actorID)
		s.notifier.Send(ctx, userID, models.NotificationInfo, "Your role has changed",
			fmt.Sprintf("An administrator changed your role from %s to %s.", previous, role), "/dashboard")
	}
	return p, nil
}

// SetStatus changes a member's account status. The actor needs
// suspend_users and cannot change their own status.
func (s *ProfileService) SetStatus(ctx context.Context, actorID, userID uuid.UUID, status models.ProfileStatus) (*models.Profile, error) {
	if err := s.evaluator.Require(ctx, rbac.SuspendUsers, actorID); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, &ValidationError{Message: fmt.Sprintf("unknown status %q", status)}
	}
	if actorID == userID {
		return nil, &ValidationError{Message: "you cannot change your own status"}
	}

	var previous models.ProfileStatus
	p, err := s.updateProfile(ctx, userID, func(tx *gorm.DB, p *models.Profile) error {
		previous = p.Status
		if previous == status {
			return nil
		}
		if err := tx.Model(p).Update("status", status).Error; err != nil {
			return err
		}
		p.Status = status
		return audit.LogAction(tx, actorID, audit.ActionChangeStatus, audit.Resource("profile", userID),
			map[string]interface{}{"from": previous, "to": status})
	})
	if err != nil {
		return nil, err
	}

	if previous != status {
		slog.Info("Account status changed", "user_id", userID, "from", previous, "to", status, "by", actorID)
		if status == models.ProfileStatusActive {
			s.notifier.Send(ctx, userID, models.NotificationSuccess, "Account reactivated", "Your account is active again.", "/dashboard")
		}
	}
	return p, nil
}

// ListProfiles returns profiles matching f. The actor needs manage_users.
func (s *ProfileService) ListProfiles(ctx context.Context, actorID uuid.UUID, f ProfileFilter) ([]models.Profile, error) {
	if err := s.evaluator.Require(ctx, rbac.ManageUsers, actorID); err != nil {
		return nil, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := s.db.WithContext(ctx).Model(&models.Profile{})
	if f.Role != "" {
		if !f.Role.Valid() {
			return nil, &ValidationError{Message: fmt.Sprintf("unknown role %q", f.Role)}
		}
		query = query.Where("role = ?", f.Role)
	}
	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, &ValidationError{Message: fmt.Sprintf("unknown status %q", f.Status)}
		}
		query = query.Where("status = ?", f.Status)
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(full_name) LIKE ? OR LOWER(email) LIKE ?", like, like, like)
	}

	var profiles []models.Profile
	if err := query.Order("created_at DESC").Limit(limit).Offset(f.Offset).Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

// updateProfile loads userID's profile inside a transaction and runs fn on it.
func (s *ProfileService) updateProfile(ctx context.Context, userID uuid.UUID, fn func(tx *gorm.DB, p *models.Profile) error) (*models.Profile, error) {
	var p *models.Profile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		p, err = store.NewProfiles(tx).Get(ctx, userID)
		if err != nil {
			return err
		}
		return fn(tx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func applyUpdate(p *models.Profile, upd ProfileUpdate) error {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	if upd.Username != nil {
		username := strings.ToLower(strings.TrimSpace(*upd.Username))
		if username != "" && !usernamePattern.MatchString(username) {
			return &ValidationError{Message: "username must be 3-30 characters of lowercase letters, digits, '.', '_' or '-'"}
		}
		p.Username = username
	}
	set(&p.FullName, upd.FullName)
	set(&p.AvatarURL, upd.AvatarURL)
	set(&p.Bio, upd.Bio)
	set(&p.Department, upd.Department)
	set(&p.GithubURL, upd.GithubURL)
	set(&p.LinkedinURL, upd.LinkedinURL)
	set(&p.WebsiteURL, upd.WebsiteURL)
	if upd.YearOfStudy != nil {
		if *upd.YearOfStudy < 0 || *upd.YearOfStudy > 10 {
			return &ValidationError{Message: "year_of_study must be between 0 and 10"}
		}
		p.YearOfStudy = *upd.YearOfStudy
	}
	return nil
}

// ensureUsername keeps an explicitly chosen username unique and derives one
// from the email local-part when none is set.
func ensureUsername(ctx context.Context, profiles *store.Profiles, p *models.Profile, email string) error {
	if p.Username != "" {
		taken, err := profiles.UsernameTaken(ctx, p.Username, p.ID)
		if err != nil {
			return err
		}
		if taken {
			return &ConflictError{Message: fmt.Sprintf("username %q is already taken", p.Username)}
		}
		return nil
	}

	base := usernameBase(email)
	for i := 0; i < 100; i++ {
		candidate := base
		if i > 0 {
			candidate = base + strconv.Itoa(i)
		}
		taken, err := profiles.UsernameTaken(ctx, candidate, p.ID)
		if err != nil {
			return err
		}
		if !taken {
			p.Username = candidate
			return nil
		}
	}
	p.Username = base + "-" + p.ID.String()[:8]
	return nil
}

// usernameBase turns an email local-part into a valid username stem.
func usernameBase(email string) string {
	local, _, _ := strings.Cut(strings.ToLower(email), "@")

	var b strings.Builder
	for _, r := range local {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	base := strings.Trim(b.String(), "._-")
	for len(base) < 3 {
		base += "0"
	}
	if len(base) > 24 {
		base = base[:24]
	}
	return base
}

// defaultFullName prefers the provider's name and otherwise title-cases the
// email local-part, so "ada.lovelace@example.com" becomes "Ada Lovelace".
func defaultFullName(identity *auth.Identity) string {
	if name := strings.TrimSpace(identity.Metadata.FullName); name != "" {
		return name
	}
	local, _, _ := strings.Cut(identity.Email, "@")
	words := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// changedFields lists the JSON names of the caller-visible fields that differ.
func changedFields(before, after *models.Profile) []string {
	var changed []string
	check := func(name string, differ bool) {
		if differ {
			changed = append(changed, name)
		}
	}
	check("username", before.Username != after.Username)
	check("email", before.Email != after.Email)
	check("full_name", before.FullName != after.FullName)
	check("avatar_url", before.AvatarURL != after.AvatarURL)
	check("email_verified", before.EmailVerified != after.EmailVerified)
	check("bio", before.Bio != after.Bio)
	check("department", before.Department != after.Department)
	check("year_of_study", before.YearOfStudy != after.YearOfStudy)
	check("github_url", before.GithubURL != after.GithubURL)
	check("linkedin_url", before.LinkedinURL != after.LinkedinURL)
	check("website_url", before.WebsiteURL != after.WebsiteURL)
	return changed
}
