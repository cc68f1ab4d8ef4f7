package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/voltclub/portal/internal/audit"
	"github.com/voltclub/portal/internal/auth"
	"github.com/voltclub/portal/internal/models"
	"github.com/voltclub/portal/internal/rbac"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var usernameUnsafe = regexp.MustCompile(`[^a-z0-9_.-]+`)

// CreateDefaultAdmin creates an admin from ADMIN_EMAIL and ADMIN_PASSWORD
// when both are set and no admin profile exists yet.
func CreateDefaultAdmin(db *gorm.DB) error {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")

	if email == "" || password == "" {
		slog.Info("No ADMIN_EMAIL or ADMIN_PASSWORD set, skipping default admin creation")
		return nil
	}

	var count int64
	if err := db.Model(&models.Profile{}).Where("role = ?", rbac.RoleAdmin).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count admins: %w", err)
	}
	if count > 0 {
		slog.Info("Admin already exists, skipping default admin creation")
		return nil
	}

	profile, err := CreateAdmin(context.Background(), db, email, password, os.Getenv("ADMIN_NAME"))
	if err != nil {
		return err
	}

	slog.Info("Default admin created", "email", profile.Email, "username", profile.Username)
	return nil
}

// CreateAdmin creates a confirmed account with an active, completed admin
// profile. An existing account with the same email is promoted instead and
// its password is left untouched.
func CreateAdmin(ctx context.Context, db *gorm.DB, email, password, fullName string) (*models.Profile, error) {
	email, err := auth.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	var profile models.Profile
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()

		var account models.Account
		err := tx.Where("email = ?", email).First(&account).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if len(password) < 8 {
				return auth.ErrWeakPassword
			}
			hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}
			account = models.Account{
				Email:            email,
				PasswordHash:     string(hashed),
				Provider:         models.ProviderEmail,
				EmailConfirmedAt: &now,
				Metadata:         models.AccountMetadata{FullName: fullName},
			}
			if err := tx.Create(&account).Error; err != nil {
				return fmt.Errorf("failed to create admin account: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to look up account: %w", err)
		case account.EmailConfirmedAt == nil:
			if err := tx.Model(&account).Update("email_confirmed_at", now).Error; err != nil {
				return fmt.Errorf("failed to confirm admin email: %w", err)
			}
		}

		err = tx.First(&profile, "id = ?", account.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			username, err := adminUsername(tx, email, account)
			if err != nil {
				return err
			}
			name := fullName
			if name == "" {
				name = "Administrator"
			}
			profile = models.Profile{
				ID:       account.ID,
				Username: username,
				Email:    email,
				FullName: name,
			}
		} else if err != nil {
			return fmt.Errorf("failed to look up profile: %w", err)
		}

		profile.Role = rbac.RoleAdmin
		profile.Status = models.ProfileStatusActive
		profile.ProfileCompleted = true
		profile.EmailVerified = true
		if err := tx.Save(&profile).Error; err != nil {
			return fmt.Errorf("failed to save admin profile: %w", err)
		}

		return audit.LogAction(tx, account.ID, audit.ActionCreateAdmin, audit.Resource("profile", account.ID), map[string]interface{}{
			"email": email,
		})
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func adminUsername(tx *gorm.DB, email string, account models.Account) (string, error) {
	local, _, _ := strings.Cut(email, "@")
	base := strings.Trim(usernameUnsafe.ReplaceAllString(strings.ToLower(local), ""), "_.-")
	if len(base) < 3 {
		base = "admin"
	}
	if len(base) > 20 {
		base = base[:20]
	}

	var count int64
	if err := tx.Model(&models.Profile{}).Where("username = ?", base).Count(&count).Error; err != nil {
		return "", fmt.Errorf("failed to check username: %w", err)
	}
	if count == 0 {
		return base, nil
	}
	return base + "-" + account.ID.String()[:8], nil
}
