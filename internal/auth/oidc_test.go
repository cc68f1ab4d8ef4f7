package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voltclub/portal/internal/models"
)

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestFindOrCreateOIDCAccount_CreatesNew(t *testing.T) {
	db := setupTestDB(t)

	claims := &OIDCClaims{
		Sub:           "sub-123",
		Email:         "Grace@Example.com",
		EmailVerified: true,
		Name:          "Grace Hopper",
		Picture:       "https://example.com/grace.png",
	}

	account, err := findOrCreateOIDCAccount(context.Background(), db, claims, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if account.Email != "grace@example.com" {
		t.Errorf("expected normalized email, got %s", account.Email)
	}
	if account.Provider != models.ProviderOIDC || account.Subject != "sub-123" {
		t.Errorf("expected oidc account with subject, got %s/%s", account.Provider, account.Subject)
	}
	if !account.EmailConfirmed() {
		t.Error("expected verified email to confirm the account")
	}
	if account.Metadata.FullName != "Grace Hopper" || account.Metadata.AvatarURL != "https://example.com/grace.png" {
		t.Errorf("unexpected metadata %+v", account.Metadata)
	}
}

func TestFindOrCreateOIDCAccount_LinksExistingEmail(t *testing.T) {
	db := setupTestDB(t)

	existing := models.Account{Email: "heidi@example.com", PasswordHash: "x", Provider: models.ProviderEmail}
	if err := db.Create(&existing).Error; err != nil {
		t.Fatalf("failed to create account: %v", err)
	}

	claims := &OIDCClaims{Sub: "sub-heidi", Email: "heidi@example.com", EmailVerified: true, Picture: "https://example.com/h.png"}
	account, err := findOrCreateOIDCAccount(context.Background(), db, claims, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.ID != existing.ID {
		t.Fatalf("expected existing account %s, got %s", existing.ID, account.ID)
	}
	if account.Subject != "sub-heidi" {
		t.Errorf("expected subject to be linked, got %q", account.Subject)
	}
	if account.Metadata.AvatarURL != "https://example.com/h.png" {
		t.Errorf("expected avatar to be refreshed, got %q", account.Metadata.AvatarURL)
	}

	var count int64
	db.Model(&models.Account{}).Count(&count)
	if count != 1 {
		t.Errorf("expected 1 account, got %d", count)
	}
}

func TestFindOrCreateOIDCAccount_UnverifiedEmail(t *testing.T) {
	db := setupTestDB(t)

	claims := &OIDCClaims{Sub: "sub-ivan", Email: "ivan@example.com"}
	account, err := findOrCreateOIDCAccount(context.Background(), db, claims, fixedNow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.EmailConfirmed() {
		t.Error("expected unverified email to stay unconfirmed")
	}
}

func TestFindOrCreateOIDCAccount_MissingClaims(t *testing.T) {
	db := setupTestDB(t)

	if _, err := findOrCreateOIDCAccount(context.Background(), db, &OIDCClaims{Email: "x@example.com"}, fixedNow); err == nil {
		t.Error("expected error without subject")
	}
	if _, err := findOrCreateOIDCAccount(context.Background(), db, &OIDCClaims{Sub: "s"}, fixedNow); err == nil {
		t.Error("expected error without email")
	}
}

func TestFindOrCreateOIDCAccount_UnverifiedEmailDoesNotLink(t *testing.T) {
	db := setupTestDB(t)

	confirmed := fixedNow()
	existing := models.Account{Email: "chair@example.com", PasswordHash: "x", Provider: models.ProviderEmail, EmailConfirmedAt: &confirmed}
	if err := db.Create(&existing).Error; err != nil {
		t.Fatalf("failed to create account: %v", err)
	}

	claims := &OIDCClaims{Sub: "other-sub", Email: "chair@example.com", EmailVerified: false}
	if _, err := findOrCreateOIDCAccount(context.Background(), db, claims, fixedNow); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	var stored models.Account
	db.First(&stored, "id = ?", existing.ID)
	if stored.Subject != "" {
		t.Errorf("subject must stay unlinked, got %q", stored.Subject)
	}
}

func TestFindOrCreateOIDCAccount_SubjectIsStable(t *testing.T) {
	db := setupTestDB(t)

	existing := models.Account{Email: "judy@example.com", PasswordHash: "x", Provider: models.ProviderEmail}
	if err := db.Create(&existing).Error; err != nil {
		t.Fatalf("failed to create account: %v", err)
	}

	first := &OIDCClaims{Sub: "sub-judy", Email: "judy@example.com", EmailVerified: true}
	if _, err := findOrCreateOIDCAccount(context.Background(), db, first, fixedNow); err != nil {
		t.Fatalf("link: %v", err)
	}

	// Later logins match on the subject, even after the email changes upstream.
	moved := &OIDCClaims{Sub: "sub-judy", Email: "judy@new.example.com", EmailVerified: true}
	account, err := findOrCreateOIDCAccount(context.Background(), db, moved, fixedNow)
	if err != nil {
		t.Fatalf("relogin: %v", err)
	}
	if account.ID != existing.ID {
		t.Errorf("expected account %s by subject, got %s", existing.ID, account.ID)
	}

	second := &OIDCClaims{Sub: "sub-impostor", Email: "judy@example.com", EmailVerified: true}
	if _, err := findOrCreateOIDCAccount(context.Background(), db, second, fixedNow); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("a second subject must not claim the account, got %v", err)
	}
}
