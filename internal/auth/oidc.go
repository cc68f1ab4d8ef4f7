package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/voltclub/portal/internal/models"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// OIDCAuthenticator provides generic OIDC authentication
type OIDCAuthenticator struct {
	provider  *oidc.Provider
	config    *oauth2.Config
	verifier  *oidc.IDTokenVerifier
	db        *gorm.DB
	basicAuth *BasicAuthenticator
}

// OIDCConfig holds OIDC configuration
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// OIDCClaims are the ID token claims the portal reads.
type OIDCClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// NewOIDCAuthenticator creates a new OIDC authenticator. Session tokens are
// issued by basicAuth so both sign-in paths produce the same credentials.
func NewOIDCAuthenticator(ctx context.Context, cfg OIDCConfig, db *gorm.DB, basicAuth *BasicAuthenticator) (*OIDCAuthenticator, error) {
	// Discover OIDC provider configuration
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       scopes,
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: cfg.ClientID,
	})

	return &OIDCAuthenticator{
		provider:  provider,
		config:    oauth2Config,
		verifier:  verifier,
		db:        db,
		basicAuth: basicAuth,
	}, nil
}

// GetAuthURL returns the URL to redirect users to for authentication
func (a *OIDCAuthenticator) GetAuthURL(state string) string {
	return a.config.AuthCodeURL(state)
}

// HandleCallback exchanges the authorization code and signs the caller in.
func (a *OIDCAuthenticator) HandleCallback(ctx context.Context, code string) (*LoginResponse, error) {
	oauth2Token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	rawIDToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("no id_token in token response")
	}

	idToken, err := a.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims OIDCClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	account, err := findOrCreateOIDCAccount(ctx, a.db, &claims, a.basicAuth.now)
	if err != nil {
		return nil, fmt.Errorf("failed to find or create account: %w", err)
	}

	return a.basicAuth.startSession(ctx, account)
}

// findOrCreateOIDCAccount resolves an account by subject, then by email, and
// creates one when neither matches. An existing account is linked to the
// subject only when the provider vouches for the email and the account has
// no other subject. Name and picture claims refresh the account metadata.
func findOrCreateOIDCAccount(ctx context.Context, db *gorm.DB, claims *OIDCClaims, now func() time.Time) (*models.Account, error) {
	if claims.Sub == "" {
		return nil, errors.New("ID token has no subject")
	}
	email, err := NormalizeEmail(claims.Email)
	if err != nil {
		return nil, fmt.Errorf("ID token email: %w", err)
	}

	var account models.Account
	result := db.WithContext(ctx).Where("subject = ?", claims.Sub).First(&account)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		result = db.WithContext(ctx).Where("email = ?", email).First(&account)
		if result.Error == nil {
			if !claims.EmailVerified {
				slog.Warn("Refusing OIDC link with unverified email", "user_id", account.ID, "subject", claims.Sub)
				return nil, ErrEmailTaken
			}
			if account.Subject != "" && account.Subject != claims.Sub {
				slog.Warn("Refusing OIDC link to account bound to another subject", "user_id", account.ID, "subject", claims.Sub)
				return nil, ErrEmailTaken
			}
		}
	}
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", result.Error)
	}

	if result.Error == nil {
		changed := false
		if account.Subject == "" {
			account.Subject = claims.Sub
			changed = true
		}
		if claims.EmailVerified && !account.EmailConfirmed() {
			t := now()
			account.EmailConfirmedAt = &t
			changed = true
		}
		if claims.Name != "" && claims.Name != account.Metadata.FullName {
			account.Metadata.FullName = claims.Name
			changed = true
		}
		if claims.Picture != "" && claims.Picture != account.Metadata.AvatarURL {
			account.Metadata.AvatarURL = claims.Picture
			changed = true
		}
		if changed {
			if err := db.WithContext(ctx).Save(&account).Error; err != nil {
				return nil, fmt.Errorf("failed to update account: %w", err)
			}
		}
		return &account, nil
	}

	account = models.Account{
		Email:    email,
		Provider: models.ProviderOIDC,
		Subject:  claims.Sub,
		Metadata: models.AccountMetadata{FullName: claims.Name, AvatarURL: claims.Picture},
	}
	if claims.EmailVerified {
		t := now()
		account.EmailConfirmedAt = &t
	}
	if err := db.WithContext(ctx).Create(&account).Error; err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	slog.Info("Created new account from OIDC", "user_id", account.ID, "email", email)
	return &account, nil
}
