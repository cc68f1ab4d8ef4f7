package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Account is an identity record. It answers who a caller is; role and status
// live on the Profile with the same ID.
type Account struct {
	ID               uuid.UUID       `gorm:"type:text;primary_key" json:"id"`
	Email            string          `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash     string          `json:"-"` // empty for OIDC accounts
	Provider         string          `gorm:"not null;default:'email'" json:"provider"`
	Subject          string          `gorm:"index" json:"-"` // OIDC "sub" claim
	EmailConfirmedAt *time.Time      `json:"email_confirmed_at,omitempty"`
	Metadata         AccountMetadata `gorm:"type:text;serializer:json" json:"metadata"`
	LastSignInAt     *time.Time      `json:"last_sign_in_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// AccountMetadata is what the identity provider knows about the person
// behind an account, e.g. from OAuth claims or the sign-up form.
type AccountMetadata struct {
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Account providers
const (
	ProviderEmail = "email"
	ProviderOIDC  = "oidc"
)

// EmailConfirmed reports whether the account's email address has been confirmed.
func (a *Account) EmailConfirmed() bool {
	return a.EmailConfirmedAt != nil
}

// BeforeCreate hook to generate UUID
func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
