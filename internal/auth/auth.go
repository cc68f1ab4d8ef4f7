// Package auth is the portal's identity provider: email/password accounts,
// OIDC sign-in and the session tokens both of them issue.
package auth

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/voltclub/portal/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrEmailTaken         = errors.New("email already registered")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

// Identity is what the identity provider knows about an authenticated caller.
type Identity struct {
	UserID         uuid.UUID              `json:"id"`
	Email          string                 `json:"email"`
	EmailConfirmed bool                   `json:"email_confirmed"`
	Metadata       models.AccountMetadata `json:"metadata"`
}

// IdentityOf builds the Identity for an account.
func IdentityOf(a *models.Account) *Identity {
	return &Identity{
		UserID:         a.ID,
		Email:          a.Email,
		EmailConfirmed: a.EmailConfirmed(),
		Metadata:       a.Metadata,
	}
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Token    string    `json:"token"`
	Identity *Identity `json:"user"`
}

// IdentityFromContext extracts the authenticated identity from the Gin context
func IdentityFromContext(c *gin.Context) (*Identity, error) {
	value, exists := c.Get(IdentityContextKey)
	if !exists {
		return nil, ErrUnauthorized
	}

	identity, ok := value.(*Identity)
	if !ok {
		return nil, errors.New("invalid identity in context")
	}

	return identity, nil
}

// UserIDFromContext returns the authenticated user's ID, or uuid.Nil.
func UserIDFromContext(c *gin.Context) uuid.UUID {
	identity, err := IdentityFromContext(c)
	if err != nil {
		return uuid.Nil
	}
	return identity.UserID
}
