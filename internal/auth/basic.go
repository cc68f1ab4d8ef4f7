package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/voltclub/portal/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	// IdentityContextKey is the key used to store the caller's identity in Gin context
	IdentityContextKey = "identity"
	// SessionCookieName carries the session token for browser clients
	SessionCookieName = "portal_session"
	// TokenDuration is the validity period for session tokens
	TokenDuration = 24 * time.Hour
	// ConfirmationDuration is the validity period for email confirmation tokens
	ConfirmationDuration = 72 * time.Hour

	purposeConfirmEmail = "confirm_email"
	minPasswordLength   = 8
)

// BasicAuthenticator implements email/password authentication
type BasicAuthenticator struct {
	db          *gorm.DB
	jwtSecret   []byte
	autoConfirm bool
	now         func() time.Time
}

// NewBasicAuthenticator creates a new basic authenticator
func NewBasicAuthenticator(db *gorm.DB, jwtSecret string) *BasicAuthenticator {
	return &BasicAuthenticator{
		db:          db,
		jwtSecret:   []byte(jwtSecret),
		autoConfirm: true,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetAutoConfirm controls whether SignUp confirms the email address
// immediately or hands back a confirmation token.
func (a *BasicAuthenticator) SetAutoConfirm(enabled bool) {
	a.autoConfirm = enabled
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword checks if a password matches the hash
func VerifyPassword(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// NormalizeEmail trims and lower-cases an address and checks its basic shape.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 || strings.ContainsAny(email, " \t") {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// Claims represents JWT claims
type Claims struct {
	UserID  string `json:"user_id"` // UUID stored as string
	Email   string `json:"email"`
	Purpose string `json:"purpose,omitempty"` // empty for session tokens
	jwt.RegisteredClaims
}

// SignUp creates an email/password account. When auto-confirmation is off
// the returned token must be passed to ConfirmEmail before the account can
// log in; otherwise it is empty.
func (a *BasicAuthenticator) SignUp(ctx context.Context, email, password string, metadata models.AccountMetadata) (*Identity, string, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, "", err
	}
	if len(password) < minPasswordLength {
		return nil, "", ErrWeakPassword
	}

	var count int64
	if err := a.db.WithContext(ctx).Model(&models.Account{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, "", fmt.Errorf("database error: %w", err)
	}
	if count > 0 {
		return nil, "", ErrEmailTaken
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, "", err
	}

	account := models.Account{
		Email:        email,
		PasswordHash: hash,
		Provider:     models.ProviderEmail,
		Metadata:     metadata,
	}
	if a.autoConfirm {
		now := a.now()
		account.EmailConfirmedAt = &now
	}
	if err := a.db.WithContext(ctx).Create(&account).Error; err != nil {
		return nil, "", fmt.Errorf("failed to create account: %w", err)
	}

	var confirmToken string
	if !a.autoConfirm {
		confirmToken, err = a.signToken(&account, purposeConfirmEmail, ConfirmationDuration)
		if err != nil {
			return nil, "", fmt.Errorf("failed to generate confirmation token: %w", err)
		}
	}

	slog.Info("Account created", "user_id", account.ID, "email", account.Email, "confirmed", account.EmailConfirmed())
	return IdentityOf(&account), confirmToken, nil
}

// Login authenticates an account and returns a session token
func (a *BasicAuthenticator) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	var account models.Account
	result := a.db.WithContext(ctx).Where("email = ?", email).First(&account)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			slog.Warn("Login attempt with unknown email", "email", email)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("database error: %w", result.Error)
	}

	// OIDC accounts have no password
	if account.PasswordHash == "" || !VerifyPassword(account.PasswordHash, password) {
		slog.Warn("Login attempt with incorrect password", "email", email)
		return nil, ErrInvalidCredentials
	}

	if !account.EmailConfirmed() {
		return nil, ErrEmailNotConfirmed
	}

	return a.startSession(ctx, &account)
}

// ConfirmEmail marks the account named by a confirmation token as confirmed.
// Confirming twice is harmless.
func (a *BasicAuthenticator) ConfirmEmail(ctx context.Context, token string) (*Identity, error) {
	claims, err := a.parseToken(token)
	if err != nil || claims.Purpose != purposeConfirmEmail {
		return nil, ErrUnauthorized
	}

	account, err := a.loadAccount(ctx, claims)
	if err != nil {
		return nil, err
	}

	if !account.EmailConfirmed() {
		now := a.now()
		if err := a.db.WithContext(ctx).Model(account).Update("email_confirmed_at", now).Error; err != nil {
			return nil, fmt.Errorf("failed to confirm email: %w", err)
		}
		account.EmailConfirmedAt = &now
		slog.Info("Email confirmed", "user_id", account.ID)
	}

	return IdentityOf(account), nil
}

// Identity loads the current identity for userID.
func (a *BasicAuthenticator) Identity(ctx context.Context, userID uuid.UUID) (*Identity, error) {
	var account models.Account
	if err := a.db.WithContext(ctx).First(&account, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return IdentityOf(&account), nil
}

// startSession stamps the sign-in time and issues a session token.
func (a *BasicAuthenticator) startSession(ctx context.Context, account *models.Account) (*LoginResponse, error) {
	now := a.now()
	if err := a.db.WithContext(ctx).Model(account).Update("last_sign_in_at", now).Error; err != nil {
		slog.Warn("Failed to record sign-in time", "user_id", account.ID, "error", err)
	}

	token, err := a.signToken(account, "", TokenDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	slog.Info("User logged in successfully", "user_id", account.ID, "provider", account.Provider)
	return &LoginResponse{
		Token:    token,
		Identity: IdentityOf(account),
	}, nil
}

func (a *BasicAuthenticator) signToken(account *models.Account, purpose string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := Claims{
		UserID:  account.ID.String(),
		Email:   account.Email,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "portal",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

// parseToken validates a JWT and returns its claims
func (a *BasicAuthenticator) parseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	}, jwt.WithTimeFunc(a.now))

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrUnauthorized
}

func (a *BasicAuthenticator) loadAccount(ctx context.Context, claims *Claims) (*models.Account, error) {
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID in token: %w", err)
	}

	var account models.Account
	if result := a.db.WithContext(ctx).First(&account, "id = ?", userID); result.Error != nil {
		return nil, fmt.Errorf("account not found: %w", result.Error)
	}
	return &account, nil
}

// Authenticate validates a session token and returns the caller's identity.
func (a *BasicAuthenticator) Authenticate(ctx context.Context, tokenString string) (*Identity, error) {
	claims, err := a.parseToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != "" {
		return nil, ErrUnauthorized
	}

	account, err := a.loadAccount(ctx, claims)
	if err != nil {
		return nil, err
	}
	return IdentityOf(account), nil
}

// tokenFromRequest checks (in order): Bearer token header, ?token= query
// param, session cookie.
func tokenFromRequest(c *gin.Context) (string, error) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			return "", errors.New("invalid authorization header format")
		}
		return parts[1], nil
	}

	// Query parameter for EventSource/SSE clients
	if token := c.Query("token"); token != "" {
		return token, nil
	}

	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie != "" {
		return cookie, nil
	}

	return "", nil
}

// Middleware returns a Gin middleware that rejects unauthenticated requests.
func (a *BasicAuthenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := tokenFromRequest(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}
		if tokenString == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			c.Abort()
			return
		}

		identity, err := a.Authenticate(c.Request.Context(), tokenString)
		if err != nil {
			slog.Warn("Invalid token", "error", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(IdentityContextKey, identity)
		c.Next()
	}
}

// Optional returns a middleware that attaches the identity when a valid
// token is present and lets anonymous requests through.
func (a *BasicAuthenticator) Optional() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := tokenFromRequest(c)
		if err == nil && tokenString != "" {
			if identity, err := a.Authenticate(c.Request.Context(), tokenString); err == nil {
				c.Set(IdentityContextKey, identity)
			}
		}
		c.Next()
	}
}
