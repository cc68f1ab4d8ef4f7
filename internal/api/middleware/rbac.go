package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/voltclub/portal/internal/auth"
	"github.com/voltclub/portal/internal/models"
	"github.com/voltclub/portal/internal/rbac"
	"github.com/voltclub/portal/internal/store"
)

// ProfileContextKey holds the caller's *models.Profile once RequireActiveProfile has run.
const ProfileContextKey = "profile"

// ProfileFromContext returns the profile loaded by RequireActiveProfile.
func ProfileFromContext(c *gin.Context) *models.Profile {
	v, ok := c.Get(ProfileContextKey)
	if !ok {
		return nil
	}
	p, _ := v.(*models.Profile)
	return p
}

// RequireActiveProfile loads the caller's profile and rejects callers with no
// profile or a status other than active. It must run after the auth middleware.
func RequireActiveProfile(profiles *store.Profiles) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := auth.IdentityFromContext(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		profile, err := profiles.Get(c.Request.Context(), identity.UserID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusForbidden, gin.H{"error": "Profile required"})
			} else {
				slog.Error("Failed to load profile", "user_id", identity.UserID, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load profile"})
			}
			c.Abort()
			return
		}

		if profile.Status != models.ProfileStatusActive {
			c.JSON(http.StatusForbidden, gin.H{"error": "Account is " + string(profile.Status)})
			c.Abort()
			return
		}

		c.Set(ProfileContextKey, profile)
		c.Next()
	}
}

// RequirePermission rejects callers that do not hold p through their role
// or an active grant.
func RequirePermission(evaluator *rbac.Evaluator, p rbac.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := auth.UserIDFromContext(c)
		if !evaluator.HasPermission(c.Request.Context(), p, userID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Permission required: " + string(p)})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireMinimumRole rejects callers whose role ranks below minimum. It reads
// the profile loaded by RequireActiveProfile.
func RequireMinimumRole(minimum rbac.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		profile := ProfileFromContext(c)
		if profile == nil || !rbac.HasMinimumRole(profile.Role, minimum) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Role " + string(minimum) + " or higher required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
