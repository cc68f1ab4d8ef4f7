package api

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/voltclub/portal/internal/api/handlers"
	"github.com/voltclub/portal/internal/api/middleware"
	"github.com/voltclub/portal/internal/auth"
	"github.com/voltclub/portal/internal/config"
	"github.com/voltclub/portal/internal/metrics"
	"github.com/voltclub/portal/internal/notify"
	"github.com/voltclub/portal/internal/rbac"
	"github.com/voltclub/portal/internal/service"
	"github.com/voltclub/portal/internal/store"
	"gorm.io/gorm"
)

// Deps are the components the router serves. OIDC is nil when OIDC sign-in
// is not configured; Metrics may be nil.
type Deps struct {
	Config       *config.Config
	DB           *gorm.DB
	Auth         *auth.BasicAuthenticator
	OIDC         *auth.OIDCAuthenticator
	Evaluator    *rbac.Evaluator
	Profiles     *service.ProfileService
	RoleRequests *service.RoleRequestService
	Permissions  *service.PermissionService
	Registration *service.Registration
	Notifier     *notify.Notifier
	Broker       *notify.Broker
	Metrics      *metrics.Metrics
	InstanceID   string
}

// NewRouter creates and configures the Gin router
func NewRouter(d Deps) *gin.Engine {
	cfg := d.Config
	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	secure := cfg.Server.Mode == "production"

	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware())
	router.Use(corsMiddleware(cfg.Server.CORSOrigins))
	if cfg.Metrics.Enabled && d.Metrics != nil {
		router.Use(d.Metrics.GinMiddleware())
		router.GET(cfg.Metrics.Path, gin.WrapH(d.Metrics.Handler()))
	}

	// Initialize handlers
	systemHandler := handlers.NewSystemHandler(d.DB, d.InstanceID)
	authHandler := handlers.NewAuthHandler(d.Registration, d.Profiles, d.Permissions, secure)
	profileHandler := handlers.NewProfileHandler(d.Profiles, d.Permissions, d.Registration)
	requestHandler := handlers.NewRoleRequestHandler(d.RoleRequests, d.Registration)
	adminHandler := handlers.NewAdminHandler(d.DB, d.Profiles, d.Permissions)
	notificationHandler := handlers.NewNotificationHandler(d.Notifier, d.Broker)
	dashboardHandler := handlers.NewDashboardHandler(d.Profiles, d.Permissions, d.RoleRequests, d.Notifier)

	requireActive := middleware.RequireActiveProfile(store.NewProfiles(d.DB))
	requirePerm := func(p rbac.Permission) gin.HandlerFunc {
		return middleware.RequirePermission(d.Evaluator, p)
	}

	// Public routes
	public := router.Group("/api/v1")
	{
		public.GET("/health", systemHandler.Health)
		public.GET("/version", systemHandler.GetVersion)
		public.POST("/auth/register", authHandler.Register)
		public.POST("/auth/login", authHandler.Login)
		public.POST("/auth/logout", authHandler.Logout)
		public.GET("/auth/confirm", authHandler.ConfirmEmail)

		if d.OIDC != nil {
			oidcHandler := handlers.NewOIDCHandler(d.OIDC, d.Registration, secure)
			public.GET("/auth/oidc/login", oidcHandler.Login)
			public.GET("/auth/oidc/callback", oidcHandler.Callback)
		}
	}

	// Protected routes (require authentication)
	protected := router.Group("/api/v1")
	protected.Use(d.Auth.Middleware())
	{
		protected.GET("/auth/me", authHandler.Me)
		protected.GET("/auth/route", authHandler.Route)

		// Profile endpoints
		protected.GET("/profile", profileHandler.GetProfile)
		protected.PUT("/profile", profileHandler.UpdateProfile)
		protected.POST("/profile/complete", profileHandler.CompleteProfile)
		protected.GET("/permissions", profileHandler.GetPermissions)

		// Role request endpoints
		protected.POST("/role-requests", requireActive, requestHandler.Create)
		protected.GET("/role-requests/mine", requestHandler.ListMine)
		protected.GET("/role-requests/:id", requestHandler.Get)

		// Notification endpoints
		protected.GET("/notifications", notificationHandler.List)
		protected.GET("/notifications/stream", notificationHandler.Stream)
		protected.POST("/notifications/read-all", notificationHandler.MarkAllRead)
		protected.POST("/notifications/:id/read", notificationHandler.MarkRead)
		protected.DELETE("/notifications/:id", notificationHandler.Dismiss)

		// Dashboard summaries
		dashboard := protected.Group("/dashboard", requireActive)
		for _, role := range rbac.Roles() {
			dashboard.GET("/"+string(role), middleware.RequireMinimumRole(role), dashboardHandler.Summary(role))
		}

		// Admin endpoints
		admin := protected.Group("/admin", requireActive)
		{
			admin.GET("/role-requests", requirePerm(rbac.EditUserRoles), requestHandler.List)
			admin.POST("/role-requests/:id/approve", requirePerm(rbac.EditUserRoles), requestHandler.Approve)
			admin.POST("/role-requests/:id/reject", requirePerm(rbac.EditUserRoles), requestHandler.Reject)

			admin.GET("/users", requirePerm(rbac.ManageUsers), adminHandler.ListUsers)
			admin.PUT("/users/:id/role", requirePerm(rbac.EditUserRoles), adminHandler.SetRole)
			admin.PUT("/users/:id/status", requirePerm(rbac.SuspendUsers), adminHandler.SetStatus)
			admin.GET("/users/:id/permissions", requirePerm(rbac.ManagePermissions), adminHandler.ListGrants)
			admin.POST("/users/:id/permissions", requirePerm(rbac.ManagePermissions), adminHandler.GrantPermission)
			admin.DELETE("/users/:id/permissions", requirePerm(rbac.ManagePermissions), adminHandler.RevokePermission)

			admin.GET("/audit-logs", requirePerm(rbac.ViewAuditLogs), adminHandler.ListAuditLogs)
		}
	}

	// Browser entry points; anonymous callers are redirected to the login page
	pages := router.Group("/dashboard", d.Auth.Optional())
	{
		pages.GET("", dashboardHandler.Enter)
		pages.GET("/:section", dashboardHandler.Page)
	}

	// Swagger documentation
	router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	slog.Info("API router initialized", "mode", cfg.Server.Mode, "oidc", d.OIDC != nil)
	return router
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		slog.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"ip", c.ClientIP(),
		)
	}
}

// corsMiddleware adds CORS headers for allowed origins. "*" allows any origin.
func corsMiddleware(origins []string) gin.HandlerFunc {
	allowAny := slices.Contains(origins, "*")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAny || slices.Contains(origins, origin)) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Writer.Header().Add("Vary", "Origin")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
