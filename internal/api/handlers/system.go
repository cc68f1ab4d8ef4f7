package handlers

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Version is set via ldflags at build time
var Version = "dev"

// SystemHandler serves health and version information.
type SystemHandler struct {
	db         *gorm.DB
	instanceID string
}

// NewSystemHandler creates a SystemHandler.
func NewSystemHandler(db *gorm.DB, instanceID string) *SystemHandler {
	return &SystemHandler{db: db, instanceID: instanceID}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string `json:"status"`
	Database   string `json:"database"`
	InstanceID string `json:"instance_id"`
	Version    string `json:"version"`
}

// VersionResponse represents the version response
type VersionResponse struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// Health godoc
// @Summary Health check
// @Description Reports whether the server can reach its database
// @Tags system
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	resp := HealthResponse{Status: "ok", Database: "ok", InstanceID: h.instanceID, Version: Version}

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		resp.Status = "degraded"
		resp.Database = "unreachable"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetVersion godoc
// @Summary Get version information
// @Tags system
// @Produce json
// @Success 200 {object} VersionResponse
// @Router /version [get]
func (h *SystemHandler) GetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, VersionResponse{
		Version:   Version,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	})
}
