package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/voltclub/portal/internal/auth"
	"github.com/voltclub/portal/internal/service"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse represents a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

// statusFor maps service and auth errors to HTTP status codes.
func statusFor(err error) int {
	var validationErr *service.ValidationError
	var conflictErr *service.ConflictError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validationErr),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword):
		return http.StatusBadRequest
	case errors.As(err, &conflictErr), errors.Is(err, auth.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrPermissionDenied),
		errors.Is(err, service.ErrAccountBlocked),
		errors.Is(err, auth.ErrEmailNotConfirmed):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// respondError writes err as an ErrorResponse. Internal errors are logged
// and replaced with a generic message.
func respondError(c *gin.Context, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(fallback, "path", c.FullPath(), "error", err)
		c.JSON(status, ErrorResponse{Error: fallback})
		return
	}
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

// respondResult writes an action result with the status its error implies.
func respondResult(c *gin.Context, successStatus int, result interface{}, err error) {
	if err != nil {
		c.JSON(statusFor(err), result)
		return
	}
	c.JSON(successStatus, result)
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}

// identity returns the authenticated caller. The auth middleware guarantees
// it is present on protected routes.
func identity(c *gin.Context) *auth.Identity {
	id, err := auth.IdentityFromContext(c)
	if err != nil {
		return nil
	}
	return id
}
