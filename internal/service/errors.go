package service

import (
	"errors"

	"github.com/voltclub/portal/internal/rbac"
	"github.com/voltclub/portal/internal/store"
)

// ErrNotFound indicates the requested resource was not found.
var ErrNotFound = store.ErrNotFound

// ErrPermissionDenied indicates the caller lacks the permission an operation requires.
var ErrPermissionDenied = rbac.ErrPermissionDenied

// ErrAccountBlocked is returned when a suspended or pending account signs in.
var ErrAccountBlocked = errors.New("account blocked")

// ValidationError represents a bad-request condition (HTTP 400).
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError represents a conflict condition (HTTP 409).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }
