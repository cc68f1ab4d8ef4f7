package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/voltclub/portal/internal/audit"
	"github.com/voltclub/portal/internal/metrics"
	"github.com/voltclub/portal/internal/models"
	"github.com/voltclub/portal/internal/notify"
	"github.com/voltclub/portal/internal/rbac"
	"github.com/voltclub/portal/internal/store"
	"gorm.io/gorm"
)

const (
	maxReasonLength    = 2000
	maxSupportingDocs  = 5
	reviewQueuePath    = "/admin/role-requests"
	myRoleRequestsPath = "/profile/role-requests"
)

// RoleRequestService runs the role elevation workflow: a member asks for a
// role and a reviewer holding edit_user_roles resolves the request once.
type RoleRequestService struct {
	db        *gorm.DB
	evaluator *rbac.Evaluator
	notifier  *notify.Notifier
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewRoleRequestService creates a new RoleRequestService.
func NewRoleRequestService(db *gorm.DB, evaluator *rbac.Evaluator, notifier *notify.Notifier, m *metrics.Metrics) *RoleRequestService {
	return &RoleRequestService{
		db:        db,
		evaluator: evaluator,
		notifier:  notifier,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create files a pending request for userID. The request records the
// member's current role and must name a role above it.
func (s *RoleRequestService) Create(ctx context.Context, userID uuid.UUID, req CreateRoleRequest) (*models.RoleRequest, error) {
	if _, ok := rbac.ParseRequestableRole(string(req.RequestedRole)); !ok {
		return nil, &ValidationError{Message: "requested role must be 'alumni' or 'moderator'"}
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, &ValidationError{Message: "a reason is required"}
	}
	if len(reason) > maxReasonLength {
		return nil, &ValidationError{Message: fmt.Sprintf("reason must be at most %d characters", maxReasonLength)}
	}
	var docs []string
	for _, d := range req.SupportingDocuments {
		if d = strings.TrimSpace(d); d != "" {
			docs = append(docs, d)
		}
	}
	if len(docs) > maxSupportingDocs {
		return nil, &ValidationError{Message: fmt.Sprintf("at most %d supporting documents are allowed", maxSupportingDocs)}
	}

	requested := req.RequestedRole.Role()
	var rr models.RoleRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profile, err := store.NewProfiles(tx).Get(ctx, userID)
		if err != nil {
			return err
		}
		if rbac.HasMinimumRole(profile.Role, requested) {
			return &ValidationError{Message: fmt.Sprintf("you already hold the %s role or higher", requested)}
		}

		var pending int64
		if err := tx.Model(&models.RoleRequest{}).
			Where("user_id = ? AND status = ?", userID, models.RoleRequestPending).
			Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return &ConflictError{Message: "you already have a pending role request"}
		}

		rr = models.RoleRequest{
			UserID:              userID,
			CurrentRole:         profile.Role,
			RequestedRole:       requested,
			Reason:              reason,
			SupportingDocuments: docs,
			Status:              models.RoleRequestPending,
		}
		if err := tx.Create(&rr).Error; err != nil {
			return fmt.Errorf("create role request: %w", err)
		}

		return audit.LogAction(tx, userID, audit.ActionRequestRole, audit.Resource("role_request", rr.ID),
			map[string]interface{}{"current_role": rr.CurrentRole, "requested_role": requested})
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Role request created", "request_id", rr.ID, "user_id", userID, "requested_role", requested)
	s.metrics.RoleRequest(string(requested), string(models.RoleRequestPending))

	s.notifier.Send(ctx, userID, models.NotificationInfo, "Role request submitted",
		fmt.Sprintf("Your request to become %s has been submitted for review.", requested), myRoleRequestsPath)
	s.notifyReviewers(ctx, userID, &rr)

	return &rr, nil
}

// notifyReviewers tells everyone who can resolve the request that it exists.
func (s *RoleRequestService) notifyReviewers(ctx context.Context, requesterID uuid.UUID, rr *models.RoleRequest) {
	reviewers, err := store.NewProfiles(s.db).WithPermission(ctx, rbac.EditUserRoles)
	if err != nil {
		slog.Warn("Failed to look up reviewers", "request_id", rr.ID, "error", err)
		return
	}
	for _, reviewer := range reviewers {
		if reviewer.ID == requesterID {
			continue
		}
		s.notifier.Send(ctx, reviewer.ID, models.NotificationInfo, "New role request",
			fmt.Sprintf("A member has requested the %s role.", rr.RequestedRole), reviewQueuePath)
	}
}

// Approve resolves a pending request and applies the requested role in one
// transaction. Resolving a request that is no longer pending is a conflict.
func (s *RoleRequestService) Approve(ctx context.Context, reviewerID, requestID uuid.UUID, notes string) (*models.RoleRequest, error) {
	rr, err := s.resolve(ctx, reviewerID, requestID, models.RoleRequestApproved, notes, func(tx *gorm.DB, rr *models.RoleRequest) error {
		result := tx.Model(&models.Profile{}).Where("id = ?", rr.UserID).Update("role", rr.RequestedRole)
		if result.Error != nil {
			return fmt.Errorf("apply role: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("apply role: profile %s: %w", rr.UserID, ErrNotFound)
		}
		return audit.LogAction(tx, reviewerID, audit.ActionApproveRoleRequest, audit.Resource("role_request", rr.ID),
			map[string]interface{}{"user_id": rr.UserID, "from": rr.CurrentRole, "to": rr.RequestedRole})
	})
	if err != nil {
		return nil, err
	}

	message := fmt.Sprintf("Your request to become %s has been approved.", rr.RequestedRole)
	if rr.AdminNotes != "" {
		message += " Reviewer notes: " + rr.AdminNotes
	}
	s.notifier.Send(ctx, rr.UserID, models.NotificationSuccess, "Role request approved", message, "/dashboard")
	return rr, nil
}

// Reject resolves a pending request without changing the member's role.
// notes is required and is included in the member's notification.
func (s *RoleRequestService) Reject(ctx context.Context, reviewerID, requestID uuid.UUID, notes string) (*models.RoleRequest, error) {
	if strings.TrimSpace(notes) == "" {
		return nil, &ValidationError{Message: "a reason for the rejection is required"}
	}

	rr, err := s.resolve(ctx, reviewerID, requestID, models.RoleRequestRejected, notes, func(tx *gorm.DB, rr *models.RoleRequest) error {
		return audit.LogAction(tx, reviewerID, audit.ActionRejectRoleRequest, audit.Resource("role_request", rr.ID),
			map[string]interface{}{"user_id": rr.UserID, "requested_role": rr.RequestedRole, "notes": rr.AdminNotes})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Send(ctx, rr.UserID, models.NotificationWarning, "Role request rejected",
		fmt.Sprintf("Your request to become %s was not approved. Reason: %s", rr.RequestedRole, rr.AdminNotes), myRoleRequestsPath)
	return rr, nil
}

// resolve moves a request out of pending with a conditional update and runs
// apply in the same transaction. Any error rolls back the whole resolution.
// Reviewers never resolve their own requests.
func (s *RoleRequestService) resolve(ctx context.Context, reviewerID, requestID uuid.UUID, status models.RoleRequestStatus, notes string, apply func(tx *gorm.DB, rr *models.RoleRequest) error) (*models.RoleRequest, error) {
	if err := s.evaluator.Require(ctx, rbac.EditUserRoles, reviewerID); err != nil {
		return nil, err
	}

	now := s.now()
	var rr models.RoleRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.RoleRequest{}).
			Where("id = ? AND status = ? AND user_id <> ?", requestID, models.RoleRequestPending, reviewerID).
			Updates(map[string]interface{}{
				"status":      status,
				"reviewed_by": reviewerID,
				"reviewed_at": now,
				"admin_notes": strings.TrimSpace(notes),
				"updated_at":  now,
			})
		if result.Error != nil {
			return fmt.Errorf("resolve role request: %w", result.Error)
		}

		if err := tx.Where("id = ?", requestID).First(&rr).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if rr.UserID == reviewerID {
			return &ValidationError{Message: "you cannot review your own role request"}
		}
		if result.RowsAffected == 0 {
			return &ConflictError{Message: fmt.Sprintf("role request has already been %s", rr.Status)}
		}

		return apply(tx, &rr)
	})
	if err != nil {
		slog.Warn("Role request resolution failed", "request_id", requestID, "status", status, "reviewer_id", reviewerID, "error", err)
		return nil, err
	}

	slog.Info("Role request resolved", "request_id", rr.ID, "user_id", rr.UserID, "status", status, "reviewer_id", reviewerID)
	s.metrics.RoleRequest(string(rr.RequestedRole), string(status))
	return &rr, nil
}

// List returns requests for reviewers, oldest pending first. An empty status
// lists every request.
func (s *RoleRequestService) List(ctx context.Context, reviewerID uuid.UUID, status models.RoleRequestStatus) ([]models.RoleRequest, error) {
	if err := s.evaluator.Require(ctx, rbac.EditUserRoles, reviewerID); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Preload("User")
	if status != "" {
		if !status.Valid() {
			return nil, &ValidationError{Message: fmt.Sprintf("unknown status %q", status)}
		}
		query = query.Where("status = ?", status)
	}

	var requests []models.RoleRequest
	if err := query.Order("created_at ASC").Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

// ListMine returns userID's own requests, newest first.
func (s *RoleRequestService) ListMine(ctx context.Context, userID uuid.UUID) ([]models.RoleRequest, error) {
	var requests []models.RoleRequest
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&requests).Error
	return requests, err
}

// Get returns a request to its owner or to a reviewer.
func (s *RoleRequestService) Get(ctx context.Context, actorID, requestID uuid.UUID) (*models.RoleRequest, error) {
	var rr models.RoleRequest
	if err := s.db.WithContext(ctx).Preload("User").Where("id = ?", requestID).First(&rr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if rr.UserID != actorID && !s.evaluator.HasPermission(ctx, rbac.EditUserRoles, actorID) {
		return nil, ErrNotFound
	}
	return &rr, nil
}
