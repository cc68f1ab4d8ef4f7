// Package notify persists per-user notifications and pushes them to open
// streams, either in-process or across instances through Valkey.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/voltclub/portal/internal/metrics"
	"github.com/voltclub/portal/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a notification does not exist or belongs to
// another user.
var ErrNotFound = errors.New("notification not found")

// Publisher pushes a serialized notification towards the recipient's streams.
type Publisher interface {
	Publish(ctx context.Context, userID uuid.UUID, payload string) error
}

// Notifier stores notifications and fans them out.
type Notifier struct {
	db        *gorm.DB
	publisher Publisher
	metrics   *metrics.Metrics
}

// New creates a Notifier. publisher may be nil to disable live delivery.
func New(db *gorm.DB, publisher Publisher, m *metrics.Metrics) *Notifier {
	return &Notifier{db: db, publisher: publisher, metrics: m}
}

// Notify persists n and then publishes it. A publish failure is logged and
// does not fail the call; the row is the source of truth.
func (s *Notifier) Notify(ctx context.Context, n *models.Notification) error {
	if n.UserID == uuid.Nil {
		return fmt.Errorf("notification has no recipient")
	}
	if n.Type == "" {
		n.Type = models.NotificationInfo
	}

	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("store notification: %w", err)
	}

	s.metrics.Notification(string(n.Type), s.publish(ctx, n))
	return nil
}

// Send is Notify for callers that treat notifications as best effort, such
// as the role-request workflow after its transaction has committed.
func (s *Notifier) Send(ctx context.Context, userID uuid.UUID, typ models.NotificationType, title, message, actionURL string) {
	n := &models.Notification{
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      typ,
		ActionURL: actionURL,
	}
	if err := s.Notify(ctx, n); err != nil {
		slog.Warn("Failed to send notification", "user_id", userID, "title", title, "error", err)
	}
}

func (s *Notifier) publish(ctx context.Context, n *models.Notification) string {
	if s.publisher == nil {
		return "disabled"
	}
	payload, err := json.Marshal(n)
	if err != nil {
		slog.Warn("Failed to encode notification", "notification_id", n.ID, "error", err)
		return "failed"
	}
	if err := s.publisher.Publish(ctx, n.UserID, string(payload)); err != nil {
		slog.Warn("Failed to publish notification", "notification_id", n.ID, "user_id", n.UserID, "error", err)
		return "failed"
	}
	return "ok"
}

// ListOptions narrows List results.
type ListOptions struct {
	UnreadOnly bool
	Limit      int
}

// List returns userID's notifications, newest first. Dismissed ones are excluded.
func (s *Notifier) List(ctx context.Context, userID uuid.UUID, opts ListOptions) ([]models.Notification, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if opts.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var notifications []models.Notification
	if err := query.Order("created_at DESC").Limit(limit).Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

// UnreadCount returns how many undismissed notifications userID has not read.
func (s *Notifier) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Count(&count).Error
	return count, err
}

// MarkRead marks one notification as read. Marking an already read
// notification again keeps the first read time.
func (s *Notifier) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	var n models.Notification
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if n.ReadAt != nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&n).Update("read_at", time.Now().UTC()).Error
}

// MarkAllRead marks every unread notification of userID as read and returns
// how many changed.
func (s *Notifier) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", time.Now().UTC())
	return result.RowsAffected, result.Error
}

// Dismiss hides a notification from its recipient.
func (s *Notifier) Dismiss(ctx context.Context, userID, id uuid.UUID) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.Notification{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeDismissed permanently removes notifications dismissed before cutoff.
func (s *Notifier) PurgeDismissed(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Unscoped().
		Where("deleted_at IS NOT NULL AND deleted_at < ?", cutoff.UTC()).
		Delete(&models.Notification{})
	return result.RowsAffected, result.Error
}
