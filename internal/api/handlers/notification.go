package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/voltclub/portal/internal/models"
	"github.com/voltclub/portal/internal/notify"
)

const streamHeartbeat = 30 * time.Second

// NotificationHandler serves the caller's notifications.
type NotificationHandler struct {
	notifier *notify.Notifier
	broker   *notify.Broker
}

// NewNotificationHandler creates a NotificationHandler. broker feeds the
// live stream and may be shared with a Valkey relay.
func NewNotificationHandler(notifier *notify.Notifier, broker *notify.Broker) *NotificationHandler {
	return &NotificationHandler{notifier: notifier, broker: broker}
}

// NotificationList is a page of notifications with the unread total
type NotificationList struct {
	Notifications []models.Notification `json:"notifications"`
	UnreadCount   int64                 `json:"unread_count"`
}

// CountResponse reports how many rows an operation touched
type CountResponse struct {
	Count int64 `json:"count"`
}

// List godoc
// @Summary List the caller's notifications
// @Tags notifications
// @Security BearerAuth
// @Produce json
// @Param unread query bool false "Only unread notifications"
// @Param limit query int false "Maximum entries (default 50, max 200)"
// @Success 200 {object} NotificationList
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	userID := identity(c).UserID

	items, err := h.notifier.List(ctx, userID, notify.ListOptions{
		UnreadOnly: c.Query("unread") == "true",
		Limit:      queryInt(c, "limit", 0),
	})
	if err != nil {
		respondError(c, err, "Failed to fetch notifications")
		return
	}
	unread, err := h.notifier.UnreadCount(ctx, userID)
	if err != nil {
		respondError(c, err, "Failed to count notifications")
		return
	}

	c.JSON(http.StatusOK, NotificationList{Notifications: items, UnreadCount: unread})
}

// MarkRead godoc
// @Summary Mark a notification as read
// @Tags notifications
// @Security BearerAuth
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} MessageResponse
// @Failure 404 {object} ErrorResponse
// @Router /notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.notifier.MarkRead(c.Request.Context(), identity(c).UserID, id); err != nil {
		h.respondNotifyError(c, err, "Failed to update notification")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Notification marked as read"})
}

// MarkAllRead godoc
// @Summary Mark all of the caller's notifications as read
// @Tags notifications
// @Security BearerAuth
// @Produce json
// @Success 200 {object} CountResponse
// @Router /notifications/read-all [post]
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	n, err := h.notifier.MarkAllRead(c.Request.Context(), identity(c).UserID)
	if err != nil {
		respondError(c, err, "Failed to update notifications")
		return
	}
	c.JSON(http.StatusOK, CountResponse{Count: n})
}

// Dismiss godoc
// @Summary Dismiss a notification
// @Tags notifications
// @Security BearerAuth
// @Produce json
// @Param id path string true "Notification ID"
// @Success 200 {object} MessageResponse
// @Failure 404 {object} ErrorResponse
// @Router /notifications/{id} [delete]
func (h *NotificationHandler) Dismiss(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.notifier.Dismiss(c.Request.Context(), identity(c).UserID, id); err != nil {
		h.respondNotifyError(c, err, "Failed to dismiss notification")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "Notification dismissed"})
}

// Stream godoc
// @Summary Stream new notifications via Server-Sent Events
// @Description Sends an "unread" event with the current count, then a "notification" event per new notification.
// @Tags notifications
// @Security BearerAuth
// @Produce text/event-stream
// @Param token query string false "Auth token (alternative to Bearer header for EventSource compatibility)"
// @Success 200 {string} string "event stream"
// @Failure 401 {object} ErrorResponse
// @Router /notifications/stream [get]
func (h *NotificationHandler) Stream(c *gin.Context) {
	userID := identity(c).UserID

	unread, err := h.notifier.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "Failed to count notifications")
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // Disable nginx buffering

	events := h.broker.Subscribe(userID)
	defer h.broker.Unsubscribe(userID, events)

	fmt.Fprintf(c.Writer, "event: unread\ndata: %d\n\n", unread)
	c.Writer.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			return
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": ping\n\n")
			c.Writer.Flush()
		case payload, ok := <-events:
			if !ok {
				fmt.Fprintf(c.Writer, "event: done\ndata: Stream ended\n\n")
				c.Writer.Flush()
				return
			}
			fmt.Fprintf(c.Writer, "event: notification\ndata: %s\n\n", payload)
			c.Writer.Flush()
		}
	}
}

func (h *NotificationHandler) respondNotifyError(c *gin.Context, err error, fallback string) {
	if errors.Is(err, notify.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Notification not found"})
		return
	}
	respondError(c, err, fallback)
}
