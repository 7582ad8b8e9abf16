package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"scenarioflow/internal/storage"
	"scenarioflow/pkg/api/dto"
	"scenarioflow/pkg/api/middleware"
)

// NotificationHandler handles notification HTTP requests. The server
// owns the notification list; clients refetch it instead of patching
// local copies.
type NotificationHandler struct {
	repo storage.NotificationRepository
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(repo storage.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{repo: repo}
}

// ListNotifications handles GET /api/v1/notifications
// @Summary List notifications
// @Tags notifications
// @Produce json
// @Param limit query int false "Maximum notifications" default(50)
// @Success 200 {object} dto.NotificationListResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/v1/notifications [get]
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}
	userID := middleware.UserID(c)

	rows, err := h.repo.List(c.Request.Context(), userID, limit)
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, "LIST_FAILED", err.Error())
		return
	}
	unread, err := h.repo.CountUnread(c.Request.Context(), userID)
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, "COUNT_FAILED", err.Error())
		return
	}

	resp := dto.NotificationListResponse{
		Notifications: make([]dto.NotificationResponse, len(rows)),
		UnreadCount:   unread,
	}
	for i, n := range rows {
		resp.Notifications[i] = dto.NotificationResponse{
			ID:        n.ID.String(),
			Kind:      n.Kind,
			Message:   n.Message,
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, resp)
}

// MarkAllRead handles POST /api/v1/notifications/read
// @Summary Mark all notifications read
// @Tags notifications
// @Produce json
// @Success 200 {object} dto.SuccessResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /api/v1/notifications/read [post]
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	if err := h.repo.MarkAllRead(c.Request.Context(), middleware.UserID(c)); err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, "UPDATE_FAILED", err.Error())
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true, Message: "All notifications marked read"})
}
