package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Florentin-artemix/Galileo-sub000/internal/dto"
	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
	appErrors "github.com/Florentin-artemix/Galileo-sub000/pkg/errors"
	"github.com/Florentin-artemix/Galileo-sub000/pkg/response"
)

type notificationService interface {
	ListMine(ctx context.Context, session *models.Session, query dto.NotificationQuery) ([]models.NotificationEvent, error)
	MarkRead(ctx context.Context, session *models.Session, id string) error
	SetMutePreference(ctx context.Context, session *models.Session, rawKind string, req dto.MutePreferenceRequest) (*models.NotificationPreference, error)
}

// NotificationHandler exposes the caller's inbox.
type NotificationHandler struct {
	service notificationService
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(service notificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// List godoc
// @Summary List the caller's notifications
// @Tags Notifications
// @Produce json
// @Security BearerAuth
// @Param unread query bool false "Only unread"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	limit, offset := pageParams(c)
	events, err := h.service.ListMine(c.Request.Context(), sessionFromContext(c), dto.NotificationQuery{
		UnreadOnly: queryBool(c, "unread"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, pagination(limit, offset, len(events)))
}

// MarkRead godoc
// @Summary Mark a notification as read
// @Tags Notifications
// @Security BearerAuth
// @Param id path string true "Notification ID"
// @Success 204
// @Failure 404 {object} response.Envelope
// @Router /notifications/{id}/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	if err := h.service.MarkRead(c.Request.Context(), sessionFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SetPreference godoc
// @Summary Mute or unmute a notification kind
// @Tags Notifications
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param kind path string true "Notification kind"
// @Param payload body dto.MutePreferenceRequest true "Preference"
// @Success 200 {object} response.Envelope
// @Router /notifications/preferences/{kind} [put]
func (h *NotificationHandler) SetPreference(c *gin.Context) {
	var req dto.MutePreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid preference payload"))
		return
	}
	pref, err := h.service.SetMutePreference(c.Request.Context(), sessionFromContext(c), c.Param("kind"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pref, nil)
}
