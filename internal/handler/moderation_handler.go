package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Florentin-artemix/Galileo-sub000/internal/dto"
	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
	appErrors "github.com/Florentin-artemix/Galileo-sub000/pkg/errors"
	"github.com/Florentin-artemix/Galileo-sub000/pkg/response"
)

type queueService interface {
	List(ctx context.Context, session *models.Session, query dto.QueueQuery) ([]models.QueueEntry, error)
	Assign(ctx context.Context, session *models.Session, id string) (*models.Submission, error)
	Release(ctx context.Context, session *models.Session, id string) (*models.Submission, error)
	Reprioritize(ctx context.Context, session *models.Session, id string, req dto.ReprioritizeRequest) (*models.Submission, error)
}

type domainWatcher interface {
	SetDomainWatch(ctx context.Context, session *models.Session, domain string, req dto.DomainWatchRequest) error
}

// ModerationHandler exposes the reviewer queue.
type ModerationHandler struct {
	queue    queueService
	watchers domainWatcher
}

// NewModerationHandler constructs the handler.
func NewModerationHandler(queue queueService, watchers domainWatcher) *ModerationHandler {
	return &ModerationHandler{queue: queue, watchers: watchers}
}

// Queue godoc
// @Summary List the moderation queue
// @Description Ordered by priority (URGENT first), then time in queue, then id.
// @Tags Moderation
// @Produce json
// @Security BearerAuth
// @Param priority query string false "LOW, NORMAL, HIGH or URGENT"
// @Param assignedTo query string false "Reviewer id or 'me'"
// @Param unassigned query bool false "Only unassigned items"
// @Param domain query string false "Domain"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /moderation/queue [get]
func (h *ModerationHandler) Queue(c *gin.Context) {
	limit, offset := pageParams(c)
	query := dto.QueueQuery{
		Priority:   c.Query("priority"),
		AssignedTo: c.Query("assignedTo"),
		Unassigned: queryBool(c, "unassigned"),
		Domain:     c.Query("domain"),
		Limit:      limit,
		Offset:     offset,
	}
	entries, err := h.queue.List(c.Request.Context(), sessionFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, pagination(limit, offset, len(entries)))
}

// Assign godoc
// @Summary Claim a queued submission
// @Tags Moderation
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /moderation/queue/{id}/assign [post]
func (h *ModerationHandler) Assign(c *gin.Context) {
	submission, err := h.queue.Assign(c.Request.Context(), sessionFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Release godoc
// @Summary Release a claimed submission
// @Tags Moderation
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /moderation/queue/{id}/assign [delete]
func (h *ModerationHandler) Release(c *gin.Context) {
	submission, err := h.queue.Release(c.Request.Context(), sessionFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Reprioritize godoc
// @Summary Change a queued submission's priority
// @Tags Moderation
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Param payload body dto.ReprioritizeRequest true "Priority"
// @Success 200 {object} response.Envelope
// @Router /moderation/queue/{id}/priority [patch]
func (h *ModerationHandler) Reprioritize(c *gin.Context) {
	var req dto.ReprioritizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid priority payload"))
		return
	}
	submission, err := h.queue.Reprioritize(c.Request.Context(), sessionFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// WatchDomain godoc
// @Summary Subscribe to resubmissions in a domain
// @Tags Moderation
// @Accept json
// @Security BearerAuth
// @Param domain path string true "Domain"
// @Param payload body dto.DomainWatchRequest true "Watch toggle"
// @Success 204
// @Router /moderation/watches/{domain} [put]
func (h *ModerationHandler) WatchDomain(c *gin.Context) {
	var req dto.DomainWatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid watch payload"))
		return
	}
	if err := h.watchers.SetDomainWatch(c.Request.Context(), sessionFromContext(c), strings.TrimSpace(c.Param("domain")), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
