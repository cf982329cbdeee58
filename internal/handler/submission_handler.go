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

type submissionService interface {
	Create(ctx context.Context, session *models.Session, req dto.CreateSubmissionRequest) (*models.Submission, error)
	ListMine(ctx context.Context, session *models.Session, states []string, limit, offset int) ([]models.Submission, error)
	Get(ctx context.Context, session *models.Session, id string) (*models.Submission, error)
	Transition(ctx context.Context, session *models.Session, id string, req dto.TransitionRequest) (*dto.TransitionResponse, error)
}

type auditService interface {
	ListAudit(ctx context.Context, session *models.Session, submissionID string) ([]models.AuditEntry, error)
	AddNote(ctx context.Context, session *models.Session, submissionID string, req dto.NoteRequest) (*models.AuditEntry, error)
	VerifyConsistency(ctx context.Context, session *models.Session, submissionID string) (*dto.AuditConsistency, error)
	ExportAudit(ctx context.Context, session *models.Session, submissionID, format string) (*dto.AuditExport, error)
}

// SubmissionHandler exposes submission and audit endpoints.
type SubmissionHandler struct {
	submissions submissionService
	audit       auditService
}

// NewSubmissionHandler constructs the handler.
func NewSubmissionHandler(submissions submissionService, audit auditService) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions, audit: audit}
}

// Create godoc
// @Summary Submit an article for moderation
// @Tags Submissions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.CreateSubmissionRequest true "Submission payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /submissions [post]
func (h *SubmissionHandler) Create(c *gin.Context) {
	var req dto.CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid submission payload"))
		return
	}
	submission, err := h.submissions.Create(c.Request.Context(), sessionFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, submission)
}

// ListMine godoc
// @Summary List the caller's submissions
// @Tags Submissions
// @Produce json
// @Security BearerAuth
// @Param state query string false "Comma separated states"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /submissions/mine [get]
func (h *SubmissionHandler) ListMine(c *gin.Context) {
	limit, offset := pageParams(c)
	submissions, err := h.submissions.ListMine(c.Request.Context(), sessionFromContext(c), splitCSV(c.Query("state")), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions, pagination(limit, offset, len(submissions)))
}

// Get godoc
// @Summary Get a submission
// @Tags Submissions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	submission, err := h.submissions.Get(c.Request.Context(), sessionFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Transition godoc
// @Summary Apply a state transition
// @Description APPROVE, REJECT, REQUEST_REVISION, WITHDRAW or RESUBMIT. A stale state answers 409 CONFLICT.
// @Tags Submissions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Param payload body dto.TransitionRequest true "Transition"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /submissions/{id}/transitions [post]
func (h *SubmissionHandler) Transition(c *gin.Context) {
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid transition payload"))
		return
	}
	result, err := h.submissions.Transition(c.Request.Context(), sessionFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ListAudit godoc
// @Summary List a submission's audit trail
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/audit [get]
func (h *SubmissionHandler) ListAudit(c *gin.Context) {
	entries, err := h.audit.ListAudit(c.Request.Context(), sessionFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// ExportAudit godoc
// @Summary Download a submission's audit trail
// @Tags Audit
// @Produce octet-stream
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /submissions/{id}/audit/export [get]
func (h *SubmissionHandler) ExportAudit(c *gin.Context) {
	export, err := h.audit.ExportAudit(c.Request.Context(), sessionFromContext(c), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, export.Filename, export.ContentType, export.Body)
}

// VerifyAudit godoc
// @Summary Replay the audit trail against the stored state
// @Tags Audit
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/audit/verify [get]
func (h *SubmissionHandler) VerifyAudit(c *gin.Context) {
	report, err := h.audit.VerifyConsistency(c.Request.Context(), sessionFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// AddNote godoc
// @Summary Annotate a submission without changing its state
// @Tags Audit
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Submission ID"
// @Param payload body dto.NoteRequest true "Note"
// @Success 201 {object} response.Envelope
// @Router /submissions/{id}/notes [post]
func (h *SubmissionHandler) AddNote(c *gin.Context) {
	var req dto.NoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid note payload"))
		return
	}
	entry, err := h.audit.AddNote(c.Request.Context(), sessionFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}
