package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
	"github.com/Florentin-artemix/Galileo-sub000/pkg/response"
)

type publicationService interface {
	List(ctx context.Context, session *models.Session, filter models.PublicationFilter) ([]models.Publication, error)
	Get(ctx context.Context, session *models.Session, id string) (*models.Publication, error)
}

// PublicationHandler serves the public catalogue.
type PublicationHandler struct {
	service publicationService
}

// NewPublicationHandler constructs the handler.
func NewPublicationHandler(service publicationService) *PublicationHandler {
	return &PublicationHandler{service: service}
}

// List godoc
// @Summary List publications
// @Tags Publications
// @Produce json
// @Param domain query string false "Domain"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /publications [get]
func (h *PublicationHandler) List(c *gin.Context) {
	limit, offset := pageParams(c)
	pubs, err := h.service.List(c.Request.Context(), sessionFromContext(c), models.PublicationFilter{
		Domain: strings.TrimSpace(c.Query("domain")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pubs, pagination(limit, offset, len(pubs)))
}

// Get godoc
// @Summary Get a publication
// @Tags Publications
// @Produce json
// @Param id path string true "Publication ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /publications/{id} [get]
func (h *PublicationHandler) Get(c *gin.Context) {
	pub, err := h.service.Get(c.Request.Context(), sessionFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, pub, nil)
}
