package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Florentin-artemix/Galileo-sub000/internal/models"
	"github.com/Florentin-artemix/Galileo-sub000/internal/service"
	appErrors "github.com/Florentin-artemix/Galileo-sub000/pkg/errors"
	"github.com/Florentin-artemix/Galileo-sub000/pkg/response"
)

// SessionView is the resolved caller with the capabilities its role grants.
type SessionView struct {
	UserID       string               `json:"userId"`
	Role         models.UserRole      `json:"role"`
	Capabilities []service.Capability `json:"capabilities"`
}

// SessionHandler reports who the caller is.
type SessionHandler struct{}

// NewSessionHandler constructs the handler.
func NewSessionHandler() *SessionHandler {
	return &SessionHandler{}
}

// Current godoc
// @Summary Describe the current session
// @Tags Session
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /session [get]
func (h *SessionHandler) Current(c *gin.Context) {
	session := sessionFromContext(c)
	if !session.Authenticated() {
		response.Error(c, appErrors.ErrUnauthenticated)
		return
	}
	response.JSON(c, http.StatusOK, SessionView{
		UserID:       session.UserID,
		Role:         session.Role,
		Capabilities: service.CapabilitiesFor(session.Role),
	}, nil)
}
