package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-connect-api/internal/dto"
	"github.com/noah-isme/tutor-connect-api/internal/middleware"
	"github.com/noah-isme/tutor-connect-api/internal/models"
	"github.com/noah-isme/tutor-connect-api/internal/service"
	appErrors "github.com/noah-isme/tutor-connect-api/pkg/errors"
	"github.com/noah-isme/tutor-connect-api/pkg/response"
)

// IdempotencyHeader carries the client generated key for schedule submissions.
const IdempotencyHeader = "Idempotency-Key"

type sessionService interface {
	Schedule(ctx context.Context, actor models.Actor, req service.ScheduleSessionRequest, idempotencyKey string) (*models.Session, error)
	Board(ctx context.Context, studentID string) (*dto.SessionBoard, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.Session, error)
	UpdateStatus(ctx context.Context, actor models.Actor, id, status string) (*dto.UpdateStatusResponse, error)
	SubmitFeedback(ctx context.Context, actor models.Actor, id string, req models.SubmitFeedbackRequest) (*dto.FeedbackResponse, error)
	Export(ctx context.Context, studentID, format string) (*service.SessionExport, error)
}

// SessionHandler exposes session scheduling and lifecycle endpoints.
type SessionHandler struct {
	service sessionService
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(service sessionService) *SessionHandler {
	return &SessionHandler{service: service}
}

// Board godoc
// @Summary Session board
// @Description Sessions of the caller grouped into upcoming, in progress and completed. Admins may pass student_id.
// @Tags Sessions
// @Produce json
// @Param student_id query string false "Student ID (admin only)"
// @Success 200 {object} response.Envelope
// @Router /sessions [get]
func (h *SessionHandler) Board(c *gin.Context) {
	studentID, err := targetStudent(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	board, err := h.service.Board(c.Request.Context(), studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, board, nil)
}

// Schedule godoc
// @Summary Schedule session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Client generated key"
// @Param payload body service.ScheduleSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Schedule(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.ScheduleSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	session, err := h.service.Schedule(c.Request.Context(), actor, req, c.GetHeader(IdempotencyHeader))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Get godoc
// @Summary Get session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	session, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session, nil)
}

// UpdateStatus godoc
// @Summary Advance session status
// @Description Moves a session one step forward. Repeating the current status is a no-op reported with meta.changed=false.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body models.UpdateSessionStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /sessions/{id}/status [patch]
func (h *SessionHandler) UpdateStatus(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.UpdateSessionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid status payload"))
		return
	}
	result, err := h.service.UpdateStatus(c.Request.Context(), actor, c.Param("id"), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetChanged(c, result.Changed)
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

// SubmitFeedback godoc
// @Summary Rate a completed session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body models.SubmitFeedbackRequest true "Feedback payload"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/feedback [post]
func (h *SessionHandler) SubmitFeedback(c *gin.Context) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.SubmitFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid feedback payload"))
		return
	}
	result, err := h.service.SubmitFeedback(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Export godoc
// @Summary Export session history
// @Tags Sessions
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv|pdf"
// @Param student_id query string false "Student ID (admin only)"
// @Success 200 {file} file
// @Router /sessions/export [get]
func (h *SessionHandler) Export(c *gin.Context) {
	studentID, err := targetStudent(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := strings.TrimSpace(c.DefaultQuery("format", "csv"))
	file, err := h.service.Export(c.Request.Context(), studentID, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// targetStudent resolves whose sessions are requested. Only admins may look at
// another student's sessions.
func targetStudent(c *gin.Context) (string, error) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		return "", appErrors.ErrUnauthorized
	}
	requested := strings.TrimSpace(c.Query("student_id"))
	if requested == "" || requested == actor.ID {
		return actor.ID, nil
	}
	if actor.Role != models.RoleAdmin {
		return "", appErrors.Clone(appErrors.ErrForbidden, "cannot view sessions of another student")
	}
	return requested, nil
}
