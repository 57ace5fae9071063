package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-connect-api/internal/dto"
	"github.com/noah-isme/tutor-connect-api/internal/middleware"
	"github.com/noah-isme/tutor-connect-api/internal/models"
	appErrors "github.com/noah-isme/tutor-connect-api/pkg/errors"
	"github.com/noah-isme/tutor-connect-api/pkg/response"
)

type tutorService interface {
	List(ctx context.Context, filter models.TutorFilter) ([]models.Tutor, *models.Pagination, bool, error)
	Get(ctx context.Context, id string) (*models.Tutor, error)
	Leaderboard(ctx context.Context, sortBy string, limit int) (*dto.Leaderboard, error)
	Create(ctx context.Context, req models.CreateTutorRequest) (*models.Tutor, error)
	UpdateAvailability(ctx context.Context, id string, req models.UpdateAvailabilityRequest) (*models.Tutor, error)
}

// TutorHandler exposes the tutor directory.
type TutorHandler struct {
	service tutorService
}

// NewTutorHandler constructs the handler.
func NewTutorHandler(service tutorService) *TutorHandler {
	return &TutorHandler{service: service}
}

// List godoc
// @Summary List tutors
// @Tags Tutors
// @Produce json
// @Param subject query string false "Subject or expertise tag"
// @Param availability query string false "available|busy|scheduled"
// @Param mode query string false "video|audio|chat"
// @Param search query string false "Free text search"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /tutors [get]
func (h *TutorHandler) List(c *gin.Context) {
	page, err := queryInt(c, "page")
	if err != nil {
		response.Error(c, err)
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		response.Error(c, err)
		return
	}

	filter := models.TutorFilter{
		Subject:           filterValue(c.Query("subject")),
		Availability:      models.TutorStatus(filterValue(c.Query("availability"))),
		CommunicationMode: models.CommunicationMode(filterValue(c.Query("mode"))),
		Search:            strings.TrimSpace(c.Query("search")),
		Page:              page,
		PageSize:          limit,
	}

	tutors, pagination, hit, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, tutors, pagination, middleware.ExtractMeta(c))
}

// Leaderboard godoc
// @Summary Tutor leaderboard
// @Tags Tutors
// @Produce json
// @Param sort query string false "level|rating|reviews"
// @Param limit query int false "Number of entries"
// @Success 200 {object} response.Envelope
// @Router /tutors/leaderboard [get]
func (h *TutorHandler) Leaderboard(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		response.Error(c, err)
		return
	}
	board, err := h.service.Leaderboard(c.Request.Context(), strings.TrimSpace(c.Query("sort")), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, board, nil)
}

// Get godoc
// @Summary Get tutor
// @Tags Tutors
// @Produce json
// @Param id path string true "Tutor ID"
// @Success 200 {object} response.Envelope
// @Router /tutors/{id} [get]
func (h *TutorHandler) Get(c *gin.Context) {
	tutor, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tutor, nil)
}

// Create godoc
// @Summary Create tutor
// @Tags Tutors
// @Accept json
// @Produce json
// @Param payload body models.CreateTutorRequest true "Tutor payload"
// @Success 201 {object} response.Envelope
// @Router /tutors [post]
func (h *TutorHandler) Create(c *gin.Context) {
	var req models.CreateTutorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid tutor payload"))
		return
	}
	tutor, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, tutor)
}

// UpdateAvailability godoc
// @Summary Update tutor availability
// @Tags Tutors
// @Accept json
// @Produce json
// @Param id path string true "Tutor ID"
// @Param payload body models.UpdateAvailabilityRequest true "Availability payload"
// @Success 200 {object} response.Envelope
// @Router /tutors/{id}/availability [patch]
func (h *TutorHandler) UpdateAvailability(c *gin.Context) {
	var req models.UpdateAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid availability payload"))
		return
	}
	tutor, err := h.service.UpdateAvailability(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, tutor, nil)
}

// filterValue treats the UI's "all" option as an unset filter.
func filterValue(raw string) string {
	value := strings.TrimSpace(raw)
	if strings.EqualFold(value, "all") {
		return ""
	}
	return value
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, key+" must be a positive integer")
	}
	return n, nil
}
