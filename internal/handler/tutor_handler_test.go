package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutor-connect-api/internal/dto"
	"github.com/noah-isme/tutor-connect-api/internal/models"
	appErrors "github.com/noah-isme/tutor-connect-api/pkg/errors"
)

type apiEnvelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) apiEnvelope {
	t.Helper()
	var env apiEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

type fakeTutorSrv struct {
	tutors       []models.Tutor
	hit          bool
	err          error
	lastFilter   models.TutorFilter
	lastSort     string
	lastLimit    int
	created      models.CreateTutorRequest
	availability models.UpdateAvailabilityRequest
}

func (f *fakeTutorSrv) List(_ context.Context, filter models.TutorFilter) ([]models.Tutor, *models.Pagination, bool, error) {
	f.lastFilter = filter
	if f.err != nil {
		return nil, nil, false, f.err
	}
	return f.tutors, &models.Pagination{Page: 1, PageSize: 20, TotalCount: len(f.tutors)}, f.hit, nil
}

func (f *fakeTutorSrv) Get(_ context.Context, id string) (*models.Tutor, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Tutor{ID: id, Name: "Ada"}, nil
}

func (f *fakeTutorSrv) Leaderboard(_ context.Context, sortBy string, limit int) (*dto.Leaderboard, error) {
	f.lastSort = sortBy
	f.lastLimit = limit
	return &dto.Leaderboard{SortBy: models.SortByRating}, f.err
}

func (f *fakeTutorSrv) Create(_ context.Context, req models.CreateTutorRequest) (*models.Tutor, error) {
	f.created = req
	return &models.Tutor{ID: "t-new", Name: req.Name}, f.err
}

func (f *fakeTutorSrv) UpdateAvailability(_ context.Context, id string, req models.UpdateAvailabilityRequest) (*models.Tutor, error) {
	f.availability = req
	return &models.Tutor{ID: id, Status: models.TutorStatus(req.Status)}, f.err
}

func TestTutorHandlerListPassesFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeTutorSrv{tutors: []models.Tutor{{ID: "a", Name: "Ada"}}, hit: true}
	handler := NewTutorHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/tutors?subject=Math&availability=all&mode=video&search=%20ada%20&page=2&limit=5", nil)

	handler.List(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Math", srv.lastFilter.Subject)
	assert.Equal(t, models.TutorStatus(""), srv.lastFilter.Availability)
	assert.Equal(t, models.ModeVideo, srv.lastFilter.CommunicationMode)
	assert.Equal(t, "ada", srv.lastFilter.Search)
	assert.Equal(t, 2, srv.lastFilter.Page)
	assert.Equal(t, 5, srv.lastFilter.PageSize)

	env := decodeEnvelope(t, rec)
	assert.Equal(t, true, env.Meta["cache_hit"])
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 1, env.Pagination.TotalCount)
	var tutors []models.Tutor
	require.NoError(t, json.Unmarshal(env.Data, &tutors))
	assert.Equal(t, "Ada", tutors[0].Name)
}

func TestTutorHandlerListRejectsBadPage(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeTutorSrv{}
	handler := NewTutorHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/tutors?page=abc", nil)

	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, appErrors.ErrValidation.Code, env.Error.Code)
}

func TestTutorHandlerListPropagatesServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewTutorHandler(&fakeTutorSrv{err: appErrors.Clone(appErrors.ErrValidation, "invalid availability filter")})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/tutors?availability=sleeping", nil)

	handler.List(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTutorHandlerLeaderboardReadsSortAndLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeTutorSrv{}
	handler := NewTutorHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/tutors/leaderboard?sort=reviews&limit=3", nil)

	handler.Leaderboard(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "reviews", srv.lastSort)
	assert.Equal(t, 3, srv.lastLimit)
}

func TestTutorHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewTutorHandler(&fakeTutorSrv{err: appErrors.Clone(appErrors.ErrNotFound, "tutor not found")})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/tutors/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Get(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTutorHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeTutorSrv{}
	handler := NewTutorHandler(srv)

	body, _ := json.Marshal(map[string]interface{}{"name": "Grace", "specialty": "Computer Science"})
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/tutors", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Grace", srv.created.Name)
}

func TestTutorHandlerCreateRejectsMalformedJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewTutorHandler(&fakeTutorSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/tutors", bytes.NewBufferString("{"))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTutorHandlerUpdateAvailability(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := &fakeTutorSrv{}
	handler := NewTutorHandler(srv)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPatch, "/tutors/t-1/availability", bytes.NewBufferString(`{"status":"busy"}`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: "t-1"}}

	handler.UpdateAvailability(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "busy", srv.availability.Status)
}
