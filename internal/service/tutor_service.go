package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-connect-api/internal/dto"
	"github.com/noah-isme/tutor-connect-api/internal/models"
	appErrors "github.com/noah-isme/tutor-connect-api/pkg/errors"
)

const (
	tutorListNamespace   = "tutors:list"
	tutorCachePattern    = "tutors:*"
	defaultTutorPageSize = 20
	maxTutorPageSize     = 100
	maxLeaderboardLimit  = 50
)

type tutorRepository interface {
	List(ctx context.Context, filter models.TutorFilter) ([]models.Tutor, error)
	FindByID(ctx context.Context, id string) (*models.Tutor, error)
	Create(ctx context.Context, rec *models.TutorRecord) error
	UpdateStatus(ctx context.Context, id string, status models.TutorStatus) error
}

// TutorServiceConfig tunes directory caching and leaderboard defaults.
type TutorServiceConfig struct {
	CacheTTL                time.Duration
	LeaderboardDefaultLimit int
}

// TutorService serves the tutor directory and leaderboard.
type TutorService struct {
	repo      tutorRepository
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    TutorServiceConfig
}

// NewTutorService constructs a TutorService.
func NewTutorService(repo tutorRepository, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg TutorServiceConfig) *TutorService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LeaderboardDefaultLimit <= 0 {
		cfg.LeaderboardDefaultLimit = 10
	}
	return &TutorService{repo: repo, cache: cache, metrics: metrics, validator: validate, logger: logger, config: cfg}
}

// List returns the tutors matching every active filter, paginated after filtering.
// The bool reports whether the fetched set came from cache.
func (s *TutorService) List(ctx context.Context, filter models.TutorFilter) ([]models.Tutor, *models.Pagination, bool, error) {
	if filter.Availability != "" && !filter.Availability.Valid() {
		return nil, nil, false, appErrors.Clone(appErrors.ErrValidation, "unknown availability status")
	}
	if filter.CommunicationMode != "" && !filter.CommunicationMode.Valid() {
		return nil, nil, false, appErrors.Clone(appErrors.ErrValidation, "unknown communication mode")
	}

	fetched, hit, err := s.fetch(ctx, filter)
	if err != nil {
		return nil, nil, false, err
	}

	matched := make([]models.Tutor, 0, len(fetched))
	for _, tutor := range fetched {
		if filter.Matches(tutor) {
			matched = append(matched, tutor)
		}
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	start := (page - 1) * size
	if start > len(matched) {
		start = len(matched)
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}

	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: len(matched)}
	return matched[start:end], pagination, hit, nil
}

// fetch loads the tutors satisfying the remote predicates, through the cache.
func (s *TutorService) fetch(ctx context.Context, filter models.TutorFilter) ([]models.Tutor, bool, error) {
	remote := models.TutorFilter{
		Subject:           strings.TrimSpace(filter.Subject),
		Availability:      filter.Availability,
		CommunicationMode: filter.CommunicationMode,
	}
	key := s.cache.Key(tutorListNamespace, remote.Subject, string(remote.Availability), string(remote.CommunicationMode))

	var tutors []models.Tutor
	hit, err := s.cache.Remember(ctx, key, s.config.CacheTTL, &tutors, func(ctx context.Context) error {
		start := time.Now()
		list, err := s.repo.List(ctx, remote)
		s.metrics.ObserveDBQuery("tutors.list", time.Since(start))
		if err != nil {
			return err
		}
		tutors = list
		return nil
	})
	if err != nil {
		s.logger.Error("failed to list tutors", zap.Error(err))
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tutors")
	}
	return tutors, hit, nil
}

// Get fetches a tutor by ID.
func (s *TutorService) Get(ctx context.Context, id string) (*models.Tutor, error) {
	tutor, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tutor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch tutor")
	}
	return tutor, nil
}

// Leaderboard ranks tutors by the requested metric, highest first.
func (s *TutorService) Leaderboard(ctx context.Context, sortBy string, limit int) (*dto.Leaderboard, error) {
	key := models.LeaderboardSort(strings.ToLower(strings.TrimSpace(sortBy)))
	if key == "" {
		key = models.SortByRating
	}
	if !key.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "sort must be one of level, rating, reviews")
	}
	if limit <= 0 {
		limit = s.config.LeaderboardDefaultLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}

	tutors, _, err := s.fetch(ctx, models.TutorFilter{})
	if err != nil {
		return nil, err
	}
	SortTutors(tutors, key)
	if len(tutors) > limit {
		tutors = tutors[:limit]
	}

	board := &dto.Leaderboard{SortBy: key, Entries: make([]dto.LeaderboardEntry, 0, len(tutors))}
	for i, tutor := range tutors {
		board.Entries = append(board.Entries, dto.LeaderboardEntry{Rank: i + 1, Tutor: tutor})
	}
	return board, nil
}

// SortTutors orders tutors by the metric, descending. Ties keep their input order.
func SortTutors(tutors []models.Tutor, by models.LeaderboardSort) {
	sort.SliceStable(tutors, func(i, j int) bool {
		switch by {
		case models.SortByLevel:
			return tutors[i].Level > tutors[j].Level
		case models.SortByReviews:
			return tutors[i].Reviews > tutors[j].Reviews
		default:
			return tutors[i].Rating > tutors[j].Rating
		}
	})
}

// Create registers a new tutor.
func (s *TutorService) Create(ctx context.Context, req models.CreateTutorRequest) (*models.Tutor, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid tutor payload")
	}

	expertise := req.Expertise
	if expertise == nil {
		expertise = []string{}
	}
	modes := req.CommunicationModes
	if len(modes) == 0 {
		for _, m := range models.DefaultCommunicationModes() {
			modes = append(modes, string(m))
		}
	}
	expertiseJSON, err := json.Marshal(expertise)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode expertise")
	}
	modesJSON, err := json.Marshal(modes)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode communication modes")
	}

	status := req.Status
	if status == "" {
		status = string(models.TutorAvailable)
	}
	level := req.Level
	if level < 1 {
		level = 1
	}

	rec := &models.TutorRecord{
		Name:               strings.TrimSpace(req.Name),
		Specialty:          strings.TrimSpace(req.Specialty),
		Expertise:          types.JSONText(expertiseJSON),
		Rating:             sql.NullFloat64{Float64: 0, Valid: true},
		Reviews:            sql.NullInt64{Int64: 0, Valid: true},
		Level:              sql.NullInt64{Int64: int64(level), Valid: true},
		Status:             sql.NullString{String: status, Valid: true},
		CommunicationModes: types.JSONText(modesJSON),
		Bio:                sql.NullString{String: req.Bio, Valid: req.Bio != ""},
		AvatarURL:          sql.NullString{String: req.AvatarURL, Valid: req.AvatarURL != ""},
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create tutor")
	}
	_ = s.cache.Invalidate(ctx, tutorCachePattern)

	tutor := models.NewTutor(*rec)
	s.logger.Info("tutor created", zap.String("tutor_id", tutor.ID))
	return &tutor, nil
}

// UpdateAvailability changes a tutor's availability status.
func (s *TutorService) UpdateAvailability(ctx context.Context, id string, req models.UpdateAvailabilityRequest) (*models.Tutor, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}
	if err := s.repo.UpdateStatus(ctx, id, models.TutorStatus(req.Status)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tutor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update tutor availability")
	}
	_ = s.cache.Invalidate(ctx, tutorCachePattern)
	return s.Get(ctx, id)
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = defaultTutorPageSize
	}
	if size > maxTutorPageSize {
		size = maxTutorPageSize
	}
	return page, size
}
