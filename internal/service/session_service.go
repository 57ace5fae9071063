package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-connect-api/internal/dto"
	"github.com/noah-isme/tutor-connect-api/internal/models"
	"github.com/noah-isme/tutor-connect-api/internal/repository"
	appErrors "github.com/noah-isme/tutor-connect-api/pkg/errors"
	"github.com/noah-isme/tutor-connect-api/pkg/export"
)

const (
	idempotencyNamespace = "idem:sessions"
	minTopicLength       = 3
)

type sessionRepository interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)
	Create(ctx context.Context, session *models.Session) error
	UpdateStatus(ctx context.Context, id string, from, to models.SessionStatus) error
	SubmitFeedback(ctx context.Context, id string, rating int, feedback *string) error
}

type sessionTutorReader interface {
	FindByID(ctx context.Context, id string) (*models.Tutor, error)
}

type idempotencyStore interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type sessionEventPublisher interface {
	Publish(ctx context.Context, event models.SessionEvent)
}

// ScheduleSessionRequest is the booking form payload.
type ScheduleSessionRequest struct {
	TutorID  string `json:"tutor_id" validate:"required"`
	Subject  string `json:"subject" validate:"required,max=120"`
	Topic    string `json:"topic" validate:"required,max=200"`
	Date     string `json:"date" validate:"required"`
	Duration int    `json:"duration" validate:"required,gt=0"`
	Mode     string `json:"mode" validate:"required,oneof=video audio chat"`
	Notes    string `json:"notes" validate:"omitempty,max=1000"`
}

// SessionServiceConfig holds scheduling rules.
type SessionServiceConfig struct {
	AllowedDurations []int
	IdempotencyTTL   time.Duration
}

// SessionExport is a rendered session history document.
type SessionExport struct {
	Filename    string
	ContentType string
	Data        []byte
}

// SessionService schedules tutoring sessions and drives their lifecycle.
type SessionService struct {
	repo        sessionRepository
	tutors      sessionTutorReader
	idempotency idempotencyStore
	events      sessionEventPublisher
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	config      SessionServiceConfig
	now         func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(repo sessionRepository, tutors sessionTutorReader, idempotency idempotencyStore, events sessionEventPublisher, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg SessionServiceConfig) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.AllowedDurations) == 0 {
		cfg.AllowedDurations = []int{30, 45, 60, 90, 120}
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	return &SessionService{
		repo:        repo,
		tutors:      tutors,
		idempotency: idempotency,
		events:      events,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		config:      cfg,
		now:         time.Now,
	}
}

// Schedule books a session with a tutor on behalf of the actor. A non-empty
// idempotency key may be used once; replays fail with DUPLICATE_SUBMISSION.
func (s *SessionService) Schedule(ctx context.Context, actor models.Actor, req ScheduleSessionRequest, idempotencyKey string) (*models.Session, error) {
	scheduledAt, err := s.validateSchedule(req)
	if err != nil {
		return nil, err
	}

	tutor, err := s.tutors.FindByID(ctx, req.TutorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tutor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch tutor")
	}
	mode := models.CommunicationMode(req.Mode)
	if !tutor.SupportsMode(mode) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("tutor does not offer %s sessions", mode))
	}

	var reservation string
	if key := strings.TrimSpace(idempotencyKey); key != "" && s.idempotency != nil {
		reservation = s.cache.Key(idempotencyNamespace, actor.ID, key)
		ok, err := s.idempotency.Reserve(ctx, reservation, s.config.IdempotencyTTL)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve idempotency key")
		}
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrDuplicateSubmission, "session request already submitted")
		}
	}

	session := &models.Session{
		StudentID:       actor.ID,
		TutorID:         tutor.ID,
		TutorName:       tutor.Name,
		Subject:         strings.TrimSpace(req.Subject),
		Topic:           strings.TrimSpace(req.Topic),
		ScheduledAt:     scheduledAt.UTC(),
		DurationMinutes: req.Duration,
		Status:          models.SessionScheduled,
		Mode:            mode,
	}
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		session.Notes = &notes
	}

	start := time.Now()
	err = s.repo.Create(ctx, session)
	s.metrics.ObserveDBQuery("sessions.create", time.Since(start))
	if err != nil {
		if reservation != "" {
			if releaseErr := s.idempotency.Release(ctx, reservation); releaseErr != nil {
				s.logger.Warn("failed to release idempotency key", zap.Error(releaseErr))
			}
		}
		s.logger.Error("failed to schedule session", zap.String("tutor_id", tutor.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to schedule session")
	}

	s.metrics.RecordSessionScheduled(mode)
	event := s.newEvent(models.EventSessionScheduled, *session, "")
	event.StudentEmail = actor.Email
	s.publish(ctx, event)
	return session, nil
}

func (s *SessionService) validateSchedule(req ScheduleSessionRequest) (time.Time, error) {
	if err := s.validator.Struct(req); err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if len([]rune(strings.TrimSpace(req.Topic))) < minTopicLength {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("topic must be at least %d characters", minTopicLength))
	}
	if strings.TrimSpace(req.Subject) == "" {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "subject is required")
	}
	scheduledAt, err := time.Parse(time.RFC3339, req.Date)
	if err != nil {
		return time.Time{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date must be an RFC3339 timestamp")
	}
	if scheduledAt.Before(s.now()) {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "date must not be in the past")
	}
	allowed := false
	for _, d := range s.config.AllowedDurations {
		if d == req.Duration {
			allowed = true
			break
		}
	}
	if !allowed {
		options := make([]string, 0, len(s.config.AllowedDurations))
		for _, d := range s.config.AllowedDurations {
			options = append(options, strconv.Itoa(d))
		}
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "duration must be one of "+strings.Join(options, ", ")+" minutes")
	}
	return scheduledAt, nil
}

// List returns sessions matching the filter.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	start := time.Now()
	sessions, err := s.repo.List(ctx, filter)
	s.metrics.ObserveDBQuery("sessions.list", time.Since(start))
	if err != nil {
		s.logger.Error("failed to list sessions", zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// Board returns the student's sessions grouped by lifecycle stage.
func (s *SessionService) Board(ctx context.Context, studentID string) (*dto.SessionBoard, error) {
	sessions, err := s.List(ctx, models.SessionFilter{StudentID: studentID})
	if err != nil {
		return nil, err
	}
	board := PartitionSessions(sessions)
	return &board, nil
}

// PartitionSessions splits sessions into upcoming (soonest first), in progress
// and completed (most recent first).
func PartitionSessions(sessions []models.Session) dto.SessionBoard {
	board := dto.SessionBoard{
		Upcoming:   []models.Session{},
		InProgress: []models.Session{},
		Completed:  []models.Session{},
	}
	for _, session := range sessions {
		switch session.Status {
		case models.SessionScheduled:
			board.Upcoming = append(board.Upcoming, session)
		case models.SessionInProgress:
			board.InProgress = append(board.InProgress, session)
		case models.SessionCompleted:
			board.Completed = append(board.Completed, session)
		}
	}
	sort.SliceStable(board.Upcoming, func(i, j int) bool {
		return board.Upcoming[i].ScheduledAt.Before(board.Upcoming[j].ScheduledAt)
	})
	sort.SliceStable(board.Completed, func(i, j int) bool {
		return board.Completed[i].ScheduledAt.After(board.Completed[j].ScheduledAt)
	})
	return board
}

// Get fetches a session the actor is allowed to see.
func (s *SessionService) Get(ctx context.Context, actor models.Actor, id string) (*models.Session, error) {
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch session")
	}
	if !actor.CanAccessSession(session.StudentID, session.TutorID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "session is not visible to this user")
	}
	return session, nil
}

// UpdateStatus moves a session one step forward in its lifecycle and returns
// the student's freshly fetched board. Requesting the current status again is
// a no-op.
func (s *SessionService) UpdateStatus(ctx context.Context, actor models.Actor, id, rawStatus string) (*dto.UpdateStatusResponse, error) {
	next, err := models.ParseSessionStatus(rawStatus)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "status must be one of scheduled, in-progress, completed")
	}

	session, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	current := session.Status

	changed := current != next
	if changed {
		if !models.CanTransition(current, next) {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move session from %s to %s", current, next))
		}
		if err := s.repo.UpdateStatus(ctx, id, current, next); err != nil {
			if errors.Is(err, repository.ErrStaleWrite) {
				return nil, appErrors.Clone(appErrors.ErrConflict, "session was modified by another request")
			}
			s.logger.Error("failed to update session status", zap.String("session_id", id), zap.Error(err))
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session status")
		}
		s.metrics.RecordSessionTransition(current, next)
		session.Status = next
		s.publish(ctx, s.newEvent(models.EventSessionStatusChanged, *session, current))
	}

	board, err := s.Board(ctx, session.StudentID)
	if err != nil {
		return nil, err
	}
	resp := &dto.UpdateStatusResponse{Session: *session, Board: *board, Changed: changed}
	if fresh, ok := findSession(board, id); ok {
		resp.Session = fresh
	}
	return resp, nil
}

func findSession(board *dto.SessionBoard, id string) (models.Session, bool) {
	for _, group := range [][]models.Session{board.Upcoming, board.InProgress, board.Completed} {
		for _, session := range group {
			if session.ID == id {
				return session, true
			}
		}
	}
	return models.Session{}, false
}

// SubmitFeedback rates a completed session. Only the student who booked it may rate it, once.
func (s *SessionService) SubmitFeedback(ctx context.Context, actor models.Actor, id string, req models.SubmitFeedbackRequest) (*dto.FeedbackResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "rating must be between 1 and 5 and feedback at most 1000 characters")
	}

	session, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if session.StudentID != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the student who booked the session can rate it")
	}
	if session.Status != models.SessionCompleted {
		return nil, appErrors.Clone(appErrors.ErrConflict, "feedback is accepted only for completed sessions")
	}
	if session.Rated() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "session already has feedback")
	}

	var feedback *string
	if text := strings.TrimSpace(req.Feedback); text != "" {
		feedback = &text
	}
	if err := s.repo.SubmitFeedback(ctx, id, req.Rating, feedback); err != nil {
		if errors.Is(err, repository.ErrStaleWrite) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "session already has feedback")
		}
		s.logger.Error("failed to submit session feedback", zap.String("session_id", id), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit feedback")
	}
	_ = s.cache.Invalidate(ctx, tutorCachePattern)
	s.metrics.ObserveFeedbackRating(req.Rating)

	rating := req.Rating
	session.Rating = &rating
	session.Feedback = feedback
	s.publish(ctx, s.newEvent(models.EventSessionFeedback, *session, ""))

	resp := &dto.FeedbackResponse{Session: *session}
	tutor, err := s.tutors.FindByID(ctx, session.TutorID)
	if err != nil {
		s.logger.Warn("failed to reload tutor after feedback", zap.String("tutor_id", session.TutorID), zap.Error(err))
		return resp, nil
	}
	resp.Tutor = *tutor
	return resp, nil
}

// Export renders the session history of a student as csv or pdf.
func (s *SessionService) Export(ctx context.Context, studentID, format string) (*SessionExport, error) {
	renderer, err := export.ForFormat(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "format must be csv or pdf")
	}
	sessions, err := s.List(ctx, models.SessionFilter{StudentID: studentID})
	if err != nil {
		return nil, err
	}

	data := export.Dataset{
		Title:   "Tutoring sessions",
		Headers: []string{"Date", "Tutor", "Subject", "Topic", "Duration (min)", "Mode", "Status", "Rating", "Feedback"},
		Rows:    make([][]string, 0, len(sessions)),
	}
	for _, session := range sessions {
		rating := ""
		if session.Rating != nil {
			rating = strconv.Itoa(*session.Rating)
		}
		feedback := ""
		if session.Feedback != nil {
			feedback = *session.Feedback
		}
		data.Rows = append(data.Rows, []string{
			session.ScheduledAt.UTC().Format("2006-01-02 15:04"),
			session.TutorName,
			session.Subject,
			session.Topic,
			strconv.Itoa(session.DurationMinutes),
			string(session.Mode),
			string(session.Status),
			rating,
			feedback,
		})
	}

	payload, err := renderer.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render session export")
	}
	return &SessionExport{
		Filename:    fmt.Sprintf("sessions-%s.%s", s.now().UTC().Format("20060102"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Data:        payload,
	}, nil
}

func (s *SessionService) newEvent(eventType string, session models.Session, previous models.SessionStatus) models.SessionEvent {
	return models.SessionEvent{
		Type:        eventType,
		SessionID:   session.ID,
		StudentID:   session.StudentID,
		TutorID:     session.TutorID,
		TutorName:   session.TutorName,
		Subject:     session.Subject,
		Topic:       session.Topic,
		ScheduledAt: session.ScheduledAt,
		Status:      session.Status,
		Previous:    previous,
		OccurredAt:  s.now().UTC(),
	}
}

func (s *SessionService) publish(ctx context.Context, event models.SessionEvent) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, event)
}
