package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-connect-api/internal/models"
	"github.com/noah-isme/tutor-connect-api/internal/repository"
	appErrors "github.com/noah-isme/tutor-connect-api/pkg/errors"
)

type mockSessionRepo struct {
	items        map[string]*models.Session
	order        []string
	createErr    error
	updateErr    error
	feedbackErr  error
	listCalls    int
	statusCalls  int
	feedbackCall struct {
		id       string
		rating   int
		feedback *string
	}
}

func newMockSessionRepo(sessions ...models.Session) *mockSessionRepo {
	repo := &mockSessionRepo{items: make(map[string]*models.Session)}
	for i := range sessions {
		s := sessions[i]
		repo.items[s.ID] = &s
		repo.order = append(repo.order, s.ID)
	}
	return repo
}

func (m *mockSessionRepo) List(_ context.Context, filter models.SessionFilter) ([]models.Session, error) {
	m.listCalls++
	var out []models.Session
	for _, id := range m.order {
		s := m.items[id]
		if filter.StudentID != "" && s.StudentID != filter.StudentID {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (m *mockSessionRepo) FindByID(_ context.Context, id string) (*models.Session, error) {
	s, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (m *mockSessionRepo) Create(_ context.Context, session *models.Session) error {
	if m.createErr != nil {
		return m.createErr
	}
	session.ID = "new-session"
	cp := *session
	m.items[session.ID] = &cp
	m.order = append(m.order, session.ID)
	return nil
}

func (m *mockSessionRepo) UpdateStatus(_ context.Context, id string, from, to models.SessionStatus) error {
	m.statusCalls++
	if m.updateErr != nil {
		return m.updateErr
	}
	s := m.items[id]
	if s.Status != from {
		return repository.ErrStaleWrite
	}
	s.Status = to
	return nil
}

func (m *mockSessionRepo) SubmitFeedback(_ context.Context, id string, rating int, feedback *string) error {
	if m.feedbackErr != nil {
		return m.feedbackErr
	}
	m.feedbackCall.id, m.feedbackCall.rating, m.feedbackCall.feedback = id, rating, feedback
	s := m.items[id]
	s.Rating = &rating
	s.Feedback = feedback
	return nil
}

type memoryIdempotency struct {
	held     map[string]bool
	released []string
}

func (m *memoryIdempotency) Reserve(_ context.Context, key string, _ time.Duration) (bool, error) {
	if m.held == nil {
		m.held = make(map[string]bool)
	}
	if m.held[key] {
		return false, nil
	}
	m.held[key] = true
	return true, nil
}

func (m *memoryIdempotency) Release(_ context.Context, key string) error {
	delete(m.held, key)
	m.released = append(m.released, key)
	return nil
}

type capturedEvents struct {
	events []models.SessionEvent
}

func (c *capturedEvents) Publish(_ context.Context, event models.SessionEvent) {
	c.events = append(c.events, event)
}

var fixedNow = time.Date(2030, 3, 1, 9, 0, 0, 0, time.UTC)

type sessionFixture struct {
	svc         *SessionService
	repo        *mockSessionRepo
	tutors      *mockTutorRepo
	idempotency *memoryIdempotency
	events      *capturedEvents
	cacheRepo   *stubCacheRepo
}

func newSessionFixture(sessions ...models.Session) *sessionFixture {
	f := &sessionFixture{
		repo:        newMockSessionRepo(sessions...),
		tutors:      &mockTutorRepo{tutors: sampleTutors()},
		idempotency: &memoryIdempotency{},
		events:      &capturedEvents{},
		cacheRepo:   &stubCacheRepo{},
	}
	cacheSvc := NewCacheService(f.cacheRepo, nil, time.Minute, zap.NewNop(), true)
	f.svc = NewSessionService(f.repo, f.tutors, f.idempotency, f.events, cacheSvc, NewMetricsService(), nil, zap.NewNop(), SessionServiceConfig{})
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

var student = models.Actor{ID: "stu-1", Role: models.RoleStudent, Email: "stu@example.com"}

func validSchedule() ScheduleSessionRequest {
	return ScheduleSessionRequest{
		TutorID:  "a",
		Subject:  "Mathematics",
		Topic:    "Kinematics review",
		Date:     fixedNow.Add(48 * time.Hour).Format(time.RFC3339),
		Duration: 60,
		Mode:     "video",
	}
}

func TestSessionServiceScheduleAcceptsValidForm(t *testing.T) {
	f := newSessionFixture()

	session, err := f.svc.Schedule(context.Background(), student, validSchedule(), "")
	require.NoError(t, err)
	assert.Equal(t, "new-session", session.ID)
	assert.Equal(t, models.SessionScheduled, session.Status)
	assert.Equal(t, "stu-1", session.StudentID)
	assert.Equal(t, "Ada Lovelace", session.TutorName)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, models.EventSessionScheduled, f.events.events[0].Type)
	assert.Equal(t, "stu@example.com", f.events.events[0].StudentEmail)
}

func TestSessionServiceScheduleValidation(t *testing.T) {
	cases := map[string]func(r *ScheduleSessionRequest){
		"short topic":         func(r *ScheduleSessionRequest) { r.Topic = "ab" },
		"padded short topic":  func(r *ScheduleSessionRequest) { r.Topic = "  ab  " },
		"missing subject":     func(r *ScheduleSessionRequest) { r.Subject = "" },
		"blank subject":       func(r *ScheduleSessionRequest) { r.Subject = "   " },
		"missing topic":       func(r *ScheduleSessionRequest) { r.Topic = "" },
		"missing date":        func(r *ScheduleSessionRequest) { r.Date = "" },
		"bad date":            func(r *ScheduleSessionRequest) { r.Date = "tomorrow" },
		"past date":           func(r *ScheduleSessionRequest) { r.Date = fixedNow.Add(-time.Hour).Format(time.RFC3339) },
		"missing duration":    func(r *ScheduleSessionRequest) { r.Duration = 0 },
		"unsupported length":  func(r *ScheduleSessionRequest) { r.Duration = 50 },
		"missing mode":        func(r *ScheduleSessionRequest) { r.Mode = "" },
		"unknown mode":        func(r *ScheduleSessionRequest) { r.Mode = "fax" },
		"mode tutor lacks":    func(r *ScheduleSessionRequest) { r.Mode = "chat" },
		"notes too long":      func(r *ScheduleSessionRequest) { r.Notes = strings.Repeat("x", 1001) },
		"missing tutor field": func(r *ScheduleSessionRequest) { r.TutorID = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newSessionFixture()
			req := validSchedule()
			mutate(&req)

			_, err := f.svc.Schedule(context.Background(), student, req, "")
			assert.ErrorIs(t, err, appErrors.ErrValidation)
			assert.Empty(t, f.events.events)
		})
	}
}

func TestSessionServiceScheduleUnknownTutor(t *testing.T) {
	f := newSessionFixture()
	req := validSchedule()
	req.TutorID = "ghost"

	_, err := f.svc.Schedule(context.Background(), student, req, "")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestSessionServiceScheduleIdempotencyKey(t *testing.T) {
	f := newSessionFixture()

	_, err := f.svc.Schedule(context.Background(), student, validSchedule(), "key-1")
	require.NoError(t, err)

	_, err = f.svc.Schedule(context.Background(), student, validSchedule(), "key-1")
	assert.ErrorIs(t, err, appErrors.ErrDuplicateSubmission)
	assert.Len(t, f.repo.items, 1)

	other := models.Actor{ID: "stu-2", Role: models.RoleStudent}
	_, err = f.svc.Schedule(context.Background(), other, validSchedule(), "key-1")
	assert.NoError(t, err)
}

func TestSessionServiceScheduleReleasesKeyOnFailure(t *testing.T) {
	f := newSessionFixture()
	f.repo.createErr = errors.New("insert failed")

	_, err := f.svc.Schedule(context.Background(), student, validSchedule(), "key-1")
	assert.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Len(t, f.idempotency.released, 1)
	assert.Empty(t, f.idempotency.held)
}

func sessionAt(id string, status models.SessionStatus, at time.Time) models.Session {
	return models.Session{ID: id, StudentID: "stu-1", TutorID: "a", TutorName: "Ada Lovelace", Subject: "Mathematics", Topic: "Limits", ScheduledAt: at, DurationMinutes: 60, Status: status, Mode: models.ModeVideo}
}

func TestPartitionSessions(t *testing.T) {
	board := PartitionSessions([]models.Session{
		sessionAt("late", models.SessionScheduled, fixedNow.Add(72*time.Hour)),
		sessionAt("old", models.SessionCompleted, fixedNow.Add(-72*time.Hour)),
		sessionAt("soon", models.SessionScheduled, fixedNow.Add(time.Hour)),
		sessionAt("live", models.SessionInProgress, fixedNow),
		sessionAt("recent", models.SessionCompleted, fixedNow.Add(-time.Hour)),
	})

	assert.Equal(t, "soon", board.Upcoming[0].ID)
	assert.Equal(t, "late", board.Upcoming[1].ID)
	assert.Equal(t, "live", board.InProgress[0].ID)
	assert.Equal(t, "recent", board.Completed[0].ID)
	assert.Equal(t, "old", board.Completed[1].ID)
	assert.Equal(t, 5, board.Total())

	empty := PartitionSessions(nil)
	assert.NotNil(t, empty.Upcoming)
	assert.NotNil(t, empty.Completed)
}

func TestSessionServiceUpdateStatusForward(t *testing.T) {
	f := newSessionFixture(sessionAt("s1", models.SessionScheduled, fixedNow.Add(time.Hour)))

	resp, err := f.svc.UpdateStatus(context.Background(), student, "s1", "in-progress")
	require.NoError(t, err)
	assert.True(t, resp.Changed)
	assert.Equal(t, models.SessionInProgress, resp.Session.Status)
	require.Len(t, resp.Board.InProgress, 1)
	assert.Empty(t, resp.Board.Upcoming)
	assert.Equal(t, 1, f.repo.listCalls)

	require.Len(t, f.events.events, 1)
	assert.Equal(t, models.SessionScheduled, f.events.events[0].Previous)
	assert.Equal(t, models.SessionInProgress, f.events.events[0].Status)
}

func TestSessionServiceUpdateStatusSameStatusIsNoop(t *testing.T) {
	f := newSessionFixture(sessionAt("s1", models.SessionInProgress, fixedNow))

	resp, err := f.svc.UpdateStatus(context.Background(), student, "s1", "in-progress")
	require.NoError(t, err)
	assert.False(t, resp.Changed)
	assert.Equal(t, 0, f.repo.statusCalls)
	assert.Empty(t, f.events.events)
}

func TestSessionServiceUpdateStatusRejections(t *testing.T) {
	cases := []struct {
		name    string
		current models.SessionStatus
		target  string
		actor   models.Actor
		want    *appErrors.Error
	}{
		{"unknown status", models.SessionScheduled, "cancelled", student, appErrors.ErrValidation},
		{"skip step", models.SessionScheduled, "completed", student, appErrors.ErrInvalidTransition},
		{"backwards", models.SessionCompleted, "in-progress", student, appErrors.ErrInvalidTransition},
		{"other student", models.SessionScheduled, "in-progress", models.Actor{ID: "stu-2", Role: models.RoleStudent}, appErrors.ErrForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newSessionFixture(sessionAt("s1", tc.current, fixedNow))
			_, err := f.svc.UpdateStatus(context.Background(), tc.actor, "s1", tc.target)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, 0, f.repo.statusCalls)
		})
	}

	f := newSessionFixture()
	_, err := f.svc.UpdateStatus(context.Background(), student, "missing", "in-progress")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestSessionServiceUpdateStatusBookedTutor(t *testing.T) {
	f := newSessionFixture(sessionAt("s1", models.SessionScheduled, fixedNow))
	tutor := models.Actor{ID: "a", Role: models.RoleTutor}

	resp, err := f.svc.UpdateStatus(context.Background(), tutor, "s1", "in-progress")
	require.NoError(t, err)
	assert.Len(t, resp.Board.InProgress, 1)
}

func TestSessionServiceOtherTutorForbidden(t *testing.T) {
	f := newSessionFixture(sessionAt("s1", models.SessionScheduled, fixedNow))
	other := models.Actor{ID: "someone-else", Role: models.RoleTutor}

	_, err := f.svc.Get(context.Background(), other, "s1")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.UpdateStatus(context.Background(), other, "s1", "in-progress")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	assert.Empty(t, f.events.events)
}

func TestSessionServiceUpdateStatusConflictAndFailure(t *testing.T) {
	f := newSessionFixture(sessionAt("s1", models.SessionScheduled, fixedNow))
	f.repo.updateErr = repository.ErrStaleWrite
	_, err := f.svc.UpdateStatus(context.Background(), student, "s1", "in-progress")
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	f.repo.updateErr = errors.New("connection refused")
	_, err = f.svc.UpdateStatus(context.Background(), student, "s1", "in-progress")
	require.ErrorIs(t, err, appErrors.ErrInternal)
	assert.Equal(t, "failed to update session status", appErrors.FromError(err).Message)
	assert.Empty(t, f.events.events)
}

func TestSessionServiceSubmitFeedback(t *testing.T) {
	f := newSessionFixture(sessionAt("s1", models.SessionCompleted, fixedNow.Add(-time.Hour)))

	resp, err := f.svc.SubmitFeedback(context.Background(), student, "s1", models.SubmitFeedbackRequest{Rating: 5, Feedback: "  great  "})
	require.NoError(t, err)
	require.NotNil(t, resp.Session.Rating)
	assert.Equal(t, 5, *resp.Session.Rating)
	assert.Equal(t, "great", *f.repo.feedbackCall.feedback)
	assert.Equal(t, "a", resp.Tutor.ID)
	assert.Equal(t, []string{"tutors:*"}, f.cacheRepo.invalidated)
	require.Len(t, f.events.events, 1)
	assert.Equal(t, models.EventSessionFeedback, f.events.events[0].Type)

	_, err = f.svc.SubmitFeedback(context.Background(), student, "s1", models.SubmitFeedbackRequest{Rating: 4})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestSessionServiceSubmitFeedbackRejections(t *testing.T) {
	f := newSessionFixture(
		sessionAt("pending", models.SessionScheduled, fixedNow),
		sessionAt("done", models.SessionCompleted, fixedNow),
	)
	ctx := context.Background()

	_, err := f.svc.SubmitFeedback(ctx, student, "pending", models.SubmitFeedbackRequest{Rating: 5})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	_, err = f.svc.SubmitFeedback(ctx, student, "done", models.SubmitFeedbackRequest{Rating: 6})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.SubmitFeedback(ctx, student, "done", models.SubmitFeedbackRequest{Rating: 3, Feedback: strings.Repeat("x", 1001)})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	admin := models.Actor{ID: "admin", Role: models.RoleAdmin}
	_, err = f.svc.SubmitFeedback(ctx, admin, "done", models.SubmitFeedbackRequest{Rating: 3})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	f.repo.feedbackErr = repository.ErrStaleWrite
	_, err = f.svc.SubmitFeedback(ctx, student, "done", models.SubmitFeedbackRequest{Rating: 3})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestSessionServiceExport(t *testing.T) {
	rated := sessionAt("s1", models.SessionCompleted, fixedNow.Add(-time.Hour))
	rating := 4
	rated.Rating = &rating
	f := newSessionFixture(rated, sessionAt("s2", models.SessionScheduled, fixedNow.Add(time.Hour)))

	doc, err := f.svc.Export(context.Background(), "stu-1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", doc.ContentType)
	assert.Equal(t, "sessions-20300301.csv", doc.Filename)
	lines := strings.Split(strings.TrimSpace(string(doc.Data)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Date,Tutor,Subject"))
	assert.Contains(t, lines[1], "Ada Lovelace")

	pdf, err := f.svc.Export(context.Background(), "stu-1", "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", pdf.ContentType)
	assert.True(t, strings.HasPrefix(string(pdf.Data), "%PDF"))

	_, err = f.svc.Export(context.Background(), "stu-1", "xlsx")
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
