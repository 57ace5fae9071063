package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-connect-api/internal/models"
	appErrors "github.com/noah-isme/tutor-connect-api/pkg/errors"
)

type mockTutorRepo struct {
	tutors      []models.Tutor
	listErr     error
	listCalls   int
	lastFilter  models.TutorFilter
	created     []*models.TutorRecord
	statusCalls map[string]models.TutorStatus
}

func (m *mockTutorRepo) List(_ context.Context, filter models.TutorFilter) ([]models.Tutor, error) {
	m.listCalls++
	m.lastFilter = filter
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]models.Tutor, len(m.tutors))
	copy(out, m.tutors)
	return out, nil
}

func (m *mockTutorRepo) FindByID(_ context.Context, id string) (*models.Tutor, error) {
	for _, t := range m.tutors {
		if t.ID == id {
			cp := t
			if status, ok := m.statusCalls[id]; ok {
				cp.Status = status
			}
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockTutorRepo) Create(_ context.Context, rec *models.TutorRecord) error {
	rec.ID = "generated"
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	m.created = append(m.created, rec)
	return nil
}

func (m *mockTutorRepo) UpdateStatus(_ context.Context, id string, status models.TutorStatus) error {
	if _, err := m.FindByID(context.Background(), id); err != nil {
		return err
	}
	if m.statusCalls == nil {
		m.statusCalls = make(map[string]models.TutorStatus)
	}
	m.statusCalls[id] = status
	return nil
}

func sampleTutors() []models.Tutor {
	return []models.Tutor{
		{ID: "a", Name: "Ada Lovelace", Specialty: "Mathematics", Expertise: []string{"Algebra"}, Rating: 4.9, Reviews: 40, Level: 3, Status: models.TutorAvailable, CommunicationModes: []models.CommunicationMode{models.ModeVideo}},
		{ID: "b", Name: "Niels Bohr", Specialty: "Physics", Expertise: []string{"Quantum"}, Rating: 4.7, Reviews: 90, Level: 5, Status: models.TutorBusy, CommunicationModes: []models.CommunicationMode{models.ModeChat}},
		{ID: "c", Name: "Marie Curie", Specialty: "Chemistry", Expertise: []string{"Radioactivity", "Physics"}, Rating: 4.9, Reviews: 15, Level: 5, Status: models.TutorAvailable, CommunicationModes: []models.CommunicationMode{models.ModeVideo, models.ModeAudio}},
	}
}

func newTutorService(repo *mockTutorRepo, cacheRepo CacheRepository) *TutorService {
	cacheSvc := NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), cacheRepo != nil)
	return NewTutorService(repo, cacheSvc, nil, nil, zap.NewNop(), TutorServiceConfig{CacheTTL: time.Minute})
}

func TestTutorServiceListSearchAndPaginate(t *testing.T) {
	repo := &mockTutorRepo{tutors: sampleTutors()}
	svc := newTutorService(repo, nil)

	list, pagination, hit, err := svc.List(context.Background(), models.TutorFilter{Search: "CURIE"})
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, list, 1)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, 1, pagination.TotalCount)

	list, pagination, _, err = svc.List(context.Background(), models.TutorFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "c", list[0].ID)
	assert.Equal(t, 3, pagination.TotalCount)
	assert.Equal(t, 2, pagination.PageSize)
}

func TestTutorServiceListFilteredIsSubsetSatisfyingPredicates(t *testing.T) {
	repo := &mockTutorRepo{tutors: sampleTutors()}
	svc := newTutorService(repo, nil)

	filter := models.TutorFilter{Subject: "Physics", Availability: models.TutorAvailable}
	list, _, _, err := svc.List(context.Background(), filter)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "c", list[0].ID)
	for _, tutor := range list {
		assert.True(t, filter.Matches(tutor))
	}
	assert.Equal(t, "Physics", repo.lastFilter.Subject)
	assert.Empty(t, repo.lastFilter.Search)
}

func TestTutorServiceListRejectsUnknownPredicates(t *testing.T) {
	svc := newTutorService(&mockTutorRepo{}, nil)

	_, _, _, err := svc.List(context.Background(), models.TutorFilter{Availability: "vacation"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, _, _, err = svc.List(context.Background(), models.TutorFilter{CommunicationMode: "fax"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestTutorServiceListUsesCacheAcrossSearches(t *testing.T) {
	repo := &mockTutorRepo{tutors: sampleTutors()}
	svc := newTutorService(repo, &stubCacheRepo{})

	_, _, hit, err := svc.List(context.Background(), models.TutorFilter{Search: "ada"})
	require.NoError(t, err)
	assert.False(t, hit)

	list, _, hit, err := svc.List(context.Background(), models.TutorFilter{Search: "bohr"})
	require.NoError(t, err)
	assert.True(t, hit)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, 1, repo.listCalls)
}

func TestTutorServiceListWrapsRepositoryErrors(t *testing.T) {
	svc := newTutorService(&mockTutorRepo{listErr: errors.New("connection reset")}, nil)

	_, _, _, err := svc.List(context.Background(), models.TutorFilter{})
	assert.ErrorIs(t, err, appErrors.ErrInternal)
}

func TestTutorServiceLeaderboardIsStable(t *testing.T) {
	svc := newTutorService(&mockTutorRepo{tutors: sampleTutors()}, nil)

	board, err := svc.Leaderboard(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, models.SortByRating, board.SortBy)
	require.Len(t, board.Entries, 3)
	assert.Equal(t, []string{"a", "c", "b"}, []string{board.Entries[0].Tutor.ID, board.Entries[1].Tutor.ID, board.Entries[2].Tutor.ID})
	assert.Equal(t, 1, board.Entries[0].Rank)
	assert.Equal(t, 3, board.Entries[2].Rank)

	board, err = svc.Leaderboard(context.Background(), "level", 1)
	require.NoError(t, err)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, "b", board.Entries[0].Tutor.ID)

	_, err = svc.Leaderboard(context.Background(), "name", 10)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestSortTutorsByReviews(t *testing.T) {
	tutors := sampleTutors()
	SortTutors(tutors, models.SortByReviews)
	assert.Equal(t, "b", tutors[0].ID)
	assert.Equal(t, "a", tutors[1].ID)
	assert.Equal(t, "c", tutors[2].ID)
}

func TestTutorServiceCreateAppliesDefaults(t *testing.T) {
	repo := &mockTutorRepo{}
	svc := newTutorService(repo, nil)

	tutor, err := svc.Create(context.Background(), models.CreateTutorRequest{Name: "Ada", Specialty: "Mathematics"})
	require.NoError(t, err)
	assert.Equal(t, "generated", tutor.ID)
	assert.Equal(t, models.TutorAvailable, tutor.Status)
	assert.Equal(t, 1, tutor.Level)
	assert.Equal(t, models.DefaultCommunicationModes(), tutor.CommunicationModes)
	require.Len(t, repo.created, 1)
	assert.JSONEq(t, `[]`, string(repo.created[0].Expertise))

	_, err = svc.Create(context.Background(), models.CreateTutorRequest{Name: "A", Specialty: "Math", CommunicationModes: []string{"fax"}})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestTutorServiceUpdateAvailability(t *testing.T) {
	repo := &mockTutorRepo{tutors: sampleTutors()}
	cacheRepo := &stubCacheRepo{}
	svc := newTutorService(repo, cacheRepo)

	tutor, err := svc.UpdateAvailability(context.Background(), "a", models.UpdateAvailabilityRequest{Status: "busy"})
	require.NoError(t, err)
	assert.Equal(t, models.TutorBusy, tutor.Status)
	assert.Equal(t, []string{"tutors:*"}, cacheRepo.invalidated)

	_, err = svc.UpdateAvailability(context.Background(), "missing", models.UpdateAvailabilityRequest{Status: "busy"})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.UpdateAvailability(context.Background(), "a", models.UpdateAvailabilityRequest{Status: "asleep"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
