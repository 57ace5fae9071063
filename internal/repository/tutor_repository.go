package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-connect-api/internal/models"
)

const tutorColumns = "id, name, specialty, expertise, rating, reviews, level, status, communication_modes, bio, avatar_url, created_at, updated_at"

// The filter expressions read columns the way models.NewTutor normalises them:
// unknown or NULL status counts as available, rows without a known mode offer
// video and chat, and expertise tags compare trimmed and case-insensitively.
const (
	tutorStatusExpr       = "(CASE WHEN status IN ('available', 'busy', 'scheduled') THEN status ELSE 'available' END)"
	expertiseTagExpr      = "(CASE WHEN jsonb_typeof(expertise) = 'array' THEN EXISTS (SELECT 1 FROM jsonb_array_elements_text(expertise) AS tag WHERE LOWER(TRIM(tag)) = LOWER($%d)) ELSE FALSE END)"
	communicationModeExpr = "(communication_modes @> jsonb_build_array($%d::text) OR ($%d::text IN ('video', 'chat') AND NOT (COALESCE(communication_modes, '[]'::jsonb) ?| ARRAY['video', 'audio', 'chat'])))"
)

// TutorRepository manages persistence for tutors.
type TutorRepository struct {
	db *sqlx.DB
}

// NewTutorRepository constructs a TutorRepository.
func NewTutorRepository(db *sqlx.DB) *TutorRepository {
	return &TutorRepository{db: db}
}

// List returns tutors matching the remote predicates of the filter. Free-text
// search and pagination are left to the caller. Row order is whatever the
// database yields.
func (r *TutorRepository) List(ctx context.Context, filter models.TutorFilter) ([]models.Tutor, error) {
	query := "SELECT " + tutorColumns + " FROM tutors WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Subject != "" {
		n := len(args) + 1
		conditions = append(conditions, fmt.Sprintf("(LOWER(specialty) = LOWER($%d) OR %s)", n, fmt.Sprintf(expertiseTagExpr, n)))
		args = append(args, filter.Subject)
	}
	if filter.Availability != "" {
		conditions = append(conditions, fmt.Sprintf(tutorStatusExpr+" = $%d", len(args)+1))
		args = append(args, string(filter.Availability))
	}
	if filter.CommunicationMode != "" {
		n := len(args) + 1
		conditions = append(conditions, fmt.Sprintf(communicationModeExpr, n, n))
		args = append(args, string(filter.CommunicationMode))
	}
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}

	var records []models.TutorRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list tutors: %w", err)
	}

	tutors := make([]models.Tutor, 0, len(records))
	for _, rec := range records {
		tutors = append(tutors, models.NewTutor(rec))
	}
	return tutors, nil
}

// FindByID fetches a tutor by ID.
func (r *TutorRepository) FindByID(ctx context.Context, id string) (*models.Tutor, error) {
	query := "SELECT " + tutorColumns + " FROM tutors WHERE id = $1"
	var rec models.TutorRecord
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		return nil, err
	}
	tutor := models.NewTutor(rec)
	return &tutor, nil
}

// Create inserts a new tutor row.
func (r *TutorRepository) Create(ctx context.Context, rec *models.TutorRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	const query = `INSERT INTO tutors (id, name, specialty, expertise, rating, reviews, level, status, communication_modes, bio, avatar_url, created_at, updated_at)
		VALUES (:id, :name, :specialty, :expertise, :rating, :reviews, :level, :status, :communication_modes, :bio, :avatar_url, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("create tutor: %w", err)
	}
	return nil
}

// UpdateStatus sets a tutor's availability. It returns sql.ErrNoRows when the tutor does not exist.
func (r *TutorRepository) UpdateStatus(ctx context.Context, id string, status models.TutorStatus) error {
	const query = `UPDATE tutors SET status = $1, updated_at = $2 WHERE id = $3`
	res, err := r.db.ExecContext(ctx, query, string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update tutor status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update tutor status rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
