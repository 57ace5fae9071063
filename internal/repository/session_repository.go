package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tutor-connect-api/internal/models"
)

// ErrStaleWrite is returned when a guarded update matched no rows because the
// row changed since it was read.
var ErrStaleWrite = errors.New("stale write")

const sessionSelect = `SELECT s.id, s.student_id, s.tutor_id, COALESCE(t.name, '') AS tutor_name, s.subject, s.topic,
	s.scheduled_at, s.duration_minutes, s.status, s.mode, s.notes, s.rating, s.feedback, s.created_at, s.updated_at
	FROM tutor_sessions s
	LEFT JOIN tutors t ON t.id = s.tutor_id`

// SessionRepository manages persistence for tutoring sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// List returns sessions matching the filter ordered by scheduled time.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, error) {
	query := sessionSelect + " WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("s.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.TutorID != "" {
		conditions = append(conditions, fmt.Sprintf("s.tutor_id = $%d", len(args)+1))
		args = append(args, filter.TutorID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, string(filter.Status))
	}
	if len(conditions) > 0 {
		query += " AND " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY s.scheduled_at ASC, s.created_at ASC"

	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// FindByID fetches a session by ID.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	if err := r.db.GetContext(ctx, &session, sessionSelect+" WHERE s.id = $1", id); err != nil {
		return nil, err
	}
	return &session, nil
}

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	const query = `INSERT INTO tutor_sessions (id, student_id, tutor_id, subject, topic, scheduled_at, duration_minutes, status, mode, notes, created_at, updated_at)
		VALUES (:id, :student_id, :tutor_id, :subject, :topic, :scheduled_at, :duration_minutes, :status, :mode, :notes, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// UpdateStatus moves a session from one status to another. The update only
// applies while the stored status still equals from; otherwise ErrStaleWrite.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, from, to models.SessionStatus) error {
	const query = `UPDATE tutor_sessions SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session status rows: %w", err)
	}
	if affected == 0 {
		return ErrStaleWrite
	}
	return nil
}

// SubmitFeedback records a rating on a completed, unrated session and
// recomputes the tutor's rating and review count in the same transaction.
func (r *SessionRepository) SubmitFeedback(ctx context.Context, id string, rating int, feedback *string) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin session feedback: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const rate = `UPDATE tutor_sessions SET rating = $1, feedback = $2, updated_at = $3
		WHERE id = $4 AND status = $5 AND rating IS NULL RETURNING tutor_id`
	var tutorID string
	if err = tx.QueryRowxContext(ctx, rate, rating, feedback, time.Now().UTC(), id, string(models.SessionCompleted)).Scan(&tutorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrStaleWrite
			return err
		}
		return fmt.Errorf("rate session: %w", err)
	}

	const aggregate = `UPDATE tutors SET
		rating = (SELECT COALESCE(ROUND(AVG(rating)::numeric, 2), 0) FROM tutor_sessions WHERE tutor_id = $1 AND rating IS NOT NULL),
		reviews = (SELECT COUNT(*) FROM tutor_sessions WHERE tutor_id = $1 AND rating IS NOT NULL),
		updated_at = $2
		WHERE id = $1`
	if _, err = tx.ExecContext(ctx, aggregate, tutorID, time.Now().UTC()); err != nil {
		return fmt.Errorf("recompute tutor rating: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit session feedback: %w", err)
	}
	return nil
}
