package models

import (
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of a tutoring session.
type SessionStatus string

const (
	SessionScheduled  SessionStatus = "scheduled"
	SessionInProgress SessionStatus = "in-progress"
	SessionCompleted  SessionStatus = "completed"
)

// ParseSessionStatus converts raw input into a SessionStatus, rejecting unknown values.
func ParseSessionStatus(raw string) (SessionStatus, error) {
	switch s := SessionStatus(raw); s {
	case SessionScheduled, SessionInProgress, SessionCompleted:
		return s, nil
	default:
		return "", fmt.Errorf("unknown session status %q", raw)
	}
}

// Next returns the status that immediately follows s, if any.
func (s SessionStatus) Next() (SessionStatus, bool) {
	switch s {
	case SessionScheduled:
		return SessionInProgress, true
	case SessionInProgress:
		return SessionCompleted, true
	}
	return "", false
}

// CanTransition reports whether from -> to is a single forward step.
func CanTransition(from, to SessionStatus) bool {
	next, ok := from.Next()
	return ok && next == to
}

// Session represents a tutoring session row.
type Session struct {
	ID              string            `db:"id" json:"id"`
	StudentID       string            `db:"student_id" json:"student_id"`
	TutorID         string            `db:"tutor_id" json:"tutor_id"`
	TutorName       string            `db:"tutor_name" json:"tutor_name"`
	Subject         string            `db:"subject" json:"subject"`
	Topic           string            `db:"topic" json:"topic"`
	ScheduledAt     time.Time         `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes int               `db:"duration_minutes" json:"duration_minutes"`
	Status          SessionStatus     `db:"status" json:"status"`
	Mode            CommunicationMode `db:"mode" json:"mode"`
	Notes           *string           `db:"notes" json:"notes,omitempty"`
	Rating          *int              `db:"rating" json:"rating,omitempty"`
	Feedback        *string           `db:"feedback" json:"feedback,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// Rated reports whether feedback has already been recorded.
func (s Session) Rated() bool {
	return s.Rating != nil
}

// SessionFilter narrows session listings.
type SessionFilter struct {
	StudentID string
	TutorID   string
	Status    SessionStatus
}

// UpdateSessionStatusRequest is the payload for moving a session forward.
type UpdateSessionStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// SubmitFeedbackRequest is the payload for rating a completed session.
type SubmitFeedbackRequest struct {
	Rating   int    `json:"rating" validate:"required,min=1,max=5"`
	Feedback string `json:"feedback" validate:"omitempty,max=1000"`
}

// Session event types.
const (
	EventSessionScheduled     = "session.scheduled"
	EventSessionStatusChanged = "session.status_changed"
	EventSessionFeedback      = "session.feedback"
)

// SessionEvent is published to a student's realtime channel whenever one of
// their sessions changes.
type SessionEvent struct {
	Type         string        `json:"type"`
	SessionID    string        `json:"session_id"`
	StudentID    string        `json:"student_id"`
	StudentEmail string        `json:"-"`
	TutorID      string        `json:"tutor_id"`
	TutorName    string        `json:"tutor_name,omitempty"`
	Subject      string        `json:"subject,omitempty"`
	Topic        string        `json:"topic,omitempty"`
	ScheduledAt  time.Time     `json:"scheduled_at"`
	Status       SessionStatus `json:"status"`
	Previous     SessionStatus `json:"previous_status,omitempty"`
	OccurredAt   time.Time     `json:"occurred_at"`
}
