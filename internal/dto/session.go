package dto

import "github.com/noah-isme/tutor-connect-api/internal/models"

// SessionBoard groups a student's sessions by lifecycle stage.
type SessionBoard struct {
	Upcoming   []models.Session `json:"upcoming"`
	InProgress []models.Session `json:"in_progress"`
	Completed  []models.Session `json:"completed"`
}

// Total returns the number of sessions on the board.
func (b SessionBoard) Total() int {
	return len(b.Upcoming) + len(b.InProgress) + len(b.Completed)
}

// UpdateStatusResponse returns the updated session alongside the freshly fetched board.
type UpdateStatusResponse struct {
	Session models.Session `json:"session"`
	Board   SessionBoard   `json:"board"`
	Changed bool           `json:"changed"`
}

// FeedbackResponse returns the rated session and the tutor's recomputed aggregates.
type FeedbackResponse struct {
	Session models.Session `json:"session"`
	Tutor   models.Tutor   `json:"tutor"`
}
