package models

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// TutorStatus describes a tutor's current availability.
type TutorStatus string

const (
	TutorAvailable TutorStatus = "available"
	TutorBusy      TutorStatus = "busy"
	TutorScheduled TutorStatus = "scheduled"
)

// Valid reports whether the status is one of the known availability states.
func (s TutorStatus) Valid() bool {
	switch s {
	case TutorAvailable, TutorBusy, TutorScheduled:
		return true
	}
	return false
}

// CommunicationMode is a channel a tutor can run sessions over.
type CommunicationMode string

const (
	ModeVideo CommunicationMode = "video"
	ModeAudio CommunicationMode = "audio"
	ModeChat  CommunicationMode = "chat"
)

// Valid reports whether the mode is supported.
func (m CommunicationMode) Valid() bool {
	switch m {
	case ModeVideo, ModeAudio, ModeChat:
		return true
	}
	return false
}

// DefaultCommunicationModes are assigned to tutors whose row carries no modes.
func DefaultCommunicationModes() []CommunicationMode {
	return []CommunicationMode{ModeVideo, ModeChat}
}

// TutorRecord mirrors a raw tutors row. Nullable columns stay nullable here;
// NewTutor is responsible for defaulting them.
type TutorRecord struct {
	ID                 string          `db:"id"`
	Name               string          `db:"name"`
	Specialty          string          `db:"specialty"`
	Expertise          types.JSONText  `db:"expertise"`
	Rating             sql.NullFloat64 `db:"rating"`
	Reviews            sql.NullInt64   `db:"reviews"`
	Level              sql.NullInt64   `db:"level"`
	Status             sql.NullString  `db:"status"`
	CommunicationModes types.JSONText  `db:"communication_modes"`
	Bio                sql.NullString  `db:"bio"`
	AvatarURL          sql.NullString  `db:"avatar_url"`
	CreatedAt          time.Time       `db:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at"`
}

// Tutor is the normalised tutor view returned to clients.
type Tutor struct {
	ID                 string              `json:"id"`
	Name               string              `json:"name"`
	Specialty          string              `json:"specialty"`
	Expertise          []string            `json:"expertise"`
	Rating             float64             `json:"rating"`
	Reviews            int                 `json:"reviews"`
	Level              int                 `json:"level"`
	Status             TutorStatus         `json:"status"`
	CommunicationModes []CommunicationMode `json:"communication_modes"`
	Bio                string              `json:"bio,omitempty"`
	AvatarURL          string              `json:"avatar_url,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// NewTutor converts a raw row into a Tutor. Missing reviews and rating become 0,
// level is at least 1, unknown status becomes available, missing expertise is an
// empty list and missing communication modes fall back to video and chat.
func NewTutor(rec TutorRecord) Tutor {
	t := Tutor{
		ID:        rec.ID,
		Name:      rec.Name,
		Specialty: rec.Specialty,
		Expertise: decodeStrings(rec.Expertise),
		Level:     1,
		Status:    TutorAvailable,
		Bio:       rec.Bio.String,
		AvatarURL: rec.AvatarURL.String,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if rec.Rating.Valid {
		t.Rating = rec.Rating.Float64
	}
	if rec.Reviews.Valid && rec.Reviews.Int64 > 0 {
		t.Reviews = int(rec.Reviews.Int64)
	}
	if rec.Level.Valid && rec.Level.Int64 > 1 {
		t.Level = int(rec.Level.Int64)
	}
	if status := TutorStatus(rec.Status.String); rec.Status.Valid && status.Valid() {
		t.Status = status
	}

	for _, raw := range decodeStrings(rec.CommunicationModes) {
		if mode := CommunicationMode(raw); mode.Valid() {
			t.CommunicationModes = append(t.CommunicationModes, mode)
		}
	}
	if len(t.CommunicationModes) == 0 {
		t.CommunicationModes = DefaultCommunicationModes()
	}
	return t
}

// SupportsMode reports whether the tutor offers the given communication mode.
func (t Tutor) SupportsMode(mode CommunicationMode) bool {
	for _, m := range t.CommunicationModes {
		if m == mode {
			return true
		}
	}
	return false
}

func decodeStrings(raw types.JSONText) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return out
	}
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// TutorFilter captures the directory filters. The zero value matches everything.
// Subject matches the specialty or any expertise tag, ignoring case.
type TutorFilter struct {
	Subject           string
	Availability      TutorStatus
	CommunicationMode CommunicationMode
	Search            string
	Page              int
	PageSize          int
}

// Matches applies every active filter, including free-text search, in memory.
func (f TutorFilter) Matches(t Tutor) bool {
	if f.Subject != "" && !strings.EqualFold(t.Specialty, f.Subject) && !containsFold(t.Expertise, f.Subject) {
		return false
	}
	if f.Availability != "" && t.Status != f.Availability {
		return false
	}
	if f.CommunicationMode != "" && !t.SupportsMode(f.CommunicationMode) {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if strings.Contains(strings.ToLower(t.Name), q) || strings.Contains(strings.ToLower(t.Specialty), q) {
			return true
		}
		for _, tag := range t.Expertise {
			if strings.Contains(strings.ToLower(tag), q) {
				return true
			}
		}
		return false
	}
	return true
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}

// LeaderboardSort selects the metric the leaderboard ranks by.
type LeaderboardSort string

const (
	SortByLevel   LeaderboardSort = "level"
	SortByRating  LeaderboardSort = "rating"
	SortByReviews LeaderboardSort = "reviews"
)

// Valid reports whether the sort key is supported.
func (s LeaderboardSort) Valid() bool {
	switch s {
	case SortByLevel, SortByRating, SortByReviews:
		return true
	}
	return false
}

// CreateTutorRequest is the payload for registering a tutor.
type CreateTutorRequest struct {
	Name               string   `json:"name" validate:"required,min=2,max=120"`
	Specialty          string   `json:"specialty" validate:"required,max=120"`
	Expertise          []string `json:"expertise" validate:"omitempty,dive,required,max=60"`
	Level              int      `json:"level" validate:"omitempty,min=1,max=100"`
	Status             string   `json:"status" validate:"omitempty,oneof=available busy scheduled"`
	CommunicationModes []string `json:"communication_modes" validate:"omitempty,dive,oneof=video audio chat"`
	Bio                string   `json:"bio" validate:"omitempty,max=2000"`
	AvatarURL          string   `json:"avatar_url" validate:"omitempty,url"`
}

// UpdateAvailabilityRequest changes a tutor's status.
type UpdateAvailabilityRequest struct {
	Status string `json:"status" validate:"required,oneof=available busy scheduled"`
}
