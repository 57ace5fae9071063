package dto

import "github.com/noah-isme/tutor-connect-api/internal/models"

// LeaderboardEntry is a ranked tutor.
type LeaderboardEntry struct {
	Rank  int          `json:"rank"`
	Tutor models.Tutor `json:"tutor"`
}

// Leaderboard is the ranked tutor list for a sort key.
type Leaderboard struct {
	SortBy  models.LeaderboardSort `json:"sort_by"`
	Entries []LeaderboardEntry     `json:"entries"`
}
