package models

import (
	"time"
)

// UserStats tracks solve totals and streaks for a user. One row per user,
// updated in place on every qualifying solve, never decremented.
type UserStats struct {
	ID             string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID         string     `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	TotalSolved    int        `gorm:"not null;default:0" json:"total_solved"`
	CurrentStreak  int        `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak  int        `gorm:"not null;default:0" json:"longest_streak"`
	LastSolvedDate *time.Time `json:"last_solved_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	// Relationships
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
