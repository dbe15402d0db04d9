package models

import (
	"time"

	"gorm.io/gorm"
)

// Interview session categories. Voice sessions get the loose transcript
// pairing fallback during analysis because turn-taking is not guaranteed.
const (
	CategoryTechnical  = "technical"
	CategoryBehavioral = "behavioral"
	CategoryVoice      = "voice"
)

// InterviewSession represents one practice interview attempt by a user
type InterviewSession struct {
	ID        string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID    string         `gorm:"type:uuid;not null;index" json:"user_id"`
	Title     string         `gorm:"size:255;not null" json:"title"`
	Category  string         `gorm:"size:50;not null;default:'technical';check:category IN ('technical', 'behavioral', 'voice')" json:"category"`
	Level     string         `gorm:"size:50" json:"level,omitempty"` // junior, mid, senior
	Status    string         `gorm:"not null;default:'active';check:status IN ('active', 'completed', 'abandoned')" json:"status"`
	StartedAt time.Time      `gorm:"not null" json:"started_at"`
	EndedAt   *time.Time     `json:"ended_at,omitempty"`
	Duration  int            `json:"duration"` // Duration in seconds
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User     User             `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Messages []SessionMessage `gorm:"foreignKey:SessionID" json:"messages,omitempty"`
	Analysis *SessionAnalysis `gorm:"foreignKey:SessionID" json:"analysis,omitempty"`
}

// IsVoice reports whether this session was conducted over audio
func (s *InterviewSession) IsVoice() bool {
	return s.Category == CategoryVoice
}

// SessionMessage stores one turn of the interview transcript
type SessionMessage struct {
	ID        string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	SessionID string         `gorm:"type:uuid;not null;index" json:"session_id"`
	IsBot     bool           `gorm:"not null" json:"is_bot"` // true for interviewer turns
	Content   string         `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Session *InterviewSession `gorm:"foreignKey:SessionID" json:"session,omitempty"`
}
