package models

import (
	"time"
)

// QuestionFeedback is the AI evaluation of a single question/answer exchange
type QuestionFeedback struct {
	Question            string   `json:"question"`
	Answer              string   `json:"answer"`
	Feedback            string   `json:"feedback"`
	Score               float64  `json:"score"` // 0-10 per answer
	Strengths           []string `json:"strengths"`
	AreasForImprovement []string `json:"areas_for_improvement"`
}

// ThemeCount is one frequency-ranked strength or weakness theme
type ThemeCount struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// SessionAnalysis stores the final AI-generated analysis for a session.
// Exactly one row per session; rerunning analysis fully replaces the row.
type SessionAnalysis struct {
	ID                 string             `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	SessionID          string             `gorm:"type:uuid;not null;uniqueIndex" json:"session_id"`
	AverageScore       float64            `gorm:"type:decimal(5,2)" json:"average_score"`
	AnsweredQuestions  int                `json:"answered_questions"`
	TotalQuestions     int                `json:"total_questions"`
	TimeSpentMinutes   int                `json:"time_spent_minutes"`
	QuestionAnalysis   []QuestionFeedback `gorm:"serializer:json;type:jsonb" json:"question_analysis"`
	StrengthsSummary   []ThemeCount       `gorm:"serializer:json;type:jsonb" json:"strengths_summary"`
	ImprovementSummary []ThemeCount       `gorm:"serializer:json;type:jsonb" json:"improvement_summary"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`

	// Relationships
	Session *InterviewSession `gorm:"foreignKey:SessionID" json:"session,omitempty"`
}
