package repository

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prepmate/backend/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionStore is the storage port for transcript messages and analysis
// results. Picked once at session start: authenticated users get the remote
// (Postgres) store, guests get the in-memory store so they can still run a
// full practice session without an account.
type SessionStore interface {
	SaveMessage(ctx context.Context, message *models.SessionMessage) error
	Messages(ctx context.Context, sessionID string) ([]models.SessionMessage, error)
	UpsertAnalysis(ctx context.Context, analysis *models.SessionAnalysis) error
	Analysis(ctx context.Context, sessionID string) (*models.SessionAnalysis, error)
}

// RemoteSessionStore persists transcripts and analyses to Postgres via GORM
type RemoteSessionStore struct {
	db *gorm.DB
}

func NewRemoteSessionStore(db *gorm.DB) *RemoteSessionStore {
	return &RemoteSessionStore{db: db}
}

func (s *RemoteSessionStore) SaveMessage(ctx context.Context, message *models.SessionMessage) error {
	if err := s.db.WithContext(ctx).Create(message).Error; err != nil {
		slog.Error("Failed to save session message", "error", err, "session_id", message.SessionID)
		return fmt.Errorf("failed to save session message: %w", err)
	}
	slog.Debug("Session message saved", "message_id", message.ID, "session_id", message.SessionID)
	return nil
}

func (s *RemoteSessionStore) Messages(ctx context.Context, sessionID string) ([]models.SessionMessage, error) {
	var messages []models.SessionMessage
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&messages).Error
	if err != nil {
		slog.Error("Failed to get session messages", "error", err, "session_id", sessionID)
		return nil, fmt.Errorf("failed to get session messages: %w", err)
	}
	return messages, nil
}

// UpsertAnalysis inserts or fully replaces the analysis row for a session.
// Last write wins; no history of prior analyses is kept.
func (s *RemoteSessionStore) UpsertAnalysis(ctx context.Context, analysis *models.SessionAnalysis) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"average_score", "answered_questions", "total_questions", "time_spent_minutes",
			"question_analysis", "strengths_summary", "improvement_summary", "updated_at",
		}),
	}).Create(analysis).Error
	if err != nil {
		slog.Error("Failed to upsert session analysis", "error", err, "session_id", analysis.SessionID)
		return fmt.Errorf("failed to upsert session analysis: %w", err)
	}
	slog.Info("Session analysis upserted", "session_id", analysis.SessionID, "average_score", analysis.AverageScore)
	return nil
}

func (s *RemoteSessionStore) Analysis(ctx context.Context, sessionID string) (*models.SessionAnalysis, error) {
	var analysis models.SessionAnalysis
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&analysis).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get session analysis", "error", err, "session_id", sessionID)
		return nil, fmt.Errorf("failed to get session analysis: %w", err)
	}
	return &analysis, nil
}

// LocalSessionStore keeps guest session data in memory for the lifetime of
// the process. Same upsert semantics as the remote store.
type LocalSessionStore struct {
	mu       sync.RWMutex
	messages map[string][]models.SessionMessage
	analyses map[string]models.SessionAnalysis
}

func NewLocalSessionStore() *LocalSessionStore {
	return &LocalSessionStore{
		messages: make(map[string][]models.SessionMessage),
		analyses: make(map[string]models.SessionAnalysis),
	}
}

func (s *LocalSessionStore) SaveMessage(ctx context.Context, message *models.SessionMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	s.messages[message.SessionID] = append(s.messages[message.SessionID], *message)
	return nil
}

func (s *LocalSessionStore) Messages(ctx context.Context, sessionID string) ([]models.SessionMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.messages[sessionID]
	messages := make([]models.SessionMessage, len(stored))
	copy(messages, stored)
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages, nil
}

func (s *LocalSessionStore) UpsertAnalysis(ctx context.Context, analysis *models.SessionAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if analysis.ID == "" {
		analysis.ID = uuid.New().String()
	}
	if prior, exists := s.analyses[analysis.SessionID]; exists {
		analysis.ID = prior.ID
		analysis.CreatedAt = prior.CreatedAt
	} else if analysis.CreatedAt.IsZero() {
		analysis.CreatedAt = time.Now()
	}
	analysis.UpdatedAt = time.Now()
	s.analyses[analysis.SessionID] = *analysis
	return nil
}

func (s *LocalSessionStore) Analysis(ctx context.Context, sessionID string) (*models.SessionAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	analysis, exists := s.analyses[sessionID]
	if !exists {
		return nil, nil
	}
	return &analysis, nil
}
