package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prepmate/backend/repository"
)

const (
	idleCheckInterval = 30 * time.Second
	idleSessionLimit  = 5 * time.Minute
)

// IdleSessionService tracks live interview sessions and finalizes the ones
// the candidate walked away from.
type IdleSessionService struct {
	repo           *repository.GORMRepository
	store          repository.SessionStore
	analyzer       *SessionAnalyzer
	stats          *StatsService
	activeSessions map[string]*ActiveSession
	mutex          sync.RWMutex
}

type ActiveSession struct {
	SessionID    string
	UserID       string
	LastActivity time.Time
	CancelFunc   context.CancelFunc
	// Penalty tracking for voice interviews
	EmptyResponseCount int
}

func NewIdleSessionService(repo *repository.GORMRepository, store repository.SessionStore, analyzer *SessionAnalyzer, stats *StatsService) *IdleSessionService {
	service := &IdleSessionService{
		repo:           repo,
		store:          store,
		analyzer:       analyzer,
		stats:          stats,
		activeSessions: make(map[string]*ActiveSession),
	}

	go service.startIdleChecker()

	return service
}

func (s *IdleSessionService) RegisterSession(sessionID, userID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, cancel := context.WithCancel(context.Background())

	s.activeSessions[sessionID] = &ActiveSession{
		SessionID:    sessionID,
		UserID:       userID,
		LastActivity: time.Now(),
		CancelFunc:   cancel,
	}

	slog.Info("Session registered for idle tracking", "session_id", sessionID, "user_id", userID)
}

func (s *IdleSessionService) UpdateActivity(sessionID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if session, exists := s.activeSessions[sessionID]; exists {
		session.LastActivity = time.Now()
	}
}

func (s *IdleSessionService) IsExpired(sessionID string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if session, exists := s.activeSessions[sessionID]; exists {
		return time.Since(session.LastActivity) > idleSessionLimit
	}
	return false
}

func (s *IdleSessionService) EndSession(sessionID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if session, exists := s.activeSessions[sessionID]; exists {
		session.CancelFunc()
		delete(s.activeSessions, sessionID)
		slog.Info("Session removed from idle tracking", "session_id", sessionID)
	}
}

// ConcludeSession finalizes a session immediately: updates the database,
// generates the analysis, and removes it from active tracking.
func (s *IdleSessionService) ConcludeSession(sessionID string) {
	s.mutex.RLock()
	session, exists := s.activeSessions[sessionID]
	s.mutex.RUnlock()
	if !exists {
		slog.Warn("ConcludeSession called for non-active session", "session_id", sessionID)
		return
	}

	s.finalizeSession(session)
}

// IncrementEmptyResponse increments the empty/unintelligible response counter
// and returns the updated count
func (s *IdleSessionService) IncrementEmptyResponse(sessionID string) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if session, exists := s.activeSessions[sessionID]; exists {
		session.EmptyResponseCount++
		return session.EmptyResponseCount
	}
	return 0
}

func (s *IdleSessionService) ResetEmptyResponse(sessionID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if session, exists := s.activeSessions[sessionID]; exists {
		session.EmptyResponseCount = 0
	}
}

func (s *IdleSessionService) startIdleChecker() {
	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.checkIdleSessions()
	}
}

func (s *IdleSessionService) checkIdleSessions() {
	s.mutex.RLock()
	sessions := make([]*ActiveSession, 0, len(s.activeSessions))
	for _, session := range s.activeSessions {
		sessions = append(sessions, session)
	}
	s.mutex.RUnlock()

	for _, session := range sessions {
		if !s.IsExpired(session.SessionID) {
			continue
		}
		slog.Info("Session idle limit reached, finalizing", "session_id", session.SessionID)
		s.finalizeSession(session)
	}
}

func (s *IdleSessionService) finalizeSession(session *ActiveSession) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbSession, err := s.repo.GetInterviewSession(ctx, session.SessionID)
	if err != nil || dbSession == nil {
		slog.Error("Failed to find session in database", "session_id", session.SessionID, "error", err)
		s.EndSession(session.SessionID)
		return
	}

	if dbSession.Status == "active" {
		now := time.Now()
		dbSession.Status = "completed"
		dbSession.EndedAt = &now
		dbSession.Duration = int(now.Sub(dbSession.StartedAt).Seconds())

		if err := s.repo.UpdateInterviewSession(ctx, dbSession); err != nil {
			slog.Error("Failed to update session status", "session_id", session.SessionID, "error", err)
			return
		}

		if _, err := s.stats.RecordSolve(ctx, session.UserID, now); err != nil {
			slog.Error("Failed to record practice stats", "error", err, "user_id", session.UserID)
		}
	}

	messages, err := s.store.Messages(ctx, session.SessionID)
	if err != nil {
		slog.Error("Failed to load messages for analysis", "session_id", session.SessionID, "error", err)
		s.EndSession(session.SessionID)
		return
	}

	if existing, err := s.store.Analysis(ctx, session.SessionID); err == nil && existing != nil {
		slog.Info("Analysis already exists for session, skipping generation", "session_id", session.SessionID)
	} else if _, err := s.analyzer.AnalyzeSession(ctx, dbSession, messages); err != nil {
		slog.Error("Failed to generate analysis for idle session", "session_id", session.SessionID, "error", err)
	}

	s.EndSession(session.SessionID)
}
