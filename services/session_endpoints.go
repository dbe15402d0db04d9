package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prepmate/backend/models"
	"github.com/prepmate/backend/repository"
)

// sessionRepository is the slice of the repository the session handlers need
type sessionRepository interface {
	CreateInterviewSession(ctx context.Context, session *models.InterviewSession) error
	GetInterviewSessions(ctx context.Context, userID string) ([]models.InterviewSession, error)
	GetInterviewSessionWithDetails(ctx context.Context, sessionID string, userID string) (*models.InterviewSession, error)
	UpdateInterviewSession(ctx context.Context, session *models.InterviewSession) error
	DeleteInterviewSession(ctx context.Context, sessionID string, userID string) error
}

type SessionEndpoints struct {
	repo        sessionRepository
	store       repository.SessionStore
	analyzer    *SessionAnalyzer
	interviewer *Interviewer
	stats       *StatsService
}

// Global mutex for analysis generation to prevent duplicate work across handlers
var analysisGenerationMutex sync.Mutex

func NewSessionEndpoints(repo sessionRepository, store repository.SessionStore, analyzer *SessionAnalyzer, interviewer *Interviewer, stats *StatsService) *SessionEndpoints {
	return &SessionEndpoints{
		repo:        repo,
		store:       store,
		analyzer:    analyzer,
		interviewer: interviewer,
		stats:       stats,
	}
}

type CreateSessionRequest struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Level    string `json:"level"`
}

type CreateSessionResponse struct {
	Session models.InterviewSession `json:"session"`
	Opening string                  `json:"opening"`
	Message string                  `json:"message"`
}

type GetSessionsResponse struct {
	Sessions []models.InterviewSession `json:"sessions"`
	Count    int                       `json:"count"`
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

func (e *SessionEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", e.CreateSessionHandler)
		r.Get("/", e.GetSessionsHandler)
		r.Get("/{id}", e.GetSessionHandler)
		r.Delete("/{id}", e.DeleteSessionHandler)
		r.Post("/{id}/messages", e.PostMessageHandler)
		r.Post("/{id}/complete", e.CompleteSessionHandler)
	})

	r.Route("/analysis", func(r chi.Router) {
		r.Get("/session/{id}", e.GetAnalysisHandler)
		r.Post("/session/{id}/generate", e.GenerateAnalysisHandler)
	})
}

func (e *SessionEndpoints) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	switch req.Category {
	case models.CategoryTechnical, models.CategoryBehavioral, models.CategoryVoice:
	default:
		http.Error(w, "Invalid session category", http.StatusBadRequest)
		return
	}

	now := time.Now()
	session := models.InterviewSession{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Title:     req.Title,
		Category:  req.Category,
		Level:     req.Level,
		Status:    "active",
		StartedAt: now,
	}

	if err := e.repo.CreateInterviewSession(r.Context(), &session); err != nil {
		slog.Error("Failed to create interview session", "error", err, "user_id", user.ID)
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	opening := e.interviewer.OpeningQuestion(r.Context(), &session)
	openingMessage := models.SessionMessage{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		IsBot:     true,
		Content:   opening,
		CreatedAt: now,
	}
	if err := e.store.SaveMessage(r.Context(), &openingMessage); err != nil {
		slog.Error("Failed to save opening message", "error", err, "session_id", session.ID)
	}

	response := CreateSessionResponse{
		Session: session,
		Opening: opening,
		Message: "Session created successfully",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)

	slog.Info("Interview session created", "session_id", session.ID, "user_id", user.ID, "category", session.Category)
}

func (e *SessionEndpoints) GetSessionsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	sessions, err := e.repo.GetInterviewSessions(r.Context(), user.ID)
	if err != nil {
		slog.Error("Failed to get interview sessions", "error", err, "user_id", user.ID)
		http.Error(w, "Failed to get sessions", http.StatusInternalServerError)
		return
	}

	response := GetSessionsResponse{
		Sessions: sessions,
		Count:    len(sessions),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)

	slog.Info("Interview sessions retrieved", "user_id", user.ID, "count", len(sessions))
}

func (e *SessionEndpoints) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return
	}

	session, err := e.repo.GetInterviewSessionWithDetails(r.Context(), sessionID, user.ID)
	if err != nil {
		slog.Error("Failed to get interview session", "error", err, "session_id", sessionID, "user_id", user.ID)
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session": session,
	})
}

func (e *SessionEndpoints) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return
	}

	if err := e.repo.DeleteInterviewSession(r.Context(), sessionID, user.ID); err != nil {
		slog.Error("Failed to delete interview session", "error", err, "session_id", sessionID, "user_id", user.ID)
		http.Error(w, "Failed to delete session", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Session deleted",
	})

	slog.Info("Interview session deleted", "session_id", sessionID, "user_id", user.ID)
}

func (e *SessionEndpoints) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return
	}

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, "Message content is required", http.StatusBadRequest)
		return
	}

	session, err := e.repo.GetInterviewSessionWithDetails(r.Context(), sessionID, user.ID)
	if err != nil || session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if session.Status != "active" {
		http.Error(w, "Session is not active", http.StatusBadRequest)
		return
	}

	history, err := e.store.Messages(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to load session messages", "error", err, "session_id", sessionID)
		http.Error(w, "Failed to load messages", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	userMessage := models.SessionMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		IsBot:     false,
		Content:   req.Content,
		CreatedAt: now,
	}
	if err := e.store.SaveMessage(r.Context(), &userMessage); err != nil {
		slog.Error("Failed to save user message", "error", err, "session_id", sessionID)
		http.Error(w, "Failed to save message", http.StatusInternalServerError)
		return
	}

	reply := e.interviewer.NextReply(r.Context(), session, history, req.Content)
	botMessage := models.SessionMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		IsBot:     true,
		Content:   reply,
		CreatedAt: time.Now(),
	}
	if err := e.store.SaveMessage(r.Context(), &botMessage); err != nil {
		slog.Error("Failed to save interviewer reply", "error", err, "session_id", sessionID)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"reply":   botMessage,
		"message": "Message processed",
	})
}

func (e *SessionEndpoints) CompleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return
	}

	session, err := e.repo.GetInterviewSessionWithDetails(r.Context(), sessionID, user.ID)
	if err != nil || session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if session.Status == "completed" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"session": session,
			"message": "Session already completed",
		})
		return
	}

	now := time.Now()
	session.Status = "completed"
	session.EndedAt = &now
	session.Duration = int(now.Sub(session.StartedAt).Seconds())

	if err := e.repo.UpdateInterviewSession(r.Context(), session); err != nil {
		slog.Error("Failed to complete interview session", "error", err, "session_id", sessionID)
		http.Error(w, "Failed to complete session", http.StatusInternalServerError)
		return
	}

	stats, err := e.stats.RecordSolve(r.Context(), user.ID, now)
	if err != nil {
		slog.Error("Failed to record practice stats", "error", err, "user_id", user.ID)
	}

	go e.generateAnalysis(session)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session": session,
		"stats":   stats,
		"message": "Session completed",
	})

	slog.Info("Interview session completed", "session_id", sessionID, "user_id", user.ID, "duration_seconds", session.Duration)
}

func (e *SessionEndpoints) GetAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return
	}

	session, err := e.repo.GetInterviewSessionWithDetails(r.Context(), sessionID, user.ID)
	if err != nil || session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	analysis, err := e.store.Analysis(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to get session analysis", "error", err, "session_id", sessionID)
		http.Error(w, "Failed to get analysis", http.StatusInternalServerError)
		return
	}

	if analysis == nil {
		// Analyzing a still-active session would freeze a summary of the
		// partial transcript; only completed sessions get one
		if session.Status != "completed" {
			http.Error(w, "Session must be completed to generate analysis", http.StatusBadRequest)
			return
		}

		slog.Info("No analysis found, triggering generation", "session_id", sessionID, "user_id", user.ID)
		go e.generateAnalysis(session)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     "generating",
			"message":    "Analysis generation has been triggered. Please check back shortly.",
			"session_id": sessionID,
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"analysis": analysis,
		"status":   "ready",
	})
}

func (e *SessionEndpoints) GenerateAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		http.Error(w, "Session ID is required", http.StatusBadRequest)
		return
	}

	session, err := e.repo.GetInterviewSessionWithDetails(r.Context(), sessionID, user.ID)
	if err != nil || session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if session.Status != "completed" {
		http.Error(w, "Session must be completed to generate analysis", http.StatusBadRequest)
		return
	}

	analysisGenerationMutex.Lock()
	defer analysisGenerationMutex.Unlock()

	messages, err := e.store.Messages(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to load session messages", "error", err, "session_id", sessionID)
		http.Error(w, "Failed to load messages", http.StatusInternalServerError)
		return
	}

	analysis, err := e.analyzer.AnalyzeSession(r.Context(), session, messages)
	if err != nil && !errors.Is(err, ErrAnalysisNotPersisted) {
		slog.Error("Failed to generate analysis", "error", err, "session_id", sessionID)
		http.Error(w, "Failed to generate analysis", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"analysis": analysis,
		"status":   "ready",
	}
	if errors.Is(err, ErrAnalysisNotPersisted) {
		slog.Error("Analysis generated but not persisted", "error", err, "session_id", sessionID)
		response["warning"] = "Analysis was generated but could not be saved"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)

	slog.Info("Session analysis generated", "session_id", sessionID, "user_id", user.ID, "average_score", analysis.AverageScore)
}

func (e *SessionEndpoints) generateAnalysis(session *models.InterviewSession) {
	analysisGenerationMutex.Lock()
	defer analysisGenerationMutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if existing, err := e.store.Analysis(ctx, session.ID); err == nil && existing != nil {
		return
	}

	messages, err := e.store.Messages(ctx, session.ID)
	if err != nil {
		slog.Error("Failed to load messages for analysis", "error", err, "session_id", session.ID)
		return
	}

	analysis, err := e.analyzer.AnalyzeSession(ctx, session, messages)
	if err != nil {
		slog.Error("Background analysis generation failed", "error", err, "session_id", session.ID)
		return
	}

	slog.Info("Background analysis generated", "session_id", session.ID, "average_score", analysis.AverageScore)
}
