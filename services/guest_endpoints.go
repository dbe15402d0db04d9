package services

import (
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

// guestUserID marks sessions started without an account
const guestUserID = "guest"

// GuestEndpoints serves the practice flow for visitors without an account.
// Guest sessions, transcripts, and analyses live in the in-memory store for
// the lifetime of the process; nothing is written to Postgres and no solve
// stats are kept. The unguessable session ID is the only access credential.
type GuestEndpoints struct {
	store       *repository.LocalSessionStore
	analyzer    *SessionAnalyzer
	interviewer *Interviewer

	mu       sync.RWMutex
	sessions map[string]*models.InterviewSession
}

func NewGuestEndpoints(store *repository.LocalSessionStore, analyzer *SessionAnalyzer, interviewer *Interviewer) *GuestEndpoints {
	return &GuestEndpoints{
		store:       store,
		analyzer:    analyzer,
		interviewer: interviewer,
		sessions:    make(map[string]*models.InterviewSession),
	}
}

func (e *GuestEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/guest/sessions", func(r chi.Router) {
		r.Post("/", e.CreateSessionHandler)
		r.Get("/{id}", e.GetSessionHandler)
		r.Post("/{id}/messages", e.PostMessageHandler)
		r.Post("/{id}/complete", e.CompleteSessionHandler)
		r.Get("/{id}/analysis", e.GetAnalysisHandler)
	})
}

func (e *GuestEndpoints) session(sessionID string) *models.InterviewSession {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessions[sessionID]
}

func (e *GuestEndpoints) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
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
	session := &models.InterviewSession{
		ID:        uuid.New().String(),
		UserID:    guestUserID,
		Title:     req.Title,
		Category:  req.Category,
		Level:     req.Level,
		Status:    "active",
		StartedAt: now,
	}

	e.mu.Lock()
	e.sessions[session.ID] = session
	e.mu.Unlock()

	opening := e.interviewer.OpeningQuestion(r.Context(), session)
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
		Session: *session,
		Opening: opening,
		Message: "Session created successfully",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(response)

	slog.Info("Guest session created", "session_id", session.ID, "category", session.Category)
}

func (e *GuestEndpoints) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	session := e.session(chi.URLParam(r, "id"))
	if session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	messages, err := e.store.Messages(r.Context(), session.ID)
	if err != nil {
		slog.Error("Failed to load session messages", "error", err, "session_id", session.ID)
		http.Error(w, "Failed to load messages", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session":  session,
		"messages": messages,
	})
}

func (e *GuestEndpoints) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	session := e.session(chi.URLParam(r, "id"))
	if session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if session.Status != "active" {
		http.Error(w, "Session is not active", http.StatusBadRequest)
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

	history, err := e.store.Messages(r.Context(), session.ID)
	if err != nil {
		slog.Error("Failed to load session messages", "error", err, "session_id", session.ID)
		http.Error(w, "Failed to load messages", http.StatusInternalServerError)
		return
	}

	userMessage := models.SessionMessage{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		IsBot:     false,
		Content:   req.Content,
		CreatedAt: time.Now(),
	}
	if err := e.store.SaveMessage(r.Context(), &userMessage); err != nil {
		slog.Error("Failed to save user message", "error", err, "session_id", session.ID)
		http.Error(w, "Failed to save message", http.StatusInternalServerError)
		return
	}

	reply := e.interviewer.NextReply(r.Context(), session, history, req.Content)
	botMessage := models.SessionMessage{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		IsBot:     true,
		Content:   reply,
		CreatedAt: time.Now(),
	}
	if err := e.store.SaveMessage(r.Context(), &botMessage); err != nil {
		slog.Error("Failed to save interviewer reply", "error", err, "session_id", session.ID)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"reply":   botMessage,
		"message": "Message processed",
	})
}

// CompleteSessionHandler closes a guest session and generates the analysis
// inline: guests have no account to come back with, so the feedback is
// returned in the completion response itself.
func (e *GuestEndpoints) CompleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	session := e.session(chi.URLParam(r, "id"))
	if session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	e.mu.Lock()
	if session.Status != "completed" {
		now := time.Now()
		session.Status = "completed"
		session.EndedAt = &now
		session.Duration = int(now.Sub(session.StartedAt).Seconds())
	}
	e.mu.Unlock()

	analysis, err := e.analysisFor(r, session)
	if err != nil {
		http.Error(w, "Failed to generate analysis", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"session":  session,
		"analysis": analysis,
		"message":  "Session completed",
	})

	slog.Info("Guest session completed", "session_id", session.ID, "duration_seconds", session.Duration)
}

func (e *GuestEndpoints) GetAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	session := e.session(chi.URLParam(r, "id"))
	if session == nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if session.Status != "completed" {
		http.Error(w, "Session must be completed to generate analysis", http.StatusBadRequest)
		return
	}

	analysis, err := e.analysisFor(r, session)
	if err != nil {
		http.Error(w, "Failed to get analysis", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"analysis": analysis,
		"status":   "ready",
	})
}

// analysisFor returns the stored analysis for a completed session, generating
// it on first request
func (e *GuestEndpoints) analysisFor(r *http.Request, session *models.InterviewSession) (*models.SessionAnalysis, error) {
	analysisGenerationMutex.Lock()
	defer analysisGenerationMutex.Unlock()

	if existing, err := e.store.Analysis(r.Context(), session.ID); err == nil && existing != nil {
		return existing, nil
	}

	messages, err := e.store.Messages(r.Context(), session.ID)
	if err != nil {
		slog.Error("Failed to load messages for analysis", "error", err, "session_id", session.ID)
		return nil, err
	}

	analysis, err := e.analyzer.AnalyzeSession(r.Context(), session, messages)
	if err != nil && !errors.Is(err, ErrAnalysisNotPersisted) {
		slog.Error("Failed to generate guest analysis", "error", err, "session_id", session.ID)
		return nil, err
	}
	return analysis, nil
}
