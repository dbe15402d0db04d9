package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prepmate/backend/models"
	"github.com/prepmate/backend/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSessionRepo struct {
	session *models.InterviewSession
}

func (r *stubSessionRepo) CreateInterviewSession(ctx context.Context, session *models.InterviewSession) error {
	return nil
}

func (r *stubSessionRepo) GetInterviewSessions(ctx context.Context, userID string) ([]models.InterviewSession, error) {
	return nil, nil
}

func (r *stubSessionRepo) GetInterviewSessionWithDetails(ctx context.Context, sessionID string, userID string) (*models.InterviewSession, error) {
	if r.session != nil && r.session.ID == sessionID && r.session.UserID == userID {
		return r.session, nil
	}
	return nil, nil
}

func (r *stubSessionRepo) UpdateInterviewSession(ctx context.Context, session *models.InterviewSession) error {
	return nil
}

func (r *stubSessionRepo) DeleteInterviewSession(ctx context.Context, sessionID string, userID string) error {
	return nil
}

// sessionTestServer serves the session routes with a fixed authenticated user
func sessionTestServer(t *testing.T, repo sessionRepository, store repository.SessionStore, llm ChatCompleter) *httptest.Server {
	endpoints := NewSessionEndpoints(repo, store, NewSessionAnalyzer(llm, store, NewFallbackCatalog()), nil, nil)

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), UserContextKey, &models.User{ID: "u1"})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	endpoints.RegisterRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func TestGetAnalysisActiveSessionIsRejected(t *testing.T) {
	var calls atomic.Int32
	llm := &stubCompleter{complete: func(messages []ChatMessage) (string, error) {
		calls.Add(1)
		return evaluationJSON(7, "Depth", "Pacing"), nil
	}}
	store := repository.NewLocalSessionStore()
	repo := &stubSessionRepo{session: &models.InterviewSession{
		ID:       "s1",
		UserID:   "u1",
		Category: models.CategoryTechnical,
		Status:   "active",
	}}
	server := sessionTestServer(t, repo, store, llm)

	resp, err := http.Get(server.URL + "/analysis/session/s1")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(0), calls.Load())

	analysis, err := store.Analysis(context.Background(), "s1")
	require.NoError(t, err)
	assert.Nil(t, analysis, "no summary may be written for a session still in progress")
}

func TestGetAnalysisCompletedSessionTriggersGeneration(t *testing.T) {
	llm := &stubCompleter{complete: func(messages []ChatMessage) (string, error) {
		return evaluationJSON(7, "Depth", "Pacing"), nil
	}}
	store := repository.NewLocalSessionStore()
	repo := &stubSessionRepo{session: &models.InterviewSession{
		ID:       "s1",
		UserID:   "u1",
		Category: models.CategoryTechnical,
		Status:   "completed",
	}}
	server := sessionTestServer(t, repo, store, llm)

	resp, err := http.Get(server.URL + "/analysis/session/s1")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "generating", body["status"])
}

func TestGetAnalysisReturnsExistingAnalysis(t *testing.T) {
	llm := &stubCompleter{complete: func(messages []ChatMessage) (string, error) {
		t.Error("no LLM call expected when the analysis already exists")
		return "", nil
	}}
	store := repository.NewLocalSessionStore()
	require.NoError(t, store.UpsertAnalysis(context.Background(), &models.SessionAnalysis{
		SessionID:    "s1",
		AverageScore: 7.5,
	}))
	repo := &stubSessionRepo{session: &models.InterviewSession{
		ID:       "s1",
		UserID:   "u1",
		Category: models.CategoryTechnical,
		Status:   "completed",
	}}
	server := sessionTestServer(t, repo, store, llm)

	resp, err := http.Get(server.URL + "/analysis/session/s1")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ready", body["status"])
}
