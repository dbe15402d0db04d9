package services

import (
	"bytes"
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

func guestTestServer(t *testing.T, llm ChatCompleter) (*httptest.Server, *repository.LocalSessionStore) {
	store := repository.NewLocalSessionStore()
	fallbacks := NewFallbackCatalog()
	interviewer := NewInterviewer(NewChatClient(AIConfig{}), fallbacks)
	endpoints := NewGuestEndpoints(store, NewSessionAnalyzer(llm, store, fallbacks), interviewer)

	router := chi.NewRouter()
	endpoints.RegisterRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, store
}

func postJSON(t *testing.T, url string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func createGuestSession(t *testing.T, serverURL, category string) CreateSessionResponse {
	t.Helper()
	resp := postJSON(t, serverURL+"/guest/sessions", CreateSessionRequest{
		Title:    "Backend warmup",
		Category: category,
		Level:    "mid",
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created CreateSessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	return created
}

func TestGuestSessionFullFlow(t *testing.T) {
	var calls atomic.Int32
	llm := &stubCompleter{complete: func(messages []ChatMessage) (string, error) {
		calls.Add(1)
		return evaluationJSON(8, "Depth", "Pacing"), nil
	}}
	server, _ := guestTestServer(t, llm)

	created := createGuestSession(t, server.URL, models.CategoryTechnical)
	assert.Equal(t, welcomeMessage, created.Opening)
	assert.Equal(t, "active", created.Session.Status)

	msgResp := postJSON(t, server.URL+"/guest/sessions/"+created.Session.ID+"/messages",
		PostMessageRequest{Content: "I designed a queue-based importer for nightly loads."})
	defer msgResp.Body.Close()
	require.Equal(t, http.StatusOK, msgResp.StatusCode)

	var msgBody struct {
		Reply models.SessionMessage `json:"reply"`
	}
	require.NoError(t, json.NewDecoder(msgResp.Body).Decode(&msgBody))
	assert.True(t, msgBody.Reply.IsBot)
	assert.NotEmpty(t, msgBody.Reply.Content)

	completeResp := postJSON(t, server.URL+"/guest/sessions/"+created.Session.ID+"/complete", struct{}{})
	defer completeResp.Body.Close()
	require.Equal(t, http.StatusOK, completeResp.StatusCode)

	var completeBody struct {
		Session  models.InterviewSession `json:"session"`
		Analysis models.SessionAnalysis  `json:"analysis"`
	}
	require.NoError(t, json.NewDecoder(completeResp.Body).Decode(&completeBody))
	assert.Equal(t, "completed", completeBody.Session.Status)
	assert.Equal(t, 1, completeBody.Analysis.AnsweredQuestions)
	assert.InDelta(t, 8.0, completeBody.Analysis.AverageScore, 0.001)

	analysisResp, err := http.Get(server.URL + "/guest/sessions/" + created.Session.ID + "/analysis")
	require.NoError(t, err)
	defer analysisResp.Body.Close()
	assert.Equal(t, http.StatusOK, analysisResp.StatusCode)

	// Second retrieval serves the stored analysis, no re-evaluation
	assert.Equal(t, int32(1), calls.Load())
}

func TestGuestSessionRejectsUnknownCategory(t *testing.T) {
	llm := &stubCompleter{complete: func(messages []ChatMessage) (string, error) {
		return "", nil
	}}
	server, _ := guestTestServer(t, llm)

	resp := postJSON(t, server.URL+"/guest/sessions", CreateSessionRequest{Category: "trivia"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGuestAnalysisRequiresCompletedSession(t *testing.T) {
	llm := &stubCompleter{complete: func(messages []ChatMessage) (string, error) {
		t.Error("no evaluation expected for an active session")
		return "", nil
	}}
	server, store := guestTestServer(t, llm)

	created := createGuestSession(t, server.URL, models.CategoryBehavioral)

	resp, err := http.Get(server.URL + "/guest/sessions/" + created.Session.ID + "/analysis")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	analysis, err := store.Analysis(context.Background(), created.Session.ID)
	require.NoError(t, err)
	assert.Nil(t, analysis)
}

func TestGuestMessageAfterCompletionRejected(t *testing.T) {
	llm := &stubCompleter{complete: func(messages []ChatMessage) (string, error) {
		return evaluationJSON(6, "Depth", "Pacing"), nil
	}}
	server, _ := guestTestServer(t, llm)

	created := createGuestSession(t, server.URL, models.CategoryTechnical)

	completeResp := postJSON(t, server.URL+"/guest/sessions/"+created.Session.ID+"/complete", struct{}{})
	completeResp.Body.Close()
	require.Equal(t, http.StatusOK, completeResp.StatusCode)

	msgResp := postJSON(t, server.URL+"/guest/sessions/"+created.Session.ID+"/messages",
		PostMessageRequest{Content: "One more answer"})
	defer msgResp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, msgResp.StatusCode)
}

func TestGuestUnknownSessionNotFound(t *testing.T) {
	llm := &stubCompleter{complete: func(messages []ChatMessage) (string, error) {
		return "", nil
	}}
	server, _ := guestTestServer(t, llm)

	resp, err := http.Get(server.URL + "/guest/sessions/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
