package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/prepmate/backend/models"
	"github.com/prepmate/backend/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompleter struct {
	complete func(messages []ChatMessage) (string, error)
}

func (s *stubCompleter) Complete(ctx context.Context, messages []ChatMessage, opts ChatOptions) (string, error) {
	return s.complete(messages)
}

func evaluationJSON(score float64, strength, improvement string) string {
	return fmt.Sprintf(`{"feedback": "noted", "score": %g, "strengths": [%q], "areas_for_improvement": [%q]}`, score, strength, improvement)
}

func textSession(id string) *models.InterviewSession {
	return &models.InterviewSession{ID: id, Category: models.CategoryTechnical, Status: "completed"}
}

func transcript(pairs ...[2]string) []models.SessionMessage {
	var messages []models.SessionMessage
	for _, pair := range pairs {
		messages = append(messages, message(true, pair[0]), message(false, pair[1]))
	}
	return messages
}

func TestAnalyzeSessionAveragesScores(t *testing.T) {
	llm := &stubCompleter{complete: func(messages []ChatMessage) (string, error) {
		if strings.Contains(messages[1].Content, "Q1") {
			return evaluationJSON(8, "Depth", "Pacing"), nil
		}
		return evaluationJSON(6, "Depth", "Brevity"), nil
	}}
	store := repository.NewLocalSessionStore()
	analyzer := NewSessionAnalyzer(llm, store, NewFallbackCatalog())

	session := textSession("s1")
	session.Duration = 125

	analysis, err := analyzer.AnalyzeSession(context.Background(), session, transcript([2]string{"Q1", "A1"}, [2]string{"Q2", "A2"}))
	require.NoError(t, err)

	assert.Equal(t, 7.0, analysis.AverageScore)
	assert.Equal(t, 2, analysis.AnsweredQuestions)
	assert.Equal(t, 2, analysis.TotalQuestions)
	assert.Equal(t, 3, analysis.TimeSpentMinutes)
	require.Len(t, analysis.QuestionAnalysis, 2)
	assert.Equal(t, "Q1", analysis.QuestionAnalysis[0].Question)
	assert.Equal(t, "A2", analysis.QuestionAnalysis[1].Answer)

	saved, err := store.Analysis(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, 7.0, saved.AverageScore)
}

func TestAnalyzeSessionPartialFailureUsesCannedFeedback(t *testing.T) {
	llm := &stubCompleter{complete: func(messages []ChatMessage) (string, error) {
		if strings.Contains(messages[1].Content, "Q2") {
			return "", errors.New("upstream 500")
		}
		return evaluationJSON(8, "Depth", "Pacing"), nil
	}}
	store := repository.NewLocalSessionStore()
	analyzer := NewSessionAnalyzer(llm, store, NewFallbackCatalog())

	analysis, err := analyzer.AnalyzeSession(context.Background(), textSession("s2"), transcript([2]string{"Q1", "A1"}, [2]string{"Q2", "A2"}))
	require.NoError(t, err)

	require.Len(t, analysis.QuestionAnalysis, 2)
	// Slot 1 got the canned substitute with the original exchange restored
	assert.Equal(t, "Q2", analysis.QuestionAnalysis[1].Question)
	assert.Equal(t, "A2", analysis.QuestionAnalysis[1].Answer)
	assert.NotEmpty(t, analysis.QuestionAnalysis[1].Feedback)
	assert.Equal(t, 8.0, analysis.QuestionAnalysis[0].Score)
}

func TestAnalyzeSessionEmptyTranscript(t *testing.T) {
	llm := &stubCompleter{complete: func(messages []ChatMessage) (string, error) {
		t.Fatal("no LLM call expected for an empty transcript")
		return "", nil
	}}
	store := repository.NewLocalSessionStore()
	analyzer := NewSessionAnalyzer(llm, store, NewFallbackCatalog())

	analysis, err := analyzer.AnalyzeSession(context.Background(), textSession("s3"), nil)
	require.NoError(t, err)

	assert.Equal(t, 0, analysis.AnsweredQuestions)
	assert.Equal(t, 0, analysis.TotalQuestions)
	assert.Equal(t, 0.0, analysis.AverageScore)
	assert.Equal(t, []models.ThemeCount{{Name: placeholderStrength, Value: 1}}, analysis.StrengthsSummary)
	assert.Equal(t, []models.ThemeCount{{Name: placeholderImprovement, Value: 1}}, analysis.ImprovementSummary)
}

func TestAnalyzeSessionCapsAnalyzedPairs(t *testing.T) {
	calls := 0
	llm := &stubCompleter{complete: func(messages []ChatMessage) (string, error) {
		calls++
		return evaluationJSON(7, "Depth", "Pacing"), nil
	}}
	store := repository.NewLocalSessionStore()
	analyzer := NewSessionAnalyzer(llm, store, NewFallbackCatalog())

	var pairs [][2]string
	for i := 1; i <= 7; i++ {
		pairs = append(pairs, [2]string{fmt.Sprintf("Q%d", i), fmt.Sprintf("A%d", i)})
	}

	analysis, err := analyzer.AnalyzeSession(context.Background(), textSession("s4"), transcript(pairs...))
	require.NoError(t, err)

	assert.Equal(t, MaxAnalyzedPairs, calls)
	assert.Equal(t, MaxAnalyzedPairs, analysis.AnsweredQuestions)
	assert.Equal(t, 7, analysis.TotalQuestions)
}

func TestAnalyzeSessionRerunReplacesAnalysis(t *testing.T) {
	score := 4.0
	llm := &stubCompleter{complete: func(messages []ChatMessage) (string, error) {
		return evaluationJSON(score, "Depth", "Pacing"), nil
	}}
	store := repository.NewLocalSessionStore()
	analyzer := NewSessionAnalyzer(llm, store, NewFallbackCatalog())

	session := textSession("s5")
	messages := transcript([2]string{"Q1", "A1"})

	_, err := analyzer.AnalyzeSession(context.Background(), session, messages)
	require.NoError(t, err)
	first, err := store.Analysis(context.Background(), "s5")
	require.NoError(t, err)

	score = 9.0
	_, err = analyzer.AnalyzeSession(context.Background(), session, messages)
	require.NoError(t, err)
	second, err := store.Analysis(context.Background(), "s5")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 9.0, second.AverageScore)
}

type failingStore struct {
	repository.SessionStore
}

func (f *failingStore) UpsertAnalysis(ctx context.Context, analysis *models.SessionAnalysis) error {
	return errors.New("connection refused")
}

func TestAnalyzeSessionPersistFailureStillReturnsAnalysis(t *testing.T) {
	llm := &stubCompleter{complete: func(messages []ChatMessage) (string, error) {
		return evaluationJSON(7, "Depth", "Pacing"), nil
	}}
	analyzer := NewSessionAnalyzer(llm, &failingStore{}, NewFallbackCatalog())

	analysis, err := analyzer.AnalyzeSession(context.Background(), textSession("s6"), transcript([2]string{"Q1", "A1"}))

	require.ErrorIs(t, err, ErrAnalysisNotPersisted)
	require.NotNil(t, analysis)
	assert.Equal(t, 7.0, analysis.AverageScore)
}

func TestAnalyzeSessionVoiceMalformedReplyFallsBack(t *testing.T) {
	llm := &stubCompleter{complete: func(messages []ChatMessage) (string, error) {
		return "I cannot produce JSON today", nil
	}}
	store := repository.NewLocalSessionStore()
	analyzer := NewSessionAnalyzer(llm, store, NewFallbackCatalog())

	session := &models.InterviewSession{ID: "s7", Category: models.CategoryVoice, Status: "completed"}
	messages := []models.SessionMessage{
		message(true, "Welcome"),
		message(true, "Q1"),
		message(false, "A1"),
	}

	analysis, err := analyzer.AnalyzeSession(context.Background(), session, messages)
	require.NoError(t, err)

	assert.Equal(t, 1, analysis.AnsweredQuestions)
	require.Len(t, analysis.QuestionAnalysis, 1)
	assert.Equal(t, "Q1", analysis.QuestionAnalysis[0].Question)
	assert.Equal(t, "A1", analysis.QuestionAnalysis[0].Answer)
	assert.Equal(t, []models.ThemeCount{{Name: placeholderStrength, Value: 1}}, analysis.StrengthsSummary)
}

func TestCountThemes(t *testing.T) {
	groups := [][]string{
		{"A", "B"},
		{"A", "C"},
		{"A", "B"},
	}

	themes := CountThemes(groups, 5)

	assert.Equal(t, []models.ThemeCount{
		{Name: "A", Value: 3},
		{Name: "B", Value: 2},
		{Name: "C", Value: 1},
	}, themes)
}

func TestCountThemesTiesKeepFirstSeenOrder(t *testing.T) {
	groups := [][]string{{"B", "A"}, {"A", "B"}}

	themes := CountThemes(groups, 5)

	assert.Equal(t, []models.ThemeCount{
		{Name: "B", Value: 2},
		{Name: "A", Value: 2},
	}, themes)
}

func TestCountThemesLimitAndWhitespace(t *testing.T) {
	groups := [][]string{{" A ", "", "B"}, {"A", "C"}, {"D"}}

	themes := CountThemes(groups, 2)

	assert.Equal(t, []models.ThemeCount{
		{Name: "A", Value: 2},
		{Name: "B", Value: 1},
	}, themes)
}
