package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/prepmate/backend/models"
	"github.com/prepmate/backend/repository"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxAnalyzedPairs caps per-session evaluation cost: only the first five
	// exchanges are scored
	MaxAnalyzedPairs = 5
	// MaxThemes caps the frequency-ranked strength/weakness summaries
	MaxThemes = 5

	evalConcurrency = 5
)

// ErrAnalysisNotPersisted wraps an upsert failure. The analysis itself is
// still returned so the caller can show it with a soft warning.
var ErrAnalysisNotPersisted = errors.New("analysis could not be persisted")

// SessionAnalyzer turns a session transcript into one SessionAnalysis and
// persists it. Analysis is best-effort throughout: a failed evaluation call
// degrades to a canned substitute, a failed persist degrades to a warning.
type SessionAnalyzer struct {
	llm       ChatCompleter
	store     repository.SessionStore
	fallbacks *FallbackCatalog
}

func NewSessionAnalyzer(llm ChatCompleter, store repository.SessionStore, fallbacks *FallbackCatalog) *SessionAnalyzer {
	return &SessionAnalyzer{
		llm:       llm,
		store:     store,
		fallbacks: fallbacks,
	}
}

// AnalyzeSession evaluates the transcript and upserts the resulting analysis
// keyed by session ID, fully replacing any prior run. On persistence failure
// the in-memory analysis is returned alongside ErrAnalysisNotPersisted.
func (a *SessionAnalyzer) AnalyzeSession(ctx context.Context, session *models.InterviewSession, messages []models.SessionMessage) (*models.SessionAnalysis, error) {
	pairs := BuildPairs(messages, session.IsVoice())
	totalPairs := len(pairs)

	processed := pairs
	if len(processed) > MaxAnalyzedPairs {
		processed = processed[:MaxAnalyzedPairs]
	}

	var analysis *models.SessionAnalysis
	switch {
	case len(processed) == 0:
		// An empty transcript is a valid outcome, not a failure: produce an
		// empty summary with placeholder themes so the UI has something to show
		slog.Warn("No question/answer pairs in transcript", "session_id", session.ID)
		analysis = a.fallbacks.SessionAnalysis(session.ID, nil)
	case session.IsVoice():
		analysis = a.analyzeConversation(ctx, session.ID, processed)
	default:
		analysis = a.analyzePairs(ctx, session.ID, processed)
	}

	analysis.SessionID = session.ID
	analysis.TotalQuestions = totalPairs
	analysis.TimeSpentMinutes = (session.Duration + 59) / 60

	if err := a.store.UpsertAnalysis(ctx, analysis); err != nil {
		slog.Error("Failed to persist session analysis", "error", err, "session_id", session.ID)
		return analysis, fmt.Errorf("%w: %v", ErrAnalysisNotPersisted, err)
	}

	slog.Info("Session analysis completed",
		"session_id", session.ID,
		"average_score", analysis.AverageScore,
		"answered_questions", analysis.AnsweredQuestions)
	return analysis, nil
}

// analyzePairs evaluates each pair with its own LLM call, at most
// evalConcurrency in flight, results ordered by pair index regardless of
// completion order. One bad call must not invalidate the others: the failed
// slot gets a canned evaluation and aggregation continues.
func (a *SessionAnalyzer) analyzePairs(ctx context.Context, sessionID string, pairs []QAPair) *models.SessionAnalysis {
	results := make([]models.QuestionFeedback, len(pairs))

	var g errgroup.Group
	g.SetLimit(evalConcurrency)
	for i, pair := range pairs {
		g.Go(func() error {
			evaluation, err := a.evaluatePair(ctx, pair)
			if err != nil {
				slog.Warn("Answer evaluation failed, substituting canned feedback",
					"error", err, "session_id", sessionID, "pair_index", i)
				evaluation = a.fallbacks.Evaluation(i, pair)
			}
			results[i] = evaluation
			return nil
		})
	}
	// Closures never return errors; failed evaluations degrade in place
	_ = g.Wait()

	var total float64
	for _, result := range results {
		total += result.Score
	}

	return &models.SessionAnalysis{
		SessionID:          sessionID,
		AverageScore:       total / float64(len(results)),
		AnsweredQuestions:  len(results),
		QuestionAnalysis:   results,
		StrengthsSummary:   CountThemes(collectStrengths(results), MaxThemes),
		ImprovementSummary: CountThemes(collectImprovements(results), MaxThemes),
	}
}

func (a *SessionAnalyzer) evaluatePair(ctx context.Context, pair QAPair) (models.QuestionFeedback, error) {
	messages := []ChatMessage{
		{
			Role: RoleSystem,
			Content: "You are an experienced technical interviewer evaluating a single interview answer. " +
				"Respond with a JSON object containing: feedback (string), score (number 0-10), " +
				"strengths (array of strings), areas_for_improvement (array of strings).",
		},
		{
			Role:    RoleUser,
			Content: fmt.Sprintf("Question:\n%s\n\nCandidate answer:\n%s", pair.Question, pair.Answer),
		},
	}

	reply, err := a.llm.Complete(ctx, messages, ChatOptions{Temperature: 0.3, MaxTokens: 800, JSONResponse: true})
	if err != nil {
		return models.QuestionFeedback{}, err
	}

	evaluation := ParseAnswerEvaluation(reply, AnswerScoreRange)
	evaluation.Question = pair.Question
	evaluation.Answer = pair.Answer
	return evaluation, nil
}

// analyzeConversation submits all pairs in one request and expects a single
// JSON object back. Used for voice sessions, where per-pair context is weak.
// A malformed reply degrades to the canned full-session summary, not to
// partial canned answers.
func (a *SessionAnalyzer) analyzeConversation(ctx context.Context, sessionID string, pairs []QAPair) *models.SessionAnalysis {
	var transcript strings.Builder
	for i, pair := range pairs {
		fmt.Fprintf(&transcript, "Q%d: %s\nA%d: %s\n\n", i+1, pair.Question, i+1, pair.Answer)
	}

	messages := []ChatMessage{
		{
			Role: RoleSystem,
			Content: "You are an experienced interviewer reviewing a complete voice interview. " +
				"Respond with a JSON object containing: average_score (number 0-10), " +
				"strengths_summary (array of {name, value}), improvement_summary (array of {name, value}), " +
				"question_analysis (array of {question, answer, feedback, score, strengths, areas_for_improvement}).",
		},
		{
			Role:    RoleUser,
			Content: "Interview transcript:\n\n" + transcript.String(),
		},
	}

	reply, err := a.llm.Complete(ctx, messages, ChatOptions{Temperature: 0.3, MaxTokens: 2000, JSONResponse: true})
	if err != nil {
		slog.Warn("Whole-conversation analysis call failed, using canned summary", "error", err, "session_id", sessionID)
		return a.fallbacks.SessionAnalysis(sessionID, pairs)
	}

	decoded, err := ParseSessionAnalysisJSON(reply)
	if err != nil {
		slog.Warn("Whole-conversation reply was malformed, using canned summary", "error", err, "session_id", sessionID)
		return a.fallbacks.SessionAnalysis(sessionID, pairs)
	}

	// The model sometimes omits the original question/answer text; restore it
	// by pair index
	for i := range decoded.QuestionAnalysis {
		if i < len(pairs) {
			if decoded.QuestionAnalysis[i].Question == "" {
				decoded.QuestionAnalysis[i].Question = pairs[i].Question
			}
			if decoded.QuestionAnalysis[i].Answer == "" {
				decoded.QuestionAnalysis[i].Answer = pairs[i].Answer
			}
		}
	}

	strengths := decoded.StrengthsSummary
	if len(strengths) == 0 {
		strengths = CountThemes(collectStrengths(decoded.QuestionAnalysis), MaxThemes)
	}
	improvements := decoded.ImprovementSummary
	if len(improvements) == 0 {
		improvements = CountThemes(collectImprovements(decoded.QuestionAnalysis), MaxThemes)
	}

	return &models.SessionAnalysis{
		SessionID:          sessionID,
		AverageScore:       decoded.AverageScore,
		AnsweredQuestions:  len(decoded.QuestionAnalysis),
		QuestionAnalysis:   decoded.QuestionAnalysis,
		StrengthsSummary:   strengths,
		ImprovementSummary: improvements,
	}
}

// CountThemes flattens the groups into one multiset, counts exact-string
// occurrences, and returns the top limit themes sorted by descending count
// with ties broken by first appearance. Exact-string counting means
// near-duplicate phrasing will not merge.
func CountThemes(groups [][]string, limit int) []models.ThemeCount {
	counts := make(map[string]int)
	var order []string
	for _, group := range groups {
		for _, theme := range group {
			theme = strings.TrimSpace(theme)
			if theme == "" {
				continue
			}
			if counts[theme] == 0 {
				order = append(order, theme)
			}
			counts[theme]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if len(order) > limit {
		order = order[:limit]
	}

	themes := make([]models.ThemeCount, 0, len(order))
	for _, name := range order {
		themes = append(themes, models.ThemeCount{Name: name, Value: counts[name]})
	}
	return themes
}

func collectStrengths(feedback []models.QuestionFeedback) [][]string {
	groups := make([][]string, 0, len(feedback))
	for _, entry := range feedback {
		groups = append(groups, entry.Strengths)
	}
	return groups
}

func collectImprovements(feedback []models.QuestionFeedback) [][]string {
	groups := make([][]string, 0, len(feedback))
	for _, entry := range feedback {
		groups = append(groups, entry.AreasForImprovement)
	}
	return groups
}
