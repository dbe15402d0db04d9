package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// ResumeAnalysisResult is the typed outcome of one resume review. Created per
// request, immutable once returned, never aggregated across requests.
type ResumeAnalysisResult struct {
	AnalysisText string   `json:"analysis_text"`
	Strengths    []string `json:"strengths"`
	Weaknesses   []string `json:"weaknesses"`
	Suggestions  []string `json:"suggestions"`
	JobFit       string   `json:"job_fit"` // low, medium, high
	Score        float64  `json:"score"`   // 0-100
}

// ResumeAnalyzer reviews resume text against an optional target role
type ResumeAnalyzer struct {
	llm       ChatCompleter
	fallbacks *FallbackCatalog
}

func NewResumeAnalyzer(llm ChatCompleter, fallbacks *FallbackCatalog) *ResumeAnalyzer {
	return &ResumeAnalyzer{
		llm:       llm,
		fallbacks: fallbacks,
	}
}

// Analyze always returns a fully populated result: a JSON reply is parsed
// strictly, a prose reply is scraped by section, and a failed call falls back
// to the canned result. The caller never receives an error to propagate.
func (r *ResumeAnalyzer) Analyze(ctx context.Context, resumeText, targetRole string) ResumeAnalysisResult {
	prompt := fmt.Sprintf(`Review the following resume and respond with a JSON object containing:
analysis_text (string), strengths (array of strings), weaknesses (array of strings),
suggestions (array of strings), job_fit (low, medium, or high), score (number 0-100).

Resume:
%s`, strings.TrimSpace(resumeText))

	if strings.TrimSpace(targetRole) != "" {
		prompt += fmt.Sprintf("\n\nEvaluate fit for this target role: %s", targetRole)
	}

	messages := []ChatMessage{
		{Role: RoleSystem, Content: "You are a senior technical recruiter reviewing resumes."},
		{Role: RoleUser, Content: prompt},
	}

	reply, err := r.llm.Complete(ctx, messages, ChatOptions{Temperature: 0.4, MaxTokens: 1500, JSONResponse: true})
	if err != nil {
		slog.Error("Resume analysis call failed, using canned result", "error", err)
		return r.fallbacks.ResumeAnalysis()
	}

	return ParseResumeAnalysis(reply)
}
