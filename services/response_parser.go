package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/prepmate/backend/models"
)

// ErrMalformedLLMResponse marks a reply that could not be decoded in strict
// JSON mode. Callers downgrade it to a canned result, never surface it.
var ErrMalformedLLMResponse = errors.New("malformed llm response")

// SectionName identifies a recognized block of a freeform LLM reply
type SectionName string

const (
	SectionSummary     SectionName = "summary"
	SectionFeedback    SectionName = "feedback"
	SectionStrengths   SectionName = "strengths"
	SectionWeaknesses  SectionName = "weaknesses"
	SectionSuggestions SectionName = "suggestions"
	SectionScore       SectionName = "score"
	SectionJobFit      SectionName = "job_fit"
)

// ScoreRange bounds a parsed score. Out-of-range values are clamped, never
// rejected; a missing score falls back to Fallback.
type ScoreRange struct {
	Min      float64
	Max      float64
	Fallback float64
}

var (
	AnswerScoreRange = ScoreRange{Min: 0, Max: 10, Fallback: 5}
	ResumeScoreRange = ScoreRange{Min: 0, Max: 100, Fallback: 70}
)

// Per-field defaults used when a prose section is missing or empty
const (
	placeholderStrength    = "Clear presentation of skills"
	placeholderImprovement = "Add more specific detail to your responses"
	placeholderSuggestion  = "Support your answers with concrete examples"
	defaultAnswerFeedback  = "Thanks for your answer. Keep practicing to add more depth and specific examples."
	defaultResumeSummary   = "The resume covers the essentials but would benefit from more measurable detail."
)

var sectionHeaders = []struct {
	name    SectionName
	pattern *regexp.Regexp
}{
	{SectionStrengths, regexp.MustCompile(`(?i)^\s*(?:[#*]+\s*)?(?:key\s+)?strengths?\s*[:\-]`)},
	{SectionWeaknesses, regexp.MustCompile(`(?i)^\s*(?:[#*]+\s*)?(?:weaknesses|areas?\s+(?:for|of)\s+improvement)\s*[:\-]`)},
	{SectionSuggestions, regexp.MustCompile(`(?i)^\s*(?:[#*]+\s*)?(?:suggestions?|recommendations?)\s*[:\-]`)},
	{SectionScore, regexp.MustCompile(`(?i)^\s*(?:[#*]+\s*)?(?:overall\s+)?score\s*[:\-]`)},
	{SectionJobFit, regexp.MustCompile(`(?i)^\s*(?:[#*]+\s*)?job\s*fit\s*[:\-]`)},
	{SectionFeedback, regexp.MustCompile(`(?i)^\s*(?:[#*]+\s*)?(?:feedback|summary|analysis)\s*[:\-]`)},
}

var (
	numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)
	bulletPattern = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*`)
)

// splitSections walks a freeform reply line by line, switching sections when
// a recognized header appears. Text before the first header lands in
// SectionSummary. Headers may appear in any order or not at all.
func splitSections(raw string) map[SectionName][]string {
	sections := make(map[SectionName][]string)
	current := SectionSummary

	for _, line := range strings.Split(raw, "\n") {
		matched := false
		for _, header := range sectionHeaders {
			if loc := header.pattern.FindStringIndex(line); loc != nil {
				current = header.name
				if rest := strings.TrimSpace(line[loc[1]:]); rest != "" {
					sections[current] = append(sections[current], rest)
				}
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		if trimmed := strings.TrimRight(line, " \t"); strings.TrimSpace(trimmed) != "" {
			sections[current] = append(sections[current], trimmed)
		}
	}

	return sections
}

// bulletItems extracts list entries from section lines: lines starting with a
// dash, bullet, or numbered marker, with the marker and whitespace trimmed.
// Empty results are discarded.
func bulletItems(lines []string) []string {
	var items []string
	for _, line := range lines {
		if !bulletPattern.MatchString(line) {
			continue
		}
		item := strings.TrimSpace(bulletPattern.ReplaceAllString(line, ""))
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// ensureItems substitutes a single placeholder so the UI never renders an
// empty list
func ensureItems(items []string, placeholder string) []string {
	if len(items) == 0 {
		return []string{placeholder}
	}
	return items
}

// parseScore pulls the first numeric token from the section content and
// clamps it into the range
func parseScore(lines []string, bounds ScoreRange) float64 {
	for _, line := range lines {
		token := numberPattern.FindString(line)
		if token == "" {
			continue
		}
		value, err := strconv.ParseFloat(token, 64)
		if err != nil {
			continue
		}
		return bounds.Clamp(value)
	}
	return bounds.Fallback
}

// Clamp bounds a value to the valid range
func (r ScoreRange) Clamp(value float64) float64 {
	if value < r.Min {
		return r.Min
	}
	if value > r.Max {
		return r.Max
	}
	return value
}

// Job fit levels
const (
	JobFitLow    = "low"
	JobFitMedium = "medium"
	JobFitHigh   = "high"
)

// classifyJobFit is a closed tri-state keyword classifier, not a numeric
// threshold
func classifyJobFit(text string) string {
	lower := strings.ToLower(text)
	for _, keyword := range []string{"high", "strong", "excellent"} {
		if strings.Contains(lower, keyword) {
			return JobFitHigh
		}
	}
	for _, keyword := range []string{"low", "poor", "weak"} {
		if strings.Contains(lower, keyword) {
			return JobFitLow
		}
	}
	return JobFitMedium
}

type answerEvaluationJSON struct {
	Feedback            string   `json:"feedback"`
	Score               *float64 `json:"score"`
	Strengths           []string `json:"strengths"`
	AreasForImprovement []string `json:"areas_for_improvement"`
	Weaknesses          []string `json:"weaknesses"`
}

// ParseAnswerEvaluation turns one LLM reply into a fully populated
// QuestionFeedback. Strict JSON is tried first; otherwise the reply is
// treated as sectioned prose. Never fails: missing fields degrade to their
// documented defaults.
func ParseAnswerEvaluation(raw string, bounds ScoreRange) models.QuestionFeedback {
	evaluation := models.QuestionFeedback{
		Feedback:            defaultAnswerFeedback,
		Score:               bounds.Fallback,
		Strengths:           []string{placeholderStrength},
		AreasForImprovement: []string{placeholderImprovement},
	}

	cleaned := stripCodeFences(raw)

	var decoded answerEvaluationJSON
	if err := json.Unmarshal([]byte(cleaned), &decoded); err == nil {
		if strings.TrimSpace(decoded.Feedback) != "" {
			evaluation.Feedback = strings.TrimSpace(decoded.Feedback)
		}
		if decoded.Score != nil {
			evaluation.Score = bounds.Clamp(*decoded.Score)
		}
		areas := decoded.AreasForImprovement
		if len(areas) == 0 {
			areas = decoded.Weaknesses
		}
		evaluation.Strengths = ensureItems(dropEmpty(decoded.Strengths), placeholderStrength)
		evaluation.AreasForImprovement = ensureItems(dropEmpty(areas), placeholderImprovement)
		return evaluation
	}

	sections := splitSections(cleaned)

	feedbackLines := sections[SectionFeedback]
	if len(feedbackLines) == 0 {
		feedbackLines = sections[SectionSummary]
	}
	if feedback := strings.TrimSpace(strings.Join(feedbackLines, "\n")); feedback != "" {
		evaluation.Feedback = feedback
	}

	if lines, ok := sections[SectionScore]; ok {
		evaluation.Score = parseScore(lines, bounds)
	}
	evaluation.Strengths = ensureItems(bulletItems(sections[SectionStrengths]), placeholderStrength)
	evaluation.AreasForImprovement = ensureItems(bulletItems(sections[SectionWeaknesses]), placeholderImprovement)

	return evaluation
}

type resumeAnalysisJSON struct {
	AnalysisText string   `json:"analysis_text"`
	Summary      string   `json:"summary"`
	Strengths    []string `json:"strengths"`
	Weaknesses   []string `json:"weaknesses"`
	Suggestions  []string `json:"suggestions"`
	JobFit       string   `json:"job_fit"`
	Score        *float64 `json:"score"`
}

// ParseResumeAnalysis turns one LLM reply into a fully populated
// ResumeAnalysisResult, strict JSON first, sectioned prose otherwise
func ParseResumeAnalysis(raw string) ResumeAnalysisResult {
	result := ResumeAnalysisResult{
		AnalysisText: defaultResumeSummary,
		Strengths:    []string{placeholderStrength},
		Weaknesses:   []string{placeholderImprovement},
		Suggestions:  []string{placeholderSuggestion},
		JobFit:       JobFitMedium,
		Score:        ResumeScoreRange.Fallback,
	}

	cleaned := stripCodeFences(raw)

	var decoded resumeAnalysisJSON
	if err := json.Unmarshal([]byte(cleaned), &decoded); err == nil {
		text := decoded.AnalysisText
		if strings.TrimSpace(text) == "" {
			text = decoded.Summary
		}
		if strings.TrimSpace(text) != "" {
			result.AnalysisText = strings.TrimSpace(text)
		}
		if decoded.Score != nil {
			result.Score = ResumeScoreRange.Clamp(*decoded.Score)
		}
		if decoded.JobFit != "" {
			result.JobFit = classifyJobFit(decoded.JobFit)
		}
		result.Strengths = ensureItems(dropEmpty(decoded.Strengths), placeholderStrength)
		result.Weaknesses = ensureItems(dropEmpty(decoded.Weaknesses), placeholderImprovement)
		result.Suggestions = ensureItems(dropEmpty(decoded.Suggestions), placeholderSuggestion)
		return result
	}

	sections := splitSections(cleaned)

	summaryLines := sections[SectionFeedback]
	if len(summaryLines) == 0 {
		summaryLines = sections[SectionSummary]
	}
	if text := strings.TrimSpace(strings.Join(summaryLines, "\n")); text != "" {
		result.AnalysisText = text
	}

	if lines, ok := sections[SectionScore]; ok {
		result.Score = parseScore(lines, ResumeScoreRange)
	}
	if lines, ok := sections[SectionJobFit]; ok {
		result.JobFit = classifyJobFit(strings.Join(lines, " "))
	}
	result.Strengths = ensureItems(bulletItems(sections[SectionStrengths]), placeholderStrength)
	result.Weaknesses = ensureItems(bulletItems(sections[SectionWeaknesses]), placeholderImprovement)
	result.Suggestions = ensureItems(bulletItems(sections[SectionSuggestions]), placeholderSuggestion)

	return result
}

type sessionAnalysisJSON struct {
	AverageScore       float64                   `json:"average_score"`
	StrengthsSummary   []models.ThemeCount       `json:"strengths_summary"`
	ImprovementSummary []models.ThemeCount       `json:"improvement_summary"`
	QuestionAnalysis   []models.QuestionFeedback `json:"question_analysis"`
}

// ParseSessionAnalysisJSON decodes the single large reply used by
// whole-of-conversation analysis. Strict: any decode failure is
// ErrMalformedLLMResponse so the caller can swap in the canned summary.
func ParseSessionAnalysisJSON(raw string) (*sessionAnalysisJSON, error) {
	cleaned := stripCodeFences(raw)

	var decoded sessionAnalysisJSON
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLLMResponse, err)
	}
	if len(decoded.QuestionAnalysis) == 0 && decoded.AverageScore == 0 {
		return nil, fmt.Errorf("%w: reply decoded but carried no analysis", ErrMalformedLLMResponse)
	}

	decoded.AverageScore = AnswerScoreRange.Clamp(decoded.AverageScore)
	for i := range decoded.QuestionAnalysis {
		feedback := &decoded.QuestionAnalysis[i]
		feedback.Score = AnswerScoreRange.Clamp(feedback.Score)
		feedback.Strengths = ensureItems(dropEmpty(feedback.Strengths), placeholderStrength)
		feedback.AreasForImprovement = ensureItems(dropEmpty(feedback.AreasForImprovement), placeholderImprovement)
	}

	return &decoded, nil
}

func dropEmpty(items []string) []string {
	var kept []string
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return kept
}
