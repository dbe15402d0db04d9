package services

import (
	"log/slog"

	"github.com/prepmate/backend/models"
)

// QAPair is one reconstructed question/answer exchange from a transcript
type QAPair struct {
	Question string
	Answer   string
}

// BuildPairs reconstructs question/answer pairs from an ordered transcript.
// The strict pass assumes clean turn-taking; voice sessions that produce zero
// strict pairs get the loose pass, which tolerates irregular interleaving.
// Zero pairs is a valid outcome, never an error.
func BuildPairs(messages []models.SessionMessage, voice bool) []QAPair {
	pairs := pairStrict(messages)
	if len(pairs) == 0 && voice {
		pairs = pairLoose(messages)
		slog.Info("Strict pairing yielded nothing, used loose pairing", "pairs", len(pairs))
	}
	return pairs
}

// pairStrict walks the transcript in lockstep steps of two: a pair is emitted
// only when position i is an interviewer message immediately followed by a
// candidate message. Positions that break this adjacency produce no pair and
// are not retried, so two consecutive interviewer messages silently swallow
// that slot.
func pairStrict(messages []models.SessionMessage) []QAPair {
	var pairs []QAPair
	for i := 0; i+1 < len(messages); i += 2 {
		if messages[i].IsBot && !messages[i+1].IsBot {
			pairs = append(pairs, QAPair{
				Question: messages[i].Content,
				Answer:   messages[i+1].Content,
			})
		}
	}
	return pairs
}

// pairLoose separates interviewer and candidate messages into two ordered
// sequences, drops the first interviewer message as a welcome rather than a
// question, and pairs interviewer i with candidate i-1 while both sequences
// last. Assumes global ordering is still meaningful.
func pairLoose(messages []models.SessionMessage) []QAPair {
	var questions, answers []string
	for _, message := range messages {
		if message.IsBot {
			questions = append(questions, message.Content)
		} else {
			answers = append(answers, message.Content)
		}
	}

	var pairs []QAPair
	for i := 1; i < len(questions) && i-1 < len(answers); i++ {
		pairs = append(pairs, QAPair{
			Question: questions[i],
			Answer:   answers[i-1],
		})
	}
	return pairs
}
