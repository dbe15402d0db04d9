package services

import (
	"testing"

	"github.com/prepmate/backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func message(isBot bool, content string) models.SessionMessage {
	return models.SessionMessage{IsBot: isBot, Content: content}
}

func TestBuildPairsStrict(t *testing.T) {
	messages := []models.SessionMessage{
		message(true, "Q1"),
		message(false, "A1"),
		message(true, "Q2"),
		message(false, "A2"),
	}

	pairs := BuildPairs(messages, false)

	require.Len(t, pairs, 2)
	assert.Equal(t, QAPair{Question: "Q1", Answer: "A1"}, pairs[0])
	assert.Equal(t, QAPair{Question: "Q2", Answer: "A2"}, pairs[1])
}

func TestBuildPairsStrictSkipsBrokenAdjacency(t *testing.T) {
	// Two consecutive interviewer messages break the lockstep walk: only the
	// first exchange survives.
	messages := []models.SessionMessage{
		message(true, "Q1"),
		message(false, "A1"),
		message(true, "Q2"),
		message(true, "Q3"),
		message(false, "A2"),
	}

	pairs := BuildPairs(messages, false)

	require.Len(t, pairs, 1)
	assert.Equal(t, QAPair{Question: "Q1", Answer: "A1"}, pairs[0])
}

func TestBuildPairsEmptyTranscript(t *testing.T) {
	assert.Empty(t, BuildPairs(nil, false))
	assert.Empty(t, BuildPairs(nil, true))
}

func TestBuildPairsLooseFallbackForVoice(t *testing.T) {
	// The welcome message before the first question throws off the lockstep
	// walk, so strict pairing yields nothing. The loose pass drops the welcome
	// and realigns questions with answers.
	messages := []models.SessionMessage{
		message(true, "Welcome to the interview"),
		message(true, "Q1"),
		message(false, "A1"),
		message(true, "Q2"),
		message(false, "A2"),
	}

	pairs := BuildPairs(messages, true)

	require.Len(t, pairs, 2)
	assert.Equal(t, QAPair{Question: "Q1", Answer: "A1"}, pairs[0])
	assert.Equal(t, QAPair{Question: "Q2", Answer: "A2"}, pairs[1])
}

func TestBuildPairsLooseNotUsedForTextSessions(t *testing.T) {
	messages := []models.SessionMessage{
		message(false, "Hello"),
		message(true, "Welcome"),
	}

	assert.Empty(t, BuildPairs(messages, false))
}

func TestBuildPairsDeterministic(t *testing.T) {
	messages := []models.SessionMessage{
		message(true, "Q1"),
		message(false, "A1"),
		message(true, "Q2"),
		message(false, "A2"),
	}

	first := BuildPairs(messages, false)
	second := BuildPairs(messages, false)

	assert.Equal(t, first, second)
}
