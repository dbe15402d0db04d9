package repository

import (
	"context"
	"testing"
	"time"

	"github.com/prepmate/backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSessionStoreMessagesOrdered(t *testing.T) {
	store := NewLocalSessionStore()
	ctx := context.Background()

	base := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	second := models.SessionMessage{SessionID: "s1", IsBot: false, Content: "second", CreatedAt: base.Add(time.Minute)}
	first := models.SessionMessage{SessionID: "s1", IsBot: true, Content: "first", CreatedAt: base}

	require.NoError(t, store.SaveMessage(ctx, &second))
	require.NoError(t, store.SaveMessage(ctx, &first))

	messages, err := store.Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "second", messages[1].Content)
}

func TestLocalSessionStoreSaveMessageAssignsDefaults(t *testing.T) {
	store := NewLocalSessionStore()
	ctx := context.Background()

	message := models.SessionMessage{SessionID: "s1", Content: "hello"}
	require.NoError(t, store.SaveMessage(ctx, &message))

	assert.NotEmpty(t, message.ID)
	assert.False(t, message.CreatedAt.IsZero())
}

func TestLocalSessionStoreMessagesIsolatedBySession(t *testing.T) {
	store := NewLocalSessionStore()
	ctx := context.Background()

	require.NoError(t, store.SaveMessage(ctx, &models.SessionMessage{SessionID: "s1", Content: "a"}))
	require.NoError(t, store.SaveMessage(ctx, &models.SessionMessage{SessionID: "s2", Content: "b"}))

	messages, err := store.Messages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "a", messages[0].Content)
}

func TestLocalSessionStoreUpsertAnalysisLastWriteWins(t *testing.T) {
	store := NewLocalSessionStore()
	ctx := context.Background()

	first := models.SessionAnalysis{SessionID: "s1", AverageScore: 4.5}
	require.NoError(t, store.UpsertAnalysis(ctx, &first))
	require.NotEmpty(t, first.ID)

	second := models.SessionAnalysis{SessionID: "s1", AverageScore: 8.2}
	require.NoError(t, store.UpsertAnalysis(ctx, &second))

	// Rerunning analysis replaces the row but keeps its identity
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)

	saved, err := store.Analysis(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, 8.2, saved.AverageScore)
	assert.Equal(t, first.ID, saved.ID)
}

func TestLocalSessionStoreAnalysisMissing(t *testing.T) {
	store := NewLocalSessionStore()

	analysis, err := store.Analysis(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, analysis)
}
