package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *ChatClient) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewChatClient(AIConfig{
		APIKey:    "test-key",
		BaseURL:   server.URL,
		ChatModel: "test-model",
	})
	return server, client
}

func completionBody(content string) string {
	return `{"choices": [{"message": {"role": "assistant", "content": ` + string(mustMarshal(content)) + `}, "finish_reason": "stop"}]}`
}

func mustMarshal(v interface{}) []byte {
	data, _ := json.Marshal(v)
	return data
}

func TestChatClientComplete(t *testing.T) {
	var gotRequest chatRequest
	_, client := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
		w.Write([]byte(completionBody("Hello there")))
	})

	reply, err := client.Complete(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}}, ChatOptions{JSONResponse: true})
	require.NoError(t, err)

	assert.Equal(t, "Hello there", reply)
	assert.Equal(t, "test-model", gotRequest.Model)
	require.NotNil(t, gotRequest.ResponseFormat)
	assert.Equal(t, "json_object", gotRequest.ResponseFormat.Type)
}

func TestChatClientRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	_, client := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(completionBody("recovered")))
	})

	reply, err := client.Complete(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}}, ChatOptions{})
	require.NoError(t, err)

	assert.Equal(t, "recovered", reply)
	assert.Equal(t, int32(2), calls.Load())
}

func TestChatClientDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	_, client := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "bad request"}`))
	})

	_, err := client.Complete(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}}, ChatOptions{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestChatClientEmptyChoices(t *testing.T) {
	_, client := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	})

	_, err := client.Complete(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}}, ChatOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestChatClientMissingAPIKey(t *testing.T) {
	client := NewChatClient(AIConfig{BaseURL: "http://localhost:1"})

	_, err := client.Complete(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}}, ChatOptions{})
	require.Error(t, err)
}

func TestCompleteOrFallback(t *testing.T) {
	_, client := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	reply := client.CompleteOrFallback(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}}, ChatOptions{}, "canned reply")
	assert.Equal(t, "canned reply", reply)
}

func TestCompleteOrFallbackBlankReply(t *testing.T) {
	_, client := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("   ")))
	})

	reply := client.CompleteOrFallback(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}}, ChatOptions{}, "canned reply")
	assert.Equal(t, "canned reply", reply)
}

func TestChatClientOptionsModelOverride(t *testing.T) {
	var gotRequest chatRequest
	_, client := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))
		w.Write([]byte(completionBody("ok")))
	})

	_, err := client.Complete(context.Background(), []ChatMessage{{Role: RoleUser, Content: "hi"}}, ChatOptions{Model: "other-model"})
	require.NoError(t, err)
	assert.Equal(t, "other-model", gotRequest.Model)
}
