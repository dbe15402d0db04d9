package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	chatTimeout    = 45 * time.Second
	chatMaxRetries = 1
	retryBackoff   = 500 * time.Millisecond
)

// Chat message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn sent to the chat-completions endpoint
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions tune a single completion request
type ChatOptions struct {
	Model        string
	Temperature  float32
	MaxTokens    int
	JSONResponse bool
}

// ChatCompleter is the outbound LLM port. ChatClient is the production
// implementation; analysis services depend on the interface so tests can
// substitute a stub.
type ChatCompleter interface {
	Complete(ctx context.Context, messages []ChatMessage, opts ChatOptions) (string, error)
}

// ChatClient calls an OpenAI-compatible chat-completions endpoint
type ChatClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Temperature    float32         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func NewChatClient(cfg AIConfig) *ChatClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &ChatClient{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   cfg.ChatModel,
		client: &http.Client{
			Timeout: chatTimeout,
		},
	}
}

// Complete sends the messages and returns the assistant's reply text.
// Transient failures (transport errors, 429, 5xx) get one retry with backoff.
func (c *ChatClient) Complete(ctx context.Context, messages []ChatMessage, opts ChatOptions) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("chat api key is empty")
	}

	model := opts.Model
	if model == "" {
		model = c.model
	}

	request := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.JSONResponse {
		request.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= chatMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
			slog.Warn("Retrying chat completion", "attempt", attempt, "error", lastErr)
		}

		reply, retryable, err := c.doRequest(ctx, jsonData)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	return "", lastErr
}

func (c *ChatClient) doRequest(ctx context.Context, body []byte) (reply string, retryable bool, err error) {
	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", retryable, fmt.Errorf("chat API error: %d - %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", false, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("chat response contained no choices")
	}

	content := parsed.Choices[0].Message.Content
	slog.Info("Chat completion received", "response_length", len(content))
	return content, false, nil
}

// CompleteOrFallback is the guaranteed-string variant: downstream parsing must
// never see a missing reply, so every failure collapses to the fallback text.
func (c *ChatClient) CompleteOrFallback(ctx context.Context, messages []ChatMessage, opts ChatOptions, fallback string) string {
	reply, err := c.Complete(ctx, messages, opts)
	if err != nil {
		slog.Error("Chat completion failed, using fallback reply", "error", err)
		return fallback
	}
	if strings.TrimSpace(reply) == "" {
		return fallback
	}
	return reply
}

// stripCodeFences removes a surrounding markdown code fence from an LLM reply
// so the content can be JSON-decoded
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag on the opening fence line
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
