package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// SpeechService handles speech-to-text and text-to-speech for voice sessions
type SpeechService struct {
	apiKey          string
	baseURL         string
	transcribeModel string
	speechModel     string
	client          *http.Client
	cache           *AudioCache
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

func NewSpeechService(cfg AIConfig, cache *AudioCache) *SpeechService {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &SpeechService{
		apiKey:          cfg.APIKey,
		baseURL:         strings.TrimRight(baseURL, "/"),
		transcribeModel: cfg.TranscribeModel,
		speechModel:     cfg.SpeechModel,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		cache: cache,
	}
}

// Transcribe posts audio bytes to the transcription endpoint and returns the
// recognized text. The endpoint may reply with plain text or {"text": ...}.
func (s *SpeechService) Transcribe(ctx context.Context, audioData []byte, filename string) (string, error) {
	if filename == "" {
		filename = "audio.webm"
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audioData); err != nil {
		return "", fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.WriteField("model", s.transcribeModel); err != nil {
		return "", fmt.Errorf("failed to write model field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize form: %w", err)
	}

	url := s.baseURL + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read transcription response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription API error: %d - %s", resp.StatusCode, string(respBody))
	}

	var parsed transcriptionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil || parsed.Text == "" {
		// Some transcription backends return the transcript as plain text
		text := strings.TrimSpace(string(respBody))
		slog.Info("Audio transcribed", "transcript_length", len(text))
		return text, nil
	}

	slog.Info("Audio transcribed", "transcript_length", len(parsed.Text))
	return parsed.Text, nil
}

// Synthesize converts text to mp3 audio bytes, consulting the audio cache for
// common interviewer phrases before calling out
func (s *SpeechService) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if s.cache != nil {
		if cached, found := s.cache.Get(ctx, text, voice); found {
			return cached, nil
		}
	}

	request := speechRequest{
		Model:          s.speechModel,
		Input:          text,
		Voice:          voice,
		ResponseFormat: "mp3",
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal speech request: %w", err)
	}

	url := s.baseURL + "/audio/speech"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("speech API error: %d - %s", resp.StatusCode, string(respBody))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio response: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, text, voice, audioData); err != nil {
			slog.Warn("Failed to cache synthesized audio", "error", err)
		}
	}

	slog.Info("Generated speech audio", "text_length", len(text), "audio_size", len(audioData))
	return audioData, nil
}
