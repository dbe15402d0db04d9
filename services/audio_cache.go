package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// AudioCache provides filesystem-based caching for synthesized speech.
// Only the fixed interviewer phrases are cached; candidate-specific replies
// never hit the cache.
type AudioCache struct {
	cacheDir string
	mutex    sync.RWMutex
}

// Common interviewer phrases worth caching
var CommonPhrases = map[string]bool{
	"Hello! Welcome to your interview. Let's get started.":          true,
	"Great answer! Let's move on to the next question.":             true,
	"Thank you for that response. Here's your next question.":       true,
	"That's a thoughtful answer. Let's continue.":                   true,
	"Take a moment to think about your response.":                   true,
	"Can you tell me more about your experience with this?":         true,
	"That's an interesting point. Can you elaborate?":               true,
	"I see. Could you provide a specific example?":                  true,
	"Thank you for your time today. The interview is now complete.": true,
}

// NewAudioCache creates a new audio cache with the specified directory
func NewAudioCache(cacheDir string) *AudioCache {
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		slog.Error("Failed to create cache directory", "dir", cacheDir, "error", err)
	}

	return &AudioCache{
		cacheDir: cacheDir,
	}
}

// generateCacheKey creates a unique key for caching based on text and voice
func (ac *AudioCache) generateCacheKey(text, voice string) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s:%s", text, voice)))
	return hex.EncodeToString(hash[:])
}

func (ac *AudioCache) getCachePath(key string) string {
	return filepath.Join(ac.cacheDir, key+".mp3")
}

// IsCommonPhrase checks if the given text is a common phrase that should be cached
func (ac *AudioCache) IsCommonPhrase(text string) bool {
	return CommonPhrases[text]
}

// Get retrieves cached audio data if it exists
func (ac *AudioCache) Get(ctx context.Context, text, voice string) ([]byte, bool) {
	if !ac.IsCommonPhrase(text) {
		return nil, false
	}

	ac.mutex.RLock()
	defer ac.mutex.RUnlock()

	cachePath := ac.getCachePath(ac.generateCacheKey(text, voice))
	data, err := os.ReadFile(cachePath)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("Failed to read cached audio", "path", cachePath, "error", err)
		}
		return nil, false
	}

	slog.Info("Cache hit for common phrase", "text", text, "voice", voice)
	return data, true
}

// Set stores audio data in the cache when the text qualifies
func (ac *AudioCache) Set(ctx context.Context, text, voice string, audioData []byte) error {
	if !ac.IsCommonPhrase(text) {
		return nil
	}

	ac.mutex.Lock()
	defer ac.mutex.Unlock()

	cachePath := ac.getCachePath(ac.generateCacheKey(text, voice))
	if err := os.WriteFile(cachePath, audioData, 0644); err != nil {
		slog.Error("Failed to write audio to cache", "path", cachePath, "error", err)
		return err
	}

	slog.Info("Cached common phrase audio", "text", text, "voice", voice, "size", len(audioData))
	return nil
}
