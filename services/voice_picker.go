package services

import (
	"crypto/sha1"
	"encoding/binary"
	"strings"
)

// Stock TTS voices offered by the speech endpoint
var ttsVoices = []string{
	"alloy",
	"echo",
	"fable",
	"onyx",
	"nova",
	"shimmer",
}

// PickDeterministicVoice returns a stable TTS voice for a session so the
// interviewer does not change voice mid-interview. The session ID is hashed
// to pick from the pool.
func PickDeterministicVoice(sessionID string) string {
	if len(ttsVoices) == 0 {
		return "alloy"
	}
	h := sha1.New()
	h.Write([]byte(strings.ToLower(sessionID)))
	sum := h.Sum(nil)
	idx := binary.BigEndian.Uint16(sum) % uint16(len(ttsVoices))
	return ttsVoices[idx]
}
