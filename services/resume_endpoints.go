package services

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const maxAudioUploadBytes = 20 << 20

type ResumeEndpoints struct {
	resume *ResumeAnalyzer
	speech *SpeechService
}

type AnalyzeResumeRequest struct {
	ResumeText string `json:"resume_text"`
	TargetRole string `json:"target_role"`
}

type SynthesizeRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

func NewResumeEndpoints(resume *ResumeAnalyzer, speech *SpeechService) *ResumeEndpoints {
	return &ResumeEndpoints{
		resume: resume,
		speech: speech,
	}
}

func (e *ResumeEndpoints) RegisterRoutes(r chi.Router) {
	r.Post("/resume/analyze", e.AnalyzeResumeHandler)

	r.Route("/speech", func(r chi.Router) {
		r.Post("/transcribe", e.TranscribeHandler)
		r.Post("/synthesize", e.SynthesizeHandler)
	})
}

func (e *ResumeEndpoints) AnalyzeResumeHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	var req AnalyzeResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ResumeText == "" {
		http.Error(w, "Resume text is required", http.StatusBadRequest)
		return
	}

	result := e.resume.Analyze(r.Context(), req.ResumeText, req.TargetRole)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"result": result,
	})

	slog.Info("Resume analyzed", "user_id", user.ID, "score", result.Score, "job_fit", result.JobFit)
}

func (e *ResumeEndpoints) TranscribeHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	if err := r.ParseMultipartForm(maxAudioUploadBytes); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "Audio file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	audioData, err := io.ReadAll(io.LimitReader(file, maxAudioUploadBytes))
	if err != nil {
		http.Error(w, "Failed to read audio file", http.StatusBadRequest)
		return
	}

	text, err := e.speech.Transcribe(r.Context(), audioData, header.Filename)
	if err != nil {
		slog.Error("Transcription failed", "error", err, "user_id", user.ID)
		http.Error(w, "Failed to transcribe audio", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"text": text,
	})
}

func (e *ResumeEndpoints) SynthesizeHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
		return
	}

	var req SynthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "Text is required", http.StatusBadRequest)
		return
	}
	if req.Voice == "" {
		req.Voice = PickDeterministicVoice(user.ID)
	}

	audio, err := e.speech.Synthesize(r.Context(), req.Text, req.Voice)
	if err != nil {
		slog.Error("Speech synthesis failed", "error", err, "user_id", user.ID)
		http.Error(w, "Failed to synthesize speech", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.Write(audio)
}
