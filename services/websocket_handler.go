package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prepmate/backend/models"
	"github.com/prepmate/backend/repository"
	ws "github.com/prepmate/backend/websocket"
)

const maxEmptyResponses = 3

type WebSocketHandler struct {
	repo        *repository.GORMRepository
	store       repository.SessionStore
	interviewer *Interviewer
	speech      *SpeechService
	idle        *IdleSessionService
	fallbacks   *FallbackCatalog
}

func NewWebSocketHandler(repo *repository.GORMRepository, store repository.SessionStore, interviewer *Interviewer, speech *SpeechService, idle *IdleSessionService, fallbacks *FallbackCatalog) *WebSocketHandler {
	return &WebSocketHandler{
		repo:        repo,
		store:       store,
		interviewer: interviewer,
		speech:      speech,
		idle:        idle,
		fallbacks:   fallbacks,
	}
}

// HandleConnection registers the session for idle tracking and opens the
// interview if the conversation has not started yet.
func (h *WebSocketHandler) HandleConnection(client *ws.Client) {
	slog.Info("WebSocket connection handled", "user_id", client.UserID, "session_id", client.SessionID)

	h.idle.RegisterSession(client.SessionID, client.UserID)

	ctx, cancel := context.WithTimeout(context.Background(), chatTimeout)
	defer cancel()

	session, err := h.repo.GetInterviewSession(ctx, client.SessionID)
	if err != nil || session == nil {
		slog.Error("Failed to load session for connection", "error", err, "session_id", client.SessionID)
		return
	}

	messages, err := h.store.Messages(ctx, client.SessionID)
	if err != nil {
		slog.Error("Failed to load session messages", "error", err, "session_id", client.SessionID)
		return
	}
	if len(messages) > 0 {
		return
	}

	opening := h.interviewer.OpeningQuestion(ctx, session)
	h.saveBotMessage(ctx, client.SessionID, opening)
	client.SendJSON(ws.OutboundMessage{Type: "text", Content: opening})

	if session.IsVoice() {
		h.sendSpokenReply(ctx, client, opening)
	}
}

// HandleMessage routes an incoming WebSocket message.
func (h *WebSocketHandler) HandleMessage(client *ws.Client, messageBytes []byte) {
	var msg ws.Message
	if err := json.Unmarshal(messageBytes, &msg); err != nil {
		slog.Error("Failed to unmarshal WebSocket message", "error", err, "session_id", client.SessionID)
		return
	}

	h.idle.UpdateActivity(client.SessionID)

	ctx, cancel := context.WithTimeout(context.Background(), 2*chatTimeout)
	defer cancel()

	session, err := h.repo.GetInterviewSession(ctx, client.SessionID)
	if err != nil || session == nil {
		slog.Error("Failed to load session for message", "error", err, "session_id", client.SessionID)
		return
	}

	switch msg.Type {
	case "text":
		h.processText(ctx, client, session, msg.Content)
	case "code":
		h.processCode(ctx, client, session, msg.Content, msg.Language)
	case "audio":
		h.processAudio(ctx, client, session, msg.AudioDataBase64)
	case "end_session":
		h.endSession(client)
	default:
		slog.Warn("Unknown message type", "type", msg.Type, "session_id", client.SessionID)
	}
}

func (h *WebSocketHandler) processText(ctx context.Context, client *ws.Client, session *models.InterviewSession, content string) {
	if content == "" {
		return
	}

	history, err := h.store.Messages(ctx, client.SessionID)
	if err != nil {
		slog.Error("Failed to load history", "error", err, "session_id", client.SessionID)
		history = nil
	}

	h.saveUserMessage(ctx, client.SessionID, content)

	reply := h.interviewer.NextReply(ctx, session, history, content)
	h.saveBotMessage(ctx, client.SessionID, reply)

	client.SendJSON(ws.OutboundMessage{Type: "text", Content: reply})
	if session.IsVoice() {
		h.sendSpokenReply(ctx, client, reply)
	}
}

func (h *WebSocketHandler) processCode(ctx context.Context, client *ws.Client, session *models.InterviewSession, code, language string) {
	if code == "" {
		return
	}

	h.saveUserMessage(ctx, client.SessionID, "Code submission ("+language+"):\n"+code)

	review, err := h.interviewer.ReviewCode(ctx, code, language)
	if err != nil {
		slog.Error("Code review failed", "error", err, "session_id", client.SessionID)
		review = "I could not review that submission right now. Walk me through your approach instead."
	}

	h.saveBotMessage(ctx, client.SessionID, review)
	client.SendJSON(ws.OutboundMessage{Type: "text", Content: review})
}

func (h *WebSocketHandler) processAudio(ctx context.Context, client *ws.Client, session *models.InterviewSession, audioBase64 string) {
	if audioBase64 == "" {
		slog.Error("No audio data provided", "session_id", client.SessionID)
		return
	}

	audioData, err := base64.StdEncoding.DecodeString(audioBase64)
	if err != nil {
		slog.Error("Failed to decode audio data", "error", err, "session_id", client.SessionID)
		return
	}

	transcript, err := h.speech.Transcribe(ctx, audioData, "recording.webm")
	if err != nil {
		slog.Error("Transcription failed", "error", err, "session_id", client.SessionID)
		transcript = h.fallbacks.Reply(OpTranscription)
	}

	if transcript == "" {
		count := h.idle.IncrementEmptyResponse(client.SessionID)
		slog.Info("Empty or unintelligible audio", "session_id", client.SessionID, "count", count)
		if count >= maxEmptyResponses {
			client.SendJSON(ws.OutboundMessage{
				Type:    "end_session",
				Content: "We seem to be having audio trouble. Let's wrap up here and prepare your feedback.",
			})
			h.idle.ConcludeSession(client.SessionID)
			return
		}

		history, _ := h.store.Messages(ctx, client.SessionID)
		reply := h.interviewer.NextReply(ctx, session, history, "")
		h.saveBotMessage(ctx, client.SessionID, reply)
		client.SendJSON(ws.OutboundMessage{Type: "text", Content: reply})
		h.sendSpokenReply(ctx, client, reply)
		return
	}

	h.idle.ResetEmptyResponse(client.SessionID)
	client.SendJSON(ws.OutboundMessage{Type: "user_message", Content: transcript})
	h.processText(ctx, client, session, transcript)
}

func (h *WebSocketHandler) endSession(client *ws.Client) {
	slog.Info("Received end_session request", "session_id", client.SessionID)

	client.SendJSON(ws.OutboundMessage{
		Type:    "end_session",
		Content: "Thank you for your time. We'll wrap up the session and prepare your feedback.",
	})

	h.idle.ConcludeSession(client.SessionID)

	go func() {
		<-time.After(200 * time.Millisecond)
		client.Conn.Close()
	}()
}

func (h *WebSocketHandler) sendSpokenReply(ctx context.Context, client *ws.Client, text string) {
	voice := PickDeterministicVoice(client.SessionID)
	audio, err := h.speech.Synthesize(ctx, text, voice)
	if err != nil {
		slog.Error("Speech synthesis failed", "error", err, "session_id", client.SessionID)
		return
	}

	client.SendJSON(ws.OutboundMessage{
		Type:            "audio",
		AudioDataBase64: base64.StdEncoding.EncodeToString(audio),
	})
}

func (h *WebSocketHandler) saveUserMessage(ctx context.Context, sessionID, content string) {
	message := models.SessionMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		IsBot:     false,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := h.store.SaveMessage(ctx, &message); err != nil {
		slog.Error("Failed to save user message", "error", err, "session_id", sessionID)
	}
}

func (h *WebSocketHandler) saveBotMessage(ctx context.Context, sessionID, content string) {
	message := models.SessionMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		IsBot:     true,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := h.store.SaveMessage(ctx, &message); err != nil {
		slog.Error("Failed to save interviewer message", "error", err, "session_id", sessionID)
	}
}
