package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/echolens/listening-gateway/internal/auth"
	"github.com/echolens/listening-gateway/internal/middleware"
	"github.com/echolens/listening-gateway/internal/model"
	"github.com/echolens/listening-gateway/internal/session"
	"github.com/echolens/listening-gateway/pkg/logger"
	"github.com/echolens/listening-gateway/pkg/metrics"
)

// ChatHandler exposes the conversation to the UI.
type ChatHandler struct {
	registry *session.Registry
	logger   *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(registry *session.Registry, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		registry: registry,
		logger:   log,
	}
}

// Send handles POST /api/v1/chat/messages. The turn is admitted synchronously
// (the transcript already shows both messages in the 202 response window) and
// streamed in the background; progress is observable via the transcript and
// the SSE passthrough.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess := h.registry.Get(middleware.GetUserID(r.Context()))

	// Carry the caller's bearer token into the detached turn context so the
	// upstream call can forward it.
	ctx := auth.WithBearerToken(r.Context(), middleware.GetRawToken(r.Context()))
	msgID := sess.Orch.SendMessageAsync(ctx, req.Message)

	writeJSON(w, http.StatusAccepted, model.SendMessageResponse{MessageID: msgID})
}

// Cancel handles POST /api/v1/chat/cancel.
func (h *ChatHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	sess := h.registry.Get(middleware.GetUserID(r.Context()))
	sess.Orch.CancelStream()
	w.WriteHeader(http.StatusNoContent)
}

// Transcript handles GET /api/v1/chat/transcript.
func (h *ChatHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	sess := h.registry.Get(middleware.GetUserID(r.Context()))
	writeJSON(w, http.StatusOK, model.TranscriptResponse{
		Messages:        sess.Chat.Messages(),
		SessionID:       sess.Chat.SessionID(),
		AgentResponding: sess.Chat.AgentResponding(),
	})
}

// ResetSession handles DELETE /api/v1/chat/session (sign-out/account switch).
func (h *ChatHandler) ResetSession(w http.ResponseWriter, r *http.Request) {
	h.registry.Reset(middleware.GetUserID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// Stream handles GET /api/v1/chat/stream: an SSE passthrough that replays the
// current transcript and then pushes message snapshots as the turn progresses.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := h.registry.Get(middleware.GetUserID(ctx))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	// Subscribe before the replay so changes landing mid-replay are not lost;
	// the UI tolerates a duplicate snapshot.
	updates, cancel := sess.Chat.Subscribe()
	defer cancel()

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"session_id": sess.ID,
	})

	for _, msg := range sess.Chat.Messages() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		sendSSEEvent(w, flusher, "message", msg)
	}

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-updates:
			if !ok {
				// Session was reset underneath us.
				return
			}
			sendSSEEvent(w, flusher, "message", msg)

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", map[string]time.Time{
				"timestamp": time.Now(),
			})
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
