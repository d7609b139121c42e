package handler_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echolens/listening-gateway/internal/chat"
	"github.com/echolens/listening-gateway/internal/handler"
	"github.com/echolens/listening-gateway/internal/middleware"
	"github.com/echolens/listening-gateway/internal/model"
	"github.com/echolens/listening-gateway/internal/session"
	"github.com/echolens/listening-gateway/pkg/logger"
)

const testSecret = "test-secret"

// stubAgent replays a fixed event sequence.
type stubAgent struct {
	events []*model.StreamEvent
}

func (a *stubAgent) Stream(ctx context.Context, req *model.ChatRequest, fn func(*model.StreamEvent) error) error {
	for _, ev := range a.events {
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}

func doneTurn(content, sessionID string) *stubAgent {
	return &stubAgent{events: []*model.StreamEvent{
		{Type: model.EventTypeText, Content: content},
		{Type: model.EventTypeDone, SessionID: sessionID},
	}}
}

type fixture struct {
	srv   *httptest.Server
	token string
}

// newFixture stands up the authenticated API surface the way main wires it.
func newFixture(t *testing.T, ag chat.Agent) *fixture {
	t.Helper()

	registry := session.NewRegistry(ag, nil, nil)
	log := logger.NewNop()
	chatHandler := handler.NewChatHandler(registry, log)
	sourcesHandler := handler.NewSourcesHandler(registry, log)
	studioHandler := handler.NewStudioHandler(registry, log)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(testSecret))

		r.Route("/chat", func(r chi.Router) {
			r.Post("/messages", chatHandler.Send)
			r.Post("/cancel", chatHandler.Cancel)
			r.Get("/transcript", chatHandler.Transcript)
			r.Get("/stream", chatHandler.Stream)
			r.Delete("/session", chatHandler.ResetSession)
		})

		r.Route("/sources", func(r chi.Router) {
			r.Get("/", sourcesHandler.List)
			r.Put("/", sourcesHandler.Replace)
			r.Get("/pending-setup", sourcesHandler.PendingSetup)
			r.Delete("/pending-setup", sourcesHandler.DismissPendingSetup)
			r.Post("/{id}/select", sourcesHandler.Select)
			r.Post("/{id}/deselect", sourcesHandler.Deselect)
		})

		r.Route("/studio", func(r chi.Router) {
			r.Get("/artifacts", studioHandler.List)
			r.Delete("/artifacts/{id}", studioHandler.Delete)
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, token: signToken(t, "alice")}
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, f.srv.URL+path, buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+f.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// transcript polls until the newest agent message reaches a terminal state.
func (f *fixture) transcript(t *testing.T) model.TranscriptResponse {
	t.Helper()

	var out model.TranscriptResponse
	require.Eventually(t, func() bool {
		resp := f.do(t, http.MethodGet, "/api/v1/chat/transcript", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		out = decodeBody[model.TranscriptResponse](t, resp)
		return !out.AgentResponding
	}, 2*time.Second, 10*time.Millisecond)
	return out
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t, doneTurn("Hello", "s1"))

	req, err := http.NewRequest(http.MethodGet, f.srv.URL+"/api/v1/chat/transcript", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSendMessageFlow(t *testing.T) {
	f := newFixture(t, doneTurn("Hello", "s1"))

	resp := f.do(t, http.MethodPost, "/api/v1/chat/messages", model.SendMessageRequest{Message: "hi"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	ack := decodeBody[model.SendMessageResponse](t, resp)
	assert.NotEmpty(t, ack.MessageID)

	tr := f.transcript(t)
	require.Len(t, tr.Messages, 2)
	assert.Equal(t, model.RoleUser, tr.Messages[0].Role)
	assert.Equal(t, "hi", tr.Messages[0].Content)
	assert.Equal(t, ack.MessageID, tr.Messages[1].ID)
	assert.Equal(t, "Hello", tr.Messages[1].Content)
	assert.False(t, tr.Messages[1].IsStreaming)
	assert.Equal(t, "s1", tr.SessionID)
}

func TestSendMessageRejectsEmpty(t *testing.T) {
	f := newFixture(t, doneTurn("Hello", "s1"))

	resp := f.do(t, http.MethodPost, "/api/v1/chat/messages", model.SendMessageRequest{Message: ""})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	tr := f.transcript(t)
	assert.Empty(t, tr.Messages)
}

func TestSendMessageRejectsMalformedBody(t *testing.T) {
	f := newFixture(t, doneTurn("Hello", "s1"))

	req, err := http.NewRequest(http.MethodPost, f.srv.URL+"/api/v1/chat/messages", strings.NewReader("{broken"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+f.token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelEndpoint(t *testing.T) {
	f := newFixture(t, doneTurn("Hello", "s1"))

	resp := f.do(t, http.MethodPost, "/api/v1/chat/cancel", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestResetSessionClearsTranscript(t *testing.T) {
	f := newFixture(t, doneTurn("Hello", "s1"))

	f.do(t, http.MethodPost, "/api/v1/chat/messages", model.SendMessageRequest{Message: "hi"}).Body.Close()
	require.NotEmpty(t, f.transcript(t).Messages)

	resp := f.do(t, http.MethodDelete, "/api/v1/chat/session", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	tr := f.transcript(t)
	assert.Empty(t, tr.Messages)
	assert.Empty(t, tr.SessionID)
}

func TestStreamPassthroughSendsConnectedEvent(t *testing.T) {
	f := newFixture(t, doneTurn("Hello", "s1"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/api/v1/chat/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+f.token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: connected\n", line)

	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "data: "))
	assert.Contains(t, line, "session_id")
}
