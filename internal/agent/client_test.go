package agent_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echolens/listening-gateway/internal/agent"
	"github.com/echolens/listening-gateway/internal/auth"
	"github.com/echolens/listening-gateway/internal/model"
)

func writeEvent(w http.ResponseWriter, ev *model.StreamEvent) {
	data, _ := json.Marshal(ev)
	fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
	w.(http.Flusher).Flush()
}

func TestStreamDeliversEventsInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))

		var req model.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hi", req.Message)
		assert.Equal(t, "s0", req.SessionID)
		assert.Equal(t, []string{"c1", "c2"}, req.SelectedSources)

		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, &model.StreamEvent{Type: model.EventTypeText, Content: "Hel"})
		writeEvent(w, &model.StreamEvent{Type: model.EventTypeText, Content: "lo"})
		writeEvent(w, &model.StreamEvent{Type: model.EventTypeDone, SessionID: "s1"})
	}))
	defer srv.Close()

	client := agent.NewClient(srv.URL, auth.NewStaticTokenSource("svc-token"), nil)

	var got []*model.StreamEvent
	err := client.Stream(context.Background(), &model.ChatRequest{
		Message:         "hi",
		SessionID:       "s0",
		SelectedSources: []string{"c1", "c2"},
	}, func(ev *model.StreamEvent) error {
		got = append(got, ev)
		return nil
	})

	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Hel", got[0].Content)
	assert.Equal(t, "lo", got[1].Content)
	assert.Equal(t, "s1", got[2].SessionID)
}

func TestStreamOmitsAuthHeaderWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, &model.StreamEvent{Type: model.EventTypeDone, SessionID: "s1"})
	}))
	defer srv.Close()

	client := agent.NewClient(srv.URL, auth.NewStaticTokenSource(""), nil)
	err := client.Stream(context.Background(), &model.ChatRequest{Message: "hi"}, func(*model.StreamEvent) error {
		return nil
	})
	require.NoError(t, err)
}

func TestStreamFailsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := agent.NewClient(srv.URL, auth.NewStaticTokenSource(""), nil)

	events := 0
	err := client.Stream(context.Background(), &model.ChatRequest{Message: "hi"}, func(*model.StreamEvent) error {
		events++
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Zero(t, events, "no events may be yielded on a failed exchange")
}

func TestStreamCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent(w, &model.StreamEvent{Type: model.EventTypeText, Content: "partial"})
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	client := agent.NewClient(srv.URL, auth.NewStaticTokenSource(""), nil)

	err := client.Stream(ctx, &model.ChatRequest{Message: "hi"}, func(ev *model.StreamEvent) error {
		// Cancel while the stream is open; the next read unwinds.
		cancel()
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamCallbackErrorStopsStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i := 0; i < 10; i++ {
			writeEvent(w, &model.StreamEvent{Type: model.EventTypeText, Content: "x"})
		}
	}))
	defer srv.Close()

	client := agent.NewClient(srv.URL, auth.NewStaticTokenSource(""), nil)

	wantErr := errors.New("stop")
	seen := 0
	err := client.Stream(context.Background(), &model.ChatRequest{Message: "hi"}, func(*model.StreamEvent) error {
		seen++
		return wantErr
	})

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, seen)
}

func TestStreamCredentialSupplierFailure(t *testing.T) {
	client := agent.NewClient("http://127.0.0.1:0", auth.TokenFunc(func(context.Context) (string, error) {
		return "", errors.New("keychain locked")
	}), nil)

	err := client.Stream(context.Background(), &model.ChatRequest{Message: "hi"}, func(*model.StreamEvent) error {
		t.Fatal("no events expected")
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials")
}

func TestStreamToleratesSlowChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		// Split a single record across two writes with a pause between.
		fmt.Fprint(w, "data: {\"event_type\":\"text\",")
		w.(http.Flusher).Flush()
		time.Sleep(20 * time.Millisecond)
		fmt.Fprint(w, "\"content\":\"Hello\"}\n\n")
		w.(http.Flusher).Flush()
	}))
	defer srv.Close()

	client := agent.NewClient(srv.URL, auth.NewStaticTokenSource(""), nil)

	var got []*model.StreamEvent
	err := client.Stream(context.Background(), &model.ChatRequest{Message: "hi"}, func(ev *model.StreamEvent) error {
		got = append(got, ev)
		return nil
	})

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Hello", got[0].Content)
}
