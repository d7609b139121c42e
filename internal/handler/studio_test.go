package handler_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echolens/listening-gateway/internal/model"
)

func TestStudioArtifactsFromInsightTurn(t *testing.T) {
	ag := &stubAgent{events: []*model.StreamEvent{
		{Type: model.EventTypeToolCall, Metadata: &model.ToolMeta{Name: "get_insights"}},
		{Type: model.EventTypeToolResult, Metadata: &model.ToolMeta{
			Name:   "get_insights",
			Result: map[string]any{"status": "success", "narrative": "mentions spiked"},
		}},
		{Type: model.EventTypeDone, SessionID: "s1"},
	}}
	f := newFixture(t, ag)

	f.do(t, http.MethodPost, "/api/v1/chat/messages", model.SendMessageRequest{Message: "insights"}).Body.Close()
	f.transcript(t)

	resp := f.do(t, http.MethodGet, "/api/v1/studio/artifacts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[struct {
		Artifacts []*model.Artifact `json:"artifacts"`
	}](t, resp)
	require.Len(t, body.Artifacts, 1)
	assert.Equal(t, "mentions spiked", body.Artifacts[0].Narrative)

	resp = f.do(t, http.MethodDelete, "/api/v1/studio/artifacts/"+body.Artifacts[0].ID, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/api/v1/studio/artifacts/missing", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
