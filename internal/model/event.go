package model

// EventType discriminates stream events on the wire.
type EventType string

const (
	EventTypeText       EventType = "text"
	EventTypeToolCall   EventType = "tool_call"
	EventTypeToolResult EventType = "tool_result"
	EventTypeDone       EventType = "done"
	EventTypeError      EventType = "error"
)

// ToolMeta carries tool invocation details on tool_call and tool_result events.
// Args is set on tool_call, Result on tool_result (nil when the tool failed).
type ToolMeta struct {
	Name   string         `json:"name"`
	Args   map[string]any `json:"args,omitempty"`
	Result map[string]any `json:"result,omitempty"`
}

// StreamEvent is one decoded event from the agent's SSE response. The kind is
// carried by the event_type field of the JSON payload, not by the SSE event:
// label, which the agent emits but the gateway ignores.
type StreamEvent struct {
	Type      EventType `json:"event_type"`
	Content   string    `json:"content,omitempty"`
	Author    string    `json:"author,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Metadata  *ToolMeta `json:"metadata,omitempty"`
}

// ChatRequest is the body of the POST that opens a turn against the agent.
type ChatRequest struct {
	Message         string   `json:"message"`
	SessionID       string   `json:"session_id,omitempty"`
	SelectedSources []string `json:"selected_sources,omitempty"`
}
