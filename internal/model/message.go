// Package model defines data structures for the listening gateway.
package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleSystem Role = "system"
)

// CardType identifies the structured cards attached to agent messages.
type CardType string

const (
	CardResearchDesign CardType = "research_design"
	CardProgress       CardType = "progress"
	CardInsightSummary CardType = "insight_summary"
	CardDataExport     CardType = "data_export"
)

// ToolIndicator is one tool invocation surfaced on an agent message. Resolved
// flips to true when the matching tool_result arrives.
type ToolIndicator struct {
	Name        string `json:"name"`
	DisplayText string `json:"display_text"`
	Resolved    bool   `json:"resolved"`
}

// Card is a structured, non-text attachment to an agent message.
type Card struct {
	Type CardType       `json:"type"`
	Data map[string]any `json:"data"`
}

// Message is one unit of the conversation transcript.
type Message struct {
	ID             string          `json:"id"`
	Role           Role            `json:"role"`
	Content        string          `json:"content"`
	IsStreaming    bool            `json:"is_streaming"`
	ToolIndicators []ToolIndicator `json:"tool_indicators"`
	Cards          []Card          `json:"cards"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Clone returns a deep copy so snapshots handed to subscribers and handlers
// cannot alias the store's mutable state.
func (m *Message) Clone() *Message {
	c := *m
	c.ToolIndicators = append([]ToolIndicator(nil), m.ToolIndicators...)
	c.Cards = append([]Card(nil), m.Cards...)
	return &c
}

// SendMessageRequest is the UI-facing request that starts a turn.
type SendMessageRequest struct {
	Message string `json:"message"`
}

// SendMessageResponse acknowledges an accepted turn.
type SendMessageResponse struct {
	MessageID string `json:"message_id"`
}

// TranscriptResponse is the UI-facing snapshot of a conversation.
type TranscriptResponse struct {
	Messages        []*Message `json:"messages"`
	SessionID       string     `json:"session_id,omitempty"`
	AgentResponding bool       `json:"agent_responding"`
}
