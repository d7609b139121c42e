package model

import (
	"time"
)

// ArtifactTypeInsightReport is the only artifact type the agent produces today.
const ArtifactTypeInsightReport = "insight_report"

// Artifact is a finished analysis output saved from a recognized tool result.
type Artifact struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Narrative string         `json:"narrative"`
	Data      map[string]any `json:"data,omitempty"`
	SourceIDs []string       `json:"source_ids,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// SourceStatus mirrors the collection lifecycle reported by the backend.
type SourceStatus string

const (
	SourceStatusPending    SourceStatus = "pending"
	SourceStatusCollecting SourceStatus = "collecting"
	SourceStatusEnriching  SourceStatus = "enriching"
	SourceStatusCompleted  SourceStatus = "completed"
	SourceStatusFailed     SourceStatus = "failed"
	SourceStatusCancelled  SourceStatus = "cancelled"
)

// Source is a collection the user can scope the agent's analysis to.
type Source struct {
	CollectionID   string       `json:"collection_id"`
	Title          string       `json:"title"`
	Status         SourceStatus `json:"status"`
	PostsCollected int          `json:"posts_collected"`
	Selected       bool         `json:"selected"`
	CreatedAt      time.Time    `json:"created_at"`
}

// PendingSetup is a collection configuration proposed by the agent, waiting for
// the user to confirm it in the setup form.
type PendingSetup struct {
	Config     map[string]any `json:"config"`
	ProposedAt time.Time      `json:"proposed_at"`
}
