package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/echolens/listening-gateway/internal/model"
)

const (
	// StreamName is the name of the artifacts stream.
	StreamName = "ARTIFACTS"

	// SubjectPrefix is the prefix for all artifact subjects.
	SubjectPrefix = "studio.artifacts"
)

// Archiver publishes finished insight artifacts to JetStream so downstream
// consumers (exports, digests) get them durably.
type Archiver struct {
	client *Client
}

// NewArchiver creates an archiver over an established client.
func NewArchiver(client *Client) *Archiver {
	return &Archiver{client: client}
}

// EnsureStream ensures the artifacts stream exists with proper configuration.
func (a *Archiver) EnsureStream(ctx context.Context) error {
	js := a.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Insight artifacts saved from agent tool results",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// ArtifactSubject returns the subject for one user's artifacts.
func ArtifactSubject(userID string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, userID)
}

// PublishArtifact publishes an artifact and returns its stream sequence.
func (a *Archiver) PublishArtifact(ctx context.Context, userID string, artifact *model.Artifact) (uint64, error) {
	data, err := json.Marshal(artifact)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal artifact: %w", err)
	}

	ack, err := a.client.JetStream().Publish(ctx, ArtifactSubject(userID), data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish artifact: %w", err)
	}

	return ack.Sequence, nil
}
