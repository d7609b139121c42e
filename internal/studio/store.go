// Package studio stores finished insight artifacts.
package studio

import (
	"sync"

	"github.com/google/uuid"

	"github.com/echolens/listening-gateway/internal/model"
	"github.com/echolens/listening-gateway/pkg/metrics"
)

// Store holds insight artifacts saved from recognized tool results, newest
// first.
type Store struct {
	mu        sync.RWMutex
	artifacts []*model.Artifact
}

// NewStore creates an empty artifact store.
func NewStore() *Store {
	return &Store{}
}

// Add saves an artifact, assigning an id when the caller left it empty, and
// returns the stored copy.
func (s *Store) Add(artifact *model.Artifact) *model.Artifact {
	c := *artifact
	if c.ID == "" {
		c.ID = uuid.Must(uuid.NewV7()).String()
	}

	s.mu.Lock()
	s.artifacts = append([]*model.Artifact{&c}, s.artifacts...)
	s.mu.Unlock()

	metrics.ArtifactsSavedTotal.Inc()
	return &c
}

// List returns a snapshot of all artifacts, newest first.
func (s *Store) List() []*model.Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Artifact, len(s.artifacts))
	for i, a := range s.artifacts {
		c := *a
		out[i] = &c
	}
	return out
}

// Remove deletes one artifact by id. Returns false when unknown.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, a := range s.artifacts {
		if a.ID == id {
			s.artifacts = append(s.artifacts[:i], s.artifacts[i+1:]...)
			return true
		}
	}
	return false
}

// Reset clears all artifacts.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = nil
}
