// Package sources tracks the collections a user can scope analysis to.
package sources

import (
	"sync"
	"time"

	"github.com/echolens/listening-gateway/internal/model"
)

// Store holds the user's sources, their selection state, and any collection
// setup the agent has proposed but the user has not yet confirmed.
type Store struct {
	mu      sync.RWMutex
	sources []*model.Source
	pending *model.PendingSetup
}

// NewStore creates an empty sources store.
func NewStore() *Store {
	return &Store{}
}

// Add prepends a source, matching the newest-first ordering of the UI list.
func (s *Store) Add(src *model.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = append([]*model.Source{src}, s.sources...)
}

// SetSources replaces the full source list.
func (s *Store) SetSources(srcs []*model.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = srcs
}

// List returns a snapshot of all sources.
func (s *Store) List() []*model.Source {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Source, len(s.sources))
	for i, src := range s.sources {
		c := *src
		out[i] = &c
	}
	return out
}

// SetSelected sets the selection flag on one source. Returns false when the
// collection is unknown.
func (s *Store) SetSelected(collectionID string, selected bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, src := range s.sources {
		if src.CollectionID == collectionID {
			src.Selected = selected
			return true
		}
	}
	return false
}

// SelectedIDs returns the collection ids currently selected as analysis scope,
// in list order. Implements chat.SourceSelector.
func (s *Store) SelectedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, src := range s.sources {
		if src.Selected {
			ids = append(ids, src.CollectionID)
		}
	}
	return ids
}

// SetPendingSetup records an agent-proposed collection configuration for the
// user to confirm. A newer proposal replaces an unconfirmed older one.
func (s *Store) SetPendingSetup(config map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &model.PendingSetup{
		Config:     config,
		ProposedAt: time.Now(),
	}
}

// PendingSetup returns the unconfirmed proposal, or nil.
func (s *Store) PendingSetup() *model.PendingSetup {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending
}

// ClearPendingSetup dismisses the proposal.
func (s *Store) ClearPendingSetup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
}

// Reset clears all sources and any pending setup.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = nil
	s.pending = nil
}
