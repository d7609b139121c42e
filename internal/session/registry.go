// Package session owns the per-user conversation session lifecycle.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/echolens/listening-gateway/internal/chat"
	"github.com/echolens/listening-gateway/internal/model"
	natsclient "github.com/echolens/listening-gateway/internal/nats"
	"github.com/echolens/listening-gateway/internal/sources"
	"github.com/echolens/listening-gateway/internal/studio"
	"github.com/echolens/listening-gateway/pkg/logger"
)

// Session bundles the stateful units of one user's application session: the
// transcript, the scope selection, saved artifacts, and the orchestrator that
// is allowed to mutate the transcript. Constructed once per user and reset as
// a whole on sign-out or account switch.
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time

	Chat    *chat.Store
	Sources *sources.Store
	Studio  *studio.Store
	Orch    *chat.Orchestrator
}

// Registry creates and tracks sessions keyed by user id.
type Registry struct {
	agent    chat.Agent
	archiver *natsclient.Archiver
	logger   *logger.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a session registry. archiver may be nil when NATS is
// not configured.
func NewRegistry(ag chat.Agent, archiver *natsclient.Archiver, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	return &Registry{
		agent:    ag,
		archiver: archiver,
		logger:   log,
		sessions: make(map[string]*Session),
	}
}

// Get returns the user's session, creating it on first use.
func (r *Registry) Get(userID string) *Session {
	r.mu.RLock()
	sess, ok := r.sessions[userID]
	r.mu.RUnlock()
	if ok {
		return sess
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[userID]; ok {
		return sess
	}

	sess = r.newSession(userID)
	r.sessions[userID] = sess
	r.logger.Info("session created",
		zap.String("session_id", sess.ID),
		zap.String("user_id", userID),
	)
	return sess
}

// Reset tears down the user's session: any in-flight turn is cancelled and all
// stores are cleared. The next Get starts fresh.
func (r *Registry) Reset(userID string) {
	r.mu.Lock()
	sess, ok := r.sessions[userID]
	if ok {
		delete(r.sessions, userID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	sess.Orch.CancelStream()
	sess.Chat.Reset()
	sess.Sources.Reset()
	sess.Studio.Reset()
	r.logger.Info("session reset",
		zap.String("session_id", sess.ID),
		zap.String("user_id", userID),
	)
}

func (r *Registry) newSession(userID string) *Session {
	chatStore := chat.NewStore()
	srcStore := sources.NewStore()
	studioStore := studio.NewStore()

	hooks := chat.Hooks{
		OpenCollectionSetup: func(ctx context.Context, config map[string]any) {
			srcStore.SetPendingSetup(config)
		},
		SaveArtifact: func(ctx context.Context, artifact *model.Artifact) {
			saved := studioStore.Add(artifact)
			if r.archiver == nil {
				return
			}
			if _, err := r.archiver.PublishArtifact(ctx, userID, saved); err != nil {
				// Archival is best effort; the artifact is already in the
				// studio store.
				r.logger.Warn("failed to archive artifact",
					zap.String("artifact_id", saved.ID),
					zap.String("user_id", userID),
					zap.Error(err),
				)
			}
		},
	}

	return &Session{
		ID:        uuid.Must(uuid.NewV7()).String(),
		UserID:    userID,
		CreatedAt: time.Now(),
		Chat:      chatStore,
		Sources:   srcStore,
		Studio:    studioStore,
		Orch:      chat.NewOrchestrator(chatStore, r.agent, srcStore, hooks, r.logger),
	}
}
