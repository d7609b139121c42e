// Package chat holds the conversation transcript and drives agent turns.
package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/echolens/listening-gateway/internal/model"
	"github.com/echolens/listening-gateway/pkg/metrics"
)

// Store is the single source of truth for one conversation transcript.
// Messages are append-only: a streaming agent message grows through the
// event-driven operations below until it is finalized, and nothing ever
// reorders or deletes transcript state short of a full Reset.
type Store struct {
	mu        sync.RWMutex
	messages  []*model.Message
	sessionID string

	subs    map[uint64]chan *model.Message
	nextSub uint64
}

// NewStore creates an empty transcript store.
func NewStore() *Store {
	return &Store{
		subs: make(map[uint64]chan *model.Message),
	}
}

func newMessage(role model.Role, content string, streaming bool) *model.Message {
	return &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		Role:           role,
		Content:        content,
		IsStreaming:    streaming,
		ToolIndicators: []model.ToolIndicator{},
		Cards:          []model.Card{},
		CreatedAt:      time.Now(),
	}
}

// AddUserMessage appends a finalized user message and returns its id.
func (s *Store) AddUserMessage(text string) string {
	s.mu.Lock()
	msg := newMessage(model.RoleUser, text, false)
	s.messages = append(s.messages, msg)
	snapshot := msg.Clone()
	s.mu.Unlock()

	s.notify(snapshot)
	return msg.ID
}

// StartAgentMessage appends a new empty, streaming agent message and returns
// its id.
func (s *Store) StartAgentMessage() string {
	s.mu.Lock()
	msg := newMessage(model.RoleAgent, "", true)
	s.messages = append(s.messages, msg)
	snapshot := msg.Clone()
	s.mu.Unlock()

	s.notify(snapshot)
	return msg.ID
}

// AddSystemMessage appends a finalized system message and returns its id.
func (s *Store) AddSystemMessage(text string) string {
	s.mu.Lock()
	msg := newMessage(model.RoleSystem, text, false)
	s.messages = append(s.messages, msg)
	snapshot := msg.Clone()
	s.mu.Unlock()

	s.notify(snapshot)
	return msg.ID
}

// AppendText concatenates a delta onto a streaming message's content. No-op
// when the message is unknown or already finalized.
func (s *Store) AppendText(messageID, delta string) {
	s.mutate(messageID, func(m *model.Message) bool {
		if !m.IsStreaming {
			return false
		}
		m.Content += delta
		return true
	})
}

// AddToolCall appends a new unresolved tool indicator. Duplicate names append
// duplicate indicators; the agent may call the same tool more than once per
// turn.
func (s *Store) AddToolCall(messageID, name, displayText string) {
	s.mutate(messageID, func(m *model.Message) bool {
		m.ToolIndicators = append(m.ToolIndicators, model.ToolIndicator{
			Name:        name,
			DisplayText: displayText,
		})
		return true
	})
}

// ResolveToolCall marks the first unresolved indicator with the given name as
// resolved. With duplicate pending names this yields FIFO resolution.
func (s *Store) ResolveToolCall(messageID, name string) {
	s.mutate(messageID, func(m *model.Message) bool {
		for i := range m.ToolIndicators {
			if m.ToolIndicators[i].Name == name && !m.ToolIndicators[i].Resolved {
				m.ToolIndicators[i].Resolved = true
				return true
			}
		}
		return false
	})
}

// AddCard appends a structured card in arrival order.
func (s *Store) AddCard(messageID string, card model.Card) {
	s.mutate(messageID, func(m *model.Message) bool {
		m.Cards = append(m.Cards, card)
		return true
	})
}

// FinalizeMessage marks a message as no longer streaming. Idempotent.
func (s *Store) FinalizeMessage(messageID string) {
	s.mutate(messageID, func(m *model.Message) bool {
		if !m.IsStreaming {
			return false
		}
		m.IsStreaming = false
		return true
	})
}

// SessionID returns the agent session identifier from the last completed turn.
func (s *Store) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// SetSessionID records the session identifier returned by a done event.
func (s *Store) SetSessionID(id string) {
	s.mu.Lock()
	s.sessionID = id
	s.mu.Unlock()
}

// Messages returns a snapshot of the transcript.
func (s *Store) Messages() []*model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

// Message returns a snapshot of one message, or nil if unknown.
func (s *Store) Message(messageID string) *model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m := s.find(messageID); m != nil {
		return m.Clone()
	}
	return nil
}

// AgentResponding reports whether the newest message is an agent message that
// is still streaming. Derived rather than stored so a late finalize from a
// superseded turn cannot clear the indicator of the turn that replaced it.
func (s *Store) AgentResponding() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.messages) == 0 {
		return false
	}
	last := s.messages[len(s.messages)-1]
	return last.Role == model.RoleAgent && last.IsStreaming
}

// Reset clears the transcript and session identifier and ends all
// subscriptions. Used on sign-out and account switch.
func (s *Store) Reset() {
	s.mu.Lock()
	s.messages = nil
	s.sessionID = ""
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()
}

// Subscribe registers for message snapshots on every transcript change. The
// returned cancel func must be called to release the subscription. Slow
// subscribers lose snapshots rather than blocking the turn; the UI refetches
// the transcript on reconnect anyway.
func (s *Store) Subscribe() (<-chan *model.Message, func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan *model.Message, 64)
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Store) find(messageID string) *model.Message {
	for _, m := range s.messages {
		if m.ID == messageID {
			return m
		}
	}
	return nil
}

func (s *Store) mutate(messageID string, fn func(*model.Message) bool) {
	s.mu.Lock()
	m := s.find(messageID)
	if m == nil || !fn(m) {
		s.mu.Unlock()
		return
	}
	snapshot := m.Clone()
	s.mu.Unlock()

	s.notify(snapshot)
}

func (s *Store) notify(snapshot *model.Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ch := range s.subs {
		select {
		case ch <- snapshot:
		default:
			metrics.SubscriberDropsTotal.Inc()
		}
	}
}
