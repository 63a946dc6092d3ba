package conversation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhouzirui/agentdesk/backend/internal/model/conversation"
)

type memoryKey struct {
	agentID    string
	sessionKey string
}

// MemoryStore keeps conversations in process memory.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[memoryKey]*conversation.Conversation
	now           func() time.Time
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[memoryKey]*conversation.Conversation),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Append creates the session's conversation on first use and appends turns in order.
func (s *MemoryStore) Append(_ context.Context, agentID, sessionKey string, turns ...conversation.Turn) (conversation.Conversation, error) {
	if err := validateAppend(agentID, sessionKey, turns); err != nil {
		return conversation.Conversation{}, err
	}

	now := s.now()
	key := memoryKey{agentID: agentID, sessionKey: sessionKey}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[key]
	if !ok {
		conv = &conversation.Conversation{
			ID:         uuid.NewString(),
			AgentID:    agentID,
			SessionKey: sessionKey,
			Turns:      make([]conversation.Turn, 0, 16),
			StartedAt:  now,
		}
		s.conversations[key] = conv
	}
	conv.Turns = append(conv.Turns, stampTurns(turns, now)...)

	return conv.Clone(), nil
}

// Find returns the conversation for a session.
func (s *MemoryStore) Find(_ context.Context, agentID, sessionKey string) (conversation.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[memoryKey{agentID: agentID, sessionKey: sessionKey}]
	if !ok {
		return conversation.Conversation{}, ErrNotFound
	}
	return conv.Clone(), nil
}

// ListByAgent returns an agent's conversations, oldest first.
func (s *MemoryStore) ListByAgent(_ context.Context, agentID string) ([]conversation.Conversation, error) {
	s.mu.RLock()
	items := make([]conversation.Conversation, 0)
	for key, conv := range s.conversations {
		if key.agentID == agentID {
			items = append(items, conv.Clone())
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].StartedAt.Equal(items[j].StartedAt) {
			return items[i].SessionKey < items[j].SessionKey
		}
		return items[i].StartedAt.Before(items[j].StartedAt)
	})
	return items, nil
}

// Resolve marks matching conversations resolved with the given end time.
func (s *MemoryStore) Resolve(_ context.Context, agentID, sessionKey string, endedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := false
	for key, conv := range s.conversations {
		if key.sessionKey != sessionKey || (agentID != "" && key.agentID != agentID) {
			continue
		}
		ended := endedAt
		conv.Resolved = true
		conv.EndedAt = &ended
		matched = true
	}
	return matched, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error {
	return nil
}
