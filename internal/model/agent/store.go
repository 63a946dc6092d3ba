package agent

// Store exposes read-only agent lookups for the chat and voice flows.
type Store interface {
	List() []Agent
	FindByID(id string) (Agent, bool)
	Knowledge(agentID string) []KnowledgeEntry
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Agent
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied agents.
func NewMemoryStore(items []Agent) *MemoryStore {
	return &MemoryStore{items: append([]Agent(nil), items...)}
}

// List returns every agent in catalog order.
func (s *MemoryStore) List() []Agent {
	return append([]Agent(nil), s.items...)
}

// FindByID looks up an agent by identifier.
func (s *MemoryStore) FindByID(id string) (Agent, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Agent{}, false
}

// FindActive looks up an agent and reports false for missing and inactive agents alike.
func FindActive(store Store, id string) (Agent, bool) {
	if store == nil || id == "" {
		return Agent{}, false
	}
	item, ok := store.FindByID(id)
	if !ok || !item.Active {
		return Agent{}, false
	}
	return item, true
}

// Knowledge returns the documents attached to an agent, in catalog order.
func (s *MemoryStore) Knowledge(agentID string) []KnowledgeEntry {
	item, ok := s.FindByID(agentID)
	if !ok {
		return nil
	}
	return append([]KnowledgeEntry(nil), item.Knowledge...)
}
