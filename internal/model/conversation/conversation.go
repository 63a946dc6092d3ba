package conversation

import (
	"strings"
	"time"
)

// Role tags who produced a turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// HistoryLimit caps how many prior entries accompany a new message to the model.
const HistoryLimit = 10

// Turn is one role-tagged message appended to a conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	// Fallback marks text produced by an error path rather than by the model.
	Fallback bool `json:"fallback,omitempty"`
}

// Conversation is the append-only turn log of one session against one agent.
type Conversation struct {
	ID         string     `json:"id"`
	AgentID    string     `json:"agentId"`
	SessionKey string     `json:"sessionId"`
	Turns      []Turn     `json:"messages"`
	Resolved   bool       `json:"resolved"`
	StartedAt  time.Time  `json:"startedAt"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
}

// HistoryEntry is the {role, content} pair exchanged with the widget.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Clone returns a deep copy so callers can't mutate stored turns.
func (c Conversation) Clone() Conversation {
	out := c
	out.Turns = append([]Turn(nil), c.Turns...)
	if c.EndedAt != nil {
		ended := *c.EndedAt
		out.EndedAt = &ended
	}
	return out
}

// TrimHistory keeps the last limit entries.
func TrimHistory(entries []HistoryEntry, limit int) []HistoryEntry {
	if limit < 1 || len(entries) == 0 {
		return nil
	}
	start := 0
	if len(entries) > limit {
		start = len(entries) - limit
	}
	return append([]HistoryEntry(nil), entries[start:]...)
}

// ConversationHistory converts persisted turns into model history, skipping system and fallback turns.
func ConversationHistory(turns []Turn) []HistoryEntry {
	history := make([]HistoryEntry, 0, len(turns))
	for _, turn := range turns {
		if turn.Fallback || turn.Role == RoleSystem {
			continue
		}
		if strings.TrimSpace(turn.Content) == "" {
			continue
		}
		history = append(history, HistoryEntry{Role: turn.Role, Content: turn.Content})
	}
	return history
}
