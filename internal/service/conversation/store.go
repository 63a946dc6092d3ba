package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/zhouzirui/agentdesk/backend/internal/model/conversation"
)

var (
	ErrNotFound   = errors.New("conversation not found")
	ErrInvalidKey = errors.New("agent id and session key are required")
	ErrNoTurns    = errors.New("at least one turn is required")
)

// Store persists conversations keyed by (agent, session key).
//
// Append is a single find-or-create-and-append step so concurrent turns for the same
// session never overwrite each other's turns.
type Store interface {
	Append(ctx context.Context, agentID, sessionKey string, turns ...conversation.Turn) (conversation.Conversation, error)
	Find(ctx context.Context, agentID, sessionKey string) (conversation.Conversation, error)
	ListByAgent(ctx context.Context, agentID string) ([]conversation.Conversation, error)
	// Resolve marks matching conversations resolved. An empty agentID matches any agent.
	Resolve(ctx context.Context, agentID, sessionKey string, endedAt time.Time) (bool, error)
	Close() error
}

func validateAppend(agentID, sessionKey string, turns []conversation.Turn) error {
	if strings.TrimSpace(agentID) == "" || strings.TrimSpace(sessionKey) == "" {
		return ErrInvalidKey
	}
	if len(turns) == 0 {
		return ErrNoTurns
	}
	return nil
}

func stampTurns(turns []conversation.Turn, now time.Time) []conversation.Turn {
	stamped := make([]conversation.Turn, len(turns))
	for i, turn := range turns {
		if turn.Timestamp.IsZero() {
			turn.Timestamp = now
		}
		stamped[i] = turn
	}
	return stamped
}
