package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/zhouzirui/agentdesk/backend/internal/model/conversation"
)

// SQLiteStore keeps conversations in a SQLite database file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates/opens the conversation database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create conversation db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One shared connection serialises writers; Append relies on it together with its transaction.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`PRAGMA foreign_keys=ON;`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			session_key TEXT NOT NULL,
			resolved INTEGER NOT NULL DEFAULT 0,
			started_at_ms INTEGER NOT NULL,
			ended_at_ms INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS conversations_session_idx ON conversations(agent_id, session_key);`,
		`CREATE INDEX IF NOT EXISTS conversations_session_key_idx ON conversations(session_key);`,
		`CREATE TABLE IF NOT EXISTS turns (
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			fallback INTEGER NOT NULL DEFAULT 0,
			created_at_ms INTEGER NOT NULL,
			PRIMARY KEY (conversation_id, seq)
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init conversation schema: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append creates the session's conversation on first use and appends turns in one transaction.
func (s *SQLiteStore) Append(ctx context.Context, agentID, sessionKey string, turns ...conversation.Turn) (conversation.Conversation, error) {
	if err := validateAppend(agentID, sessionKey, turns); err != nil {
		return conversation.Conversation{}, err
	}

	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return conversation.Conversation{}, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversations(id, agent_id, session_key, started_at_ms) VALUES(?, ?, ?, ?)
		 ON CONFLICT(agent_id, session_key) DO NOTHING`,
		uuid.NewString(), agentID, sessionKey, now.UnixMilli(),
	); err != nil {
		return conversation.Conversation{}, fmt.Errorf("upsert conversation: %w", err)
	}

	var convID string
	var nextSeq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT c.id, COALESCE((SELECT MAX(seq) FROM turns t WHERE t.conversation_id = c.id), 0) + 1
		 FROM conversations c WHERE c.agent_id = ? AND c.session_key = ?`,
		agentID, sessionKey,
	).Scan(&convID, &nextSeq); err != nil {
		return conversation.Conversation{}, fmt.Errorf("locate conversation: %w", err)
	}

	for i, turn := range stampTurns(turns, now) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO turns(conversation_id, seq, role, content, fallback, created_at_ms) VALUES(?, ?, ?, ?, ?, ?)`,
			convID, nextSeq+int64(i), string(turn.Role), turn.Content, boolToInt(turn.Fallback), turn.Timestamp.UnixMilli(),
		); err != nil {
			return conversation.Conversation{}, fmt.Errorf("append turn: %w", err)
		}
	}

	conv, err := loadConversation(ctx, tx, `c.id = ?`, convID)
	if err != nil {
		return conversation.Conversation{}, err
	}
	if err := tx.Commit(); err != nil {
		return conversation.Conversation{}, fmt.Errorf("commit append: %w", err)
	}
	return conv, nil
}

// Find returns the conversation for a session.
func (s *SQLiteStore) Find(ctx context.Context, agentID, sessionKey string) (conversation.Conversation, error) {
	return loadConversation(ctx, s.db, `c.agent_id = ? AND c.session_key = ?`, agentID, sessionKey)
}

// ListByAgent returns an agent's conversations, oldest first.
func (s *SQLiteStore) ListByAgent(ctx context.Context, agentID string) ([]conversation.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM conversations WHERE agent_id = ? ORDER BY started_at_ms ASC, session_key ASC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	items := make([]conversation.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := loadConversation(ctx, s.db, `c.id = ?`, id)
		if err != nil {
			return nil, err
		}
		items = append(items, conv)
	}
	return items, nil
}

// Resolve marks matching conversations resolved with the given end time.
func (s *SQLiteStore) Resolve(ctx context.Context, agentID, sessionKey string, endedAt time.Time) (bool, error) {
	query := `UPDATE conversations SET resolved = 1, ended_at_ms = ? WHERE session_key = ?`
	args := []any{endedAt.UTC().UnixMilli(), sessionKey}
	if agentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, agentID)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("resolve conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve conversation: %w", err)
	}
	return affected > 0, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadConversation(ctx context.Context, q queryer, where string, args ...any) (conversation.Conversation, error) {
	var (
		conv      conversation.Conversation
		resolved  int
		startedMs int64
		endedMs   int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT c.id, c.agent_id, c.session_key, c.resolved, c.started_at_ms, c.ended_at_ms
		 FROM conversations c WHERE `+where, args...,
	).Scan(&conv.ID, &conv.AgentID, &conv.SessionKey, &resolved, &startedMs, &endedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return conversation.Conversation{}, ErrNotFound
	}
	if err != nil {
		return conversation.Conversation{}, fmt.Errorf("load conversation: %w", err)
	}

	conv.Resolved = resolved != 0
	conv.StartedAt = time.UnixMilli(startedMs).UTC()
	if endedMs > 0 {
		ended := time.UnixMilli(endedMs).UTC()
		conv.EndedAt = &ended
	}

	rows, err := q.QueryContext(ctx,
		`SELECT role, content, fallback, created_at_ms FROM turns WHERE conversation_id = ? ORDER BY seq ASC`, conv.ID)
	if err != nil {
		return conversation.Conversation{}, fmt.Errorf("load turns: %w", err)
	}
	defer rows.Close()

	conv.Turns = make([]conversation.Turn, 0, 8)
	for rows.Next() {
		var (
			turn      conversation.Turn
			role      string
			fallback  int
			createdMs int64
		)
		if err := rows.Scan(&role, &turn.Content, &fallback, &createdMs); err != nil {
			return conversation.Conversation{}, fmt.Errorf("scan turn: %w", err)
		}
		turn.Role = conversation.Role(role)
		turn.Fallback = fallback != 0
		turn.Timestamp = time.UnixMilli(createdMs).UTC()
		conv.Turns = append(conv.Turns, turn)
	}
	if err := rows.Err(); err != nil {
		return conversation.Conversation{}, fmt.Errorf("iterate turns: %w", err)
	}
	return conv, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
