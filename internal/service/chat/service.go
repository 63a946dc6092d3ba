package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/mudler/xlog"

	"github.com/zhouzirui/agentdesk/backend/internal/model/agent"
	"github.com/zhouzirui/agentdesk/backend/internal/model/conversation"
	"github.com/zhouzirui/agentdesk/backend/internal/service/ai"
	conversationService "github.com/zhouzirui/agentdesk/backend/internal/service/conversation"
)

var (
	ErrValidation    = errors.New("message and sessionId are required")
	ErrAgentNotFound = errors.New("agent not found or inactive")
	ErrUnavailable   = errors.New("response generation unavailable")
)

// Request is one chat turn submitted by the widget.
type Request struct {
	Message   string                      `json:"message"`
	SessionID string                      `json:"sessionId"`
	History   []conversation.HistoryEntry `json:"history,omitempty"`
}

// Reply is returned to the widget for a successful turn.
type Reply struct {
	Response       string  `json:"response"`
	Confidence     float64 `json:"confidence"`
	AgentName      string  `json:"agentName"`
	ConversationID string  `json:"-"`
}

// Service orchestrates one chat turn: validate, generate, persist.
type Service struct {
	agents        agent.Store
	conversations conversationService.Store
	responder     ai.Responder
}

// NewService wires the chat turn orchestrator. responder may be nil when no model is configured.
func NewService(agents agent.Store, conversations conversationService.Store, responder ai.Responder) *Service {
	return &Service{
		agents:        agents,
		conversations: conversations,
		responder:     responder,
	}
}

type turnContext struct {
	agent     agent.Agent
	message   string
	sessionID string
	request   ai.GenerateRequest
}

func (s *Service) prepare(agentID string, req Request) (*turnContext, error) {
	message := strings.TrimSpace(req.Message)
	sessionID := strings.TrimSpace(req.SessionID)
	if message == "" || sessionID == "" {
		return nil, ErrValidation
	}

	found, ok := agent.FindActive(s.agents, agentID)
	if !ok {
		return nil, ErrAgentNotFound
	}
	if s.responder == nil {
		return nil, ErrUnavailable
	}

	tc := &turnContext{agent: found, message: message, sessionID: sessionID}
	tc.request = ai.GenerateRequest{
		Agent:     &tc.agent,
		Knowledge: agent.ConcatKnowledge(s.agents.Knowledge(found.ID)),
		History:   conversation.TrimHistory(req.History, conversation.HistoryLimit),
		Message:   message,
	}
	return tc, nil
}

// Reply handles one chat turn. A failed generation persists nothing.
func (s *Service) Reply(ctx context.Context, agentID string, req Request) (*Reply, error) {
	tc, err := s.prepare(agentID, req)
	if err != nil {
		return nil, err
	}

	generated, err := s.responder.GenerateResponse(ctx, tc.request)
	if err != nil {
		return nil, err
	}

	return s.persist(ctx, tc, generated)
}

// StreamReply handles one chat turn while forwarding reply deltas to onDelta.
func (s *Service) StreamReply(ctx context.Context, agentID string, req Request, onDelta func(string)) (*Reply, error) {
	tc, err := s.prepare(agentID, req)
	if err != nil {
		return nil, err
	}

	stream, err := s.responder.StreamResponse(ctx, tc.request)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return nil, fmt.Errorf("%w: %v", ai.ErrGeneration, recvErr)
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)
		if chunk.Content != "" && onDelta != nil {
			onDelta(chunk.Content)
		}
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: empty model reply", ai.ErrGeneration)
	}

	full, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ai.ErrGeneration, err)
	}
	text := strings.TrimSpace(full.Content)
	if text == "" {
		return nil, fmt.Errorf("%w: empty model reply", ai.ErrGeneration)
	}

	return s.persist(ctx, tc, &ai.Reply{Text: text, Confidence: ai.DefaultConfidence})
}

func (s *Service) persist(ctx context.Context, tc *turnContext, generated *ai.Reply) (*Reply, error) {
	conv, err := s.conversations.Append(ctx, tc.agent.ID, tc.sessionID,
		conversation.Turn{Role: conversation.RoleUser, Content: tc.message},
		conversation.Turn{Role: conversation.RoleAssistant, Content: generated.Text},
	)
	if err != nil {
		return nil, fmt.Errorf("persist chat turn: %w", err)
	}

	xlog.Info("chat turn stored", "component", "chat", "agent", tc.agent.ID, "session", tc.sessionID, "turns", len(conv.Turns))
	return &Reply{
		Response:       generated.Text,
		Confidence:     generated.Confidence,
		AgentName:      tc.agent.Name,
		ConversationID: conv.ID,
	}, nil
}

// StoredHistory returns the persisted history of a session, for transports that don't resend it.
func (s *Service) StoredHistory(ctx context.Context, agentID, sessionID string) ([]conversation.HistoryEntry, error) {
	conv, err := s.conversations.Find(ctx, agentID, sessionID)
	if errors.Is(err, conversationService.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return conversation.TrimHistory(conversation.ConversationHistory(conv.Turns), conversation.HistoryLimit), nil
}

// Agent resolves an active agent for transports that need it before the first turn.
func (s *Service) Agent(agentID string) (agent.Agent, error) {
	found, ok := agent.FindActive(s.agents, agentID)
	if !ok {
		return agent.Agent{}, ErrAgentNotFound
	}
	return found, nil
}

// Available reports whether a responder is configured.
func (s *Service) Available() bool {
	return s.responder != nil
}
