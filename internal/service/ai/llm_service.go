package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/mudler/xlog"

	"github.com/zhouzirui/agentdesk/backend/internal/model/agent"
	"github.com/zhouzirui/agentdesk/backend/internal/model/conversation"
)

// DefaultConfidence is reported with every reply. It is a constant, not derived from model output.
const DefaultConfidence = 0.85

// ErrGeneration wraps every failure of the underlying model call.
var ErrGeneration = errors.New("response generation failed")

// GenerateRequest carries the persona and context for one reply.
type GenerateRequest struct {
	Agent     *agent.Agent
	Knowledge string
	History   []conversation.HistoryEntry
	Message   string
}

// Reply is one generated assistant message.
type Reply struct {
	Text       string
	Confidence float64
}

// Responder produces assistant replies; Service is the production implementation.
type Responder interface {
	GenerateResponse(ctx context.Context, req GenerateRequest) (*Reply, error)
	StreamResponse(ctx context.Context, req GenerateRequest) (*schema.StreamReader[*schema.Message], error)
}

// Service runs the prompt template + chat model chain.
type Service struct {
	chatModel model.BaseChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService compiles the reply chain around chatModel.
func NewService(ctx context.Context, chatModel model.BaseChatModel) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		chain:     runnable,
	}, nil
}

// GenerateResponse produces one reply. Errors are returned to the caller, never swallowed.
func (s *Service) GenerateResponse(ctx context.Context, req GenerateRequest) (*Reply, error) {
	if req.Agent == nil {
		return nil, fmt.Errorf("%w: agent is required", ErrGeneration)
	}

	response, err := s.chain.Invoke(ctx, buildChainInput(req))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return nil, fmt.Errorf("%w: empty model reply", ErrGeneration)
	}

	xlog.Debug("generated response", "component", "ai", "agent", req.Agent.ID, "length", len(response.Content))
	return &Reply{Text: strings.TrimSpace(response.Content), Confidence: DefaultConfidence}, nil
}

// StreamResponse streams reply chunks from the chain.
func (s *Service) StreamResponse(ctx context.Context, req GenerateRequest) (*schema.StreamReader[*schema.Message], error) {
	if req.Agent == nil {
		return nil, fmt.Errorf("%w: agent is required", ErrGeneration)
	}

	stream, err := s.chain.Stream(ctx, buildChainInput(req))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	return stream, nil
}

func buildChainInput(req GenerateRequest) map[string]any {
	return map[string]any{
		"system":  BuildSystemPrompt(req.Agent, req.Knowledge),
		"history": buildHistoryMessages(req.History),
		"query":   req.Message,
	}
}

func buildHistoryMessages(entries []conversation.HistoryEntry) []*schema.Message {
	trimmed := conversation.TrimHistory(entries, conversation.HistoryLimit)
	if len(trimmed) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(trimmed))
	for _, entry := range trimmed {
		switch entry.Role {
		case conversation.RoleUser:
			history = append(history, schema.UserMessage(entry.Content))
		case conversation.RoleAssistant:
			history = append(history, schema.AssistantMessage(entry.Content, nil))
		}
	}
	return history
}
