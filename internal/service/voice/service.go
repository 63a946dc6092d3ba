package voice

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mudler/xlog"

	"github.com/zhouzirui/agentdesk/backend/internal/model/agent"
	"github.com/zhouzirui/agentdesk/backend/internal/model/conversation"
	"github.com/zhouzirui/agentdesk/backend/internal/service/ai"
	conversationService "github.com/zhouzirui/agentdesk/backend/internal/service/conversation"
	"github.com/zhouzirui/agentdesk/backend/internal/service/telephony"
	"github.com/zhouzirui/agentdesk/backend/pkg/twiml"
)

const (
	// TechnicalDifficultiesLine is spoken when a turn cannot be generated.
	TechnicalDifficultiesLine = "I'm experiencing technical difficulties. Please try again later."
	noInputLine               = "I didn't catch that. Please call again if you need further assistance. Goodbye!"
	repromptLine              = "Sorry, I didn't hear anything. Could you please repeat that?"
	unavailableLine           = "Sorry, this assistant is not available right now. Goodbye."

	StatusSimulated = "simulated"
	statusCompleted = "completed"
)

var (
	ErrValidation    = errors.New("phoneNumber is required")
	ErrAgentNotFound = errors.New("agent not found or inactive")
)

// Config carries voice rendering and callback settings.
type Config struct {
	// PublicBaseURL is the origin Twilio reaches this service on.
	PublicBaseURL string
	Voice         string
	Language      string
	GatherTimeout int
}

// CallResult reports the outcome of an outbound call trigger.
type CallResult struct {
	CallID         string `json:"callSid"`
	Status         string `json:"status"`
	ConversationID string `json:"conversationId"`
	Message        string `json:"message,omitempty"`
}

// Service drives the speech-in/speech-out loop of a call.
type Service struct {
	agents        agent.Store
	conversations conversationService.Store
	responder     ai.Responder
	calls         telephony.Client
	cfg           Config
	now           func() time.Time
}

// NewService wires the voice loop. responder and calls may be nil when not configured.
func NewService(agents agent.Store, conversations conversationService.Store, responder ai.Responder, calls telephony.Client, cfg Config) *Service {
	if cfg.GatherTimeout < 1 {
		cfg.GatherTimeout = 3
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return &Service{
		agents:        agents,
		conversations: conversations,
		responder:     responder,
		calls:         calls,
		cfg:           cfg,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Greeting answers the initial connect webhook for an agent.
func (s *Service) Greeting(_ context.Context, agentID string) []byte {
	found, ok := agent.FindActive(s.agents, agentID)
	if !ok {
		return s.unavailable()
	}

	greeting := fmt.Sprintf("Hello! Thank you for calling %s. I'm %s, your AI assistant. How can I help you today?",
		orDefault(found.BusinessName, "us"), orDefault(found.Name, "the virtual assistant"))
	return s.speakAndListen(agentID, greeting)
}

// HandleSpeech answers one recognized speech segment. It always returns markup.
func (s *Service) HandleSpeech(ctx context.Context, agentID, callSID, speech string) []byte {
	speech = strings.TrimSpace(speech)
	if speech == "" {
		return s.speakAndListen(agentID, repromptLine)
	}

	found, ok := agent.FindActive(s.agents, agentID)
	if !ok {
		return s.unavailable()
	}

	reply, err := s.generate(ctx, &found, callSID, speech)
	if err != nil {
		xlog.Warn("voice turn failed, speaking fallback", "component", "voice", "agent", agentID, "call", callSID, "error", err)
		s.record(ctx, agentID, callSID,
			conversation.Turn{Role: conversation.RoleUser, Content: speech},
			conversation.Turn{Role: conversation.RoleSystem, Content: TechnicalDifficultiesLine, Fallback: true},
		)
		return s.speakAndListen(agentID, TechnicalDifficultiesLine)
	}

	s.record(ctx, agentID, callSID,
		conversation.Turn{Role: conversation.RoleUser, Content: speech},
		conversation.Turn{Role: conversation.RoleAssistant, Content: reply.Text},
	)
	return s.speakAndListen(agentID, reply.Text)
}

func (s *Service) generate(ctx context.Context, found *agent.Agent, callSID, speech string) (*ai.Reply, error) {
	if s.responder == nil {
		return nil, errors.New("no responder configured")
	}

	var history []conversation.HistoryEntry
	if callSID != "" {
		if conv, err := s.conversations.Find(ctx, found.ID, callSID); err == nil {
			history = conversation.ConversationHistory(conv.Turns)
		}
	}

	// The voice path sends no knowledge-base context.
	return s.responder.GenerateResponse(ctx, ai.GenerateRequest{
		Agent:   found,
		History: history,
		Message: speech,
	})
}

// record appends turns under the call SID. Failures are logged, never surfaced to the caller.
func (s *Service) record(ctx context.Context, agentID, callSID string, turns ...conversation.Turn) {
	if callSID == "" {
		xlog.Warn("speech webhook without CallSid, turn not stored", "component", "voice", "agent", agentID)
		return
	}
	if _, err := s.conversations.Append(ctx, agentID, callSID, turns...); err != nil {
		xlog.Error("failed to store voice turn", "component", "voice", "agent", agentID, "call", callSID, "error", err)
	}
}

// HandleStatus resolves a call's conversation when the provider reports completion.
// agentID may be empty; unknown calls are ignored.
func (s *Service) HandleStatus(ctx context.Context, agentID, callSID, status string) error {
	if callSID == "" || !strings.EqualFold(strings.TrimSpace(status), statusCompleted) {
		return nil
	}

	matched, err := s.conversations.Resolve(ctx, agentID, callSID, s.now())
	if err != nil {
		return fmt.Errorf("resolve call %s: %w", callSID, err)
	}
	if matched {
		xlog.Info("call completed", "component", "voice", "agent", agentID, "call", callSID)
	}
	return nil
}

// PlaceCall starts an outbound call, degrading to a simulated call when telephony is unavailable.
func (s *Service) PlaceCall(ctx context.Context, agentID, phoneNumber string) (*CallResult, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return nil, ErrValidation
	}
	found, ok := agent.FindActive(s.agents, agentID)
	if !ok {
		return nil, ErrAgentNotFound
	}

	result := &CallResult{}
	systemNote := fmt.Sprintf("Outbound call initiated to %s", phoneNumber)

	if s.calls != nil && s.calls.Enabled() {
		call, err := s.calls.CreateCall(ctx, telephony.CallRequest{
			To:             phoneNumber,
			WebhookURL:     s.webhookURL(found.ID, "incoming"),
			StatusCallback: s.webhookURL(found.ID, "status"),
		})
		if err == nil {
			result.CallID = call.SID
			result.Status = call.Status
		} else {
			xlog.Warn("outbound call failed, falling back to simulation", "component", "voice", "agent", found.ID, "error", err)
			result.Message = "Outbound calling failed; the call was simulated instead."
		}
	} else {
		result.Message = "Telephony is not configured; the call was simulated."
	}

	if result.CallID == "" {
		result.CallID = "simulated_" + uuid.NewString()
		result.Status = StatusSimulated
		systemNote = fmt.Sprintf("Simulated call to %s", phoneNumber)
	}

	conv, err := s.conversations.Append(ctx, found.ID, result.CallID,
		conversation.Turn{Role: conversation.RoleSystem, Content: systemNote})
	if err != nil {
		return nil, fmt.Errorf("create call conversation: %w", err)
	}
	result.ConversationID = conv.ID

	xlog.Info("outbound call placed", "component", "voice", "agent", found.ID, "call", result.CallID, "status", result.Status)
	return result, nil
}

func (s *Service) speakAndListen(agentID, text string) []byte {
	return twiml.NewResponse().
		Say(text, s.cfg.Voice, s.cfg.Language).
		Gather(twiml.Gather{
			Input:         "speech",
			Action:        s.webhookPath(agentID, "gather"),
			Method:        "POST",
			Timeout:       s.cfg.GatherTimeout,
			SpeechTimeout: "auto",
			Language:      s.cfg.Language,
		}).
		Say(noInputLine, s.cfg.Voice, s.cfg.Language).
		MustRender()
}

func (s *Service) unavailable() []byte {
	return twiml.NewResponse().
		Say(unavailableLine, s.cfg.Voice, s.cfg.Language).
		Hangup().
		MustRender()
}

func (s *Service) webhookPath(agentID, hook string) string {
	return "/api/voice/" + url.PathEscape(agentID) + "/" + hook
}

func (s *Service) webhookURL(agentID, hook string) string {
	return s.cfg.PublicBaseURL + s.webhookPath(agentID, hook)
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
