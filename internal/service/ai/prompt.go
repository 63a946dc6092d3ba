package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/agentdesk/backend/internal/model/agent"
)

const defaultTone = "professional and friendly"

// BuildSystemPrompt creates the system instruction for an agent, appending knowledge text when present.
func BuildSystemPrompt(a *agent.Agent, knowledge string) string {
	base := strings.TrimSpace(a.SystemPrompt)
	if base == "" {
		base = buildBasicSystemPrompt(a)
	}

	knowledge = strings.TrimSpace(knowledge)
	if knowledge == "" {
		return base
	}

	var builder strings.Builder
	builder.WriteString(base)
	builder.WriteString("\n\nKnowledge base:\n")
	builder.WriteString(knowledge)
	builder.WriteString("\n\nUse the knowledge base when it answers the question. If it does not, say you are not sure instead of inventing details.")
	return builder.String()
}

// buildBasicSystemPrompt synthesizes a prompt from the agent's name, business and tone.
func buildBasicSystemPrompt(a *agent.Agent) string {
	name := strings.TrimSpace(a.Name)
	if name == "" {
		name = "an AI assistant"
	}
	business := strings.TrimSpace(a.BusinessName)
	if business == "" {
		business = "this business"
	}
	tone := strings.TrimSpace(a.Tone)
	if tone == "" {
		tone = defaultTone
	}

	return fmt.Sprintf(`You are %s, a customer service agent for %s.

Guidelines:
- Keep a %s tone.
- Answer briefly and clearly; replies may be read aloud on a phone call.
- Help customers with questions about %s and stay on topic.
- If you cannot help, offer to take a message or connect the customer with a human.`,
		name, business, tone, business)
}
