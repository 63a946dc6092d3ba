package agent

import "strings"

// Agent captures the persona a tenant configures to answer on its behalf.
type Agent struct {
	ID           string           `json:"id" yaml:"id"`
	Name         string           `json:"name" yaml:"name"`
	BusinessName string           `json:"businessName" yaml:"businessName"`
	Tone         string           `json:"tone" yaml:"tone"`
	SystemPrompt string           `json:"systemPrompt,omitempty" yaml:"systemPrompt"`
	Active       bool             `json:"active" yaml:"active"`
	Knowledge    []KnowledgeEntry `json:"-" yaml:"knowledge"`
}

// KnowledgeEntry is a free-text document attached to an agent.
type KnowledgeEntry struct {
	ID      string `json:"id" yaml:"id"`
	Title   string `json:"title" yaml:"title"`
	Content string `json:"content" yaml:"content"`
}

// ConcatKnowledge joins the raw contents of entries with a blank line, skipping empty ones.
func ConcatKnowledge(entries []KnowledgeEntry) string {
	parts := make([]string, 0, len(entries))
	for _, entry := range entries {
		content := strings.TrimSpace(entry.Content)
		if content == "" {
			continue
		}
		parts = append(parts, content)
	}
	return strings.Join(parts, "\n\n")
}

// Seed provides demo agents for local development.
func Seed() []Agent {
	return []Agent{
		{
			ID:           "demo-support",
			Name:         "Ava",
			BusinessName: "Acme Outdoor Supply",
			Tone:         "friendly and concise",
			Active:       true,
			Knowledge: []KnowledgeEntry{
				{
					ID:      "hours",
					Title:   "Store hours",
					Content: "We are open Monday to Saturday, 9am to 6pm. Closed on Sundays and public holidays.",
				},
				{
					ID:      "returns",
					Title:   "Return policy",
					Content: "Unused items can be returned within 30 days with a receipt for a full refund.",
				},
			},
		},
		{
			ID:           "demo-dental",
			Name:         "Max",
			BusinessName: "Bright Smile Dental",
			Tone:         "warm and reassuring",
			SystemPrompt: "You are Max, the front-desk assistant of Bright Smile Dental. Help callers book, move or cancel appointments and answer questions about our services. Never give medical advice; offer to connect the caller with a dentist instead.",
			Active:       true,
		},
		{
			ID:           "demo-paused",
			Name:         "Leo",
			BusinessName: "Paused Bistro",
			Tone:         "casual",
			Active:       false,
		},
	}
}
