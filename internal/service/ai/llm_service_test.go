package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/agentdesk/backend/internal/model/agent"
	"github.com/zhouzirui/agentdesk/backend/internal/model/conversation"
)

type fakeChatModel struct {
	reply  string
	err    error
	chunks []string
	input  []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	msgs := make([]*schema.Message, 0, len(f.chunks))
	for _, chunk := range f.chunks {
		msgs = append(msgs, schema.AssistantMessage(chunk, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func newTestService(t *testing.T, fake *fakeChatModel) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), fake)
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}
	return svc
}

func TestGenerateResponseBuildsPrompt(t *testing.T) {
	fake := &fakeChatModel{reply: "  We open at 9am.  "}
	svc := newTestService(t, fake)

	history := make([]conversation.HistoryEntry, 0, 14)
	for i := 0; i < 14; i++ {
		role := conversation.RoleUser
		if i%2 == 1 {
			role = conversation.RoleAssistant
		}
		history = append(history, conversation.HistoryEntry{Role: role, Content: fmt.Sprintf("h%d", i)})
	}

	a := agent.Seed()[0]
	reply, err := svc.GenerateResponse(context.Background(), GenerateRequest{
		Agent:     &a,
		Knowledge: "Open 9am to 6pm.",
		History:   history,
		Message:   "When do you open?",
	})
	if err != nil {
		t.Fatalf("GenerateResponse err: %v", err)
	}

	if reply.Text != "We open at 9am." {
		t.Fatalf("unexpected reply text %q", reply.Text)
	}
	if reply.Confidence != DefaultConfidence {
		t.Fatalf("unexpected confidence %v", reply.Confidence)
	}

	// system + 10 history + user
	if len(fake.input) != 12 {
		t.Fatalf("expected 12 messages sent to model, got %d", len(fake.input))
	}
	if fake.input[0].Role != schema.System {
		t.Fatalf("first message must be system, got %s", fake.input[0].Role)
	}
	if !strings.Contains(fake.input[0].Content, "Open 9am to 6pm.") {
		t.Fatal("system prompt must include knowledge text")
	}
	if fake.input[1].Content != "h4" {
		t.Fatalf("history must start at the 10th most recent entry, got %q", fake.input[1].Content)
	}
	last := fake.input[len(fake.input)-1]
	if last.Role != schema.User || last.Content != "When do you open?" {
		t.Fatalf("unexpected final message %+v", last)
	}
}

func TestGenerateResponseWrapsErrors(t *testing.T) {
	fake := &fakeChatModel{err: errors.New("upstream 502")}
	svc := newTestService(t, fake)
	a := agent.Seed()[0]

	_, err := svc.GenerateResponse(context.Background(), GenerateRequest{Agent: &a, Message: "hi"})
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}

	fake.err = nil
	fake.reply = "   "
	_, err = svc.GenerateResponse(context.Background(), GenerateRequest{Agent: &a, Message: "hi"})
	if !errors.Is(err, ErrGeneration) {
		t.Fatalf("empty reply must be an error, got %v", err)
	}

	if _, err := svc.GenerateResponse(context.Background(), GenerateRequest{Message: "hi"}); !errors.Is(err, ErrGeneration) {
		t.Fatalf("missing agent must be an error, got %v", err)
	}
}

func TestStreamResponse(t *testing.T) {
	fake := &fakeChatModel{chunks: []string{"Hel", "lo!"}}
	svc := newTestService(t, fake)
	a := agent.Seed()[0]

	stream, err := svc.StreamResponse(context.Background(), GenerateRequest{Agent: &a, Message: "hi"})
	if err != nil {
		t.Fatalf("StreamResponse err: %v", err)
	}
	defer stream.Close()

	var builder strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Recv err: %v", err)
		}
		builder.WriteString(chunk.Content)
	}
	if builder.String() != "Hello!" {
		t.Fatalf("unexpected streamed text %q", builder.String())
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	explicit := &agent.Agent{Name: "Max", SystemPrompt: "You are Max."}
	if got := BuildSystemPrompt(explicit, ""); got != "You are Max." {
		t.Fatalf("explicit prompt must be used verbatim, got %q", got)
	}

	synth := &agent.Agent{Name: "Ava", BusinessName: "Acme", Tone: "cheerful"}
	got := BuildSystemPrompt(synth, "")
	for _, want := range []string{"Ava", "Acme", "cheerful"} {
		if !strings.Contains(got, want) {
			t.Fatalf("synthesized prompt missing %q: %s", want, got)
		}
	}
	if strings.Contains(got, "Knowledge base") {
		t.Fatal("knowledge heading must only appear with knowledge text")
	}

	blank := BuildSystemPrompt(&agent.Agent{}, "FAQ text")
	if !strings.Contains(blank, defaultTone) || !strings.Contains(blank, "FAQ text") {
		t.Fatalf("unexpected prompt for blank agent: %s", blank)
	}
}
