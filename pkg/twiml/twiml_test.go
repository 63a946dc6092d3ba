package twiml

import (
	"encoding/xml"
	"strings"
	"testing"
)

func TestRenderOrderAndAttributes(t *testing.T) {
	out, err := NewResponse().
		Say("Hello & welcome", "alice", "en-US").
		Gather(Gather{Input: "speech", Action: "/api/voice/a1/gather", Method: "POST", Timeout: 3, SpeechTimeout: "auto"}).
		Say("Goodbye", "", "").
		Hangup().
		Render()
	if err != nil {
		t.Fatalf("Render err: %v", err)
	}

	doc := string(out)
	if !strings.HasPrefix(doc, `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Fatalf("missing xml declaration: %s", doc)
	}
	wantOrder := []string{
		`<Response>`,
		`<Say voice="alice" language="en-US">Hello &amp; welcome</Say>`,
		`<Gather input="speech" action="/api/voice/a1/gather" method="POST" timeout="3" speechTimeout="auto"></Gather>`,
		`<Say>Goodbye</Say>`,
		`<Hangup></Hangup>`,
		`</Response>`,
	}
	pos := 0
	for _, want := range wantOrder {
		idx := strings.Index(doc[pos:], want)
		if idx < 0 {
			t.Fatalf("expected %s after offset %d in %s", want, pos, doc)
		}
		pos += idx + len(want)
	}
}

func TestGatherWithPrompt(t *testing.T) {
	out := NewResponse().Gather(Gather{Input: "speech", Prompt: &Say{Text: "Anything else?"}}).MustRender()

	var parsed struct {
		Gather struct {
			Input string `xml:"input,attr"`
			Say   string `xml:"Say"`
		} `xml:"Gather"`
	}
	if err := xml.Unmarshal(out, &parsed); err != nil {
		t.Fatalf("unmarshal err: %v", err)
	}
	if parsed.Gather.Input != "speech" || parsed.Gather.Say != "Anything else?" {
		t.Fatalf("unexpected gather: %+v", parsed.Gather)
	}
}
