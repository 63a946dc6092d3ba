package voice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/agentdesk/backend/internal/middleware"
	"github.com/zhouzirui/agentdesk/backend/internal/model/agent"
	"github.com/zhouzirui/agentdesk/backend/internal/service/ai"
	conversationservice "github.com/zhouzirui/agentdesk/backend/internal/service/conversation"
	voiceservice "github.com/zhouzirui/agentdesk/backend/internal/service/voice"
	"github.com/zhouzirui/agentdesk/backend/pkg/twiml"
)

type echoResponder struct{}

func (echoResponder) GenerateResponse(_ context.Context, req ai.GenerateRequest) (*ai.Reply, error) {
	return &ai.Reply{Text: "You said: " + req.Message, Confidence: ai.DefaultConfidence}, nil
}

func (echoResponder) StreamResponse(context.Context, ai.GenerateRequest) (*schema.StreamReader[*schema.Message], error) {
	return nil, ai.ErrGeneration
}

func passthrough(next http.Handler) http.Handler { return next }

func setupRouter() (*chi.Mux, conversationservice.Store) {
	store := conversationservice.NewMemoryStore()
	svc := voiceservice.NewService(agent.NewMemoryStore(agent.Seed()), store, echoResponder{}, nil, voiceservice.Config{
		PublicBaseURL: "http://localhost:8080",
		Voice:         "alice",
		Language:      "en-US",
	})
	r := chi.NewRouter()
	New(svc).RegisterRoutes(r, passthrough, middleware.APIKey("secret"))
	return r, store
}

func postForm(r http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestCallLifecycle(t *testing.T) {
	r, store := setupRouter()
	ctx := context.Background()

	resp := postForm(r, "/voice/demo-support/incoming", url.Values{"CallSid": {"CA9"}})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, twiml.ContentType, resp.Header().Get("Content-Type"))
	assert.Contains(t, resp.Body.String(), "<Gather")

	resp = postForm(r, "/voice/demo-support/gather", url.Values{"CallSid": {"CA9"}, "SpeechResult": {"reset my password"}})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "You said: reset my password")

	resp = postForm(r, "/voice/status", url.Values{"CallSid": {"CA9"}, "CallStatus": {"completed"}})
	assert.Equal(t, http.StatusNoContent, resp.Code)

	conv, err := store.Find(ctx, "demo-support", "CA9")
	require.NoError(t, err)
	assert.Len(t, conv.Turns, 2)
	assert.True(t, conv.Resolved)
	assert.NotNil(t, conv.EndedAt)
}

func TestStatusAlwaysNoContent(t *testing.T) {
	r, _ := setupRouter()
	for _, path := range []string{"/voice/status", "/voice/demo-support/status"} {
		resp := postForm(r, path, url.Values{"CallSid": {"CA-unknown"}, "CallStatus": {"completed"}})
		assert.Equal(t, http.StatusNoContent, resp.Code, path)
	}
}

func TestOutboundCall(t *testing.T) {
	r, store := setupRouter()

	call := func(agentID, body, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/voice/"+agentID+"/call", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		return resp
	}

	assert.Equal(t, http.StatusUnauthorized, call("demo-support", `{"phoneNumber":"+15550001111"}`, "").Code)
	assert.Equal(t, http.StatusBadRequest, call("demo-support", `{}`, "secret").Code)
	assert.Equal(t, http.StatusNotFound, call("demo-paused", `{"phoneNumber":"+15550001111"}`, "secret").Code)

	resp := call("demo-support", `{"phoneNumber":"+15550001111"}`, "secret")
	require.Equal(t, http.StatusOK, resp.Code)

	var result voiceservice.CallResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.True(t, strings.HasPrefix(result.CallID, "simulated_"))
	assert.Equal(t, voiceservice.StatusSimulated, result.Status)
	assert.NotEmpty(t, result.ConversationID)

	conv, err := store.Find(context.Background(), "demo-support", result.CallID)
	require.NoError(t, err)
	assert.Equal(t, result.ConversationID, conv.ID)
}
