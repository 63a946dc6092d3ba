package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/agentdesk/backend/internal/model/agent"
	"github.com/zhouzirui/agentdesk/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/agentdesk/backend/internal/service/chat"
	conversationservice "github.com/zhouzirui/agentdesk/backend/internal/service/conversation"
)

type fakeResponder struct {
	reply   string
	err     error
	lastReq ai.GenerateRequest
}

func (f *fakeResponder) GenerateResponse(_ context.Context, req ai.GenerateRequest) (*ai.Reply, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &ai.Reply{Text: f.reply, Confidence: ai.DefaultConfidence}, nil
}

func (f *fakeResponder) StreamResponse(_ context.Context, req ai.GenerateRequest) (*schema.StreamReader[*schema.Message], error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	words := strings.SplitAfter(f.reply, " ")
	msgs := make([]*schema.Message, 0, len(words))
	for _, word := range words {
		msgs = append(msgs, schema.AssistantMessage(word, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func setupRouter(responder ai.Responder) (*chi.Mux, conversationservice.Store) {
	store := conversationservice.NewMemoryStore()
	chatSvc := chatservice.NewService(agent.NewMemoryStore(agent.Seed()), store, responder)
	handler := New(chatSvc)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, store
}

func postChat(r http.Handler, agentID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat/"+agentID, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestChatTurnPersistsConversation(t *testing.T) {
	r, store := setupRouter(&fakeResponder{reply: "Hi there! How can I help?"})

	resp := postChat(r, "demo-support", `{"message":"hi","sessionId":"s1"}`)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "Hi there! How can I help?", body["response"])
	assert.Equal(t, "Ava", body["agentName"])
	confidence, ok := body["confidence"].(float64)
	require.True(t, ok)
	assert.True(t, confidence >= 0 && confidence <= 1)

	conv, err := store.Find(context.Background(), "demo-support", "s1")
	require.NoError(t, err)
	assert.Len(t, conv.Turns, 2)

	resp = postChat(r, "demo-support", `{"message":"hi","sessionId":"s1"}`)
	require.Equal(t, http.StatusOK, resp.Code)
	conv, err = store.Find(context.Background(), "demo-support", "s1")
	require.NoError(t, err)
	assert.Len(t, conv.Turns, 4)
}

func TestChatTurnErrors(t *testing.T) {
	cases := []struct {
		name      string
		responder ai.Responder
		agentID   string
		body      string
		want      int
	}{
		{"inactive agent", &fakeResponder{reply: "x"}, "demo-paused", `{"message":"hi","sessionId":"s1"}`, http.StatusNotFound},
		{"unknown agent", &fakeResponder{reply: "x"}, "nobody", `{"message":"hi","sessionId":"s1"}`, http.StatusNotFound},
		{"missing message", &fakeResponder{reply: "x"}, "demo-support", `{"sessionId":"s1"}`, http.StatusBadRequest},
		{"missing session", &fakeResponder{reply: "x"}, "demo-support", `{"message":"hi"}`, http.StatusBadRequest},
		{"malformed body", &fakeResponder{reply: "x"}, "demo-support", `{"message":`, http.StatusBadRequest},
		{"no model", nil, "demo-support", `{"message":"hi","sessionId":"s1"}`, http.StatusServiceUnavailable},
		{"generation failure", &fakeResponder{err: errors.New("timeout")}, "demo-support", `{"message":"hi","sessionId":"s1"}`, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, store := setupRouter(tc.responder)
			resp := postChat(r, tc.agentID, tc.body)
			assert.Equal(t, tc.want, resp.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
			if tc.want == http.StatusInternalServerError {
				assert.Equal(t, genericFailure, body["error"], "provider details stay server side")
			}

			_, err := store.Find(context.Background(), tc.agentID, "s1")
			assert.ErrorIs(t, err, conversationservice.ErrNotFound)
		})
	}
}

func TestChatTurnPassesHistory(t *testing.T) {
	responder := &fakeResponder{reply: "ok"}
	r, _ := setupRouter(responder)

	payload, _ := json.Marshal(map[string]any{
		"message":   "and on sunday?",
		"sessionId": "s2",
		"history": []map[string]string{
			{"role": "user", "content": "when are you open?"},
			{"role": "assistant", "content": "Monday to Saturday."},
		},
	})
	resp := postChat(r, "demo-support", string(payload))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, responder.lastReq.History, 2)
	assert.Equal(t, "Monday to Saturday.", responder.lastReq.History[1].Content)
}

func TestStreamEmitsEvents(t *testing.T) {
	r, store := setupRouter(&fakeResponder{reply: "We are open daily."})

	req := httptest.NewRequest(http.MethodGet, "/chat/demo-support/stream?sessionId=s3&message=open%3F", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "text/event-stream", resp.Header().Get("Content-Type"))

	body := resp.Body.String()
	start := strings.Index(body, "event: start")
	delta := strings.Index(body, "event: delta")
	message := strings.Index(body, "event: message")
	end := strings.Index(body, "event: end")
	require.True(t, start >= 0 && delta > start && message > delta && end > message, body)
	assert.Contains(t, body, `"content":"We are open daily."`)

	conv, err := store.Find(context.Background(), "demo-support", "s3")
	require.NoError(t, err)
	assert.Len(t, conv.Turns, 2)
}

func TestStreamRejectsBadRequests(t *testing.T) {
	r, _ := setupRouter(&fakeResponder{reply: "x"})

	for path, want := range map[string]int{
		"/chat/demo-support/stream?sessionId=s1": http.StatusBadRequest,
		"/chat/demo-paused/stream?sessionId=s1&message=hi": http.StatusNotFound,
	} {
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, resp.Code, path)
	}

	noModel, _ := setupRouter(nil)
	resp := httptest.NewRecorder()
	noModel.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/chat/demo-support/stream?sessionId=s1&message=hi", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestStreamReportsGenerationFailure(t *testing.T) {
	r, _ := setupRouter(&fakeResponder{err: errors.New("boom")})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/chat/demo-support/stream?sessionId=s1&message=hi", nil))
	assert.Contains(t, resp.Body.String(), "event: error")
	assert.NotContains(t, resp.Body.String(), "event: end")
}

func TestWebSocketTurnUsesStoredHistory(t *testing.T) {
	responder := &fakeResponder{reply: "Sure thing."}
	r, store := setupRouter(responder)
	srv := httptest.NewServer(r)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/demo-support/ws?sessionId=s4"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var connected outgoingMessage
	require.NoError(t, conn.ReadJSON(&connected))
	assert.Equal(t, "connected", connected.Type)

	for i := 0; i < 2; i++ {
		require.NoError(t, conn.WriteJSON(inboundMessage{Type: "message", Content: "hello"}))
		var reply struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&reply))
		require.Equal(t, "reply", reply.Type, string(reply.Data))
		assert.True(t, bytes.Contains(reply.Data, []byte("Sure thing.")))
	}
	assert.Len(t, responder.lastReq.History, 2, "second turn sees the first from the store")

	require.NoError(t, conn.WriteJSON(inboundMessage{Type: "audio"}))
	var errMsg outgoingMessage
	require.NoError(t, conn.ReadJSON(&errMsg))
	assert.Equal(t, "error", errMsg.Type)

	conv, err := store.Find(context.Background(), "demo-support", "s4")
	require.NoError(t, err)
	assert.Len(t, conv.Turns, 4)
}

func TestWebSocketRequiresSession(t *testing.T) {
	r, _ := setupRouter(&fakeResponder{reply: "x"})
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/chat/demo-support/ws", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
