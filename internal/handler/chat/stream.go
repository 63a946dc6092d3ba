package chat

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mudler/xlog"

	chatService "github.com/zhouzirui/agentdesk/backend/internal/service/chat"
	"github.com/zhouzirui/agentdesk/backend/pkg/utils"
)

// StreamEvent is the payload of every SSE frame.
type StreamEvent struct {
	Content    string  `json:"content,omitempty"`
	SessionID  string  `json:"sessionId,omitempty"`
	AgentName  string  `json:"agentName,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Finished   bool    `json:"finished,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// handleStream 以SSE方式逐段推送回复
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	query := r.URL.Query()
	req := chatService.Request{
		Message:   query.Get("message"),
		SessionID: query.Get("sessionId"),
	}

	if strings.TrimSpace(req.Message) == "" || strings.TrimSpace(req.SessionID) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message and sessionId query parameters are required")
		return
	}
	found, err := h.chatSvc.Agent(agentID)
	if err != nil {
		status, message := errorStatus(err)
		utils.RespondError(w, status, message)
		return
	}
	if !h.chatSvc.Available() {
		status, message := errorStatus(chatService.ErrUnavailable)
		utils.RespondError(w, status, message)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	_ = utils.SendSSEEvent(w, flusher, "start", StreamEvent{SessionID: req.SessionID, AgentName: found.Name})

	reply, err := h.chatSvc.StreamReply(ctx, agentID, req, func(delta string) {
		_ = utils.SendSSEEvent(w, flusher, "delta", StreamEvent{SessionID: req.SessionID, Content: delta})
	})
	if err != nil {
		xlog.Error("stream turn failed", "component", "stream", "agent", agentID, "session", req.SessionID, "error", err)
		_ = utils.SendSSEEvent(w, flusher, "error", StreamEvent{SessionID: req.SessionID, Error: genericFailure})
		return
	}

	_ = utils.SendSSEEvent(w, flusher, "message", StreamEvent{
		SessionID:  req.SessionID,
		Content:    reply.Response,
		AgentName:  reply.AgentName,
		Confidence: reply.Confidence,
	})
	_ = utils.SendSSEEvent(w, flusher, "end", StreamEvent{SessionID: req.SessionID, Finished: true})

	xlog.Debug("stream completed", "component", "stream", "agent", agentID, "session", req.SessionID)
}
