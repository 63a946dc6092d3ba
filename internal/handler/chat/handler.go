package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/mudler/xlog"

	chatService "github.com/zhouzirui/agentdesk/backend/internal/service/chat"
	"github.com/zhouzirui/agentdesk/backend/pkg/utils"
)

const genericFailure = "Failed to generate response"

// Handler 聊天挂件的HTTP处理器
type Handler struct {
	chatSvc  *chatService.Service
	upgrader websocket.Upgrader
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			// 挂件嵌入在任意租户站点上
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat/{agentID}", h.handleChat)
	r.Get("/chat/{agentID}/stream", h.handleStream)
	r.Get("/chat/{agentID}/ws", h.handleWebSocket)
}

// handleChat 处理一轮聊天
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	var payload chatService.Request
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.chatSvc.Reply(r.Context(), agentID, payload)
	if err != nil {
		status, message := errorStatus(err)
		if status == http.StatusInternalServerError {
			xlog.Error("chat turn failed", "component", "chat", "agent", agentID, "session", payload.SessionID, "error", err)
		}
		utils.RespondError(w, status, message)
		return
	}

	utils.RespondJSON(w, http.StatusOK, reply)
}

// errorStatus maps service errors to an HTTP status and a client-safe message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chatService.ErrValidation):
		return http.StatusBadRequest, "Message and sessionId are required"
	case errors.Is(err, chatService.ErrAgentNotFound):
		return http.StatusNotFound, "Agent not found or inactive"
	case errors.Is(err, chatService.ErrUnavailable):
		return http.StatusServiceUnavailable, "AI responses are currently unavailable"
	default:
		return http.StatusInternalServerError, genericFailure
	}
}
