package agent

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mudler/xlog"

	"github.com/zhouzirui/agentdesk/backend/internal/model/agent"
	conversationService "github.com/zhouzirui/agentdesk/backend/internal/service/conversation"
	"github.com/zhouzirui/agentdesk/backend/pkg/utils"
)

// Summary is the public view of an agent shown in the widget header.
type Summary struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	BusinessName string `json:"businessName"`
}

// Handler agent服务的HTTP处理器
type Handler struct {
	agents        agent.Store
	conversations conversationService.Store
}

// New 创建agent处理器
func New(agents agent.Store, conversations conversationService.Store) *Handler {
	return &Handler{
		agents:        agents,
		conversations: conversations,
	}
}

// RegisterRoutes 注册agent相关的路由；protect 用于转写记录接口
func (h *Handler) RegisterRoutes(r chi.Router, protect func(http.Handler) http.Handler) {
	r.Get("/agents/{agentID}", h.handleGetAgent)
	r.With(protect).Get("/agents/{agentID}/conversations/{sessionKey}", h.handleTranscript)
}

// handleGetAgent 返回挂件需要的公开信息
func (h *Handler) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	found, ok := agent.FindActive(h.agents, chi.URLParam(r, "agentID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "Agent not found or inactive")
		return
	}
	utils.RespondJSON(w, http.StatusOK, Summary{ID: found.ID, Name: found.Name, BusinessName: found.BusinessName})
}

// handleTranscript 返回某个会话的完整记录
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	sessionKey := chi.URLParam(r, "sessionKey")

	conv, err := h.conversations.Find(r.Context(), agentID, sessionKey)
	if errors.Is(err, conversationService.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "conversation not found")
		return
	}
	if err != nil {
		xlog.Error("failed to load transcript", "component", "agent", "agent", agentID, "session", sessionKey, "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	utils.RespondJSON(w, http.StatusOK, conv)
}
