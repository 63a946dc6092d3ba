package voice

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mudler/xlog"

	voiceService "github.com/zhouzirui/agentdesk/backend/internal/service/voice"
	"github.com/zhouzirui/agentdesk/backend/pkg/twiml"
	"github.com/zhouzirui/agentdesk/backend/pkg/utils"
)

// Handler 电话 webhook 与外呼接口的HTTP处理器
type Handler struct {
	voiceSvc *voiceService.Service
}

// New 创建语音处理器
func New(voiceSvc *voiceService.Service) *Handler {
	return &Handler{voiceSvc: voiceSvc}
}

// RegisterRoutes 注册语音相关的路由。webhook 用于校验来电回调，protect 用于外呼接口
func (h *Handler) RegisterRoutes(r chi.Router, webhook, protect func(http.Handler) http.Handler) {
	r.Route("/voice", func(v chi.Router) {
		v.With(webhook).Post("/status", h.handleStatus)
		v.With(webhook).Post("/{agentID}/incoming", h.handleIncoming)
		v.With(webhook).Post("/{agentID}/gather", h.handleGather)
		v.With(webhook).Post("/{agentID}/status", h.handleStatus)
		v.With(protect).Post("/{agentID}/call", h.handleCall)
	})
}

// handleIncoming 接通后的问候语
func (h *Handler) handleIncoming(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if err := r.ParseForm(); err != nil {
		xlog.Warn("unreadable incoming webhook", "component", "voice", "agent", agentID, "error", err)
	}
	xlog.Info("call connected", "component", "voice", "agent", agentID, "call", r.PostFormValue("CallSid"))

	utils.RespondXML(w, http.StatusOK, twiml.ContentType, h.voiceSvc.Greeting(r.Context(), agentID))
}

// handleGather 处理一段识别出的语音
func (h *Handler) handleGather(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if err := r.ParseForm(); err != nil {
		xlog.Warn("unreadable gather webhook", "component", "voice", "agent", agentID, "error", err)
	}

	doc := h.voiceSvc.HandleSpeech(r.Context(), agentID, r.PostFormValue("CallSid"), r.PostFormValue("SpeechResult"))
	utils.RespondXML(w, http.StatusOK, twiml.ContentType, doc)
}

// handleStatus 处理通话状态回调，始终返回 204
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if err := r.ParseForm(); err != nil {
		xlog.Warn("unreadable status webhook", "component", "voice", "error", err)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	callSID := r.PostFormValue("CallSid")
	if err := h.voiceSvc.HandleStatus(r.Context(), agentID, callSID, r.PostFormValue("CallStatus")); err != nil {
		xlog.Error("failed to record call status", "component", "voice", "call", callSID, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCall 发起外呼
func (h *Handler) handleCall(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	var payload struct {
		PhoneNumber string `json:"phoneNumber"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.voiceSvc.PlaceCall(r.Context(), agentID, payload.PhoneNumber)
	switch {
	case errors.Is(err, voiceService.ErrValidation):
		utils.RespondError(w, http.StatusBadRequest, "phoneNumber is required")
	case errors.Is(err, voiceService.ErrAgentNotFound):
		utils.RespondError(w, http.StatusNotFound, "Agent not found or inactive")
	case err != nil:
		xlog.Error("outbound call failed", "component", "voice", "agent", agentID, "error", err)
		utils.RespondError(w, http.StatusInternalServerError, "Failed to place call")
	default:
		utils.RespondJSON(w, http.StatusOK, result)
	}
}
