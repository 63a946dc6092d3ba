package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/agentdesk/backend/internal/config"
	agentHandler "github.com/zhouzirui/agentdesk/backend/internal/handler/agent"
	"github.com/zhouzirui/agentdesk/backend/internal/handler/chat"
	"github.com/zhouzirui/agentdesk/backend/internal/handler/voice"
	middlewarePkg "github.com/zhouzirui/agentdesk/backend/internal/middleware"
	"github.com/zhouzirui/agentdesk/backend/internal/model/agent"
	chatService "github.com/zhouzirui/agentdesk/backend/internal/service/chat"
	conversationService "github.com/zhouzirui/agentdesk/backend/internal/service/conversation"
	voiceService "github.com/zhouzirui/agentdesk/backend/internal/service/voice"
	"github.com/zhouzirui/agentdesk/backend/pkg/utils"
	"github.com/zhouzirui/agentdesk/backend/web"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(cfg config.Config, agents agent.Store, conversations conversationService.Store, chatSvc *chatService.Service, voiceSvc *voiceService.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/embed.js", web.ServeEmbed)

	protect := middlewarePkg.APIKey(cfg.Server.APIKey)
	webhook := func(next http.Handler) http.Handler { return next }
	if cfg.Telephony.ValidateSignature && cfg.Telephony.AuthToken != "" {
		webhook = middlewarePkg.TwilioSignature(cfg.Telephony.AuthToken, cfg.Server.PublicBaseURL)
	}

	r.Route("/api", func(api chi.Router) {
		agentHandler.New(agents, conversations).RegisterRoutes(api, protect)
		chat.New(chatSvc).RegisterRoutes(api)
		voice.New(voiceSvc).RegisterRoutes(api, webhook, protect)
	})

	return r
}
