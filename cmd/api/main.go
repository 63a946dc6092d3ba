package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mudler/xlog"

	"github.com/zhouzirui/agentdesk/backend/internal/config"
	"github.com/zhouzirui/agentdesk/backend/internal/handler"
	"github.com/zhouzirui/agentdesk/backend/internal/model/agent"
	"github.com/zhouzirui/agentdesk/backend/internal/service/ai"
	"github.com/zhouzirui/agentdesk/backend/internal/service/chat"
	"github.com/zhouzirui/agentdesk/backend/internal/service/conversation"
	"github.com/zhouzirui/agentdesk/backend/internal/service/telephony"
	"github.com/zhouzirui/agentdesk/backend/internal/service/voice"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		xlog.Warn("failed to load .env file, continuing with system environment variables only", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		xlog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	agents, err := agent.LoadStore(cfg.Storage.AgentsFile)
	if err != nil {
		xlog.Error("failed to load agent catalog", "path", cfg.Storage.AgentsFile, "error", err)
		os.Exit(1)
	}

	conversations, err := conversation.Open(cfg.Storage)
	if err != nil {
		xlog.Error("failed to open conversation store", "driver", cfg.Storage.Driver, "error", err)
		os.Exit(1)
	}
	defer conversations.Close()

	// A nil *ai.Service must not leak into the interface as a non-nil responder.
	var responder ai.Responder
	if cfg.AI.Enabled() {
		aiService, err := newAIService(ctx, cfg.AI)
		if err != nil {
			xlog.Warn("failed to initialize AI service, continuing without responses", "provider", cfg.AI.Provider, "error", err)
		} else {
			responder = aiService
			xlog.Info("AI service initialized", "provider", cfg.AI.Provider)
		}
	} else {
		xlog.Warn("AI credentials not configured, chat and voice replies are disabled", "provider", cfg.AI.Provider)
	}

	calls := telephony.NewTwilioClient(cfg.Telephony)
	if !calls.Enabled() {
		xlog.Warn("telephony not configured, outbound calls will be simulated")
	}
	if cfg.Server.APIKey == "" {
		xlog.Warn("API_KEY not set, operator routes are unauthenticated")
	}

	chatSvc := chat.NewService(agents, conversations, responder)
	voiceSvc := voice.NewService(agents, conversations, responder, calls, voice.Config{
		PublicBaseURL: cfg.Server.PublicBaseURL,
		Voice:         cfg.Telephony.Voice,
		Language:      cfg.Telephony.Language,
		GatherTimeout: cfg.Telephony.GatherTimeout,
	})

	router := handler.NewRouter(*cfg, agents, conversations, chatSvc, voiceSvc)

	startServer(ctx, cfg.Server, router)
}

func newAIService(ctx context.Context, cfg config.AIConfig) (*ai.Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}
	return ai.NewService(ctx, chatModel)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	xlog.Info("agentdesk backend listening", "addr", addr)
	if err := runServer(ctx, srv); err != nil {
		xlog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
