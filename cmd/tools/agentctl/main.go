package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/mudler/xlog"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/agentdesk/backend/internal/config"
	"github.com/zhouzirui/agentdesk/backend/internal/model/agent"
	"github.com/zhouzirui/agentdesk/backend/internal/service/ai"
	"github.com/zhouzirui/agentdesk/backend/internal/service/chat"
	"github.com/zhouzirui/agentdesk/backend/internal/service/conversation"
	"github.com/zhouzirui/agentdesk/backend/internal/service/telephony"
	"github.com/zhouzirui/agentdesk/backend/internal/service/voice"
)

func main() {
	if err := godotenv.Load(); err != nil {
		xlog.Debug("no .env file, using system environment", "error", err)
	}
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "agentctl",
		Short:         "Operator tools for agent personas, chat turns and outbound calls",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newAgentsCommand(), newChatCommand(), newCallCommand())
	return root
}

func newAgentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the agent catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			agents, err := agent.LoadStore(cfg.Storage.AgentsFile)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tBUSINESS\tACTIVE\tKNOWLEDGE")
			for _, item := range agents.List() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\n", item.ID, item.Name, item.BusinessName, item.Active, len(item.Knowledge))
			}
			return w.Flush()
		},
	}
}

func newChatCommand() *cobra.Command {
	var (
		sessionID string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "chat <agent-id> <message>",
		Short: "Run one chat turn through the configured model",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			agents, err := agent.LoadStore(cfg.Storage.AgentsFile)
			if err != nil {
				return err
			}
			conversations, err := conversation.Open(cfg.Storage)
			if err != nil {
				return err
			}
			defer conversations.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			chatModel, err := cfg.AI.NewChatModel(ctx)
			if err != nil {
				return fmt.Errorf("chat model: %w", err)
			}
			aiSvc, err := ai.NewService(ctx, chatModel)
			if err != nil {
				return err
			}

			if sessionID == "" {
				sessionID = fmt.Sprintf("agentctl-%d", time.Now().UnixNano())
			}
			svc := chat.NewService(agents, conversations, aiSvc)
			history, err := svc.StoredHistory(ctx, args[0], sessionID)
			if err != nil {
				return err
			}

			reply, err := svc.Reply(ctx, args[0], chat.Request{
				Message:   strings.Join(args[1:], " "),
				SessionID: sessionID,
				History:   history,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (confidence %.2f, session %s):\n%s\n", reply.AgentName, reply.Confidence, sessionID, reply.Response)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session key to continue; generated when empty")
	cmd.Flags().DurationVar(&timeout, "timeout", 45*time.Second, "Request timeout")
	return cmd
}

func newCallCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "call <agent-id> <phone-number>",
		Short: "Trigger an outbound call, simulated when telephony is not configured",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			agents, err := agent.LoadStore(cfg.Storage.AgentsFile)
			if err != nil {
				return err
			}
			conversations, err := conversation.Open(cfg.Storage)
			if err != nil {
				return err
			}
			defer conversations.Close()

			svc := voice.NewService(agents, conversations, nil, telephony.NewTwilioClient(cfg.Telephony), voice.Config{
				PublicBaseURL: cfg.Server.PublicBaseURL,
				Voice:         cfg.Telephony.Voice,
				Language:      cfg.Telephony.Language,
				GatherTimeout: cfg.Telephony.GatherTimeout,
			})

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			result, err := svc.PlaceCall(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "call %s status=%s conversation=%s\n", result.CallID, result.Status, result.ConversationID)
			if result.Message != "" {
				fmt.Fprintln(cmd.OutOrStdout(), result.Message)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	return cmd
}
