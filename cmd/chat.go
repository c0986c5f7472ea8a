package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"flowbridge/pkg/bus"
	"flowbridge/pkg/channel"
	"flowbridge/pkg/config"
	"flowbridge/pkg/gateway"
	"flowbridge/pkg/logger"
	"flowbridge/pkg/provider"
	"flowbridge/pkg/ui/chat"

	"github.com/spf13/cobra"
)

const (
	consoleChannelName = "console"
	defaultConsoleUser = "console-user"
)

var (
	utteranceText string
	consoleUserID string
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [utterance]",
	Short: "Send one utterance or start an interactive console conversation",
	Long:  "Loads FlowBridge configuration, connects to the dialogue runtime, and runs console turns through the same pipeline as the channel endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		utterance := resolveUtterance(args)

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		// The TUI owns the terminal, so only errors are logged unless overridden.
		if strings.TrimSpace(cfg.Logging.Level) == "" {
			cfg.Logging.Level = "error"
		}
		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.chat")

		client, err := provider.New(cfg)
		if err != nil {
			fmt.Printf("failed to initialize dialogue runtime client: %v\n", err)
			return
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		events := bus.NewEventBus()
		defer events.Close()
		eventCh, unsubscribe := events.Subscribe(ctx, 0)
		defer unsubscribe()
		go func() {
			for event := range eventCh {
				logEvent(log, event)
			}
		}()

		orchestrator := gateway.NewOrchestrator(client, events, nil, log)
		userID := strings.TrimSpace(consoleUserID)
		if userID == "" {
			userID = defaultConsoleUser
		}
		turnFn := consoleTurn(orchestrator.HandleInbound, userID)

		info := chat.RuntimeInfo{
			Provider:  cfg.Dialog.Provider,
			Endpoint:  cfg.Dialog.Voiceflow.RuntimeEndpoint,
			VersionID: cfg.Dialog.Voiceflow.VersionID,
			UserID:    userID,
		}

		if utterance != "" {
			err = chat.RunOneShot(ctx, turnFn, utterance, info)
		} else {
			err = chat.RunInteractive(ctx, turnFn, info)
		}
		if err != nil {
			fmt.Printf("console failed: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&utteranceText, "utterance", "u", "", "utterance to send")
	chatCmd.Flags().StringVar(&consoleUserID, "user", defaultConsoleUser, "user id the dialogue runtime keys state on")
}

func resolveUtterance(args []string) string {
	if value := strings.TrimSpace(utteranceText); value != "" {
		return value
	}

	if len(args) == 0 {
		return ""
	}

	return strings.TrimSpace(strings.Join(args, " "))
}

// consoleTurn runs one console utterance through handler and collects every
// reply it sends.
func consoleTurn(handler channel.Handler, userID string) chat.TurnFunc {
	return func(ctx context.Context, utterance string) ([]bus.OutboundMessage, error) {
		var replies []bus.OutboundMessage
		replier := channel.ReplyFunc(func(_ context.Context, msg bus.OutboundMessage) error {
			replies = append(replies, msg)
			return nil
		})

		inbound := bus.InboundMessage{
			Channel:  consoleChannelName,
			Kind:     bus.KindMessage,
			SenderID: userID,
			ChatID:   userID,
			Content:  utterance,
		}
		err := handler(ctx, inbound, replier)
		return replies, err
	}
}

func logEvent(log *slog.Logger, event bus.Event) {
	attrs := []any{"turn_id", event.TurnID, "channel", event.Channel, "user_id", event.UserID}

	switch event.Type {
	case bus.EventTurnFailed:
		log.Error("Turn event", append(attrs, "event", event.Type, "failure", event.Failure, "error", event.Error)...)
	case bus.EventTurnIgnored:
		log.Debug("Turn event", append(attrs, "event", event.Type)...)
	default:
		log.Info("Turn event", append(attrs, "event", event.Type)...)
	}
}
