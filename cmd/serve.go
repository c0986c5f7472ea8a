package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"flowbridge/pkg/channel"
	"flowbridge/pkg/channel/botframework"
	"flowbridge/pkg/channel/telegram"
	"flowbridge/pkg/config"
	"flowbridge/pkg/gateway"
	"flowbridge/pkg/logger"
	"flowbridge/pkg/provider"

	"github.com/spf13/cobra"
)

const telegramChannelName = "telegram"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the channel endpoints",
	Long:  "Serves the enabled channels against the configured dialogue runtime, with health, readiness and metrics endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}

		appLogger, err := logger.New(cfg.Logging)
		if err != nil {
			fmt.Printf("failed to initialize logger: %v\n", err)
			return
		}
		slog.SetDefault(appLogger)
		log := slog.Default().With("component", "cmd.serve")

		client, err := provider.New(cfg)
		if err != nil {
			log.Error("Dialogue runtime configuration invalid", "error", err)
			return
		}

		adapters, err := enabledAdapters(cfg, log)
		if err != nil {
			log.Error("Channel configuration invalid", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		svc, err := gateway.NewService(cfg, adapters, client, log)
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return
		}

		log.Info("FlowBridge started",
			"channels", enabledChannelNames(adapters),
			"provider", cfg.Dialog.Provider,
			"version", cfg.Dialog.Voiceflow.VersionID,
		)
		for _, adapter := range adapters {
			if bf, ok := adapter.(*botframework.Adapter); ok && bf.Endpoint() != "" {
				log.Info("Bot endpoint available", "endpoint", bf.Endpoint())
			}
		}

		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Gateway runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func enabledAdapters(cfg *config.Config, log *slog.Logger) ([]channel.Adapter, error) {
	adapters := make([]channel.Adapter, 0, 2)

	if cfg.Channels.BotFramework.Enabled {
		adapters = append(adapters, botframework.New(cfg.Channels.BotFramework, log))
	}

	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(cfg.Channels.Telegram, log)
		if err != nil {
			return nil, fmt.Errorf("configure %s channel: %w", telegramChannelName, err)
		}
		adapters = append(adapters, adapter)
	}

	if len(adapters) == 0 {
		return nil, errors.New("no channels are enabled")
	}

	return adapters, nil
}

func enabledChannelNames(adapters []channel.Adapter) string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return strings.Join(names, ",")
}
