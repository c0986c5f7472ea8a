package provider

import (
	"fmt"
	"log/slog"
	"strings"

	"flowbridge/pkg/config"
	"flowbridge/pkg/dialog"
	"flowbridge/pkg/dialog/voiceflow"
)

// New builds the dialogue runtime client selected by dialog.provider.
func New(cfg *config.Config) (dialog.Client, error) {
	providerID := strings.TrimSpace(cfg.Dialog.Provider)
	if providerID == "" {
		providerID = config.DefaultDialogProvider
	}

	slog.Default().With("component", "provider.factory").Debug("Resolving dialogue runtime client", "provider", providerID)

	switch providerID {
	case "voiceflow":
		client, err := voiceflow.New(cfg.Dialog.Voiceflow)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported dialogue provider: %s", providerID)
	}
}
