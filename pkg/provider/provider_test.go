package provider

import (
	"testing"

	"flowbridge/pkg/config"
	"flowbridge/pkg/dialog/voiceflow"
)

func TestNewDefaultsToVoiceflow(t *testing.T) {
	cfg := &config.Config{}
	cfg.Dialog.Voiceflow.RuntimeEndpoint = "https://general-runtime.voiceflow.com"
	cfg.Dialog.Voiceflow.APIKey = "VF.DM.test.key"

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if _, ok := client.(*voiceflow.Client); !ok {
		t.Fatalf("expected *voiceflow.Client, got %T", client)
	}
}

func TestNewReturnsErrorForUnsupportedProvider(t *testing.T) {
	cfg := &config.Config{}
	cfg.Dialog.Provider = "unknown"

	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

func TestNewPropagatesClientValidation(t *testing.T) {
	cfg := &config.Config{}
	cfg.Dialog.Provider = "voiceflow"

	if _, err := New(cfg); err == nil {
		t.Fatal("expected error when the runtime endpoint is missing")
	}
}
