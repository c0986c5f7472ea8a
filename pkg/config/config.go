package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/caarlos0/env/v11"
)

const envConfigPath = "FLOWBRIDGE_CONFIG"

// DefaultTrustedServiceHosts are the Bot Framework connector hosts replies may
// be sent to when app credentials are configured. A leading "*." matches any
// subdomain.
var DefaultTrustedServiceHosts = []string{
	"*.botframework.com",
	"*.botframework.azure.us",
	"*.trafficmanager.net",
}

const (
	DefaultDialogProvider        = "voiceflow"
	DefaultRequestTimeoutSeconds = 10
	DefaultBotFrameworkHost      = "0.0.0.0"
	DefaultBotFrameworkPort      = 3978
	DefaultSendTimeoutSeconds    = 15
	DefaultGatewayHost           = "0.0.0.0"
	DefaultGatewayPort           = 18790
)

// Config is the root runtime configuration loaded from config.json and the environment.
type Config struct {
	Dialog   DialogConfig   `json:"dialog"`
	Channels ChannelsConfig `json:"channels"`
	Gateway  GatewayConfig  `json:"gateway"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// DialogConfig selects and configures the remote dialogue runtime.
type DialogConfig struct {
	Provider  string          `env:"FLOWBRIDGE_DIALOG_PROVIDER" json:"provider"`
	Voiceflow VoiceflowConfig `json:"voiceflow"`
}

// VoiceflowConfig configures the Voiceflow Dialog Manager runtime client.
type VoiceflowConfig struct {
	RuntimeEndpoint       string `env:"VOICEFLOW_RUNTIME_ENDPOINT"          json:"runtime_endpoint"`
	APIKey                string `env:"VOICEFLOW_API_KEY"                   json:"api_key"`
	VersionID             string `env:"VOICEFLOW_VERSION"                   json:"version_id"`
	RequestTimeoutSeconds int    `env:"VOICEFLOW_REQUEST_TIMEOUT_SECONDS"   json:"request_timeout_seconds"`
	TTS                   bool   `env:"VOICEFLOW_TTS"                       json:"tts"`
	StripSSML             bool   `env:"VOICEFLOW_STRIP_SSML"                json:"strip_ssml"`
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	BotFramework BotFrameworkConfig `json:"botframework"`
	Telegram     TelegramConfig     `json:"telegram"`
}

// BotFrameworkConfig configures the Bot Framework activity endpoint.
type BotFrameworkConfig struct {
	Enabled            bool   `env:"FLOWBRIDGE_BOTFRAMEWORK_ENABLED" json:"enabled"`
	AppID              string `env:"MicrosoftAppId"                  json:"app_id"`
	AppPassword        string `env:"MicrosoftAppPassword"            json:"app_password"`
	Host               string `env:"FLOWBRIDGE_BOTFRAMEWORK_HOST"    json:"host"`
	Port               int    `env:"PORT"                            json:"port"`
	PublicURL          string `env:"AZURE_APP_URL"                   json:"public_url"`
	SendTimeoutSeconds int    `env:"FLOWBRIDGE_BOTFRAMEWORK_SEND_TIMEOUT_SECONDS" json:"send_timeout_seconds"`

	// TrustedServiceHosts limits the serviceUrl hosts that receive the bot's
	// connector token. Empty means DefaultTrustedServiceHosts.
	TrustedServiceHosts []string `env:"FLOWBRIDGE_BOTFRAMEWORK_TRUSTED_SERVICE_HOSTS" json:"trusted_service_hosts" envSeparator:","`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled   bool     `env:"FLOWBRIDGE_TELEGRAM_ENABLED" json:"enabled"`
	Token     string   `env:"TELEGRAM_BOT_TOKEN"          json:"token"`
	AllowFrom []string `env:"TELEGRAM_ALLOW_FROM"         json:"allow_from" envSeparator:","`
}

// GatewayConfig configures the status server bind settings.
type GatewayConfig struct {
	Host string `env:"FLOWBRIDGE_GATEWAY_HOST" json:"host"`
	Port int    `env:"FLOWBRIDGE_GATEWAY_PORT" json:"port"`
}

// Default returns the configuration used when no config file is present.
func Default() *Config {
	return &Config{
		Dialog: DialogConfig{
			Provider: DefaultDialogProvider,
			Voiceflow: VoiceflowConfig{
				RequestTimeoutSeconds: DefaultRequestTimeoutSeconds,
			},
		},
		Channels: ChannelsConfig{
			BotFramework: BotFrameworkConfig{
				Enabled:            true,
				Host:               DefaultBotFrameworkHost,
				Port:               DefaultBotFrameworkPort,
				SendTimeoutSeconds: DefaultSendTimeoutSeconds,
			},
		},
		Gateway: GatewayConfig{
			Host: DefaultGatewayHost,
			Port: DefaultGatewayPort,
		},
	}
}

// LoadConfig layers config.json (when present) and environment overrides on top of Default.
func LoadConfig() (*Config, error) {
	cfg := Default()

	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	if configPath != "" {
		content, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := json.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides injects env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse environment overrides: %w", err)
	}

	cfg.Channels.Telegram.AllowFrom = compact(cfg.Channels.Telegram.AllowFrom)
	cfg.Channels.BotFramework.TrustedServiceHosts = compact(cfg.Channels.BotFramework.TrustedServiceHosts)
	return nil
}

// compact trims values and drops empty entries.
func compact(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	clean := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is FLOWBRIDGE_CONFIG first, then cwd-local fallback paths. An empty
// path with a nil error means no config file exists and defaults apply.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat %s: %w", candidate, err)
		}
	}

	return "", nil
}
