package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel             = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens         = 8192
	DefaultMaxToolIterations = 20
	DefaultHost              = "0.0.0.0"
	DefaultPort              = 18791
	DefaultBufSize           = 100
	DefaultOwner             = "default"
	DefaultPollIntervalSec   = 30
	DefaultSnoozeMinutes     = 5
	DefaultDigestSpec        = "0 0 8 * * *"
)

type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Provider  ProviderConfig  `json:"provider"`
	Channels  ChannelsConfig  `json:"channels"`
	Gateway   GatewayConfig   `json:"gateway"`
	Store     StoreConfig     `json:"store"`
	Reminders RemindersConfig `json:"reminders"`
	Digest    DigestConfig    `json:"digest"`
	Persona   PersonaConfig   `json:"persona"`
}

type AgentConfig struct {
	Workspace         string `json:"workspace"`
	Model             string `json:"model"`
	MaxTokens         int    `json:"maxTokens"`
	MaxToolIterations int    `json:"maxToolIterations"`
	Owner             string `json:"owner"`
}

type ProviderConfig struct {
	Type    string `json:"type,omitempty"` // "anthropic" (default) or "openai"
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	WebUI    WebUIConfig    `json:"webui"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
	NotifyTo  string   `json:"notifyTo,omitempty"` // chat id for reminder delivery
}

type WebUIConfig struct {
	Enabled   bool     `json:"enabled"`
	AllowFrom []string `json:"allowFrom"`
}

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type StoreConfig struct {
	DBPath string `json:"dbPath,omitempty"`
}

type RemindersConfig struct {
	PollIntervalSec int `json:"pollIntervalSec,omitempty"`
	SnoozeMinutes   int `json:"snoozeMinutes,omitempty"`
}

type DigestConfig struct {
	Enabled bool   `json:"enabled"`
	Spec    string `json:"spec,omitempty"` // 6-field cron expression
	Channel string `json:"channel,omitempty"`
	To      string `json:"to,omitempty"`
}

type PersonaConfig struct {
	Dir string `json:"dir,omitempty"`
}

func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Agent: AgentConfig{
			Workspace:         filepath.Join(home, ".taskclaw", "workspace"),
			Model:             DefaultModel,
			MaxTokens:         DefaultMaxTokens,
			MaxToolIterations: DefaultMaxToolIterations,
			Owner:             DefaultOwner,
		},
		Provider: ProviderConfig{},
		Channels: ChannelsConfig{},
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Reminders: RemindersConfig{
			PollIntervalSec: DefaultPollIntervalSec,
			SnoozeMinutes:   DefaultSnoozeMinutes,
		},
		Digest: DigestConfig{
			Spec: DefaultDigestSpec,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".taskclaw")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("TASKCLAW_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
		if cfg.Provider.Type == "" {
			cfg.Provider.Type = "openai"
		}
	}
	if url := os.Getenv("TASKCLAW_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if url := os.Getenv("ANTHROPIC_BASE_URL"); url != "" && cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = url
	}
	if token := os.Getenv("TASKCLAW_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if dbPath := os.Getenv("TASKCLAW_DB_PATH"); dbPath != "" {
		cfg.Store.DBPath = dbPath
	}
	if poll := os.Getenv("TASKCLAW_POLL_INTERVAL_SEC"); poll != "" {
		if parsed, err := strconv.Atoi(poll); err == nil && parsed > 0 {
			cfg.Reminders.PollIntervalSec = parsed
		}
	}

	if cfg.Agent.Workspace == "" {
		cfg.Agent.Workspace = DefaultConfig().Agent.Workspace
	}
	if cfg.Agent.Owner == "" {
		cfg.Agent.Owner = DefaultOwner
	}
	if cfg.Reminders.PollIntervalSec <= 0 {
		cfg.Reminders.PollIntervalSec = DefaultPollIntervalSec
	}
	if cfg.Reminders.SnoozeMinutes <= 0 {
		cfg.Reminders.SnoozeMinutes = DefaultSnoozeMinutes
	}
	if cfg.Digest.Spec == "" {
		cfg.Digest.Spec = DefaultDigestSpec
	}
	if cfg.Store.DBPath == "" {
		cfg.Store.DBPath = filepath.Join(ConfigDir(), "data", "tasks.db")
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
