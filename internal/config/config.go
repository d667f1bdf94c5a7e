package config

import (
	"fmt"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Escalation EscalationConfig
	Notify     NotifyConfig
	Mail       MailConfig
	API        APIConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

// EscalationConfig carries the timeout policy as duration strings
// (e.g. "2h", "90s"); parsing happens at startup with a fallback.
type EscalationConfig struct {
	Timeout       string
	SweepInterval string
}

type NotifyConfig struct {
	// WebhookURL is the inbound gateway endpoint for caller notifications.
	// Empty means notifications go to the process log only.
	WebhookURL string
}

type MailConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	To       string
}

type APIConfig struct {
	Token string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8000,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Escalation: EscalationConfig{
			Timeout:       "2h",
			SweepInterval: "1m",
		},
		Mail: MailConfig{
			Port: 587,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a JSON file at
// $XDG_CONFIG_HOME/frontdesk/config.json, then applies FRONTDESK_*
// environment variables on top. A .env file in the working directory is
// loaded first if present. Secrets (API token, SMTP password) come from the
// environment only.
func Load() (Config, error) {
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	// Optional .env for local development; absence is not an error.
	_ = godotenv.Load()

	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.API.Token == "" {
		return Config{}, fmt.Errorf("missing required config: API token. Set it via environment variable FRONTDESK_API_TOKEN")
	}

	return cfg, nil
}
