package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "FRONTDESK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "FRONTDESK_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "escalation.timeout", typ: kString, env: "FRONTDESK_ESCALATION_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Escalation.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Escalation.Timeout },
	},
	{
		key: "escalation.sweep_interval", typ: kString, env: "FRONTDESK_ESCALATION_SWEEP_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Escalation.SweepInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Escalation.SweepInterval },
	},
	{
		key: "notify.webhook_url", typ: kString, env: "FRONTDESK_NOTIFY_WEBHOOK_URL",
		apply:   func(cfg *Config, v any) { cfg.Notify.WebhookURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Notify.WebhookURL },
	},
	{
		key: "mail.host", typ: kString, env: "FRONTDESK_MAIL_HOST",
		apply:   func(cfg *Config, v any) { cfg.Mail.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Mail.Host },
	},
	{
		key: "mail.port", typ: kInt, env: "FRONTDESK_MAIL_PORT",
		apply:   func(cfg *Config, v any) { cfg.Mail.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Mail.Port },
	},
	{
		key: "mail.user", typ: kString, env: "FRONTDESK_MAIL_USER",
		apply:   func(cfg *Config, v any) { cfg.Mail.User = v.(string) },
		extract: func(cfg Config) any { return cfg.Mail.User },
	},
	{
		key: "mail.password", typ: kString, env: "FRONTDESK_MAIL_PASSWORD",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Mail.Password = v.(string) },
		extract: func(cfg Config) any { return cfg.Mail.Password },
	},
	{
		key: "mail.from", typ: kString, env: "FRONTDESK_MAIL_FROM",
		apply:   func(cfg *Config, v any) { cfg.Mail.From = v.(string) },
		extract: func(cfg Config) any { return cfg.Mail.From },
	},
	{
		key: "mail.to", typ: kString, env: "FRONTDESK_MAIL_TO",
		apply:   func(cfg *Config, v any) { cfg.Mail.To = v.(string) },
		extract: func(cfg Config) any { return cfg.Mail.To },
	},
	{
		key: "api.token", typ: kString, env: "FRONTDESK_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.API.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.API.Token },
	},
	{
		key: "log.level", typ: kString, env: "FRONTDESK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
