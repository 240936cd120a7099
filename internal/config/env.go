package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// envOverlay holds the environment variables that override the config file.
// Secrets are expected to arrive this way.
type envOverlay struct {
	SourceToken    string `env:"SOURCE_TOKEN"`
	PracticumToken string `env:"PRACTICUM_TOKEN"`
	SourceEndpoint string `env:"SOURCE_ENDPOINT"`
	TelegramToken  string `env:"TELEGRAM_TOKEN"`
	TelegramChatID string `env:"TELEGRAM_CHAT_ID"`
	PollInterval   string `env:"POLL_INTERVAL"`
	LogLevel       string `env:"LOG_LEVEL"`
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set are kept. A missing file is not an error.
func LoadDotEnv(path string) (bool, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// applyEnv overlays environment values on cfg. A nil environ reads the
// process environment.
func applyEnv(cfg *Config, environ map[string]string) error {
	var o envOverlay
	var err error
	if environ == nil {
		err = env.Parse(&o)
	} else {
		err = env.ParseWithOptions(&o, env.Options{Environment: environ})
	}
	if err != nil {
		return err
	}

	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	// PRACTICUM_TOKEN is the legacy name; SOURCE_TOKEN wins when both are set.
	set(&cfg.Source.Token, o.PracticumToken)
	set(&cfg.Source.Token, o.SourceToken)
	set(&cfg.Source.Endpoint, o.SourceEndpoint)
	set(&cfg.Telegram.Token, o.TelegramToken)
	set(&cfg.Logging.Level, o.LogLevel)
	if v := strings.TrimSpace(o.TelegramChatID); v != "" {
		cfg.Telegram.ChatID = Flex(v)
	}
	if v := strings.TrimSpace(o.PollInterval); v != "" {
		cfg.Poll.Interval = Flex(v)
	}
	return nil
}
