package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"statusbot/internal/schedule"
	"statusbot/internal/watch"
)

// Validate checks that cfg can start the watch loop. Missing credentials are
// collected into a single ConfigurationError naming every absent variable;
// other problems are reported one at a time.
func Validate(cfg *Config) error {
	if cfg == nil {
		return &watch.Error{Kind: watch.ConfigurationError, Msg: "config is nil"}
	}

	var missing []string
	if strings.TrimSpace(cfg.Source.Token) == "" {
		missing = append(missing, "SOURCE_TOKEN")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		missing = append(missing, "TELEGRAM_TOKEN")
	}
	if strings.TrimSpace(cfg.Telegram.ChatID.String()) == "" {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}
	if len(missing) > 0 {
		return &watch.Error{Kind: watch.ConfigurationError, Missing: missing}
	}

	if err := ValidateReloadable(cfg); err != nil {
		return err
	}
	if _, err := cfg.Telegram.ParseChatID(); err != nil {
		return invalid(err)
	}
	u, err := url.Parse(strings.TrimSpace(cfg.Source.Endpoint))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid(fmt.Errorf("source.endpoint: want an absolute http(s) URL, got %q", cfg.Source.Endpoint))
	}
	if _, err := ParseDurationField("source.timeout", cfg.Source.Timeout); err != nil {
		return invalid(err)
	}
	if cfg.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return invalid(err)
		}
	}
	return nil
}

// ValidateReloadable checks only the sections that can change at runtime.
func ValidateReloadable(cfg *Config) error {
	if len(cfg.Verdicts) == 0 {
		return invalid(errors.New("verdicts: at least one status code is required"))
	}
	for code, text := range cfg.Verdicts {
		if strings.TrimSpace(code) == "" || strings.TrimSpace(text) == "" {
			return invalid(fmt.Errorf("verdicts: empty code or text for %q", code))
		}
	}
	if _, err := ParseSecondsOrDuration("poll.interval", cfg.Poll.Interval.String(), DefaultPollInterval); err != nil {
		return invalid(err)
	}
	if s := strings.TrimSpace(cfg.Poll.Schedule); s != "" {
		if _, err := schedule.Parse(s); err != nil {
			return invalid(fmt.Errorf("poll.schedule: %w", err))
		}
	}
	if cfg.Logging.File.MaxSizeMB < 0 || (cfg.Logging.File.MaxBackups != nil && *cfg.Logging.File.MaxBackups < 0) {
		return invalid(errors.New("logging.file: max_size_mb and max_backups must be >= 0"))
	}
	return nil
}

// ParseChatID returns the numeric Telegram chat id.
func (t TelegramConfig) ParseChatID() (int64, error) {
	s := strings.TrimSpace(t.ChatID.String())
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram.chat_id: want an integer, got %q", s)
	}
	return id, nil
}

func invalid(err error) error {
	return &watch.Error{Kind: watch.ConfigurationError, Cause: err}
}
