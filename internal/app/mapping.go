package app

import (
	"fmt"
	"strings"
	"time"

	"statusbot/internal/config"
	"statusbot/internal/schedule"
	"statusbot/internal/source/httpsource"
	"statusbot/internal/storage"
	"statusbot/internal/transport/telegram"
	"statusbot/internal/watch"
	logx "statusbot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		if path == "" {
			path = "./statusbot"
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	backups := config.DefaultLogMaxBackups
	if cfg.Logging.File.MaxBackups != nil {
		backups = *cfg.Logging.File.MaxBackups
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled:    cfg.Logging.File.Enabled,
			Path:       cfg.Logging.File.Path,
			MaxSizeMB:  cfg.Logging.File.MaxSizeMB,
			MaxBackups: backups,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapSourceConfig(cfg *config.Config) (httpsource.Config, error) {
	timeout, err := config.ParseDurationOrDefault("source.timeout", cfg.Source.Timeout, config.DefaultSourceTimeout)
	if err != nil {
		return httpsource.Config{}, err
	}
	return httpsource.Config{
		Endpoint:    strings.TrimSpace(cfg.Source.Endpoint),
		Token:       strings.TrimSpace(cfg.Source.Token),
		AuthScheme:  cfg.Source.AuthScheme,
		CursorParam: cfg.Source.CursorParam,
		Timeout:     timeout,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (telegram.Config, error) {
	chatID, err := cfg.Telegram.ParseChatID()
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:      strings.TrimSpace(cfg.Telegram.Token),
		ChatID:     chatID,
		ThreadID:   cfg.Telegram.ThreadID,
		RatePerSec: cfg.Telegram.RatePerSec,
		APIURL:     cfg.Telegram.APIURL,
	}, nil
}

// mapSettings builds the hot-reloadable loop settings.
func mapSettings(cfg *config.Config) (watch.Settings, string, error) {
	var cadence schedule.Cadence
	if s := strings.TrimSpace(cfg.Poll.Schedule); s != "" {
		spec, err := schedule.Parse(s)
		if err != nil {
			return watch.Settings{}, "", fmt.Errorf("poll.schedule: %w", err)
		}
		cadence = schedule.NewCadence(spec, time.Local)
	} else {
		every, err := config.ParseSecondsOrDuration("poll.interval", cfg.Poll.Interval.String(), config.DefaultPollInterval)
		if err != nil {
			return watch.Settings{}, "", err
		}
		cadence = schedule.Every(every)
	}

	f := cfg.Source.Fields
	return watch.Settings{
		Fields: watch.Fields{
			Records: f.Records,
			Advance: f.Advance,
			Name:    f.Name,
			Status:  f.Status,
		},
		Verdicts:                    cfg.Verdicts,
		Cadence:                     cadence,
		HoldCursorOnDeliveryFailure: cfg.Poll.HoldCursorOnDeliveryFailure,
	}, cadence.String(), nil
}
