package config

import (
	"maps"
	"strings"
	"time"
)

const (
	DefaultEndpoint      = "https://practicum.yandex.ru/api/user_api/homework_statuses/"
	DefaultAuthScheme    = "OAuth"
	DefaultCursorParam   = "from_date"
	DefaultSourceTimeout = 30 * time.Second
	DefaultPollInterval  = 600 * time.Second

	DefaultLogMaxSizeMB  = 50
	DefaultLogMaxBackups = 5
)

// DefaultVerdicts are the texts for the reference deployment's status codes.
func DefaultVerdicts() map[string]string {
	return map[string]string{
		"approved":  "The work has been reviewed: the reviewer liked everything. Hooray!",
		"reviewing": "The work has been taken for review by a reviewer.",
		"rejected":  "The work has been reviewed: the reviewer has remarks.",
	}
}

// Default is the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{Logging: LoggingConfig{Console: true}}
	applyDefaults(cfg)
	return cfg
}

// referenceFields is the payload shape of DefaultEndpoint.
var referenceFields = SourceFields{
	Records: "homeworks",
	Advance: "current_date",
	Name:    "homework_name",
	Status:  "status",
}

// applyDefaults fills omitted values in place.
func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Source.Endpoint) == "" {
		cfg.Source.Endpoint = DefaultEndpoint
	}
	if cfg.Source.Endpoint == DefaultEndpoint && cfg.Source.Fields == (SourceFields{}) {
		cfg.Source.Fields = referenceFields
	}
	if strings.TrimSpace(cfg.Source.AuthScheme) == "" {
		cfg.Source.AuthScheme = DefaultAuthScheme
	}
	if strings.TrimSpace(cfg.Source.CursorParam) == "" {
		cfg.Source.CursorParam = DefaultCursorParam
	}
	if len(cfg.Verdicts) == 0 {
		cfg.Verdicts = DefaultVerdicts()
	} else {
		cfg.Verdicts = maps.Clone(cfg.Verdicts)
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.File.Enabled && cfg.Logging.File.MaxSizeMB == 0 {
		cfg.Logging.File.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if cfg.Logging.File.Enabled && cfg.Logging.File.MaxBackups == nil {
		n := DefaultLogMaxBackups
		cfg.Logging.File.MaxBackups = &n
	}
}
