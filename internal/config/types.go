package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type Config struct {
	Source   SourceConfig      `json:"source"`
	Telegram TelegramConfig    `json:"telegram"`
	Poll     PollConfig        `json:"poll"`
	Verdicts map[string]string `json:"verdicts,omitempty"`
	Logging  LoggingConfig     `json:"logging"`
	Storage  *StorageConfig    `json:"storage,omitempty"`
}

// SourceConfig describes the polled status endpoint.
//
// The request is GET <endpoint>?<cursor_param>=<cursor> with the header
// "Authorization: <auth_scheme> <token>".
type SourceConfig struct {
	Endpoint    string `json:"endpoint"`
	Token       string `json:"token,omitempty"` // do not log
	AuthScheme  string `json:"auth_scheme,omitempty"`
	CursorParam string `json:"cursor_param,omitempty"`
	// Timeout is a Go duration string (e.g. "30s").
	Timeout string       `json:"timeout,omitempty"`
	Fields  SourceFields `json:"fields,omitempty"`
}

// SourceFields maps the wire keys of the status payload.
// Empty values fall back to records/advance/name/status.
type SourceFields struct {
	Records string `json:"records,omitempty"`
	Advance string `json:"advance,omitempty"`
	Name    string `json:"name,omitempty"`
	Status  string `json:"status,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"` // do not log
	// ChatID accepts a number or a numeric string.
	ChatID     Flex `json:"chat_id,omitempty"`
	ThreadID   int  `json:"thread_id,omitempty"`
	RatePerSec int  `json:"rate_per_sec,omitempty"`
	// APIURL overrides the Bot API base URL (self-hosted bot API servers).
	APIURL string `json:"api_url,omitempty"`
}

// PollConfig controls the cadence of the watch loop.
//
// Interval accepts a Go duration ("10m") or integer seconds (600).
// Schedule, when set, overrides Interval and accepts the scheduler grammar
// (cron expressions, "HH:MM", durations, with cron:/interval:/every: prefixes).
type PollConfig struct {
	Interval Flex   `json:"interval,omitempty"`
	Schedule string `json:"schedule,omitempty"`

	HoldCursorOnDeliveryFailure bool `json:"hold_cursor_on_delivery_failure,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups *int   `json:"max_backups,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the optional persistence of the cursor and last message.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./statusbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// Flex is a scalar that may be written as a JSON string or a JSON number.
// It always marshals as a string.
type Flex string

func (f *Flex) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = Flex(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return fmt.Errorf("want string or number, got %s", b)
	}
	*f = Flex(n.String())
	return nil
}

func (f Flex) String() string { return string(f) }
