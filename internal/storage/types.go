package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (json snapshot + jsonl journal)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled and the loop keeps its
// state in memory only.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// State is the loop progress worth surviving a restart.
type State struct {
	Cursor      int64     `json:"cursor"`
	LastMessage string    `json:"last_message"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DeliveryEntry records one attempt to send a notification.
// Keep it compact and schema-stable.
type DeliveryEntry struct {
	At    time.Time `json:"at"`
	Kind  string    `json:"kind"` // "status" | "diagnostic"
	Text  string    `json:"text"`
	OK    bool      `json:"ok"`
	Error string    `json:"err,omitempty"`
}
