// Package storage persists the watcher's progress between restarts.
//
// It currently supports:
//   - Loop state (cursor + last delivered message)
//   - An append-only journal of delivery attempts
package storage
