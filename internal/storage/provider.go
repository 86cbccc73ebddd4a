// Package storage defines the durable key-value namespace Bowen persists into.
package storage

import "time"

// EntryInfo is lightweight metadata about one stored entry, used by the
// index sync and watcher to skip unchanged snapshots.
type EntryInfo struct {
	Key       string
	Checksum  string
	UpdatedAt time.Time
}

// Provider is the interface for durable key-value operations. Each key maps
// to an independently addressable entry; writes are full replacements.
type Provider interface {
	// Get returns the raw bytes stored under key. A missing key yields an
	// error satisfying errors.Is(err, os.ErrNotExist).
	Get(key string) ([]byte, error)
	// Set atomically replaces the entry stored under key.
	Set(key string, data []byte) error
	// Delete removes the entry stored under key.
	Delete(key string) error
	// List returns metadata for every stored entry.
	List() ([]EntryInfo, error)
}
