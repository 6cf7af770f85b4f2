// Package backend opens the record store selected by configuration.
package backend

import (
	"context"

	"fintrack/internal/storage"
)

// CleanupFunc releases the store's resources.
type CleanupFunc func() error

// PingFunc reports whether the store can serve requests.
type PingFunc func(ctx context.Context) error

// BackendResult contains the store and its lifecycle hooks. Cleanup and Ping
// are never nil.
type BackendResult struct {
	Store   storage.KV
	Cleanup CleanupFunc
	Ping    PingFunc
}

// Factory creates stores based on configuration.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for store creation.
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Memory specific; empty means start empty
	SeedFile string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
