// Package backend builds the store, Firebase app and event publisher a
// process needs from its configuration.
package backend

import (
	"context"
	"time"

	firebase "firebase.google.com/go/v4"

	"charity/internal/amqp"
	"charity/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds what CreateBackend opened. App is nil unless the
// firebase backend or Firebase auth was requested; Publisher is nil unless
// an AMQP URL was configured and the broker was reachable.
type BackendResult struct {
	Store     store.Store
	App       *firebase.App
	Publisher *amqp.Client
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Firebase specific
	FirebaseDatabaseURL     string
	FirebaseCredentialsFile string
	FirebaseAuth            bool

	// Subscriptions on polling backends
	PollInterval time.Duration

	// Optional event publishing
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType represents the type of backend
type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	FirebaseBackend BackendType = "firebase"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, FirebaseBackend:
		return true
	default:
		return false
	}
}
