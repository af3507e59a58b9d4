// Package backend builds the storage backend and the optional event bus
// from configuration.
package backend

import (
	"context"

	"kakeibo/internal/amqp"
	"kakeibo/internal/services"
	"kakeibo/internal/storage"
)

// CleanupFunc releases what a backend holds open.
type CleanupFunc func() error

// Result is a ready store plus the event client, which is nil when events are
// disabled or the broker was unreachable at startup.
type Result struct {
	Store   storage.Store
	Events  *amqp.Client
	Cleanup CleanupFunc
}

// Publisher returns the event client as a services.EventPublisher, or nil.
func (r *Result) Publisher() services.EventPublisher {
	if r.Events == nil {
		return nil
	}
	return r.Events
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// AMQP, optional for every backend
	AMQPURL        string
	AMQPExchange   string
	AMQPQueue      string
	WorkerPrefetch int
	AMQPBindings   []string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
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
