package backend

import (
	"context"
	"time"

	"expensetracker/internal/remote"
	"expensetracker/internal/services"
	"expensetracker/internal/storage"
)

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// BackendResult is the wired local store, remote collection and the services built on them.
type BackendResult struct {
	Store      *storage.SQLiteRepository
	Remote     remote.Remote
	Reconciler *services.Reconciler
	Browser    *services.Browser
	// Publishing reports whether results are sent to the AMQP feed.
	Publishing bool
	Cleanup    CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	// Remote backend type
	Type BackendType

	SQLiteDBPath  string
	RemoteTimeout time.Duration

	// AMQP result feed, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// HTTP specific
	RemoteBaseURL string

	// Google Sheets specific
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// Memory backend seed directory
	DataDirectory string
}

// BackendType names the remote collection implementation.
type BackendType string

const (
	HTTPBackend   BackendType = "http"
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case HTTPBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
