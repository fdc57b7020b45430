package storage

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/finance/pkg/models"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")
)

// PlanRecord is the persisted form of a finance plan
type PlanRecord struct {
	Name    string            `json:"name"`
	Kind    string            `json:"kind"`
	Options map[string]string `json:"options"`
}

// UserStore persists finance users. SaveUser must be called while holding
// the user lock.
type UserStore interface {
	SaveUser(ctx context.Context, user *models.FinanceUser) error
	RemoveUser(ctx context.Context, id models.UserID) error
	LoadUsers(ctx context.Context) ([]*models.FinanceUser, error)
}

// PlanStore persists finance plan definitions
type PlanStore interface {
	SavePlan(ctx context.Context, plan PlanRecord) error
	RemovePlan(ctx context.Context, name string) error
	LoadPlans(ctx context.Context) ([]PlanRecord, error)
}

// HealthChecker reports backend health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Store is the unified persistence interface used by the finance service
type Store interface {
	UserStore
	PlanStore
	HealthChecker
	Close() error
}

// InvoiceArchive keeps a durable copy of every generated invoice
type InvoiceArchive interface {
	ArchiveInvoice(ctx context.Context, invoice *models.Invoice) error
}

// Config for storage backend
type Config struct {
	Type string // "filesystem", "postgres", "sqlite", "memory"

	// Filesystem config
	FilesystemRoot string

	// PostgreSQL config
	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration

	// SQLite config
	SQLitePath string

	// S3 invoice archive config
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
	S3Prefix       string
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:             "filesystem",
		FilesystemRoot:   "/tmp/finance",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		SQLitePath:       "/tmp/finance.db",
		S3Region:         "us-east-1",
		S3Prefix:         "invoices",
	}
}
