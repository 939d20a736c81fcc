// Package domain defines the core types, configuration and collaborator
// interfaces shared by riskview's analytics layer and its services.
package domain

import (
	"context"
	"time"
)

// Repository is the store behind the development statistics backend.
// The analytics core never touches it; it only sees fetched snapshots.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tx *TransactionRecord) error
	GetTransaction(ctx context.Context, id int64) (*TransactionRecord, error)
	ListTransactions(ctx context.Context, offset, limit int) ([]TransactionRecord, error)
	ListTransactionsByCustomer(ctx context.Context, customerID string) ([]TransactionRecord, error)
	CountTransactions(ctx context.Context) (int64, error)
	UpdateScore(ctx context.Context, id int64, probability float64, decision Decision) error

	// Customer behavior operations
	SaveBehavior(ctx context.Context, b *CustomerBehavior) error
	GetBehavior(ctx context.Context, customerID string) (*CustomerBehavior, error)
	ListBehaviors(ctx context.Context) ([]CustomerBehavior, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CustomerBehavior holds the behavioral counters tracked per customer.
type CustomerBehavior struct {
	CustomerID           string    `json:"customerId"`
	DeviceChanges        int       `json:"deviceChanges"`
	OSChanges            int       `json:"osChanges"`
	LoginsLast7Days      int       `json:"loginsLast7Days"`
	LoginsLast30Days     int       `json:"loginsLast30Days"`
	LoginFrequencyChange float64   `json:"loginFrequencyChange"`
	LatestPhoneModel     string    `json:"latestPhoneModel,omitempty"`
	LatestOSVersion      string    `json:"latestOsVersion,omitempty"`
	BurstinessScore      float64   `json:"burstinessScore"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
