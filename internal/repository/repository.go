// Package repository provides data persistence for the development
// statistics backend.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/riskview/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

const transactionColumns = `id, transaction_id, customer_id, recipient_id, amount,
	transaction_time, is_fraud, fraud_probability, decision, device_model, os_version`

// SaveTransaction inserts or replaces a transaction.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.TransactionRecord) error {
	if tx == nil || tx.ID <= 0 {
		return fmt.Errorf("%w: transaction id must be positive", ErrInvalidInput)
	}
	if strings.TrimSpace(tx.CustomerID) == "" {
		return fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			transaction_id = excluded.transaction_id,
			customer_id = excluded.customer_id,
			recipient_id = excluded.recipient_id,
			amount = excluded.amount,
			transaction_time = excluded.transaction_time,
			is_fraud = excluded.is_fraud,
			fraud_probability = excluded.fraud_probability,
			decision = excluded.decision,
			device_model = excluded.device_model,
			os_version = excluded.os_version
	`

	var ts sql.NullTime
	if !tx.Timestamp.IsZero() {
		ts = sql.NullTime{Time: tx.Timestamp.UTC(), Valid: true}
	}
	var probability sql.NullFloat64
	if tx.FraudProbability != nil {
		probability = sql.NullFloat64{Float64: *tx.FraudProbability, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.TransactionID, tx.CustomerID, tx.RecipientID,
		tx.Amount.String(), ts, boolToInt(tx.IsFraud), probability,
		string(tx.Decision), tx.DeviceModel, tx.OSVersion,
	)
	return err
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, id int64) (*domain.TransactionRecord, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ListTransactions returns transactions newest first. A non-positive limit
// returns every row from offset on.
func (r *SQLRepository) ListTransactions(ctx context.Context, offset, limit int) ([]domain.TransactionRecord, error) {
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions
		ORDER BY transaction_time DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	} else if offset > 0 {
		// SQLite requires a LIMIT before OFFSET; -1 means unbounded there
		if r.driver == "postgres" {
			query += ` OFFSET ?`
		} else {
			query += ` LIMIT -1 OFFSET ?`
		}
		args = append(args, offset)
	}

	return r.queryTransactions(ctx, query, args...)
}

// ListTransactionsByCustomer returns a customer's transactions oldest first.
func (r *SQLRepository) ListTransactionsByCustomer(ctx context.Context, customerID string) ([]domain.TransactionRecord, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE customer_id = ?
		ORDER BY transaction_time ASC, id ASC`
	return r.queryTransactions(ctx, query, customerID)
}

// CountTransactions returns the number of stored transactions.
func (r *SQLRepository) CountTransactions(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n)
	return n, err
}

// UpdateScore records a model score and decision on a transaction.
func (r *SQLRepository) UpdateScore(ctx context.Context, id int64, probability float64, decision domain.Decision) error {
	if probability < 0 || probability > 1 {
		return fmt.Errorf("%w: probability %v outside [0,1]", ErrInvalidInput, probability)
	}
	query := `UPDATE transactions SET fraud_probability = ?, decision = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), probability, string(decision), id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveBehavior inserts or replaces the behavioral counters of a customer.
func (r *SQLRepository) SaveBehavior(ctx context.Context, b *domain.CustomerBehavior) error {
	if b == nil || strings.TrimSpace(b.CustomerID) == "" {
		return fmt.Errorf("%w: customer id is required", ErrInvalidInput)
	}
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO customer_behavior (
			customer_id, device_changes, os_changes, logins_last_7_days,
			logins_last_30_days, login_frequency_change, latest_phone_model,
			latest_os_version, burstiness_score, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (customer_id) DO UPDATE SET
			device_changes = excluded.device_changes,
			os_changes = excluded.os_changes,
			logins_last_7_days = excluded.logins_last_7_days,
			logins_last_30_days = excluded.logins_last_30_days,
			login_frequency_change = excluded.login_frequency_change,
			latest_phone_model = excluded.latest_phone_model,
			latest_os_version = excluded.latest_os_version,
			burstiness_score = excluded.burstiness_score,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		b.CustomerID, b.DeviceChanges, b.OSChanges, b.LoginsLast7Days,
		b.LoginsLast30Days, b.LoginFrequencyChange, b.LatestPhoneModel,
		b.LatestOSVersion, b.BurstinessScore, b.UpdatedAt.UTC(),
	)
	return err
}

const behaviorColumns = `customer_id, device_changes, os_changes, logins_last_7_days,
	logins_last_30_days, login_frequency_change, latest_phone_model,
	latest_os_version, burstiness_score, updated_at`

// GetBehavior retrieves the behavioral counters of a customer.
func (r *SQLRepository) GetBehavior(ctx context.Context, customerID string) (*domain.CustomerBehavior, error) {
	query := `SELECT ` + behaviorColumns + ` FROM customer_behavior WHERE customer_id = ?`

	b, err := scanBehavior(r.db.QueryRowContext(ctx, r.rebind(query), customerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListBehaviors returns the counters of every customer.
func (r *SQLRepository) ListBehaviors(ctx context.Context) ([]domain.CustomerBehavior, error) {
	query := `SELECT ` + behaviorColumns + ` FROM customer_behavior ORDER BY customer_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CustomerBehavior
	for rows.Next() {
		b, err := scanBehavior(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func (r *SQLRepository) queryTransactions(ctx context.Context, query string, args ...any) ([]domain.TransactionRecord, error) {
	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.TransactionRecord{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *tx)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.TransactionRecord, error) {
	var (
		tx          domain.TransactionRecord
		amount      string
		ts          sql.NullTime
		isFraud     int
		probability sql.NullFloat64
		decision    string
	)
	err := row.Scan(
		&tx.ID, &tx.TransactionID, &tx.CustomerID, &tx.RecipientID, &amount,
		&ts, &isFraud, &probability, &decision, &tx.DeviceModel, &tx.OSVersion,
	)
	if err != nil {
		return nil, err
	}

	tx.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("transaction %d has invalid amount %q: %w", tx.ID, amount, err)
	}
	if ts.Valid {
		tx.Timestamp = ts.Time
	}
	tx.IsFraud = isFraud != 0
	if probability.Valid {
		p := probability.Float64
		tx.FraudProbability = &p
	}
	tx.Decision = domain.Decision(decision)
	return &tx, nil
}

func scanBehavior(row rowScanner) (*domain.CustomerBehavior, error) {
	var b domain.CustomerBehavior
	err := row.Scan(
		&b.CustomerID, &b.DeviceChanges, &b.OSChanges, &b.LoginsLast7Days,
		&b.LoginsLast30Days, &b.LoginFrequencyChange, &b.LatestPhoneModel,
		&b.LatestOSVersion, &b.BurstinessScore, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
