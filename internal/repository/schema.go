package repository

// Schema definitions for the riskview development store.
// Compatible with both SQLite and PostgreSQL.

// Amounts are stored as decimal text so no precision is lost on either driver.
const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id BIGINT PRIMARY KEY,
    transaction_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    recipient_id TEXT NOT NULL,
    amount TEXT NOT NULL,
    transaction_time TIMESTAMP,
    is_fraud INTEGER NOT NULL DEFAULT 0,
    fraud_probability REAL,
    decision TEXT NOT NULL DEFAULT '',
    device_model TEXT NOT NULL DEFAULT '',
    os_version TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions(customer_id);
CREATE INDEX IF NOT EXISTS idx_transactions_time ON transactions(transaction_time);
CREATE INDEX IF NOT EXISTS idx_transactions_fraud ON transactions(is_fraud);
`

const schemaCustomerBehavior = `
CREATE TABLE IF NOT EXISTS customer_behavior (
    customer_id TEXT PRIMARY KEY,
    device_changes INTEGER NOT NULL DEFAULT 0,
    os_changes INTEGER NOT NULL DEFAULT 0,
    logins_last_7_days INTEGER NOT NULL DEFAULT 0,
    logins_last_30_days INTEGER NOT NULL DEFAULT 0,
    login_frequency_change REAL NOT NULL DEFAULT 0,
    latest_phone_model TEXT NOT NULL DEFAULT '',
    latest_os_version TEXT NOT NULL DEFAULT '',
    burstiness_score REAL NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaCustomerBehavior,
	}
}
