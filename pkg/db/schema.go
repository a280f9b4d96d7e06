// Package db provides the SQLite transaction store. Source fields live in
// columns; plaid2text metadata is an embedded JSON document.
package db

import "context"

// Schema defines the SQL statements to create database tables.
const Schema = `
-- Downloaded transactions, one row per source transaction.
CREATE TABLE IF NOT EXISTS transactions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    plaid_account TEXT NOT NULL,       -- configured account nickname
    account_id TEXT NOT NULL,          -- source account id
    transaction_id TEXT NOT NULL,      -- source transaction id
    date TEXT NOT NULL,                -- YYYY-MM-DD
    amount TEXT NOT NULL,              -- signed decimal
    name TEXT NOT NULL,
    pending INTEGER NOT NULL DEFAULT 0,
    source TEXT NOT NULL DEFAULT '{}', -- JSON: remaining source fields
    plaid2text TEXT NOT NULL,          -- JSON: classification metadata
    UNIQUE(account_id, transaction_id)
);

CREATE INDEX IF NOT EXISTS idx_transactions_account_date
    ON transactions(plaid_account, date);

CREATE INDEX IF NOT EXISTS idx_transactions_txn_id
    ON transactions(transaction_id);
`

// InitializeSchema creates all tables if they don't exist.
func InitializeSchema(conn *Connection) error {
	if _, err := conn.Exec(context.Background(), Schema); err != nil {
		return err
	}
	return nil
}
