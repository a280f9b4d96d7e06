package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pigeonworks-llc/plaid2text/pkg/store"
)

// TransactionRepository is the SQLite implementation of store.Store for one
// configured account.
type TransactionRepository struct {
	conn    *Connection
	account string
}

var _ store.Store = (*TransactionRepository)(nil)

// NewTransactionRepository creates a repository over an open connection.
func NewTransactionRepository(conn *Connection, account string) *TransactionRepository {
	return &TransactionRepository{conn: conn, account: account}
}

// OpenStore opens dbPath and returns a repository that owns the connection.
func OpenStore(dbPath, account string) (*TransactionRepository, error) {
	conn, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	return NewTransactionRepository(conn, account), nil
}

// Close closes the underlying connection.
func (r *TransactionRepository) Close() error {
	return r.conn.Close()
}

// SaveTransactions upserts settled transactions. On conflict only the source
// columns are refreshed; the plaid2text column is written on insert only.
func (r *TransactionRepository) SaveTransactions(ctx context.Context, batch []store.Transaction) (*store.SaveResult, error) {
	settled, skipped := store.Settled(batch)
	result := &store.SaveResult{SkippedPending: skipped}

	err := r.conn.Transaction(ctx, func(tx *sql.Tx) error {
		for _, t := range settled {
			var exists int
			err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM transactions WHERE account_id = ? AND transaction_id = ?`,
				t.AccountID, t.TransactionID,
			).Scan(&exists)
			if err != nil {
				return fmt.Errorf("failed to look up transaction %s: %w", t.TransactionID, err)
			}

			source, err := json.Marshal(sourceOrEmpty(t.Source))
			if err != nil {
				return fmt.Errorf("failed to encode source of %s: %w", t.TransactionID, err)
			}
			meta, err := json.Marshal(store.NewMetadata())
			if err != nil {
				return fmt.Errorf("failed to encode metadata of %s: %w", t.TransactionID, err)
			}

			query := `
				INSERT INTO transactions
					(plaid_account, account_id, transaction_id, date, amount, name, pending, source, plaid2text)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(account_id, transaction_id) DO UPDATE SET
					date = excluded.date,
					amount = excluded.amount,
					name = excluded.name,
					pending = excluded.pending,
					source = excluded.source
			`
			if _, err := tx.ExecContext(ctx, query,
				r.account,
				t.AccountID,
				t.TransactionID,
				t.Date.Format(store.DateLayout),
				t.Amount.String(),
				t.Name,
				t.Pending,
				string(source),
				string(meta),
			); err != nil {
				return fmt.Errorf("failed to save transaction %s: %w", t.TransactionID, err)
			}

			if exists > 0 {
				result.Updated++
			} else {
				result.Inserted++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetTransactions returns matching transactions ordered by date.
func (r *TransactionRepository) GetTransactions(ctx context.Context, q store.Query) ([]store.Transaction, error) {
	where := []string{"plaid_account = ?"}
	args := []interface{}{r.account}

	if q.OnlyNew {
		where = append(where, "COALESCE(json_extract(plaid2text, '$.pulled_to_file'), 0) = 0")
	}
	if q.From != nil {
		where = append(where, "date >= ?")
		args = append(args, q.From.Format(store.DateLayout))
	}
	if q.To != nil {
		where = append(where, "date <= ?")
		args = append(args, q.To.Format(store.DateLayout))
	}

	query := `
		SELECT account_id, transaction_id, date, amount, name, pending, source, plaid2text
		FROM transactions
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY date ASC, transaction_id ASC
	`

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txns := []store.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}

	return txns, nil
}

// UpdateTransaction rewrites the metadata document of one transaction.
func (r *TransactionRepository) UpdateTransaction(ctx context.Context, u store.Update, markPulled bool) error {
	return r.conn.Transaction(ctx, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx,
			`SELECT plaid2text FROM transactions WHERE plaid_account = ? AND transaction_id = ?`,
			r.account, u.TransactionID,
		).Scan(&raw)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", store.ErrNotFound, u.TransactionID)
		}
		if err != nil {
			return fmt.Errorf("failed to load metadata of %s: %w", u.TransactionID, err)
		}

		var meta store.Metadata
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return fmt.Errorf("failed to decode metadata of %s: %w", u.TransactionID, err)
		}
		u.Apply(&meta, markPulled)

		data, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to encode metadata of %s: %w", u.TransactionID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE transactions SET plaid2text = ? WHERE plaid_account = ? AND transaction_id = ?`,
			string(data), r.account, u.TransactionID,
		); err != nil {
			return fmt.Errorf("failed to update transaction %s: %w", u.TransactionID, err)
		}
		return nil
	})
}

// Stats counts stored and pulled transactions.
func (r *TransactionRepository) Stats(ctx context.Context) (*store.Stats, error) {
	var stats store.Stats
	var lastPulled sql.NullString

	err := r.conn.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN json_extract(plaid2text, '$.pulled_to_file') = 1 THEN 1 ELSE 0 END), 0),
			MAX(json_extract(plaid2text, '$.date_last_pulled'))
		FROM transactions
		WHERE plaid_account = ?
	`, r.account).Scan(&stats.Total, &stats.Pulled, &lastPulled)
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics: %w", err)
	}

	if lastPulled.Valid && lastPulled.String != "" {
		ts, err := time.Parse(time.RFC3339, lastPulled.String)
		if err != nil {
			return nil, fmt.Errorf("invalid date_last_pulled %q: %w", lastPulled.String, err)
		}
		stats.LastPulled = &ts
	}

	return &stats, nil
}

func scanTransaction(rows *sql.Rows) (store.Transaction, error) {
	var (
		t                          store.Transaction
		date, amount, source, meta string
	)
	if err := rows.Scan(&t.AccountID, &t.TransactionID, &date, &amount, &t.Name, &t.Pending, &source, &meta); err != nil {
		return t, fmt.Errorf("failed to scan transaction: %w", err)
	}

	d, err := store.ParseDate(date)
	if err != nil {
		return t, fmt.Errorf("transaction %s has invalid date %q: %w", t.TransactionID, date, err)
	}
	t.Date = d

	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return t, fmt.Errorf("transaction %s has invalid amount %q: %w", t.TransactionID, amount, err)
	}

	if err := json.Unmarshal([]byte(source), &t.Source); err != nil {
		return t, fmt.Errorf("failed to decode source of %s: %w", t.TransactionID, err)
	}
	if err := json.Unmarshal([]byte(meta), &t.Meta); err != nil {
		return t, fmt.Errorf("failed to decode metadata of %s: %w", t.TransactionID, err)
	}
	if t.Meta.Tags == nil {
		t.Meta.Tags = []string{}
	}

	return t, nil
}

func sourceOrEmpty(src map[string]any) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	return src
}
