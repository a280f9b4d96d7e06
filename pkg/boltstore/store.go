// Package boltstore is an embedded key/value transaction store on bbolt.
// Each record is a JSON document keyed by account_id and transaction_id.
package boltstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/pigeonworks-llc/plaid2text/pkg/store"
)

const idsSuffix = ".ids"

// Store is the bbolt implementation of store.Store for one account.
type Store struct {
	db      *bolt.DB
	records []byte
	ids     []byte
}

var _ store.Store = (*Store)(nil)

// Open opens the database file and initializes the account's buckets.
func Open(dbPath, account string) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{
		db:      db,
		records: []byte(account),
		ids:     []byte(account + idsSuffix),
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{s.records, s.ids} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveTransactions upserts settled transactions, keeping stored metadata.
func (s *Store) SaveTransactions(ctx context.Context, batch []store.Transaction) (*store.SaveResult, error) {
	settled, skipped := store.Settled(batch)
	result := &store.SaveResult{SkippedPending: skipped}

	err := s.db.Update(func(tx *bolt.Tx) error {
		records := tx.Bucket(s.records)
		ids := tx.Bucket(s.ids)

		for _, t := range settled {
			key := recordKey(t.AccountID, t.TransactionID)

			if data := records.Get(key); data != nil {
				var existing store.Transaction
				if err := json.Unmarshal(data, &existing); err != nil {
					return fmt.Errorf("failed to decode transaction %s: %w", t.TransactionID, err)
				}
				t.Meta = existing.Meta
				result.Updated++
			} else {
				t.Meta = store.NewMetadata()
				result.Inserted++
			}

			if err := put(records, key, t); err != nil {
				return err
			}
			if err := ids.Put([]byte(t.TransactionID), key); err != nil {
				return fmt.Errorf("failed to index transaction %s: %w", t.TransactionID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// GetTransactions scans the account bucket and returns matches by date.
func (s *Store) GetTransactions(ctx context.Context, q store.Query) ([]store.Transaction, error) {
	txns := []store.Transaction{}

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(s.records).ForEach(func(k, v []byte) error {
			var t store.Transaction
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("failed to decode record %q: %w", k, err)
			}
			if q.Matches(t) {
				txns = append(txns, t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	store.SortByDate(txns)
	return txns, nil
}

// UpdateTransaction applies u to the stored metadata of one transaction.
func (s *Store) UpdateTransaction(ctx context.Context, u store.Update, markPulled bool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		key := tx.Bucket(s.ids).Get([]byte(u.TransactionID))
		if key == nil {
			return fmt.Errorf("%w: %s", store.ErrNotFound, u.TransactionID)
		}
		// Keys returned by Get are only valid for the life of the transaction.
		key = append([]byte(nil), key...)

		records := tx.Bucket(s.records)
		data := records.Get(key)
		if data == nil {
			return fmt.Errorf("%w: %s", store.ErrNotFound, u.TransactionID)
		}

		var t store.Transaction
		if err := json.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("failed to decode transaction %s: %w", u.TransactionID, err)
		}
		u.Apply(&t.Meta, markPulled)

		return put(records, key, t)
	})
}

// Stats counts records and finds the latest pull stamp.
func (s *Store) Stats(ctx context.Context) (*store.Stats, error) {
	var stats store.Stats

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(s.records).ForEach(func(k, v []byte) error {
			var t store.Transaction
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("failed to decode record %q: %w", k, err)
			}
			stats.Total++
			if t.Meta.PulledToFile {
				stats.Pulled++
			}
			if p := t.Meta.DateLastPulled; p != nil && (stats.LastPulled == nil || p.After(*stats.LastPulled)) {
				stats.LastPulled = p
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

func put(b *bolt.Bucket, key []byte, t store.Transaction) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction %s: %w", t.TransactionID, err)
	}
	return b.Put(key, data)
}

// recordKey joins the two identity fields with a NUL separator.
func recordKey(accountID, transactionID string) []byte {
	return []byte(accountID + "\x00" + transactionID)
}
