// Package store defines the transaction persistence contract shared by every
// storage backend.
//
// A backend is scoped to one configured account nickname. Records are keyed by
// (account_id, transaction_id), are never deleted, and carry plaid2text
// metadata that is owned by this program rather than by the source.
package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the on-disk and query layout for transaction dates.
const DateLayout = "2006-01-02"

var (
	// ErrNotFound is returned when an update targets an unknown transaction.
	ErrNotFound = errors.New("transaction not found")
)

// Store is implemented by every storage backend.
type Store interface {
	// SaveTransactions upserts a batch. Source fields of existing records are
	// refreshed; their metadata is left untouched. Pending transactions are
	// skipped (see Settled).
	SaveTransactions(ctx context.Context, batch []Transaction) (*SaveResult, error)

	// GetTransactions returns records ordered by ascending date.
	GetTransactions(ctx context.Context, q Query) ([]Transaction, error)

	// UpdateTransaction revises the metadata of one record. When markPulled is
	// true the record is flagged as pulled and DateLastPulled is stamped;
	// otherwise the pulled state is left exactly as it was.
	UpdateTransaction(ctx context.Context, u Update, markPulled bool) error

	// Stats summarizes the stored records.
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}

// Transaction is one normalized source transaction plus its metadata.
type Transaction struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Date          time.Time       `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	Name          string          `json:"name"`
	Pending       bool            `json:"pending"`
	// Source holds source-specific fields that have no typed home.
	Source map[string]any `json:"source,omitempty"`
	Meta   Metadata       `json:"plaid2text"`
}

// Metadata is the classification state owned by plaid2text.
type Metadata struct {
	Payee             string     `json:"payee"`
	PostingAccount    string     `json:"posting_account"`
	AssociatedAccount string     `json:"associated_account"`
	Tags              []string   `json:"tags"`
	PulledToFile      bool       `json:"pulled_to_file"`
	DateDownloaded    time.Time  `json:"date_downloaded"`
	DateLastPulled    *time.Time `json:"date_last_pulled"`
}

// Query selects transactions. From and To are inclusive and compared against
// the transaction date only. A nil bound is open.
type Query struct {
	From    *time.Time
	To      *time.Time
	OnlyNew bool
}

// Update carries the classification computed for one transaction.
type Update struct {
	TransactionID     string
	Payee             string
	PostingAccount    string
	AssociatedAccount string
	Tags              []string
}

// SaveResult reports what a SaveTransactions call did.
type SaveResult struct {
	Inserted       int
	Updated        int
	SkippedPending int
}

// Stats summarizes a backend's records.
type Stats struct {
	Total      int
	Pulled     int
	LastPulled *time.Time
}

// New returns Total minus Pulled.
func (s *Stats) New() int {
	return s.Total - s.Pulled
}

// Now is the clock used for download and pull stamps. Times are kept in UTC
// with second precision so that their text forms sort chronologically.
var Now = func() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// NewMetadata returns the defaults given to a freshly inserted record.
func NewMetadata() Metadata {
	return Metadata{
		Tags:           []string{},
		PulledToFile:   false,
		DateDownloaded: Now(),
	}
}

// Settled drops pending transactions from a batch. Every backend persists
// settled transactions only: a pending transaction is re-issued by the source
// under a new id once it posts, so storing it would emit the entry twice.
func Settled(batch []Transaction) (settled []Transaction, skipped int) {
	settled = make([]Transaction, 0, len(batch))
	for _, t := range batch {
		if t.Pending {
			skipped++
			continue
		}
		settled = append(settled, t)
	}
	return settled, skipped
}

// DateOnly truncates t to midnight UTC of its calendar date.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD transaction date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// Matches reports whether t satisfies q. Backends that filter in memory use
// it so that every backend applies the same rules.
func (q Query) Matches(t Transaction) bool {
	if q.OnlyNew && t.Meta.PulledToFile {
		return false
	}
	d := DateOnly(t.Date)
	if q.From != nil && d.Before(DateOnly(*q.From)) {
		return false
	}
	if q.To != nil && d.After(DateOnly(*q.To)) {
		return false
	}
	return true
}

// Apply writes u onto m and stamps the pull state when markPulled is set.
func (u Update) Apply(m *Metadata, markPulled bool) {
	m.Payee = u.Payee
	m.PostingAccount = u.PostingAccount
	m.AssociatedAccount = u.AssociatedAccount
	m.Tags = append([]string{}, u.Tags...)
	if markPulled {
		now := Now()
		m.PulledToFile = true
		m.DateLastPulled = &now
	}
}

// SortByDate orders records by ascending date, then transaction id.
func SortByDate(txns []Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		if !txns[i].Date.Equal(txns[j].Date) {
			return txns[i].Date.Before(txns[j].Date)
		}
		return txns[i].TransactionID < txns[j].TransactionID
	})
}
