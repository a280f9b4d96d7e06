// Package storetest is a conformance suite for store.Store implementations.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pigeonworks-llc/plaid2text/pkg/store"
)

// Factory opens an empty store for one test. The suite closes it.
type Factory func(t *testing.T) store.Store

// Txn builds a settled transaction dated day (YYYY-MM-DD).
func Txn(id, day, name, amount string) store.Transaction {
	d, err := store.ParseDate(day)
	if err != nil {
		panic(err)
	}
	return store.Transaction{
		TransactionID: id,
		AccountID:     "acc-1",
		Date:          d,
		Amount:        decimal.RequireFromString(amount),
		Name:          name,
		Source:        map[string]any{"category": "Food"},
	}
}

// Run exercises every contract of store.Store against the factory.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"save is idempotent", testSaveIdempotent},
		{"save keeps metadata", testSaveKeepsMetadata},
		{"save skips pending", testSaveSkipsPending},
		{"date range is inclusive", testDateRange},
		{"only new filter", testOnlyNew},
		{"unmarked update keeps pull state", testUpdateWithoutMark},
		{"update unknown id", testUpdateUnknown},
		{"stats", testStats},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			tt.fn(t, s)
		})
	}
}

func seed(t *testing.T, s store.Store) []store.Transaction {
	t.Helper()
	batch := []store.Transaction{
		Txn("t3", "2024-01-20", "GROCER", "54.10"),
		Txn("t1", "2024-01-05", "STARBUCKS #123", "4.50"),
		Txn("t2", "2024-01-10", "PAYROLL", "-1500.00"),
		Txn("t4", "2024-02-01", "RENT", "1200"),
	}
	if _, err := s.SaveTransactions(context.Background(), batch); err != nil {
		t.Fatalf("SaveTransactions() error = %v", err)
	}
	return batch
}

func ids(txns []store.Transaction) []string {
	out := make([]string, 0, len(txns))
	for _, t := range txns {
		out = append(out, t.TransactionID)
	}
	return out
}

func equalIDs(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func testSaveIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	batch := seed(t, s)

	res, err := s.SaveTransactions(ctx, batch)
	if err != nil {
		t.Fatalf("second SaveTransactions() error = %v", err)
	}
	if res.Inserted != 0 {
		t.Errorf("second save inserted %d records, expected 0", res.Inserted)
	}

	got, err := s.GetTransactions(ctx, store.Query{})
	if err != nil {
		t.Fatalf("GetTransactions() error = %v", err)
	}
	if want := []string{"t1", "t2", "t3", "t4"}; !equalIDs(ids(got), want) {
		t.Errorf("GetTransactions() = %v, expected %v", ids(got), want)
	}
	if !got[0].Amount.Equal(decimal.RequireFromString("4.50")) {
		t.Errorf("amount = %s, expected 4.50", got[0].Amount)
	}
	if got[0].Name != "STARBUCKS #123" {
		t.Errorf("name = %q", got[0].Name)
	}
	if got[0].Meta.PulledToFile {
		t.Error("fresh record should not be pulled")
	}
}

func testSaveKeepsMetadata(t *testing.T, s store.Store) {
	ctx := context.Background()
	batch := seed(t, s)

	u := store.Update{
		TransactionID:     "t1",
		Payee:             "Coffee Shop",
		PostingAccount:    "Assets:Bank:Checking",
		AssociatedAccount: "Expenses:Dining",
		Tags:              []string{"coffee"},
	}
	if err := s.UpdateTransaction(ctx, u, true); err != nil {
		t.Fatalf("UpdateTransaction() error = %v", err)
	}

	refreshed := batch[1]
	refreshed.Name = "STARBUCKS #123 SEATTLE"
	if _, err := s.SaveTransactions(ctx, []store.Transaction{refreshed}); err != nil {
		t.Fatalf("SaveTransactions() error = %v", err)
	}

	got, err := s.GetTransactions(ctx, store.Query{})
	if err != nil {
		t.Fatalf("GetTransactions() error = %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 records, got %d", len(got))
	}
	first := got[0]
	if first.Name != "STARBUCKS #123 SEATTLE" {
		t.Errorf("source field not refreshed: %q", first.Name)
	}
	if !first.Meta.PulledToFile || first.Meta.DateLastPulled == nil {
		t.Error("re-save clobbered pull state")
	}
	if first.Meta.Payee != "Coffee Shop" || first.Meta.AssociatedAccount != "Expenses:Dining" {
		t.Errorf("re-save clobbered classification: %+v", first.Meta)
	}
	if len(first.Meta.Tags) != 1 || first.Meta.Tags[0] != "coffee" {
		t.Errorf("tags = %v, expected [coffee]", first.Meta.Tags)
	}
}

func testSaveSkipsPending(t *testing.T, s store.Store) {
	ctx := context.Background()
	pending := Txn("p1", "2024-01-07", "PENDING CHARGE", "9.99")
	pending.Pending = true

	res, err := s.SaveTransactions(ctx, []store.Transaction{pending, Txn("t1", "2024-01-05", "A", "1")})
	if err != nil {
		t.Fatalf("SaveTransactions() error = %v", err)
	}
	if res.SkippedPending != 1 || res.Inserted != 1 {
		t.Errorf("SaveResult = %+v, expected 1 inserted and 1 skipped", res)
	}

	got, err := s.GetTransactions(ctx, store.Query{})
	if err != nil {
		t.Fatalf("GetTransactions() error = %v", err)
	}
	if want := []string{"t1"}; !equalIDs(ids(got), want) {
		t.Errorf("GetTransactions() = %v, expected %v", ids(got), want)
	}
}

func date(s string) *time.Time {
	d, err := store.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func testDateRange(t *testing.T, s store.Store) {
	seed(t, s)

	tests := []struct {
		name     string
		q        store.Query
		expected []string
	}{
		{"unbounded", store.Query{}, []string{"t1", "t2", "t3", "t4"}},
		{"inclusive both ends", store.Query{From: date("2024-01-05"), To: date("2024-01-20")}, []string{"t1", "t2", "t3"}},
		{"single day", store.Query{From: date("2024-01-10"), To: date("2024-01-10")}, []string{"t2"}},
		{"from only", store.Query{From: date("2024-01-11")}, []string{"t3", "t4"}},
		{"to only", store.Query{To: date("2024-01-10")}, []string{"t1", "t2"}},
		{"inverted range", store.Query{From: date("2024-02-01"), To: date("2024-01-01")}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.GetTransactions(context.Background(), tt.q)
			if err != nil {
				t.Fatalf("GetTransactions() error = %v", err)
			}
			if !equalIDs(ids(got), tt.expected) {
				t.Errorf("GetTransactions() = %v, expected %v", ids(got), tt.expected)
			}
		})
	}
}

func testOnlyNew(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)

	for _, id := range []string{"t1", "t3"} {
		if err := s.UpdateTransaction(ctx, store.Update{TransactionID: id, Payee: "P", AssociatedAccount: "Expenses:X"}, true); err != nil {
			t.Fatalf("UpdateTransaction(%s) error = %v", id, err)
		}
	}

	got, err := s.GetTransactions(ctx, store.Query{OnlyNew: true})
	if err != nil {
		t.Fatalf("GetTransactions() error = %v", err)
	}
	if want := []string{"t2", "t4"}; !equalIDs(ids(got), want) {
		t.Errorf("only new = %v, expected %v", ids(got), want)
	}

	got, err = s.GetTransactions(ctx, store.Query{OnlyNew: true, From: date("2024-01-01"), To: date("2024-01-31")})
	if err != nil {
		t.Fatalf("GetTransactions() error = %v", err)
	}
	if want := []string{"t2"}; !equalIDs(ids(got), want) {
		t.Errorf("only new in January = %v, expected %v", ids(got), want)
	}
}

func testUpdateWithoutMark(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)

	if err := s.UpdateTransaction(ctx, store.Update{TransactionID: "t2", Payee: "Employer", AssociatedAccount: "Income:Salary"}, false); err != nil {
		t.Fatalf("UpdateTransaction() error = %v", err)
	}
	got, err := s.GetTransactions(ctx, store.Query{OnlyNew: true})
	if err != nil {
		t.Fatalf("GetTransactions() error = %v", err)
	}
	var found *store.Transaction
	for i := range got {
		if got[i].TransactionID == "t2" {
			found = &got[i]
		}
	}
	if found == nil {
		t.Fatal("unmarked update removed t2 from new transactions")
	}
	if found.Meta.Payee != "Employer" {
		t.Errorf("payee = %q, expected Employer", found.Meta.Payee)
	}
	if found.Meta.DateLastPulled != nil {
		t.Error("unmarked update stamped date_last_pulled")
	}

	// An already pulled record must stay pulled.
	if err := s.UpdateTransaction(ctx, store.Update{TransactionID: "t1", Payee: "A"}, true); err != nil {
		t.Fatalf("UpdateTransaction() error = %v", err)
	}
	if err := s.UpdateTransaction(ctx, store.Update{TransactionID: "t1", Payee: "B"}, false); err != nil {
		t.Fatalf("UpdateTransaction() error = %v", err)
	}
	all, err := s.GetTransactions(ctx, store.Query{})
	if err != nil {
		t.Fatalf("GetTransactions() error = %v", err)
	}
	if !all[0].Meta.PulledToFile || all[0].Meta.DateLastPulled == nil {
		t.Error("unmarked update regressed a pulled record")
	}
	if all[0].Meta.Payee != "B" {
		t.Errorf("payee = %q, expected B", all[0].Meta.Payee)
	}
}

func testUpdateUnknown(t *testing.T, s store.Store) {
	seed(t, s)
	err := s.UpdateTransaction(context.Background(), store.Update{TransactionID: "missing"}, true)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UpdateTransaction() error = %v, expected ErrNotFound", err)
	}
}

func testStats(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)
	if err := s.UpdateTransaction(ctx, store.Update{TransactionID: "t4"}, true); err != nil {
		t.Fatalf("UpdateTransaction() error = %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Total != 4 || stats.Pulled != 1 || stats.New() != 3 {
		t.Errorf("Stats() = %+v", stats)
	}
	if stats.LastPulled == nil {
		t.Error("LastPulled should be set")
	}
}
