package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pigeonworks-llc/plaid2text/pkg/store"
)

// DefaultPageSize is the count requested per /transactions/get call.
const DefaultPageSize = 500

// ClientConfig represents the configuration for the Plaid API client.
type ClientConfig struct {
	APIURL   string
	ClientID string
	Secret   string
	PageSize int           // Default: 500
	Timeout  time.Duration // Default: 30 seconds
	Logger   *slog.Logger
}

// Client is a Plaid API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	secret     string
	pageSize   int
	logger     *slog.Logger
}

// NewClient creates a new Plaid API client.
func NewClient(config ClientConfig) *Client {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	pageSize := config.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    config.APIURL,
		clientID:   config.ClientID,
		secret:     config.Secret,
		pageSize:   pageSize,
		logger:     logger,
	}
}

// GetTransactions fetches one page of transactions.
func (c *Client) GetTransactions(ctx context.Context, accessToken string, from, to time.Time, accountIDs []string, offset int) (*TransactionsResponse, error) {
	body, err := json.Marshal(TransactionsRequest{
		ClientID:    c.clientID,
		Secret:      c.secret,
		AccessToken: accessToken,
		StartDate:   from.Format(store.DateLayout),
		EndDate:     to.Format(store.DateLayout),
		Options: TransactionsOptions{
			AccountIDs: accountIDs,
			Count:      c.pageSize,
			Offset:     offset,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transactions/get", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseError(resp)
	}

	var txResp TransactionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&txResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &txResp, nil
}

// FetchAllTransactions pages through /transactions/get by offset until
// total_transactions have been received.
func (c *Client) FetchAllTransactions(ctx context.Context, accessToken string, from, to time.Time, accountIDs []string) ([]Transaction, error) {
	var all []Transaction
	page := 0

	for {
		page++
		resp, err := c.GetTransactions(ctx, accessToken, from, to, accountIDs, len(all))
		if err != nil {
			return nil, fmt.Errorf("failed to get transactions (offset=%d): %w", len(all), err)
		}

		all = append(all, resp.Transactions...)
		c.logger.DebugContext(ctx, "Fetched transactions page",
			"page", page,
			"fetched", len(all),
			"total", resp.TotalTransactions,
		)

		if len(resp.Transactions) == 0 || len(all) >= resp.TotalTransactions {
			break
		}
	}

	return all, nil
}

// parseError parses an error response from the Plaid API.
func (c *Client) parseError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("plaid API error (status %d): failed to read error response", resp.StatusCode)
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Type == "" {
		return fmt.Errorf("plaid API error (status %d): %s", resp.StatusCode, string(body))
	}
	apiErr.StatusCode = resp.StatusCode
	return &apiErr
}

// ConversionError reports a fetched transaction that cannot be stored.
type ConversionError struct {
	TransactionID string
	Field         string
	Value         string
	Err           error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("transaction %s has invalid %s %q: %v", e.TransactionID, e.Field, e.Value, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// typedFields are stored in their own columns and left out of Source.
var typedFields = []string{"transaction_id", "account_id", "amount", "date", "name", "pending"}

// ToRecords converts fetched transactions into store records. Transactions
// with an unparsable date or amount are left out and reported in the
// returned error; the valid records are returned regardless.
func ToRecords(txns []Transaction) ([]store.Transaction, error) {
	records := make([]store.Transaction, 0, len(txns))
	var errs []error

	for _, t := range txns {
		date, err := store.ParseDate(t.Date)
		if err != nil {
			errs = append(errs, &ConversionError{TransactionID: t.TransactionID, Field: "date", Value: t.Date, Err: err})
			continue
		}
		amount, err := decimal.NewFromString(t.Amount.String())
		if err != nil {
			errs = append(errs, &ConversionError{TransactionID: t.TransactionID, Field: "amount", Value: t.Amount.String(), Err: err})
			continue
		}

		source := make(map[string]any, len(t.Raw))
		for k, v := range t.Raw {
			source[k] = v
		}
		for _, k := range typedFields {
			delete(source, k)
		}

		records = append(records, store.Transaction{
			TransactionID: t.TransactionID,
			AccountID:     t.AccountID,
			Date:          date,
			Amount:        amount,
			Name:          t.Name,
			Pending:       t.Pending,
			Source:        source,
			Meta:          store.NewMetadata(),
		})
	}

	return records, errors.Join(errs...)
}
