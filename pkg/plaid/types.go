// Package plaid provides the Plaid transactions API client and types.
package plaid

import (
	"encoding/json"
	"fmt"
)

// Environments maps an environment name to its API host.
var Environments = map[string]string{
	"sandbox":     "https://sandbox.plaid.com",
	"development": "https://development.plaid.com",
	"production":  "https://production.plaid.com",
}

// Transaction is one entry of a /transactions/get response. Raw keeps the
// complete object as received.
type Transaction struct {
	TransactionID string      `json:"transaction_id"`
	AccountID     string      `json:"account_id"`
	Amount        json.Number `json:"amount"`
	Date          string      `json:"date"` // YYYY-MM-DD
	Name          string      `json:"name"`
	Pending       bool        `json:"pending"`

	Raw map[string]any `json:"-"`
}

// UnmarshalJSON decodes the typed fields and keeps every field in Raw.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type plain Transaction
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Transaction(p)
	t.Raw = raw
	return nil
}

// TransactionsRequest is the body of POST /transactions/get.
type TransactionsRequest struct {
	ClientID    string              `json:"client_id"`
	Secret      string              `json:"secret"`
	AccessToken string              `json:"access_token"`
	StartDate   string              `json:"start_date"`
	EndDate     string              `json:"end_date"`
	Options     TransactionsOptions `json:"options"`
}

// TransactionsOptions pages and filters /transactions/get.
type TransactionsOptions struct {
	AccountIDs []string `json:"account_ids,omitempty"`
	Count      int      `json:"count"`
	Offset     int      `json:"offset"`
}

// TransactionsResponse represents the response from /transactions/get.
type TransactionsResponse struct {
	Transactions      []Transaction `json:"transactions"`
	TotalTransactions int           `json:"total_transactions"`
	RequestID         string        `json:"request_id"`
}

// APIError is the error object returned by the Plaid API.
type APIError struct {
	Type           string `json:"error_type"`
	Code           string `json:"error_code"`
	Message        string `json:"error_message"`
	DisplayMessage string `json:"display_message"`
	RequestID      string `json:"request_id"`
	StatusCode     int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("plaid API error (status %d): %s %s - %s", e.StatusCode, e.Type, e.Code, e.Message)
}

// IsItemError reports whether the linked item needs user attention, for
// example after a credential change at the institution.
func (e *APIError) IsItemError() bool {
	return e.Type == "ITEM_ERROR"
}
