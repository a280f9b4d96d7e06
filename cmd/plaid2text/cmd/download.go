package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pigeonworks-llc/plaid2text/pkg/plaid"
)

var (
	downloadFrom string
	downloadTo   string
)

// downloadCmd represents the download command.
var downloadCmd = &cobra.Command{
	Use:   "download <account>",
	Short: "Download Plaid transactions into the local store",
	Long: `Download transactions of an account from the Plaid API.

This command:
1. Fetches every page of transactions in the date range
2. Skips pending transactions
3. Inserts new transactions and refreshes known ones, keeping their
   classification and pulled state

Example:
  plaid2text download boa --from-date 2024-01-01 --to-date 2024-01-31
  plaid2text download boa --from-date 2024/01/01 --to-date 2024/01/31 --dbtype sqlite`,
	Args: cobra.ExactArgs(1),
	Run:  runDownload,
}

func init() {
	// Flags
	downloadCmd.Flags().StringVar(&downloadFrom, "from-date", "", "Start date (YYYY-MM-DD or YYYY/MM/DD) (required)")
	downloadCmd.Flags().StringVar(&downloadTo, "to-date", "", "End date (YYYY-MM-DD or YYYY/MM/DD) (required)")

	downloadCmd.MarkFlagRequired("from-date")
	downloadCmd.MarkFlagRequired("to-date")
}

func runDownload(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	account := args[0]
	logger := runLogger(account)

	from, err := parseDate(downloadFrom)
	exitOnError(err, "invalid --from-date")
	to, err := parseDate(downloadTo)
	exitOnError(err, "invalid --to-date")

	// Load configuration
	cfg := loadConfig(cmd, account)
	cfg.ResolveFiles()

	// Validate required fields
	if err := cfg.Validate(
		[]string{"plaid", "clientId"},
		[]string{"plaid", "secret"},
		[]string{"plaid", "env"},
		[]string{"account", "accessToken"},
	); err != nil {
		exitOnError(err, "invalid configuration")
	}

	apiURL, ok := plaid.Environments[cfg.Plaid.Env]
	if !ok {
		exitOnError(fmt.Errorf("unknown environment %q", cfg.Plaid.Env), "invalid Plaid configuration")
	}

	client := plaid.NewClient(plaid.ClientConfig{
		APIURL:   apiURL,
		ClientID: cfg.Plaid.ClientID,
		Secret:   cfg.Plaid.Secret,
		Timeout:  30 * time.Second,
		Logger:   logger,
	})

	var accountIDs []string
	if cfg.Account.AccountID != "" {
		accountIDs = []string{cfg.Account.AccountID}
	}

	logger.Info("Fetching transactions from Plaid", "env", cfg.Plaid.Env, "from", downloadFrom, "to", downloadTo)
	fetched, err := client.FetchAllTransactions(ctx, cfg.Account.AccessToken, from, to, accountIDs)
	var apiErr *plaid.APIError
	if errors.As(err, &apiErr) && apiErr.IsItemError() {
		exitOnError(err, fmt.Sprintf("Plaid item for account %s needs attention", account))
	}
	exitOnError(err, fmt.Sprintf("failed to fetch transactions for account %s", account))
	logger.Info("Fetched transactions", "count", len(fetched))

	records, convErr := plaid.ToRecords(fetched)
	if convErr != nil {
		logger.Error("Some transactions could not be converted", "error", convErr)
	}

	st, err := openStore(ctx, cfg, logger)
	exitOnError(err, "failed to open transaction store")

	result, err := st.SaveTransactions(ctx, records)
	if closeErr := st.Close(); closeErr != nil {
		logger.Warn("Failed to close transaction store", "error", closeErr)
	}
	exitOnError(err, "failed to save transactions")

	logger.Info("Download completed",
		"inserted", result.Inserted,
		"updated", result.Updated,
		"skipped_pending", result.SkippedPending,
	)
	fmt.Printf("Transactions successfully downloaded and saved into %s\n", cfg.Account.Store.DBType)
	fmt.Printf("New:      %d\n", result.Inserted)
	fmt.Printf("Updated:  %d\n", result.Updated)
	fmt.Printf("Pending:  %d (skipped)\n", result.SkippedPending)

	exitOnError(convErr, "some transactions were not saved")
}
