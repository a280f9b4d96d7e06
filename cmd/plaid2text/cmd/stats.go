package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// statsCmd represents the stats command.
var statsCmd = &cobra.Command{
	Use:   "stats <account>",
	Short: "Display transaction statistics",
	Long: `Display statistics about the stored transactions of an account.

Shows:
- Total number of stored transactions
- Number already pulled into a journal
- Number not yet pulled
- Last pull timestamp

Example:
  plaid2text stats boa`,
	Args: cobra.ExactArgs(1),
	Run:  runStats,
}

func runStats(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	account := args[0]
	logger := runLogger(account)

	// Load configuration
	cfg := loadConfig(cmd, account)
	cfg.ResolveFiles()

	// Validate required fields
	if err := cfg.Validate([]string{"account", "nickname"}); err != nil {
		exitOnError(err, "invalid configuration")
	}

	st, err := openStore(ctx, cfg, logger)
	exitOnError(err, "failed to open transaction store")
	defer st.Close()

	// Get statistics
	stats, err := st.Stats(ctx)
	exitOnError(err, "failed to get statistics")

	// Display statistics
	fmt.Printf("\n=== Transactions: %s (%s) ===\n", account, cfg.Account.Store.DBType)
	fmt.Printf("Total stored:   %d\n", stats.Total)
	fmt.Printf("Pulled:         %d\n", stats.Pulled)
	fmt.Printf("New:            %d\n", stats.New())

	if stats.LastPulled != nil {
		fmt.Printf("Last pulled:    %s\n", stats.LastPulled.Local().Format(time.DateTime))
	} else {
		fmt.Printf("Last pulled:    (never)\n")
	}

	fmt.Println()

	logger.Info("Statistics displayed successfully")
}
