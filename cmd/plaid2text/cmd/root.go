// Package cmd provides CLI commands for plaid2text.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pigeonworks-llc/plaid2text/pkg/boltstore"
	"github.com/pigeonworks-llc/plaid2text/pkg/config"
	"github.com/pigeonworks-llc/plaid2text/pkg/db"
	"github.com/pigeonworks-llc/plaid2text/pkg/mongostore"
	"github.com/pigeonworks-llc/plaid2text/pkg/store"
)

var (
	cfgFile string
	envFile string
	debug   bool
	dbType  string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "plaid2text",
	Short: "Convert bank transactions to ledger or beancount entries",
	Long: `plaid2text downloads bank transactions from Plaid into a local store
and renders them as ledger or beancount journal entries.

Each transaction is classified by the account's mapping file. Unmatched
transactions are classified interactively and the answer is learned as a
new mapping rule.

Example:
  plaid2text download boa --from-date 2024-01-01 --to-date 2024-01-31
  plaid2text render boa journal/2024-01.beancount
  plaid2text stats boa`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Setup logging
		logLevel := slog.LevelInfo
		if debug {
			logLevel = slog.LevelDebug
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $PLAID2TEXT_HOME/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", ".env file with Plaid credentials (default is ./.env)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&dbType, "dbtype", "", "transaction store: mongodb, sqlite or bolt")

	// Add subcommands
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(statsCmd)
}

// loadConfig loads the configuration of one account and applies the global
// flags that were set explicitly.
func loadConfig(cmd *cobra.Command, account string) *config.Config {
	cfg, err := config.Load(config.LoadOptions{
		EnvPath:    envFile,
		ConfigFile: cfgFile,
		Account:    account,
	})
	exitOnError(err, "failed to load configuration")

	if cmd.Flags().Changed("dbtype") {
		cfg.Account.Store.DBType = dbType
	}
	cfg.Debug = cfg.Debug || debug
	return cfg
}

// runLogger tags every record of one command run.
func runLogger(account string) *slog.Logger {
	return slog.Default().With("run_id", uuid.NewString(), "account", account)
}

// openStore opens the backend selected by the account's dbtype.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	sc := cfg.Account.Store
	account := cfg.Account.Nickname

	switch sc.DBType {
	case config.DBMongo:
		logger.Debug("Opening MongoDB store", "uri", sc.MongoDBURI, "database", sc.MongoDB)
		return mongostore.Open(ctx, logger, sc.MongoDBURI, sc.MongoDB, account)
	case config.DBSQLite:
		logger.Debug("Opening SQLite store", "path", sc.SQLiteDB)
		if err := cfg.Paths.EnsureParentDir(sc.SQLiteDB); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		return db.OpenStore(sc.SQLiteDB, account)
	case config.DBBolt:
		logger.Debug("Opening bolt store", "path", sc.BoltDB)
		if err := cfg.Paths.EnsureParentDir(sc.BoltDB); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		return boltstore.Open(sc.BoltDB, account)
	default:
		return nil, fmt.Errorf("unknown dbtype %q", sc.DBType)
	}
}

var cliDate = regexp.MustCompile(`^(\d{4})[/-](\d{1,2})[/-](\d{1,2})$`)

// parseDate accepts YYYY-MM-DD or YYYY/MM/DD.
func parseDate(s string) (time.Time, error) {
	m := cliDate.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or YYYY/MM/DD", s)
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])

	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
		return time.Time{}, fmt.Errorf("invalid date %q: no such day", s)
	}
	return t, nil
}

// optionalDate parses s when it is set.
func optionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseDate(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Helper function to handle errors and exit.
func exitOnError(err error, msg string) {
	if err != nil {
		slog.Error(msg, "error", err)
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
		os.Exit(1)
	}
}
