// Package config provides configuration management for plaid2text.
// Values are layered in priority order: built-in defaults, the "defaults"
// section of the YAML config file, the account's section of that file, the
// environment (including a .env file), and finally command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/lestrrat-go/strftime"
	"gopkg.in/yaml.v3"

	"github.com/pigeonworks-llc/plaid2text/pkg/pathutil"
)

// ErrUnknownAccount is returned when the config file has no section for the
// requested account nickname.
var ErrUnknownAccount = errors.New("unknown account")

// Database backends.
const (
	DBMongo  = "mongodb"
	DBSQLite = "sqlite"
	DBBolt   = "bolt"
)

// Mark policies.
const (
	// MarkImmediate marks each transaction pulled as soon as it is classified.
	MarkImmediate = "immediate"
	// MarkAfterWrite marks all transactions once the output has been written.
	MarkAfterWrite = "after-write"
)

// Config represents the application configuration.
type Config struct {
	Plaid   PlaidConfig
	Account AccountConfig
	Paths   *pathutil.PathResolver
	Debug   bool
}

// PlaidConfig represents Plaid API configuration.
type PlaidConfig struct {
	ClientID string `yaml:"client_id"`
	Secret   string `yaml:"secret"`
	Env      string `yaml:"env"`
}

// StoreConfig selects and locates the transaction store.
type StoreConfig struct {
	DBType     string `yaml:"dbtype"`
	MongoDB    string `yaml:"mongo_db"`
	MongoDBURI string `yaml:"mongo_db_uri"`
	SQLiteDB   string `yaml:"sqlite_db"`
	BoltDB     string `yaml:"bolt_db"`
}

// AccountConfig holds every per-account option.
type AccountConfig struct {
	Nickname string `yaml:"-"`

	AccessToken string `yaml:"access_token"`
	// AccountID restricts downloads to one Plaid account of the item.
	AccountID string `yaml:"account"`

	PostingAccount   string `yaml:"posting_account"`
	OutputFormat     string `yaml:"output_format"`
	ClearedCharacter string `yaml:"cleared_character"`
	Currency         string `yaml:"currency"`
	DefaultExpense   string `yaml:"default_expense"`
	OutputDateFormat string `yaml:"output_date_format"`
	Quiet            bool   `yaml:"quiet"`
	Tags             bool   `yaml:"tags"`
	ClearScreen      bool   `yaml:"clear_screen"`
	MarkPolicy       string `yaml:"mark_policy"`

	MappingFile  string `yaml:"mapping_file"`
	TemplateFile string `yaml:"template_file"`
	HeadersFile  string `yaml:"headers_file"`
	JournalFile  string `yaml:"journal_file"`
	AccountsFile string `yaml:"accounts_file"`

	// Addons maps a template name to a source field: {addon_<name>}.
	Addons map[string]string `yaml:"addons"`

	Store StoreConfig `yaml:",inline"`
}

// Defaults returns the built-in account defaults.
func Defaults(paths *pathutil.PathResolver) AccountConfig {
	return AccountConfig{
		PostingAccount:   "Assets:Bank:Checking",
		OutputFormat:     "beancount",
		ClearedCharacter: "*",
		Currency:         "USD",
		DefaultExpense:   "Expenses:Unknown",
		OutputDateFormat: "%Y/%m/%d",
		MarkPolicy:       MarkImmediate,
		Addons:           map[string]string{},
		Store: StoreConfig{
			DBType:     DBMongo,
			MongoDB:    "plaid2text",
			MongoDBURI: "mongodb://localhost:27017",
			SQLiteDB:   paths.GetSQLitePath(),
			BoltDB:     paths.GetBoltPath(),
		},
	}
}

// fileConfig is the layout of config.yaml.
type fileConfig struct {
	Plaid    PlaidConfig          `yaml:"plaid"`
	Defaults yaml.Node            `yaml:"defaults"`
	Accounts map[string]yaml.Node `yaml:"accounts"`
}

// LoadOptions selects what Load reads.
type LoadOptions struct {
	// EnvPath is a .env file; when empty ./.env is tried.
	EnvPath string
	// ConfigFile overrides <config dir>/config.yaml.
	ConfigFile string
	// Account is the nickname whose section is applied.
	Account string
}

// Load builds the configuration for opts.Account.
func Load(opts LoadOptions) (*Config, error) {
	// Load .env file
	if opts.EnvPath != "" {
		if err := godotenv.Load(opts.EnvPath); err != nil {
			return nil, fmt.Errorf("failed to load .env file: %w", err)
		}
	} else {
		// Try to load .env from current directory (ignore error if not found)
		_ = godotenv.Load()
	}

	paths := pathutil.FromEnv()
	cfg := &Config{
		Account: Defaults(paths),
		Paths:   paths,
		Debug:   os.Getenv("DEBUG") == "true",
	}
	cfg.Plaid.Env = "sandbox"
	cfg.Account.Nickname = opts.Account

	configFile := opts.ConfigFile
	if configFile == "" {
		configFile = paths.GetConfigFile()
	}
	if err := cfg.loadFile(pathutil.ExpandHome(configFile), opts.Account); err != nil {
		return nil, err
	}

	cfg.Plaid.ClientID = getEnvOrDefault("PLAID_CLIENT_ID", cfg.Plaid.ClientID)
	cfg.Plaid.Secret = getEnvOrDefault("PLAID_SECRET", cfg.Plaid.Secret)
	cfg.Plaid.Env = getEnvOrDefault("PLAID_ENV", cfg.Plaid.Env)

	return cfg, nil
}

func (c *Config) loadFile(path, account string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if account != "" {
			return fmt.Errorf("%w: %s (no config file at %s)", ErrUnknownAccount, account, path)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if file.Plaid.ClientID != "" {
		c.Plaid.ClientID = file.Plaid.ClientID
	}
	if file.Plaid.Secret != "" {
		c.Plaid.Secret = file.Plaid.Secret
	}
	if file.Plaid.Env != "" {
		c.Plaid.Env = file.Plaid.Env
	}

	if file.Defaults.Kind != 0 {
		if err := file.Defaults.Decode(&c.Account); err != nil {
			return fmt.Errorf("invalid defaults section: %w", err)
		}
	}

	if account == "" {
		return nil
	}
	section, ok := file.Accounts[account]
	if !ok {
		return fmt.Errorf("%w: %s (configured: %s)", ErrUnknownAccount, account, strings.Join(accountNames(file.Accounts), ", "))
	}
	if section.Kind != 0 {
		if err := section.Decode(&c.Account); err != nil {
			return fmt.Errorf("invalid section for account %s: %w", account, err)
		}
	}
	c.Account.Nickname = account
	return nil
}

func accountNames(accounts map[string]yaml.Node) []string {
	names := make([]string, 0, len(accounts))
	for name := range accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveFiles fills unset file options with the first existing default
// (per-account, then shared). The mapping file always resolves to a path so
// that learned rules have somewhere to go.
func (c *Config) ResolveFiles() {
	a := &c.Account
	resolve := func(field *string, kind string) {
		if *field != "" {
			*field = pathutil.ExpandHome(*field)
			return
		}
		*field = c.Paths.FindFile("", a.Nickname, kind)
	}

	resolve(&a.TemplateFile, pathutil.TemplateFile)
	resolve(&a.HeadersFile, pathutil.HeadersFile)
	resolve(&a.JournalFile, pathutil.JournalFile)
	resolve(&a.AccountsFile, pathutil.AccountsFile)
	resolve(&a.MappingFile, pathutil.MappingFile)
	if a.MappingFile == "" {
		a.MappingFile = c.Paths.GetAccountFile(a.Nickname, pathutil.MappingFile)
	}
	a.Store.SQLiteDB = pathutil.ExpandHome(a.Store.SQLiteDB)
	a.Store.BoltDB = pathutil.ExpandHome(a.Store.BoltDB)
}

// ValidationError lists every configuration problem found.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration:\n  " + strings.Join(e.Problems, "\n  ")
}

// Validate validates the configuration.
// It checks option values, configured files, and that every required path
// (e.g. []string{"plaid", "clientId"}) is set.
func (c *Config) Validate(required ...[]string) error {
	var problems []string
	a := c.Account

	switch a.OutputFormat {
	case "ledger", "beancount":
	default:
		problems = append(problems, fmt.Sprintf("output_format must be ledger or beancount, got %q", a.OutputFormat))
	}
	if len(a.ClearedCharacter) != 1 || !strings.Contains("*!", a.ClearedCharacter) {
		problems = append(problems, fmt.Sprintf("cleared_character must be * or !, got %q", a.ClearedCharacter))
	}
	switch a.Store.DBType {
	case DBMongo, DBSQLite, DBBolt:
	default:
		problems = append(problems, fmt.Sprintf("dbtype must be mongodb, sqlite or bolt, got %q", a.Store.DBType))
	}
	switch a.MarkPolicy {
	case MarkImmediate, MarkAfterWrite:
	default:
		problems = append(problems, fmt.Sprintf("mark_policy must be immediate or after-write, got %q", a.MarkPolicy))
	}
	if _, err := strftime.New(a.OutputDateFormat); err != nil {
		problems = append(problems, fmt.Sprintf("output_date_format %q: %v", a.OutputDateFormat, err))
	}
	for name, path := range map[string]string{"template_file": a.TemplateFile, "headers_file": a.HeadersFile} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			problems = append(problems, fmt.Sprintf("%s %s does not exist", name, path))
		}
	}

	var missing []string
	for _, path := range required {
		if len(path) < 2 {
			continue
		}

		var value string
		switch path[0] {
		case "plaid":
			switch path[1] {
			case "clientId":
				value = c.Plaid.ClientID
			case "secret":
				value = c.Plaid.Secret
			case "env":
				value = c.Plaid.Env
			}
		case "account":
			switch path[1] {
			case "nickname":
				value = a.Nickname
			case "accessToken":
				value = a.AccessToken
			case "accountId":
				value = a.AccountID
			}
		}

		if value == "" {
			missing = append(missing, strings.Join(path, "."))
		}
	}
	if len(missing) > 0 {
		problems = append(problems, fmt.Sprintf("missing required configuration: %v", missing))
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return &ValidationError{Problems: problems}
	}
	return nil
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
