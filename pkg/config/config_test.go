package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testConfig = `plaid:
  client_id: file-client
  secret: file-secret
defaults:
  output_format: ledger
  currency: EUR
  dbtype: sqlite
accounts:
  boa_checking:
    access_token: access-boa
    account: plaid-acc-1
    posting_account: Assets:BOA:Checking
    quiet: true
    addons:
      merchant: merchant_name
  chase:
    output_format: beancount
`

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("PLAID2TEXT_HOME", dir)
	t.Setenv("PLAID_CLIENT_ID", "")
	t.Setenv("PLAID_SECRET", "")
	t.Setenv("PLAID_ENV", "")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(testConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestLoad_Layering(t *testing.T) {
	dir := setup(t)

	cfg, err := Load(LoadOptions{Account: "boa_checking"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	a := cfg.Account

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"builtin default", a.DefaultExpense, "Expenses:Unknown"},
		{"defaults section", a.Currency, "EUR"},
		{"defaults section format", a.OutputFormat, "ledger"},
		{"account section", a.PostingAccount, "Assets:BOA:Checking"},
		{"access token", a.AccessToken, "access-boa"},
		{"account id", a.AccountID, "plaid-acc-1"},
		{"dbtype", a.Store.DBType, DBSQLite},
		{"inline store default", a.Store.SQLiteDB, filepath.Join(dir, "transactions.db")},
		{"addon", a.Addons["merchant"], "merchant_name"},
		{"plaid client", cfg.Plaid.ClientID, "file-client"},
		{"plaid env default", cfg.Plaid.Env, "sandbox"},
		{"nickname", a.Nickname, "boa_checking"},
	}
	for _, tt := range tests {
		if tt.got != tt.expected {
			t.Errorf("%s = %q, expected %q", tt.name, tt.got, tt.expected)
		}
	}
	if !a.Quiet {
		t.Error("quiet should come from the account section")
	}
}

func TestLoad_AccountOverridesDefaults(t *testing.T) {
	setup(t)

	cfg, err := Load(LoadOptions{Account: "chase"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Account.OutputFormat != "beancount" || cfg.Account.Currency != "EUR" {
		t.Errorf("Account = %+v", cfg.Account)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	setup(t)
	t.Setenv("PLAID_SECRET", "env-secret")
	t.Setenv("PLAID_ENV", "development")

	cfg, err := Load(LoadOptions{Account: "chase"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Plaid.Secret != "env-secret" || cfg.Plaid.Env != "development" || cfg.Plaid.ClientID != "file-client" {
		t.Errorf("Plaid = %+v", cfg.Plaid)
	}
}

func TestLoad_UnknownAccount(t *testing.T) {
	setup(t)

	_, err := Load(LoadOptions{Account: "nope"})
	if !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("expected ErrUnknownAccount, got %v", err)
	}
	if !strings.Contains(err.Error(), "boa_checking, chase") {
		t.Errorf("error should list configured accounts: %v", err)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	t.Setenv("PLAID2TEXT_HOME", t.TempDir())

	cfg, err := Load(LoadOptions{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Account.OutputFormat != "beancount" || cfg.Account.Store.DBType != DBMongo {
		t.Errorf("expected built-in defaults, got %+v", cfg.Account)
	}

	if _, err := Load(LoadOptions{Account: "boa"}); !errors.Is(err, ErrUnknownAccount) {
		t.Errorf("expected ErrUnknownAccount without config file, got %v", err)
	}
}

func TestResolveFiles(t *testing.T) {
	dir := setup(t)
	accountDir := filepath.Join(dir, "boa_checking")
	if err := os.MkdirAll(accountDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"template", "journal"} {
		if err := os.WriteFile(filepath.Join(accountDir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "headers"), []byte("; shared"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(LoadOptions{Account: "boa_checking"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.ResolveFiles()
	a := cfg.Account

	if a.TemplateFile != filepath.Join(accountDir, "template") {
		t.Errorf("TemplateFile = %q", a.TemplateFile)
	}
	if a.HeadersFile != filepath.Join(dir, "headers") {
		t.Errorf("HeadersFile = %q", a.HeadersFile)
	}
	if a.AccountsFile != "" {
		t.Errorf("AccountsFile = %q, expected none", a.AccountsFile)
	}
	if a.MappingFile != filepath.Join(accountDir, "mapping") {
		t.Errorf("MappingFile = %q", a.MappingFile)
	}
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PLAID2TEXT_HOME", dir)

	tests := []struct {
		name     string
		mutate   func(c *Config)
		required [][]string
		problem  string
	}{
		{"valid", func(c *Config) {}, nil, ""},
		{"bad format", func(c *Config) { c.Account.OutputFormat = "hledger" }, nil, "output_format"},
		{"bad cleared character", func(c *Config) { c.Account.ClearedCharacter = "x" }, nil, "cleared_character"},
		{"bad dbtype", func(c *Config) { c.Account.Store.DBType = "postgres" }, nil, "dbtype"},
		{"bad mark policy", func(c *Config) { c.Account.MarkPolicy = "never" }, nil, "mark_policy"},
		{"missing template", func(c *Config) { c.Account.TemplateFile = filepath.Join(dir, "absent") }, nil, "template_file"},
		{"missing headers", func(c *Config) { c.Account.HeadersFile = filepath.Join(dir, "absent") }, nil, "headers_file"},
		{"required plaid", func(c *Config) {}, [][]string{{"plaid", "clientId"}, {"account", "accessToken"}}, "plaid.clientId account.accessToken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(LoadOptions{})
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			cfg.Plaid.ClientID = ""
			tt.mutate(cfg)

			err = cfg.Validate(tt.required...)
			if tt.problem == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.problem) {
				t.Errorf("error %q should mention %q", err, tt.problem)
			}
		})
	}
}
