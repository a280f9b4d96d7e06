// Package pathutil provides centralized path management for the configuration
// directory and the per-account files kept in it.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Per-account file kinds. Each lives at <config dir>/<nickname>/<kind>, with
// <config dir>/<kind> as the shared fallback.
const (
	MappingFile  = "mapping"
	TemplateFile = "template"
	HeadersFile  = "headers"
	JournalFile  = "journal"
	AccountsFile = "accounts"
)

// ConfigFileName is the YAML configuration file inside the config directory.
const ConfigFileName = "config.yaml"

// PathResolver manages paths below the configuration directory.
type PathResolver struct {
	configDir string
}

// Config represents the configuration for PathResolver.
type Config struct {
	// ConfigDir is the configuration directory (e.g., ~/.config/plaid2text)
	ConfigDir string
}

// New creates a new PathResolver with the given configuration.
// If ConfigDir is empty, it defaults to ~/.config/plaid2text
func New(config Config) *PathResolver {
	dir := config.ConfigDir
	if dir == "" {
		dir = DefaultConfigDir()
	}
	return &PathResolver{configDir: ExpandHome(dir)}
}

// FromEnv creates a PathResolver from environment variables.
// Expected environment variables:
//   - PLAID2TEXT_HOME: Configuration directory (optional)
func FromEnv() *PathResolver {
	return New(Config{ConfigDir: os.Getenv("PLAID2TEXT_HOME")})
}

// DefaultConfigDir returns ~/.config/plaid2text.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "plaid2text")
	}
	return filepath.Join(home, ".config", "plaid2text")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// GetConfigDir returns the configuration directory.
func (p *PathResolver) GetConfigDir() string {
	return p.configDir
}

// GetConfigFile returns the YAML configuration file path.
func (p *PathResolver) GetConfigFile() string {
	return filepath.Join(p.configDir, ConfigFileName)
}

// GetAccountDir returns the directory holding an account's files.
// Example: ~/.config/plaid2text/boa_checking
func (p *PathResolver) GetAccountDir(nickname string) string {
	return filepath.Join(p.configDir, nickname)
}

// GetAccountFile returns the per-account path of a file kind.
// Example: ~/.config/plaid2text/boa_checking/mapping
func (p *PathResolver) GetAccountFile(nickname, kind string) string {
	return filepath.Join(p.GetAccountDir(nickname), kind)
}

// GetSharedFile returns the path of a file kind shared by all accounts.
func (p *PathResolver) GetSharedFile(kind string) string {
	return filepath.Join(p.configDir, kind)
}

// GetSQLitePath returns the default SQLite database path.
func (p *PathResolver) GetSQLitePath() string {
	return filepath.Join(p.configDir, "transactions.db")
}

// GetBoltPath returns the default bbolt database path.
func (p *PathResolver) GetBoltPath() string {
	return filepath.Join(p.configDir, "transactions.bolt")
}

// FindFile returns the first existing candidate for a file kind: explicit,
// then the per-account file, then the shared file. It returns "" when none
// exists.
func (p *PathResolver) FindFile(explicit, nickname, kind string) string {
	candidates := []string{
		ExpandHome(explicit),
		p.GetAccountFile(nickname, kind),
		p.GetSharedFile(kind),
	}
	for _, c := range candidates {
		if c != "" && p.FileExists(c) && !p.IsDir(c) {
			return c
		}
	}
	return ""
}

// EnsureDir creates a directory if it doesn't exist.
// It creates all parent directories as needed (like mkdir -p).
func (p *PathResolver) EnsureDir(dirPath string) error {
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dirPath, err)
	}
	return nil
}

// EnsureParentDir ensures the parent directory of a file exists.
func (p *PathResolver) EnsureParentDir(filePath string) error {
	dir := filepath.Dir(filePath)
	return p.EnsureDir(dir)
}

// FileExists checks if a file exists.
func (p *PathResolver) FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return err == nil
}

// IsDir checks if a path is a directory.
func (p *PathResolver) IsDir(dirPath string) bool {
	info, err := os.Stat(dirPath)
	if err != nil {
		return false
	}
	return info.IsDir()
}
