// Package journal reads existing accounting files for completion
// suggestions. Every source is read-only and optional: a missing file or a
// missing ledger binary yields no suggestions rather than a failure.
package journal

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ErrLedgerNotFound is returned when no ledger binary is on PATH.
var ErrLedgerNotFound = errors.New("ledger binary not found")

// Entries are the names found in a journal.
type Entries struct {
	Payees   []string
	Accounts []string
	Tags     []string
}

var accountDirective = regexp.MustCompile(`^\s*account\s+([:A-Za-z0-9\-_ ]+)$`)

// ReadAccountsFile returns the names declared by "account" directives in a
// ledger accounts file. Other lines are ignored.
func ReadAccountsFile(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open accounts file: %w", err)
	}
	defer f.Close()

	var accounts []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if m := accountDirective.FindStringSubmatch(scanner.Text()); m != nil {
			accounts = append(accounts, strings.TrimSpace(m[1]))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read accounts file: %w", err)
	}
	return accounts, nil
}

// LedgerList runs `ledger -f journal <command>` (payees, accounts, tags)
// and returns one entry per output line.
func LedgerList(ctx context.Context, journalFile, command string) ([]string, error) {
	if journalFile == "" {
		return nil, nil
	}
	bin, err := exec.LookPath("ledger")
	if err != nil {
		return nil, ErrLedgerNotFound
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-f", journalFile, command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ledger %s failed: %w: %s", command, err, strings.TrimSpace(stderr.String()))
	}

	var items []string
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			items = append(items, line)
		}
	}
	return items, scanner.Err()
}

var (
	bcOpen    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\s+open\s+(\S+)`)
	bcTxn     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}\s+(?:txn|[*!])\s*(.*)$`)
	bcString  = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
	bcTag     = regexp.MustCompile(`(?:^|\s)#([A-Za-z0-9\-_/.]+)`)
	bcPosting = regexp.MustCompile(`^\s+[*!]?\s*([A-Z][A-Za-z0-9\-]*(?::[A-Z0-9][A-Za-z0-9\-]*)+)`)
	bcInclude = regexp.MustCompile(`^include\s+"([^"]+)"`)
)

// ParseBeancount collects payees, tags, posting accounts and opened
// accounts from a beancount journal, following include directives.
func ParseBeancount(path string) (*Entries, error) {
	p := &bcParser{
		seen:     map[string]bool{},
		payees:   map[string]struct{}{},
		accounts: map[string]struct{}{},
		tags:     map[string]struct{}{},
	}
	if path != "" {
		if err := p.parse(path); err != nil {
			return nil, err
		}
	}
	return &Entries{
		Payees:   keys(p.payees),
		Accounts: keys(p.accounts),
		Tags:     keys(p.tags),
	}, nil
}

type bcParser struct {
	seen     map[string]bool
	payees   map[string]struct{}
	accounts map[string]struct{}
	tags     map[string]struct{}
}

func (p *bcParser) parse(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if p.seen[abs] {
		return nil
	}
	p.seen[abs] = true

	f, err := os.Open(abs)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	var includes []string
	inTxn := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			inTxn = false
			continue
		}
		if strings.HasPrefix(trimmed, ";") {
			continue
		}

		if m := bcInclude.FindStringSubmatch(line); m != nil {
			includes = append(includes, m[1])
			inTxn = false
			continue
		}
		if m := bcOpen.FindStringSubmatch(line); m != nil {
			p.accounts[m[1]] = struct{}{}
			inTxn = false
			continue
		}
		if m := bcTxn.FindStringSubmatch(line); m != nil {
			p.header(m[1])
			inTxn = true
			continue
		}
		if inTxn {
			if m := bcPosting.FindStringSubmatch(line); m != nil {
				p.accounts[m[1]] = struct{}{}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read journal %s: %w", abs, err)
	}

	dir := filepath.Dir(abs)
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(dir, inc)
		}
		matches, err := filepath.Glob(inc)
		if err != nil {
			return fmt.Errorf("invalid include %q in %s: %w", inc, abs, err)
		}
		for _, m := range matches {
			if err := p.parse(m); err != nil {
				return err
			}
		}
	}
	return nil
}

// header handles the part of a transaction line after the flag.
func (p *bcParser) header(rest string) {
	strs := bcString.FindAllStringSubmatch(rest, -1)
	if len(strs) >= 2 && strs[0][1] != "" {
		p.payees[strs[0][1]] = struct{}{}
	}
	tail := bcString.ReplaceAllString(rest, "")
	for _, m := range bcTag.FindAllStringSubmatch(tail, -1) {
		p.tags[m[1]] = struct{}{}
	}
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
