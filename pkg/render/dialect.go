// Package render formats classified transactions as plain-text accounting
// entries. A Dialect supplies the tag syntax, the default template and the
// suggestion sources of one output format; the Renderer fills a template.
package render

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pigeonworks-llc/plaid2text/pkg/journal"
	"github.com/pigeonworks-llc/plaid2text/pkg/rules"
)

// Output format names.
const (
	FormatLedger    = "ledger"
	FormatBeancount = "beancount"
)

// DefaultLedgerTemplate is the built-in ledger entry layout.
const DefaultLedgerTemplate = `{transaction_date} {cleared_character} {payee}{tags}
    ; plaid_name: {name}
    ; _id: {transaction_id}
    {associated_account:<60}   {currency} {amount}
    {posting_account:<60}
`

// DefaultBeancountTemplate is the built-in beancount entry layout.
const DefaultBeancountTemplate = `{transaction_date} {cleared_character} "{payee}" ""{tags}
    plaid_name: "{name}"
    plaid_id: "{transaction_id}"
    {associated_account:<60}   {amount} {currency}
    {posting_account}
`

// Sources are the optional files suggestions are read from.
type Sources struct {
	JournalFile  string
	AccountsFile string
}

// Dialect is one output format.
type Dialect interface {
	Name() string
	DefaultTemplate() string
	// FormatTags serializes tags the way they appear in an entry.
	FormatTags(tags []string) string
	// ParseTags is the inverse of FormatTags.
	ParseTags(s string) []string
	// Tagify normalizes one human-entered tag.
	Tagify(input string) string
	// TagsField is the value substituted for {tags}, including its leading
	// separator, or "" when there are no tags.
	TagsField(tags []string) string
	// Suggest adds names found in src to into. Errors are advisory.
	Suggest(ctx context.Context, src Sources, into *rules.Suggestions) error
}

// DialectFor returns the dialect named by an output format.
func DialectFor(format string) (Dialect, error) {
	switch format {
	case FormatLedger:
		return Ledger{}, nil
	case FormatBeancount:
		return Beancount{}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

func normalizeTag(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	return strings.ReplaceAll(s, " ", "-")
}

// Ledger writes tags as ":a:b:" in a trailing comment.
type Ledger struct{}

func (Ledger) Name() string            { return FormatLedger }
func (Ledger) DefaultTemplate() string { return DefaultLedgerTemplate }

func (Ledger) FormatTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return ":" + strings.Join(tags, ":") + ":"
}

func (Ledger) ParseTags(s string) []string {
	return rules.ParseTagFields([]string{s})
}

func (Ledger) Tagify(input string) string {
	s := strings.Trim(normalizeTag(input), ":")
	s = strings.TrimPrefix(s, "#")
	return strings.ReplaceAll(s, ":", "-")
}

func (l Ledger) TagsField(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return " ; " + l.FormatTags(tags)
}

// Suggest queries the ledger binary for payees and accounts, then adds the
// account directives of the accounts file.
func (Ledger) Suggest(ctx context.Context, src Sources, into *rules.Suggestions) error {
	var errs []error

	payees, err := journal.LedgerList(ctx, src.JournalFile, "payees")
	if err != nil {
		errs = append(errs, err)
	}
	into.AddPayees(payees...)

	accounts, err := journal.LedgerList(ctx, src.JournalFile, "accounts")
	if err != nil && !errors.Is(err, journal.ErrLedgerNotFound) {
		errs = append(errs, err)
	}
	into.AddAccounts(accounts...)

	declared, err := journal.ReadAccountsFile(src.AccountsFile)
	if err != nil {
		errs = append(errs, err)
	}
	into.AddAccounts(declared...)

	return errors.Join(errs...)
}

// Beancount writes tags as "#a #b" after the narration.
type Beancount struct{}

func (Beancount) Name() string            { return FormatBeancount }
func (Beancount) DefaultTemplate() string { return DefaultBeancountTemplate }

func (Beancount) FormatTags(tags []string) string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = "#" + t
	}
	return strings.Join(out, " ")
}

func (Beancount) ParseTags(s string) []string {
	tags := []string{}
	for _, f := range strings.Fields(s) {
		if t := strings.TrimPrefix(f, "#"); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func (Beancount) Tagify(input string) string {
	return strings.TrimPrefix(normalizeTag(input), "#")
}

func (b Beancount) TagsField(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return " " + b.FormatTags(tags)
}

// Suggest parses the journal for payees, tags and accounts.
func (Beancount) Suggest(ctx context.Context, src Sources, into *rules.Suggestions) error {
	entries, err := journal.ParseBeancount(src.JournalFile)
	if err != nil {
		return err
	}
	into.AddPayees(entries.Payees...)
	into.AddAccounts(entries.Accounts...)
	into.AddTags(entries.Tags...)
	return nil
}
