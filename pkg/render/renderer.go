package render

import (
	"fmt"

	"github.com/lestrrat-go/strftime"

	"github.com/pigeonworks-llc/plaid2text/pkg/store"
)

// Options configures a Renderer.
type Options struct {
	Dialect Dialect
	// Template overrides the dialect's default template when set.
	Template *Template
	// DateFormat is a strftime pattern for {transaction_date}.
	DateFormat       string
	PostingAccount   string
	ClearedCharacter string
	Currency         string
	// Addons maps a name to a source field, exposed as {addon_<name>}.
	Addons map[string]string
}

// Entry is the classification applied to one transaction.
type Entry struct {
	Payee   string
	Account string
	Tags    []string
}

// Renderer fills a template for each transaction. It performs no I/O.
type Renderer struct {
	opts    Options
	tmpl    *Template
	dateFmt *strftime.Strftime
}

// NewRenderer validates opts and returns a Renderer.
func NewRenderer(opts Options) (*Renderer, error) {
	if opts.Dialect == nil {
		return nil, fmt.Errorf("no output dialect")
	}

	tmpl := opts.Template
	if tmpl == nil {
		var err error
		if tmpl, err = ParseTemplate(opts.Dialect.DefaultTemplate()); err != nil {
			return nil, fmt.Errorf("invalid default %s template: %w", opts.Dialect.Name(), err)
		}
	}

	pattern := opts.DateFormat
	if pattern == "" {
		pattern = "%Y-%m-%d"
	}
	dateFmt, err := strftime.New(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid output date format %q: %w", pattern, err)
	}

	return &Renderer{opts: opts, tmpl: tmpl, dateFmt: dateFmt}, nil
}

// PostingAccount is the configured posting account, or the one stored
// with t when none is configured.
func (r *Renderer) PostingAccount(t store.Transaction) string {
	if r.opts.PostingAccount != "" {
		return r.opts.PostingAccount
	}
	return t.Meta.PostingAccount
}

// Fields returns the substitution values for t classified as e.
func (r *Renderer) Fields(t store.Transaction, e Entry) map[string]string {
	values := map[string]string{
		"transaction_date":   r.dateFmt.FormatString(t.Date),
		"date":               t.Date.Format(store.DateLayout),
		"cleared_character":  r.opts.ClearedCharacter,
		"payee":              e.Payee,
		"tags":               r.opts.Dialect.TagsField(e.Tags),
		"name":               t.Name,
		"transaction_id":     t.TransactionID,
		"_id":                t.TransactionID,
		"account_id":         t.AccountID,
		"associated_account": e.Account,
		"currency":           r.opts.Currency,
		"amount":             t.Amount.StringFixed(2),
		"posting_account":    r.PostingAccount(t),
	}
	for name, field := range r.opts.Addons {
		if v, ok := t.Source[field]; ok && v != nil {
			values["addon_"+name] = fmt.Sprint(v)
		} else {
			values["addon_"+name] = ""
		}
	}
	return values
}

// Render returns the entry text for t classified as e.
func (r *Renderer) Render(t store.Transaction, e Entry) string {
	return r.tmpl.Execute(r.Fields(t, e))
}
