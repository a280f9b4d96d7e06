// Package pipeline runs one render pass over the transaction store.
//
// With config.MarkImmediate each transaction is marked pulled as soon as it
// is classified; a crash before the final write drops those entries from the
// output. With config.MarkAfterWrite marking happens after the write, so a
// crash re-offers the transactions on the next run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/pigeonworks-llc/plaid2text/pkg/classifier"
	"github.com/pigeonworks-llc/plaid2text/pkg/config"
	"github.com/pigeonworks-llc/plaid2text/pkg/output"
	"github.com/pigeonworks-llc/plaid2text/pkg/render"
	"github.com/pigeonworks-llc/plaid2text/pkg/store"
)

// Prompter performs the blocking human interaction.
type Prompter interface {
	// Announce shows the transaction about to be classified.
	Announce(t store.Transaction)
	// Ask returns the answer to p, or classifier.ErrCancelled.
	Ask(ctx context.Context, p classifier.Prompt) (string, error)
}

// Options controls one run.
type Options struct {
	Query store.Query
	// NoMark persists classifications without marking transactions pulled.
	NoMark bool
	// MarkPolicy is config.MarkImmediate or config.MarkAfterWrite.
	MarkPolicy string
	// Header is written before the entries, even when there are none.
	Header string
	// Fallback receives the output when the write fails after transactions
	// were already marked pulled.
	Fallback io.Writer
}

// Report summarizes a run.
type Report struct {
	Candidates  int
	Rendered    int
	Learned     int
	Marked      int
	Interrupted bool
}

// Pipeline wires the collaborators of a render pass.
type Pipeline struct {
	store      store.Store
	classifier *classifier.Classifier
	renderer   *render.Renderer
	output     output.Writer
	prompter   Prompter
	logger     *slog.Logger
}

// New creates a Pipeline.
func New(st store.Store, c *classifier.Classifier, r *render.Renderer, out output.Writer, p Prompter, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:      st,
		classifier: c,
		renderer:   r,
		output:     out,
		prompter:   p,
		logger:     logger,
	}
}

// Run executes one pass. Entries rendered before a cancellation or a failure
// are still written; the returned error wraps classifier.ErrCancelled when
// the human aborted.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Report, error) {
	txns, err := p.store.GetTransactions(ctx, opts.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions: %w", err)
	}

	report := &Report{Candidates: len(txns)}
	p.logger.InfoContext(ctx, "Processing transactions", "count", len(txns), "only_new", opts.Query.OnlyNew)

	var (
		entries []string
		pending []store.Update
		runErr  error
	)

	for _, t := range txns {
		res, err := p.classify(ctx, t)
		if errors.Is(err, classifier.ErrCancelled) {
			report.Interrupted = true
			runErr = err
			break
		}
		if err != nil {
			runErr = err
			break
		}
		if res.Learned {
			report.Learned++
		}

		entry := p.renderer.Render(t, render.Entry{Payee: res.Payee, Account: res.Account, Tags: res.Tags})
		update := store.Update{
			TransactionID:     t.TransactionID,
			Payee:             res.Payee,
			PostingAccount:    p.renderer.PostingAccount(t),
			AssociatedAccount: res.Account,
			Tags:              res.Tags,
		}

		if opts.MarkPolicy == config.MarkAfterWrite {
			pending = append(pending, update)
		} else {
			if err := p.store.UpdateTransaction(ctx, update, !opts.NoMark); err != nil {
				runErr = fmt.Errorf("failed to update transaction %s: %w", t.TransactionID, err)
				break
			}
			if !opts.NoMark {
				report.Marked++
			}
		}

		entries = append(entries, entry)
		p.logger.DebugContext(ctx, "Rendered transaction",
			"transaction_id", t.TransactionID,
			"payee", res.Payee,
			"account", res.Account,
			"learned", res.Learned,
		)
	}

	report.Rendered = len(entries)
	if len(entries) == 0 && opts.Header == "" {
		return report, runErr
	}

	if err := p.output.Write(opts.Header, entries); err != nil {
		err = fmt.Errorf("failed to write output: %w", err)
		if report.Marked > 0 && opts.Fallback != nil {
			p.logger.ErrorContext(ctx, "Writing marked entries to fallback output", "entries", len(entries), "error", err)
			if _, ferr := io.WriteString(opts.Fallback, output.Format(opts.Header, entries)); ferr != nil {
				err = errors.Join(err, fmt.Errorf("failed to write fallback output: %w", ferr))
			}
		}
		return report, errors.Join(runErr, err)
	}

	for _, u := range pending {
		if err := p.store.UpdateTransaction(ctx, u, !opts.NoMark); err != nil {
			return report, errors.Join(runErr, fmt.Errorf("failed to update transaction %s: %w", u.TransactionID, err))
		}
		if !opts.NoMark {
			report.Marked++
		}
	}

	return report, runErr
}

// classify drives one classification session through the prompter.
func (p *Pipeline) classify(ctx context.Context, t store.Transaction) (classifier.Result, error) {
	session := p.classifier.Start(t)
	if session.NeedsInput() {
		p.prompter.Announce(t)
	}

	for prompt := session.Next(); prompt != nil; prompt = session.Next() {
		answer, err := p.prompter.Ask(ctx, *prompt)
		if errors.Is(err, classifier.ErrCancelled) {
			if err := session.Cancel(); err != nil {
				return classifier.Result{}, err
			}
			continue
		}
		if err != nil {
			return classifier.Result{}, fmt.Errorf("failed to read input for %s: %w", t.TransactionID, err)
		}
		if err := session.Answer(answer); err != nil {
			return classifier.Result{}, err
		}
	}

	return session.Finish()
}
