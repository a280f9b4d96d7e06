// Package console is the terminal side of interactive classification: it
// shows a transaction summary and reads one answer per prompt with
// type-ahead completion.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/pigeonworks-llc/plaid2text/pkg/classifier"
	"github.com/pigeonworks-llc/plaid2text/pkg/store"
)

const clearSequence = "\033[2J\033[;H"

// Console prompts on a terminal. Prompts and summaries go to out so that
// entries written to stdout stay clean.
type Console struct {
	rl          *readline.Instance
	out         io.Writer
	clearScreen bool

	date   *color.Color
	name   *color.Color
	debit  *color.Color
	credit *color.Color
}

// New opens a readline session on stdin writing to out.
func New(out io.Writer, clearScreen bool) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Stdout:          out,
		Stderr:          out,
		InterruptPrompt: "^C",
		EOFPrompt:       "^D",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open terminal: %w", err)
	}
	return &Console{
		rl:          rl,
		out:         out,
		clearScreen: clearScreen,
		date:        color.New(color.FgCyan),
		name:        color.New(color.Bold),
		debit:       color.New(color.FgRed),
		credit:      color.New(color.FgGreen),
	}, nil
}

// Close restores the terminal.
func (c *Console) Close() error {
	return c.rl.Close()
}

// Announce prints the summary of the transaction about to be classified.
func (c *Console) Announce(t store.Transaction) {
	if c.clearScreen {
		fmt.Fprint(c.out, clearSequence)
	}
	fmt.Fprintln(c.out)
	c.date.Fprint(c.out, t.Date.Format(store.DateLayout))
	fmt.Fprint(c.out, " ")
	c.name.Fprintf(c.out, "%-40s", t.Name)
	fmt.Fprint(c.out, " ")
	amount := c.debit
	if t.Amount.IsNegative() {
		amount = c.credit
	}
	amount.Fprintln(c.out, t.Amount.StringFixed(2))
}

// Ask reads the answer to p. Ctrl-C and Ctrl-D return
// classifier.ErrCancelled.
func (c *Console) Ask(ctx context.Context, p classifier.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.rl.Config.AutoComplete = &SeparatorCompleter{Words: p.Suggestions, Sep: p.Separator}
	c.rl.SetPrompt(FormatPrompt(p))

	line, err := c.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
		return "", classifier.ErrCancelled
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(string(p.Field)), err)
	}
	return line, nil
}

// FormatPrompt renders "Field [default]: ".
func FormatPrompt(p classifier.Prompt) string {
	return fmt.Sprintf("%s [%s]: ", p.Field, p.Default)
}
