// Package classifier turns a transaction description into a payee, an
// account and tags using a rule set, optionally consulting a human.
//
// Human input is modelled as a suspend/resume protocol: a Session hands out
// Prompt descriptors through Next and is resumed with Answer or Cancel. The
// caller owns the blocking read, so the matching and learning logic runs
// unchanged under tests and on a real console.
package classifier

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/pigeonworks-llc/plaid2text/pkg/rules"
	"github.com/pigeonworks-llc/plaid2text/pkg/store"
)

// ErrCancelled is returned when the human aborts payee or account entry.
var ErrCancelled = errors.New("input cancelled")

// RemovePrefix marks a tag answer as a removal.
const RemovePrefix = "-"

// Field names the value a prompt asks for.
type Field string

const (
	FieldPayee   Field = "Payee"
	FieldAccount Field = "Account"
	FieldTag     Field = "Tag"
)

// Prompt describes one pending human input.
type Prompt struct {
	Field       Field
	Default     string
	Suggestions []string
	// Separator splits values into completion segments. Empty completes
	// whole values.
	Separator string
}

// TagSyntax is the dialect-specific tag handling the tag loop needs.
type TagSyntax interface {
	FormatTags(tags []string) string
	Tagify(input string) string
}

// Policy controls when the human is consulted.
type Policy struct {
	// Quiet skips prompting when a rule matched.
	Quiet bool
	// PromptTags enables the tag edit loop.
	PromptTags bool
	// DefaultExpense is the account proposed when no rule matches.
	DefaultExpense string
}

// Proposal is the classification derived from the rules alone.
type Proposal struct {
	Payee   string
	Account string
	Tags    []string
	Matched bool
}

// Propose looks desc up in rs.
func Propose(rs *rules.RuleSet, desc, defaultExpense string) Proposal {
	if m, ok := rs.Match(desc); ok {
		return Proposal{
			Payee:   m.Rule.Payee,
			Account: m.Rule.Account,
			Tags:    append([]string{}, m.Rule.Tags...),
			Matched: true,
		}
	}
	return Proposal{Payee: desc, Account: defaultExpense, Tags: []string{}}
}

// Result is the final classification of one transaction.
type Result struct {
	Payee   string
	Account string
	Tags    []string
	Matched bool
	// Learned is set when a rule was appended for this transaction.
	Learned bool
}

// Classifier binds a rule set to a policy and a tag syntax.
type Classifier struct {
	rules  *rules.RuleSet
	policy Policy
	syntax TagSyntax
}

// New creates a Classifier.
func New(rs *rules.RuleSet, policy Policy, syntax TagSyntax) *Classifier {
	return &Classifier{rules: rs, policy: policy, syntax: syntax}
}

// Rules returns the rule set the classifier learns into.
func (c *Classifier) Rules() *rules.RuleSet {
	return c.rules
}

// Start opens a classification session for txn.
func (c *Classifier) Start(txn store.Transaction) *Session {
	p := Propose(c.rules, txn.Name, c.policy.DefaultExpense)
	s := &Session{
		c:        c,
		desc:     txn.Name,
		proposal: p,
		payee:    p.Payee,
		account:  p.Account,
		tags:     append([]string{}, p.Tags...),
		step:     stepPayee,
	}
	if c.policy.Quiet && p.Matched {
		s.step = stepDone
	}
	return s
}

type step int

const (
	stepPayee step = iota
	stepAccount
	stepTags
	stepDone
)

// Session is the classification of one transaction in progress.
type Session struct {
	c        *Classifier
	desc     string
	proposal Proposal

	payee   string
	account string
	tags    []string

	step      step
	cancelled bool
	finished  bool
	result    Result
}

// NeedsInput reports whether the session will prompt at all.
func (s *Session) NeedsInput() bool {
	return s.step != stepDone
}

// Next returns the pending prompt, or nil once all input is collected.
func (s *Session) Next() *Prompt {
	sugg := s.c.rules.Suggestions()
	switch s.step {
	case stepPayee:
		return &Prompt{Field: FieldPayee, Default: s.payee, Suggestions: sugg.Payees()}
	case stepAccount:
		return &Prompt{Field: FieldAccount, Default: s.account, Suggestions: sugg.Accounts(), Separator: ":"}
	case stepTags:
		return &Prompt{Field: FieldTag, Default: s.c.syntax.FormatTags(s.tags), Suggestions: sugg.Tags()}
	default:
		return nil
	}
}

// Answer resumes the session with the human's response to the pending
// prompt. A blank answer keeps the default; in the tag loop it ends the loop.
func (s *Session) Answer(input string) error {
	input = strings.TrimSpace(input)
	switch s.step {
	case stepPayee:
		if input != "" {
			s.payee = input
		}
		if s.payee != "" {
			s.step = stepAccount
		}
	case stepAccount:
		if input != "" {
			s.account = input
		}
		if s.account != "" {
			s.step = s.afterAccount()
		}
	case stepTags:
		if input == "" {
			s.step = stepDone
			return nil
		}
		s.editTags(input)
	default:
		return fmt.Errorf("no input pending for %q", s.desc)
	}
	return nil
}

// Cancel aborts the pending prompt. Cancelling the tag loop empties the tag
// set and completes the session; cancelling payee or account entry aborts
// it with ErrCancelled.
func (s *Session) Cancel() error {
	if s.step == stepTags {
		s.tags = []string{}
		s.step = stepDone
		return nil
	}
	s.cancelled = true
	s.step = stepDone
	return ErrCancelled
}

func (s *Session) afterAccount() step {
	if s.c.policy.PromptTags {
		return stepTags
	}
	return stepDone
}

// editTags treats the whole answer as one tag; the syntax's Tagify joins
// words with hyphens.
func (s *Session) editTags(input string) {
	if strings.HasPrefix(input, RemovePrefix) {
		tag := s.c.syntax.Tagify(strings.TrimPrefix(input, RemovePrefix))
		s.tags = slices.DeleteFunc(s.tags, func(t string) bool { return t == tag })
		return
	}
	tag := s.c.syntax.Tagify(input)
	if tag != "" && !slices.Contains(s.tags, tag) {
		s.tags = append(s.tags, tag)
	}
}

// Finish completes the session. When nothing matched, or the human changed
// any field, a rule for the exact description is appended to the rule set.
// Finish is idempotent.
func (s *Session) Finish() (Result, error) {
	if s.cancelled {
		return Result{}, ErrCancelled
	}
	if s.step != stepDone {
		return Result{}, fmt.Errorf("classification of %q still awaits %s", s.desc, s.Next().Field)
	}
	if s.finished {
		return s.result, nil
	}

	res := Result{
		Payee:   s.payee,
		Account: s.account,
		Tags:    s.tags,
		Matched: s.proposal.Matched,
	}

	modified := s.payee != s.proposal.Payee ||
		s.account != s.proposal.Account ||
		!slices.Equal(s.tags, s.proposal.Tags)
	if !s.proposal.Matched || modified {
		if _, err := s.c.rules.Append(s.desc, res.Payee, res.Account, res.Tags); err != nil {
			return Result{}, fmt.Errorf("failed to learn rule for %q: %w", s.desc, err)
		}
		res.Learned = true
	}

	s.finished = true
	s.result = res
	return res, nil
}
