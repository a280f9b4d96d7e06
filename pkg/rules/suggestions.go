package rules

import "sort"

// Suggestions collects known payees, accounts and tags for type-ahead
// completion. It is never consulted for matching.
type Suggestions struct {
	payees   map[string]struct{}
	accounts map[string]struct{}
	tags     map[string]struct{}
}

// NewSuggestions returns empty tables.
func NewSuggestions() *Suggestions {
	return &Suggestions{
		payees:   map[string]struct{}{},
		accounts: map[string]struct{}{},
		tags:     map[string]struct{}{},
	}
}

// AddRule records the values of r.
func (s *Suggestions) AddRule(r Rule) {
	s.AddPayees(r.Payee)
	s.AddAccounts(r.Account)
	s.AddTags(r.Tags...)
}

func (s *Suggestions) AddPayees(values ...string)   { add(s.payees, values) }
func (s *Suggestions) AddAccounts(values ...string) { add(s.accounts, values) }
func (s *Suggestions) AddTags(values ...string)     { add(s.tags, values) }

// Payees returns the known payees sorted.
func (s *Suggestions) Payees() []string { return sorted(s.payees) }

// Accounts returns the known accounts sorted.
func (s *Suggestions) Accounts() []string { return sorted(s.accounts) }

// Tags returns the known tags sorted.
func (s *Suggestions) Tags() []string { return sorted(s.tags) }

func add(set map[string]struct{}, values []string) {
	for _, v := range values {
		if v != "" {
			set[v] = struct{}{}
		}
	}
}

func sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
