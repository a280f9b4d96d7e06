// Package rules holds the description-to-classification mapping learned over
// time. A rule file is CSV: pattern, payee, account, then zero or more tags.
// A pattern wrapped in slashes is a case-insensitive regular expression;
// anything else must equal the transaction description exactly.
package rules

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Rule maps a description pattern to a classification.
type Rule struct {
	Pattern string
	Payee   string
	Account string
	Tags    []string

	re *regexp.Regexp
}

// IsRegexp reports whether the rule was written as /pattern/.
func (r Rule) IsRegexp() bool {
	return r.re != nil
}

// Matches reports whether the rule applies to desc. Regex rules match
// anywhere in the description.
func (r Rule) Matches(desc string) bool {
	if r.re != nil {
		return r.re.MatchString(desc)
	}
	return r.Pattern == desc
}

// Match is the result of a successful lookup.
type Match struct {
	Rule  Rule
	Index int
}

// PatternError reports a /regex/ pattern that does not compile.
type PatternError struct {
	File    string
	Line    int
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid regex '%s' in '%s' line %d: %v", e.Pattern, e.File, e.Line, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

// LineError reports a row that cannot be read as a rule.
type LineError struct {
	File   string
	Line   int
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("%s line %d: %s", e.File, e.Line, e.Reason)
}

// RuleSet is the ordered list of rules from one mapping file plus the
// suggestion tables derived from it. Appends go to the end of the file and
// existing lines are never rewritten.
type RuleSet struct {
	path        string
	rules       []Rule
	suggestions *Suggestions
}

// NewRuleSet returns an empty, file-less rule set. Appends stay in memory.
func NewRuleSet() *RuleSet {
	return &RuleSet{suggestions: NewSuggestions()}
}

// Load reads the rule file at path. A missing file yields an empty rule set
// that will create the file on first append. An empty path yields an
// in-memory rule set.
func Load(path string) (*RuleSet, error) {
	rs := NewRuleSet()
	rs.path = path
	if path == "" {
		return rs, nil
	}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return rs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping file: %w", err)
	}
	defer f.Close()

	if err := rs.read(f); err != nil {
		return nil, err
	}
	return rs, nil
}

func (rs *RuleSet) read(r io.Reader) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to parse mapping file %s: %w", rs.path, err)
		}
		line, _ := reader.FieldPos(0)

		if len(record) < 3 {
			return &LineError{File: rs.path, Line: line, Reason: fmt.Sprintf("expected pattern, payee and account, got %d fields", len(record))}
		}

		rule := Rule{
			Pattern: strings.TrimSpace(record[0]),
			Payee:   strings.TrimSpace(record[1]),
			Account: strings.TrimSpace(record[2]),
			Tags:    ParseTagFields(record[3:]),
		}
		if rule.Pattern == "" {
			return &LineError{File: rs.path, Line: line, Reason: "empty pattern"}
		}

		if re, ok, err := compilePattern(rule.Pattern); err != nil {
			return &PatternError{File: rs.path, Line: line, Pattern: rule.Pattern, Err: err}
		} else if ok {
			rule.re = re
		}

		rs.rules = append(rs.rules, rule)
		rs.suggestions.AddRule(rule)
	}
}

func compilePattern(p string) (*regexp.Regexp, bool, error) {
	if !isRegexpPattern(p) {
		return nil, false, nil
	}
	re, err := regexp.Compile("(?i)" + p[1:len(p)-1])
	if err != nil {
		return nil, false, err
	}
	return re, true, nil
}

// Path returns the backing file, or "" for an in-memory rule set.
func (rs *RuleSet) Path() string {
	return rs.path
}

// Rules returns the rules in file order.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Suggestions returns the side tables used for input completion.
func (rs *RuleSet) Suggestions() *Suggestions {
	return rs.suggestions
}

// Match returns the last rule matching desc. Every rule is tested; a later
// match overrides an earlier one.
func (rs *RuleSet) Match(desc string) (Match, bool) {
	var (
		hit   Match
		found bool
	)
	for i, r := range rs.rules {
		if r.Matches(desc) {
			hit = Match{Rule: r, Index: i}
			found = true
		}
	}
	return hit, found
}

// Append adds a rule matching exactly desc and writes it to the end of the
// backing file before returning.
func (rs *RuleSet) Append(desc, payee, account string, tags []string) (Rule, error) {
	rule := Rule{
		Pattern: LiteralPattern(desc),
		Payee:   payee,
		Account: account,
		Tags:    append([]string{}, tags...),
	}
	re, _, err := compilePattern(rule.Pattern)
	if err != nil {
		return Rule{}, &PatternError{File: rs.path, Pattern: rule.Pattern, Err: err}
	}
	rule.re = re

	if rs.path != "" {
		if err := appendRecord(rs.path, rule); err != nil {
			return Rule{}, err
		}
	}

	rs.rules = append(rs.rules, rule)
	rs.suggestions.AddRule(rule)
	return rule, nil
}

// LiteralPattern returns the pattern that matches exactly desc once written
// to and read back from a rule file. Descriptions that the reader would
// alter (surrounding blanks) or take for a regexp (/.../) become an anchored
// regexp.
func LiteralPattern(desc string) string {
	if desc == strings.TrimSpace(desc) && !isRegexpPattern(desc) {
		return desc
	}
	return "/^" + regexp.QuoteMeta(desc) + "$/"
}

func isRegexpPattern(p string) bool {
	return len(p) >= 2 && strings.HasPrefix(p, "/") && strings.HasSuffix(p, "/")
}

func appendRecord(path string, rule Rule) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open mapping file for append: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	record := append([]string{rule.Pattern, rule.Payee, rule.Account}, rule.Tags...)
	if err := w.Write(record); err != nil {
		return fmt.Errorf("failed to write rule: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write rule: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync mapping file: %w", err)
	}
	return nil
}

// ParseTagFields reads the tag columns of a rule row. Each column is a bare
// tag; serialized forms such as ":a:b:" or "#a #b" are split as well.
func ParseTagFields(fields []string) []string {
	tags := []string{}
	seen := map[string]bool{}
	for _, field := range fields {
		for _, tok := range strings.FieldsFunc(field, func(r rune) bool {
			return r == ':' || r == ' ' || r == '\t'
		}) {
			tok = strings.TrimPrefix(tok, "#")
			if tok == "" || seen[tok] {
				continue
			}
			seen[tok] = true
			tags = append(tags, tok)
		}
	}
	return tags
}
