package rules

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mapping")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write mapping file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeRules(t, strings.Join([]string{
		`STARBUCKS #123,Starbucks,Expenses:Coffee,food`,
		``,
		`/^uber/,Uber,Expenses:Travel`,
		`"AMAZON, INC",Amazon,Expenses:Shopping,:home:gifts:`,
		`NETFLIX,Netflix,Expenses:Subscriptions,#media #fun`,
	}, "\n"))

	rs, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rs.Len() != 4 {
		t.Fatalf("Len() = %d, expected 4", rs.Len())
	}

	rules := rs.Rules()
	tests := []struct {
		idx     int
		pattern string
		regexp  bool
		tags    []string
	}{
		{0, "STARBUCKS #123", false, []string{"food"}},
		{1, "/^uber/", true, []string{}},
		{2, "AMAZON, INC", false, []string{"home", "gifts"}},
		{3, "NETFLIX", false, []string{"media", "fun"}},
	}
	for _, tt := range tests {
		r := rules[tt.idx]
		if r.Pattern != tt.pattern {
			t.Errorf("rule %d pattern = %q, expected %q", tt.idx, r.Pattern, tt.pattern)
		}
		if r.IsRegexp() != tt.regexp {
			t.Errorf("rule %d IsRegexp() = %v, expected %v", tt.idx, r.IsRegexp(), tt.regexp)
		}
		if !reflect.DeepEqual(r.Tags, tt.tags) {
			t.Errorf("rule %d tags = %v, expected %v", tt.idx, r.Tags, tt.tags)
		}
	}

	if got := rs.Suggestions().Accounts(); len(got) != 4 {
		t.Errorf("Accounts() = %v, expected 4 entries", got)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	rs, err := Load(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rs.Len() != 0 {
		t.Errorf("Len() = %d, expected 0", rs.Len())
	}
}

func TestLoad_InvalidRegex(t *testing.T) {
	path := writeRules(t, "OK,Ok,Expenses:Ok\n/foo(/,Foo,Expenses:Foo\n")

	_, err := Load(path)
	var perr *PatternError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PatternError, got %v", err)
	}
	if perr.Pattern != "/foo(/" || perr.File != path || perr.Line != 2 {
		t.Errorf("PatternError = %+v", perr)
	}
	if !strings.Contains(err.Error(), path) {
		t.Errorf("error should name the file: %v", err)
	}
}

func TestLoad_ShortRow(t *testing.T) {
	path := writeRules(t, "ONLY,Two\n")

	_, err := Load(path)
	var lerr *LineError
	if !errors.As(err, &lerr) {
		t.Fatalf("expected LineError, got %v", err)
	}
	if lerr.Line != 1 {
		t.Errorf("Line = %d, expected 1", lerr.Line)
	}
}

func TestMatch_LastMatchWins(t *testing.T) {
	path := writeRules(t, strings.Join([]string{
		`/coffee/,Generic Coffee,Expenses:Coffee`,
		`BLUE BOTTLE COFFEE,Blue Bottle,Expenses:Dining`,
		`/bottle/,Bottles,Expenses:Shopping`,
	}, "\n"))
	rs, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name    string
		desc    string
		payee   string
		index   int
		matched bool
	}{
		{"regex overrides earlier literal", "BLUE BOTTLE COFFEE", "Bottles", 2, true},
		{"case-insensitive partial regex", "Morning COFFEE run", "Generic Coffee", 0, true},
		{"literal is exact", "blue bottle coffee", "Bottles", 2, true},
		{"no match", "RENT", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := rs.Match(tt.desc)
			if ok != tt.matched {
				t.Fatalf("Match() ok = %v, expected %v", ok, tt.matched)
			}
			if !ok {
				return
			}
			if m.Rule.Payee != tt.payee || m.Index != tt.index {
				t.Errorf("Match() = %+v, expected payee %q index %d", m, tt.payee, tt.index)
			}
		})
	}
}

func TestAppend(t *testing.T) {
	path := writeRules(t, "/coffee/,Coffee,Expenses:Coffee\n")
	rs, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, err := rs.Append("JOE'S, COFFEE", "Coffee Shop", "Expenses:Dining", nil); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := rs.Append("LUNCH SPOT", "Lunch", "Expenses:Dining", []string{"food", "work"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	m, ok := rs.Match("JOE'S, COFFEE")
	if !ok || m.Rule.Payee != "Coffee Shop" {
		t.Errorf("appended rule should win over earlier regex, got %+v", m)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read mapping file: %v", err)
	}
	expected := "/coffee/,Coffee,Expenses:Coffee\n" +
		"\"JOE'S, COFFEE\",Coffee Shop,Expenses:Dining\n" +
		"LUNCH SPOT,Lunch,Expenses:Dining,food,work\n"
	if string(data) != expected {
		t.Errorf("mapping file =\n%s\nexpected\n%s", data, expected)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	m, ok = reloaded.Match("LUNCH SPOT")
	if !ok || !reflect.DeepEqual(m.Rule.Tags, []string{"food", "work"}) {
		t.Errorf("reloaded rule = %+v", m)
	}
}

func TestAppend_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping")
	rs, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := rs.Append("A", "B", "C", nil); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("mapping file not created: %v", err)
	}
}

func TestAppend_InMemory(t *testing.T) {
	rs := NewRuleSet()
	if _, err := rs.Append("A", "B", "C", []string{"x"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if rs.Len() != 1 {
		t.Errorf("Len() = %d, expected 1", rs.Len())
	}
	if got := rs.Suggestions().Tags(); !reflect.DeepEqual(got, []string{"x"}) {
		t.Errorf("Tags() = %v", got)
	}
}

func TestAppend_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		desc    string
		pattern string
		other   string
	}{
		{"plain", "STARBUCKS #123", "STARBUCKS #123", "STARBUCKS"},
		{"trailing blanks", "DEBIT CARD PURCHASE  ", `/^DEBIT CARD PURCHASE  $/`, "DEBIT CARD PURCHASE"},
		{"leading blank", " ACH DEPOSIT", `/^ ACH DEPOSIT$/`, "ACH DEPOSIT"},
		{"slashes", "/PAYROLL/", `/^/PAYROLL/$/`, "PAYROLL"},
		{"regexp metacharacters", " PAY (1/2) $5.00", `/^ PAY \(1/2\) \$5\.00$/`, " PAY (1/2) $5000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "mapping")
			rs, err := Load(path)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			rule, err := rs.Append(tt.desc, "Payee", "Expenses:Test", nil)
			if err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			if rule.Pattern != tt.pattern {
				t.Errorf("Pattern = %q, expected %q", rule.Pattern, tt.pattern)
			}
			if _, ok := rs.Match(tt.desc); !ok {
				t.Errorf("in-memory rule does not match %q", tt.desc)
			}

			reloaded, err := Load(path)
			if err != nil {
				t.Fatalf("reload error = %v", err)
			}
			m, ok := reloaded.Match(tt.desc)
			if !ok || m.Rule.Payee != "Payee" {
				t.Fatalf("reloaded rule does not match %q", tt.desc)
			}
			if _, ok := reloaded.Match(tt.other); ok {
				t.Errorf("reloaded rule for %q also matches %q", tt.desc, tt.other)
			}
		})
	}
}

func TestParseTagFields(t *testing.T) {
	tests := []struct {
		fields   []string
		expected []string
	}{
		{nil, []string{}},
		{[]string{""}, []string{}},
		{[]string{"a", "b"}, []string{"a", "b"}},
		{[]string{":a:b:"}, []string{"a", "b"}},
		{[]string{"#a #b", "a"}, []string{"a", "b"}},
	}
	for _, tt := range tests {
		if got := ParseTagFields(tt.fields); !reflect.DeepEqual(got, tt.expected) {
			t.Errorf("ParseTagFields(%q) = %v, expected %v", tt.fields, got, tt.expected)
		}
	}
}
