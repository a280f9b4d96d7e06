package console

import (
	"reflect"
	"testing"

	"github.com/pigeonworks-llc/plaid2text/pkg/classifier"
)

func TestSeparatorCompleter(t *testing.T) {
	accounts := []string{
		"Expenses",
		"Expenses:Dining",
		"Expenses:Dining:Coffee",
		"Expenses:Travel",
		"Assets:Bank:Checking",
	}

	tests := []struct {
		name     string
		words    []string
		sep      string
		typed    string
		expected []string
		length   int
	}{
		{"first segment", accounts, ":", "Ex", []string{"penses", "penses:"}, 2},
		{"after separator", accounts, ":", "Expenses:", []string{"Dining", "Dining:", "Travel"}, 9},
		{"at separator boundary", accounts, ":", "Expenses", []string{":Dining", ":Dining:", ":Travel"}, 8},
		{"no match", accounts, ":", "Liab", nil, 4},
		{"whole words", []string{"Coffee Shop", "Coffee Bar", "Cafe"}, "", "Coffee ", []string{"Bar", "Shop"}, 7},
		{"removal marker kept out of match", []string{"food", "fun"}, "", "-fo", []string{"od"}, 2},
		{"empty input lists all", []string{"b", "a"}, "", "", []string{"a", "b"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &SeparatorCompleter{Words: tt.words, Sep: tt.sep}
			line := []rune(tt.typed)
			got, length := c.Do(line, len(line))

			var strs []string
			for _, r := range got {
				strs = append(strs, string(r))
			}
			if !reflect.DeepEqual(strs, tt.expected) {
				t.Errorf("Do() = %q, expected %q", strs, tt.expected)
			}
			if length != tt.length {
				t.Errorf("length = %d, expected %d", length, tt.length)
			}
		})
	}
}

func TestFormatPrompt(t *testing.T) {
	got := FormatPrompt(classifier.Prompt{Field: classifier.FieldAccount, Default: "Expenses:Unknown"})
	if got != "Account [Expenses:Unknown]: " {
		t.Errorf("FormatPrompt() = %q", got)
	}
}
