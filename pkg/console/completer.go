package console

import (
	"sort"
	"strings"

	"github.com/pigeonworks-llc/plaid2text/pkg/classifier"
)

// SeparatorCompleter completes the typed text against Words one segment at
// a time, where segments end at Sep. An empty Sep completes whole words. A
// leading removal marker is kept in front of the completed word.
type SeparatorCompleter struct {
	Words []string
	Sep   string
}

// Do implements readline.AutoCompleter.
func (c *SeparatorCompleter) Do(line []rune, pos int) ([][]rune, int) {
	text := string(line[:pos])
	text = strings.TrimPrefix(text, classifier.RemovePrefix)

	seen := map[string]bool{}
	var suffixes []string
	for _, w := range c.Words {
		if !strings.HasPrefix(w, text) {
			continue
		}
		suffix := w[len(text):]
		if suffix == "" {
			continue
		}
		if c.Sep != "" && len(suffix) > 1 {
			if i := strings.Index(suffix[1:], c.Sep); i >= 0 {
				suffix = suffix[:i+1+len(c.Sep)]
			}
		}
		if !seen[suffix] {
			seen[suffix] = true
			suffixes = append(suffixes, suffix)
		}
	}
	sort.Strings(suffixes)

	out := make([][]rune, len(suffixes))
	for i, s := range suffixes {
		out[i] = []rune(s)
	}
	return out, len([]rune(text))
}
