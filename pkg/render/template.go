package render

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Template is a parsed field-substitution format. Fields are written
// {name} or {name:spec} where spec is [[fill]align][width] with align one of
// '<', '>' or '^'. Literal braces are doubled. Unknown fields render empty.
type Template struct {
	source string
	parts  []part
}

type part struct {
	literal string
	field   string
	fill    rune
	align   byte
	width   int
}

// ParseTemplate compiles text.
func ParseTemplate(text string) (*Template, error) {
	t := &Template{source: text}
	var lit strings.Builder

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '{' && i+1 < len(text) && text[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(text) && text[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(text[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unclosed '{' at offset %d", i)
			}
			p, err := parseField(text[i+1 : i+end])
			if err != nil {
				return nil, fmt.Errorf("field at offset %d: %w", i, err)
			}
			if lit.Len() > 0 {
				t.parts = append(t.parts, part{literal: lit.String()})
				lit.Reset()
			}
			t.parts = append(t.parts, p)
			i += end
		case c == '}':
			return nil, fmt.Errorf("single '}' at offset %d", i)
		default:
			lit.WriteByte(c)
		}
	}
	if lit.Len() > 0 {
		t.parts = append(t.parts, part{literal: lit.String()})
	}
	return t, nil
}

// MustParseTemplate is ParseTemplate for built-in templates.
func MustParseTemplate(text string) *Template {
	t, err := ParseTemplate(text)
	if err != nil {
		panic(err)
	}
	return t
}

func parseField(s string) (part, error) {
	name, spec, _ := strings.Cut(s, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return part{}, fmt.Errorf("empty field name")
	}
	if strings.ContainsAny(name, "{") {
		return part{}, fmt.Errorf("invalid field name %q", name)
	}

	p := part{field: name, fill: ' '}
	if spec == "" {
		return p, nil
	}

	// A fill character is only present when followed by an align character.
	if r, size := utf8.DecodeRuneInString(spec); size < len(spec) && isAlign(spec[size]) {
		p.fill = r
		p.align = spec[size]
		spec = spec[size+1:]
	} else if isAlign(spec[0]) {
		p.align = spec[0]
		spec = spec[1:]
	}

	if spec != "" {
		w, err := strconv.Atoi(spec)
		if err != nil || w < 0 {
			return part{}, fmt.Errorf("unsupported format spec %q", s)
		}
		p.width = w
	}
	return p, nil
}

func isAlign(c byte) bool {
	return c == '<' || c == '>' || c == '^'
}

// Fields lists the field names used by the template.
func (t *Template) Fields() []string {
	var out []string
	for _, p := range t.parts {
		if p.field != "" {
			out = append(out, p.field)
		}
	}
	return out
}

// String returns the template source.
func (t *Template) String() string {
	return t.source
}

// Execute substitutes fields from values.
func (t *Template) Execute(values map[string]string) string {
	var sb strings.Builder
	for _, p := range t.parts {
		if p.field == "" {
			sb.WriteString(p.literal)
			continue
		}
		sb.WriteString(pad(values[p.field], p))
	}
	return sb.String()
}

func pad(v string, p part) string {
	n := p.width - utf8.RuneCountInString(v)
	if n <= 0 {
		return v
	}
	fill := string(p.fill)
	switch p.align {
	case '>':
		return strings.Repeat(fill, n) + v
	case '^':
		left := n / 2
		return strings.Repeat(fill, left) + v + strings.Repeat(fill, n-left)
	default:
		return v + strings.Repeat(fill, n)
	}
}
