// Package sqlparams rewrites SQL templates with named parameters into
// positional SQL and binds a name→value mapping onto the result.
//
//	p, err := sqlparams.ParseString(
//	    `select * from test where a = :a or b = :b or c = coalesce(:c, 4.0)`)
//	// p.SQL()   => select * from test where a = ? or b = ? or c = coalesce(?, 4.0)
//	// p.Names() => [a b c]
//	rows, err := p.Query(ctx, stmt, map[string]any{"a": "hello", "b": 3})
//	// binds "hello", 3, nil
//
// The scanner is not a SQL parser. It recognises only the regions in which a
// colon is not a placeholder: single-quoted strings (with '' escapes, and
// backslash escapes in PostgreSQL E'...' strings), double and backtick
// quoted identifiers, line and block comments, PostgreSQL $tag$…$tag$
// strings, and :: casts. Everything else is copied verbatim.
package sqlparams

import (
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MalformedTemplateError reports a template the scanner cannot split into
// literal text and placeholders. Offset is the byte offset of the construct
// at fault.
type MalformedTemplateError struct {
	Offset int
	Reason string
}

func (e *MalformedTemplateError) Error() string {
	return fmt.Sprintf("sqlparams: malformed template at offset %d: %s", e.Offset, e.Reason)
}

// Parameters is a parsed SQL template. It is immutable and safe for
// concurrent use.
type Parameters struct {
	// parts[i] is the literal text before the i-th placeholder; the final
	// element is the text after the last one. len(parts) == len(names)+1.
	parts []string
	names []string
	ph    Placeholder
	sql   string
}

type options struct {
	ph Placeholder
}

// Option configures Parse.
type Option func(*options)

// WithPlaceholder selects the positional marker style. The default is
// Question.
func WithPlaceholder(ph Placeholder) Option {
	return func(o *options) { o.ph = ph }
}

// Parse reads a template from r.
func Parse(r io.Reader, opts ...Option) (*Parameters, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("sqlparams: read template: %w", err)
	}
	return ParseString(string(b), opts...)
}

// ParseString parses a template held in memory.
func ParseString(query string, opts ...Option) (*Parameters, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	toks, err := findNamedParams(query)
	if err != nil {
		return nil, err
	}
	p := &Parameters{
		parts: make([]string, 0, len(toks)+1),
		names: make([]string, 0, len(toks)),
		ph:    o.ph,
	}
	last := 0
	for _, t := range toks {
		p.parts = append(p.parts, query[last:t.start])
		p.names = append(p.names, t.name)
		last = t.end
	}
	p.parts = append(p.parts, query[last:])
	p.sql = p.SQLFor(o.ph)
	return p, nil
}

// SQL returns the rewritten statement text in the configured marker style.
func (p *Parameters) SQL() string { return p.sql }

// SQLFor renders the statement text with a different marker style.
func (p *Parameters) SQLFor(ph Placeholder) string {
	n := 0
	for _, s := range p.parts {
		n += len(s)
	}
	b := make([]byte, 0, n+4*len(p.names))
	for i, s := range p.parts {
		b = append(b, s...)
		if i < len(p.names) {
			b = ph.appendMarker(b, i+1)
		}
	}
	return string(b)
}

// Placeholder returns the configured marker style.
func (p *Parameters) Placeholder() Placeholder { return p.ph }

// Names returns the placeholder names in the order they appear, repeats
// included.
func (p *Parameters) Names() []string {
	return append([]string(nil), p.names...)
}

// Len returns the number of positional markers.
func (p *Parameters) Len() int { return len(p.names) }

type nameToken struct {
	name  string
	start int
	end   int
}

func findNamedParams(query string) ([]nameToken, error) {
	var out []nameToken
	i := 0
	for i < len(query) {
		r, w := utf8.DecodeRuneInString(query[i:])
		switch r {
		case '\'':
			skip := skipQuoted
			if isEscapePrefix(query, i) {
				skip = skipEscaped
			}
			j, err := skip(query, i, '\'', "unterminated string literal")
			if err != nil {
				return nil, err
			}
			i = j
			continue
		case '"':
			j, err := skipQuoted(query, i, '"', "unterminated quoted identifier")
			if err != nil {
				return nil, err
			}
			i = j
			continue
		case '`':
			j, err := skipQuoted(query, i, '`', "unterminated quoted identifier")
			if err != nil {
				return nil, err
			}
			i = j
			continue
		case '-':
			if strings.HasPrefix(query[i:], "--") {
				i = skipLineComment(query, i+2)
				continue
			}
		case '/':
			if strings.HasPrefix(query[i:], "/*") {
				j, err := skipBlockComment(query, i)
				if err != nil {
					return nil, err
				}
				i = j
				continue
			}
		case '$':
			if j, ok, err := skipDollarQuoted(query, i); err != nil {
				return nil, err
			} else if ok {
				i = j
				continue
			}
		case ':':
			next, nw := utf8.DecodeRuneInString(query[i+w:])
			switch {
			case next == ':':
				// PostgreSQL cast.
				i += w + nw
				continue
			case next == '=' || unicode.IsDigit(next):
				// Assignment operators and positional markers such as :1
				// pass through.
				i += w
				continue
			case isIdentStart(next):
				name, end := parseIdent(query, i+w)
				out = append(out, nameToken{name: name, start: i, end: end})
				i = end
				continue
			default:
				return nil, &MalformedTemplateError{Offset: i, Reason: "unmatched placeholder"}
			}
		}
		i += w
	}
	return out, nil
}

func skipQuoted(s string, start int, q byte, reason string) (int, error) {
	i := start + 1
	for i < len(s) {
		if s[i] == q {
			if i+1 < len(s) && s[i+1] == q {
				i += 2
				continue
			}
			return i + 1, nil
		}
		i++
	}
	return 0, &MalformedTemplateError{Offset: start, Reason: reason}
}

// isEscapePrefix reports whether the quote at i opens a PostgreSQL E'...'
// string, in which a backslash escapes the next byte.
func isEscapePrefix(s string, i int) bool {
	if i == 0 || (s[i-1] != 'E' && s[i-1] != 'e') {
		return false
	}
	if i == 1 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i-1])
	return !isTagChar(r)
}

func skipEscaped(s string, start int, q byte, reason string) (int, error) {
	i := start + 1
	for i < len(s) {
		switch {
		case s[i] == '\\':
			i += 2
			continue
		case s[i] == q && i+1 < len(s) && s[i+1] == q:
			i += 2
			continue
		case s[i] == q:
			return i + 1, nil
		}
		i++
	}
	return 0, &MalformedTemplateError{Offset: start, Reason: reason}
}

func skipLineComment(s string, i int) int {
	if j := strings.IndexByte(s[i:], '\n'); j >= 0 {
		return i + j + 1
	}
	return len(s)
}

func skipBlockComment(s string, start int) (int, error) {
	if j := strings.Index(s[start+2:], "*/"); j >= 0 {
		return start + 2 + j + 2, nil
	}
	return 0, &MalformedTemplateError{Offset: start, Reason: "unterminated block comment"}
}

// skipDollarQuoted handles $$…$$ and $tag$…$tag$. A '$' that does not open
// such a block (for example a $1 marker) reports ok == false.
func skipDollarQuoted(s string, i int) (int, bool, error) {
	j := i + 1
	for j < len(s) && s[j] != '$' {
		r, w := utf8.DecodeRuneInString(s[j:])
		if !isTagChar(r) {
			return 0, false, nil
		}
		j += w
	}
	if j >= len(s) {
		return 0, false, nil
	}
	tag := s[i : j+1]
	if len(tag) > 2 && unicode.IsDigit(rune(tag[1])) {
		return 0, false, nil
	}
	k := strings.Index(s[j+1:], tag)
	if k < 0 {
		return 0, true, &MalformedTemplateError{Offset: i, Reason: "unterminated dollar-quoted string"}
	}
	return j + 1 + k + len(tag), true, nil
}

func isIdentStart(r rune) bool { return r == '_' || unicode.IsLetter(r) }
func isTagChar(r rune) bool    { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }

func parseIdent(s string, i int) (string, int) {
	start := i
	for i < len(s) {
		r, w := utf8.DecodeRuneInString(s[i:])
		if !isTagChar(r) {
			break
		}
		i += w
	}
	return s[start:i], i
}
