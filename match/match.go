// Package match translates SQL LIKE-style patterns into either a fast
// specialized operation or a deterministic RE2 regular expression.
//
// Pattern syntax: `%` matches any run of characters, `_` matches exactly
// one, and backslash escapes the next character.
package match

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hupe1980/segcore/model"
)

// Kind classifies what a translated pattern reduced to.
type Kind uint8

const (
	// KindAll matches every non-null row (pattern "%", "%%", ...).
	KindAll Kind = iota
	// KindExact is an equality compare (no wildcards).
	KindExact
	// KindPrefix is an anchored prefix compare.
	KindPrefix
	// KindPostfix is an anchored suffix compare.
	KindPostfix
	// KindInner is a substring compare.
	KindInner
	// KindRegex needs the compiled regular expression.
	KindRegex
)

// Matcher is a translated LIKE pattern.
type Matcher struct {
	Kind    Kind
	Literal string // operand for the specialized kinds
	re      *regexp.Regexp
}

// Translate parses a LIKE pattern. The empty pattern is rejected with
// model.ErrInvalidParameter.
func Translate(pattern string) (*Matcher, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty match pattern", model.ErrInvalidParameter)
	}

	// Tokenize into literal runes and wildcard markers, honoring escapes.
	type token struct {
		r        rune
		wildcard bool // '%' or '_'
	}
	var tokens []token
	escaped := false
	for _, r := range pattern {
		if escaped {
			tokens = append(tokens, token{r: r})
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		tokens = append(tokens, token{r: r, wildcard: r == '%' || r == '_'})
	}
	if escaped {
		// Trailing backslash escapes nothing; treat it as a literal.
		tokens = append(tokens, token{r: '\\'})
	}

	hasUnderscore := false
	for _, t := range tokens {
		if t.wildcard && t.r == '_' {
			hasUnderscore = true
		}
	}

	if !hasUnderscore {
		// The anchored shapes reduce to plain string ops.
		var sb strings.Builder
		leading, trailing, inner := 0, 0, false
		i, n := 0, len(tokens)
		for i < n && tokens[i].wildcard {
			leading++
			i++
		}
		j := n
		for j > i && tokens[j-1].wildcard {
			trailing++
			j--
		}
		for k := i; k < j; k++ {
			if tokens[k].wildcard {
				inner = true
				break
			}
			sb.WriteRune(tokens[k].r)
		}
		if !inner {
			lit := sb.String()
			switch {
			case lit == "":
				return &Matcher{Kind: KindAll}, nil
			case leading == 0 && trailing == 0:
				return &Matcher{Kind: KindExact, Literal: lit}, nil
			case leading == 0:
				return &Matcher{Kind: KindPrefix, Literal: lit}, nil
			case trailing == 0:
				return &Matcher{Kind: KindPostfix, Literal: lit}, nil
			default:
				return &Matcher{Kind: KindInner, Literal: lit}, nil
			}
		}
	}

	// General shape: build an anchored RE2 expression. (?s) keeps `%` and
	// `_` matching newlines too.
	var sb strings.Builder
	sb.WriteString("(?s)^")
	for _, t := range tokens {
		if t.wildcard {
			if t.r == '%' {
				sb.WriteString(".*")
			} else {
				sb.WriteString(".")
			}
			continue
		}
		sb.WriteString(regexp.QuoteMeta(string(t.r)))
	}
	sb.WriteString("$")

	re, err := regexp.Compile(sb.String())
	if err != nil {
		return nil, fmt.Errorf("%w: pattern %q: %v", model.ErrInvalidParameter, pattern, err)
	}
	return &Matcher{Kind: KindRegex, re: re}, nil
}

// Matches applies the translated pattern to s.
func (m *Matcher) Matches(s string) bool {
	switch m.Kind {
	case KindAll:
		return true
	case KindExact:
		return s == m.Literal
	case KindPrefix:
		return strings.HasPrefix(s, m.Literal)
	case KindPostfix:
		return strings.HasSuffix(s, m.Literal)
	case KindInner:
		return strings.Contains(s, m.Literal)
	default:
		return m.re.MatchString(s)
	}
}

// LiteralRuns returns the literal operand of a specialized (exact, prefix,
// postfix or inner) pattern as a single run, used by n-gram candidate
// generation. Match-all and regex-backed patterns yield nil.
func (m *Matcher) LiteralRuns() []string {
	if m.Kind != KindRegex {
		if m.Kind == KindAll {
			return nil
		}
		return []string{m.Literal}
	}
	return nil
}
