// Package rules holds the live classification rule set: a versioned
// copy-on-write store plus the pure matching engine that evaluates one
// article against a rule-set snapshot.
package rules

import (
	"errors"
	"regexp"
	"strings"

	"github.com/orbitwire/newsclean/internal/domain"
)

type matcherKind int

const (
	kindLiteral matcherKind = iota
	kindRegex
)

// Matcher is a compiled rule pattern. Patterns are compiled once at
// rule-store mutation time and cached on the snapshot, never per
// evaluation.
type Matcher struct {
	kind    matcherKind
	literal string // lowercased, kindLiteral only
	re      *regexp.Regexp
}

var errEmptyPattern = errors.New("pattern is empty")

// Compile builds a matcher from a rule pattern. A pattern wrapped in
// slashes is compiled as a case-insensitive regular expression; anything
// else is a case-insensitive literal substring. Patterns that do not
// compile are rejected with domain.InvalidPatternError.
func Compile(pattern string) (Matcher, error) {
	trimmed := strings.TrimSpace(pattern)
	if trimmed == "" {
		return Matcher{}, &domain.InvalidPatternError{Pattern: pattern, Err: errEmptyPattern}
	}

	if len(trimmed) > 2 && strings.HasPrefix(trimmed, "/") && strings.HasSuffix(trimmed, "/") {
		re, err := regexp.Compile("(?i)" + trimmed[1:len(trimmed)-1])
		if err != nil {
			return Matcher{}, &domain.InvalidPatternError{Pattern: pattern, Err: err}
		}
		return Matcher{kind: kindRegex, re: re}, nil
	}

	return Matcher{kind: kindLiteral, literal: strings.ToLower(trimmed)}, nil
}

// IsLiteral reports whether the matcher is a plain substring matcher.
func (m Matcher) IsLiteral() bool {
	return m.kind == kindLiteral
}

// Literal returns the lowercased literal for substring matchers.
func (m Matcher) Literal() string {
	return m.literal
}

// Match tests the matcher against already-lowercased article text.
func (m Matcher) Match(lowerText string) bool {
	if m.kind == kindLiteral {
		return strings.Contains(lowerText, m.literal)
	}
	return m.re.MatchString(lowerText)
}
