// Package glob implements the wildcard matching used by Matrix push rules.
package glob

import (
	"regexp"
	"strings"
	"sync"
)

var compiled sync.Map // pattern -> *regexp.Regexp

// HasGlobMatch reports whether value matches the push rule pattern.
//
// A pattern without '*' or '?' is a plain substring test. A pattern containing a
// wildcard must match the whole value, where '*' matches any run of characters
// and '?' exactly one; every other character is literal. Matching is case-sensitive.
func HasGlobMatch(value, pattern string) bool {
	if !hasWildcard(pattern) {
		return strings.Contains(value, pattern)
	}
	return compile(pattern).MatchString(value)
}

// HasFullGlobMatch is like HasGlobMatch but a literal pattern must equal the value.
func HasFullGlobMatch(value, pattern string) bool {
	if !hasWildcard(pattern) {
		return value == pattern
	}
	return compile(pattern).MatchString(value)
}

func hasWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, "*?")
}

func compile(pattern string) *regexp.Regexp {
	if re, ok := compiled.Load(pattern); ok {
		return re.(*regexp.Regexp)
	}

	var b strings.Builder
	b.WriteString(`(?s)\A`)
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`\z`)

	re := regexp.MustCompile(b.String())
	compiled.Store(pattern, re)
	return re
}
