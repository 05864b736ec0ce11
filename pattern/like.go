// Package pattern translates SQL LIKE patterns into regular expressions.
package pattern

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/grafana/regexp"
)

// DefaultEscape is the escape character used when none is given.
const DefaultEscape = '\\'

// LikeToRegExp translates a LIKE pattern using the default escape character.
func LikeToRegExp(like string) string {
	return LikeToRegExpEscape(like, DefaultEscape)
}

// LikeToRegExpEscape translates a LIKE pattern into an anchored regular
// expression. '%' matches any run of characters and '_' exactly one. The
// escape character makes a following '%', '_' or escape character literal;
// anywhere else it is itself a literal. An escape of 0 disables escaping.
func LikeToRegExpEscape(like string, escape rune) string {
	runes := []rune(like)
	var sb strings.Builder
	sb.WriteByte('^')
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if escape != 0 && ch == escape {
			if i+1 < len(runes) {
				next := runes[i+1]
				if next == '%' || next == '_' || next == escape {
					sb.WriteString(regexp.QuoteMeta(string(next)))
					i++
					continue
				}
			}
			sb.WriteString(regexp.QuoteMeta(string(ch)))
			continue
		}
		switch ch {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteByte('.')
		default:
			sb.WriteString(regexp.QuoteMeta(string(ch)))
		}
	}
	sb.WriteByte('$')
	return sb.String()
}

// ParseEscape validates a textual escape character. An empty string selects
// the default.
func ParseEscape(s string) (rune, error) {
	if s == "" {
		return DefaultEscape, nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, fmt.Errorf("escape must be a single character, got %q", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}
