package pattern

import (
	"testing"

	"github.com/grafana/regexp"
)

func TestLikeToRegExp(t *testing.T) {
	cases := []struct {
		like   string
		escape rune
		want   string
	}{
		{`%David\_R_ss%`, DefaultEscape, `^.*David_R.ss.*$`},
		{`%David|_R_ss||%`, '|', `^.*David_R.ss\|.*$`},
		{`100\%`, DefaultEscape, `^100%$`},
		{`a.b`, DefaultEscape, `^a\.b$`},
		{`x\y`, DefaultEscape, `^x\\y$`},
		{`end\`, DefaultEscape, `^end\\$`},
		{`a%b_`, 0, `^a.*b.$`},
		{`a\%`, 0, `^a\\.*$`},
		{``, DefaultEscape, `^$`},
		{`(1+1)*[2]`, DefaultEscape, `^\(1\+1\)\*\[2\]$`},
	}
	for _, c := range cases {
		got := LikeToRegExpEscape(c.like, c.escape)
		if got != c.want {
			t.Errorf("LikeToRegExpEscape(%q, %q) = %q, want %q", c.like, c.escape, got, c.want)
		}
	}
}

func TestLikeDefaultEscape(t *testing.T) {
	if got := LikeToRegExp(`%David\_R_ss%`); got != `^.*David_R.ss.*$` {
		t.Errorf("got %q", got)
	}
}

func TestLiteralPatternMatchesOnlyItself(t *testing.T) {
	literals := []string{"hello", "a.b", "(x)", "$100", "^caret", "tab\there", "ünï"}
	for _, lit := range literals {
		re := regexp.MustCompile(LikeToRegExp(lit))
		if !re.MatchString(lit) {
			t.Errorf("%q does not match itself", lit)
		}
		for _, other := range []string{lit + "x", "x" + lit, "", lit[:len(lit)-1]} {
			if re.MatchString(other) {
				t.Errorf("pattern for %q matched %q", lit, other)
			}
		}
	}
}

func TestWildcards(t *testing.T) {
	re := regexp.MustCompile(LikeToRegExp("%Ross%"))
	for _, s := range []string{"Ross", "David Ross", "Rossi"} {
		if !re.MatchString(s) {
			t.Errorf("expected %q to match", s)
		}
	}
	re = regexp.MustCompile(LikeToRegExp("R_ss"))
	if !re.MatchString("Ross") || re.MatchString("Rss") || re.MatchString("Rooss") {
		t.Error("'_' must match exactly one character")
	}
}

func TestParseEscape(t *testing.T) {
	if r, err := ParseEscape(""); err != nil || r != DefaultEscape {
		t.Errorf("expected default escape, got %q %v", r, err)
	}
	if r, err := ParseEscape("|"); err != nil || r != '|' {
		t.Errorf("expected '|', got %q %v", r, err)
	}
	if _, err := ParseEscape("ab"); err == nil {
		t.Error("expected error for two character escape")
	}
}
