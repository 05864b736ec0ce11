package lexer

import (
	"testing"
)

func checkTypes(t *testing.T, tokens []Token, expected []TokenType) {
	t.Helper()
	if len(tokens) != len(expected) {
		t.Fatalf("expected %d tokens, got %d: %v", len(expected), len(tokens), tokens)
	}
	for i, tt := range expected {
		if tokens[i].Type != tt {
			t.Errorf("token %d: expected %s, got %s (%q)", i, tt, tokens[i].Type, tokens[i].Val)
		}
	}
}

func TestLexChain(t *testing.T) {
	tokens, err := Lex(`$data.filter($age > 20).limit(5)`)
	if err != nil {
		t.Fatal(err)
	}
	checkTypes(t, tokens, []TokenType{
		TokenRef, TokenDot, TokenIdent, TokenLParen, TokenRef, TokenGt, TokenInt, TokenRParen,
		TokenDot, TokenIdent, TokenLParen, TokenInt, TokenRParen, TokenEOF,
	})
	if tokens[0].Val != "data" {
		t.Errorf("expected ref 'data', got %q", tokens[0].Val)
	}
}

func TestLexReferences(t *testing.T) {
	tokens, err := Lex("$name $^outer $^^top ${first name} $^{odd-one}")
	if err != nil {
		t.Fatal(err)
	}
	expected := []struct {
		name    string
		nesting int
	}{
		{"name", 0}, {"outer", 1}, {"top", 2}, {"first name", 0}, {"odd-one", 1},
	}
	for i, e := range expected {
		tok := tokens[i]
		if tok.Type != TokenRef || tok.Val != e.name || tok.Nesting != e.nesting {
			t.Errorf("token %d: expected ref %q nesting %d, got %s nesting %d", i, e.name, e.nesting, tok, tok.Nesting)
		}
	}
}

func TestLexBadReference(t *testing.T) {
	for _, in := range []string{"$", "$^", "${unterminated", "${}", "$1"} {
		if _, err := Lex(in); err == nil {
			t.Errorf("%q: expected an error", in)
		}
	}
}

func TestLexSplitObject(t *testing.T) {
	tokens, err := Lex(`.split({Country: $country, 'two words': $x}, 'data')`)
	if err != nil {
		t.Fatal(err)
	}
	checkTypes(t, tokens, []TokenType{
		TokenDot, TokenIdent, TokenLParen, TokenLBrace,
		TokenIdent, TokenColon, TokenRef, TokenComma,
		TokenString, TokenColon, TokenRef, TokenRBrace,
		TokenComma, TokenString, TokenRParen, TokenEOF,
	})
}

func TestLexFloats(t *testing.T) {
	for _, in := range []string{"3.14", "1e+21", "2.5E-3"} {
		tokens, err := Lex(in)
		if err != nil {
			t.Fatal(err)
		}
		if tokens[0].Type != TokenFloat || tokens[0].Val != in {
			t.Errorf("expected FLOAT %q, got %s", in, tokens[0])
		}
	}
}

func TestLexNumberThenAction(t *testing.T) {
	tokens, err := Lex("1.add(2)")
	if err != nil {
		t.Fatal(err)
	}
	checkTypes(t, tokens, []TokenType{TokenInt, TokenDot, TokenIdent, TokenLParen, TokenInt, TokenRParen, TokenEOF})
}

func TestLexNegativeNumber(t *testing.T) {
	tokens, err := Lex("$age > -5")
	if err != nil {
		t.Fatal(err)
	}
	checkTypes(t, tokens, []TokenType{TokenRef, TokenGt, TokenInt, TokenEOF})
	if tokens[2].Val != "-5" {
		t.Errorf("expected '-5', got %q", tokens[2].Val)
	}

	tokens, err = Lex("$age-5")
	if err != nil {
		t.Fatal(err)
	}
	checkTypes(t, tokens, []TokenType{TokenRef, TokenMinus, TokenInt, TokenEOF})
}

func TestLexOperators(t *testing.T) {
	tokens, err := Lex("== != <= >= < > + - * / and or not in")
	if err != nil {
		t.Fatal(err)
	}
	checkTypes(t, tokens, []TokenType{
		TokenEq, TokenNeq, TokenLte, TokenGte, TokenLt, TokenGt,
		TokenPlus, TokenMinus, TokenStar, TokenSlash,
		TokenAnd, TokenOr, TokenNot, TokenIn, TokenEOF,
	})
}

func TestLexSingleEquals(t *testing.T) {
	if _, err := Lex("$a = 1"); err == nil {
		t.Error("expected an error for '='")
	}
}

func TestLexStringEscape(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`"hello \"world\""`, `hello "world"`},
		{`'it\'s'`, `it's`},
		{`'a\\b'`, `a\b`},
		{`'%David\_R_ss%'`, `%David\_R_ss%`},
		{`"tab\there"`, "tab\there"},
	}
	for _, tt := range tests {
		tokens, err := Lex(tt.in)
		if err != nil {
			t.Fatal(err)
		}
		if tokens[0].Val != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.in, tt.want, tokens[0].Val)
		}
	}
}

func TestLexUnterminatedString(t *testing.T) {
	if _, err := Lex(`'abc`); err == nil {
		t.Error("expected an error")
	}
}

func TestLexComment(t *testing.T) {
	tokens, err := Lex("$age // this is a comment\n+ 5")
	if err != nil {
		t.Fatal(err)
	}
	checkTypes(t, tokens, []TokenType{TokenRef, TokenPlus, TokenInt, TokenEOF})
}
