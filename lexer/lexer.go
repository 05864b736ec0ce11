package lexer

import (
	"fmt"
	"unicode"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	// Structural
	TokenLBrace   TokenType = iota // {
	TokenRBrace                    // }
	TokenLParen                    // (
	TokenRParen                    // )
	TokenLBracket                  // [
	TokenRBracket                  // ]
	TokenComma                     // ,
	TokenColon                     // :
	TokenDot                       // .

	// Operators
	TokenPlus  // +
	TokenMinus // -
	TokenStar  // *
	TokenSlash // /
	TokenEq    // ==
	TokenNeq   // !=
	TokenLt    // <
	TokenGt    // >
	TokenLte   // <=
	TokenGte   // >=

	// Keywords / logical
	TokenAnd   // and
	TokenOr    // or
	TokenNot   // not
	TokenIn    // in
	TokenTrue  // true
	TokenFalse // false
	TokenNull  // null

	// Literals
	TokenInt    // integer literal
	TokenFloat  // float literal
	TokenString // 'string literal' or "string literal"

	// Identifiers
	TokenIdent // plain identifier (action or function name)
	TokenRef   // $name, $^name, ${name with spaces}

	// End
	TokenEOF
)

var tokenNames = map[TokenType]string{
	TokenLBrace: "{", TokenRBrace: "}", TokenLParen: "(", TokenRParen: ")",
	TokenLBracket: "[", TokenRBracket: "]", TokenComma: ",", TokenColon: ":", TokenDot: ".",
	TokenPlus: "+", TokenMinus: "-", TokenStar: "*", TokenSlash: "/",
	TokenEq: "==", TokenNeq: "!=", TokenLt: "<", TokenGt: ">", TokenLte: "<=", TokenGte: ">=",
	TokenAnd: "and", TokenOr: "or", TokenNot: "not", TokenIn: "in",
	TokenTrue: "true", TokenFalse: "false", TokenNull: "null",
	TokenInt: "INT", TokenFloat: "FLOAT", TokenString: "STRING",
	TokenIdent: "IDENT", TokenRef: "REF", TokenEOF: "EOF",
}

func (t TokenType) String() string {
	if s, ok := tokenNames[t]; ok {
		return s
	}
	return fmt.Sprintf("Token(%d)", int(t))
}

// Token represents a single lexical token.
type Token struct {
	Type TokenType
	Val  string
	Pos  int // rune offset in original input
	// Nesting is the number of ^ in a reference.
	Nesting int
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d", t.Type, t.Val, t.Pos)
}

var keywords = map[string]TokenType{
	"and":   TokenAnd,
	"or":    TokenOr,
	"not":   TokenNot,
	"in":    TokenIn,
	"true":  TokenTrue,
	"false": TokenFalse,
	"null":  TokenNull,
}

var singles = map[rune]TokenType{
	'{': TokenLBrace, '}': TokenRBrace, '(': TokenLParen, ')': TokenRParen,
	'[': TokenLBracket, ']': TokenRBracket, ',': TokenComma, ':': TokenColon,
	'.': TokenDot, '+': TokenPlus, '*': TokenStar,
}

// Lex tokenizes the input string into a slice of Tokens.
func Lex(input string) ([]Token, error) {
	var tokens []Token
	runes := []rune(input)
	i := 0

	for i < len(runes) {
		ch := runes[i]

		// Skip whitespace
		if unicode.IsSpace(ch) {
			i++
			continue
		}

		pos := i
		if tt, ok := singles[ch]; ok {
			tokens = append(tokens, Token{Type: tt, Val: string(ch), Pos: pos})
			i++
			continue
		}

		switch ch {
		case '-':
			// Could be negative number or minus operator
			if i+1 < len(runes) && unicode.IsDigit(runes[i+1]) && isNegativeContext(tokens) {
				tok, newI := lexNumber(runes, i)
				tokens = append(tokens, tok)
				i = newI
				continue
			}
			tokens = append(tokens, Token{Type: TokenMinus, Val: "-", Pos: pos})
			i++
			continue
		case '/':
			// Check for // comment
			if i+1 < len(runes) && runes[i+1] == '/' {
				for i < len(runes) && runes[i] != '\n' {
					i++
				}
				continue
			}
			tokens = append(tokens, Token{Type: TokenSlash, Val: "/", Pos: pos})
			i++
			continue
		case '=':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, Token{Type: TokenEq, Val: "==", Pos: pos})
				i += 2
				continue
			}
			return nil, fmt.Errorf("unexpected character '=' at position %d (did you mean '=='?)", pos)
		case '!':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, Token{Type: TokenNeq, Val: "!=", Pos: pos})
				i += 2
				continue
			}
			return nil, fmt.Errorf("unexpected character '!' at position %d (did you mean '!='?)", pos)
		case '<':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, Token{Type: TokenLte, Val: "<=", Pos: pos})
				i += 2
			} else {
				tokens = append(tokens, Token{Type: TokenLt, Val: "<", Pos: pos})
				i++
			}
			continue
		case '>':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, Token{Type: TokenGte, Val: ">=", Pos: pos})
				i += 2
			} else {
				tokens = append(tokens, Token{Type: TokenGt, Val: ">", Pos: pos})
				i++
			}
			continue
		case '"', '\'':
			tok, newI, err := lexString(runes, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = newI
			continue
		case '$':
			tok, newI, err := lexRef(runes, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = newI
			continue
		}

		// Number
		if unicode.IsDigit(ch) {
			tok, newI := lexNumber(runes, i)
			tokens = append(tokens, tok)
			i = newI
			continue
		}

		// Identifier or keyword
		if isIdentStart(ch) {
			tok, newI := lexIdent(runes, i)
			tokens = append(tokens, tok)
			i = newI
			continue
		}

		return nil, fmt.Errorf("unexpected character %q at position %d", ch, pos)
	}

	tokens = append(tokens, Token{Type: TokenEOF, Pos: len(runes)})
	return tokens, nil
}

func isNegativeContext(tokens []Token) bool {
	if len(tokens) == 0 {
		return true
	}
	last := tokens[len(tokens)-1].Type
	switch last {
	case TokenLParen, TokenComma, TokenColon, TokenLBrace, TokenLBracket,
		TokenPlus, TokenMinus, TokenStar, TokenSlash,
		TokenEq, TokenNeq, TokenLt, TokenGt, TokenLte, TokenGte,
		TokenAnd, TokenOr, TokenNot, TokenIn:
		return true
	}
	return false
}

func lexString(runes []rune, start int) (Token, int, error) {
	quote := runes[start]
	i := start + 1 // skip opening quote
	var sb []rune
	for i < len(runes) {
		if runes[i] == '\\' && i+1 < len(runes) {
			switch runes[i+1] {
			case '"', '\'', '\\':
				sb = append(sb, runes[i+1])
			case 'n':
				sb = append(sb, '\n')
			case 't':
				sb = append(sb, '\t')
			default:
				sb = append(sb, '\\', runes[i+1])
			}
			i += 2
			continue
		}
		if runes[i] == quote {
			return Token{Type: TokenString, Val: string(sb), Pos: start}, i + 1, nil
		}
		sb = append(sb, runes[i])
		i++
	}
	return Token{}, 0, fmt.Errorf("unterminated string starting at position %d", start)
}

// lexRef reads $name, $^^name or ${any name}.
func lexRef(runes []rune, start int) (Token, int, error) {
	i := start + 1 // skip $
	nesting := 0
	for i < len(runes) && runes[i] == '^' {
		nesting++
		i++
	}
	if i < len(runes) && runes[i] == '{' {
		end := i + 1
		for end < len(runes) && runes[end] != '}' {
			end++
		}
		if end >= len(runes) {
			return Token{}, 0, fmt.Errorf("unterminated reference starting at position %d", start)
		}
		name := string(runes[i+1 : end])
		if name == "" {
			return Token{}, 0, fmt.Errorf("empty reference name at position %d", start)
		}
		return Token{Type: TokenRef, Val: name, Pos: start, Nesting: nesting}, end + 1, nil
	}
	if i >= len(runes) || !isIdentStart(runes[i]) {
		return Token{}, 0, fmt.Errorf("expected reference name after '$' at position %d", start)
	}
	end := i
	for end < len(runes) && isIdentPart(runes[end]) {
		end++
	}
	return Token{Type: TokenRef, Val: string(runes[i:end]), Pos: start, Nesting: nesting}, end, nil
}

func lexNumber(runes []rune, start int) (Token, int) {
	i := start
	isFloat := false

	if i < len(runes) && runes[i] == '-' {
		i++
	}

	for i < len(runes) && unicode.IsDigit(runes[i]) {
		i++
	}

	// A dot starts a fraction only when a digit follows; otherwise it is
	// an action call like 1.add(2).
	if i+1 < len(runes) && runes[i] == '.' && unicode.IsDigit(runes[i+1]) {
		isFloat = true
		i++
		for i < len(runes) && unicode.IsDigit(runes[i]) {
			i++
		}
	}

	if i < len(runes) && (runes[i] == 'e' || runes[i] == 'E') {
		j := i + 1
		if j < len(runes) && (runes[j] == '+' || runes[j] == '-') {
			j++
		}
		if j < len(runes) && unicode.IsDigit(runes[j]) {
			isFloat = true
			i = j
			for i < len(runes) && unicode.IsDigit(runes[i]) {
				i++
			}
		}
	}

	val := string(runes[start:i])
	if isFloat {
		return Token{Type: TokenFloat, Val: val, Pos: start}, i
	}
	return Token{Type: TokenInt, Val: val, Pos: start}, i
}

func lexIdent(runes []rune, start int) (Token, int) {
	i := start
	for i < len(runes) && isIdentPart(runes[i]) {
		i++
	}
	val := string(runes[start:i])

	if tt, ok := keywords[val]; ok {
		return Token{Type: tt, Val: val, Pos: start}, i
	}
	return Token{Type: TokenIdent, Val: val, Pos: start}, i
}

func isIdentStart(ch rune) bool {
	return unicode.IsLetter(ch) || ch == '_'
}

func isIdentPart(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}
