package parser

import (
	"fmt"
	"strconv"
	"time"

	"github.com/razeghi71/ply/expr"
	"github.com/razeghi71/ply/lexer"
	"github.com/razeghi71/ply/value"
)

// DefaultDataName is the attribute that holds each group's rows when a
// split does not name it.
const DefaultDataName = "grouped"

// Parser converts a token stream into an expression tree.
type Parser struct {
	tokens []lexer.Token
	pos    int
}

// Parse parses a full expression string.
func Parse(input string) (expr.Expression, error) {
	tokens, err := lexer.Lex(input)
	if err != nil {
		return nil, fmt.Errorf("lex error: %w", err)
	}
	p := &Parser{tokens: tokens, pos: 0}
	ex, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().Type != lexer.TokenEOF {
		return nil, fmt.Errorf("unexpected token %s (%q) at position %d", p.peek().Type, p.peek().Val, p.peek().Pos)
	}
	return ex, nil
}

// MustParse is Parse for expressions known to be valid.
func MustParse(input string) expr.Expression {
	ex, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return ex
}

func (p *Parser) peek() lexer.Token {
	if p.pos >= len(p.tokens) {
		return lexer.Token{Type: lexer.TokenEOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) advance() lexer.Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) expect(tt lexer.TokenType) (lexer.Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, fmt.Errorf("expected %s, got %s (%q) at position %d", tt, tok.Type, tok.Val, tok.Pos)
	}
	return tok, nil
}

// --- Expression parsing (precedence climbing) ---

// Precedence levels
const (
	precOr    = 1
	precAnd   = 2
	precComp  = 3
	precAdd   = 4
	precMul   = 5
	precUnary = 6
)

func (p *Parser) parseExpr() (expr.Expression, error) {
	return p.parseExprPrec(precOr)
}

func (p *Parser) parseExprPrec(minPrec int) (expr.Expression, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		build, prec, ok := p.peekBinaryOp()
		if !ok || prec < minPrec {
			break
		}
		p.advance() // consume the operator

		right, err := p.parseExprPrec(prec + 1) // left-associative
		if err != nil {
			return nil, err
		}
		left = expr.NewChain(left, build(right))
	}
	return left, nil
}

// peekBinaryOp maps an infix operator to the action it chains onto the left
// operand.
func (p *Parser) peekBinaryOp() (func(expr.Expression) expr.Action, int, bool) {
	logical := func(op expr.LogicalOp) func(expr.Expression) expr.Action {
		return func(e expr.Expression) expr.Action { return &expr.LogicalAction{Op: op, Expression: e} }
	}
	compare := func(op expr.CompareOp) func(expr.Expression) expr.Action {
		return func(e expr.Expression) expr.Action { return &expr.CompareAction{Op: op, Expression: e} }
	}
	arith := func(op expr.ArithmeticOp) func(expr.Expression) expr.Action {
		return func(e expr.Expression) expr.Action { return &expr.ArithmeticAction{Op: op, Expression: e} }
	}

	switch p.peek().Type {
	case lexer.TokenOr:
		return logical(expr.Or), precOr, true
	case lexer.TokenAnd:
		return logical(expr.And), precAnd, true
	case lexer.TokenEq:
		return compare(expr.Is), precComp, true
	case lexer.TokenNeq:
		return compare(expr.IsNot), precComp, true
	case lexer.TokenLt:
		return compare(expr.LessThan), precComp, true
	case lexer.TokenGt:
		return compare(expr.GreaterThan), precComp, true
	case lexer.TokenLte:
		return compare(expr.LessThanOrEqual), precComp, true
	case lexer.TokenGte:
		return compare(expr.GreaterThanOrEqual), precComp, true
	case lexer.TokenIn:
		return func(e expr.Expression) expr.Action { return &expr.InAction{Expression: e} }, precComp, true
	case lexer.TokenPlus:
		return arith(expr.Add), precAdd, true
	case lexer.TokenMinus:
		return arith(expr.Subtract), precAdd, true
	case lexer.TokenStar:
		return arith(expr.Multiply), precMul, true
	case lexer.TokenSlash:
		return arith(expr.Divide), precMul, true
	}
	return nil, 0, false
}

func (p *Parser) parseUnary() (expr.Expression, error) {
	if p.peek().Type == lexer.TokenNot {
		p.advance()
		operand, err := p.parseExprPrec(precComp)
		if err != nil {
			return nil, err
		}
		return expr.NewChain(operand, &expr.NotAction{}), nil
	}
	if p.peek().Type == lexer.TokenMinus {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		if lit, ok := operand.(*expr.Literal); ok && lit.Value.Type == value.TypeNumber {
			return expr.Lit(value.Number(-lit.Value.Num)), nil
		}
		return expr.NewChain(operand, &expr.ArithmeticAction{Op: expr.Multiply, Expression: expr.Lit(value.Number(-1))}), nil
	}
	return p.parsePostfix()
}

// parsePostfix parses a primary expression followed by any number of
// .action(args) calls.
func (p *Parser) parsePostfix() (expr.Expression, error) {
	ex, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == lexer.TokenDot {
		p.advance() // consume .
		nameTok := p.advance()
		if !isName(nameTok) {
			return nil, fmt.Errorf("expected action name after '.', got %s (%q) at position %d", nameTok.Type, nameTok.Val, nameTok.Pos)
		}
		args, err := p.parseArgs()
		if err != nil {
			return nil, fmt.Errorf("in %s: %w", nameTok.Val, err)
		}
		action, err := buildAction(nameTok.Val, args)
		if err != nil {
			return nil, fmt.Errorf("%s at position %d: %w", nameTok.Val, nameTok.Pos, err)
		}
		ex = expr.NewChain(ex, action)
	}
	return ex, nil
}

// isName reports whether tok can name an action. Keywords are allowed so
// that .and(..), .or(..), .not() and .in(..) can be written as calls.
func isName(tok lexer.Token) bool {
	switch tok.Type {
	case lexer.TokenIdent, lexer.TokenAnd, lexer.TokenOr, lexer.TokenNot, lexer.TokenIn:
		return true
	}
	return false
}

func (p *Parser) parsePrimary() (expr.Expression, error) {
	tok := p.peek()

	switch tok.Type {
	case lexer.TokenInt, lexer.TokenFloat:
		p.advance()
		v, err := strconv.ParseFloat(tok.Val, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", tok.Val, err)
		}
		return expr.Lit(value.Number(v)), nil

	case lexer.TokenString:
		p.advance()
		return expr.Lit(value.String(tok.Val)), nil

	case lexer.TokenTrue:
		p.advance()
		return expr.Lit(value.Bool(true)), nil

	case lexer.TokenFalse:
		p.advance()
		return expr.Lit(value.Bool(false)), nil

	case lexer.TokenNull:
		p.advance()
		return expr.Lit(value.Null()), nil

	case lexer.TokenRef:
		p.advance()
		return expr.OuterRef(tok.Val, tok.Nesting), nil

	case lexer.TokenLBracket:
		return p.parseSet()

	case lexer.TokenIdent:
		p.advance()
		if p.peek().Type != lexer.TokenLParen {
			return nil, fmt.Errorf("unexpected name %q at position %d (references are written $%s)", tok.Val, tok.Pos, tok.Val)
		}
		return p.parseFuncCall(tok)

	case lexer.TokenLParen:
		p.advance() // consume (
		ex, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenRParen); err != nil {
			return nil, err
		}
		return ex, nil

	default:
		return nil, fmt.Errorf("unexpected token %s (%q) at position %d in expression", tok.Type, tok.Val, tok.Pos)
	}
}

// parseSet parses [a, b, ...]. Elements must be literals.
func (p *Parser) parseSet() (expr.Expression, error) {
	open := p.advance() // consume [
	var elems []value.Value
	if p.peek().Type != lexer.TokenRBracket {
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			lit, ok := e.(*expr.Literal)
			if !ok {
				return nil, fmt.Errorf("set starting at position %d: elements must be literals, got %s", open.Pos, expr.String(e))
			}
			elems = append(elems, lit.Value)
			if p.peek().Type != lexer.TokenComma {
				break
			}
			p.advance() // consume comma
		}
	}
	if _, err := p.expect(lexer.TokenRBracket); err != nil {
		return nil, err
	}
	return expr.Lit(value.NewSet(elems...)), nil
}

// parseFuncCall handles the literal constructors time(..) and
// timeRange(.., ..).
func (p *Parser) parseFuncCall(name lexer.Token) (expr.Expression, error) {
	args, err := p.parseArgs()
	if err != nil {
		return nil, fmt.Errorf("in function %s: %w", name.Val, err)
	}
	switch name.Val {
	case "time":
		if err := argCount(args, 1, 1); err != nil {
			return nil, fmt.Errorf("time: %w", err)
		}
		t, err := timeArg(args[0])
		if err != nil {
			return nil, fmt.Errorf("time: %w", err)
		}
		return expr.Lit(value.Time(t)), nil
	case "timeRange":
		if err := argCount(args, 2, 2); err != nil {
			return nil, fmt.Errorf("timeRange: %w", err)
		}
		start, err := timeArg(args[0])
		if err != nil {
			return nil, fmt.Errorf("timeRange: %w", err)
		}
		end, err := timeArg(args[1])
		if err != nil {
			return nil, fmt.Errorf("timeRange: %w", err)
		}
		if end.Before(start) {
			return nil, fmt.Errorf("timeRange: end %s is before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
		}
		return expr.Lit(value.Range(start, end)), nil
	default:
		return nil, fmt.Errorf("unknown function %q at position %d", name.Val, name.Pos)
	}
}

// arg is one argument of a call: an expression or a {Key: expr} object.
type arg struct {
	expr   expr.Expression
	object []expr.SplitKey
	pos    int
}

func (p *Parser) parseArgs() ([]arg, error) {
	if _, err := p.expect(lexer.TokenLParen); err != nil {
		return nil, err
	}
	var args []arg
	if p.peek().Type != lexer.TokenRParen {
		for {
			pos := p.peek().Pos
			if p.peek().Type == lexer.TokenLBrace {
				obj, err := p.parseObject()
				if err != nil {
					return nil, err
				}
				args = append(args, arg{object: obj, pos: pos})
			} else {
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				args = append(args, arg{expr: e, pos: pos})
			}
			if p.peek().Type != lexer.TokenComma {
				break
			}
			p.advance() // consume comma
		}
	}
	if _, err := p.expect(lexer.TokenRParen); err != nil {
		return nil, err
	}
	return args, nil
}

// parseObject parses {Name: expr, 'quoted name': expr}.
func (p *Parser) parseObject() ([]expr.SplitKey, error) {
	p.advance() // consume {
	var keys []expr.SplitKey
	seen := make(map[string]bool)
	for p.peek().Type != lexer.TokenRBrace {
		keyTok := p.advance()
		if keyTok.Type != lexer.TokenIdent && keyTok.Type != lexer.TokenString {
			return nil, fmt.Errorf("expected key name, got %s (%q) at position %d", keyTok.Type, keyTok.Val, keyTok.Pos)
		}
		if seen[keyTok.Val] {
			return nil, fmt.Errorf("duplicate key %q at position %d", keyTok.Val, keyTok.Pos)
		}
		seen[keyTok.Val] = true
		if _, err := p.expect(lexer.TokenColon); err != nil {
			return nil, err
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, fmt.Errorf("in key %q: %w", keyTok.Val, err)
		}
		keys = append(keys, expr.SplitKey{Name: keyTok.Val, Expression: e})
		if p.peek().Type != lexer.TokenComma {
			break
		}
		p.advance() // consume comma
	}
	if _, err := p.expect(lexer.TokenRBrace); err != nil {
		return nil, err
	}
	return keys, nil
}
