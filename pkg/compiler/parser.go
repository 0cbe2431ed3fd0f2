package compiler

// Parser consumes the flat token slice produced by Lex and builds one AST
// per statement. It never backtracks.
//
// Grammar (descending precedence):
//
//	program        = statement* EOF
//	statement      = expr ";"
//	expr           = assign
//	assign         = equality ("=" assign)?
//	equality       = relational (("==" | "!=") relational)*
//	relational     = additive (("<" | "<=" | ">" | ">=") additive)*
//	additive       = multiplicative (("+" | "-") multiplicative)*
//	multiplicative = unary (("*" | "/") unary)*
//	unary          = ("+" | "-")? unary | primary
//	primary        = "(" expr ")" | IDENTIFIER | NUMBER
type Parser struct {
	tokens []Token
	pos    int
}

func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

// peek returns the current token without consuming it.
func (p *Parser) peek() Token {
	if p.pos >= len(p.tokens) {
		end := 0
		if n := len(p.tokens); n > 0 {
			end = p.tokens[n-1].Pos
		}
		return Token{Kind: EOF, Pos: end}
	}
	return p.tokens[p.pos]
}

// advance consumes and returns the current token. EOF is never consumed.
func (p *Parser) advance() Token {
	tok := p.peek()
	if tok.Kind != EOF {
		p.pos++
	}
	return tok
}

// consume advances past op if it is the current token.
func (p *Parser) consume(op string) bool {
	if p.peek().is(op) {
		p.advance()
		return true
	}
	return false
}

// expect advances past the required punctuation op.
func (p *Parser) expect(op string) error {
	tok := p.peek()
	if !tok.is(op) {
		return &ParseError{Kind: ErrExpected, Want: op, Got: tok}
	}
	p.advance()
	return nil
}

// expectNumber consumes a NUMBER token and returns its value.
func (p *Parser) expectNumber() (int64, error) {
	tok := p.peek()
	if tok.Kind != Number {
		return 0, &ParseError{Kind: ErrExpectedNumber, Got: tok}
	}
	p.advance()
	return tok.Value, nil
}

// consumeIdent consumes an IDENTIFIER token if one is current.
func (p *Parser) consumeIdent() (Token, bool) {
	tok := p.peek()
	if tok.Kind != Identifier {
		return tok, false
	}
	p.advance()
	return tok, true
}

func (p *Parser) atEOF() bool {
	return p.peek().Kind == EOF
}

// parseStatement handles expr ";"
func (p *Parser) parseStatement() (*Node, error) {
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(";"); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parseExpr() (*Node, error) {
	return p.parseAssign()
}

// parseAssign handles "=", recursing on the right so that a = b = 1
// groups as a = (b = 1).
func (p *Parser) parseAssign() (*Node, error) {
	start := p.peek()
	node, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	if !p.peek().is("=") {
		return node, nil
	}
	if node.Kind != NodeVar {
		return nil, &ParseError{Kind: ErrExpectedIdentifier, Got: start}
	}
	p.advance()
	right, err := p.parseAssign()
	if err != nil {
		return nil, err
	}
	return newBinary(NodeAssign, node, right), nil
}

// parseEquality handles == and !=
func (p *Parser) parseEquality() (*Node, error) {
	node, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for {
		var kind NodeKind
		switch {
		case p.consume("=="):
			kind = NodeEq
		case p.consume("!="):
			kind = NodeNe
		default:
			return node, nil
		}
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		node = newBinary(kind, node, right)
	}
}

// parseRelational handles <, <=, > and >=. The greater-than forms are
// rewritten to Lt/Le with the operands swapped.
func (p *Parser) parseRelational() (*Node, error) {
	node, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for {
		var (
			kind    NodeKind
			swapped bool
		)
		switch {
		case p.consume("<"):
			kind = NodeLt
		case p.consume("<="):
			kind = NodeLe
		case p.consume(">"):
			kind, swapped = NodeLt, true
		case p.consume(">="):
			kind, swapped = NodeLe, true
		default:
			return node, nil
		}
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		if swapped {
			node = newBinary(kind, right, node)
		} else {
			node = newBinary(kind, node, right)
		}
	}
}

// parseAdditive handles + and -
func (p *Parser) parseAdditive() (*Node, error) {
	node, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var kind NodeKind
		switch {
		case p.consume("+"):
			kind = NodeAdd
		case p.consume("-"):
			kind = NodeSub
		default:
			return node, nil
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		node = newBinary(kind, node, right)
	}
}

// parseMultiplicative handles * and /
func (p *Parser) parseMultiplicative() (*Node, error) {
	node, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var kind NodeKind
		switch {
		case p.consume("*"):
			kind = NodeMul
		case p.consume("/"):
			kind = NodeDiv
		default:
			return node, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		node = newBinary(kind, node, right)
	}
}

// parseUnary handles prefix + and -. Negation becomes 0 - x.
func (p *Parser) parseUnary() (*Node, error) {
	if p.consume("+") {
		return p.parseUnary()
	}
	if p.consume("-") {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return newBinary(NodeSub, newNum(0), operand), nil
	}
	return p.parsePrimary()
}

// parsePrimary handles literals, variables, and parenthesised expressions.
func (p *Parser) parsePrimary() (*Node, error) {
	if p.consume("(") {
		node, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(")"); err != nil {
			return nil, err
		}
		return node, nil
	}

	if tok, ok := p.consumeIdent(); ok {
		if len(tok.Text) != 1 {
			return nil, &ParseError{Kind: ErrExpectedIdentifier, Got: tok}
		}
		offset, ok := SlotOffset(tok.Text[0])
		if !ok {
			return nil, &ParseError{Kind: ErrExpectedIdentifier, Got: tok}
		}
		return newVar(offset), nil
	}

	val, err := p.expectNumber()
	if err != nil {
		return nil, err
	}
	return newNum(val), nil
}

// Parse is the top-level entry point. It returns one tree per statement in
// source order, or the first syntax error.
func Parse(tokens []Token) ([]*Node, error) {
	p := NewParser(tokens)
	var stmts []*Node
	for !p.atEOF() {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}
