package compiler

// Lexer holds all mutable state for a single scanning pass over src.
type Lexer struct {
	src string
	pos int // index of the next byte to consume
}

func newLexer(src string) *Lexer {
	return &Lexer{src: src}
}

// peek returns the byte at the current position without advancing.
func (l *Lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

// peek2 returns the byte one position ahead of the current position.
func (l *Lexer) peek2() byte {
	if l.pos+1 >= len(l.src) {
		return 0
	}
	return l.src[l.pos+1]
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.src) && isSpace(l.peek()) {
		l.pos++
	}
}

// scanNumber collects a maximal run of decimal digits. Accumulation wraps
// on int64 overflow; the literal is never rejected for its size.
func (l *Lexer) scanNumber() Token {
	start := l.pos
	var val int64
	for l.pos < len(l.src) && isDigit(l.peek()) {
		val = val*10 + int64(l.peek()-'0')
		l.pos++
	}
	return Token{Kind: Number, Text: l.src[start:l.pos], Value: val, Pos: start}
}

// scanIdent collects a single-letter variable name. A second letter
// directly after the first is an error: only a..z name variables.
func (l *Lexer) scanIdent() (Token, error) {
	start := l.pos
	l.pos++
	if isLower(l.peek()) {
		return Token{}, &LexError{
			Pos:    l.pos,
			Char:   rune(l.peek()),
			Reason: "variable names are a single lowercase letter",
		}
	}
	return Token{Kind: Identifier, Text: l.src[start:l.pos], Pos: start}, nil
}

func (l *Lexer) reserved(start, n int) Token {
	l.pos = start + n
	return Token{Kind: Reserved, Text: l.src[start:l.pos], Pos: start}
}

// nextToken skips whitespace and returns the next Token.
func (l *Lexer) nextToken() (Token, error) {
	l.skipWhitespace()
	if l.pos >= len(l.src) {
		return Token{Kind: EOF, Pos: l.pos}, nil
	}

	ch := l.peek()
	start := l.pos

	if isDigit(ch) {
		return l.scanNumber(), nil
	}
	if isLower(ch) {
		return l.scanIdent()
	}

	switch ch {
	case '+', '-', '*', '/', '(', ')', ';':
		return l.reserved(start, 1), nil
	case '=', '<', '>':
		if l.peek2() == '=' {
			return l.reserved(start, 2), nil
		}
		return l.reserved(start, 1), nil
	case '!':
		if l.peek2() == '=' {
			return l.reserved(start, 2), nil
		}
		return Token{}, &LexError{Pos: start, Char: '!', Reason: "'!' must be followed by '='"}
	}

	return Token{}, &LexError{Pos: start, Char: l.currentRune()}
}

// currentRune decodes the character at the current position for error reports, so
// that a stray multi-byte character is shown whole.
func (l *Lexer) currentRune() rune {
	for _, r := range l.src[l.pos:] {
		return r
	}
	return 0
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isLower(c byte) bool { return c >= 'a' && c <= 'z' }

// Lex tokenises src and returns all tokens including the final EOF token.
// It returns a *LexError on the first character it cannot classify.
func Lex(src string) ([]Token, error) {
	l := newLexer(src)
	var tokens []Token
	for {
		tok, err := l.nextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Kind == EOF {
			return tokens, nil
		}
	}
}
