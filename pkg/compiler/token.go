package compiler

import "fmt"

// TokenKind identifies the category of a lexed token.
type TokenKind int

const (
	Reserved   TokenKind = iota // operator or punctuation, see Token.Text
	Number                      // decimal integer literal
	Identifier                  // single lowercase letter
	EOF                         // sentinel: end of input
)

var tokenKindNames = [...]string{
	Reserved:   "RESERVED",
	Number:     "NUMBER",
	Identifier: "IDENTIFIER",
	EOF:        "EOF",
}

func (k TokenKind) String() string {
	if int(k) >= 0 && int(k) < len(tokenKindNames) {
		return tokenKindNames[k]
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// Token is a single lexical unit produced by Lex.
type Token struct {
	Kind  TokenKind
	Text  string // the exact source text that was matched
	Value int64  // set when Kind == Number
	Pos   int    // byte offset of Text in the source
}

func (t Token) String() string {
	if t.Kind == Number {
		return fmt.Sprintf("%-10s %-6q value=%d  pos %d", t.Kind, t.Text, t.Value, t.Pos)
	}
	return fmt.Sprintf("%-10s %-6q  pos %d", t.Kind, t.Text, t.Pos)
}

// is reports whether t is the Reserved token op.
func (t Token) is(op string) bool {
	return t.Kind == Reserved && t.Text == op
}
