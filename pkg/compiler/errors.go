package compiler

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCharacter   = errors.New("invalid character")
	ErrExpected           = errors.New("expected token")
	ErrExpectedNumber     = errors.New("expected a number")
	ErrExpectedIdentifier = errors.New("expected a variable")
	ErrUnexpectedNode     = errors.New("unexpected node")
	ErrNotLvalue          = errors.New("not an lvalue")
	ErrUnbalancedStack    = errors.New("unbalanced operand stack")
)

// LexError reports a character the lexer cannot turn into a token.
type LexError struct {
	Pos    int
	Char   rune
	Reason string // optional detail, e.g. "'!' must be followed by '='"
}

func (e *LexError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid character %q at offset %d: %s", e.Char, e.Pos, e.Reason)
	}
	return fmt.Sprintf("invalid character %q at offset %d", e.Char, e.Pos)
}

func (e *LexError) Unwrap() error  { return ErrInvalidCharacter }
func (e *LexError) Position() int { return e.Pos }

// ParseError reports the first syntax error in a token stream.
// Kind is one of ErrExpected, ErrExpectedNumber or ErrExpectedIdentifier.
type ParseError struct {
	Kind error
	Want string // the punctuation required when Kind == ErrExpected
	Got  Token
}

func (e *ParseError) Error() string {
	got := e.Got.Text
	if e.Got.Kind == EOF {
		got = "end of input"
	}
	if e.Kind == ErrExpected {
		return fmt.Sprintf("expected %q, got %q at offset %d", e.Want, got, e.Got.Pos)
	}
	return fmt.Sprintf("%s, got %q at offset %d", e.Kind, got, e.Got.Pos)
}

func (e *ParseError) Unwrap() error  { return e.Kind }
func (e *ParseError) Position() int { return e.Got.Pos }

// CodegenError signals a broken AST invariant. Parser-built trees never
// produce one; it is an internal fault, not a user diagnostic.
type CodegenError struct {
	Kind error
	Node NodeKind
}

func (e *CodegenError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Node)
}

func (e *CodegenError) Unwrap() error { return e.Kind }
