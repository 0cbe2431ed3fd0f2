// Package compiler translates a tiny expression language into x86-64
// Intel-syntax assembly that evaluates every expression on the machine stack.
//
// Pipeline: source → Lex → Parse → Generate (per statement) → assembly lines
//
// The language is a sequence of ";"-terminated expressions over integer
// literals and the 26 single-letter variables a..z, with + - * / == != < <=
// > >= unary +/- parentheses and right-associative "=".
package compiler
