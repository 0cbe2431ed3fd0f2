package compiler

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"stackcc/pkg/telemetry"
)

// DefaultEntry is the global label the emitted program is entered through.
const DefaultEntry = "main"

// Result holds every intermediate product of one compilation.
type Result struct {
	Tokens        []Token
	Stmts         []*Node
	Lines         []string
	MaxStackDepth int // deepest operand stack over all statements
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithEntry sets the name of the global entry label.
func WithEntry(name string) Option {
	return func(c *Compiler) {
		if name != "" {
			c.entry = name
		}
	}
}

// WithComments precedes each statement's block with a "# <expr>" line.
func WithComments(on bool) Option {
	return func(c *Compiler) { c.comments = on }
}

// WithTracer records a span per pipeline stage.
func WithTracer(t trace.Tracer) Option {
	return func(c *Compiler) {
		if t != nil {
			c.tracer = t
		}
	}
}

// Compiler drives the lexer, parser and generator over one program text.
// It keeps no state between calls.
type Compiler struct {
	entry    string
	comments bool
	tracer   trace.Tracer
}

func New(opts ...Option) *Compiler {
	c := &Compiler{
		entry:  DefaultEntry,
		tracer: telemetry.Noop().Tracer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile runs the whole pipeline. On error nothing is emitted: the result
// is nil and the error names the failing stage.
func (c *Compiler) Compile(ctx context.Context, src string) (*Result, error) {
	var res *Result
	err := telemetry.Span(ctx, c.tracer, "compile", func(ctx context.Context, span trace.Span) error {
		r, err := c.compile(ctx, src)
		if err != nil {
			return err
		}
		span.SetAttributes(
			attribute.Int("stackcc.statements", len(r.Stmts)),
			attribute.Int("stackcc.lines", len(r.Lines)),
			attribute.Int("stackcc.max_stack_depth", r.MaxStackDepth),
		)
		res = r
		return nil
	}, attribute.Int("stackcc.source_bytes", len(src)))
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Compiler) compile(ctx context.Context, src string) (*Result, error) {
	res := &Result{}

	err := telemetry.Span(ctx, c.tracer, "lex", func(_ context.Context, span trace.Span) error {
		tokens, err := Lex(src)
		if err != nil {
			return fmt.Errorf("lex error: %w", err)
		}
		res.Tokens = tokens
		span.SetAttributes(attribute.Int("stackcc.tokens", len(tokens)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = telemetry.Span(ctx, c.tracer, "parse", func(_ context.Context, span trace.Span) error {
		stmts, err := Parse(res.Tokens)
		if err != nil {
			return fmt.Errorf("parse error: %w", err)
		}
		res.Stmts = stmts
		span.SetAttributes(attribute.Int("stackcc.statements", len(stmts)))
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = telemetry.Span(ctx, c.tracer, "generate", func(_ context.Context, span trace.Span) error {
		lines := Prologue(c.entry)
		for _, stmt := range res.Stmts {
			body, depth, err := generate(stmt)
			if err != nil {
				return fmt.Errorf("codegen error: %w", err)
			}
			if depth > res.MaxStackDepth {
				res.MaxStackDepth = depth
			}
			if c.comments {
				lines = append(lines, "  # "+stmt.String())
			}
			lines = append(lines, body...)
			lines = append(lines, "  pop rax")
		}
		res.Lines = append(lines, Epilogue()...)
		span.SetAttributes(attribute.Int("stackcc.lines", len(res.Lines)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Prologue opens the frame: saves rbp and reserves a slot for every
// variable letter.
func Prologue(entry string) []string {
	return []string{
		".intel_syntax noprefix",
		".globl " + entry,
		entry + ":",
		"  push rbp",
		"  mov rbp, rsp",
		fmt.Sprintf("  sub rsp, %d", FrameSize),
	}
}

// Epilogue tears the frame down and returns the last statement's value,
// which the final "pop rax" left in rax.
func Epilogue() []string {
	return []string{
		"  mov rsp, rbp",
		"  pop rbp",
		"  ret",
	}
}

// Compile lexes, parses and generates src with default options and returns
// the complete assembly program, one instruction or directive per line.
func Compile(src string) ([]string, error) {
	res, err := New().Compile(context.Background(), src)
	if err != nil {
		return nil, err
	}
	return res.Lines, nil
}
