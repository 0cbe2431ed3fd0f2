package cpu

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"testing"

	"stackcc/pkg/asm"
)

// loadProgram assembles a main routine around body and resets a CPU at it.
func loadProgram(t *testing.T, body ...string) *CPU {
	t.Helper()
	lines := append([]string{
		".intel_syntax noprefix",
		".globl main",
		"main:",
	}, body...)
	prog, err := asm.Assemble(strings.Join(lines, "\n"))
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	c := NewCPU(prog, 0)
	if err := c.Reset("main"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	return c
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name string
		body []string
		want int64
	}{
		{"add", []string{"mov rax, 10", "mov rdi, 20", "add rax, rdi", "ret"}, 30},
		{"sub", []string{"mov rax, 10", "sub rax, 25", "ret"}, -15},
		{"imul", []string{"mov rax, -6", "mov rdi, 7", "imul rax, rdi", "ret"}, -42},
		{"neg", []string{"mov rax, 9", "neg rax", "ret"}, -9},
		{"idiv truncates toward zero", []string{"mov rax, -7", "mov rdi, 2", "cqo", "idiv rdi", "ret"}, -3},
		{"idiv remainder in rdx", []string{"mov rax, -7", "mov rdi, 2", "cqo", "idiv rdi", "mov rax, rdx", "ret"}, -1},
		{"add wraps", []string{"movabs rax, 9223372036854775807", "add rax, 1", "ret"}, math.MinInt64},
		{"lea", []string{"mov rdi, 100", "lea rax, [rdi-8]", "ret"}, 92},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := loadProgram(t, tt.body...)
			if err := c.Run(0); err != nil {
				t.Fatalf("run: %v", err)
			}
			if got := c.Result(); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestCompareAndSet(t *testing.T) {
	tests := []struct {
		a, b int64
		set  string
		want int64
	}{
		{1, 1, "sete", 1},
		{1, 2, "sete", 0},
		{1, 2, "setne", 1},
		{1, 2, "setl", 1},
		{2, 1, "setl", 0},
		{2, 2, "setle", 1},
		{3, 2, "setle", 0},
		{3, 2, "setg", 1},
		{2, 2, "setge", 1},
		{-5, 3, "setl", 1},
		// Signed overflow in the subtraction must not flip the result.
		{math.MinInt64, 1, "setl", 1},
		{math.MaxInt64, -1, "setg", 1},
	}
	for _, tt := range tests {
		c := loadProgram(t,
			"movabs rax, "+itoa(tt.a),
			"movabs rdi, "+itoa(tt.b),
			"cmp rax, rdi",
			tt.set+" al",
			"movzb rax, al",
			"ret",
		)
		if err := c.Run(0); err != nil {
			t.Fatalf("%s %d %d: %v", tt.set, tt.a, tt.b, err)
		}
		if got := c.Result(); got != tt.want {
			t.Errorf("%s %d, %d: expected %d, got %d", tt.set, tt.a, tt.b, tt.want, got)
		}
	}
}

func TestSetOnlyWritesLowByte(t *testing.T) {
	c := loadProgram(t, "mov rax, 0x100", "cmp rax, rax", "sete al", "ret")
	if err := c.Run(0); err != nil {
		t.Fatal(err)
	}
	if got := c.Result(); got != 0x101 {
		t.Errorf("expected 0x101, got 0x%x", got)
	}
}

func TestStackAndMemory(t *testing.T) {
	c := loadProgram(t,
		"push rbp",
		"mov rbp, rsp",
		"sub rsp, 208",
		"mov rax, rbp",
		"sub rax, 8",
		"mov rdi, 41",
		"mov [rax], rdi",
		"push 1",
		"pop rdi",
		"mov rax, [rbp-8]",
		"add rax, rdi",
		"mov rsp, rbp",
		"pop rbp",
		"ret",
	)
	sp := c.Regs[asm.RSP]
	if err := c.Run(0); err != nil {
		t.Fatal(err)
	}
	if got := c.Result(); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	if c.Regs[asm.RSP] != sp+8 {
		t.Errorf("rsp not restored: expected 0x%x, got 0x%x", sp+8, c.Regs[asm.RSP])
	}
	if !c.Halted {
		t.Error("expected CPU to be halted")
	}
}

func TestFaults(t *testing.T) {
	tests := []struct {
		name string
		body []string
		want error
	}{
		{"divide by zero", []string{"mov rax, 1", "mov rdi, 0", "cqo", "idiv rdi", "ret"}, ErrDivideByZero},
		{"quotient overflow", []string{"movabs rax, -9223372036854775808", "mov rdi, -1", "cqo", "idiv rdi", "ret"}, ErrDivideOverflow},
		{"load outside stack", []string{"mov rdi, 16", "mov rax, [rdi]", "ret"}, ErrSegfault},
		{"load near top of address space", []string{"movabs rax, 0x7ffffffffffffffc", "mov rdi, [rax]", "ret"}, ErrSegfault},
		{"store near top of address space", []string{"movabs rax, 9223372036854775807", "mov [rax], rdi", "ret"}, ErrSegfault},
		{"load straddling stack top", []string{"mov rax, rsp", "add rax, 4", "mov rdi, [rax]", "ret"}, ErrSegfault},
		{"return to garbage", []string{"push 7", "ret"}, ErrSegfault},
		{"stack overflow", []string{"push 1", "push 1", "push 1", "push 1", "push 1",
			"push 1", "push 1", "push 1", "push 1", "push 1", "sub rsp, 65536", "push 1", "ret"}, ErrSegfault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := loadProgram(t, tt.body...)
			err := c.Run(0)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var fault *Fault
			if !errors.As(err, &fault) {
				t.Fatalf("expected *Fault, got %T", err)
			}
			if fault.Instr.Line == 0 {
				t.Error("fault carries no source line")
			}
		})
	}
}

func TestStepLimit(t *testing.T) {
	c := loadProgram(t, "nop", "nop", "nop", "nop", "ret")
	if err := c.Run(3); !errors.Is(err, ErrStepLimit) {
		t.Fatalf("expected ErrStepLimit, got %v", err)
	}
	if c.Steps != 3 {
		t.Errorf("expected 3 steps, got %d", c.Steps)
	}
}

func TestStepAfterHalt(t *testing.T) {
	c := loadProgram(t, "ret")
	if err := c.Step(); err != nil {
		t.Fatal(err)
	}
	if err := c.Step(); !errors.Is(err, ErrHalted) {
		t.Errorf("expected ErrHalted, got %v", err)
	}
}

func TestExecute(t *testing.T) {
	prog, err := asm.Assemble(".intel_syntax noprefix\n.globl start\nstart:\n  push 5\n  pop rax\n  ret\n")
	if err != nil {
		t.Fatal(err)
	}
	got, err := Execute(prog, "start", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != 5 {
		t.Errorf("expected 5, got %d", got)
	}
	if _, err := Execute(prog, "main", 0, 0); err == nil {
		t.Error("expected error for missing entry label")
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
