package compiler

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"stackcc/pkg/asm"
	"stackcc/pkg/cpu"
)

// runCode compiles src, assembles the output and runs it, returning the
// value of the last statement.
func runCode(t *testing.T, src string) int64 {
	t.Helper()
	got, err := tryRun(src)
	if err != nil {
		t.Fatalf("%q: %v", src, err)
	}
	return got
}

func tryRun(src string) (int64, error) {
	lines, err := Compile(src)
	if err != nil {
		return 0, err
	}
	prog, err := asm.AssembleLines(lines)
	if err != nil {
		return 0, fmt.Errorf("assemble: %w", err)
	}
	return cpu.Execute(prog, DefaultEntry, 0, 0)
}

func TestScenarios_E2E(t *testing.T) {
	tests := []struct {
		src      string
		expected int64
	}{
		{"1+2*3;", 7},
		{"(1+2)*3;", 9},
		{"a=3;a+2;", 5},
		{"1==1;", 1},
		{"1==2;", 0},
		{"-5+8;", 3},
		{"(0-7)/2;", -3},
		{"7/2;", 3},
		{"-7/-2;", 3},
		{"42;", 42},
		{"0;", 0},
	}
	for _, tt := range tests {
		if got := runCode(t, tt.src); got != tt.expected {
			t.Errorf("%s: expected %d, got %d", tt.src, tt.expected, got)
		}
	}
}

func TestComparison_E2E(t *testing.T) {
	tests := []struct {
		expr     string
		expected int64
	}{
		{"5 < 10", 1},
		{"10 < 5", 0},
		{"5 <= 5", 1},
		{"6 <= 5", 0},
		{"5 > 3", 1},
		{"3 > 5", 0},
		{"5 >= 5", 1},
		{"4 >= 5", 0},
		{"1 != 2", 1},
		{"1 != 1", 0},
		{"-1 < 0", 1},
	}
	for _, tt := range tests {
		if got := runCode(t, tt.expr+";"); got != tt.expected {
			t.Errorf("%s: expected %d, got %d", tt.expr, tt.expected, got)
		}
	}
}

func TestGreaterMatchesSwappedLess_E2E(t *testing.T) {
	vals := []int64{-3, 0, 2, 7}
	for _, x := range vals {
		for _, y := range vals {
			pairs := [][2]string{
				{fmt.Sprintf("%d>%d;", x, y), fmt.Sprintf("%d<%d;", y, x)},
				{fmt.Sprintf("%d>=%d;", x, y), fmt.Sprintf("%d<=%d;", y, x)},
			}
			for _, p := range pairs {
				a, b := runCode(t, p[0]), runCode(t, p[1])
				if a != b {
					t.Errorf("%s = %d but %s = %d", p[0], a, p[1], b)
				}
			}
		}
	}
}

func TestNumLeavesValue_E2E(t *testing.T) {
	for _, n := range []int64{0, 1, 2147483647, 2147483648, 1 << 40, math.MaxInt64} {
		if got := runCode(t, fmt.Sprintf("%d;", n)); got != n {
			t.Errorf("%d: got %d", n, got)
		}
	}
}

func TestVariables_E2E(t *testing.T) {
	tests := []struct {
		src      string
		expected int64
	}{
		{"a=b=1;a+b;", 2},
		{"a=b=1;", 1},
		{"x=5;y=x*2;y-x;", 5},
		{"z=9;a=1;z;", 9},
		{"a=1;a=a+1;a=a*10;a;", 20},
		{"q=(p=4)+1;p*q;", 20},
		{"a;", 0},
	}
	for _, tt := range tests {
		if got := runCode(t, tt.src); got != tt.expected {
			t.Errorf("%s: expected %d, got %d", tt.src, tt.expected, got)
		}
	}
}

func TestEveryLetterHasItsOwnSlot_E2E(t *testing.T) {
	src := ""
	for c := 'a'; c <= 'z'; c++ {
		src += fmt.Sprintf("%c=%d;", c, c-'a'+1)
	}
	for c := 'a'; c <= 'z'; c++ {
		if c > 'a' {
			src += "+"
		}
		src += string(c)
	}
	src += ";"
	if got := runCode(t, src); got != 351 {
		t.Errorf("expected 351, got %d", got)
	}
}

func TestRuntimeFaults_E2E(t *testing.T) {
	tests := []struct {
		src  string
		want error
	}{
		{"1/0;", cpu.ErrDivideByZero},
		{"a=0;5/a;", cpu.ErrDivideByZero},
		{"(0-9223372036854775807-1)/-1;", cpu.ErrDivideOverflow},
	}
	for _, tt := range tests {
		_, err := tryRun(tt.src)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.src, tt.want, err)
		}
	}
}

func TestExpectedNumber_E2E(t *testing.T) {
	lines, err := Compile("1+;")
	if !errors.Is(err, ErrExpectedNumber) {
		t.Fatalf("expected ErrExpectedNumber, got %v", err)
	}
	if lines != nil {
		t.Errorf("expected no assembly, got %d lines", len(lines))
	}
}
