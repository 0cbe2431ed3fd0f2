package cpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"stackcc/pkg/asm"
)

const (
	// StackTop is one past the highest stack address; rsp starts just below it.
	StackTop int64 = 0x7fff_0000
	// DefaultStackSize is the size of the emulated stack in bytes.
	DefaultStackSize = 64 * 1024
	// DefaultMaxSteps bounds Run when the caller passes 0.
	DefaultMaxSteps = 1_000_000

	// haltAddress is the return address planted below the entry frame;
	// returning to it halts the machine.
	haltAddress int64 = 0
)

var (
	ErrDivideByZero       = errors.New("divide by zero")
	ErrDivideOverflow     = errors.New("quotient overflow")
	ErrSegfault           = errors.New("memory access out of bounds")
	ErrStepLimit          = errors.New("step limit exceeded")
	ErrUnknownInstruction = errors.New("unknown instruction")
	ErrHalted             = errors.New("machine is halted")
)

// Fault wraps a runtime error with the instruction that raised it.
type Fault struct {
	Err   error
	Instr asm.Instruction
}

func (f *Fault) Error() string {
	return fmt.Sprintf("line %d: %s: %v", f.Instr.Line, f.Instr, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

// CPU executes an assembled program over sixteen 64-bit registers and a
// byte-addressed stack. Only the flags cmp needs are modelled.
type CPU struct {
	Regs [16]int64
	PC   int // index into the program's instructions

	Z bool // zero
	S bool // sign
	O bool // overflow

	Memory []byte // covers [StackTop-len(Memory), StackTop)
	Halted bool
	Steps  int

	prog *asm.Program
}

// NewCPU prepares a machine for prog with a stack of stackSize bytes
// (DefaultStackSize when stackSize <= 0).
func NewCPU(prog *asm.Program, stackSize int) *CPU {
	if stackSize <= 0 {
		stackSize = DefaultStackSize
	}
	return &CPU{prog: prog, Memory: make([]byte, stackSize)}
}

// Reset clears registers and flags and positions the machine at entry as if
// it had just been called: rsp points at a return address that halts.
func (c *CPU) Reset(entry string) error {
	pc, err := c.prog.Entry(entry)
	if err != nil {
		return err
	}
	c.Regs = [16]int64{}
	c.Z, c.S, c.O = false, false, false
	c.Halted = false
	c.Steps = 0
	c.PC = pc
	c.Regs[asm.RSP] = StackTop
	return c.push(haltAddress)
}

// Result is the value the program returns in rax.
func (c *CPU) Result() int64 {
	return c.Regs[asm.RAX]
}

func (c *CPU) translate(addr int64) (int, error) {
	base := StackTop - int64(len(c.Memory))
	if addr < base || addr > StackTop-8 {
		return 0, fmt.Errorf("%w: 0x%x", ErrSegfault, addr)
	}
	return int(addr - base), nil
}

// Load64 reads the little-endian quadword at addr.
func (c *CPU) Load64(addr int64) (int64, error) {
	off, err := c.translate(addr)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(c.Memory[off:])), nil
}

// Store64 writes val as a little-endian quadword at addr.
func (c *CPU) Store64(addr, val int64) error {
	off, err := c.translate(addr)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(c.Memory[off:], uint64(val))
	return nil
}

func (c *CPU) push(val int64) error {
	c.Regs[asm.RSP] -= 8
	return c.Store64(c.Regs[asm.RSP], val)
}

func (c *CPU) pop() (int64, error) {
	val, err := c.Load64(c.Regs[asm.RSP])
	if err != nil {
		return 0, err
	}
	c.Regs[asm.RSP] += 8
	return val, nil
}

// read evaluates a source operand.
func (c *CPU) read(op asm.Operand) (int64, error) {
	switch op.Kind {
	case asm.Register:
		return c.Regs[op.Reg], nil
	case asm.ByteRegister:
		return int64(uint8(c.Regs[op.Reg])), nil
	case asm.Immediate:
		return op.Imm, nil
	case asm.Memory:
		return c.Load64(c.Regs[op.Reg] + op.Imm)
	}
	return 0, fmt.Errorf("unreadable operand %s", op)
}

// write stores val into a destination operand.
func (c *CPU) write(op asm.Operand, val int64) error {
	switch op.Kind {
	case asm.Register:
		c.Regs[op.Reg] = val
		return nil
	case asm.ByteRegister:
		c.Regs[op.Reg] = c.Regs[op.Reg]&^0xff | val&0xff
		return nil
	case asm.Memory:
		return c.Store64(c.Regs[op.Reg]+op.Imm, val)
	}
	return fmt.Errorf("unwritable operand %s", op)
}

// compare sets Z, S and O as the hardware does for a - b.
func (c *CPU) compare(a, b int64) {
	r := a - b
	c.Z = r == 0
	c.S = r < 0
	c.O = (a^b)&(a^r) < 0
}

func (c *CPU) condition(mnemonic string) bool {
	switch mnemonic {
	case "sete":
		return c.Z
	case "setne":
		return !c.Z
	case "setl":
		return c.S != c.O
	case "setle":
		return c.Z || c.S != c.O
	case "setg":
		return !c.Z && c.S == c.O
	case "setge":
		return c.S == c.O
	}
	return false
}

// idiv divides the 128-bit rdx:rax by divisor, truncating toward zero.
func (c *CPU) idiv(divisor int64) error {
	if divisor == 0 {
		return ErrDivideByZero
	}
	dividend := new(big.Int).Lsh(big.NewInt(c.Regs[asm.RDX]), 64)
	dividend.Or(dividend, new(big.Int).SetUint64(uint64(c.Regs[asm.RAX])))
	q, r := new(big.Int).QuoRem(dividend, big.NewInt(divisor), new(big.Int))
	if !q.IsInt64() {
		return ErrDivideOverflow
	}
	c.Regs[asm.RAX] = q.Int64()
	c.Regs[asm.RDX] = r.Int64()
	return nil
}

// Step executes one instruction.
func (c *CPU) Step() error {
	if c.Halted {
		return ErrHalted
	}
	if c.PC < 0 || c.PC >= len(c.prog.Instructions) {
		return fmt.Errorf("%w: pc %d outside program", ErrSegfault, c.PC)
	}

	in := c.prog.Instructions[c.PC]
	c.PC++
	c.Steps++
	if err := c.exec(in); err != nil {
		return &Fault{Err: err, Instr: in}
	}
	return nil
}

func (c *CPU) exec(in asm.Instruction) error {
	ops := in.Operands

	switch in.Mnemonic {
	case "nop":
		return nil

	case "push":
		val, err := c.read(ops[0])
		if err != nil {
			return err
		}
		return c.push(val)

	case "pop":
		val, err := c.pop()
		if err != nil {
			return err
		}
		return c.write(ops[0], val)

	case "mov", "movabs", "movzb", "movzx":
		val, err := c.read(ops[1])
		if err != nil {
			return err
		}
		return c.write(ops[0], val)

	case "lea":
		return c.write(ops[0], c.Regs[ops[1].Reg]+ops[1].Imm)

	case "add", "sub", "imul", "cmp":
		a, err := c.read(ops[0])
		if err != nil {
			return err
		}
		b, err := c.read(ops[1])
		if err != nil {
			return err
		}
		switch in.Mnemonic {
		case "add":
			return c.write(ops[0], a+b)
		case "sub":
			return c.write(ops[0], a-b)
		case "imul":
			return c.write(ops[0], a*b)
		}
		c.compare(a, b)
		return nil

	case "neg":
		return c.write(ops[0], -c.Regs[ops[0].Reg])

	case "cqo":
		c.Regs[asm.RDX] = c.Regs[asm.RAX] >> 63
		return nil

	case "idiv":
		return c.idiv(c.Regs[ops[0].Reg])

	case "sete", "setne", "setl", "setle", "setg", "setge":
		var v int64
		if c.condition(in.Mnemonic) {
			v = 1
		}
		return c.write(ops[0], v)

	case "ret":
		addr, err := c.pop()
		if err != nil {
			return err
		}
		if addr != haltAddress {
			return fmt.Errorf("%w: return to 0x%x", ErrSegfault, addr)
		}
		c.Halted = true
		return nil
	}

	return fmt.Errorf("%w: %s", ErrUnknownInstruction, in.Mnemonic)
}

// Run steps until the program returns from its entry frame, faults, or
// executes maxSteps instructions (DefaultMaxSteps when maxSteps <= 0).
func (c *CPU) Run(maxSteps int) error {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	for !c.Halted {
		if c.Steps >= maxSteps {
			return ErrStepLimit
		}
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Execute resets a fresh machine at entry, runs prog to completion and
// returns rax.
func Execute(prog *asm.Program, entry string, stackSize, maxSteps int) (int64, error) {
	c := NewCPU(prog, stackSize)
	if err := c.Reset(entry); err != nil {
		return 0, err
	}
	if err := c.Run(maxSteps); err != nil {
		return 0, err
	}
	return c.Result(), nil
}
