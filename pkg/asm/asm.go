package asm

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// General-purpose register numbers, in x86-64 encoding order.
const (
	RAX = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

var registers = map[string]int{
	"rax": RAX, "rcx": RCX, "rdx": RDX, "rbx": RBX,
	"rsp": RSP, "rbp": RBP, "rsi": RSI, "rdi": RDI,
	"r8": R8, "r9": R9, "r10": R10, "r11": R11,
	"r12": R12, "r13": R13, "r14": R14, "r15": R15,
}

// byteRegisters are the low-byte views used by setcc and movzb.
var byteRegisters = map[string]int{
	"al": RAX, "cl": RCX, "dl": RDX, "bl": RBX,
	"spl": RSP, "bpl": RBP, "sil": RSI, "dil": RDI,
}

var zeroOperandOps = map[string]bool{
	"ret": true,
	"cqo": true,
	"nop": true,
}

var oneOperandOps = map[string]bool{
	"push":  true,
	"pop":   true,
	"idiv":  true,
	"neg":   true,
	"sete":  true,
	"setne": true,
	"setl":  true,
	"setle": true,
	"setg":  true,
	"setge": true,
}

var twoOperandOps = map[string]bool{
	"mov":    true,
	"movabs": true,
	"movzb":  true,
	"movzx":  true,
	"lea":    true,
	"add":    true,
	"sub":    true,
	"imul":   true,
	"cmp":    true,
}

// OperandKind distinguishes the operand shapes the assembler accepts.
type OperandKind int

const (
	Register OperandKind = iota // rax, rdi, ...
	ByteRegister                // al, dil, ...
	Immediate                   // 42, -8, 0x10
	Memory                      // [rax], [rbp-8], -8[rbp]
)

// Operand is one parsed instruction operand.
type Operand struct {
	Kind OperandKind
	Reg  int   // register number, or the base register of a Memory operand
	Imm  int64 // immediate value, or the displacement of a Memory operand
}

func (o Operand) String() string {
	switch o.Kind {
	case Register:
		return regName(o.Reg, registers)
	case ByteRegister:
		return regName(o.Reg, byteRegisters)
	case Immediate:
		return strconv.FormatInt(o.Imm, 10)
	case Memory:
		base := regName(o.Reg, registers)
		switch {
		case o.Imm > 0:
			return fmt.Sprintf("[%s+%d]", base, o.Imm)
		case o.Imm < 0:
			return fmt.Sprintf("[%s%d]", base, o.Imm)
		}
		return "[" + base + "]"
	}
	return "?"
}

// regName looks a register number up in one of the name tables; each table
// holds exactly one name per number.
func regName(n int, table map[string]int) string {
	for name, r := range table {
		if r == n {
			return name
		}
	}
	return fmt.Sprintf("r?%d", n)
}

// Instruction is one executable line of a Program.
type Instruction struct {
	Mnemonic string
	Operands []Operand
	Line     int // 1-based source line, for fault reports
}

func (in Instruction) String() string {
	if len(in.Operands) == 0 {
		return in.Mnemonic
	}
	ops := make([]string, len(in.Operands))
	for i, op := range in.Operands {
		ops[i] = op.String()
	}
	return in.Mnemonic + " " + strings.Join(ops, ", ")
}

// Program is assembled code: instructions in order plus the label table.
type Program struct {
	Instructions []Instruction
	Labels       map[string]int // label -> index of the next instruction
	Globals      []string
}

// Entry returns the instruction index of a global label.
func (p *Program) Entry(name string) (int, error) {
	idx, ok := p.Labels[name]
	if !ok {
		return 0, fmt.Errorf("undefined entry label '%s'", name)
	}
	return idx, nil
}

type Assembler struct {
	labels map[string]int
}

type parsedLine struct {
	lineNo    int
	labels    []string
	directive string
	mnemonic  string
	operands  []string
}

func NewAssembler() *Assembler {
	return &Assembler{
		labels: make(map[string]int),
	}
}

// Assemble parses Intel-syntax source text into a Program.
func Assemble(code string) (*Program, error) {
	return NewAssembler().Assemble(code)
}

// AssembleLines is Assemble over already split lines.
func AssembleLines(lines []string) (*Program, error) {
	return NewAssembler().assemble(lines)
}

func (a *Assembler) Assemble(code string) (*Program, error) {
	return a.assemble(strings.Split(code, "\n"))
}

func (a *Assembler) assemble(lines []string) (*Program, error) {
	parsed := make([]parsedLine, 0, len(lines))
	for i, raw := range lines {
		p, err := parseLine(raw, i+1)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, p)
	}

	if err := a.pass1(parsed); err != nil {
		return nil, err
	}
	return a.pass2(parsed)
}

// pass1 assigns every label the index of the instruction that follows it.
func (a *Assembler) pass1(lines []parsedLine) error {
	index := 0
	for _, p := range lines {
		for _, lbl := range p.labels {
			if _, exists := a.labels[lbl]; exists {
				return fmt.Errorf("duplicate label '%s' on line %d", lbl, p.lineNo)
			}
			a.labels[lbl] = index
		}
		if p.mnemonic != "" {
			index++
		}
	}
	return nil
}

func (a *Assembler) pass2(lines []parsedLine) (*Program, error) {
	prog := &Program{Labels: a.labels}
	syntaxSet := false

	for _, p := range lines {
		switch p.directive {
		case "":
		case ".intel_syntax":
			if len(p.operands) != 1 || p.operands[0] != "noprefix" {
				return nil, fmt.Errorf(".intel_syntax expects noprefix on line %d", p.lineNo)
			}
			syntaxSet = true
		case ".globl", ".global":
			if len(p.operands) != 1 || !isIdentifier(p.operands[0]) {
				return nil, fmt.Errorf("%s expects one symbol on line %d", p.directive, p.lineNo)
			}
			prog.Globals = append(prog.Globals, p.operands[0])
		case ".text":
		default:
			return nil, fmt.Errorf("unknown directive on line %d: %s", p.lineNo, p.directive)
		}

		if p.mnemonic == "" {
			continue
		}
		if !syntaxSet {
			return nil, fmt.Errorf("instruction before .intel_syntax noprefix on line %d", p.lineNo)
		}

		want, ok := operandCount(p.mnemonic)
		if !ok {
			return nil, fmt.Errorf("unknown instruction on line %d: %s", p.lineNo, p.mnemonic)
		}
		if len(p.operands) != want {
			return nil, fmt.Errorf("%s expects %d operands on line %d", p.mnemonic, want, p.lineNo)
		}

		in := Instruction{Mnemonic: p.mnemonic, Line: p.lineNo}
		for _, raw := range p.operands {
			op, err := parseOperand(raw, p.lineNo)
			if err != nil {
				return nil, err
			}
			in.Operands = append(in.Operands, op)
		}
		if err := checkOperands(in); err != nil {
			return nil, err
		}
		prog.Instructions = append(prog.Instructions, in)
	}

	for _, g := range prog.Globals {
		if _, ok := prog.Labels[g]; !ok {
			return nil, fmt.Errorf("global '%s' is never defined", g)
		}
	}
	return prog, nil
}

// checkOperands rejects operand shapes the instruction cannot encode.
func checkOperands(in Instruction) error {
	bad := func() error {
		return fmt.Errorf("invalid operands for %s on line %d", in.Mnemonic, in.Line)
	}
	ops := in.Operands
	switch in.Mnemonic {
	case "push":
		if ops[0].Kind != Register && ops[0].Kind != Immediate {
			return bad()
		}
		if ops[0].Kind == Immediate && !fitsImm32(ops[0].Imm) {
			return bad()
		}
	case "pop", "idiv", "neg":
		if ops[0].Kind != Register {
			return bad()
		}
	case "sete", "setne", "setl", "setle", "setg", "setge":
		if ops[0].Kind != ByteRegister {
			return bad()
		}
	case "movabs":
		if ops[0].Kind != Register || ops[1].Kind != Immediate {
			return bad()
		}
	case "movzb", "movzx":
		if ops[0].Kind != Register || ops[1].Kind != ByteRegister {
			return bad()
		}
	case "lea":
		if ops[0].Kind != Register || ops[1].Kind != Memory {
			return bad()
		}
	case "mov":
		if ops[0].Kind == Memory && ops[1].Kind == Memory {
			return bad()
		}
		if ops[0].Kind != Register && ops[0].Kind != Memory {
			return bad()
		}
		if ops[1].Kind == ByteRegister || (ops[1].Kind == Immediate && ops[0].Kind == Memory && !fitsImm32(ops[1].Imm)) {
			return bad()
		}
	case "add", "sub", "imul", "cmp":
		if ops[0].Kind != Register || ops[1].Kind == ByteRegister {
			return bad()
		}
		if ops[1].Kind == Immediate && !fitsImm32(ops[1].Imm) {
			return bad()
		}
	}
	return nil
}

func fitsImm32(v int64) bool {
	return v >= -1<<31 && v < 1<<31
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(stripComments(raw))
	if line == "" {
		return p, nil
	}

	for {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			break
		}

		beforeColon := strings.TrimSpace(line[:colon])
		if strings.ContainsAny(beforeColon, " \t[") {
			break
		}
		if !isIdentifier(beforeColon) {
			return p, fmt.Errorf("invalid label '%s' on line %d", beforeColon, lineNo)
		}

		p.labels = append(p.labels, beforeColon)
		line = strings.TrimSpace(line[colon+1:])
		if line == "" {
			return p, nil
		}
	}

	head, rest := line, ""
	if i := strings.IndexFunc(line, unicode.IsSpace); i > 0 {
		head, rest = line[:i], strings.TrimSpace(line[i:])
	}
	head = strings.ToLower(head)

	var operands []string
	if rest != "" {
		for _, op := range strings.Split(rest, ",") {
			op = strings.TrimSpace(op)
			if op == "" {
				return p, fmt.Errorf("empty operand on line %d", lineNo)
			}
			operands = append(operands, op)
		}
	}

	if strings.HasPrefix(head, ".") {
		p.directive = head
	} else {
		p.mnemonic = head
	}
	p.operands = operands
	return p, nil
}

func stripComments(line string) string {
	hash := strings.Index(line, "#")
	doubleSlash := strings.Index(line, "//")

	cut := -1
	if hash >= 0 {
		cut = hash
	}
	if doubleSlash >= 0 && (cut == -1 || doubleSlash < cut) {
		cut = doubleSlash
	}
	if cut >= 0 {
		return line[:cut]
	}
	return line
}

func parseOperand(token string, lineNo int) (Operand, error) {
	tok := strings.ToLower(strings.TrimSpace(token))
	tok = strings.TrimPrefix(tok, "qword ptr ")
	tok = strings.TrimSpace(tok)

	if r, ok := registers[tok]; ok {
		return Operand{Kind: Register, Reg: r}, nil
	}
	if r, ok := byteRegisters[tok]; ok {
		return Operand{Kind: ByteRegister, Reg: r}, nil
	}
	if strings.HasSuffix(tok, "]") {
		return parseMemory(tok, lineNo)
	}
	if v, err := strconv.ParseInt(tok, 0, 64); err == nil {
		return Operand{Kind: Immediate, Imm: v}, nil
	}
	return Operand{}, fmt.Errorf("invalid operand '%s' on line %d", token, lineNo)
}

// parseMemory accepts [base], [base+disp], [base-disp] and disp[base].
func parseMemory(tok string, lineNo int) (Operand, error) {
	open := strings.IndexByte(tok, '[')
	if open < 0 {
		return Operand{}, fmt.Errorf("invalid memory operand '%s' on line %d", tok, lineNo)
	}
	prefix := strings.TrimSpace(tok[:open])
	inner := strings.TrimSpace(tok[open+1 : len(tok)-1])

	var disp int64
	if prefix != "" {
		v, err := strconv.ParseInt(prefix, 0, 64)
		if err != nil {
			return Operand{}, fmt.Errorf("invalid displacement '%s' on line %d", prefix, lineNo)
		}
		disp = v
	}

	base := inner
	if i := strings.IndexAny(inner, "+-"); i > 0 {
		base = strings.TrimSpace(inner[:i])
		v, err := strconv.ParseInt(strings.ReplaceAll(inner[i:], " ", ""), 0, 64)
		if err != nil {
			return Operand{}, fmt.Errorf("invalid displacement '%s' on line %d", inner[i:], lineNo)
		}
		disp += v
	}

	r, ok := registers[base]
	if !ok {
		return Operand{}, fmt.Errorf("invalid base register '%s' on line %d", base, lineNo)
	}
	return Operand{Kind: Memory, Reg: r, Imm: disp}, nil
}

func operandCount(mnemonic string) (int, bool) {
	switch {
	case zeroOperandOps[mnemonic]:
		return 0, true
	case oneOperandOps[mnemonic]:
		return 1, true
	case twoOperandOps[mnemonic]:
		return 2, true
	}
	return 0, false
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' && r != '.' {
				return false
			}
			continue
		}

		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '.' {
			return false
		}
	}

	return true
}
