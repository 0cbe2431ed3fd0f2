package compiler

import (
	"fmt"
	"math"
)

// operandStack models the evaluation stack that the emitted code keeps on
// the machine stack. It tracks depth only; values exist at run time.
type operandStack struct {
	depth int
	max   int
}

func (s *operandStack) push() {
	s.depth++
	if s.depth > s.max {
		s.max = s.depth
	}
}

func (s *operandStack) pop() {
	s.depth--
}

// CodeGen walks one statement tree and emits x86-64 Intel-syntax lines.
// Every node leaves exactly one value on the operand stack.
type CodeGen struct {
	out   []string
	stack operandStack
}

func newCodeGen() *CodeGen {
	return &CodeGen{}
}

func (cg *CodeGen) line(format string, args ...any) {
	cg.out = append(cg.out, fmt.Sprintf("  "+format, args...))
}

func (cg *CodeGen) push(operand string) {
	cg.line("push %s", operand)
	cg.stack.push()
}

func (cg *CodeGen) pop(reg string) {
	cg.line("pop %s", reg)
	cg.stack.pop()
}

// cmp emits a comparison of rax against rdi leaving 0 or 1 in rax.
func (cg *CodeGen) cmp(set string) {
	cg.line("cmp rax, rdi")
	cg.line("%s al", set)
	cg.line("movzb rax, al")
}

// genAddr pushes the address of a variable: the frame pointer minus its slot.
func (cg *CodeGen) genAddr(n *Node) error {
	if n == nil || n.Kind != NodeVar {
		kind := NodeKind(-1)
		if n != nil {
			kind = n.Kind
		}
		return &CodegenError{Kind: ErrNotLvalue, Node: kind}
	}
	cg.line("mov rax, rbp")
	cg.line("sub rax, %d", n.Offset)
	cg.push("rax")
	return nil
}

// genExpr emits the instructions that evaluate n and push its value.
func (cg *CodeGen) genExpr(n *Node) error {
	if n == nil {
		return &CodegenError{Kind: ErrUnexpectedNode, Node: NodeKind(-1)}
	}

	switch n.Kind {
	case NodeNum:
		if n.Val < math.MinInt32 || n.Val > math.MaxInt32 {
			// push only takes a sign-extended 32-bit immediate.
			cg.line("movabs rax, %d", n.Val)
			cg.push("rax")
			return nil
		}
		cg.push(fmt.Sprintf("%d", n.Val))
		return nil

	case NodeVar:
		if err := cg.genAddr(n); err != nil {
			return err
		}
		cg.pop("rax")
		cg.line("mov rax, [rax]")
		cg.push("rax")
		return nil

	case NodeAssign:
		if err := cg.genAddr(n.Left); err != nil {
			return err
		}
		if err := cg.genExpr(n.Right); err != nil {
			return err
		}
		cg.pop("rdi")
		cg.pop("rax")
		cg.line("mov [rax], rdi")
		cg.push("rdi")
		return nil
	}

	if !n.Kind.Binary() {
		return &CodegenError{Kind: ErrUnexpectedNode, Node: n.Kind}
	}

	if err := cg.genExpr(n.Left); err != nil {
		return err
	}
	if err := cg.genExpr(n.Right); err != nil {
		return err
	}
	cg.pop("rdi")
	cg.pop("rax")

	switch n.Kind {
	case NodeAdd:
		cg.line("add rax, rdi")
	case NodeSub:
		cg.line("sub rax, rdi")
	case NodeMul:
		cg.line("imul rax, rdi")
	case NodeDiv:
		cg.line("cqo")
		cg.line("idiv rdi")
	case NodeEq:
		cg.cmp("sete")
	case NodeNe:
		cg.cmp("setne")
	case NodeLt:
		cg.cmp("setl")
	case NodeLe:
		cg.cmp("setle")
	default:
		return &CodegenError{Kind: ErrUnexpectedNode, Node: n.Kind}
	}

	cg.push("rax")
	return nil
}

// Generate emits the instruction lines for one top-level statement. The
// lines leave the statement's value on top of the machine stack; the caller
// is responsible for discarding it.
func Generate(stmt *Node) ([]string, error) {
	lines, _, err := generate(stmt)
	return lines, err
}

// generate is Generate plus the deepest operand stack the statement reached.
func generate(stmt *Node) ([]string, int, error) {
	cg := newCodeGen()
	if err := cg.genExpr(stmt); err != nil {
		return nil, 0, err
	}
	if cg.stack.depth != 1 {
		return nil, 0, fmt.Errorf("%w: %d values left after %s", ErrUnbalancedStack, cg.stack.depth, stmt.Kind)
	}
	return cg.out, cg.stack.max, nil
}
