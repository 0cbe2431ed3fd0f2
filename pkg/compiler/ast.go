package compiler

import (
	"fmt"
	"strconv"
)

// NodeKind identifies the construct a Node represents.
type NodeKind int

const (
	NodeAdd    NodeKind = iota // +
	NodeSub                    // -
	NodeMul                    // *
	NodeDiv                    // /
	NodeNum                    // integer literal
	NodeEq                     // ==
	NodeNe                     // !=
	NodeLt                     // <   (also x > y, operands swapped)
	NodeLe                     // <=  (also x >= y, operands swapped)
	NodeAssign                 // =
	NodeVar                    // variable
)

var nodeKindNames = [...]string{
	NodeAdd:    "Add",
	NodeSub:    "Sub",
	NodeMul:    "Mul",
	NodeDiv:    "Div",
	NodeNum:    "Num",
	NodeEq:     "Eq",
	NodeNe:     "Ne",
	NodeLt:     "Lt",
	NodeLe:     "Le",
	NodeAssign: "Assign",
	NodeVar:    "Var",
}

// nodeOps maps binary kinds to the operator printed by Node.String.
var nodeOps = map[NodeKind]string{
	NodeAdd:    "+",
	NodeSub:    "-",
	NodeMul:    "*",
	NodeDiv:    "/",
	NodeEq:     "==",
	NodeNe:     "!=",
	NodeLt:     "<",
	NodeLe:     "<=",
	NodeAssign: "=",
}

func (k NodeKind) String() string {
	if int(k) >= 0 && int(k) < len(nodeKindNames) {
		return nodeKindNames[k]
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// Binary reports whether nodes of kind k carry Left and Right children.
func (k NodeKind) Binary() bool {
	_, ok := nodeOps[k]
	return ok
}

// Node is one AST node. Which fields are meaningful depends on Kind:
//
//	a = 1 + b
//	^   ^ ^ ^
//	|   | | Var{Offset: 16}
//	|   | Add{Left, Right}
//	|   Num{Val: 1}
//	Var{Offset: 8}, the Left of an Assign
type Node struct {
	Kind   NodeKind
	Left   *Node
	Right  *Node
	Val    int64 // NodeNum
	Offset int   // NodeVar: bytes below the frame pointer
}

func newBinary(kind NodeKind, left, right *Node) *Node {
	return &Node{Kind: kind, Left: left, Right: right}
}

func newNum(val int64) *Node {
	return &Node{Kind: NodeNum, Val: val}
}

func newVar(offset int) *Node {
	return &Node{Kind: NodeVar, Offset: offset}
}

// String renders the canonical source form: binaries fully parenthesised,
// variables by letter. Parsing the result followed by ";" yields an equal tree.
func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	switch n.Kind {
	case NodeNum:
		if n.Val < 0 {
			// Only a wrapped literal is negative; its unsigned spelling lexes
			// back to the same value, a leading "-" would not.
			return strconv.FormatUint(uint64(n.Val), 10)
		}
		return strconv.FormatInt(n.Val, 10)
	case NodeVar:
		if name, ok := SlotName(n.Offset); ok {
			return name
		}
		return fmt.Sprintf("<slot %d>", n.Offset)
	}
	if op, ok := nodeOps[n.Kind]; ok {
		return fmt.Sprintf("(%s %s %s)", n.Left, op, n.Right)
	}
	return n.Kind.String()
}

// Dump renders the constructor form, e.g. Add(Num(1), Mul(Num(2), Num(3))).
func (n *Node) Dump() string {
	if n == nil {
		return "<nil>"
	}
	switch n.Kind {
	case NodeNum:
		return fmt.Sprintf("Num(%d)", n.Val)
	case NodeVar:
		if name, ok := SlotName(n.Offset); ok {
			return fmt.Sprintf("Var(%s)", name)
		}
		return fmt.Sprintf("Var(%d)", n.Offset)
	}
	return fmt.Sprintf("%s(%s, %s)", n.Kind, n.Left.Dump(), n.Right.Dump())
}
