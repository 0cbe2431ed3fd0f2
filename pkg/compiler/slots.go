package compiler

// Every lowercase letter names a variable with a permanently reserved
// 8-byte slot below the frame pointer: a at rbp-8, b at rbp-16, ... z at
// rbp-208. There is no declaration step and no symbol table.
const (
	SlotSize  = 8
	NumSlots  = 26
	FrameSize = NumSlots * SlotSize
)

// SlotOffset returns the frame offset reserved for the variable letter.
func SlotOffset(letter byte) (int, bool) {
	if letter < 'a' || letter > 'z' {
		return 0, false
	}
	return (int(letter-'a') + 1) * SlotSize, true
}

// SlotName is the inverse of SlotOffset.
func SlotName(offset int) (string, bool) {
	if offset <= 0 || offset > FrameSize || offset%SlotSize != 0 {
		return "", false
	}
	return string(rune('a' + offset/SlotSize - 1)), true
}
