package bytecode

import (
	"fmt"
	"strings"

	"github.com/kristofer/smog/pkg/value"
)

// Disassemble renders every instruction in chunk as human-readable text,
// prefixed with name — the teacher's debug-dump convention
// (disassembleChunk in clox, format.go in the teacher), kept here purely
// as a development aid; nothing in pkg/vm calls it.
func Disassemble(chunk *value.Chunk, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	for offset := 0; offset < len(chunk.Code); {
		offset = disassembleInstruction(&b, chunk, offset)
	}
	return b.String()
}

func disassembleInstruction(b *strings.Builder, chunk *value.Chunk, offset int) int {
	fmt.Fprintf(b, "%04d ", offset)
	if offset > 0 && chunk.Lines[offset] == chunk.Lines[offset-1] {
		fmt.Fprint(b, "   | ")
	} else {
		fmt.Fprintf(b, "%4d ", chunk.Lines[offset])
	}

	op := Opcode(chunk.Code[offset])
	switch op {
	case OpNil, OpTrue, OpFalse, OpPop, OpEqual, OpGreater, OpLess,
		OpAdd, OpSubtract, OpMultiply, OpDivide, OpNot, OpNegate,
		OpPrint, OpCloseUpvalue, OpReturn, OpInherit:
		return simpleInstruction(b, op, offset)
	case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue, OpCall:
		return byteInstruction(b, op, chunk, offset)
	case OpConstant, OpGetGlobal, OpSetGlobal, OpDefineGlobal,
		OpClass, OpGetProperty, OpSetProperty, OpMethod, OpGetSuper:
		return constantInstruction(b, op, chunk, offset)
	case OpJump, OpJumpIfFalse:
		return jumpInstruction(b, op, 1, chunk, offset)
	case OpLoop:
		return jumpInstruction(b, op, -1, chunk, offset)
	case OpInvoke, OpSuperInvoke:
		return invokeInstruction(b, op, chunk, offset)
	case OpClosure:
		return closureInstruction(b, chunk, offset)
	default:
		fmt.Fprintf(b, "Unknown opcode %d\n", op)
		return offset + 1
	}
}

func simpleInstruction(b *strings.Builder, op Opcode, offset int) int {
	fmt.Fprintf(b, "%s\n", op)
	return offset + 1
}

func byteInstruction(b *strings.Builder, op Opcode, chunk *value.Chunk, offset int) int {
	slot := chunk.Code[offset+1]
	fmt.Fprintf(b, "%-16s %4d\n", op, slot)
	return offset + 2
}

func constantInstruction(b *strings.Builder, op Opcode, chunk *value.Chunk, offset int) int {
	idx := chunk.Code[offset+1]
	fmt.Fprintf(b, "%-16s %4d '%s'\n", op, idx, chunk.Constants[idx].String())
	return offset + 2
}

func jumpInstruction(b *strings.Builder, op Opcode, sign int, chunk *value.Chunk, offset int) int {
	jump := int(chunk.Code[offset+1])<<8 | int(chunk.Code[offset+2])
	fmt.Fprintf(b, "%-16s %4d -> %d\n", op, offset, offset+3+sign*jump)
	return offset + 3
}

func invokeInstruction(b *strings.Builder, op Opcode, chunk *value.Chunk, offset int) int {
	idx := chunk.Code[offset+1]
	argc := chunk.Code[offset+2]
	fmt.Fprintf(b, "%-16s (%d args) %4d '%s'\n", op, argc, idx, chunk.Constants[idx].String())
	return offset + 3
}

func closureInstruction(b *strings.Builder, chunk *value.Chunk, offset int) int {
	offset++
	idx := chunk.Code[offset]
	offset++
	fmt.Fprintf(b, "%-16s %4d '%s'\n", OpClosure, idx, chunk.Constants[idx].String())

	fn, ok := chunk.Constants[idx].AsObj().(*value.ObjFunction)
	if !ok {
		return offset
	}
	for i := 0; i < fn.UpvalueCount; i++ {
		isLocal := chunk.Code[offset]
		offset++
		index := chunk.Code[offset]
		offset++
		kind := "upvalue"
		if isLocal != 0 {
			kind = "local"
		}
		fmt.Fprintf(b, "%04d      |                     %s %d\n", offset-2, kind, index)
	}
	return offset
}
