// Package bytecode defines smog's opcode set and a disassembler for it.
//
// The Chunk format itself (code/lines/constants) lives in pkg/value,
// alongside the Value it stores constants as; this package only defines
// what the bytes *mean* and how to print them back out for debugging.
// Disassembly is explicitly out-of-core per the design: the VM uses only
// the opcode definitions here and never calls the disassembler, and
// nothing else in the repository calls it either.
package bytecode

// Opcode is a single bytecode instruction's operation.
type Opcode byte

const (
	OpConstant Opcode = iota
	OpNil
	OpTrue
	OpFalse
	OpPop
	OpGetLocal
	OpSetLocal
	OpGetGlobal
	OpSetGlobal
	OpDefineGlobal
	OpGetUpvalue
	OpSetUpvalue
	OpGetProperty
	OpSetProperty
	OpGetSuper
	OpEqual
	OpGreater
	OpLess
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpNot
	OpNegate
	OpPrint
	OpJump
	OpJumpIfFalse
	OpLoop
	OpCall
	OpInvoke
	OpSuperInvoke
	OpClosure
	OpCloseUpvalue
	OpReturn
	OpClass
	OpInherit
	OpMethod
)

// String names an opcode for disassembly and trace output.
func (op Opcode) String() string {
	switch op {
	case OpConstant:
		return "OP_CONSTANT"
	case OpNil:
		return "OP_NIL"
	case OpTrue:
		return "OP_TRUE"
	case OpFalse:
		return "OP_FALSE"
	case OpPop:
		return "OP_POP"
	case OpGetLocal:
		return "OP_GET_LOCAL"
	case OpSetLocal:
		return "OP_SET_LOCAL"
	case OpGetGlobal:
		return "OP_GET_GLOBAL"
	case OpSetGlobal:
		return "OP_SET_GLOBAL"
	case OpDefineGlobal:
		return "OP_DEFINE_GLOBAL"
	case OpGetUpvalue:
		return "OP_GET_UPVALUE"
	case OpSetUpvalue:
		return "OP_SET_UPVALUE"
	case OpGetProperty:
		return "OP_GET_PROPERTY"
	case OpSetProperty:
		return "OP_SET_PROPERTY"
	case OpGetSuper:
		return "OP_GET_SUPER"
	case OpEqual:
		return "OP_EQUAL"
	case OpGreater:
		return "OP_GREATER"
	case OpLess:
		return "OP_LESS"
	case OpAdd:
		return "OP_ADD"
	case OpSubtract:
		return "OP_SUBTRACT"
	case OpMultiply:
		return "OP_MULTIPLY"
	case OpDivide:
		return "OP_DIVIDE"
	case OpNot:
		return "OP_NOT"
	case OpNegate:
		return "OP_NEGATE"
	case OpPrint:
		return "OP_PRINT"
	case OpJump:
		return "OP_JUMP"
	case OpJumpIfFalse:
		return "OP_JUMP_IF_FALSE"
	case OpLoop:
		return "OP_LOOP"
	case OpCall:
		return "OP_CALL"
	case OpInvoke:
		return "OP_INVOKE"
	case OpSuperInvoke:
		return "OP_SUPER_INVOKE"
	case OpClosure:
		return "OP_CLOSURE"
	case OpCloseUpvalue:
		return "OP_CLOSE_UPVALUE"
	case OpReturn:
		return "OP_RETURN"
	case OpClass:
		return "OP_CLASS"
	case OpInherit:
		return "OP_INHERIT"
	case OpMethod:
		return "OP_METHOD"
	default:
		return "OP_UNKNOWN"
	}
}
