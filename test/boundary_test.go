package test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kristofer/smog/pkg/compiler"
	"github.com/kristofer/smog/pkg/vm"
)

// TestConstantPoolBoundary exercises §8's "chunk with exactly 256 constants
// must compile; 257 must fail". Each block-scoped "var x = N;" inside its
// own braces contributes exactly one constant (the number literal) and no
// local survives past its block, so the local-count limit never interferes.
func TestConstantPoolBoundary(t *testing.T) {
	build := func(n int) string {
		var b strings.Builder
		b.WriteString("fun f() {\n")
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, "{ var x = %d; }\n", i)
		}
		b.WriteString("}\n")
		return b.String()
	}

	t.Run("256 constants compiles", func(t *testing.T) {
		machine := vm.New()
		_, ok := compiler.Compile(machine, build(256))
		assert.True(t, ok)
	})

	t.Run("257 constants fails", func(t *testing.T) {
		machine := vm.New()
		_, ok := compiler.Compile(machine, build(257))
		assert.False(t, ok)
	})
}

// TestLocalVariableBoundary exercises "function with exactly 256 locals OK;
// 257 fails". Slot 0 of every plain function reserves one local already
// (the un-referenceable slot the compiler uses for bookkeeping symmetry
// with methods), so 255 additional declarations is the last one that fits.
func TestLocalVariableBoundary(t *testing.T) {
	build := func(extra int) string {
		var b strings.Builder
		b.WriteString("fun f() {\n")
		for i := 0; i < extra; i++ {
			fmt.Fprintf(&b, "var x%d = %d;\n", i, i)
		}
		b.WriteString("}\n")
		return b.String()
	}

	t.Run("255 extra locals compiles", func(t *testing.T) {
		machine := vm.New()
		_, ok := compiler.Compile(machine, build(255))
		assert.True(t, ok)
	})

	t.Run("256 extra locals fails", func(t *testing.T) {
		machine := vm.New()
		_, ok := compiler.Compile(machine, build(256))
		assert.False(t, ok)
	})
}

// TestJumpOffsetBoundary exercises "jump of exactly 65535 bytes OK; 65536
// fails". The if-branch's JUMP_IF_FALSE offset covers POP + the compiled
// body + the following unconditional JUMP (4 bytes of fixed overhead), so
// the body is sized to land the total exactly on the boundary. "nil;"
// compiles to OP_NIL+OP_POP (2 bytes) and "!nil;" to OP_NIL+OP_NOT+OP_POP
// (3 bytes); neither touches the constant pool, so padding to an arbitrary
// byte count doesn't also trip the constants limit.
func TestJumpOffsetBoundary(t *testing.T) {
	body := func(length int) string {
		var b strings.Builder
		if length%2 != 0 {
			b.WriteString("!nil;\n")
			length -= 3
		}
		for i := 0; i < length/2; i++ {
			b.WriteString("nil;\n")
		}
		return b.String()
	}

	program := func(jump int) string {
		return fmt.Sprintf("if (true) {\n%s} else {\n}\n", body(jump-4))
	}

	t.Run("65535-byte jump compiles", func(t *testing.T) {
		machine := vm.New()
		_, ok := compiler.Compile(machine, program(65535))
		assert.True(t, ok)
	})

	t.Run("65536-byte jump fails", func(t *testing.T) {
		machine := vm.New()
		_, ok := compiler.Compile(machine, program(65536))
		assert.False(t, ok)
	})
}
