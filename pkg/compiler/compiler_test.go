package compiler

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/smog/pkg/bytecode"
	"github.com/kristofer/smog/pkg/value"
	"github.com/kristofer/smog/pkg/vm"
)

func compileErr(t *testing.T, source string) string {
	t.Helper()
	machine := vm.New()
	var stderr bytes.Buffer
	_, ok := CompileTo(machine, source, &stderr)
	require.False(t, ok, "expected a compile error for: %s", source)
	return stderr.String()
}

func TestCompileSucceeds(t *testing.T) {
	cases := []string{
		`print 1 + 2;`,
		`var a = 1; { var a = 2; print a; } print a;`,
		`fun add(a, b) { return a + b; } print add(1, 2);`,
		`class A {} class B < A {} print B;`,
		`for (var i = 0; i < 3; i = i + 1) print i;`,
		`while (false) {}`,
		`if (true) { print 1; } else { print 2; }`,
	}
	for _, src := range cases {
		machine := vm.New()
		_, ok := Compile(machine, src)
		assert.True(t, ok, "expected %q to compile", src)
	}
}

func TestErrorMessageUndefinedVariableInOwnInitializer(t *testing.T) {
	msg := compileErr(t, `{ var a = a; }`)
	assert.Contains(t, msg, "Can't read local variable in its own initializer.")
}

func TestErrorMessageDuplicateLocalInSameScope(t *testing.T) {
	msg := compileErr(t, `{ var a = 1; var a = 2; }`)
	assert.Contains(t, msg, "Already a variable with this name in this scope.")
}

func TestErrorMessageReturnFromTopLevel(t *testing.T) {
	msg := compileErr(t, `return 1;`)
	assert.Contains(t, msg, "Can't return from top-level code.")
}

func TestErrorMessageReturnValueFromInitializer(t *testing.T) {
	msg := compileErr(t, `class A { init() { return 1; } }`)
	assert.Contains(t, msg, "Can't return a value from an initializer.")
}

func TestErrorMessageThisOutsideClass(t *testing.T) {
	msg := compileErr(t, `fun f() { print this; }`)
	assert.Contains(t, msg, "Can't use 'this' outside of a class.")
}

func TestErrorMessageSuperOutsideClass(t *testing.T) {
	msg := compileErr(t, `fun f() { print super.x; }`)
	assert.Contains(t, msg, "Can't use 'super' outside of a class.")
}

func TestErrorMessageSuperWithNoSuperclass(t *testing.T) {
	msg := compileErr(t, `class A { f() { print super.x; } }`)
	assert.Contains(t, msg, "Can't use 'super' in a class with no superclass.")
}

func TestErrorMessageClassInheritsFromItself(t *testing.T) {
	msg := compileErr(t, `class A < A {}`)
	assert.Contains(t, msg, "A class can't inherit from itself.")
}

func TestErrorMessageTooManyArguments(t *testing.T) {
	var args []string
	for i := 0; i < 256; i++ {
		args = append(args, "nil")
	}
	source := `fun f() {} f(` + strings.Join(args, ", ") + `);`
	msg := compileErr(t, source)
	assert.Contains(t, msg, "Can't have more than 255 arguments.")
}

func TestErrorMessageTooManyParameters(t *testing.T) {
	var params []string
	for i := 0; i < 256; i++ {
		params = append(params, fmt.Sprintf("p%d", i))
	}
	source := `fun f(` + strings.Join(params, ", ") + `) {}`
	msg := compileErr(t, source)
	assert.Contains(t, msg, "Can't have more than 255 parameters.")
}

func TestErrorMessageUnexpectedTokenReportsLexemeAndLine(t *testing.T) {
	msg := compileErr(t, "\n\nvar 1 = 2;")
	assert.Contains(t, msg, "[line 3] Error at '1'")
}

func TestParserSynchronizesAfterError(t *testing.T) {
	// The first statement is malformed; the second is valid. A single
	// compile error should be reported, not a cascade, because
	// synchronize() skips to the next statement boundary.
	machine := vm.New()
	var stderr bytes.Buffer
	_, ok := CompileTo(machine, `var ; print 1;`, &stderr)
	assert.False(t, ok)
	assert.Equal(t, 1, strings.Count(stderr.String(), "[line"))
}

func TestFusedComparisonOpcodes(t *testing.T) {
	// >= and <= have no dedicated opcode: they compile to LESS/GREATER
	// followed by NOT.
	machine := vm.New()
	fn, ok := Compile(machine, `print 1 >= 2;`)
	require.True(t, ok)

	var sawLess, sawNot bool
	for _, b := range fn.Chunk.Code {
		if bytecode.Opcode(b) == bytecode.OpLess {
			sawLess = true
		}
		if bytecode.Opcode(b) == bytecode.OpNot {
			sawNot = true
		}
	}
	assert.True(t, sawLess, "OP_LESS should appear in the fused >= sequence")
	assert.True(t, sawNot, "OP_NOT should appear in the fused >= sequence")
}

func TestClosureEmitsUpvalueOperands(t *testing.T) {
	machine := vm.New()
	fn, ok := Compile(machine, `fun outer() { var x = 1; fun inner() { return x; } return inner; }`)
	require.True(t, ok)

	var outer *value.ObjFunction
	for _, k := range fn.Chunk.Constants {
		if f, isFn := k.AsObj().(*value.ObjFunction); isFn && f.Name != nil && f.Name.Chars == "outer" {
			outer = f
		}
	}
	require.NotNil(t, outer, "the script's constant pool holds outer's function")

	code := outer.Chunk.Code
	var sawClosure bool
	for i := 0; i+3 < len(code); i++ {
		if bytecode.Opcode(code[i]) == bytecode.OpClosure {
			sawClosure = true
			assert.Equal(t, byte(1), code[i+2], "inner's upvalue is a local of outer")
			assert.Equal(t, byte(1), code[i+3], "x lives in outer's slot 1")
			break
		}
	}
	assert.True(t, sawClosure, "declaring inner, a closure over x, emits OP_CLOSURE in outer's chunk")
}

func TestMarkRootsReachesInProgressFunction(t *testing.T) {
	machine := vm.New()
	c := &Compiler{vm: machine}
	outer := machine.NewFunction()
	inner := machine.NewFunction()
	c.fn = &funcState{kind: typeFunction, function: inner, enclosing: &funcState{kind: typeScript, function: outer}}

	var marked []value.Value
	c.MarkRoots(func(v value.Value) { marked = append(marked, v) })

	assert.Len(t, marked, 2, "MarkRoots walks the enclosing chain, not just the innermost function")
}
