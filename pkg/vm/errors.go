// Package vm implements the bytecode virtual machine for smog: the value
// stack, call frames, closures, the garbage collector, and native
// function binding.
//
// The VM is the final stage in the pipeline:
//
//	Source Code -> Lexer -> Compiler -> Chunk -> VM -> Execution
//
// Dispatch loop architecture is described in vm.go; the collector in
// gc.go; native registration in natives.go.
package vm

import (
	"fmt"
	"strings"
)

// StackFrame is one entry of a RuntimeError's back-trace: which function
// was executing and at what source line.
type StackFrame struct {
	FuncName string // "script" for the implicit top-level frame
	Line     int
}

// RuntimeError is raised by the VM's dispatch loop for type mismatches,
// arity errors, calls on non-callables, undefined globals/properties, and
// stack overflow (§7 of the design). It carries a back-trace ordered
// innermost frame first, matching clox's runtimeError() output and the
// teacher's RuntimeError/StackFrame shape in pkg/vm/errors.go.
type RuntimeError struct {
	Message string
	Trace   []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for _, frame := range e.Trace {
		b.WriteString("\n")
		fmt.Fprintf(&b, "[line %d] in %s", frame.Line, frame.FuncName)
	}
	return b.String()
}

func newRuntimeError(message string, trace []StackFrame) *RuntimeError {
	return &RuntimeError{Message: message, Trace: trace}
}
