// Package test holds black-box, script-to-stdout integration tests, the
// same shape as the teacher's top-level test/ package: one *vm.VM per
// case, source in, rendered stdout (and, for error cases, the returned
// error) out.
package test

import (
	"bytes"
	"testing"

	"github.com/kristofer/smog/pkg/compiler"
	"github.com/kristofer/smog/pkg/vm"
)

// run compiles and executes source against a fresh VM, returning whatever
// OP_PRINT wrote and the error from either stage (compile failure or a
// runtime error), whichever occurred.
func run(t *testing.T, source string) (string, error) {
	t.Helper()
	return runWith(t, vm.New(), source)
}

// runStress is run with StressGC enabled, forcing a full collection on
// every single heap allocation the compiler or VM makes, to shake out
// collector bugs that only a real allocation pattern (not a hand-picked
// one) would trigger.
func runStress(t *testing.T, source string) (string, error) {
	t.Helper()
	machine := vm.New()
	machine.StressGC = true
	return runWith(t, machine, source)
}

func runWith(t *testing.T, machine *vm.VM, source string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	machine.Stdout = &out

	fn, ok := compiler.Compile(machine, source)
	if !ok {
		return out.String(), errCompileFailed
	}
	err := machine.Run(fn)
	return out.String(), err
}

var errCompileFailed = compileFailedError{}

type compileFailedError struct{}

func (compileFailedError) Error() string { return "compile failed" }
