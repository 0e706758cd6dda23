package vm

import (
	"time"

	"github.com/kristofer/smog/pkg/value"
)

var processStart = time.Now()

// nativeClock implements clock(), the one native §4.7 names: seconds
// elapsed since the process started, as a float64 matching every other
// smog number.
func nativeClock(args []value.Value) (value.Value, error) {
	return value.Number(time.Since(processStart).Seconds()), nil
}

// defineNative installs a host function as a global, following clox's
// push/pop-around-insert discipline: the name and the ObjNative are both
// pushed onto the VM stack before the globals Set call so that neither
// can be collected if interning the name or growing the globals table
// itself triggers a GC cycle.
func (vm *VM) defineNative(name string, arity int, fn value.NativeFn) {
	nameObj := vm.InternString(name)
	vm.push(value.FromObj(nameObj))
	native := vm.newNative(name, arity, fn)
	vm.push(value.FromObj(native))
	vm.globals.Set(vm.stack[vm.stackTop-2].AsObj().(*value.ObjString), vm.stack[vm.stackTop-1])
	vm.pop()
	vm.pop()
}
