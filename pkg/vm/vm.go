package vm

import (
	"fmt"

	"github.com/kristofer/smog/pkg/bytecode"
	"github.com/kristofer/smog/pkg/value"
)

// Run wraps fn (the implicit top-level script function the compiler
// produced) in a closure, pushes it as the VM's first call frame, and
// executes until it returns or a runtime error propagates out.
func (vm *VM) Run(fn *value.ObjFunction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if rte, ok := r.(*RuntimeError); ok {
				err = vm.attachTrace(rte)
				return
			}
			panic(r)
		}
	}()

	closure := vm.NewClosure(fn)
	vm.push(value.FromObj(closure))
	if err := vm.call(closure, 0); err != nil {
		return err
	}
	return vm.run()
}

func (vm *VM) push(v value.Value) {
	if vm.stackTop >= stackMax {
		panic(&RuntimeError{Message: "Stack overflow."})
	}
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() value.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.stackTop-1-distance]
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

// run is the bytecode dispatch loop: fetch, decode, execute, for the
// currently active call frame, switching frames on OP_CALL/OP_RETURN.
// Stack/frame overflow is signaled by panicking with a *RuntimeError,
// caught by Run's deferred recover — push and call sites are too numerous
// to thread an error return through every one of them.
func (vm *VM) run() error {
	frame := &vm.frames[vm.frameCount-1]
	for {
		instruction := bytecode.Opcode(vm.readByte(frame))
		switch instruction {
		case bytecode.OpConstant:
			vm.push(vm.readConstant(frame))

		case bytecode.OpNil:
			vm.push(value.Nil)
		case bytecode.OpTrue:
			vm.push(value.Bool(true))
		case bytecode.OpFalse:
			vm.push(value.Bool(false))
		case bytecode.OpPop:
			vm.pop()

		case bytecode.OpGetLocal:
			slot := vm.readByte(frame)
			vm.push(vm.stack[frame.SlotsBase+int(slot)])
		case bytecode.OpSetLocal:
			slot := vm.readByte(frame)
			vm.stack[frame.SlotsBase+int(slot)] = vm.peek(0)

		case bytecode.OpGetGlobal:
			name := vm.readConstant(frame).AsObj().(*value.ObjString)
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}
			vm.push(v)
		case bytecode.OpDefineGlobal:
			name := vm.readConstant(frame).AsObj().(*value.ObjString)
			vm.globals.Set(name, vm.peek(0))
			vm.pop()
		case bytecode.OpSetGlobal:
			name := vm.readConstant(frame).AsObj().(*value.ObjString)
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				return vm.runtimeError("Undefined variable '%s'.", name.Chars)
			}

		case bytecode.OpGetUpvalue:
			slot := vm.readByte(frame)
			vm.push(*frame.Closure.Upvalues[slot].Location)
		case bytecode.OpSetUpvalue:
			slot := vm.readByte(frame)
			*frame.Closure.Upvalues[slot].Location = vm.peek(0)

		case bytecode.OpGetProperty:
			inst, ok := vm.peek(0).AsObj().(*value.ObjInstance)
			if !vm.peek(0).IsObj() || !ok {
				return vm.runtimeError("Only instances have properties.")
			}
			name := vm.readConstant(frame).AsObj().(*value.ObjString)
			if v, ok := inst.Fields.Get(name); ok {
				vm.pop() // instance
				vm.push(v)
				break
			}
			bound, err := vm.bindMethod(inst.Class, name)
			if err != nil {
				return vm.runtimeError("%s", err.Error())
			}
			vm.pop()
			vm.push(bound)
		case bytecode.OpSetProperty:
			inst, ok := vm.peek(1).AsObj().(*value.ObjInstance)
			if !vm.peek(1).IsObj() || !ok {
				return vm.runtimeError("Only instances have fields.")
			}
			name := vm.readConstant(frame).AsObj().(*value.ObjString)
			inst.Fields.Set(name, vm.peek(0))
			v := vm.pop()
			vm.pop() // instance
			vm.push(v)
		case bytecode.OpGetSuper:
			name := vm.readConstant(frame).AsObj().(*value.ObjString)
			superclass := vm.pop().AsObj().(*value.ObjClass)
			bound, err := vm.bindMethod(superclass, name)
			if err != nil {
				return vm.runtimeError("%s", err.Error())
			}
			vm.pop() // receiver ("this")
			vm.push(bound)

		case bytecode.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.Bool(value.Equal(a, b)))
		case bytecode.OpGreater:
			if err := vm.binaryCompare(func(a, b float64) bool { return a > b }); err != nil {
				return err
			}
		case bytecode.OpLess:
			if err := vm.binaryCompare(func(a, b float64) bool { return a < b }); err != nil {
				return err
			}

		case bytecode.OpAdd:
			if err := vm.add(); err != nil {
				return err
			}
		case bytecode.OpSubtract:
			if err := vm.binaryNumber(func(a, b float64) float64 { return a - b }); err != nil {
				return err
			}
		case bytecode.OpMultiply:
			if err := vm.binaryNumber(func(a, b float64) float64 { return a * b }); err != nil {
				return err
			}
		case bytecode.OpDivide:
			if err := vm.binaryNumber(func(a, b float64) float64 { return a / b }); err != nil {
				return err
			}

		case bytecode.OpNot:
			vm.push(value.Bool(vm.pop().IsFalsey()))
		case bytecode.OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.push(value.Number(-vm.pop().AsNumber()))

		case bytecode.OpPrint:
			fmt.Fprintln(vm.Stdout, vm.pop().String())

		case bytecode.OpJump:
			offset := vm.readShort(frame)
			frame.IP += offset
		case bytecode.OpJumpIfFalse:
			offset := vm.readShort(frame)
			if vm.peek(0).IsFalsey() {
				frame.IP += offset
			}
		case bytecode.OpLoop:
			offset := vm.readShort(frame)
			frame.IP -= offset

		case bytecode.OpCall:
			argCount := int(vm.readByte(frame))
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpInvoke:
			method := vm.readConstant(frame).AsObj().(*value.ObjString)
			argCount := int(vm.readByte(frame))
			if err := vm.invoke(method, argCount); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpSuperInvoke:
			method := vm.readConstant(frame).AsObj().(*value.ObjString)
			argCount := int(vm.readByte(frame))
			superclass := vm.pop().AsObj().(*value.ObjClass)
			if err := vm.invokeFromClass(superclass, method, argCount); err != nil {
				return err
			}
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpClosure:
			fn := vm.readConstant(frame).AsObj().(*value.ObjFunction)
			closure := vm.NewClosure(fn)
			vm.push(value.FromObj(closure))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := vm.readByte(frame)
				index := int(vm.readByte(frame))
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.SlotsBase + index)
				} else {
					closure.Upvalues[i] = frame.Closure.Upvalues[index]
				}
			}

		case bytecode.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case bytecode.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.SlotsBase)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return nil
			}
			vm.stackTop = frame.SlotsBase
			vm.push(result)
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpClass:
			name := vm.readConstant(frame).AsObj().(*value.ObjString)
			vm.push(value.FromObj(vm.newClass(name)))
		case bytecode.OpInherit:
			superVal := vm.peek(1)
			superclass, ok := superVal.AsObj().(*value.ObjClass)
			if !superVal.IsObj() || !ok {
				return vm.runtimeError("Superclass must be a class.")
			}
			subclass := vm.peek(0).AsObj().(*value.ObjClass)
			subclass.Methods.AddAll(superclass.Methods)
			vm.pop() // subclass; superclass stays for the "super" local
		case bytecode.OpMethod:
			name := vm.readConstant(frame).AsObj().(*value.ObjString)
			vm.defineMethod(name)

		default:
			return vm.runtimeError("Unknown opcode %d.", byte(instruction))
		}
	}
}

func (vm *VM) readByte(frame *CallFrame) byte {
	b := frame.Closure.Function.Chunk.Code[frame.IP]
	frame.IP++
	return b
}

func (vm *VM) readShort(frame *CallFrame) int {
	hi := vm.readByte(frame)
	lo := vm.readByte(frame)
	return int(hi)<<8 | int(lo)
}

func (vm *VM) readConstant(frame *CallFrame) value.Value {
	idx := vm.readByte(frame)
	return frame.Closure.Function.Chunk.Constants[idx]
}

func (vm *VM) binaryNumber(op func(a, b float64) float64) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	vm.push(value.Number(op(a, b)))
	return nil
}

func (vm *VM) binaryCompare(op func(a, b float64) bool) error {
	if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	b := vm.pop().AsNumber()
	a := vm.pop().AsNumber()
	vm.push(value.Bool(op(a, b)))
	return nil
}

// add implements OP_ADD's dual contract: number+number or string+string,
// matching clox's concatenate()/ADD case (no implicit coercion either way).
func (vm *VM) add() error {
	b := vm.peek(0)
	a := vm.peek(1)
	switch {
	case a.IsNumber() && b.IsNumber():
		vm.pop()
		vm.pop()
		vm.push(value.Number(a.AsNumber() + b.AsNumber()))
	case a.IsObjType(value.ObjStringKind) && b.IsObjType(value.ObjStringKind):
		vm.pop()
		vm.pop()
		as := a.AsObj().(*value.ObjString)
		bs := b.AsObj().(*value.ObjString)
		vm.push(value.FromObj(vm.InternString(as.Chars + bs.Chars)))
	default:
		return vm.runtimeError("Operands must be two numbers or two strings.")
	}
	return nil
}

// runtimeError builds a RuntimeError with a back-trace innermost-frame
// first and resets the VM's stack/frames so the host (REPL or script
// runner) can keep going after a script error.
func (vm *VM) runtimeError(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	trace := make([]StackFrame, 0, vm.frameCount)
	for i := vm.frameCount - 1; i >= 0; i-- {
		f := vm.frames[i]
		line := 0
		if f.IP-1 >= 0 && f.IP-1 < len(f.Closure.Function.Chunk.Lines) {
			line = f.Closure.Function.Chunk.Lines[f.IP-1]
		}
		name := "script"
		if f.Closure.Function.Name != nil {
			name = f.Closure.Function.Name.Chars
		}
		trace = append(trace, StackFrame{FuncName: name, Line: line})
	}
	vm.resetStack()
	return newRuntimeError(msg, trace)
}

// attachTrace handles the stack-overflow path, where push panics before a
// frame-aware runtimeError call is possible; it still needs a trace.
func (vm *VM) attachTrace(rte *RuntimeError) error {
	if rte.Trace != nil {
		vm.resetStack()
		return rte
	}
	trace := make([]StackFrame, 0, vm.frameCount)
	for i := vm.frameCount - 1; i >= 0; i-- {
		f := vm.frames[i]
		line := 0
		if f.IP-1 >= 0 && f.IP-1 < len(f.Closure.Function.Chunk.Lines) {
			line = f.Closure.Function.Chunk.Lines[f.IP-1]
		}
		name := "script"
		if f.Closure.Function.Name != nil {
			name = f.Closure.Function.Name.Chars
		}
		trace = append(trace, StackFrame{FuncName: name, Line: line})
	}
	rte.Trace = trace
	vm.resetStack()
	return rte
}

func (vm *VM) call(closure *value.ObjClosure, argCount int) error {
	if argCount != closure.Function.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", closure.Function.Arity, argCount)
	}
	if vm.frameCount >= framesMax {
		panic(&RuntimeError{Message: "Stack overflow."})
	}
	frame := &vm.frames[vm.frameCount]
	vm.frameCount++
	frame.Closure = closure
	frame.IP = 0
	frame.SlotsBase = vm.stackTop - argCount - 1
	return nil
}

// callValue dispatches OP_CALL's callee: a closure call, a native
// invocation, a class (construction, with an implicit init() call), or a
// bound method (rebinding the receiver into slot 0 first).
func (vm *VM) callValue(callee value.Value, argCount int) error {
	if callee.IsObj() {
		switch callee := callee.AsObj().(type) {
		case *value.ObjClosure:
			return vm.call(callee, argCount)
		case *value.ObjNative:
			if argCount != callee.Arity {
				return vm.runtimeError("Expected %d arguments but got %d.", callee.Arity, argCount)
			}
			args := vm.stack[vm.stackTop-argCount : vm.stackTop]
			result, err := callee.Wrapped(args)
			if err != nil {
				return vm.runtimeError("%s", err.Error())
			}
			vm.stackTop -= argCount + 1
			vm.push(result)
			return nil
		case *value.ObjClass:
			inst := vm.newInstance(callee)
			vm.stack[vm.stackTop-argCount-1] = value.FromObj(inst)
			if init, ok := callee.Methods.Get(vm.initString); ok {
				return vm.call(init.AsObj().(*value.ObjClosure), argCount)
			}
			if argCount != 0 {
				return vm.runtimeError("Expected 0 arguments but got %d.", argCount)
			}
			return nil
		case *value.ObjBoundMethod:
			vm.stack[vm.stackTop-argCount-1] = callee.Receiver
			return vm.call(callee.Method, argCount)
		}
	}
	return vm.runtimeError("Can only call functions and classes.")
}

// invoke fuses OP_GET_PROPERTY+OP_CALL for the common "obj.method(args)"
// shape: it looks the field up first (a field can hold a callable) before
// falling back to a method lookup, matching clox's invoke().
func (vm *VM) invoke(name *value.ObjString, argCount int) error {
	receiver := vm.peek(argCount)
	inst, ok := receiver.AsObj().(*value.ObjInstance)
	if !receiver.IsObj() || !ok {
		return vm.runtimeError("Only instances have methods.")
	}
	if v, ok := inst.Fields.Get(name); ok {
		vm.stack[vm.stackTop-argCount-1] = v
		return vm.callValue(v, argCount)
	}
	return vm.invokeFromClass(inst.Class, name, argCount)
}

func (vm *VM) invokeFromClass(class *value.ObjClass, name *value.ObjString, argCount int) error {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Chars)
	}
	return vm.call(method.AsObj().(*value.ObjClosure), argCount)
}

func (vm *VM) bindMethod(class *value.ObjClass, name *value.ObjString) (value.Value, error) {
	method, ok := class.Methods.Get(name)
	if !ok {
		return value.Nil, fmt.Errorf("Undefined property '%s'.", name.Chars)
	}
	bound := vm.newBoundMethod(vm.peek(0), method.AsObj().(*value.ObjClosure))
	return value.FromObj(bound), nil
}

func (vm *VM) defineMethod(name *value.ObjString) {
	method := vm.peek(0)
	class := vm.peek(1).AsObj().(*value.ObjClass)
	class.Methods.Set(name, method)
	vm.pop()
}

// captureUpvalue returns an existing open up-value aliasing slot, or
// creates and links a new one into the VM's open-up-value list (kept
// sorted by descending Slot so the find-or-create scan below is linear).
func (vm *VM) captureUpvalue(slot int) *value.ObjUpvalue {
	var prev *value.ObjUpvalue
	uv := vm.openUpvalues
	for uv != nil && uv.Slot > slot {
		prev = uv
		uv = uv.NextOpen
	}
	if uv != nil && uv.Slot == slot {
		return uv
	}
	created := vm.newUpvalue(slot)
	created.NextOpen = uv
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.NextOpen = created
	}
	return created
}

// closeUpvalues closes every open up-value aliasing a slot at or above
// last, copying its value onto the heap before the owning frame's stack
// slots are discarded (by OP_RETURN) or reused (by OP_CLOSE_UPVALUE,
// emitted when a block-scoped local that was captured goes out of scope).
func (vm *VM) closeUpvalues(last int) {
	for vm.openUpvalues != nil && vm.openUpvalues.Slot >= last {
		uv := vm.openUpvalues
		uv.Close()
		vm.openUpvalues = uv.NextOpen
	}
}
