package vm

import (
	"io"
	"os"

	"github.com/kristofer/smog/pkg/value"
)

const (
	framesMax     = 64
	stackMax      = framesMax * 256
	initialNextGC = 1024 * 1024
)

// Compiling is implemented by pkg/compiler's Compiler so the collector can
// walk the chain of functions currently under construction as roots,
// without pkg/vm importing pkg/compiler (that import runs the other way).
// A compiler registers itself with SetCompiling before compiling and
// clears it (passing nil) when done; see pkg/compiler's CompileTo for the
// wiring.
type Compiling interface {
	// MarkRoots is called by the collector for every Value the compiler
	// chain is holding live (the ObjFunctions under construction and
	// their constant pools) that isn't otherwise reachable from the VM.
	MarkRoots(mark func(value.Value))
}

// CallFrame is one active function invocation: the closure it's running,
// its instruction pointer into that closure's chunk, and the base stack
// slot its locals start at.
type CallFrame struct {
	Closure   *value.ObjClosure
	IP        int
	SlotsBase int
}

// VM is smog's bytecode interpreter: a value stack, a call-frame stack,
// global and string-intern tables, the intrusive all-objects list the
// collector sweeps, and the GC's own bookkeeping. There is no package
// level singleton — every entry point takes an explicit *VM — so tests
// and a would-be multi-VM host never fight over global state.
type VM struct {
	stack    [stackMax]value.Value
	stackTop int

	frames     [framesMax]CallFrame
	frameCount int

	globals *value.Table
	strings *value.Table

	objects      value.Obj
	openUpvalues *value.ObjUpvalue

	initString *value.ObjString

	bytesAllocated int
	nextGC         int
	grayStack      []value.Obj

	compiling Compiling

	// Stdout is where OP_PRINT writes; tests substitute a buffer.
	Stdout io.Writer
	// StressGC forces a collection on every allocation, for GC tests.
	StressGC bool
	// LogGC writes collector activity to os.Stderr when true.
	LogGC bool
}

// New returns a VM ready to run a compiled script: empty stack, empty
// globals, and the "clock" native already registered.
func New() *VM {
	vm := &VM{
		globals: value.NewTable(),
		strings: value.NewTable(),
		nextGC:  initialNextGC,
		Stdout:  os.Stdout,
	}
	vm.initString = vm.InternString("init")
	vm.defineNative("clock", 0, nativeClock)
	return vm
}

// SetCompiling registers (or, passed nil, clears) the active compiler
// chain as a GC root source. pkg/compiler's CompileTo calls this around
// compilation so
// that an allocation made by the compiler itself (e.g. interning an
// identifier) can trigger a collection without losing the function being
// built.
func (vm *VM) SetCompiling(c Compiling) { vm.compiling = c }

// InternString returns the canonical *ObjString for s, allocating and
// interning a new one only if no equal string already exists.
func (vm *VM) InternString(s string) *value.ObjString {
	hash := value.HashString(s)
	if existing := vm.strings.FindString(s, hash); existing != nil {
		return existing
	}
	str := &value.ObjString{Chars: s, Hash: hash}
	vm.trackObject(str, len(s))
	// The intern table must not itself be the only root keeping str
	// alive during the Set call below's possible grow — push/pop around
	// it the way defineNative does for natives.
	vm.push(value.FromObj(str))
	vm.strings.Set(str, value.Bool(true))
	vm.pop()
	return str
}

// NewFunction allocates a GC-tracked, empty ObjFunction. The compiler
// calls this once per function declaration (including the implicit
// top-level script) so every function it builds is already reachable
// through the all-objects list the moment it exists.
func (vm *VM) NewFunction() *value.ObjFunction {
	fn := value.NewFunction()
	vm.trackObject(fn, 64)
	return fn
}

func (vm *VM) newNative(name string, arity int, fn value.NativeFn) *value.ObjNative {
	n := &value.ObjNative{Name: name, Arity: arity, Wrapped: fn}
	vm.trackObject(n, 32)
	return n
}

// NewClosure allocates a closure over fn, used by the OP_CLOSURE handler
// and by Run to wrap the top-level script function.
func (vm *VM) NewClosure(fn *value.ObjFunction) *value.ObjClosure {
	c := value.NewClosure(fn)
	vm.trackObject(c, 16+8*len(c.Upvalues))
	return c
}

func (vm *VM) newClass(name *value.ObjString) *value.ObjClass {
	c := value.NewClass(name)
	vm.trackObject(c, 32)
	return c
}

func (vm *VM) newInstance(class *value.ObjClass) *value.ObjInstance {
	i := value.NewInstance(class)
	vm.trackObject(i, 32)
	return i
}

func (vm *VM) newBoundMethod(receiver value.Value, method *value.ObjClosure) *value.ObjBoundMethod {
	b := &value.ObjBoundMethod{Receiver: receiver, Method: method}
	vm.trackObject(b, 32)
	return b
}

func (vm *VM) newUpvalue(slot int) *value.ObjUpvalue {
	u := &value.ObjUpvalue{Location: &vm.stack[slot], Slot: slot}
	vm.trackObject(u, 24)
	return u
}

// trackObject mirrors clox's reallocate(): the byte count is charged and
// a collection considered *before* the object is linked onto the
// all-objects list. That ordering matters — if collectGarbage ran after
// linking, the freshly allocated object would already be sweepable by a
// cycle its own allocation triggered, before the caller has had a chance
// to root it (typically by pushing it on the stack).
func (vm *VM) trackObject(o value.Obj, size int) {
	vm.bytesAllocated += size
	if vm.StressGC || vm.bytesAllocated > vm.nextGC {
		vm.collectGarbage()
	}
	o.SetNext(vm.objects)
	vm.objects = o
}

// collectGarbage runs one full mark-sweep cycle: mark every root and
// transitively everything reachable from it, drop unmarked interned
// strings, then sweep every unmarked object off the all-objects list.
func (vm *VM) collectGarbage() {
	vm.markRoots()
	vm.traceReferences()
	vm.strings.RemoveWhite()
	vm.sweep()
	vm.nextGC = value.GrowCapacity(vm.bytesAllocated, initialNextGC)
}

func (vm *VM) markRoots() {
	for i := 0; i < vm.stackTop; i++ {
		vm.markValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		vm.markObject(vm.frames[i].Closure)
	}
	for uv := vm.openUpvalues; uv != nil; uv = uv.NextOpen {
		vm.markObject(uv)
	}
	vm.globals.Mark(vm.markValue)
	vm.markObject(vm.initString)
	if vm.compiling != nil {
		vm.compiling.MarkRoots(vm.markValue)
	}
}

func (vm *VM) markValue(v value.Value) {
	if v.IsObj() {
		vm.markObject(v.AsObj())
	}
}

func (vm *VM) markObject(o value.Obj) {
	if o == nil || o.IsMarked() {
		return
	}
	if vm.LogGC {
		logGC("mark", o)
	}
	o.SetMarked(true)
	vm.grayStack = append(vm.grayStack, o)
}

// traceReferences drains the gray worklist, blackening each object by
// marking everything it points to, until nothing gray remains.
func (vm *VM) traceReferences() {
	for len(vm.grayStack) > 0 {
		n := len(vm.grayStack) - 1
		o := vm.grayStack[n]
		vm.grayStack = vm.grayStack[:n]
		vm.blackenObject(o)
	}
}

func (vm *VM) blackenObject(o value.Obj) {
	if vm.LogGC {
		logGC("blacken", o)
	}
	switch obj := o.(type) {
	case *value.ObjString, *value.ObjNative:
		// no outgoing references
	case *value.ObjUpvalue:
		vm.markValue(obj.Closed)
	case *value.ObjFunction:
		// Name is nil for the implicit top-level script function (only
		// fun/method declarations name one, in pkg/compiler's function()) —
		// markObject's nil check can't see through a nil *ObjString boxed
		// into the Obj interface, so it must be skipped explicitly here.
		if obj.Name != nil {
			vm.markObject(obj.Name)
		}
		for _, c := range obj.Chunk.Constants {
			vm.markValue(c)
		}
	case *value.ObjClosure:
		vm.markObject(obj.Function)
		// Upvalues start as a nil-filled slice (sized by UpvalueCount) and
		// are populated one at a time by OP_CLOSURE's handler in vm.go,
		// which can itself trigger a collection (capturing an upvalue
		// allocates) before every slot is filled — skip the not-yet-set
		// ones rather than handing markObject a typed-nil *ObjUpvalue.
		for _, uv := range obj.Upvalues {
			if uv != nil {
				vm.markObject(uv)
			}
		}
	case *value.ObjClass:
		vm.markObject(obj.Name)
		obj.Methods.Mark(vm.markValue)
	case *value.ObjInstance:
		vm.markObject(obj.Class)
		obj.Fields.Mark(vm.markValue)
	case *value.ObjBoundMethod:
		vm.markValue(obj.Receiver)
		vm.markObject(obj.Method)
	}
}

// sweep walks the all-objects list, freeing (by unlinking — Go's own
// collector reclaims the memory once nothing references the node) every
// object that didn't get marked this cycle, and clearing the mark bit on
// every survivor for the next cycle.
func (vm *VM) sweep() {
	var prev value.Obj
	obj := vm.objects
	for obj != nil {
		if obj.IsMarked() {
			obj.SetMarked(false)
			prev = obj
			obj = obj.Next()
			continue
		}
		obj = obj.Next()
		if prev != nil {
			prev.SetNext(obj)
		} else {
			vm.objects = obj
		}
	}
}

func logGC(phase string, o value.Obj) {
	io.WriteString(os.Stderr, "gc "+phase+" "+value.FromObj(o).String()+"\n")
}
