package value

// ObjKind tags which heap-object variant an Obj is.
type ObjKind byte

const (
	ObjStringKind ObjKind = iota
	ObjFunctionKind
	ObjNativeKind
	ObjUpvalueKind
	ObjClosureKind
	ObjClassKind
	ObjInstanceKind
	ObjBoundMethodKind
)

// Obj is the interface every heap-object variant implements. It carries
// the header fields §3 requires every heap cell begin with: a kind tag,
// a mark bit used only during a GC cycle, and a Next link threading every
// live object into one intrusive "all objects" list.
//
// Go has no struct inheritance, so the "common header, variant payload"
// layout the spec describes is modeled as embedding: every concrete type
// below embeds header and gets IsMarked/SetMarked/Next/SetNext for free,
// while Kind() is implemented per type to report its own tag. Dispatch on
// an Obj is a type switch (see value.go's objString and pkg/vm's
// blackenObject) rather than virtual methods, matching the "model as a
// tagged variant" note in the spec's design notes.
type Obj interface {
	Kind() ObjKind
	IsMarked() bool
	SetMarked(bool)
	Next() Obj
	SetNext(Obj)
}

// header is embedded by every concrete Obj implementation.
type header struct {
	marked bool
	next   Obj
}

func (h *header) IsMarked() bool    { return h.marked }
func (h *header) SetMarked(m bool)  { h.marked = m }
func (h *header) Next() Obj         { return h.next }
func (h *header) SetNext(n Obj)     { h.next = n }

// ObjString is an immutable, interned byte sequence with a precomputed
// FNV-1a hash. Two ObjStrings holding equal bytes are always the same
// pointer once created through an interning entry point (see pkg/vm's
// InternString); this is what lets Value equality on strings degrade to
// pointer comparison.
type ObjString struct {
	header
	Chars string
	Hash  uint32
}

func (s *ObjString) Kind() ObjKind { return ObjStringKind }

// HashString computes the FNV-1a hash of s, used both to intern s and to
// probe the intern table for an existing copy.
func HashString(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// ObjFunction is a compiled function body: its arity, how many up-values
// it closes over, the bytecode chunk the compiler emitted for it, and an
// optional name (nil for the implicit top-level script function).
type ObjFunction struct {
	header
	Arity        int
	UpvalueCount int
	Chunk        *Chunk
	Name         *ObjString
}

func (f *ObjFunction) Kind() ObjKind { return ObjFunctionKind }

// NewFunction allocates a bare ObjFunction with an empty chunk. Callers
// (pkg/vm's VM.NewFunction) are responsible for linking it onto the
// object list.
func NewFunction() *ObjFunction {
	return &ObjFunction{Chunk: NewChunk()}
}

// NativeFn is the signature every host-provided primitive implements:
// given the argument slice (receiver excluded), return a Value or an
// error that becomes a runtime error in the calling frame.
type NativeFn func(args []Value) (Value, error)

// ObjNative wraps a host function pointer so it can live in the globals
// table and be called like any other callable.
type ObjNative struct {
	header
	Name    string
	Arity   int
	Wrapped NativeFn
}

func (n *ObjNative) Kind() ObjKind { return ObjNativeKind }

// ObjUpvalue is either "open" — Location points into the VM's live value
// stack — or "closed", meaning the outer frame has returned and Closed
// holds the captured value while Location points at Closed itself.
type ObjUpvalue struct {
	header
	Location *Value
	Closed   Value
	// Slot is the stack index Location aliases while open. Go pointers
	// can't be ordered with < / >, so the VM's open-up-value list — which
	// must stay sorted by descending stack address to find-or-create
	// correctly — sorts on this plain int instead of on Location itself.
	// Meaningless once the up-value is closed.
	Slot int
	// NextOpen chains this up-value into the VM's open-up-value list,
	// kept sorted by descending stack address. It is distinct from the
	// header's Next, which threads the all-objects GC list instead.
	NextOpen *ObjUpvalue
}

func (u *ObjUpvalue) Kind() ObjKind { return ObjUpvalueKind }

// Close copies the current *Location into Closed and repoints Location
// at it, detaching the up-value from the stack slot it used to alias.
func (u *ObjUpvalue) Close() {
	u.Closed = *u.Location
	u.Location = &u.Closed
}

// ObjClosure pairs a Function with the up-value bindings captured at the
// point its CLOSURE instruction ran.
type ObjClosure struct {
	header
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

func (c *ObjClosure) Kind() ObjKind { return ObjClosureKind }

// NewClosure allocates a closure over fn with as many (initially nil)
// up-value slots as fn.UpvalueCount declares.
func NewClosure(fn *ObjFunction) *ObjClosure {
	return &ObjClosure{Function: fn, Upvalues: make([]*ObjUpvalue, fn.UpvalueCount)}
}

// ObjClass is a class's runtime identity: its name and its method table
// (name -> Closure). Inheritance is a flat copy at INHERIT time (clox's
// approach, carried over per SPEC_FULL.md) — there is no super-chain walk
// at call time, just one table lookup.
type ObjClass struct {
	header
	Name    *ObjString
	Methods *Table
}

func (c *ObjClass) Kind() ObjKind { return ObjClassKind }

// NewClass allocates an empty class named name.
func NewClass(name *ObjString) *ObjClass {
	return &ObjClass{Name: name, Methods: NewTable()}
}

// ObjInstance is a live object of some ObjClass, with its own field
// table (name -> Value) separate from its class's (shared) method table.
type ObjInstance struct {
	header
	Class  *ObjClass
	Fields *Table
}

func (i *ObjInstance) Kind() ObjKind { return ObjInstanceKind }

// NewInstance allocates a fresh instance of class with an empty field table.
func NewInstance(class *ObjClass) *ObjInstance {
	return &ObjInstance{Class: class, Fields: NewTable()}
}

// ObjBoundMethod pairs an instance receiver with one of its class's
// closures, produced by property access on a method name (GET_PROPERTY)
// and by GET_SUPER. Calling a class runs its init() closure directly,
// without creating one.
type ObjBoundMethod struct {
	header
	Receiver Value
	Method   *ObjClosure
}

func (b *ObjBoundMethod) Kind() ObjKind { return ObjBoundMethodKind }
