// Package value implements smog's runtime value representation: the
// tagged Value union, the heap-object model every collected object
// shares a header with, and the open-addressed hash table used both for
// string interning and for global/instance-field storage.
//
// Value is deliberately a small tagged struct rather than a raw 64-bit
// NaN-boxed word. NaN-boxing packs an object pointer into the mantissa
// bits of a quiet NaN so that type tests and equality reduce to bit
// inspection; that trick depends on the host having raw, non-moving
// pointers it can stuff into 48 bits and on the implementation owning
// the memory it frees. Go gives neither: pointers can move under the
// runtime's own GC, and a pointer smuggled into a float64 via unsafe
// tricks would be invisible to that collector. The heap this project's
// mark-sweep manages (see pkg/vm) is a logical structure layered on top
// of Go's already-collected heap. A tagged struct preserves every
// semantic guarantee asked of Value (cheap type tests, pointer-identity
// equality for objects, a reflexive/symmetric/transitive valuesEqual)
// without pretending to a bit layout Go can't safely give us. The other
// Go VM in this retrieval pack (nooga/paserati) makes the same call.
package value

import "fmt"

// Type identifies which variant a Value holds.
type Type byte

const (
	TypeNil Type = iota
	TypeBool
	TypeNumber
	TypeObj
)

// Value is smog's uniform runtime value: nil, a bool, a float64 number, or
// a reference to one of the heap-object variants in object.go.
type Value struct {
	typ    Type
	boolean bool
	number float64
	obj    Obj
}

// Nil is the single nil value.
var Nil = Value{typ: TypeNil}

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{typ: TypeBool, boolean: b} }

// Number wraps a float64.
func Number(n float64) Value { return Value{typ: TypeNumber, number: n} }

// FromObj wraps a heap-object reference.
func FromObj(o Obj) Value { return Value{typ: TypeObj, obj: o} }

// IsNil, IsBool, IsNumber, IsObj test the Value's tag.
func (v Value) IsNil() bool    { return v.typ == TypeNil }
func (v Value) IsBool() bool   { return v.typ == TypeBool }
func (v Value) IsNumber() bool { return v.typ == TypeNumber }
func (v Value) IsObj() bool    { return v.typ == TypeObj }

// AsBool, AsNumber, AsObj extract the payload. Callers must have checked
// the corresponding Is* predicate first; these never themselves panic on
// a type mismatch so that a defensive caller can still recover a zero
// value, but the VM only ever calls them after a type check emitted as
// part of an opcode handler.
func (v Value) AsBool() bool     { return v.boolean }
func (v Value) AsNumber() float64 { return v.number }
func (v Value) AsObj() Obj       { return v.obj }

// Type reports the Value's tag, mostly for debug printing.
func (v Value) Type() Type { return v.typ }

// IsObjType reports whether v holds an object of the given kind.
func (v Value) IsObjType(k ObjKind) bool {
	return v.typ == TypeObj && v.obj != nil && v.obj.Kind() == k
}

// IsFalsey implements smog's truthiness rule: nil and false are falsey,
// everything else (including 0 and "") is truthy.
func (v Value) IsFalsey() bool {
	return v.IsNil() || (v.IsBool() && !v.AsBool())
}

// Equal implements valuesEqual: same kind; nil=nil; bool/number compared
// by value; object references compared by pointer identity (safe because
// every String is interned and all other heap objects are unique
// allocations). Numbers and strings are never equal to each other
// regardless of their bit patterns — an explicit decision for the "open
// question" the spec raises about cross-type equality.
func Equal(a, b Value) bool {
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case TypeNil:
		return true
	case TypeBool:
		return a.boolean == b.boolean
	case TypeNumber:
		return a.number == b.number
	case TypeObj:
		if as, ok := a.obj.(*ObjString); ok {
			if bs, ok := b.obj.(*ObjString); ok {
				return as == bs // interned: identity implies equality
			}
			return false
		}
		return a.obj == b.obj
	default:
		return false
	}
}

// String renders v the way `print` and the REPL do.
func (v Value) String() string {
	switch v.typ {
	case TypeNil:
		return "nil"
	case TypeBool:
		if v.boolean {
			return "true"
		}
		return "false"
	case TypeNumber:
		return formatNumber(v.number)
	case TypeObj:
		return objString(v.obj)
	default:
		return "<unknown>"
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}

func objString(o Obj) string {
	switch obj := o.(type) {
	case *ObjString:
		return obj.Chars
	case *ObjFunction:
		if obj.Name == nil {
			return "<script>"
		}
		return fmt.Sprintf("<fn %s>", obj.Name.Chars)
	case *ObjNative:
		return "<native fn>"
	case *ObjClosure:
		return objString(obj.Function)
	case *ObjUpvalue:
		return "<upvalue>"
	case *ObjClass:
		return obj.Name.Chars
	case *ObjInstance:
		return fmt.Sprintf("%s instance", obj.Class.Name.Chars)
	case *ObjBoundMethod:
		return objString(obj.Method)
	default:
		return "<obj>"
	}
}
