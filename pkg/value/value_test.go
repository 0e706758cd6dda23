package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEqual(t *testing.T) {
	t.Run("reflexive", func(t *testing.T) {
		v := Number(3.14)
		assert.True(t, Equal(v, v))
	})

	t.Run("nil equals nil", func(t *testing.T) {
		assert.True(t, Equal(Nil, Nil))
	})

	t.Run("bools compare by value", func(t *testing.T) {
		assert.True(t, Equal(Bool(true), Bool(true)))
		assert.False(t, Equal(Bool(true), Bool(false)))
	})

	t.Run("numbers and strings never equal across kinds", func(t *testing.T) {
		s := &ObjString{Chars: "0", Hash: HashString("0")}
		assert.False(t, Equal(Number(0), FromObj(s)))
		assert.False(t, Equal(FromObj(s), Number(0)))
	})

	t.Run("strings compare by identity, not content", func(t *testing.T) {
		a := &ObjString{Chars: "hi", Hash: HashString("hi")}
		b := &ObjString{Chars: "hi", Hash: HashString("hi")}
		assert.False(t, Equal(FromObj(a), FromObj(b)), "uninterned copies must not compare equal")
		assert.True(t, Equal(FromObj(a), FromObj(a)))
	})

	t.Run("symmetric and transitive for non-object values", func(t *testing.T) {
		a, b, c := Number(1), Number(1), Number(1)
		assert.Equal(t, Equal(a, b), Equal(b, a))
		if Equal(a, b) && Equal(b, c) {
			assert.True(t, Equal(a, c))
		}
	})
}

func TestIsFalsey(t *testing.T) {
	assert.True(t, Nil.IsFalsey())
	assert.True(t, Bool(false).IsFalsey())
	assert.False(t, Bool(true).IsFalsey())
	assert.False(t, Number(0).IsFalsey(), "0 is truthy")
	assert.False(t, FromObj(&ObjString{}).IsFalsey(), "empty string is truthy")
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "nil", Nil.String())
	assert.Equal(t, "true", Bool(true).String())
	assert.Equal(t, "false", Bool(false).String())
	assert.Equal(t, "3", Number(3).String())
	assert.Equal(t, "3.5", Number(3.5).String())

	fn := NewFunction()
	assert.Equal(t, "<script>", FromObj(fn).String())
	fn.Name = &ObjString{Chars: "add"}
	assert.Equal(t, "<fn add>", FromObj(fn).String())
}

func TestIsObjType(t *testing.T) {
	s := FromObj(&ObjString{Chars: "x"})
	assert.True(t, s.IsObjType(ObjStringKind))
	assert.False(t, s.IsObjType(ObjFunctionKind))
	assert.False(t, Number(1).IsObjType(ObjStringKind))
}
