package test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestStressGCRunsRealScripts compiles and executes actual programs with
// StressGC on, forcing a full mark-sweep cycle on every allocation made by
// either the compiler or the VM. This is the gap a string-only stress test
// can't cover: the implicit top-level script the VM always runs has a nil
// ObjFunction.Name (only fun/method declarations name one), so the very
// first collection after any script begins executing blackens a frame
// whose function has no name — and a closure's Upvalues slice is nil-filled
// until OP_CLOSURE's handler populates it one slot at a time, so capturing
// a second upvalue can trigger a collection while the first is still the
// only one set.
func TestStressGCRunsRealScripts(t *testing.T) {
	cases := []struct {
		name   string
		source string
		want   string
	}{
		{
			name:   "bare top-level script with no functions at all",
			source: `print 1 + 2 * 3;`,
			want:   "7\n",
		},
		{
			name: "closure capturing and mutating a shared local",
			source: `fun counter() { var n = 0; fun inc() { n = n + 1; return n; } return inc; }
			          var c = counter(); print c(); print c(); print c();`,
			want: "1\n2\n3\n",
		},
		{
			name: "closure over two locals, forcing a multi-slot OP_CLOSURE fill",
			source: `fun make(a, b) { fun inner() { return a + b; } return inner; }
			          print make(1, 2)(); print make(3, 4)();`,
			want: "3\n7\n",
		},
		{
			name: "class with inheritance and method calls",
			source: `class A { init(v) { this.v = v; } show() { print this.v; } }
			          class B < A {}
			          for (var i = 0; i < 5; i = i + 1) B(i).show();`,
			want: "0\n1\n2\n3\n4\n",
		},
		{
			name: "many allocations across loop iterations",
			source: `fun f(n) { var s = ""; for (var i = 0; i < n; i = i + 1) { s = s + "x"; } return s; }
			          print f(50);`,
			want: strings.Repeat("x", 50) + "\n",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := runStress(t, tc.source)
			require.NoError(t, err)
			assert.Equal(t, tc.want, out)
		})
	}
}
