package value

import "golang.org/x/exp/constraints"

// Table is an open-addressed hash table with linear probing and
// tombstones, used both for smog's string intern table and for every
// global-variable and instance-field map in the running program.
//
// Slot states:
//   - empty:     key == nil, value is Nil
//   - tombstone: key == nil, value is Bool(true)
//   - live:      key != nil
//
// Lookup returns the first matching key; failing that, the first
// tombstone seen (so a subsequent insert reuses it); failing that, the
// terminating empty slot. Load factor is kept under 0.75 by doubling
// capacity (minimum 8) and rebuilding.
type Table struct {
	count   int // live entries plus tombstones; grow resets it to the live count
	entries []entry
}

type entry struct {
	key   *ObjString
	value Value
}

const tableMaxLoad = 0.75
const tableMinCapacity = 8

// NewTable returns an empty table; its backing array is allocated lazily
// on first Set.
func NewTable() *Table {
	return &Table{}
}

// Count reports the number of occupied slots: live entries plus the
// tombstones Delete and RemoveWhite leave behind, until the next grow
// discards them.
func (t *Table) Count() int { return t.count }

func isEmpty(e entry) bool     { return e.key == nil && e.value.IsNil() }
func isTombstone(e entry) bool { return e.key == nil && !e.value.IsNil() }

// findEntry locates key's slot in entries (capacity = len(entries)),
// returning the first matching live slot, else the first tombstone seen,
// else the terminating empty slot. entries must be non-empty.
func findEntry(entries []entry, key *ObjString) *entry {
	capacity := len(entries)
	index := int(key.Hash) % capacity
	var tombstone *entry
	for {
		e := &entries[index]
		switch {
		case isEmpty(*e):
			if tombstone != nil {
				return tombstone
			}
			return e
		case isTombstone(*e):
			if tombstone == nil {
				tombstone = e
			}
		case e.key == key:
			return e
		}
		index = (index + 1) % capacity
	}
}

func (t *Table) grow(capacity int) {
	newEntries := make([]entry, capacity)
	t.count = 0
	for _, e := range t.entries {
		if e.key == nil {
			continue
		}
		dest := findEntry(newEntries, e.key)
		dest.key = e.key
		dest.value = e.value
		t.count++
	}
	t.entries = newEntries
}

// Get looks up key, returning its value and true, or (Nil, false) if
// absent (empty or tombstone).
func (t *Table) Get(key *ObjString) (Value, bool) {
	if t.count == 0 && t.entries == nil {
		return Nil, false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return Nil, false
	}
	return e.value, true
}

// Set inserts or overwrites key's value, growing the table first if the
// load factor would exceed 0.75. Returns true iff this created a brand
// new key (as opposed to overwriting an existing one).
func (t *Table) Set(key *ObjString, value Value) bool {
	if float64(t.count+1) > float64(capOf(t))*tableMaxLoad {
		capacity := growCapacity(capOf(t))
		t.grow(capacity)
	}
	e := findEntry(t.entries, key)
	isNew := e.key == nil
	if isNew && isEmpty(*e) {
		t.count++
	}
	e.key = key
	e.value = value
	return isNew
}

func capOf(t *Table) int {
	if t.entries == nil {
		return 0
	}
	return len(t.entries)
}

func growCapacity(old int) int {
	return GrowCapacity(old, tableMinCapacity)
}

// GrowCapacity doubles old, floored at min — the same growth rule the
// table's capacity and the collector's byte threshold both follow (clox's
// GC_HEAP_GROW_FACTOR of 2), shared as one generic helper so the two
// independent doubling sites can't drift apart.
func GrowCapacity[T constraints.Integer](old, min T) T {
	if old < min {
		return min
	}
	return old * 2
}

// Delete converts key's slot to a tombstone. It deliberately does not
// decrement count, so tombstones keep weighing on the load factor —
// otherwise repeated insert/delete cycles could fill every slot with
// tombstones and leave findEntry no empty slot to stop at. The grow that
// counting them eventually forces re-inserts live keys only, discarding
// every tombstone.
func (t *Table) Delete(key *ObjString) bool {
	if capOf(t) == 0 {
		return false
	}
	e := findEntry(t.entries, key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = Bool(true) // tombstone marker
	return true
}

// AddAll copies every live entry of from into t, used by the INHERIT
// opcode to flatten a superclass's method table into its subclass.
func (t *Table) AddAll(from *Table) {
	for _, e := range from.entries {
		if e.key != nil {
			t.Set(e.key, e.value)
		}
	}
}

// FindString performs the byte-level lookup string interning needs:
// unlike Get, it matches by content (length, hash, then bytes) rather
// than by an already-interned key, since the whole point is to discover
// whether such a key already exists.
func (t *Table) FindString(chars string, hash uint32) *ObjString {
	if capOf(t) == 0 {
		return nil
	}
	capacity := len(t.entries)
	index := int(hash) % capacity
	for {
		e := &t.entries[index]
		switch {
		case isEmpty(*e):
			return nil
		case e.key != nil && e.key.Hash == hash && e.key.Chars == chars:
			return e.key
		}
		index = (index + 1) % capacity
	}
}

// Mark marks every live key and value in t as a GC root contribution;
// markValue is the collector's markValue callback (accepted as a
// parameter, not imported, so this package stays independent of pkg/vm).
func (t *Table) Mark(markValue func(Value)) {
	for _, e := range t.entries {
		if e.key == nil {
			continue
		}
		markValue(FromObj(e.key))
		markValue(e.value)
	}
}

// RemoveWhite deletes every entry whose key is not marked. Run between
// the mark and sweep phases on the VM's string intern table so that
// FindString never hands back a String the sweep is about to collect.
func (t *Table) RemoveWhite() {
	for i := range t.entries {
		e := &t.entries[i]
		if e.key != nil && !e.key.IsMarked() {
			e.key = nil
			e.value = Bool(true)
		}
	}
}
