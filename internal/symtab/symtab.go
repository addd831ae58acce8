// Package symtab implements the name-keyed symbol dictionaries attached to
// segments. Entries keep insertion order so listings and saved databases
// are deterministic.
package symtab

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"

	"github.com/elliotchance/orderedmap"

	"github.com/skdltmxn/cvdb-go/internal/stream"
	"github.com/skdltmxn/cvdb-go/internal/strtab"
	"github.com/skdltmxn/cvdb-go/internal/vm"
)

// ErrBadTable is returned when a marshaled dictionary cannot be decoded.
var ErrBadTable = errors.New("symtab: malformed symbol table")

// Ref locates a symbol: the block holding it and its 1-based slot.
type Ref struct {
	Block vm.Handle
	Off   uint16
}

// Table maps names to symbol locations.
type Table struct {
	m *orderedmap.OrderedMap
}

// New returns an empty table.
func New() *Table {
	return &Table{m: orderedmap.NewOrderedMap()}
}

// Enter binds name to ref, replacing any earlier binding. It reports
// whether the name was new.
func (t *Table) Enter(name strtab.ID, ref Ref) bool {
	return t.m.Set(name, ref)
}

// Find returns the binding for name.
func (t *Table) Find(name strtab.ID) (Ref, bool) {
	v, ok := t.m.Get(name)
	if !ok {
		return Ref{}, false
	}
	return v.(Ref), true
}

// Len returns the number of bound names.
func (t *Table) Len() int {
	return t.m.Len()
}

// All iterates over bindings in insertion order.
func (t *Table) All() iter.Seq2[strtab.ID, Ref] {
	return func(yield func(strtab.ID, Ref) bool) {
		for el := t.m.Front(); el != nil; el = el.Next() {
			if !yield(el.Key.(strtab.ID), el.Value.(Ref)) {
				return
			}
		}
	}
}

// MarshalBinary encodes the bindings in insertion order.
func (t *Table) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 4+10*t.Len())
	out = binary.LittleEndian.AppendUint32(out, uint32(t.Len()))
	for name, ref := range t.All() {
		out = binary.LittleEndian.AppendUint32(out, uint32(name))
		out = binary.LittleEndian.AppendUint32(out, uint32(ref.Block))
		out = binary.LittleEndian.AppendUint16(out, ref.Off)
	}
	return out, nil
}

// Read decodes a table written by MarshalBinary from r.
func Read(r *stream.Reader) (*Table, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadTable, err)
	}
	t := New()
	for i := uint32(0); i < n; i++ {
		name, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadTable, err)
		}
		block, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadTable, err)
		}
		off, err := r.ReadU16()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadTable, err)
		}
		t.Enter(strtab.ID(name), Ref{Block: vm.Handle(block), Off: off})
	}
	return t, nil
}
