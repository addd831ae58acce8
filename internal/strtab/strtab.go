// Package strtab interns the names shared by every symbol and type in a
// database.
package strtab

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/skdltmxn/cvdb-go/internal/stream"
)

// ID identifies an interned string. The zero ID is the empty name.
type ID uint32

// NullID is the ID of the empty name.
const NullID ID = 0

// ErrBadTable is returned when a marshaled table cannot be decoded.
var ErrBadTable = errors.New("strtab: malformed string table")

// Table maps strings to stable IDs. It is not safe for concurrent use.
type Table struct {
	strs  []string
	index map[string]ID
}

// New returns an empty table.
func New() *Table {
	return &Table{index: make(map[string]ID)}
}

// Enter interns s and returns its ID. The empty string is NullID.
func (t *Table) Enter(s string) ID {
	if s == "" {
		return NullID
	}
	if id, ok := t.index[s]; ok {
		return id
	}
	t.strs = append(t.strs, s)
	id := ID(len(t.strs))
	t.index[s] = id
	return id
}

// Lookup returns the ID of s without interning it.
func (t *Table) Lookup(s string) (ID, bool) {
	if s == "" {
		return NullID, true
	}
	id, ok := t.index[s]
	return id, ok
}

// String returns the string for id, or "" for NullID and unknown IDs.
func (t *Table) String(id ID) string {
	if id == NullID || int(id) > len(t.strs) {
		return ""
	}
	return t.strs[id-1]
}

// Len returns the number of interned strings.
func (t *Table) Len() int {
	return len(t.strs)
}

// MarshalBinary encodes the table as a count followed by length-prefixed
// strings in ID order.
func (t *Table) MarshalBinary() ([]byte, error) {
	size := 4
	for _, s := range t.strs {
		size += 2 + len(s)
	}
	out := make([]byte, 0, size)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(t.strs)))
	for _, s := range t.strs {
		if len(s) > 0xFFFF {
			return nil, fmt.Errorf("strtab: string of %d bytes too long", len(s))
		}
		out = binary.LittleEndian.AppendUint16(out, uint16(len(s)))
		out = append(out, s...)
	}
	return out, nil
}

// Unmarshal decodes a table produced by MarshalBinary.
func Unmarshal(data []byte) (*Table, error) {
	r := stream.NewReader(data)
	n, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadTable, err)
	}
	t := New()
	for i := uint32(0); i < n; i++ {
		l, err := r.ReadU16()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadTable, err)
		}
		b, err := r.ReadBytesRef(int(l))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadTable, err)
		}
		s := string(b)
		if _, dup := t.index[s]; dup || s == "" {
			return nil, fmt.Errorf("%w: bad entry %d", ErrBadTable, i+1)
		}
		t.strs = append(t.strs, s)
		t.index[s] = ID(len(t.strs))
	}
	return t, nil
}
