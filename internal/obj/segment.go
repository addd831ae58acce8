package obj

import (
	"github.com/skdltmxn/cvdb-go/internal/strtab"
	"github.com/skdltmxn/cvdb-go/internal/symtab"
	"github.com/skdltmxn/cvdb-go/internal/vm"
)

// Combine describes how contributions to a segment from different object
// files are merged.
type Combine uint8

// Combine types
const (
	CombinePrivate Combine = iota
	CombinePublic
	CombineCommon
	CombineStack
	CombineAbsolute
	CombineLMem
	CombineGlobal
)

var combineNames = [...]string{
	CombinePrivate:  "private",
	CombinePublic:   "public",
	CombineCommon:   "common",
	CombineStack:    "stack",
	CombineAbsolute: "absolute",
	CombineLMem:     "lmem",
	CombineGlobal:   "global",
}

func (c Combine) String() string {
	if int(c) < len(combineNames) {
		return combineNames[c]
	}
	return "unknown"
}

// Segment is one output segment and the symbols defined in it.
type Segment struct {
	Name    strtab.ID
	Class   strtab.ID
	Combine Combine

	// Group is the group the segment belongs to; GroupOrder is its
	// 1-based position in that group.
	Group      strtab.ID
	GroupOrder int

	// Size is the total size accumulated over all files.
	Size uint32

	// NextOff is the offset at which the current file's contribution
	// starts: the relocation factor for its symbols.
	NextOff uint32

	// AddrH and AddrT are the head and tail of the chain of blocks
	// holding address-bearing symbols.
	AddrH, AddrT vm.Handle

	// TypeH and TypeT are the head and tail of the chain of blocks
	// holding type symbols.
	TypeH, TypeT vm.Handle

	Syms *symtab.Table
}

// NewSegment returns an empty segment.
func NewSegment(name, class strtab.ID, combine Combine) *Segment {
	return &Segment{Name: name, Class: class, Combine: combine, Syms: symtab.New()}
}

// Enter binds name to ref in the segment's dictionary.
func (s *Segment) Enter(name strtab.ID, ref Ref) {
	s.Syms.Enter(name, symtab.Ref{Block: ref.Block, Off: uint16(ref.Off)})
}

// Find returns the symbol bound to name in the segment's dictionary.
func (s *Segment) Find(name strtab.ID) (Ref, bool) {
	r, ok := s.Syms.Find(name)
	if !ok {
		return Ref{}, false
	}
	return Ref{Block: r.Block, Off: SymOff(r.Off)}, true
}

// Contribute records a contribution of size bytes from the current file,
// aligned to align bytes, and sets NextOff to where it starts.
func (s *Segment) Contribute(size, align uint32) {
	switch s.Combine {
	case CombineCommon:
		s.NextOff = 0
		if size > s.Size {
			s.Size = size
		}
		return
	}
	start := s.Size
	if align > 1 {
		start = (start + align - 1) &^ (align - 1)
	}
	s.NextOff = start
	s.Size = start + size
}
