package obj

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/skdltmxn/cvdb-go/internal/stream"
	"github.com/skdltmxn/cvdb-go/internal/strtab"
	"github.com/skdltmxn/cvdb-go/internal/vm"
)

// Block kinds stored in the arena
const (
	KindSymBlock  vm.Kind = 1
	KindTypeBlock vm.Kind = 2
	KindRoot      vm.Kind = 3
)

// BlockGrowth is the number of entries a full block grows by.
const BlockGrowth = 16

// ErrBadBlock is returned when a saved block cannot be decoded.
var ErrBadBlock = errors.New("obj: malformed block")

// TypeBlock holds composite type descriptors.
type TypeBlock struct {
	Types []TypeDesc
}

// NewTypeBlock returns an empty descriptor block with room for
// BlockGrowth entries.
func NewTypeBlock() *TypeBlock {
	return &TypeBlock{Types: make([]TypeDesc, 0, BlockGrowth)}
}

// Alloc appends d and returns the word referring to it.
func (b *TypeBlock) Alloc(d TypeDesc) TypeWord {
	if len(b.Types) == cap(b.Types) {
		b.Types = slices.Grow(b.Types, BlockGrowth)
	}
	b.Types = append(b.Types, d)
	return DescWord(len(b.Types))
}

// Get returns the descriptor w refers to.
func (b *TypeBlock) Get(w TypeWord) (TypeDesc, bool) {
	if w.IsSpecial() {
		return TypeDesc{}, false
	}
	i := w.Index()
	if i < 1 || i > len(b.Types) {
		return TypeDesc{}, false
	}
	return b.Types[i-1], true
}

// Named returns a DescNamed word for name, reusing an existing descriptor
// in b so that repeated requests yield the same word.
func (b *TypeBlock) Named(name strtab.ID) TypeWord {
	for i, d := range b.Types {
		if d.Kind == DescNamed && d.Name == name {
			return DescWord(i + 1)
		}
	}
	return b.Alloc(TypeDesc{Kind: DescNamed, Name: name})
}

// Intern returns the word of a descriptor equal to d, allocating one only
// if b has none.
func (b *TypeBlock) Intern(d TypeDesc) TypeWord {
	if i := slices.Index(b.Types, d); i >= 0 {
		return DescWord(i + 1)
	}
	return b.Alloc(d)
}

// Shrink drops unused capacity and reports whether anything was freed.
func (b *TypeBlock) Shrink() bool {
	if cap(b.Types) == len(b.Types) {
		return false
	}
	b.Types = slices.Clip(b.Types)
	return true
}

// MarshalBinary encodes the descriptors.
func (b *TypeBlock) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 4+12*len(b.Types))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(b.Types)))
	for _, d := range b.Types {
		var flags uint8
		if d.More {
			flags = 1
		}
		out = append(out, uint8(d.Kind), uint8(d.Flavor), flags)
		out = binary.LittleEndian.AppendUint16(out, uint16(d.Base))
		out = binary.LittleEndian.AppendUint16(out, d.Len)
		out = binary.LittleEndian.AppendUint32(out, uint32(d.Name))
	}
	return out, nil
}

// UnmarshalTypeBlock decodes a block written by TypeBlock.MarshalBinary.
func UnmarshalTypeBlock(data []byte) (*TypeBlock, error) {
	r := stream.NewReader(data)
	n, err := r.ReadU32()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadBlock, err)
	}
	if uint64(n)*11 > uint64(r.Remaining()) {
		return nil, fmt.Errorf("%w: %d descriptors in %d bytes", ErrBadBlock, n, r.Remaining())
	}
	b := &TypeBlock{Types: make([]TypeDesc, n)}
	for i := range b.Types {
		raw, err := r.ReadBytesRef(11)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadBlock, err)
		}
		b.Types[i] = TypeDesc{
			Kind:   DescKind(raw[0]),
			Flavor: PtrFlavor(raw[1]),
			More:   raw[2]&1 != 0,
			Base:   TypeWord(binary.LittleEndian.Uint16(raw[3:])),
			Len:    binary.LittleEndian.Uint16(raw[5:]),
			Name:   strtab.ID(binary.LittleEndian.Uint32(raw[7:])),
		}
	}
	return b, nil
}

// SymBlock holds symbols. Types names the TypeBlock their non-special
// type words index into; Next chains blocks of a segment.
type SymBlock struct {
	Next  vm.Handle
	Types vm.Handle
	Syms  []Sym
}

// NewSymBlock returns an empty symbol block bound to types.
func NewSymBlock(types vm.Handle) *SymBlock {
	return &SymBlock{Types: types, Syms: make([]Sym, 0, BlockGrowth)}
}

// Alloc appends s and returns its slot.
func (b *SymBlock) Alloc(s Sym) SymOff {
	if len(b.Syms) == cap(b.Syms) {
		b.Syms = slices.Grow(b.Syms, BlockGrowth)
	}
	b.Syms = append(b.Syms, s)
	return SymOff(len(b.Syms))
}

// At returns the symbol in slot off. It panics if off is out of range.
func (b *SymBlock) At(off SymOff) *Sym {
	return &b.Syms[off-1]
}

// Valid reports whether off names a symbol in b.
func (b *SymBlock) Valid(off SymOff) bool {
	return off >= 1 && int(off) <= len(b.Syms)
}

// Shrink drops unused capacity and reports whether anything was freed.
func (b *SymBlock) Shrink() bool {
	if cap(b.Syms) == len(b.Syms) {
		return false
	}
	b.Syms = slices.Clip(b.Syms)
	return true
}

const symRecordSize = 41

// MarshalBinary encodes the block header and symbols.
func (b *SymBlock) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 12+symRecordSize*len(b.Syms))
	out = binary.LittleEndian.AppendUint32(out, uint32(b.Next))
	out = binary.LittleEndian.AppendUint32(out, uint32(b.Types))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(b.Syms)))
	for i := range b.Syms {
		s := &b.Syms[i]
		var near uint8
		if s.Near {
			near = 1
		}
		out = append(out, uint8(s.Kind), uint8(s.Flags), uint8(s.ProcFlags), near, uint8(s.Reg))
		out = binary.LittleEndian.AppendUint32(out, uint32(s.Name))
		out = binary.LittleEndian.AppendUint16(out, uint16(s.Type))
		out = binary.LittleEndian.AppendUint32(out, s.Address)
		out = binary.LittleEndian.AppendUint32(out, uint32(s.Offset))
		out = binary.LittleEndian.AppendUint16(out, s.Length)
		out = binary.LittleEndian.AppendUint32(out, s.Size)
		out = binary.LittleEndian.AppendUint32(out, uint32(s.Value))
		out = binary.LittleEndian.AppendUint16(out, uint16(s.Next))
		out = binary.LittleEndian.AppendUint16(out, uint16(s.First))
		out = binary.LittleEndian.AppendUint16(out, uint16(s.Last))
		out = binary.LittleEndian.AppendUint32(out, uint32(s.Target.Block))
		out = binary.LittleEndian.AppendUint16(out, uint16(s.Target.Off))
	}
	return out, nil
}

// UnmarshalSymBlock decodes a block written by SymBlock.MarshalBinary.
func UnmarshalSymBlock(data []byte) (*SymBlock, error) {
	r := stream.NewReader(data)
	var hdr [3]uint32
	for i := range hdr {
		v, err := r.ReadU32()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadBlock, err)
		}
		hdr[i] = v
	}
	n := hdr[2]
	if uint64(n)*symRecordSize != uint64(r.Remaining()) {
		return nil, fmt.Errorf("%w: %d symbols in %d bytes", ErrBadBlock, n, r.Remaining())
	}
	b := &SymBlock{Next: vm.Handle(hdr[0]), Types: vm.Handle(hdr[1]), Syms: make([]Sym, n)}
	for i := range b.Syms {
		raw, _ := r.ReadBytesRef(symRecordSize)
		le := binary.LittleEndian
		b.Syms[i] = Sym{
			Kind:      SymKind(raw[0]),
			Flags:     SymFlags(raw[1]),
			ProcFlags: ProcFlags(raw[2]),
			Near:      raw[3] != 0,
			Reg:       Register(raw[4]),
			Name:      strtab.ID(le.Uint32(raw[5:])),
			Type:      TypeWord(le.Uint16(raw[9:])),
			Address:   le.Uint32(raw[11:]),
			Offset:    int32(le.Uint32(raw[15:])),
			Length:    le.Uint16(raw[19:]),
			Size:      le.Uint32(raw[21:]),
			Value:     int32(le.Uint32(raw[25:])),
			Next:      SymOff(le.Uint16(raw[29:])),
			First:     SymOff(le.Uint16(raw[31:])),
			Last:      SymOff(le.Uint16(raw[33:])),
			Target: Ref{
				Block: vm.Handle(le.Uint32(raw[35:])),
				Off:   SymOff(le.Uint16(raw[39:])),
			},
		}
	}
	return b, nil
}
