// Package obj is the output object model: packed type words, composite type
// descriptors, symbols, the blocks that hold them, and per-segment chains.
package obj

import "github.com/skdltmxn/cvdb-go/internal/strtab"

// TypeWord is a packed type reference. Bit 0 set means a special (inline)
// type; otherwise bits 1-15 hold a 1-based index into the TypeBlock
// associated with the referring symbol's block.
//
// Special words carry the kind in bits 1-4. For sized kinds bits 5-15
// hold the size in bytes; for pointers they hold the flavor. Bitfields use
// bit 5 for signedness, bits 6-10 for the bit offset and bits 11-15 for
// the width.
type TypeWord uint16

// SpecialKind is the kind of a special type word.
type SpecialKind uint8

// Special kinds
const (
	KindVoid SpecialKind = iota
	KindInt
	KindSigned
	KindChar
	KindFloat
	KindComplex
	KindCurrency
	KindNear
	KindFar
	KindPtr
	KindBitfield
)

var specialKindNames = [...]string{
	KindVoid:     "void",
	KindInt:      "unsigned",
	KindSigned:   "signed",
	KindChar:     "char",
	KindFloat:    "float",
	KindComplex:  "complex",
	KindCurrency: "currency",
	KindNear:     "near",
	KindFar:      "far",
	KindPtr:      "ptr",
	KindBitfield: "bitfield",
}

func (k SpecialKind) String() string {
	if int(k) < len(specialKindNames) {
		return specialKindNames[k]
	}
	return "unknown"
}

// PtrFlavor distinguishes near and far pointers.
type PtrFlavor uint8

// Pointer flavors
const (
	PtrNear PtrFlavor = iota
	PtrFar
)

const (
	specialBit  = 0x0001
	kindShift   = 1
	kindMask    = 0x000F
	dataShift   = 5
	bfSigned    = 0x0020
	bfOffShift  = 6
	bfWidShift  = 11
	bfFieldMask = 0x1F
)

// MaxBitfieldWidth is the widest bitfield a type word can describe.
const MaxBitfieldWidth = bfFieldMask

// Special returns the special type word of kind k with data d (a size in
// bytes, or a pointer flavor).
func Special(k SpecialKind, d uint16) TypeWord {
	return TypeWord(specialBit | uint16(k)<<kindShift | d<<dataShift)
}

// Bitfield returns the special word for a bitfield.
func Bitfield(signed bool, offset, width uint8) TypeWord {
	w := TypeWord(specialBit|uint16(KindBitfield)<<kindShift) |
		TypeWord(offset&bfFieldMask)<<bfOffShift |
		TypeWord(width&bfFieldMask)<<bfWidShift
	if signed {
		w |= bfSigned
	}
	return w
}

// Frequently used special words
var (
	Void    = Special(KindVoid, 0)
	Near    = Special(KindNear, 0)
	Far     = Special(KindFar, 0)
	NearPtr = Special(KindPtr, uint16(PtrNear))
	FarPtr  = Special(KindPtr, uint16(PtrFar))
	Char    = Special(KindChar, 1)

	// UnresolvedBitfield is the bitfield placeholder whose width must
	// come from elsewhere.
	UnresolvedBitfield = Bitfield(false, 0, 0)
)

// IsSpecial reports whether t is an inline special word.
func (t TypeWord) IsSpecial() bool {
	return t&specialBit != 0
}

// Kind returns the special kind of t.
func (t TypeWord) Kind() SpecialKind {
	return SpecialKind((t >> kindShift) & kindMask)
}

// Size returns the size field of a sized special word.
func (t TypeWord) Size() uint16 {
	return uint16(t >> dataShift)
}

// Flavor returns the pointer flavor of a KindPtr word.
func (t TypeWord) Flavor() PtrFlavor {
	return PtrFlavor(t >> dataShift)
}

// IsBitfield reports whether t is a special bitfield word.
func (t TypeWord) IsBitfield() bool {
	return t.IsSpecial() && t.Kind() == KindBitfield
}

// BitOffset returns the bit offset of a bitfield word.
func (t TypeWord) BitOffset() uint8 {
	return uint8(t>>bfOffShift) & bfFieldMask
}

// BitWidth returns the width of a bitfield word.
func (t TypeWord) BitWidth() uint8 {
	return uint8(t>>bfWidShift) & bfFieldMask
}

// BitSigned reports whether a bitfield word is signed.
func (t TypeWord) BitSigned() bool {
	return t&bfSigned != 0
}

// Index returns the 1-based descriptor index of a non-special word.
func (t TypeWord) Index() int {
	return int(t >> 1)
}

// DescWord returns the word referring to descriptor index i (1-based).
func DescWord(i int) TypeWord {
	return TypeWord(i << 1)
}

// DescKind is the kind of a composite descriptor.
type DescKind uint8

// Descriptor kinds
const (
	DescPointer DescKind = iota + 1
	DescArray
	DescNamed
)

// MaxArrayLen is the largest element count one array descriptor holds.
// Longer arrays chain descriptors through Base.
const MaxArrayLen = 4095

// TypeDesc is a composite type descriptor.
type TypeDesc struct {
	Kind DescKind

	// Flavor is the pointer flavor of a DescPointer.
	Flavor PtrFlavor

	// Base is the pointed-to type, the array element type, or for an
	// array with More set, the next descriptor of the chain.
	Base TypeWord

	// Len is the element count of a DescArray.
	Len uint16

	// More marks an array descriptor whose Base continues the chain.
	More bool

	// Name is the aggregate or typedef a DescNamed refers to.
	Name strtab.ID
}
