// Package codeview decodes CodeView type and symbol trees carried in the
// $$TYPES and $$SYMBOLS segments of OMF object files and enters the
// result into an obj.Database.
package codeview

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/cvdb-go/internal/stream"
)

// Names of the debug segments
const (
	TypesSegment   = "$$TYPES"
	SymbolsSegment = "$$SYMBOLS"
)

// Type leaf classes
const (
	LeafBitfield   = 0x5C
	LeafTypedef    = 0x5D
	LeafHugePtr    = 0x5E
	LeafStringType = 0x60
	LeafNear       = 0x63
	LeafFar        = 0x64
	LeafBased      = 0x6F
	LeafConstant   = 0x71
	LeafLabel      = 0x72
	LeafNearPtr    = 0x73
	LeafFarPtr     = 0x74
	LeafProcedure  = 0x75
	LeafParameter  = 0x76
	LeafArray      = 0x78
	LeafStructure  = 0x79
	LeafPointer    = 0x7A
	LeafScalar     = 0x7B
	LeafUnsigned   = 0x7C
	LeafSigned     = 0x7D
	LeafList       = 0x7F
	LeafNil        = 0x80
	LeafVoid       = 0x81
	LeafString     = 0x82
	LeafIndex      = 0x83
	LeafWord       = 0x85
	LeafDword      = 0x86
	LeafQword      = 0x87
	LeafSByte      = 0x88
	LeafSWord      = 0x89
	LeafSDword     = 0x8A
	LeafSQword     = 0x8B
	LeafSkip       = 0x90
)

// Pascal calling convention markers accepted in procedure trees
const (
	callPascalNear = 0x73
	callPascalFar  = 0x74
)

// Symbol record kinds
const (
	SymBlockStart   = 0x00
	SymProcStart    = 0x01
	SymEnd          = 0x02
	SymLocalVar     = 0x04
	SymVariable     = 0x05
	SymCodeLabel    = 0x0B
	SymWithStart    = 0x0C
	SymRegVar       = 0x0D
	SymConst        = 0x0E
	SymFortranEntry = 0x0F
	SymSkip         = 0x10
	SymChangeSeg    = 0x11
	SymTypedef      = 0x12
)

// FirstUserType is the smallest type index that names a record of the
// $$TYPES segment. Smaller indices are predefined.
const FirstUserType = 512

// Predefined type index fields
const (
	predefSpecial   = 0x80
	predefModeShift = 5
	predefModeMask  = 0x03
	predefTypeShift = 2
	predefTypeMask  = 0x07
	predefSizeMask  = 0x03
)

// Predefined pointer modes
const (
	modeDirect = iota
	modeNear
	modeFar
	modeHuge
)

// Predefined base types
const (
	predefSigned = iota
	predefUnsigned
	predefReal
	predefComplex
	predefBoolean
	predefASCII
	predefCurrency
)

// Predefined indices with fixed meaning
const (
	predefNoType      = 0
	predefBitfieldTBD = 1
)

// ErrNotString is returned when a name position does not hold a STRING leaf.
var ErrNotString = errors.New("codeview: expected string leaf")

// ReadInteger reads an integer leaf. WORD and DWORD are unsigned, SBYTE,
// SWORD and SDWORD are sign-extended, and any other byte stands for its
// own value. A 64-bit leaf is an invariant violation.
func ReadInteger(r *stream.Reader) (int64, error) {
	b, err := r.ReadU8()
	if err != nil {
		return 0, err
	}
	switch b {
	case LeafWord:
		v, err := r.ReadU16()
		return int64(v), err
	case LeafDword:
		v, err := r.ReadU32()
		return int64(v), err
	case LeafSDword:
		v, err := r.ReadI32()
		return int64(v), err
	case LeafSByte:
		v, err := r.ReadI8()
		return int64(v), err
	case LeafSWord:
		v, err := r.ReadI16()
		return int64(v), err
	case LeafQword, LeafSQword:
		panic(invariantf("64-bit integer leaf at offset %d", r.Offset()-1))
	}
	return int64(b), nil
}

// ReadString reads a STRING leaf. An empty string has length zero.
func ReadString(r *stream.Reader) (string, error) {
	b, err := r.ReadU8()
	if err != nil {
		return "", err
	}
	if b != LeafString {
		return "", fmt.Errorf("%w: found 0x%02X", ErrNotString, b)
	}
	return r.ReadPString()
}

// PeekIs reports whether the next byte of r is b.
func PeekIs(r *stream.Reader, b uint8) bool {
	v, err := r.PeekU8()
	return err == nil && v == b
}
