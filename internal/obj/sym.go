package obj

import (
	"github.com/skdltmxn/cvdb-go/internal/strtab"
	"github.com/skdltmxn/cvdb-go/internal/vm"
)

// SymKind identifies what a Sym describes.
type SymKind uint8

// Symbol kinds
const (
	SymProc SymKind = iota + 1
	SymBlockStart
	SymBlockEnd
	SymLocVar
	SymVar
	SymLabel
	SymLocLabel
	SymRegVar
	SymTypedef
	SymStruct
	SymUnion
	SymEType
	SymField
	SymEnum
	SymReturnType
	SymLocalStatic
)

var symKindNames = map[SymKind]string{
	SymProc:        "proc",
	SymBlockStart:  "blockstart",
	SymBlockEnd:    "blockend",
	SymLocVar:      "locvar",
	SymVar:         "var",
	SymLabel:       "label",
	SymLocLabel:    "loclabel",
	SymRegVar:      "regvar",
	SymTypedef:     "typedef",
	SymStruct:      "struct",
	SymUnion:       "union",
	SymEType:       "etype",
	SymField:       "field",
	SymEnum:        "enum",
	SymReturnType:  "returntype",
	SymLocalStatic: "localstatic",
}

func (k SymKind) String() string {
	if s, ok := symKindNames[k]; ok {
		return s
	}
	return "unknown"
}

// IsAggregate reports whether symbols of kind k head a member ring.
func (k SymKind) IsAggregate() bool {
	return k == SymStruct || k == SymUnion || k == SymEType
}

// IsScope reports whether symbols of kind k open a lexical scope.
func (k SymKind) IsScope() bool {
	return k == SymProc || k == SymBlockStart
}

// HasAddress reports whether symbols of kind k carry a segment address.
func (k SymKind) HasAddress() bool {
	switch k {
	case SymProc, SymBlockStart, SymBlockEnd, SymVar, SymLabel, SymLocLabel:
		return true
	}
	return false
}

// SymFlags are per-symbol attribute bits.
type SymFlags uint8

// Symbol flags
const (
	FlagGlobal SymFlags = 1 << iota
	FlagNameless
)

// ProcFlags are procedure attribute bits.
type ProcFlags uint8

// Procedure flags
const (
	ProcNear ProcFlags = 1 << iota
	ProcPascal
)

// Register names a machine register holding a register variable.
type Register uint8

// Registers
const (
	RegAL Register = iota
	RegCL
	RegDL
	RegBL
	RegAH
	RegCH
	RegDH
	RegBH
	RegAX
	RegCX
	RegDX
	RegBX
	RegSP
	RegBP
	RegSI
	RegDI
	RegES
	RegCS
	RegSS
	RegDS
	RegFS
	RegGS
)

var regNames = [...]string{
	"al", "cl", "dl", "bl", "ah", "ch", "dh", "bh",
	"ax", "cx", "dx", "bx", "sp", "bp", "si", "di",
	"es", "cs", "ss", "ds", "fs", "gs",
}

func (r Register) String() string {
	if int(r) < len(regNames) {
		return regNames[r]
	}
	return "?"
}

// SymOff is the 1-based slot of a symbol within its SymBlock. Zero means
// no symbol.
type SymOff uint16

// Sym is one output symbol. Which fields are meaningful depends on Kind.
type Sym struct {
	Kind  SymKind
	Flags SymFlags
	Name  strtab.ID

	// Type is the type of variables, fields, typedefs and return types.
	Type TypeWord

	// Address is the relocated offset of address-bearing symbols.
	Address uint32

	// Offset is the frame offset of a local variable or the byte offset
	// of a field.
	Offset int32

	// Length is the byte length of a block.
	Length uint16

	// Size is the byte size of an aggregate.
	Size uint32

	// Value is the value of an enum member.
	Value int32

	// Next links locals of a scope and members of an aggregate. The last
	// entry links back to the enclosing scope or aggregate.
	Next SymOff

	// First and Last bound a scope's locals or an aggregate's members.
	// A scope with no locals has First pointing at itself.
	First SymOff
	Last  SymOff

	ProcFlags ProcFlags
	Near      bool
	Reg       Register

	// Target is the real variable a LocalStatic stands for.
	Target Ref
}

// Ref locates a symbol in the arena.
type Ref struct {
	Block vm.Handle
	Off   SymOff
}

// IsGlobal reports whether the symbol is visible outside its file.
func (s *Sym) IsGlobal() bool {
	return s.Flags&FlagGlobal != 0
}

// IsNameless reports whether the symbol's name was synthesized.
func (s *Sym) IsNameless() bool {
	return s.Flags&FlagNameless != 0
}
