package cvdb

import "github.com/skdltmxn/cvdb-go/internal/obj"

// SymbolKind identifies what a Symbol describes.
type SymbolKind = obj.SymKind

// Symbol kinds
const (
	KindProc        = obj.SymProc
	KindBlockStart  = obj.SymBlockStart
	KindBlockEnd    = obj.SymBlockEnd
	KindLocalVar    = obj.SymLocVar
	KindVar         = obj.SymVar
	KindLabel       = obj.SymLabel
	KindLocalLabel  = obj.SymLocLabel
	KindRegVar      = obj.SymRegVar
	KindTypedef     = obj.SymTypedef
	KindStruct      = obj.SymStruct
	KindUnion       = obj.SymUnion
	KindEnumType    = obj.SymEType
	KindField       = obj.SymField
	KindEnum        = obj.SymEnum
	KindReturnType  = obj.SymReturnType
	KindLocalStatic = obj.SymLocalStatic
)

// Symbol is a decoded copy of one database symbol.
type Symbol struct {
	Name    string
	Kind    SymbolKind
	Segment string

	// Address is the segment offset of procedures, blocks, variables and
	// labels. For a local static it is the address of the variable it
	// stands for.
	Address uint32

	// Offset is the frame offset of a local variable or the byte offset
	// of a field.
	Offset int32

	// Length is the byte length of a block.
	Length uint16

	// Size is the byte size of an aggregate, or of a variable's type.
	Size uint32

	// Value is the value of an enum member.
	Value int32

	// Type is the rendered type of variables, fields, typedefs and return
	// types.
	Type string

	Global   bool
	Nameless bool
	Near     bool
	Pascal   bool

	// Register holds a register variable.
	Register string

	seg *obj.Segment
	ref obj.Ref
}

// HasChildren reports whether the symbol heads a list of locals or
// members.
func (s *Symbol) HasChildren() bool {
	return s.Kind.IsScope() || s.Kind.IsAggregate()
}

func typed(k obj.SymKind) bool {
	switch k {
	case obj.SymLocVar, obj.SymVar, obj.SymRegVar, obj.SymTypedef, obj.SymField, obj.SymReturnType:
		return true
	}
	return false
}
