package codeview

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/cvdb-go/internal/obj"
	"github.com/skdltmxn/cvdb-go/internal/stream"
	"github.com/skdltmxn/cvdb-go/internal/strtab"
	"github.com/skdltmxn/cvdb-go/internal/vm"
)

// maxTypeDepth bounds the nesting of type trees, so a chain of index
// references that loops without passing through an aggregate terminates.
const maxTypeDepth = 64

// noDest asks decodeType to decode without materializing anything.
const noDest vm.Handle = 0

func skipToEnd(r *stream.Reader) {
	_ = r.SetOffset(r.Len())
}

// decodeType decodes the type tree at r's offset into dest. The tree must
// end within r. Failures are reported and yield void.
func (d *Decoder) decodeType(r *stream.Reader, dest vm.Handle) obj.TypeWord {
	ctx := d.ctx
	start := r.Offset()
	if ctx.depth >= maxTypeDepth {
		d.errorf(start, "type nesting too deep")
		skipToEnd(r)
		return obj.Void
	}
	ctx.depth++
	defer func() { ctx.depth-- }()
	inField := ctx.inField
	ctx.inField = false

	if name, ok := ctx.memo[start]; ok {
		skipToEnd(r)
		if dest == noDest {
			return obj.Void
		}
		return d.namedType(dest, name)
	}

	key := wordKey{off: start, dest: dest}
	if dec, ok := ctx.words[key]; ok {
		_ = r.SetOffset(dec.end)
		return dec.w
	}

	w, err := d.decodeNode(r, dest)
	if err == nil && w == obj.UnresolvedBitfield {
		if inField {
			return w
		}
		err = errors.New("bitfield of unspecified width outside a structure field list")
	}
	if err != nil {
		d.errorf(start, "%v", err)
		skipToEnd(r)
		w = obj.Void
	}
	ctx.words[key] = decoded{w: w, end: r.Offset()}
	return w
}

// decodeField decodes the type of one structure field, where the
// bitfield placeholder is legal.
func (d *Decoder) decodeField(r *stream.Reader, dest vm.Handle) obj.TypeWord {
	d.ctx.inField = true
	defer func() { d.ctx.inField = false }()
	return d.decodeType(r, dest)
}

func (d *Decoder) decodeNode(r *stream.Reader, dest vm.Handle) (obj.TypeWord, error) {
	start := r.Offset()
	class, err := r.ReadU8()
	if err != nil {
		return obj.Void, err
	}
	switch class {
	case LeafVoid:
		return obj.Void, nil

	case LeafIndex:
		idx, err := r.ReadU16()
		if err != nil {
			return obj.Void, err
		}
		return d.fetchType(idx, dest, start), nil

	case LeafBitfield:
		return decodeBitfield(r)

	case LeafList, LeafSkip:
		skipToEnd(r)
		return obj.Void, nil

	case LeafTypedef:
		return d.decodeTypedef(r, start, dest)

	case LeafParameter, LeafConstant:
		skipToEnd(r)
		return obj.Void, errors.New("parameter and constant type records are not supported")

	case LeafLabel:
		defer skipToEnd(r)
		if !PeekIs(r, LeafNil) {
			return obj.Void, errors.New("LABEL definition missing NIL leaf")
		}
		_, _ = r.ReadU8()
		call, err := r.ReadU8()
		if err != nil {
			return obj.Void, err
		}
		switch call {
		case LeafNear:
			return obj.Near, nil
		case LeafFar:
			return obj.Far, nil
		}
		return obj.Void, fmt.Errorf("unknown type 0x%02X in LABEL definition", call)

	case LeafProcedure:
		defer skipToEnd(r)
		if !PeekIs(r, LeafNil) {
			return obj.Void, errors.New("PROCEDURE definition missing NIL leaf")
		}
		_, _ = r.ReadU8()
		d.decodeType(r, noDest)
		call, err := r.ReadU8()
		if err != nil {
			return obj.Void, err
		}
		switch call {
		case LeafNear, callPascalNear:
			return obj.Near, nil
		case LeafFar, callPascalFar:
			return obj.Far, nil
		}
		return obj.Void, fmt.Errorf("unknown call type 0x%02X in PROCEDURE definition", call)

	case LeafArray, LeafStringType:
		return d.decodeArray(r, class, dest)

	case LeafStructure:
		return d.decodeStructure(r, start, dest)

	case LeafPointer:
		return d.decodePointer(r, dest)

	case LeafBased:
		base := d.decodeType(r, dest)
		if base == obj.Void || dest == noDest {
			return obj.NearPtr, nil
		}
		return d.allocType(dest, obj.TypeDesc{Kind: obj.DescPointer, Flavor: obj.PtrNear, Base: base}), nil

	case LeafScalar:
		return d.decodeScalar(r, start, dest)
	}
	skipToEnd(r)
	return obj.Void, fmt.Errorf("unsupported type record class 0x%02X", class)
}

func decodeBitfield(r *stream.Reader) (obj.TypeWord, error) {
	width, err := ReadInteger(r)
	if err != nil {
		return obj.Void, err
	}
	base, err := r.ReadU8()
	if err != nil {
		return obj.Void, err
	}
	if base != LeafSigned && base != LeafUnsigned {
		skipToEnd(r)
		return obj.Void, errors.New("bitfield's base type must be signed or unsigned int")
	}
	offset, err := ReadInteger(r)
	if err != nil {
		return obj.Void, err
	}
	if width < 0 || width > obj.MaxBitfieldWidth || offset < 0 || offset > obj.MaxBitfieldWidth {
		return obj.Void, fmt.Errorf("bitfield width %d at bit %d out of range", width, offset)
	}
	return obj.Bitfield(base == LeafSigned, uint8(offset), uint8(width)), nil
}

func (d *Decoder) decodePointer(r *stream.Reader, dest vm.Handle) (obj.TypeWord, error) {
	kind, err := r.ReadU8()
	if err != nil {
		return obj.Void, err
	}
	base := d.decodeType(r, dest)

	var flavor obj.PtrFlavor
	switch kind {
	case LeafNearPtr:
		flavor = obj.PtrNear
	case LeafFarPtr:
		flavor = obj.PtrFar
	case LeafHugePtr:
		skipToEnd(r)
		return obj.Void, errors.New("HUGE pointers not supported")
	default:
		skipToEnd(r)
		return obj.Void, fmt.Errorf("unhandled pointer type 0x%02X", kind)
	}

	w := obj.Special(obj.KindPtr, uint16(flavor))
	if base != obj.Void && dest != noDest {
		w = d.allocType(dest, obj.TypeDesc{Kind: obj.DescPointer, Flavor: flavor, Base: base})
	}
	d.nameTag(r, dest, w)
	return w, nil
}

func (d *Decoder) decodeTypedef(r *stream.Reader, start int, dest vm.Handle) (obj.TypeWord, error) {
	if dest == noDest {
		skipToEnd(r)
		return obj.Void, nil
	}
	tsyms, ttypes := d.allocScratch()
	alias := d.decodeType(r, ttypes)
	name, err := ReadString(r)
	if err != nil {
		d.freeScratch(tsyms)
		return obj.Void, fmt.Errorf("typedef name: %w", err)
	}
	id, flags := d.typeName(name)
	d.withSymBlock(tsyms, func(b *obj.SymBlock) {
		b.Alloc(obj.Sym{Kind: obj.SymTypedef, Flags: flags, Name: id, Type: alias})
	})
	return d.finishType(start, id, tsyms, dest), nil
}

// typeName interns name, synthesizing one for a nameless type.
func (d *Decoder) typeName(name string) (strtab.ID, obj.SymFlags) {
	if name == "" {
		return d.db.AnonName(), obj.FlagNameless
	}
	return d.db.Strings.Enter(name), 0
}

// nameTag registers the name some producers append to a pointer or array
// description as a typedef for w. The tag is consumed once.
func (d *Decoder) nameTag(r *stream.Reader, dest vm.Handle, w obj.TypeWord) {
	pos := r.Offset()
	if dest == noDest || pos >= r.Len() || d.ctx.tagsDone[pos] || !PeekIs(r, LeafString) {
		return
	}
	name, err := ReadString(r)
	if err != nil || name == "" {
		return
	}
	d.ctx.tagsDone[pos] = true

	h := d.db.VM.Alloc(obj.KindSymBlock, obj.NewSymBlock(dest))
	d.withSymBlock(h, func(b *obj.SymBlock) {
		b.Alloc(obj.Sym{Kind: obj.SymTypedef, Name: d.db.Strings.Enter(name), Type: w})
	})
	d.enterTypes(pos, h)
	must(d.db.VM.Free(h))
}

// finishType registers the scratch block's type symbols in the global
// segment, frees the scratch blocks and memoizes the record at start as
// name. It returns the word for name in dest.
func (d *Decoder) finishType(start int, name strtab.ID, tsyms, dest vm.Handle) obj.TypeWord {
	d.enterTypes(start, tsyms)
	d.freeScratch(tsyms)
	d.ctx.memo[start] = name
	return d.namedType(dest, name)
}

func (d *Decoder) enterTypes(off int, tsyms vm.Handle) {
	err := d.db.EnterTypeSyms(d.db.Global, tsyms)
	if errors.Is(err, obj.ErrTypeMismatch) {
		d.warnf(off, "%v", err)
		return
	}
	must(err)
}

func (d *Decoder) namedType(dest vm.Handle, name strtab.ID) obj.TypeWord {
	if dest == noDest {
		return obj.Void
	}
	g, err := d.db.TypeBlock(dest)
	must(err)
	defer g.Release()
	w := g.Block.Named(name)
	g.MarkDirty()
	return w
}

func (d *Decoder) allocType(dest vm.Handle, desc obj.TypeDesc) obj.TypeWord {
	g, err := d.db.TypeBlock(dest)
	must(err)
	defer g.Release()
	w := g.Block.Intern(desc)
	g.MarkDirty()
	return w
}

func (d *Decoder) withSymBlock(h vm.Handle, fn func(*obj.SymBlock)) {
	g, err := d.db.SymBlock(h)
	must(err)
	defer g.Release()
	fn(g.Block)
	g.MarkDirty()
}

func (d *Decoder) withTypeBlock(h vm.Handle, fn func(*obj.TypeBlock)) {
	g, err := d.db.TypeBlock(h)
	must(err)
	defer g.Release()
	fn(g.Block)
	g.MarkDirty()
}

func (d *Decoder) typeSize(h vm.Handle, w obj.TypeWord) uint32 {
	g, err := d.db.TypeBlock(h)
	must(err)
	defer g.Release()
	return d.db.TypeSize(g.Block, w)
}

func (d *Decoder) allocScratch() (syms, types vm.Handle) {
	syms, types = d.db.AllocBlocks()
	d.ctx.scratch[syms] = types
	return syms, types
}

// freeScratch frees a scratch block pair and forgets every decode into its
// type block, whose handle may be reused.
func (d *Decoder) freeScratch(syms vm.Handle) {
	types := d.ctx.scratch[syms]
	delete(d.ctx.scratch, syms)
	must(d.db.FreeBlocks(syms))
	for k := range d.ctx.words {
		if k.dest == types {
			delete(d.ctx.words, k)
		}
	}
}

// fetchType decodes the type with index idx, referenced from off.
func (d *Decoder) fetchType(idx uint16, dest vm.Handle, off int) obj.TypeWord {
	if idx < FirstUserType {
		w, err := d.predefined(idx, dest)
		if err != nil {
			d.errorf(off, "%v", err)
			return obj.Void
		}
		return w
	}
	rec, ok := d.ctx.typeRecord(int(idx) - FirstUserType)
	if !ok {
		d.errorf(off, "undefined type index %d", idx)
		return obj.Void
	}
	return d.decodeType(d.ctx.recordReader(rec), dest)
}

// symbolType decodes the type index of a symbol record, where the
// bitfield placeholder cannot be resolved.
func (d *Decoder) symbolType(idx uint16, dest vm.Handle, off int) obj.TypeWord {
	w := d.fetchType(idx, dest, off)
	if w == obj.UnresolvedBitfield {
		d.errorf(off, "bitfield of unspecified width outside a structure field list")
		return obj.Void
	}
	return w
}

var (
	intSizes      = [4]uint16{1, 2, 4, 0}
	realSizes     = [4]uint16{4, 8, 10, 0}
	complexSizes  = [4]uint16{8, 16, 20, 0}
	currencySizes = [4]uint16{0, 8, 0, 0}
)

func (d *Decoder) predefined(idx uint16, dest vm.Handle) (obj.TypeWord, error) {
	if idx&predefSpecial == 0 {
		switch idx {
		case predefNoType:
			return obj.Void, nil
		case predefBitfieldTBD:
			return obj.UnresolvedBitfield, nil
		}
		return obj.Void, fmt.Errorf("unsupported predefined type index %d", idx)
	}

	if mode := (idx >> predefModeShift) & predefModeMask; mode != modeDirect {
		if mode == modeHuge {
			return obj.Void, errors.New("HUGE pointers not supported")
		}
		flavor := obj.PtrNear
		if mode == modeFar {
			flavor = obj.PtrFar
		}
		base, err := d.predefined(idx&^(predefModeMask<<predefModeShift), dest)
		if err != nil {
			return obj.Void, err
		}
		if base == obj.Void || dest == noDest {
			return obj.Special(obj.KindPtr, uint16(flavor)), nil
		}
		return d.allocType(dest, obj.TypeDesc{Kind: obj.DescPointer, Flavor: flavor, Base: base}), nil
	}

	typ := (idx >> predefTypeShift) & predefTypeMask
	size := idx & predefSizeMask
	sized := func(kind obj.SpecialKind, sizes [4]uint16) (obj.TypeWord, error) {
		if sizes[size] == 0 {
			return obj.Void, fmt.Errorf("reserved size in predefined type index 0x%02X", idx)
		}
		return obj.Special(kind, sizes[size]), nil
	}
	switch typ {
	case predefSigned:
		return sized(obj.KindSigned, intSizes)
	case predefUnsigned, predefBoolean:
		return sized(obj.KindInt, intSizes)
	case predefReal:
		return sized(obj.KindFloat, realSizes)
	case predefComplex:
		return sized(obj.KindComplex, complexSizes)
	case predefASCII:
		return obj.Char, nil
	case predefCurrency:
		return sized(obj.KindCurrency, currencySizes)
	}
	return obj.Void, nil
}
