package codeview

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/skdltmxn/cvdb-go/internal/obj"
	"github.com/skdltmxn/cvdb-go/internal/stream"
	"github.com/skdltmxn/cvdb-go/internal/strtab"
	"github.com/skdltmxn/cvdb-go/internal/vm"
)

// PrologueLabel names the local label marking the end of a procedure's
// prologue.
const PrologueLabel = "??START"

// CodeView register numbers
const (
	regByteStart  = 0
	regWordStart  = 8
	regDwordStart = 16
	regSegStart   = 24
	regPairStart  = 32
)

// frame is one open lexical scope.
type frame struct {
	off  obj.SymOff
	kind obj.SymKind

	// addr is the relocated start of the scope; end is the address of
	// the BlockEnd a block produces.
	addr uint32
	end  uint32

	// dup is set for a block ignored for starting where its enclosing
	// scope starts.
	dup bool
}

// procState is the outermost open procedure.
type procState struct {
	seg   *obj.Segment
	block vm.Handle
	types vm.Handle
}

// placement is where an address-bearing symbol goes.
type placement struct {
	seg   *obj.Segment
	addr  uint32
	block vm.Handle
	types vm.Handle
}

type symbolBuilder struct {
	d *Decoder

	stack      []frame
	lastLocal  obj.SymOff
	proc       *procState
	defSeg     *obj.Segment
	blockCount int
}

// buildSymbols walks the symbol segment once, building scopes and
// entering symbols into their segments.
func (d *Decoder) buildSymbols() error {
	ctx := d.ctx
	data := ctx.symbols.data
	b := &symbolBuilder{d: d, defSeg: d.defaultCodeSegment()}

	r := stream.NewReader(data)
	for r.Remaining() > 0 {
		at := r.Offset()
		n, _ := r.ReadU8()
		start := r.Offset()
		end := start + int(n)
		if n == 0 || end > len(data) {
			return &ParseError{File: ctx.file, Offset: at, Err: ErrCorruptSymbols}
		}

		rec := stream.NewReader(data[:end])
		_ = rec.SetOffset(start + 1)
		if err := b.record(data[start], rec); err != nil {
			d.errorf(start, "%v", err)
		}
		_ = r.SetOffset(end)
	}
	if len(b.stack) != 0 {
		d.warnf(len(data), "%d scopes still open at end of symbols", len(b.stack))
	}
	d.shrinkTails()
	return nil
}

func (d *Decoder) defaultCodeSegment() *obj.Segment {
	for _, slot := range d.ctx.segs {
		if slot.seg != nil && d.db.Strings.String(slot.seg.Class) == "CODE" {
			return slot.seg
		}
	}
	return nil
}

func (b *symbolBuilder) record(kind uint8, r *stream.Reader) error {
	switch kind {
	case SymBlockStart, SymWithStart:
		return b.blockStart(r)
	case SymProcStart, SymFortranEntry:
		return b.procStart(r)
	case SymEnd:
		return b.end()
	case SymLocalVar:
		return b.localVar(r)
	case SymRegVar:
		return b.regVar(r)
	case SymVariable:
		return b.variable(r)
	case SymCodeLabel:
		return b.codeLabel(r)
	case SymChangeSeg:
		seg, _, ok := b.d.locateFixup(r.Offset())
		if !ok {
			return errors.New("cannot determine new segment for CHANGE_SEG")
		}
		b.defSeg = seg
		return nil
	case SymTypedef, SymConst, SymSkip:
		return nil
	}
	b.d.warnf(r.Offset()-1, "unknown symbol record kind 0x%02X", kind)
	return nil
}

func (b *symbolBuilder) top() *frame {
	return &b.stack[len(b.stack)-1]
}

// allocLocal allocates s in the procedure's block and threads it onto the
// innermost scope's locals.
func (b *symbolBuilder) allocLocal(s obj.Sym) obj.SymOff {
	scope := b.top().off
	s.Next = scope
	var off obj.SymOff
	b.d.withSymBlock(b.proc.block, func(blk *obj.SymBlock) {
		off = blk.Alloc(s)
		if s.Kind.IsScope() {
			blk.At(off).First = off
		}
		if b.lastLocal != 0 {
			blk.At(b.lastLocal).Next = off
		} else {
			blk.At(scope).First = off
		}
		blk.At(scope).Last = off
	})
	b.lastLocal = off
	return off
}

func (b *symbolBuilder) blockStart(r *stream.Reader) error {
	if len(b.stack) == 0 {
		return errors.New("block start not in procedure")
	}
	if len(b.stack) >= b.d.opts.maxScopes {
		return errors.New("too many nested scopes")
	}

	fixAt := r.Offset()
	stored, err := r.ReadU16()
	if err != nil {
		return fmt.Errorf("block start: %w", err)
	}
	length, err := r.ReadU16()
	if err != nil {
		return fmt.Errorf("block start: %w", err)
	}

	seg, addr, ok := b.d.locateFixup(fixAt)
	if ok {
		addr += uint32(stored)
	} else {
		if b.defSeg == nil {
			return errors.New("cannot determine segment for block start")
		}
		seg, addr = b.defSeg, uint32(stored)
	}
	addr += seg.NextOff

	if top := b.top(); addr == top.addr {
		dup := *top
		dup.dup = true
		b.stack = append(b.stack, dup)
		return nil
	}

	symAddr := addr
	if b.d.opts.procRelativeBlocks {
		for i := len(b.stack) - 1; i >= 0; i-- {
			if b.stack[i].kind == obj.SymProc {
				symAddr -= b.stack[i].addr
				break
			}
		}
	}

	var name string
	if r.Remaining() > 0 {
		if name, err = r.ReadPString(); err != nil {
			return fmt.Errorf("block start name: %w", err)
		}
	}
	if name == "" {
		name = "??block" + strconv.Itoa(b.blockCount)
		b.blockCount++
	}

	off := b.allocLocal(obj.Sym{
		Kind:    obj.SymBlockStart,
		Name:    b.d.db.Strings.Enter(name),
		Address: symAddr,
		Length:  length,
	})
	b.stack = append(b.stack, frame{
		off:  off,
		kind: obj.SymBlockStart,
		addr: addr,
		end:  symAddr + uint32(length),
	})
	b.lastLocal = 0
	return nil
}

func (b *symbolBuilder) procStart(r *stream.Reader) error {
	d := b.d
	base := r.Offset()
	var f struct {
		offset, ptype, length, prologue, epilogue, reserved uint16
	}
	for _, p := range []*uint16{&f.offset, &f.ptype, &f.length, &f.prologue, &f.epilogue, &f.reserved} {
		v, err := r.ReadU16()
		if err != nil {
			return fmt.Errorf("procedure start: %w", err)
		}
		*p = v
	}
	nearByte, err := r.ReadU8()
	if err != nil {
		return fmt.Errorf("procedure start: %w", err)
	}
	nameStr, err := r.ReadPString()
	if err != nil {
		return fmt.Errorf("procedure name: %w", err)
	}
	name := d.db.Strings.Enter(nameStr)

	if len(b.stack) != 0 {
		return fmt.Errorf("procedure %s may not be nested inside another scope", nameStr)
	}

	pl, err := b.place(name, "procedure", base, f.offset)
	if err != nil {
		return err
	}

	if f.ptype < FirstUserType {
		return fmt.Errorf("procedure %s not defined with PROCEDURE definition", nameStr)
	}
	trec, ok := d.ctx.typeRecord(int(f.ptype) - FirstUserType)
	if !ok || trec.class(d.ctx.types.data) != LeafProcedure {
		return fmt.Errorf("procedure %s not defined with PROCEDURE definition", nameStr)
	}
	tr := d.ctx.recordReader(trec)
	_ = tr.Skip(1)
	if !PeekIs(tr, LeafNil) {
		return fmt.Errorf("PROCEDURE definition of %s missing NIL leaf", nameStr)
	}
	_ = tr.Skip(1)

	proc := obj.Sym{Kind: obj.SymProc, Name: name, Address: pl.addr}
	if nearByte == 0 {
		proc.ProcFlags |= obj.ProcNear
	}
	pub, found := d.locatePublic(name)
	if found && pub.real {
		proc.Flags |= obj.FlagGlobal
	}

	var off obj.SymOff
	d.withSymBlock(pl.block, func(blk *obj.SymBlock) {
		off = blk.Alloc(proc)
		blk.At(off).First = off
	})
	ref := obj.Ref{Block: pl.block, Off: off}
	if found && pub.real && pub.alias != name {
		pl.seg.Enter(pub.alias, ref)
	}
	pl.seg.Enter(name, ref)

	b.stack = append(b.stack, frame{off: off, kind: obj.SymProc, addr: pl.addr})
	b.proc = &procState{seg: pl.seg, block: pl.block, types: pl.types}
	b.blockCount = 0
	b.lastLocal = 0

	ret := d.decodeType(tr, pl.types)
	b.allocLocal(obj.Sym{Kind: obj.SymReturnType, Flags: obj.FlagNameless, Type: ret})
	if call, err := tr.ReadU8(); err == nil && (call == callPascalNear || call == callPascalFar) {
		d.withSymBlock(pl.block, func(blk *obj.SymBlock) {
			blk.At(off).ProcFlags |= obj.ProcPascal
		})
	}

	if f.prologue != 0 {
		b.allocLocal(obj.Sym{
			Kind:    obj.SymLocLabel,
			Flags:   obj.FlagNameless,
			Name:    d.db.Strings.Enter(PrologueLabel),
			Near:    true,
			Address: pl.addr + uint32(f.prologue),
		})
	}
	return nil
}

func (b *symbolBuilder) end() error {
	if len(b.stack) == 0 {
		return errors.New("cannot end non-existent current scope")
	}
	top := *b.top()
	b.stack = b.stack[:len(b.stack)-1]

	switch {
	case top.dup:
	case top.kind == obj.SymBlockStart:
		b.lastLocal = top.off
		b.allocLocal(obj.Sym{Kind: obj.SymBlockEnd, Flags: obj.FlagNameless, Address: top.end})
	default:
		b.proc = nil
		b.lastLocal = 0
	}
	return nil
}

func (b *symbolBuilder) localVar(r *stream.Reader) error {
	offset, err := r.ReadI16()
	if err != nil {
		return fmt.Errorf("local variable: %w", err)
	}
	typeAt := r.Offset()
	idx, err := r.ReadU16()
	if err != nil {
		return fmt.Errorf("local variable: %w", err)
	}
	name, err := r.ReadPString()
	if err != nil {
		return fmt.Errorf("local variable name: %w", err)
	}
	if len(b.stack) == 0 {
		return fmt.Errorf("local variable %s outside any scope", name)
	}
	b.allocLocal(obj.Sym{
		Kind:   obj.SymLocVar,
		Name:   b.d.db.Strings.Enter(name),
		Offset: int32(offset),
		Type:   b.d.symbolType(idx, b.proc.types, typeAt),
	})
	return nil
}

func (b *symbolBuilder) regVar(r *stream.Reader) error {
	typeAt := r.Offset()
	idx, err := r.ReadU16()
	if err != nil {
		return fmt.Errorf("register variable: %w", err)
	}
	num, err := r.ReadU8()
	if err != nil {
		return fmt.Errorf("register variable: %w", err)
	}
	name, err := r.ReadPString()
	if err != nil {
		return fmt.Errorf("register variable name: %w", err)
	}
	if len(b.stack) == 0 {
		return fmt.Errorf("register variable %s outside any scope", name)
	}
	reg, err := register(num)
	if err != nil {
		return err
	}
	b.allocLocal(obj.Sym{
		Kind: obj.SymRegVar,
		Name: b.d.db.Strings.Enter(name),
		Reg:  reg,
		Type: b.d.symbolType(idx, b.proc.types, typeAt),
	})
	return nil
}

// register maps a CodeView register number to a Register. Only 8- and
// 16-bit general registers and segment registers are representable.
func register(n uint8) (obj.Register, error) {
	switch {
	case n >= regPairStart:
	case n >= regSegStart:
		return obj.RegES + obj.Register(n-regSegStart), nil
	case n >= regDwordStart:
	case n >= regWordStart:
		return obj.RegAX + obj.Register(n-regWordStart), nil
	default:
		return obj.RegAL + obj.Register(n-regByteStart), nil
	}
	return 0, fmt.Errorf("unhandled register number %d", n)
}

func (b *symbolBuilder) variable(r *stream.Reader) error {
	d := b.d
	base := r.Offset()
	offset, err := r.ReadU16()
	if err != nil {
		return fmt.Errorf("variable: %w", err)
	}
	if err := r.Skip(2); err != nil {
		return fmt.Errorf("variable: %w", err)
	}
	typeAt := r.Offset()
	idx, err := r.ReadU16()
	if err != nil {
		return fmt.Errorf("variable: %w", err)
	}
	nameStr, err := r.ReadPString()
	if err != nil {
		return fmt.Errorf("variable name: %w", err)
	}
	name := d.db.Strings.Enter(nameStr)

	pl, err := b.place(name, "variable", base, offset)
	if err != nil {
		return err
	}

	v := obj.Sym{
		Kind:    obj.SymVar,
		Name:    name,
		Address: pl.addr,
		Type:    d.symbolType(idx, pl.types, typeAt),
	}
	pub, found := d.locatePublic(name)
	exported := found && pub.real
	if exported || b.sharedSegment(pl.seg) {
		v.Flags |= obj.FlagGlobal
	}

	var off obj.SymOff
	d.withSymBlock(pl.block, func(blk *obj.SymBlock) {
		off = blk.Alloc(v)
	})
	ref := obj.Ref{Block: pl.block, Off: off}

	if b.proc != nil && pl.seg != b.proc.seg {
		b.allocLocal(obj.Sym{Kind: obj.SymLocalStatic, Name: name, Target: ref})
		return nil
	}
	if exported && pub.alias != name {
		pl.seg.Enter(pub.alias, ref)
	}
	pl.seg.Enter(name, ref)
	return nil
}

// sharedSegment reports whether variables in seg are visible to every
// file regardless of public definitions: the handle segment of an lmem
// group, or a segment named with the shared class prefix.
func (b *symbolBuilder) sharedSegment(seg *obj.Segment) bool {
	if seg.Combine == obj.CombineLMem && seg.GroupOrder == 1 {
		return true
	}
	prefix := b.d.opts.sharedClassPrefix
	return prefix != "" && strings.HasPrefix(b.d.db.Strings.String(seg.Name), prefix)
}

func (b *symbolBuilder) codeLabel(r *stream.Reader) error {
	d := b.d
	base := r.Offset()
	offset, err := r.ReadU16()
	if err != nil {
		return fmt.Errorf("code label: %w", err)
	}
	near, err := r.ReadU8()
	if err != nil {
		return fmt.Errorf("code label: %w", err)
	}
	nameStr, err := r.ReadPString()
	if err != nil {
		return fmt.Errorf("code label name: %w", err)
	}
	name := d.db.Strings.Enter(nameStr)

	pl, err := b.place(name, "label", base, offset)
	if err != nil {
		return err
	}
	label := obj.Sym{Kind: obj.SymLabel, Name: name, Address: pl.addr, Near: near == 0}
	pub, found := d.locatePublic(name)
	if found && pub.real {
		label.Flags |= obj.FlagGlobal
	}

	var off obj.SymOff
	d.withSymBlock(pl.block, func(blk *obj.SymBlock) {
		off = blk.Alloc(label)
	})
	ref := obj.Ref{Block: pl.block, Off: off}
	if found && pub.real && pub.alias != name {
		pl.seg.Enter(pub.alias, ref)
	}
	pl.seg.Enter(name, ref)
	return nil
}

// place resolves the segment and address of the symbol whose offset field
// is at fixAt in the symbol segment, and picks the block it goes in.
func (b *symbolBuilder) place(name strtab.ID, what string, fixAt int, stored uint16) (placement, error) {
	d := b.d
	seg, extra, ok := d.locateFixup(fixAt)
	if !ok {
		pub, found := d.locatePublic(name)
		if !found || pub.seg == nil {
			return placement{}, fmt.Errorf("cannot determine segment and offset for %s %s",
				what, d.db.Strings.String(name))
		}
		seg, extra = pub.seg, pub.off
	}
	pl := placement{seg: seg, addr: extra + seg.NextOff + uint32(stored)}
	pl.block, pl.types = b.tail(seg)
	return pl, nil
}

// tail returns the block of seg's address chain new symbols go in,
// starting a new one when the tail is full. A procedure's locals stay in
// the procedure's block however full it gets.
func (b *symbolBuilder) tail(seg *obj.Segment) (syms, types vm.Handle) {
	d := b.d
	if seg.AddrT != 0 {
		var n int
		d.withSymBlock(seg.AddrT, func(blk *obj.SymBlock) {
			n, types = len(blk.Syms), blk.Types
		})
		if n < d.opts.maxBlockSyms || (b.proc != nil && seg == b.proc.seg) {
			return seg.AddrT, types
		}
	}

	syms, types = d.db.AllocBlocks()
	if seg.AddrT == 0 {
		seg.AddrH = syms
		seg.AddrT = syms
		return syms, types
	}

	// Keep filling the old tail's type block while it has room.
	var oldTypes vm.Handle
	d.withSymBlock(seg.AddrT, func(blk *obj.SymBlock) {
		blk.Next = syms
		oldTypes = blk.Types
	})
	var room bool
	d.withTypeBlock(oldTypes, func(tb *obj.TypeBlock) {
		room = len(tb.Types) < obj.BlockGrowth
	})
	if room {
		must(d.db.VM.Free(types))
		types = oldTypes
		d.withSymBlock(syms, func(blk *obj.SymBlock) {
			blk.Types = types
		})
	}
	seg.AddrT = syms
	return syms, types
}

// shrinkTails trims the tail blocks of the file's segments to their used
// size.
func (d *Decoder) shrinkTails() {
	for _, slot := range d.ctx.segs {
		seg := slot.seg
		if seg == nil || seg.AddrT == 0 {
			continue
		}
		g, err := d.db.SymBlock(seg.AddrT)
		must(err)
		if g.Block.Shrink() {
			g.MarkDirty()
		}
		types := g.Block.Types
		g.Release()

		tg, err := d.db.TypeBlock(types)
		must(err)
		if tg.Block.Shrink() {
			tg.MarkDirty()
		}
		tg.Release()
	}
}
