package codeview

import (
	"testing"

	"github.com/skdltmxn/cvdb-go/internal/obj"
	"github.com/skdltmxn/cvdb-go/internal/omf"
	"github.com/skdltmxn/cvdb-go/internal/omf/omftest"
	"github.com/skdltmxn/cvdb-go/internal/strtab"
)

// SEGDEF indices of the test object
const (
	segText  = 1
	segData  = 2
	segTypes = 3
	segSyms  = 4
)

// unit describes the debug contents of a test object.
type unit struct {
	types  omftest.Types
	syms   omftest.Symbols
	fixups [][]byte

	// defs runs after the segment definitions, tail after the debug data.
	defs func(o *omftest.Object)
	tail func(o *omftest.Object)
}

func (u *unit) object() *omftest.Object {
	o := omftest.NewObject("test.c")
	n := o.LNames("", "_TEXT", "CODE", "_DATA", "DATA", TypesSegment, "DEBTYP", SymbolsSegment, "DEBSYM")
	o.SegDef(n+1, n+2, omf.CombinePublic, 0x100)
	o.SegDef(n+3, n+4, omf.CombinePublic, 0x40)
	o.SegDef(n+5, n+6, omf.CombinePrivate, uint16(len(u.types.Bytes())))
	o.SegDef(n+7, n+8, omf.CombinePrivate, u.syms.Len())
	if u.defs != nil {
		u.defs(o)
	}
	if b := u.types.Bytes(); len(b) > 0 {
		o.LEData(segTypes, 0, b)
	}
	if b := u.syms.Bytes(); len(b) > 0 {
		o.LEData(segSyms, 0, b)
		if len(u.fixups) > 0 {
			o.Fixupp(u.fixups...)
		}
	}
	if u.tail != nil {
		u.tail(o)
	}
	return o.ModEnd()
}

type harness struct {
	t   *testing.T
	db  *obj.Database
	d   *Decoder
	mod *omf.Module

	// used records which records Offer consumed, in order.
	used []bool
}

// open begins a file and offers it every record of o, creating regular
// segments the way a loader would. The file is left open.
func open(t *testing.T, o *omftest.Object, opts ...Option) *harness {
	t.Helper()
	return openPass(t, o, 1, opts...)
}

func openPass(t *testing.T, o *omftest.Object, pass int, opts ...Option) *harness {
	t.Helper()
	db := obj.NewDatabase()
	h := &harness{t: t, db: db, d: New(db, opts...), mod: omf.NewModule()}
	h.d.BeginFile("test.obj", h.mod, pass)
	for _, rec := range o.Records() {
		used, err := h.d.Offer(rec)
		if err != nil {
			t.Fatalf("Offer(%s): %v", rec.Type, err)
		}
		h.used = append(h.used, used)
		if !used && rec.Type.Base() == omf.SEGDEF {
			def, err := h.mod.DecodeSegDef(rec)
			if err != nil {
				t.Fatal(err)
			}
			seg := obj.NewSegment(db.Strings.Enter(def.Name), db.Strings.Enter(def.Class), obj.CombinePublic)
			seg.Contribute(def.Size, 1)
			db.AddSegment(seg)
			h.d.AddSegment(seg)
		}
		if err := h.mod.Observe(rec); err != nil {
			t.Fatalf("Observe(%s): %v", rec.Type, err)
		}
	}
	return h
}

// load runs a whole file through the decoder.
func load(t *testing.T, u *unit, opts ...Option) *harness {
	t.Helper()
	h := open(t, u.object(), opts...)
	if err := h.d.EndFile(true); err != nil {
		t.Fatalf("EndFile: %v", err)
	}
	return h
}

// segment returns the database segment created for SEGDEF idx.
func (h *harness) segment(idx int) *obj.Segment {
	return h.db.Segments[idx]
}

func (h *harness) messages(sev Severity) []string {
	var out []string
	for _, diag := range h.d.Diagnostics() {
		if diag.Severity == sev {
			out = append(out, diag.Message)
		}
	}
	return out
}

// block returns the symbol block ref is in and its type block.
func (h *harness) block(ref obj.Ref) (*obj.SymBlock, *obj.TypeBlock) {
	h.t.Helper()
	g, err := h.db.SymBlock(ref.Block)
	if err != nil {
		h.t.Fatal(err)
	}
	defer g.Release()
	tg, err := h.db.TypeBlock(g.Block.Types)
	if err != nil {
		h.t.Fatal(err)
	}
	defer tg.Release()
	return g.Block, tg.Block
}

// find returns the symbol bound to name in seg.
func (h *harness) find(seg *obj.Segment, name string) (obj.Ref, obj.Sym) {
	h.t.Helper()
	id, ok := h.db.Strings.Lookup(name)
	if !ok {
		h.t.Fatalf("%q never interned", name)
	}
	ref, ok := seg.Find(id)
	if !ok {
		h.t.Fatalf("%q not bound", name)
	}
	s, err := h.db.Sym(ref)
	if err != nil {
		h.t.Fatal(err)
	}
	return ref, s
}

func (h *harness) str(id strtab.ID) string {
	return h.db.Strings.String(id)
}

// members returns the slots of the locals of the scope, or the members of
// the aggregate, at off.
func members(b *obj.SymBlock, off obj.SymOff) []obj.SymOff {
	var out []obj.SymOff
	for cur := b.At(off).First; cur != off && cur != 0 && len(out) <= len(b.Syms); cur = b.At(cur).Next {
		out = append(out, cur)
	}
	return out
}

func chain(b *obj.SymBlock, off obj.SymOff) []obj.Sym {
	var out []obj.Sym
	for _, m := range members(b, off) {
		out = append(out, *b.At(m))
	}
	return out
}

func kinds(syms []obj.Sym) []obj.SymKind {
	out := make([]obj.SymKind, len(syms))
	for i, s := range syms {
		out[i] = s.Kind
	}
	return out
}
