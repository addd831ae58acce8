package cvdb

import (
	"fmt"
	"io"
	"iter"

	"github.com/skdltmxn/cvdb-go/internal/obj"
	"github.com/skdltmxn/cvdb-go/internal/symtab"
)

// Database answers queries about a built or saved symbol database.
type Database struct {
	db *obj.Database
}

// OpenDatabase opens a database saved with Session.SaveFile.
func OpenDatabase(path string) (*Database, error) {
	db, err := obj.OpenDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("cvdb: failed to open database: %w", err)
	}
	return &Database{db: db}, nil
}

// ReadDatabase reads a database saved with Session.Save.
func ReadDatabase(r io.ReaderAt, size int64) (*Database, error) {
	db, err := obj.ReadDatabase(r, size)
	if err != nil {
		return nil, fmt.Errorf("cvdb: failed to read database: %w", err)
	}
	return &Database{db: db}, nil
}

// Stats summarizes a database.
type Stats struct {
	Segments int
	Symbols  int
	Types    int
	Blocks   int
	Strings  int
}

// Stats returns the size of the database.
func (d *Database) Stats() Stats {
	st := Stats{
		Segments: len(d.db.Segments) - 1,
		Types:    d.db.Global.Syms.Len(),
		Blocks:   d.db.VM.Len(),
		Strings:  d.db.Strings.Len(),
	}
	for _, seg := range d.db.Segments[1:] {
		st.Symbols += seg.Syms.Len()
	}
	return st
}

// Segment describes one output segment.
type Segment struct {
	Name       string
	Class      string
	Group      string
	GroupOrder int
	Combine    string
	Size       uint32
	Symbols    int
}

// Segments returns every segment except the global one, in the order
// they were first defined.
func (d *Database) Segments() []Segment {
	segs := make([]Segment, 0, len(d.db.Segments)-1)
	for _, seg := range d.db.Segments[1:] {
		segs = append(segs, d.segment(seg))
	}
	return segs
}

func (d *Database) segment(seg *obj.Segment) Segment {
	str := d.db.Strings.String
	return Segment{
		Name:       str(seg.Name),
		Class:      str(seg.Class),
		Group:      str(seg.Group),
		GroupOrder: seg.GroupOrder,
		Combine:    seg.Combine.String(),
		Size:       seg.Size,
		Symbols:    seg.Syms.Len(),
	}
}

func (d *Database) findSegment(name string) (*obj.Segment, error) {
	for _, seg := range d.db.Segments[1:] {
		if d.db.Strings.String(seg.Name) == name {
			return seg, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSegmentNotFound, name)
}

// Symbols returns an iterator over the symbols bound in the named segment.
// A symbol bound under several names is produced once.
func (d *Database) Symbols(segment string) (iter.Seq[*Symbol], error) {
	seg, err := d.findSegment(segment)
	if err != nil {
		return nil, err
	}
	return d.all(seg), nil
}

// AllSymbols returns an iterator over the symbols of every segment
// except the global one.
func (d *Database) AllSymbols() iter.Seq[*Symbol] {
	return func(yield func(*Symbol) bool) {
		for _, seg := range d.db.Segments[1:] {
			for s := range d.all(seg) {
				if !yield(s) {
					return
				}
			}
		}
	}
}

// Types returns an iterator over the structures, unions, enumerated types
// and typedefs of the global segment.
func (d *Database) Types() iter.Seq[*Symbol] {
	return d.all(d.db.Global)
}

func (d *Database) all(seg *obj.Segment) iter.Seq[*Symbol] {
	return func(yield func(*Symbol) bool) {
		seen := make(map[obj.Ref]bool)
		for _, r := range seg.Syms.All() {
			ref := toRef(r)
			if seen[ref] {
				continue
			}
			seen[ref] = true
			s, err := d.symbol(seg, ref)
			if err != nil {
				continue
			}
			if !yield(s) {
				return
			}
		}
	}
}

// Lookup returns the symbols bound to name in any segment, the global
// segment first.
func (d *Database) Lookup(name string) ([]*Symbol, error) {
	id, ok := d.db.Strings.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
	}
	var out []*Symbol
	for _, seg := range d.db.Segments {
		ref, ok := seg.Find(id)
		if !ok {
			continue
		}
		s, err := d.symbol(seg, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, name)
	}
	return out, nil
}

// ByAddress returns the symbols of the named segment at addr.
func (d *Database) ByAddress(segment string, addr uint32) ([]*Symbol, error) {
	seg, err := d.findSegment(segment)
	if err != nil {
		return nil, err
	}
	var out []*Symbol
	for s := range d.all(seg) {
		if s.Kind.HasAddress() && s.Address == addr {
			out = append(out, s)
		}
	}
	return out, nil
}

// Children returns the locals of a procedure or block, or the members of
// an aggregate, in order.
func (d *Database) Children(s *Symbol) ([]*Symbol, error) {
	if !s.HasChildren() {
		return nil, nil
	}
	g, err := d.db.SymBlock(s.ref.Block)
	if err != nil {
		return nil, err
	}
	var offs []obj.SymOff
	blk := g.Block
	for cur := blk.At(s.ref.Off).First; cur != s.ref.Off && blk.Valid(cur) && len(offs) < len(blk.Syms); cur = blk.At(cur).Next {
		offs = append(offs, cur)
	}
	g.Release()

	out := make([]*Symbol, 0, len(offs))
	for _, off := range offs {
		c, err := d.symbol(s.seg, obj.Ref{Block: s.ref.Block, Off: off})
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// symbol decodes the symbol at ref, rendering its type against its
// block's descriptors.
func (d *Database) symbol(seg *obj.Segment, ref obj.Ref) (*Symbol, error) {
	g, err := d.db.SymBlock(ref.Block)
	if err != nil {
		return nil, err
	}
	defer g.Release()
	if !g.Block.Valid(ref.Off) {
		return nil, fmt.Errorf("cvdb: symbol %d out of range in block %d", ref.Off, ref.Block)
	}
	raw := g.Block.At(ref.Off)
	tg, err := d.db.TypeBlock(g.Block.Types)
	if err != nil {
		return nil, err
	}
	defer tg.Release()

	s := &Symbol{
		Name:     d.db.Strings.String(raw.Name),
		Kind:     raw.Kind,
		Segment:  d.db.Strings.String(seg.Name),
		Address:  raw.Address,
		Offset:   raw.Offset,
		Length:   raw.Length,
		Size:     raw.Size,
		Value:    raw.Value,
		Global:   raw.IsGlobal(),
		Nameless: raw.IsNameless(),
		Near:     raw.Near || raw.ProcFlags&obj.ProcNear != 0,
		Pascal:   raw.ProcFlags&obj.ProcPascal != 0,
		seg:      seg,
		ref:      ref,
	}
	if typed(raw.Kind) {
		s.Type = d.db.TypeString(tg.Block, raw.Type)
		if raw.Kind == obj.SymVar || raw.Kind == obj.SymLocVar {
			s.Size = d.db.TypeSize(tg.Block, raw.Type)
		}
	}
	if raw.Kind == obj.SymRegVar {
		s.Register = raw.Reg.String()
	}
	if raw.Kind == obj.SymLocalStatic && raw.Target != (obj.Ref{}) && raw.Target != ref {
		target := raw.Target
		g.Release()
		tg.Release()
		t, err := d.symbol(seg, target)
		if err != nil {
			return nil, err
		}
		s.Address, s.Type, s.Size, s.Global = t.Address, t.Type, t.Size, t.Global
	}
	return s, nil
}

func toRef(r symtab.Ref) obj.Ref {
	return obj.Ref{Block: r.Block, Off: obj.SymOff(r.Off)}
}
