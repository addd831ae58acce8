package obj

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/cvdb-go/internal/strtab"
	"github.com/skdltmxn/cvdb-go/internal/vm"
)

// ErrTypeMismatch is returned when a type name is entered a second time
// with a different description. The first definition is kept.
var ErrTypeMismatch = errors.New("obj: type redefined with a different description")

// Limits on the blocks of a segment's type chain
const (
	MaxTypeChainSyms  = 512
	MaxTypeChainDescs = 1 << 14
)

// group is one registrable unit of a scratch block: a typedef, or an
// aggregate and its member ring.
type group struct {
	head    SymOff
	members []SymOff
}

func collectGroups(b *SymBlock) []group {
	var groups []group
	seen := make(map[SymOff]bool)
	for i := range b.Syms {
		off := SymOff(i + 1)
		if seen[off] {
			continue
		}
		s := b.At(off)
		switch {
		case s.Kind == SymTypedef:
			groups = append(groups, group{head: off})
		case s.Kind.IsAggregate():
			g := group{head: off}
			for m := s.First; m != 0 && m != off && b.Valid(m) && !seen[m]; m = b.At(m).Next {
				seen[m] = true
				g.members = append(g.members, m)
			}
			groups = append(groups, g)
		}
		seen[off] = true
	}
	return groups
}

// EnterTypeSyms copies the typedef and aggregate symbols of the scratch
// block src into seg's type chain and binds their names in seg's
// dictionary. Enum members are bound as well. A name already bound to an
// equivalent description is skipped; one bound to a different
// description yields an ErrTypeMismatch in the returned error.
func (db *Database) EnterTypeSyms(seg *Segment, src vm.Handle) error {
	sg, err := db.SymBlock(src)
	if err != nil {
		return err
	}
	defer sg.Release()
	stg, err := db.TypeBlock(sg.Block.Types)
	if err != nil {
		return err
	}
	defer stg.Release()

	var errs []error
	for _, g := range collectGroups(sg.Block) {
		head := sg.Block.At(g.head)
		if prev, ok := seg.Find(head.Name); ok {
			same, err := db.sameGroup(prev, sg.Block, stg.Block, g)
			if err != nil {
				return err
			}
			if !same {
				errs = append(errs, fmt.Errorf("%w: %s", ErrTypeMismatch, db.Strings.String(head.Name)))
			}
			continue
		}
		if err := db.copyGroup(seg, sg.Block, stg.Block, g); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

// Equivalent reports whether name is bound in seg to a description
// equivalent to the first type symbol of the scratch block src, ignoring
// the symbol's own name.
func (db *Database) Equivalent(seg *Segment, name strtab.ID, src vm.Handle) (bool, error) {
	prev, ok := seg.Find(name)
	if !ok {
		return false, nil
	}
	sg, err := db.SymBlock(src)
	if err != nil {
		return false, err
	}
	defer sg.Release()
	groups := collectGroups(sg.Block)
	if len(groups) == 0 {
		return false, nil
	}
	stg, err := db.TypeBlock(sg.Block.Types)
	if err != nil {
		return false, err
	}
	defer stg.Release()
	return db.sameGroup(prev, sg.Block, stg.Block, groups[0])
}

func (db *Database) typeChainTail(seg *Segment, nsyms int) (vm.Handle, error) {
	if seg.TypeT != 0 {
		g, err := db.SymBlock(seg.TypeT)
		if err != nil {
			return 0, err
		}
		fits := len(g.Block.Syms)+nsyms <= MaxTypeChainSyms
		tg, err := db.TypeBlock(g.Block.Types)
		if err != nil {
			g.Release()
			return 0, err
		}
		fits = fits && len(tg.Block.Types)+2*nsyms+8 <= MaxTypeChainDescs
		tg.Release()
		g.Release()
		if fits {
			return seg.TypeT, nil
		}
	}
	h, _ := db.AllocBlocks()
	if seg.TypeT == 0 {
		seg.TypeH = h
	} else {
		g, err := db.SymBlock(seg.TypeT)
		if err != nil {
			return 0, err
		}
		g.Block.Next = h
		g.MarkDirty()
		g.Release()
	}
	seg.TypeT = h
	return h, nil
}

func (db *Database) copyGroup(seg *Segment, src *SymBlock, srcTypes *TypeBlock, g group) error {
	h, err := db.typeChainTail(seg, 1+len(g.members))
	if err != nil {
		return err
	}
	dg, err := db.SymBlock(h)
	if err != nil {
		return err
	}
	defer dg.Release()
	dtg, err := db.TypeBlock(dg.Block.Types)
	if err != nil {
		return err
	}
	defer dtg.Release()

	offs := append([]SymOff{g.head}, g.members...)
	remap := make(map[SymOff]SymOff, len(offs))
	base := SymOff(len(dg.Block.Syms))
	for i, off := range offs {
		remap[off] = base + SymOff(i) + 1
	}
	rebase := func(o SymOff) SymOff {
		if n, ok := remap[o]; ok {
			return n
		}
		return 0
	}
	for _, off := range offs {
		s := *src.At(off)
		s.Next = rebase(s.Next)
		s.First = rebase(s.First)
		s.Last = rebase(s.Last)
		s.Type = copyType(srcTypes, dtg.Block, s.Type, 0)
		dg.Block.Alloc(s)
	}
	dg.MarkDirty()
	dtg.MarkDirty()

	head := src.At(g.head)
	seg.Enter(head.Name, Ref{Block: h, Off: remap[g.head]})
	for _, m := range g.members {
		s := src.At(m)
		if s.Kind != SymEnum {
			continue
		}
		if _, ok := seg.Find(s.Name); !ok {
			seg.Enter(s.Name, Ref{Block: h, Off: remap[m]})
		}
	}
	return nil
}

const maxTypeDepth = 64

// copyType copies the descriptors w depends on from src into dst.
func copyType(src, dst *TypeBlock, w TypeWord, depth int) TypeWord {
	if w.IsSpecial() || depth > maxTypeDepth {
		return w
	}
	d, ok := src.Get(w)
	if !ok {
		return Void
	}
	if d.Kind == DescNamed {
		return dst.Named(d.Name)
	}
	d.Base = copyType(src, dst, d.Base, depth+1)
	return dst.Alloc(d)
}

func (db *Database) sameGroup(prev Ref, src *SymBlock, srcTypes *TypeBlock, g group) (bool, error) {
	pg, err := db.SymBlock(prev.Block)
	if err != nil {
		return false, err
	}
	defer pg.Release()
	ptg, err := db.TypeBlock(pg.Block.Types)
	if err != nil {
		return false, err
	}
	defer ptg.Release()

	if !pg.Block.Valid(prev.Off) {
		return false, nil
	}
	a, b := pg.Block.At(prev.Off), src.At(g.head)
	if a.Kind != b.Kind || a.Size != b.Size ||
		!SameType(ptg.Block, a.Type, srcTypes, b.Type) {
		return false, nil
	}
	if !a.Kind.IsAggregate() {
		return true, nil
	}
	m := a.First
	for _, o := range g.members {
		if m == 0 || m == prev.Off || !pg.Block.Valid(m) {
			return false, nil
		}
		x, y := pg.Block.At(m), src.At(o)
		if x.Kind != y.Kind || x.Name != y.Name || x.Offset != y.Offset ||
			x.Value != y.Value || !SameType(ptg.Block, x.Type, srcTypes, y.Type) {
			return false, nil
		}
		m = x.Next
	}
	return m == prev.Off || (m == 0 && len(g.members) == 0), nil
}

// SameType reports whether a in ab and b in bb describe the same type.
func SameType(ab *TypeBlock, a TypeWord, bb *TypeBlock, b TypeWord) bool {
	return sameType(ab, a, bb, b, 0)
}

func sameType(ab *TypeBlock, a TypeWord, bb *TypeBlock, b TypeWord, depth int) bool {
	if a.IsSpecial() || b.IsSpecial() {
		return a == b
	}
	if depth > maxTypeDepth {
		return false
	}
	x, ok1 := ab.Get(a)
	y, ok2 := bb.Get(b)
	if !ok1 || !ok2 {
		return ok1 == ok2
	}
	if x.Kind != y.Kind || x.Flavor != y.Flavor || x.Len != y.Len ||
		x.More != y.More || x.Name != y.Name {
		return false
	}
	if x.Kind == DescNamed {
		return true
	}
	return sameType(ab, x.Base, bb, y.Base, depth+1)
}
