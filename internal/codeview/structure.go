package codeview

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/cvdb-go/internal/obj"
	"github.com/skdltmxn/cvdb-go/internal/stream"
	"github.com/skdltmxn/cvdb-go/internal/strtab"
	"github.com/skdltmxn/cvdb-go/internal/vm"
)

// untagged is the name one producer gives structures without a tag.
const untagged = "(untagged)"

// list is a located member list of a structure or enumeration.
type list struct {
	r *stream.Reader

	// base is the offset of the list's first element.
	base int
}

// locateList resolves the LIST or INDEX tree at r to the list it names.
func (d *Decoder) locateList(r *stream.Reader) (list, error) {
	class, err := r.ReadU8()
	if err != nil {
		return list{}, err
	}
	switch class {
	case LeafList:
		// An inline list has no length; it runs to the end of the
		// enclosing record.
		base := r.Offset()
		lr := d.ctx.recordReader(typeRec{start: base, end: r.Len()})
		return list{r: lr, base: base}, nil

	case LeafIndex:
		idx, err := r.ReadU16()
		if err != nil {
			return list{}, err
		}
		rec, ok := d.ctx.typeRecord(int(idx) - FirstUserType)
		if idx < FirstUserType || !ok {
			return list{}, fmt.Errorf("illegal index %d for LIST", idx)
		}
		lr := d.ctx.recordReader(rec)
		if !PeekIs(lr, LeafList) {
			return list{}, fmt.Errorf("type index %d for LIST is not a LIST", idx)
		}
		if err := lr.Skip(1); err != nil {
			return list{}, err
		}
		return list{r: lr, base: rec.start + 1}, nil
	}
	return list{}, fmt.Errorf("illegal list type class 0x%02X; should be INDEX or LIST", class)
}

// structName reads the optional tag of a structure.
func (d *Decoder) structName(r *stream.Reader) (strtab.ID, obj.SymFlags) {
	if r.Remaining() > 0 && PeekIs(r, LeafString) {
		if name, err := ReadString(r); err == nil && name != untagged {
			return d.typeName(name)
		}
	}
	return d.typeName("")
}

// bitfieldScan finds the widths of placeholder bitfield fields: one
// producer stores them as a run of BITFIELD records just before the
// field-type list, in field order.
type bitfieldScan struct {
	started bool
	next    int
}

var errNoBitfield = errors.New("invalid structure descriptor (no bitfield descriptor before field-type list)")

func (d *Decoder) nextBitfield(s *bitfieldScan, listBase int) (obj.TypeWord, error) {
	ctx := d.ctx
	recs := ctx.typeRecords()
	if !s.started {
		s.started = true
		s.next = -1
		prev := false
		for i, rec := range recs {
			if rec.start >= listBase {
				break
			}
			cur := rec.class(ctx.types.data) == LeafBitfield
			if cur && !prev {
				s.next = i
			}
			prev = cur
		}
	}
	if s.next < 0 || s.next >= len(recs) || recs[s.next].class(ctx.types.data) != LeafBitfield {
		return obj.Void, errNoBitfield
	}
	rec := recs[s.next]
	s.next++
	return d.decodeType(ctx.recordReader(rec), noDest), nil
}

type anonKey struct {
	kind obj.SymKind
	size uint32
	n    int
}

func (d *Decoder) decodeStructure(r *stream.Reader, start int, dest vm.Handle) (obj.TypeWord, error) {
	if dest == noDest {
		skipToEnd(r)
		return obj.Void, nil
	}
	bits, err := ReadInteger(r)
	if err != nil {
		return obj.Void, err
	}
	nfields, err := ReadInteger(r)
	if err != nil {
		return obj.Void, err
	}
	if nfields < 0 || nfields > 0xFFFF {
		return obj.Void, fmt.Errorf("structure with %d fields", nfields)
	}
	tlist, err := d.locateList(r)
	if err != nil {
		return obj.Void, err
	}
	nlist, err := d.locateList(r)
	if err != nil {
		return obj.Void, err
	}
	name, flags := d.structName(r)
	skipToEnd(r)

	// Memoize now so fields referring back to this structure resolve to
	// its name instead of recursing.
	d.ctx.memo[start] = name

	tsyms, ttypes := d.allocScratch()
	n := int(nfields)
	types := make([]obj.TypeWord, n)
	var scan bitfieldScan
	for i := range types {
		types[i] = d.decodeField(tlist.r, ttypes)
		if types[i] != obj.UnresolvedBitfield {
			continue
		}
		if types[i], err = d.nextBitfield(&scan, tlist.base); err != nil {
			// Without its widths the layout is unknown.
			delete(d.ctx.memo, start)
			d.freeScratch(tsyms)
			return obj.Void, err
		}
	}

	size := uint32(bits / 8)
	kind := obj.SymStruct
	d.withSymBlock(tsyms, func(b *obj.SymBlock) {
		head := b.Alloc(obj.Sym{Kind: obj.SymStruct, Flags: flags, Name: name, Size: size})
		seen := make(map[int32][]obj.TypeWord)
		var prev obj.SymOff
		for i := range types {
			if !PeekIs(nlist.r, LeafString) {
				d.errorf(nlist.r.Offset(), "invalid structure descriptor (field name not a string leaf)")
				break
			}
			fname, err := ReadString(nlist.r)
			if err != nil {
				d.errorf(nlist.r.Offset(), "field name: %v", err)
				break
			}
			foff, err := ReadInteger(nlist.r)
			if err != nil {
				d.errorf(nlist.r.Offset(), "field offset: %v", err)
				break
			}
			off := int32(foff)
			f := b.Alloc(obj.Sym{
				Kind:   obj.SymField,
				Name:   d.db.Strings.Enter(fname),
				Offset: off,
				Type:   types[i],
				Next:   head,
			})
			if prev == 0 {
				b.At(head).First = f
			} else {
				b.At(prev).Next = f
			}
			b.At(head).Last = f
			prev = f

			for _, other := range seen[off] {
				if !other.IsBitfield() || !types[i].IsBitfield() || other.BitOffset() == types[i].BitOffset() {
					kind = obj.SymUnion
				}
			}
			seen[off] = append(seen[off], types[i])
		}
		b.At(head).Kind = kind
	})

	if flags&obj.FlagNameless != 0 {
		name = d.reuseAnon(anonKey{kind: kind, size: size, n: n}, name, tsyms)
	}
	return d.finishType(start, name, tsyms, dest), nil
}

// reuseAnon looks for an earlier nameless aggregate equivalent to the one
// in tsyms and renames it to match, so identical anonymous types from
// different files collapse into one.
func (d *Decoder) reuseAnon(key anonKey, name strtab.ID, tsyms vm.Handle) strtab.ID {
	for _, cand := range d.anon[key] {
		same, err := d.db.Equivalent(d.db.Global, cand, tsyms)
		must(err)
		if same {
			d.withSymBlock(tsyms, func(b *obj.SymBlock) {
				b.At(1).Name = cand
			})
			return cand
		}
	}
	d.anon[key] = append(d.anon[key], name)
	return name
}
