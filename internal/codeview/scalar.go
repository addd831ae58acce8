package codeview

import (
	"fmt"

	"github.com/skdltmxn/cvdb-go/internal/obj"
	"github.com/skdltmxn/cvdb-go/internal/stream"
	"github.com/skdltmxn/cvdb-go/internal/strtab"
	"github.com/skdltmxn/cvdb-go/internal/vm"
)

func (d *Decoder) decodeScalar(r *stream.Reader, start int, dest vm.Handle) (obj.TypeWord, error) {
	defer skipToEnd(r)
	bits, err := ReadInteger(r)
	if err != nil {
		return obj.Void, err
	}
	base, err := r.ReadU8()
	if err != nil {
		return obj.Void, err
	}
	size := uint16(bits / 8)
	var w obj.TypeWord
	switch base {
	case LeafSigned:
		w = obj.Special(obj.KindSigned, size)
	case LeafUnsigned:
		w = obj.Special(obj.KindInt, size)
	default:
		return obj.Void, fmt.Errorf("unknown scalar base type 0x%02X", base)
	}

	var name string
	if r.Remaining() > 0 && PeekIs(r, LeafString) {
		if name, err = ReadString(r); err != nil {
			return obj.Void, err
		}
	}
	if r.Remaining() == 0 || PeekIs(r, LeafNil) || dest == noDest {
		return w, nil
	}

	members, err := d.locateList(r)
	if err != nil {
		return obj.Void, err
	}
	id, flags := d.enumName(name, members)

	tsyms, _ := d.allocScratch()
	d.withSymBlock(tsyms, func(b *obj.SymBlock) {
		head := b.Alloc(obj.Sym{Kind: obj.SymEType, Flags: flags, Name: id, Size: uint32(size)})
		var prev obj.SymOff
		for members.r.Remaining() > 0 {
			if !PeekIs(members.r, LeafString) {
				d.errorf(members.r.Offset(), "invalid scalar descriptor (member name not a string leaf)")
				break
			}
			mname, err := ReadString(members.r)
			if err != nil {
				d.errorf(members.r.Offset(), "member name: %v", err)
				break
			}
			val, err := ReadInteger(members.r)
			if err != nil {
				d.errorf(members.r.Offset(), "member value: %v", err)
				break
			}
			m := b.Alloc(obj.Sym{
				Kind:  obj.SymEnum,
				Name:  d.db.Strings.Enter(mname),
				Value: int32(val),
				Next:  head,
			})
			if prev == 0 {
				b.At(head).First = m
			} else {
				b.At(prev).Next = m
			}
			b.At(head).Last = m
			prev = m
		}
	})
	return d.finishType(start, id, tsyms, dest), nil
}

// enumName names an enumeration. A nameless one takes the name of the
// enumeration registered earlier with the same first member, if any, so
// redefinitions in other files are checked against it.
func (d *Decoder) enumName(name string, members list) (strtab.ID, obj.SymFlags) {
	if name != "" {
		return d.db.Strings.Enter(name), 0
	}
	off := members.r.Offset()
	first, err := ReadString(members.r)
	_ = members.r.SetOffset(off)
	if err != nil || first == "" {
		return d.typeName("")
	}
	id, ok := d.db.Strings.Lookup(first)
	if !ok {
		return d.typeName("")
	}
	ref, ok := d.db.Global.Find(id)
	if !ok {
		return d.typeName("")
	}
	g, err := d.db.SymBlock(ref.Block)
	must(err)
	defer g.Release()
	off16 := ref.Off
	for steps := 0; g.Block.Valid(off16) && steps <= len(g.Block.Syms); steps++ {
		s := g.Block.At(off16)
		if s.Kind != obj.SymEnum {
			if s.Kind == obj.SymEType {
				return s.Name, s.Flags & obj.FlagNameless
			}
			break
		}
		off16 = s.Next
	}
	return d.typeName("")
}
