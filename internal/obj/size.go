package obj

// ArrayInfo returns the total element count and element type of an array
// descriptor chain starting at w.
func ArrayInfo(tb *TypeBlock, w TypeWord) (count uint32, elem TypeWord, ok bool) {
	for depth := 0; depth <= maxTypeDepth; depth++ {
		d, found := tb.Get(w)
		if !found || d.Kind != DescArray {
			return 0, Void, false
		}
		count += uint32(d.Len)
		if !d.More {
			return count, d.Base, true
		}
		w = d.Base
	}
	return 0, Void, false
}

// TypeSize returns the size in bytes of the type w, whose descriptors live
// in tb. Named types are looked up in the global segment.
func (db *Database) TypeSize(tb *TypeBlock, w TypeWord) uint32 {
	return db.typeSize(tb, w, 0)
}

func (db *Database) typeSize(tb *TypeBlock, w TypeWord, depth int) uint32 {
	if depth > maxTypeDepth {
		return 0
	}
	if w.IsSpecial() {
		switch w.Kind() {
		case KindInt, KindSigned, KindChar, KindFloat, KindComplex, KindCurrency:
			return uint32(w.Size())
		case KindPtr:
			if w.Flavor() == PtrFar {
				return 4
			}
			return 2
		case KindBitfield:
			return (uint32(w.BitOffset()) + uint32(w.BitWidth()) + 7) / 8
		}
		return 0
	}
	d, ok := tb.Get(w)
	if !ok {
		return 0
	}
	switch d.Kind {
	case DescPointer:
		if d.Flavor == PtrFar {
			return 4
		}
		return 2
	case DescArray:
		n, elem, ok := ArrayInfo(tb, w)
		if !ok {
			return 0
		}
		return n * db.typeSize(tb, elem, depth+1)
	case DescNamed:
		ref, ok := db.Global.Find(d.Name)
		if !ok {
			return 0
		}
		g, err := db.SymBlock(ref.Block)
		if err != nil {
			return 0
		}
		defer g.Release()
		if !g.Block.Valid(ref.Off) {
			return 0
		}
		s := g.Block.At(ref.Off)
		if s.Kind != SymTypedef {
			return s.Size
		}
		tg, err := db.TypeBlock(g.Block.Types)
		if err != nil {
			return 0
		}
		defer tg.Release()
		return db.typeSize(tg.Block, s.Type, depth+1)
	}
	return 0
}
