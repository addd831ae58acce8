package obj

import (
	"fmt"
	"strings"
)

// TypeString renders w, whose descriptors live in tb, as C-like text.
func (db *Database) TypeString(tb *TypeBlock, w TypeWord) string {
	var sb strings.Builder
	db.writeType(&sb, tb, w, 0)
	return sb.String()
}

func intName(signed bool, size uint16) string {
	var base string
	switch size {
	case 1:
		base = "char"
	case 2:
		base = "short"
	case 4:
		base = "long"
	default:
		base = fmt.Sprintf("int%d", size*8)
	}
	if signed {
		if size == 1 {
			return "signed char"
		}
		return base
	}
	return "unsigned " + base
}

func (db *Database) writeType(sb *strings.Builder, tb *TypeBlock, w TypeWord, depth int) {
	if depth > maxTypeDepth {
		sb.WriteString("...")
		return
	}
	if w.IsSpecial() {
		switch k := w.Kind(); k {
		case KindInt, KindSigned:
			sb.WriteString(intName(k == KindSigned, w.Size()))
		case KindFloat:
			switch w.Size() {
			case 4:
				sb.WriteString("float")
			case 8:
				sb.WriteString("double")
			default:
				sb.WriteString("long double")
			}
		case KindComplex:
			fmt.Fprintf(sb, "complex%d", w.Size()*8)
		case KindPtr:
			if w.Flavor() == PtrFar {
				sb.WriteString("far ptr to void")
			} else {
				sb.WriteString("near ptr to void")
			}
		case KindBitfield:
			if w.BitSigned() {
				sb.WriteString("int")
			} else {
				sb.WriteString("unsigned")
			}
			fmt.Fprintf(sb, ":%d@%d", w.BitWidth(), w.BitOffset())
		default:
			sb.WriteString(k.String())
		}
		return
	}
	d, ok := tb.Get(w)
	if !ok {
		fmt.Fprintf(sb, "<bad type %#x>", uint16(w))
		return
	}
	switch d.Kind {
	case DescPointer:
		if d.Flavor == PtrFar {
			sb.WriteString("far ptr to ")
		} else {
			sb.WriteString("near ptr to ")
		}
		db.writeType(sb, tb, d.Base, depth+1)
	case DescArray:
		n, elem, ok := ArrayInfo(tb, w)
		if !ok {
			sb.WriteString("<bad array>")
			return
		}
		db.writeType(sb, tb, elem, depth+1)
		fmt.Fprintf(sb, "[%d]", n)
	case DescNamed:
		if ref, ok := db.Global.Find(d.Name); ok {
			if s, err := db.Sym(ref); err == nil {
				switch s.Kind {
				case SymStruct:
					sb.WriteString("struct ")
				case SymUnion:
					sb.WriteString("union ")
				case SymEType:
					sb.WriteString("enum ")
				}
			}
		}
		sb.WriteString(db.Strings.String(d.Name))
	}
}
