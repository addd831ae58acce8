package codeview

import (
	"github.com/skdltmxn/cvdb-go/internal/obj"
	"github.com/skdltmxn/cvdb-go/internal/stream"
	"github.com/skdltmxn/cvdb-go/internal/vm"
)

func (d *Decoder) decodeArray(r *stream.Reader, class uint8, dest vm.Handle) (obj.TypeWord, error) {
	start := r.Offset() - 1
	if dest == noDest {
		skipToEnd(r)
		return obj.Void, nil
	}
	bits, err := ReadInteger(r)
	if err != nil {
		return obj.Void, err
	}

	elem := obj.Char
	if class != LeafStringType {
		elem = d.decodeType(r, dest)
	}

	elSize := d.typeSize(dest, elem)

	if bits%8 != 0 {
		d.warnf(start, "non-integral number of bytes in array")
	}
	n := uint32(bits / 8)
	var count uint32
	if elSize == 0 {
		d.errorf(start, "array element has no size")
	} else {
		if n%elSize != 0 {
			d.warnf(start, "non-integral number of elements in array")
		}
		count = n / elSize
	}
	w := d.arrayType(dest, elem, count)

	if r.Remaining() > 0 {
		if PeekIs(r, LeafNil) {
			_, _ = r.ReadU8()
		} else {
			idx := d.decodeType(r, noDest)
			if !idx.IsSpecial() || (idx.Kind() != obj.KindInt && idx.Kind() != obj.KindSigned) {
				d.warnf(start, "array index types not supported -- defaulting to int")
			}
		}
		d.nameTag(r, dest, w)
	}
	skipToEnd(r)
	return w, nil
}

// arrayType allocates the descriptors for count elements of elem. Counts
// above obj.MaxArrayLen chain descriptors through Base.
func (d *Decoder) arrayType(dest vm.Handle, elem obj.TypeWord, count uint32) obj.TypeWord {
	var w obj.TypeWord
	d.withTypeBlock(dest, func(tb *obj.TypeBlock) {
		var chain []uint32
		for count > obj.MaxArrayLen {
			chain = append(chain, obj.MaxArrayLen)
			count -= obj.MaxArrayLen
		}
		w = tb.Intern(obj.TypeDesc{Kind: obj.DescArray, Len: uint16(count), Base: elem})
		for range chain {
			w = tb.Intern(obj.TypeDesc{Kind: obj.DescArray, Len: obj.MaxArrayLen, More: true, Base: w})
		}
	})
	return w
}
