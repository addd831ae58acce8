// Package omftest encodes OMF records and CodeView trees for tests.
package omftest

import (
	"encoding/binary"

	"github.com/skdltmxn/cvdb-go/internal/omf"
)

// Index encodes an OMF index.
func Index(i uint16) []byte {
	if i < 0x80 {
		return []byte{byte(i)}
	}
	return []byte{byte(i>>8) | 0x80, byte(i)}
}

// PString encodes a length-prefixed string.
func PString(s string) []byte {
	return append([]byte{byte(len(s))}, s...)
}

// U16 encodes a little-endian word.
func U16(v uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, v)
}

// U32 encodes a little-endian dword.
func U32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

// Cat concatenates byte slices.
func Cat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Frame encodes one record with its length and checksum.
func Frame(typ omf.RecordType, data []byte) []byte {
	n := len(data) + 1
	out := append([]byte{byte(typ), byte(n), byte(n >> 8)}, data...)
	var sum byte
	for _, b := range out {
		sum += b
	}
	return append(out, -sum)
}

// Object accumulates the records of one object module.
type Object struct {
	data  []byte
	recs  []*omf.Record
	names int
}

// NewObject starts a module with a THEADR naming it.
func NewObject(name string) *Object {
	o := &Object{}
	o.Record(omf.THEADR, PString(name))
	return o
}

// Record appends a raw record.
func (o *Object) Record(typ omf.RecordType, data []byte) *Object {
	o.recs = append(o.recs, &omf.Record{Type: typ, Offset: int64(len(o.data)), Data: data})
	o.data = append(o.data, Frame(typ, data)...)
	return o
}

// LNames appends an LNAMES record and returns the index of its first name.
func (o *Object) LNames(names ...string) uint16 {
	var data []byte
	for _, n := range names {
		data = append(data, PString(n)...)
	}
	o.Record(omf.LNAMES, data)
	first := o.names + 1
	o.names += len(names)
	return uint16(first)
}

// SegDef appends a SEGDEF with byte alignment.
func (o *Object) SegDef(name, class uint16, combine uint8, size uint16) *Object {
	acbp := byte(omf.AlignByte<<5) | combine<<2
	return o.Record(omf.SEGDEF, Cat([]byte{acbp}, U16(size), Index(name), Index(class), Index(1)))
}

// GrpDef appends a GRPDEF.
func (o *Object) GrpDef(name uint16, segs ...uint16) *Object {
	data := Index(name)
	for _, s := range segs {
		data = append(data, 0xFF)
		data = append(data, Index(s)...)
	}
	return o.Record(omf.GRPDEF, data)
}

// ExtDef appends an EXTDEF.
func (o *Object) ExtDef(names ...string) *Object {
	var data []byte
	for _, n := range names {
		data = append(data, PString(n)...)
		data = append(data, 0)
	}
	return o.Record(omf.EXTDEF, data)
}

// Pub is one public name for PubDef.
type Pub struct {
	Name   string
	Offset uint16
}

func pubData(group, seg uint16, pubs []Pub) []byte {
	data := Cat(Index(group), Index(seg))
	if seg == 0 {
		data = append(data, 0, 0)
	}
	for _, p := range pubs {
		data = append(data, PString(p.Name)...)
		data = append(data, U16(p.Offset)...)
		data = append(data, 0)
	}
	return data
}

// PubDef appends a PUBDEF for publics in segment seg.
func (o *Object) PubDef(seg uint16, pubs ...Pub) *Object {
	return o.Record(omf.PUBDEF, pubData(0, seg, pubs))
}

// LPubDef appends an LPUBDEF for publics in segment seg.
func (o *Object) LPubDef(seg uint16, pubs ...Pub) *Object {
	return o.Record(omf.LPUBDEF, pubData(0, seg, pubs))
}

// ComDef appends a near COMDEF.
func (o *Object) ComDef(name string, length uint8) *Object {
	return o.Record(omf.COMDEF, Cat(PString(name), []byte{0, omf.CommunalNear, length}))
}

// LEData appends an LEDATA.
func (o *Object) LEData(seg uint16, off uint16, data []byte) *Object {
	return o.Record(omf.LEDATA, Cat(Index(seg), U16(off), data))
}

// LIData appends an LIDATA repeating data count times.
func (o *Object) LIData(seg uint16, off uint16, count uint16, data []byte) *Object {
	return o.Record(omf.LIDATA, Cat(Index(seg), U16(off), U16(count), U16(0), []byte{byte(len(data))}, data))
}

// Fixupp appends a FIXUPP made of the given subrecords.
func (o *Object) Fixupp(subs ...[]byte) *Object {
	return o.Record(omf.FIXUPP, Cat(subs...))
}

// ModEnd appends a MODEND.
func (o *Object) ModEnd() *Object {
	return o.Record(omf.MODEND, []byte{0})
}

// Bytes returns the encoded module.
func (o *Object) Bytes() []byte {
	return o.data
}

// Records returns the appended records in order.
func (o *Object) Records() []*omf.Record {
	return o.recs
}

func fixup(off uint16, fixdat byte, datum []byte, disp uint16) []byte {
	locat := 0x80 | 0x40 | omf.LocOffset<<2 | byte(off>>8&0x03)
	out := []byte{locat, byte(off)}
	if disp == 0 {
		fixdat |= 0x04
	}
	out = append(out, fixdat)
	out = append(out, datum...)
	if disp != 0 {
		out = append(out, U16(disp)...)
	}
	return out
}

// FixupSeg encodes a segment-relative offset fixup at off against segment
// seg with displacement disp.
func FixupSeg(off, seg, disp uint16) []byte {
	return fixup(off, omf.FrameTarget<<4|omf.TargetSegment, Index(seg), disp)
}

// FixupExt encodes an offset fixup at off against external ext.
func FixupExt(off, ext, disp uint16) []byte {
	return fixup(off, omf.FrameTarget<<4|omf.TargetExternal, Index(ext), disp)
}

// FixupGroup encodes an offset fixup at off against group grp.
func FixupGroup(off, grp uint16) []byte {
	return fixup(off, omf.FrameTarget<<4|omf.TargetGroup, Index(grp), 0)
}

// FixupThread encodes an offset fixup at off whose target comes from
// target thread num.
func FixupThread(off uint16, num uint8, disp uint16) []byte {
	return fixup(off, omf.FrameTarget<<4|0x08|num&0x03, nil, disp)
}

// TargetThread encodes a THREAD subrecord defining target thread num.
func TargetThread(num, method uint8, idx uint16) []byte {
	return Cat([]byte{(method&0x03)<<2 | num&0x03}, Index(idx))
}
