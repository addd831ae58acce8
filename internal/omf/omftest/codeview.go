package omftest

// Leaf bytes used by the CodeView builders
const (
	leafNil    = 0x80
	leafString = 0x82
	leafIndex  = 0x83
	leafWord   = 0x85
	leafDword  = 0x86
	leafSByte  = 0x88
	leafSWord  = 0x89
	leafSDword = 0x8A
)

// Nil is the NIL leaf.
var Nil = []byte{leafNil}

// Str encodes a STRING leaf.
func Str(s string) []byte {
	return append([]byte{leafString, byte(len(s))}, s...)
}

// Idx encodes an INDEX leaf.
func Idx(i uint16) []byte {
	return []byte{leafIndex, byte(i), byte(i >> 8)}
}

// Num encodes an integer leaf in the shortest form.
func Num(v int) []byte {
	switch {
	case v >= 0 && v < 0x80:
		return []byte{byte(v)}
	case v >= 0 && v <= 0xFFFF:
		return append([]byte{leafWord}, U16(uint16(v))...)
	case v >= 0:
		return append([]byte{leafDword}, U32(uint32(v))...)
	case v >= -0x80:
		return []byte{leafSByte, byte(int8(v))}
	case v >= -0x8000:
		return append([]byte{leafSWord}, U16(uint16(int16(v)))...)
	}
	return append([]byte{leafSDword}, U32(uint32(int32(v)))...)
}

// FirstUserType is the index of the first record in a $$TYPES segment.
const FirstUserType = 512

// Types accumulates $$TYPES records.
type Types struct {
	data []byte
	n    int
}

// Add appends a record whose body starts with class and returns its index.
func (t *Types) Add(class byte, body ...[]byte) uint16 {
	rec := append([]byte{class}, Cat(body...)...)
	t.data = append(t.data, 1, byte(len(rec)), byte(len(rec)>>8))
	t.data = append(t.data, rec...)
	t.n++
	return uint16(FirstUserType + t.n - 1)
}

// Next returns the index the next Add will return.
func (t *Types) Next() uint16 {
	return uint16(FirstUserType + t.n)
}

// Bytes returns the encoded segment.
func (t *Types) Bytes() []byte {
	return t.data
}

// Symbols accumulates $$SYMBOLS records.
type Symbols struct {
	data []byte
}

// Add appends a record of the given kind and returns the offset of its
// payload, which fixups against its fields are relative to.
func (s *Symbols) Add(kind byte, payload ...[]byte) uint16 {
	body := Cat(payload...)
	s.data = append(s.data, byte(len(body)+1), kind)
	off := len(s.data)
	s.data = append(s.data, body...)
	return uint16(off)
}

// Raw appends bytes verbatim.
func (s *Symbols) Raw(b ...byte) {
	s.data = append(s.data, b...)
}

// Len returns the encoded size so far.
func (s *Symbols) Len() uint16 {
	return uint16(len(s.data))
}

// Bytes returns the encoded segment.
func (s *Symbols) Bytes() []byte {
	return s.data
}
