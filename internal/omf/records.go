// Package omf decodes the relocatable object module format (OMF) records
// that carry CodeView debug segments: framing, name spaces, segment and
// public definitions, data records and fixups.
package omf

import "fmt"

// RecordType identifies an OMF record. Odd values of record types that
// come in pairs carry 32-bit offsets.
type RecordType uint8

// Record types (Intel OMF-86 numbering)
const (
	THEADR    RecordType = 0x80
	LHEADR    RecordType = 0x82
	COMENT    RecordType = 0x88
	MODEND    RecordType = 0x8A
	MODEND32  RecordType = 0x8B
	EXTDEF    RecordType = 0x8C
	PUBDEF    RecordType = 0x90
	PUBDEF32  RecordType = 0x91
	LINNUM    RecordType = 0x94
	LINNUM32  RecordType = 0x95
	LNAMES    RecordType = 0x96
	SEGDEF    RecordType = 0x98
	SEGDEF32  RecordType = 0x99
	GRPDEF    RecordType = 0x9A
	FIXUPP    RecordType = 0x9C
	FIXUPP32  RecordType = 0x9D
	LEDATA    RecordType = 0xA0
	LEDATA32  RecordType = 0xA1
	LIDATA    RecordType = 0xA2
	LIDATA32  RecordType = 0xA3
	COMDEF    RecordType = 0xB0
	LEXTDEF   RecordType = 0xB4
	LPUBDEF   RecordType = 0xB6
	LPUBDEF32 RecordType = 0xB7
	LCOMDEF   RecordType = 0xB8
)

var recordNames = map[RecordType]string{
	THEADR:  "THEADR",
	LHEADR:  "LHEADR",
	COMENT:  "COMENT",
	MODEND:  "MODEND",
	EXTDEF:  "EXTDEF",
	PUBDEF:  "PUBDEF",
	LINNUM:  "LINNUM",
	LNAMES:  "LNAMES",
	SEGDEF:  "SEGDEF",
	GRPDEF:  "GRPDEF",
	FIXUPP:  "FIXUPP",
	LEDATA:  "LEDATA",
	LIDATA:  "LIDATA",
	COMDEF:  "COMDEF",
	LEXTDEF: "LEXTDEF",
	LPUBDEF: "LPUBDEF",
	LCOMDEF: "LCOMDEF",
}

// Base returns the 16-bit variant of a paired record type.
func (t RecordType) Base() RecordType {
	switch t {
	case MODEND32, PUBDEF32, LINNUM32, SEGDEF32, FIXUPP32, LEDATA32, LIDATA32, LPUBDEF32:
		return t &^ 1
	}
	return t
}

// Wide reports whether the record carries 32-bit offsets.
func (t RecordType) Wide() bool {
	return t != t.Base()
}

func (t RecordType) String() string {
	name, ok := recordNames[t.Base()]
	if !ok {
		return fmt.Sprintf("RECORD(0x%02X)", uint8(t))
	}
	if t.Wide() {
		return name + "32"
	}
	return name
}

// Record is one framed OMF record. Data excludes the type, length and
// checksum bytes.
type Record struct {
	Type RecordType

	// Offset is the file offset of the record's type byte.
	Offset int64

	Data []byte
}
