package omf

import (
	"fmt"

	"github.com/skdltmxn/cvdb-go/internal/stream"
)

// Segment alignment codes (A field of ACBP)
const (
	AlignAbsolute = 0
	AlignByte     = 1
	AlignWord     = 2
	AlignPara     = 3
	AlignPage     = 4
	AlignDword    = 5
)

// Segment combine codes (C field of ACBP)
const (
	CombinePrivate = 0
	CombinePublic  = 2
	CombineStack   = 5
	CombineCommon  = 6
)

// SegDef is a decoded SEGDEF record.
type SegDef struct {
	Align   uint8
	Combine uint8
	Big     bool
	Size    uint32
	Name    string
	Class   string
	Overlay string

	// Frame and Offset are present only for absolute segments.
	Frame  uint16
	Offset uint8
}

// DecodeSegDef decodes a SEGDEF, resolving its names against m.
func (m *Module) DecodeSegDef(rec *Record) (*SegDef, error) {
	r := stream.NewReader(rec.Data)
	acbp, err := r.ReadU8()
	if err != nil {
		return nil, fmt.Errorf("SEGDEF: %w", err)
	}
	seg := &SegDef{
		Align:   acbp >> 5,
		Combine: (acbp >> 2) & 7,
		Big:     acbp&0x02 != 0,
	}
	if seg.Align == AlignAbsolute {
		if seg.Frame, err = r.ReadU16(); err != nil {
			return nil, fmt.Errorf("SEGDEF: %w", err)
		}
		if seg.Offset, err = r.ReadU8(); err != nil {
			return nil, fmt.Errorf("SEGDEF: %w", err)
		}
	}
	if seg.Size, err = r.ReadOffset(rec.Type.Wide()); err != nil {
		return nil, fmt.Errorf("SEGDEF: %w", err)
	}
	if seg.Big {
		// The B bit means exactly 64K (or 4G); the length field is zero.
		if rec.Type.Wide() {
			seg.Size = 0xFFFFFFFF
		} else {
			seg.Size = 0x10000
		}
	}

	var idx [3]uint16
	for i := range idx {
		if idx[i], err = r.ReadIndex(); err != nil {
			return nil, fmt.Errorf("SEGDEF: %w", err)
		}
	}
	if seg.Name, err = m.LName(idx[0]); err != nil {
		return nil, fmt.Errorf("SEGDEF name: %w", err)
	}
	if seg.Class, err = m.LName(idx[1]); err != nil {
		return nil, fmt.Errorf("SEGDEF class: %w", err)
	}
	if seg.Overlay, err = m.LName(idx[2]); err != nil {
		return nil, fmt.Errorf("SEGDEF overlay: %w", err)
	}
	return seg, nil
}

// GrpDef is a decoded GRPDEF record.
type GrpDef struct {
	Name     string
	Segments []uint16
}

// DecodeGrpDef decodes a GRPDEF, resolving its name against m.
func (m *Module) DecodeGrpDef(rec *Record) (*GrpDef, error) {
	r := stream.NewReader(rec.Data)
	idx, err := r.ReadIndex()
	if err != nil {
		return nil, fmt.Errorf("GRPDEF: %w", err)
	}
	grp := &GrpDef{}
	if grp.Name, err = m.LName(idx); err != nil {
		return nil, fmt.Errorf("GRPDEF name: %w", err)
	}
	for r.Remaining() > 0 {
		kind, err := r.ReadU8()
		if err != nil {
			return nil, fmt.Errorf("GRPDEF: %w", err)
		}
		if kind != 0xFF {
			return nil, fmt.Errorf("GRPDEF: unsupported component 0x%02X", kind)
		}
		seg, err := r.ReadIndex()
		if err != nil {
			return nil, fmt.Errorf("GRPDEF: %w", err)
		}
		grp.Segments = append(grp.Segments, seg)
	}
	return grp, nil
}

// Public is one name declared by a PUBDEF or LPUBDEF.
type Public struct {
	Name      string
	Offset    uint32
	TypeIndex uint16
}

// PubDef is a decoded PUBDEF or LPUBDEF record.
type PubDef struct {
	Group   uint16
	Segment uint16
	Frame   uint16
	Publics []Public
}

// DecodePubDef decodes a PUBDEF or LPUBDEF.
func DecodePubDef(rec *Record) (*PubDef, error) {
	r := stream.NewReader(rec.Data)
	pub := &PubDef{}
	var err error
	if pub.Group, err = r.ReadIndex(); err != nil {
		return nil, fmt.Errorf("%s: %w", rec.Type, err)
	}
	if pub.Segment, err = r.ReadIndex(); err != nil {
		return nil, fmt.Errorf("%s: %w", rec.Type, err)
	}
	if pub.Segment == 0 {
		if pub.Frame, err = r.ReadU16(); err != nil {
			return nil, fmt.Errorf("%s: %w", rec.Type, err)
		}
	}
	for r.Remaining() > 0 {
		var p Public
		if p.Name, err = r.ReadPString(); err != nil {
			return nil, fmt.Errorf("%s: %w", rec.Type, err)
		}
		if p.Offset, err = r.ReadOffset(rec.Type.Wide()); err != nil {
			return nil, fmt.Errorf("%s: %w", rec.Type, err)
		}
		if p.TypeIndex, err = r.ReadIndex(); err != nil {
			return nil, fmt.Errorf("%s: %w", rec.Type, err)
		}
		pub.Publics = append(pub.Publics, p)
	}
	return pub, nil
}

// Communal data types
const (
	CommunalFar  = 0x61
	CommunalNear = 0x62
)

// Communal is one name declared by a COMDEF or LCOMDEF.
type Communal struct {
	Name      string
	TypeIndex uint16
	DataType  uint8
	Length    uint32
}

// DecodeComDef decodes a COMDEF or LCOMDEF.
func DecodeComDef(rec *Record) ([]Communal, error) {
	r := stream.NewReader(rec.Data)
	var out []Communal
	for r.Remaining() > 0 {
		var c Communal
		var err error
		if c.Name, err = r.ReadPString(); err != nil {
			return nil, fmt.Errorf("%s: %w", rec.Type, err)
		}
		if c.TypeIndex, err = r.ReadIndex(); err != nil {
			return nil, fmt.Errorf("%s: %w", rec.Type, err)
		}
		if c.DataType, err = r.ReadU8(); err != nil {
			return nil, fmt.Errorf("%s: %w", rec.Type, err)
		}
		switch c.DataType {
		case CommunalFar:
			n, err := readComLength(r)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", rec.Type, err)
			}
			size, err := readComLength(r)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", rec.Type, err)
			}
			c.Length = n * size
		default:
			if c.Length, err = readComLength(r); err != nil {
				return nil, fmt.Errorf("%s: %w", rec.Type, err)
			}
		}
		out = append(out, c)
	}
	return out, nil
}

// readComLength reads the variable-width communal length encoding.
func readComLength(r *stream.Reader) (uint32, error) {
	b, err := r.ReadU8()
	if err != nil {
		return 0, err
	}
	switch b {
	case 0x81:
		v, err := r.ReadU16()
		return uint32(v), err
	case 0x84:
		return r.ReadU24()
	case 0x88:
		return r.ReadU32()
	}
	return uint32(b), nil
}

// LEData is a decoded LEDATA record.
type LEData struct {
	Segment uint16
	Offset  uint32
	Data    []byte
}

// DecodeLEData decodes an LEDATA. Data aliases rec.Data.
func DecodeLEData(rec *Record) (*LEData, error) {
	r := stream.NewReader(rec.Data)
	seg, err := r.ReadIndex()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rec.Type, err)
	}
	off, err := r.ReadOffset(rec.Type.Wide())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rec.Type, err)
	}
	return &LEData{Segment: seg, Offset: off, Data: r.RemainingData()}, nil
}

// DecodeLIData decodes an LIDATA and expands its iterated blocks.
func DecodeLIData(rec *Record) (*LEData, error) {
	r := stream.NewReader(rec.Data)
	seg, err := r.ReadIndex()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rec.Type, err)
	}
	off, err := r.ReadOffset(rec.Type.Wide())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rec.Type, err)
	}
	var out []byte
	for r.Remaining() > 0 {
		if out, err = expandIterated(r, rec.Type.Wide(), out, 0); err != nil {
			return nil, fmt.Errorf("%s: %w", rec.Type, err)
		}
	}
	return &LEData{Segment: seg, Offset: off, Data: out}, nil
}

const (
	maxIterDepth  = 16
	maxIterExpand = 1 << 20
)

func expandIterated(r *stream.Reader, wide bool, out []byte, depth int) ([]byte, error) {
	if depth > maxIterDepth {
		return nil, fmt.Errorf("iterated data nested too deeply")
	}
	repeat, err := r.ReadOffset(wide)
	if err != nil {
		return nil, err
	}
	blocks, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	if blocks == 0 {
		n, err := r.ReadU8()
		if err != nil {
			return nil, err
		}
		content, err := r.ReadBytesRef(int(n))
		if err != nil {
			return nil, err
		}
		if uint64(len(out))+uint64(len(content))*uint64(repeat) > maxIterExpand {
			return nil, fmt.Errorf("iterated data too large")
		}
		for range repeat {
			out = append(out, content...)
		}
		return out, nil
	}

	var content []byte
	for range blocks {
		if content, err = expandIterated(r, wide, content, depth+1); err != nil {
			return nil, err
		}
	}
	if uint64(len(out))+uint64(len(content))*uint64(repeat) > maxIterExpand {
		return nil, fmt.Errorf("iterated data too large")
	}
	for range repeat {
		out = append(out, content...)
	}
	return out, nil
}
