package omf

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/cvdb-go/internal/stream"
)

// ErrBadFixup is returned for malformed FIXUPP subrecords.
var ErrBadFixup = errors.New("omf: malformed fixup")

// Target methods
const (
	TargetSegment  = 0
	TargetGroup    = 1
	TargetExternal = 2
	TargetAbsolute = 3
)

// Frame methods
const (
	FrameSegment  = 0
	FrameGroup    = 1
	FrameExternal = 2
	FrameAbsolute = 3
	FrameLocation = 4
	FrameTarget   = 5
)

// Fixup locations
const (
	LocLowByte  = 0
	LocOffset   = 1
	LocBase     = 2
	LocPointer  = 3
	LocHighByte = 4
	LocOffset32 = 9
	LocPointer4 = 11
)

// Thread is one remembered frame or target specification.
type Thread struct {
	Method uint8
	Index  uint16
	Valid  bool
}

// Threads is the FIXUPP thread state of a module. It persists across
// FIXUPP records.
type Threads struct {
	Frame  [4]Thread
	Target [4]Thread
}

// Fixup is one decoded FIXUP subrecord with its threads resolved.
type Fixup struct {
	// DataOffset is the offset of the fixed-up location within the
	// preceding data record.
	DataOffset uint16
	Location   uint8

	// SegRelative is the M bit: segment-relative rather than self-relative.
	SegRelative bool

	FrameMethod  uint8
	FrameIndex   uint16
	TargetMethod uint8
	TargetIndex  uint16

	HasDisplacement bool
	Displacement    uint32
}

// DecodeFixups walks the subrecords of a FIXUPP payload, updating th for
// THREAD subrecords and calling fn for each FIXUP. Iteration stops early
// when fn returns false.
func DecodeFixups(data []byte, wide bool, th *Threads, fn func(Fixup) bool) error {
	r := stream.NewReader(data)
	for r.Remaining() > 0 {
		b, err := r.ReadU8()
		if err != nil {
			return err
		}
		if b&0x80 == 0 {
			if err := readThread(r, b, th); err != nil {
				return err
			}
			continue
		}

		lo, err := r.ReadU8()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBadFixup, err)
		}
		fx := Fixup{
			DataOffset:  uint16(b&0x03)<<8 | uint16(lo),
			Location:    (b >> 2) & 0x0F,
			SegRelative: b&0x40 != 0,
		}

		fixdat, err := r.ReadU8()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrBadFixup, err)
		}

		frame := (fixdat >> 4) & 0x07
		if fixdat&0x80 != 0 {
			t := th.Frame[frame&0x03]
			if !t.Valid {
				return fmt.Errorf("%w: frame thread %d undefined", ErrBadFixup, frame&0x03)
			}
			fx.FrameMethod, fx.FrameIndex = t.Method, t.Index
		} else {
			fx.FrameMethod = frame
			if frame <= FrameAbsolute {
				if fx.FrameIndex, err = readMethodIndex(r, frame); err != nil {
					return fmt.Errorf("%w: %w", ErrBadFixup, err)
				}
			}
		}

		target := fixdat & 0x03
		if fixdat&0x08 != 0 {
			t := th.Target[target]
			if !t.Valid {
				return fmt.Errorf("%w: target thread %d undefined", ErrBadFixup, target)
			}
			fx.TargetMethod, fx.TargetIndex = t.Method, t.Index
		} else {
			fx.TargetMethod = target
			if fx.TargetIndex, err = readMethodIndex(r, target); err != nil {
				return fmt.Errorf("%w: %w", ErrBadFixup, err)
			}
		}

		if fixdat&0x04 == 0 {
			fx.HasDisplacement = true
			if fx.Displacement, err = r.ReadOffset(wide); err != nil {
				return fmt.Errorf("%w: %w", ErrBadFixup, err)
			}
		}

		if !fn(fx) {
			return nil
		}
	}
	return nil
}

// ScanThreads applies the THREAD subrecords of a FIXUPP payload to th.
func ScanThreads(data []byte, wide bool, th *Threads) error {
	return DecodeFixups(data, wide, th, func(Fixup) bool { return true })
}

func readThread(r *stream.Reader, b uint8, th *Threads) error {
	method := (b >> 2) & 0x07
	num := b & 0x03
	if b&0x40 != 0 {
		t := Thread{Method: method, Valid: true}
		if method <= FrameAbsolute {
			idx, err := readMethodIndex(r, method)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrBadFixup, err)
			}
			t.Index = idx
		}
		th.Frame[num] = t
		return nil
	}

	method &= 0x03
	idx, err := readMethodIndex(r, method)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadFixup, err)
	}
	th.Target[num] = Thread{Method: method, Index: idx, Valid: true}
	return nil
}

// readMethodIndex reads the datum of a frame or target method: an OMF index
// for segment/group/external, a raw frame number for absolute.
func readMethodIndex(r *stream.Reader, method uint8) (uint16, error) {
	if method == TargetAbsolute {
		return r.ReadU16()
	}
	return r.ReadIndex()
}
