package omf

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/cvdb-go/internal/stream"
)

// ErrBadIndex is returned when a record refers to an undefined name, segment
// or external.
var ErrBadIndex = errors.New("omf: index out of range")

// Module tracks the per-module name spaces that later records index into.
// All indices are 1-based, as they are on the wire.
type Module struct {
	Name      string
	Names     []string
	Segments  []*SegDef
	Groups    []*GrpDef
	Externals []string
	Threads   Threads
}

// NewModule returns empty name spaces for one object module.
func NewModule() *Module {
	return &Module{}
}

// Observe updates the name spaces from rec. Records that do not define names
// are ignored.
func (m *Module) Observe(rec *Record) error {
	switch rec.Type.Base() {
	case THEADR, LHEADR:
		name, err := stream.NewReader(rec.Data).ReadPString()
		if err != nil {
			return fmt.Errorf("%s: %w", rec.Type, err)
		}
		m.Name = name

	case LNAMES:
		r := stream.NewReader(rec.Data)
		for r.Remaining() > 0 {
			name, err := r.ReadPString()
			if err != nil {
				return fmt.Errorf("LNAMES: %w", err)
			}
			m.Names = append(m.Names, name)
		}

	case EXTDEF, LEXTDEF:
		r := stream.NewReader(rec.Data)
		for r.Remaining() > 0 {
			name, err := r.ReadPString()
			if err != nil {
				return fmt.Errorf("%s: %w", rec.Type, err)
			}
			if _, err := r.ReadIndex(); err != nil {
				return fmt.Errorf("%s: %w", rec.Type, err)
			}
			m.Externals = append(m.Externals, name)
		}

	case COMDEF, LCOMDEF:
		comms, err := DecodeComDef(rec)
		if err != nil {
			return err
		}
		for _, c := range comms {
			m.Externals = append(m.Externals, c.Name)
		}

	case SEGDEF:
		seg, err := m.DecodeSegDef(rec)
		if err != nil {
			return err
		}
		m.Segments = append(m.Segments, seg)

	case GRPDEF:
		grp, err := m.DecodeGrpDef(rec)
		if err != nil {
			return err
		}
		m.Groups = append(m.Groups, grp)

	case FIXUPP:
		if err := ScanThreads(rec.Data, rec.Type.Wide(), &m.Threads); err != nil {
			return err
		}
	}
	return nil
}

// LName returns the LNAMES entry idx. Index 0 is the empty name.
func (m *Module) LName(idx uint16) (string, error) {
	if idx == 0 {
		return "", nil
	}
	if int(idx) > len(m.Names) {
		return "", fmt.Errorf("%w: name %d of %d", ErrBadIndex, idx, len(m.Names))
	}
	return m.Names[idx-1], nil
}

// Segment returns the segment defined by the idx'th SEGDEF.
func (m *Module) Segment(idx uint16) (*SegDef, error) {
	if idx == 0 || int(idx) > len(m.Segments) {
		return nil, fmt.Errorf("%w: segment %d of %d", ErrBadIndex, idx, len(m.Segments))
	}
	return m.Segments[idx-1], nil
}

// Group returns the group defined by the idx'th GRPDEF.
func (m *Module) Group(idx uint16) (*GrpDef, error) {
	if idx == 0 || int(idx) > len(m.Groups) {
		return nil, fmt.Errorf("%w: group %d of %d", ErrBadIndex, idx, len(m.Groups))
	}
	return m.Groups[idx-1], nil
}

// External returns the name of the idx'th external.
func (m *Module) External(idx uint16) (string, error) {
	if idx == 0 || int(idx) > len(m.Externals) {
		return "", fmt.Errorf("%w: external %d of %d", ErrBadIndex, idx, len(m.Externals))
	}
	return m.Externals[idx-1], nil
}

// GroupOf returns the index of the group containing segment idx, or 0.
func (m *Module) GroupOf(idx uint16) uint16 {
	for gi, g := range m.Groups {
		for _, s := range g.Segments {
			if s == idx {
				return uint16(gi + 1)
			}
		}
	}
	return 0
}
