package codeview

import (
	"github.com/skdltmxn/cvdb-go/internal/obj"
	"github.com/skdltmxn/cvdb-go/internal/omf"
	"github.com/skdltmxn/cvdb-go/internal/strtab"
)

// public is what a public or communal definition says about a name.
type public struct {
	// seg is nil for communals and for publics with no segment.
	seg *obj.Segment
	off uint32

	// real is set for PUBDEF and communal definitions, which make the
	// name visible outside the file.
	real bool

	// alias is the spelling in the definition, interned.
	alias strtab.ID
}

// locateFixup finds the fixup applied to offset off of the symbol segment
// and returns its target segment and displacement.
func (d *Decoder) locateFixup(off int) (*obj.Segment, uint32, bool) {
	ctx := d.ctx
	for i := len(ctx.fixups) - 1; i >= 0; i-- {
		sf := &ctx.fixups[i]
		if off < sf.start || off >= sf.end {
			continue
		}
		want := uint16(off - sf.start)
		threads := sf.threads

		var (
			found bool
			fix   omf.Fixup
		)
		err := omf.DecodeFixups(sf.rec.Data, sf.rec.Type.Wide(), &threads, func(fx omf.Fixup) bool {
			if fx.DataOffset != want {
				return true
			}
			found, fix = true, fx
			return false
		})
		if err != nil {
			d.errorf(off, "%v", err)
			return nil, 0, false
		}
		if !found {
			continue
		}

		switch fix.TargetMethod {
		case omf.TargetSegment:
			slot, ok := ctx.segment(fix.TargetIndex)
			if !ok || slot.seg == nil {
				d.errorf(off, "codeview-symbol fixup against segment %d", fix.TargetIndex)
				return nil, 0, false
			}
			return slot.seg, fix.Displacement, true

		case omf.TargetExternal:
			name, err := ctx.mod.External(fix.TargetIndex)
			if err != nil {
				d.errorf(off, "%v", err)
				return nil, 0, false
			}
			// Some producers describe external arrays, so a miss here is
			// not worth a diagnostic.
			pub, ok := d.locatePublic(d.db.Strings.Enter(name))
			if !ok || pub.seg == nil {
				return nil, 0, false
			}
			return pub.seg, pub.off + fix.Displacement, true
		}
		d.errorf(off, "unsupported codeview-symbol fixup target %d", fix.TargetMethod)
		return nil, 0, false
	}
	return nil, 0, false
}

// locatePublic looks name up in the file's public definitions, most
// recent first, and then in its communal definitions.
func (d *Decoder) locatePublic(name strtab.ID) (public, bool) {
	ctx := d.ctx
	want := d.db.Strings.String(name)
	rules := d.opts.nameRules

	for i := len(ctx.publics) - 1; i >= 0; i-- {
		rec := ctx.publics[i]
		pd, err := omf.DecodePubDef(rec)
		if err != nil {
			d.errorf(-1, "%v", err)
			continue
		}
		for _, p := range pd.Publics {
			if !rules.Match(want, p.Name) {
				continue
			}
			pub := public{
				off:   p.Offset,
				real:  rec.Type.Base() == omf.PUBDEF,
				alias: d.intern(name, want, p.Name),
			}
			if slot, ok := ctx.segment(pd.Segment); ok {
				pub.seg = slot.seg
			}
			return pub, true
		}
	}

	for _, rec := range ctx.communals {
		comms, err := omf.DecodeComDef(rec)
		if err != nil {
			d.errorf(-1, "%v", err)
			continue
		}
		for _, c := range comms {
			if rules.Match(want, c.Name) {
				return public{real: true, alias: d.intern(name, want, c.Name)}, true
			}
		}
	}
	return public{}, false
}

func (d *Decoder) intern(id strtab.ID, name, spelling string) strtab.ID {
	if name == spelling {
		return id
	}
	return d.db.Strings.Enter(spelling)
}
