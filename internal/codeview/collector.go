package codeview

import (
	"slices"

	"github.com/skdltmxn/cvdb-go/internal/omf"
)

// Offer hands the decoder one record of the current file. It reports
// whether the record was consumed. Records that are not consumed belong to
// the caller. The caller must apply every record, consumed or not, to the
// module's name spaces after offering it.
//
// Malformed debug records are diagnosed and skipped; the returned error is
// set only when the record itself cannot be decoded.
func (d *Decoder) Offer(rec *omf.Record) (bool, error) {
	ctx := d.ctx
	if ctx == nil {
		return false, ErrNoFile
	}
	pending := ctx.pending
	ctx.pending = pendingData{}

	switch rec.Type.Base() {
	case omf.SEGDEF:
		return d.collectSegDef(rec)

	case omf.LEDATA:
		return d.collectData(rec)

	case omf.LIDATA:
		data, err := omf.DecodeLIData(rec)
		if err != nil {
			return false, err
		}
		slot, ok := ctx.segment(data.Segment)
		if !ok || slot.kind == notDebug {
			return false, nil
		}
		d.errorf(int(data.Offset), "iterated data record for %s", slot.kind)
		return true, nil

	case omf.FIXUPP:
		switch pending.kind {
		case symbolsKind:
			if ctx.pass == 1 {
				ctx.fixups = append(ctx.fixups, savedFixup{
					start:   pending.start,
					end:     pending.end,
					rec:     cloneRecord(rec),
					threads: ctx.mod.Threads,
				})
			}
			return true, nil
		case typesKind:
			d.warnf(pending.start, "fixups for %s ignored", TypesSegment)
			return true, nil
		}
		return false, nil

	case omf.PUBDEF, omf.LPUBDEF:
		if ctx.pass == 1 {
			ctx.publics = append(ctx.publics, cloneRecord(rec))
		}
		return true, nil

	case omf.COMDEF, omf.LCOMDEF:
		if ctx.pass == 1 {
			ctx.communals = append(ctx.communals, cloneRecord(rec))
		}
		return true, nil
	}
	return false, nil
}

func (k debugKind) String() string {
	switch k {
	case typesKind:
		return TypesSegment
	case symbolsKind:
		return SymbolsSegment
	}
	return "regular segment"
}

func cloneRecord(rec *omf.Record) *omf.Record {
	return &omf.Record{Type: rec.Type, Offset: rec.Offset, Data: slices.Clone(rec.Data)}
}

func (d *Decoder) collectSegDef(rec *omf.Record) (bool, error) {
	ctx := d.ctx
	def, err := ctx.mod.DecodeSegDef(rec)
	if err != nil {
		return false, err
	}

	var buf *segBuffer
	kind := notDebug
	switch def.Name {
	case TypesSegment:
		buf, kind = &ctx.types, typesKind
	case SymbolsSegment:
		buf, kind = &ctx.symbols, symbolsKind
	default:
		return false, nil
	}

	// Some producers define the debug segments twice, once with size 0.
	switch {
	case buf.size != 0:
		d.errorf(-1, "%s segment already defined for this file", kind)
	case def.Size != 0:
		buf.size = def.Size
		if ctx.pass == 1 {
			buf.data = make([]byte, def.Size)
		}
	}
	ctx.segs = append(ctx.segs, segSlot{kind: kind})
	return true, nil
}

func (d *Decoder) collectData(rec *omf.Record) (bool, error) {
	ctx := d.ctx
	data, err := omf.DecodeLEData(rec)
	if err != nil {
		return false, err
	}
	slot, ok := ctx.segment(data.Segment)
	if !ok || slot.kind == notDebug {
		return false, nil
	}

	buf := &ctx.types
	if slot.kind == symbolsKind {
		buf = &ctx.symbols
	}
	start := uint64(data.Offset)
	end := start + uint64(len(data.Data))
	if end > uint64(buf.size) {
		d.errorf(int(data.Offset), "%d bytes of %s data at offset %d overrun segment of %d bytes",
			len(data.Data), slot.kind, data.Offset, buf.size)
		return true, nil
	}
	if buf.data != nil {
		copy(buf.data[start:end], data.Data)
	}
	ctx.pending = pendingData{kind: slot.kind, start: int(start), end: int(end)}
	return true, nil
}

