package codeview

// sweepTypes decodes the typedef, structure and scalar records no symbol
// referred to, so their names are registered.
func (d *Decoder) sweepTypes() {
	ctx := d.ctx
	for _, rec := range ctx.typeRecords() {
		if _, done := ctx.memo[rec.start]; done {
			continue
		}
		switch rec.class(ctx.types.data) {
		case LeafTypedef, LeafStructure, LeafScalar:
			syms, types := d.allocScratch()
			d.decodeType(ctx.recordReader(rec), types)
			d.freeScratch(syms)
		}
	}
}
