package codeview

import (
	"errors"
	"fmt"

	"github.com/skdltmxn/cvdb-go/internal/obj"
	"github.com/skdltmxn/cvdb-go/internal/omf"
	"github.com/skdltmxn/cvdb-go/internal/strtab"
)

// ErrNoFile is returned when records are offered outside BeginFile and
// EndFile.
var ErrNoFile = errors.New("codeview: no object file in progress")

// Decoder turns the CodeView information of a sequence of object files
// into symbols and types in an obj.Database. Files are processed one at a
// time; it is not safe for concurrent use.
type Decoder struct {
	db    *obj.Database
	opts  options
	ctx   *fileContext
	diags []Diagnostic

	// anon lists the names of nameless aggregates by shape, for reuse.
	anon map[anonKey][]strtab.ID
}

// New returns a Decoder entering results into db.
func New(db *obj.Database, opts ...Option) *Decoder {
	return &Decoder{
		db:   db,
		opts: buildOptions(opts...),
		anon: make(map[anonKey][]strtab.ID),
	}
}

// Database returns the database being built.
func (d *Decoder) Database() *obj.Database {
	return d.db
}

// Diagnostics returns all diagnostics produced so far.
func (d *Decoder) Diagnostics() []Diagnostic {
	return d.diags
}

// BeginFile starts decoding an object file. mod holds the file's name
// spaces; the caller keeps it current as records are read. pass is 1 for
// the pass that builds symbols.
func (d *Decoder) BeginFile(file string, mod *omf.Module, pass int) {
	d.ctx = newFileContext(file, mod, pass)
}

// AddSegment records the segment a regular SEGDEF of the current file
// defined. It must be called for every SEGDEF that Offer did not consume,
// in order, so SEGDEF indices line up.
func (d *Decoder) AddSegment(seg *obj.Segment) {
	if d.ctx != nil {
		d.ctx.segs = append(d.ctx.segs, segSlot{seg: seg})
	}
}

// EndFile finishes the current file. On pass one of a file read without
// error the symbols are built and the remaining types swept. Per-file
// state is released in every case.
func (d *Decoder) EndFile(ok bool) (err error) {
	ctx := d.ctx
	if ctx == nil {
		return ErrNoFile
	}
	defer d.teardown()
	defer func() {
		if r := recover(); r != nil {
			ie, isInvariant := r.(*InvariantError)
			if !isInvariant {
				panic(r)
			}
			d.errorf(-1, "%v", ie)
			err = &ParseError{File: ctx.file, Offset: -1, Err: ie}
		}
	}()

	if !ok || ctx.pass != 1 {
		return nil
	}
	if err := d.buildSymbols(); err != nil {
		return err
	}
	d.sweepTypes()
	return nil
}

func (d *Decoder) teardown() {
	ctx := d.ctx
	d.ctx = nil
	for h := range ctx.scratch {
		if err := d.db.FreeBlocks(h); err != nil {
			d.diags = append(d.diags, Diagnostic{
				Severity: Error,
				File:     ctx.file,
				Offset:   -1,
				Message:  fmt.Sprintf("releasing scratch block %d: %v", h, err),
			})
		}
	}
}
