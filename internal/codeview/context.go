package codeview

import (
	"github.com/skdltmxn/cvdb-go/internal/obj"
	"github.com/skdltmxn/cvdb-go/internal/omf"
	"github.com/skdltmxn/cvdb-go/internal/stream"
	"github.com/skdltmxn/cvdb-go/internal/strtab"
	"github.com/skdltmxn/cvdb-go/internal/vm"
)

type debugKind uint8

const (
	notDebug debugKind = iota
	typesKind
	symbolsKind
)

// segBuffer collects the contents of one debug segment.
type segBuffer struct {
	size uint32
	data []byte
}

// segSlot is one entry of a file's SEGDEF sequence. Debug segments have
// no obj.Segment.
type segSlot struct {
	seg  *obj.Segment
	kind debugKind
}

// savedFixup is a FIXUPP that followed symbol data, together with the
// thread state in effect when it was read.
type savedFixup struct {
	start, end int
	rec        *omf.Record
	threads    omf.Threads
}

// pendingData remembers the last debug data record so a FIXUPP right
// after it can be attributed.
type pendingData struct {
	kind       debugKind
	start, end int
}

// typeRec locates one $$TYPES record: start is the offset of its class
// byte and end the offset just past it.
type typeRec struct {
	start, end int
}

func (t typeRec) class(data []byte) uint8 {
	if t.end <= t.start {
		return 0
	}
	return data[t.start]
}

// fileContext is the state of one object file being decoded.
type fileContext struct {
	file string
	mod  *omf.Module
	pass int

	segs    []segSlot
	types   segBuffer
	symbols segBuffer
	pending pendingData

	fixups    []savedFixup
	publics   []*omf.Record
	communals []*omf.Record

	recs     []typeRec
	indexed  bool
	memo     map[int]strtab.ID
	words    map[wordKey]decoded
	tagsDone map[int]bool
	depth    int
	inField  bool

	// scratch maps each live scratch symbol block to its type block.
	scratch map[vm.Handle]vm.Handle
}

// wordKey identifies one decode of the tree at off into dest.
type wordKey struct {
	off  int
	dest vm.Handle
}

// decoded is a remembered decode: the word and where the tree ended.
type decoded struct {
	w   obj.TypeWord
	end int
}

func newFileContext(file string, mod *omf.Module, pass int) *fileContext {
	return &fileContext{
		file:     file,
		mod:      mod,
		pass:     pass,
		memo:     make(map[int]strtab.ID),
		words:    make(map[wordKey]decoded),
		tagsDone: make(map[int]bool),
		scratch:  make(map[vm.Handle]vm.Handle),
	}
}

// segment returns the slot of the SEGDEF with OMF index idx.
func (c *fileContext) segment(idx uint16) (segSlot, bool) {
	if idx == 0 || int(idx) > len(c.segs) {
		return segSlot{}, false
	}
	return c.segs[idx-1], true
}

// typeRecords indexes the records of the type segment.
func (c *fileContext) typeRecords() []typeRec {
	if c.indexed {
		return c.recs
	}
	c.indexed = true
	r := stream.NewReader(c.types.data)
	for r.Remaining() >= 3 {
		if err := r.Skip(1); err != nil {
			break
		}
		n, err := r.ReadU16()
		if err != nil {
			break
		}
		start := r.Offset()
		if err := r.Skip(int(n)); err != nil {
			break
		}
		c.recs = append(c.recs, typeRec{start: start, end: start + int(n)})
	}
	return c.recs
}

// typeRecord returns the i'th record of the type segment.
func (c *fileContext) typeRecord(i int) (typeRec, bool) {
	recs := c.typeRecords()
	if i < 0 || i >= len(recs) {
		return typeRec{}, false
	}
	return recs[i], true
}

// recordReader returns a reader positioned at rec.start that cannot read
// past rec.end. Offsets are those of the whole segment.
func (c *fileContext) recordReader(rec typeRec) *stream.Reader {
	r := stream.NewReader(c.types.data[:rec.end])
	_ = r.SetOffset(rec.start)
	return r
}
