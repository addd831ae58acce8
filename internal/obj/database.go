package obj

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/skdltmxn/cvdb-go/internal/stream"
	"github.com/skdltmxn/cvdb-go/internal/strtab"
	"github.com/skdltmxn/cvdb-go/internal/symtab"
	"github.com/skdltmxn/cvdb-go/internal/vm"
)

// ErrNoRoot is returned when a saved arena has no database root block.
var ErrNoRoot = errors.New("obj: saved arena has no database root")

// Database is the symbol and type database built from object files.
type Database struct {
	VM      *vm.File
	Strings *strtab.Table

	// Segments lists every segment, the global segment first.
	Segments []*Segment

	// Global holds aggregate and typedef symbols.
	Global *Segment

	anon uint32
}

// NewDatabase returns an empty database with only the global segment.
func NewDatabase() *Database {
	db := &Database{VM: vm.New(), Strings: strtab.New()}
	db.Global = NewSegment(strtab.NullID, strtab.NullID, CombineGlobal)
	db.Segments = []*Segment{db.Global}
	return db
}

// FindSegment returns the segment with the given name and class.
func (db *Database) FindSegment(name, class strtab.ID) *Segment {
	for _, s := range db.Segments[1:] {
		if s.Name == name && s.Class == class {
			return s
		}
	}
	return nil
}

// AddSegment appends s to the segment list.
func (db *Database) AddSegment(s *Segment) {
	db.Segments = append(db.Segments, s)
}

// AnonName returns a fresh name for a nameless aggregate.
func (db *Database) AnonName() strtab.ID {
	name := db.Strings.Enter("??anon" + strconv.FormatUint(uint64(db.anon), 10))
	db.anon++
	return name
}

// AllocBlocks allocates an empty symbol block and its type block.
func (db *Database) AllocBlocks() (syms, types vm.Handle) {
	types = db.VM.Alloc(KindTypeBlock, NewTypeBlock())
	syms = db.VM.Alloc(KindSymBlock, NewSymBlock(types))
	return syms, types
}

// FreeBlocks frees a symbol block and its type block.
func (db *Database) FreeBlocks(syms vm.Handle) error {
	g, err := db.SymBlock(syms)
	if err != nil {
		return err
	}
	types := g.Block.Types
	g.Release()
	if err := db.VM.Free(syms); err != nil {
		return err
	}
	if types != 0 {
		return db.VM.Free(types)
	}
	return nil
}

// SymBlock borrows the symbol block h.
func (db *Database) SymBlock(h vm.Handle) (*vm.Guard[*SymBlock], error) {
	return vm.Borrow[*SymBlock](db.VM, h)
}

// TypeBlock borrows the type block h.
func (db *Database) TypeBlock(h vm.Handle) (*vm.Guard[*TypeBlock], error) {
	return vm.Borrow[*TypeBlock](db.VM, h)
}

// Sym returns a copy of the symbol at ref.
func (db *Database) Sym(ref Ref) (Sym, error) {
	g, err := db.SymBlock(ref.Block)
	if err != nil {
		return Sym{}, err
	}
	defer g.Release()
	if !g.Block.Valid(ref.Off) {
		return Sym{}, fmt.Errorf("obj: symbol %d out of range in block %d", ref.Off, ref.Block)
	}
	return *g.Block.At(ref.Off), nil
}

type rootBlock []byte

func (b rootBlock) MarshalBinary() ([]byte, error) { return []byte(b), nil }

func (db *Database) marshalRoot() ([]byte, error) {
	strs, err := db.Strings.MarshalBinary()
	if err != nil {
		return nil, err
	}
	le := binary.LittleEndian
	out := le.AppendUint32(nil, db.anon)
	out = le.AppendUint32(out, uint32(len(strs)))
	out = append(out, strs...)
	out = le.AppendUint32(out, uint32(len(db.Segments)))
	for _, s := range db.Segments {
		out = le.AppendUint32(out, uint32(s.Name))
		out = le.AppendUint32(out, uint32(s.Class))
		out = le.AppendUint32(out, uint32(s.Group))
		out = append(out, uint8(s.Combine))
		out = le.AppendUint16(out, uint16(s.GroupOrder))
		out = le.AppendUint32(out, s.Size)
		out = le.AppendUint32(out, s.NextOff)
		for _, h := range []vm.Handle{s.AddrH, s.AddrT, s.TypeH, s.TypeT} {
			out = le.AppendUint32(out, uint32(h))
		}
		syms, err := s.Syms.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out = append(out, syms...)
	}
	return out, nil
}

// Save writes the database to w.
func (db *Database) Save(w io.Writer) error {
	data, err := db.marshalRoot()
	if err != nil {
		return fmt.Errorf("obj: failed to encode database: %w", err)
	}
	if old := db.VM.Root(); old != 0 {
		if err := db.VM.Free(old); err != nil {
			return err
		}
	}
	db.VM.SetRoot(db.VM.Alloc(KindRoot, rootBlock(data)))
	_, err = db.VM.WriteTo(w)
	return err
}

// SaveFile writes the database to path.
func (db *Database) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := db.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func decodeBlock(kind vm.Kind, data []byte) (vm.Block, error) {
	switch kind {
	case KindSymBlock:
		return UnmarshalSymBlock(data)
	case KindTypeBlock:
		return UnmarshalTypeBlock(data)
	case KindRoot:
		return rootBlock(data), nil
	}
	return nil, fmt.Errorf("%w: unknown block kind %d", ErrBadBlock, kind)
}

// ReadDatabase loads a database saved by Save.
func ReadDatabase(r io.ReaderAt, size int64) (*Database, error) {
	f, err := vm.Read(r, size, decodeBlock)
	if err != nil {
		return nil, err
	}
	return loadRoot(f)
}

// OpenDatabase loads a database saved by SaveFile.
func OpenDatabase(path string) (*Database, error) {
	f, err := vm.Open(path, decodeBlock)
	if err != nil {
		return nil, err
	}
	return loadRoot(f)
}

func loadRoot(f *vm.File) (*Database, error) {
	if f.Root() == 0 {
		return nil, ErrNoRoot
	}
	g, err := vm.Borrow[rootBlock](f, f.Root())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoRoot, err)
	}
	defer g.Release()

	r := stream.NewReader(g.Block)
	bad := func(err error) error { return fmt.Errorf("%w: root: %w", ErrBadBlock, err) }

	db := &Database{VM: f}
	if db.anon, err = r.ReadU32(); err != nil {
		return nil, bad(err)
	}
	n, err := r.ReadU32()
	if err != nil {
		return nil, bad(err)
	}
	strs, err := r.ReadBytesRef(int(n))
	if err != nil {
		return nil, bad(err)
	}
	if db.Strings, err = strtab.Unmarshal(strs); err != nil {
		return nil, err
	}

	nseg, err := r.ReadU32()
	if err != nil {
		return nil, bad(err)
	}
	for i := uint32(0); i < nseg; i++ {
		var hdr [3]uint32
		for j := range hdr {
			if hdr[j], err = r.ReadU32(); err != nil {
				return nil, bad(err)
			}
		}
		combine, err := r.ReadU8()
		if err != nil {
			return nil, bad(err)
		}
		order, err := r.ReadU16()
		if err != nil {
			return nil, bad(err)
		}
		var vals [6]uint32
		for j := range vals {
			if vals[j], err = r.ReadU32(); err != nil {
				return nil, bad(err)
			}
		}
		syms, err := symtab.Read(r)
		if err != nil {
			return nil, err
		}
		db.Segments = append(db.Segments, &Segment{
			Name:       strtab.ID(hdr[0]),
			Class:      strtab.ID(hdr[1]),
			Group:      strtab.ID(hdr[2]),
			Combine:    Combine(combine),
			GroupOrder: int(order),
			Size:       vals[0],
			NextOff:    vals[1],
			AddrH:      vm.Handle(vals[2]),
			AddrT:      vm.Handle(vals[3]),
			TypeH:      vm.Handle(vals[4]),
			TypeT:      vm.Handle(vals[5]),
			Syms:       syms,
		})
	}
	if len(db.Segments) == 0 || db.Segments[0].Combine != CombineGlobal {
		return nil, fmt.Errorf("%w: root has no global segment", ErrBadBlock)
	}
	db.Global = db.Segments[0]
	return db, nil
}
