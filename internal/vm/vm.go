// Package vm provides the block arena that holds symbol and type blocks.
// Blocks are addressed by stable integer handles; access goes through a
// Guard that locks the block and records whether it was modified.
package vm

import (
	"errors"
	"fmt"
	"iter"
)

// Handle identifies a block. The zero handle is never allocated.
type Handle uint32

// Kind tags a block with the type of its contents.
type Kind uint16

// Block is the payload stored under a handle.
type Block interface {
	MarshalBinary() ([]byte, error)
}

// Errors returned by File operations
var (
	ErrBadHandle = errors.New("vm: invalid block handle")
	ErrLocked    = errors.New("vm: block is locked")
	ErrWrongType = errors.New("vm: block has unexpected type")
)

type entry struct {
	kind  Kind
	block Block
	locks int
	dirty bool
	live  bool
}

// Info describes the state of one block.
type Info struct {
	Kind  Kind
	Locks int
	Dirty bool
}

// File is an arena of blocks. It is not safe for concurrent use.
type File struct {
	entries []entry
	free    []Handle
	root    Handle
}

// New returns an empty arena.
func New() *File {
	return &File{}
}

// Alloc stores b under a new handle. New blocks start dirty.
func (f *File) Alloc(kind Kind, b Block) Handle {
	e := entry{kind: kind, block: b, dirty: true, live: true}
	if n := len(f.free); n > 0 {
		h := f.free[n-1]
		f.free = f.free[:n-1]
		f.entries[h-1] = e
		return h
	}
	f.entries = append(f.entries, e)
	return Handle(len(f.entries))
}

func (f *File) lookup(h Handle) (*entry, error) {
	if h == 0 || int(h) > len(f.entries) || !f.entries[h-1].live {
		return nil, fmt.Errorf("%w: %d", ErrBadHandle, h)
	}
	return &f.entries[h-1], nil
}

// Free releases h. Locked blocks cannot be freed.
func (f *File) Free(h Handle) error {
	e, err := f.lookup(h)
	if err != nil {
		return err
	}
	if e.locks > 0 {
		return fmt.Errorf("%w: %d", ErrLocked, h)
	}
	*e = entry{}
	f.free = append(f.free, h)
	if f.root == h {
		f.root = 0
	}
	return nil
}

// Info returns the kind and lock state of h.
func (f *File) Info(h Handle) (Info, error) {
	e, err := f.lookup(h)
	if err != nil {
		return Info{}, err
	}
	return Info{Kind: e.kind, Locks: e.locks, Dirty: e.dirty}, nil
}

// Len returns the number of live blocks.
func (f *File) Len() int {
	return len(f.entries) - len(f.free)
}

// Handles iterates over live handles in ascending order.
func (f *File) Handles() iter.Seq[Handle] {
	return func(yield func(Handle) bool) {
		for i := range f.entries {
			if f.entries[i].live && !yield(Handle(i+1)) {
				return
			}
		}
	}
}

// Root returns the handle marked as the arena's entry point.
func (f *File) Root() Handle {
	return f.root
}

// SetRoot marks h as the arena's entry point.
func (f *File) SetRoot(h Handle) {
	f.root = h
}

// Guard is a locked view of one block. Release must be called on every
// path once the caller is done with Block.
type Guard[T Block] struct {
	Block T

	f        *File
	h        Handle
	released bool
}

// Borrow locks h and returns its block as a T.
func Borrow[T Block](f *File, h Handle) (*Guard[T], error) {
	e, err := f.lookup(h)
	if err != nil {
		return nil, err
	}
	b, ok := e.block.(T)
	if !ok {
		return nil, fmt.Errorf("%w: block %d holds %T", ErrWrongType, h, e.block)
	}
	e.locks++
	return &Guard[T]{Block: b, f: f, h: h}, nil
}

// Handle returns the handle the guard locks.
func (g *Guard[T]) Handle() Handle {
	return g.h
}

// MarkDirty records that the block was modified.
func (g *Guard[T]) MarkDirty() {
	if g.released {
		return
	}
	g.f.entries[g.h-1].dirty = true
}

// Release unlocks the block. Releasing twice is a no-op.
func (g *Guard[T]) Release() {
	if g.released {
		return
	}
	g.released = true
	g.f.entries[g.h-1].locks--
}
