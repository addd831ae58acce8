package vm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Magic identifies a saved arena.
const Magic = "CVDB VM 1.00\r\n\x1a\x00"

// MagicSize is the size of the magic signature in bytes
const MagicSize = 16

// SuperBlockSize is the encoded size of SuperBlock
const SuperBlockSize = MagicSize + 5*4

// PageSize is the allocation unit of a saved arena.
const PageSize uint32 = 512

// NilBlockSize marks a freed handle slot in the directory.
const NilBlockSize = 0xFFFFFFFF

// Errors returned while reading a saved arena
var (
	ErrInvalidMagic       = errors.New("vm: invalid magic signature, not a saved database")
	ErrInvalidPageSize    = errors.New("vm: invalid page size")
	ErrTruncatedFile      = errors.New("vm: file is truncated")
	ErrTruncatedDirectory = errors.New("vm: truncated block directory")
)

// SuperBlock is stored at offset 0 of a saved arena.
type SuperBlock struct {
	FileMagic [MagicSize]byte

	PageSize uint32

	// NumPages is the total number of pages; NumPages*PageSize is the
	// file size.
	NumPages uint32

	NumDirectoryBytes uint32

	// DirectoryPage is the first page of the block directory.
	DirectoryPage uint32

	Root uint32
}

// Validate checks the SuperBlock for internal consistency.
func (sb *SuperBlock) Validate() error {
	if string(sb.FileMagic[:]) != Magic {
		return ErrInvalidMagic
	}
	if sb.PageSize < 64 || sb.PageSize&(sb.PageSize-1) != 0 {
		return ErrInvalidPageSize
	}
	return nil
}

// PageOffset returns the byte offset of page n.
func (sb *SuperBlock) PageOffset(n uint32) int64 {
	return int64(n) * int64(sb.PageSize)
}

func pagesFor(n uint32) uint32 {
	return (n + PageSize - 1) / PageSize
}

// WriteTo saves every live block, then the directory. Blocks are clean
// afterwards.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	payloads := make([][]byte, len(f.entries))
	for i := range f.entries {
		if !f.entries[i].live {
			continue
		}
		data, err := f.entries[i].block.MarshalBinary()
		if err != nil {
			return 0, fmt.Errorf("vm: block %d: %w", i+1, err)
		}
		payloads[i] = data
	}

	var dir bytes.Buffer
	binary.Write(&dir, binary.LittleEndian, uint32(len(f.entries)))
	page := uint32(1)
	for i, data := range payloads {
		if !f.entries[i].live {
			binary.Write(&dir, binary.LittleEndian, uint16(0))
			binary.Write(&dir, binary.LittleEndian, uint32(NilBlockSize))
			binary.Write(&dir, binary.LittleEndian, uint32(0))
			continue
		}
		binary.Write(&dir, binary.LittleEndian, uint16(f.entries[i].kind))
		binary.Write(&dir, binary.LittleEndian, uint32(len(data)))
		binary.Write(&dir, binary.LittleEndian, page)
		page += pagesFor(uint32(len(data)))
	}

	sb := SuperBlock{
		PageSize:          PageSize,
		NumPages:          page + pagesFor(uint32(dir.Len())),
		NumDirectoryBytes: uint32(dir.Len()),
		DirectoryPage:     page,
		Root:              uint32(f.root),
	}
	copy(sb.FileMagic[:], Magic)

	cw := &countingWriter{w: w}
	if err := binary.Write(cw, binary.LittleEndian, &sb); err != nil {
		return cw.n, fmt.Errorf("vm: failed to write superblock: %w", err)
	}
	if err := cw.pad(); err != nil {
		return cw.n, err
	}
	for _, data := range payloads {
		if len(data) == 0 {
			continue
		}
		if _, err := cw.Write(data); err != nil {
			return cw.n, err
		}
		if err := cw.pad(); err != nil {
			return cw.n, err
		}
	}
	if _, err := cw.Write(dir.Bytes()); err != nil {
		return cw.n, err
	}
	if err := cw.pad(); err != nil {
		return cw.n, err
	}

	for i := range f.entries {
		f.entries[i].dirty = false
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func (c *countingWriter) pad() error {
	if rem := c.n % int64(PageSize); rem != 0 {
		_, err := c.Write(make([]byte, int64(PageSize)-rem))
		return err
	}
	return nil
}

// Decoder rebuilds a block from its saved payload.
type Decoder func(kind Kind, data []byte) (Block, error)

// Open reads a saved arena from path.
func Open(path string, decode Decoder) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vm: failed to open file: %w", err)
	}
	defer fh.Close()

	stat, err := fh.Stat()
	if err != nil {
		return nil, fmt.Errorf("vm: failed to stat file: %w", err)
	}
	return Read(fh, stat.Size(), decode)
}

// Read loads a saved arena, decoding every block with decode.
func Read(r io.ReaderAt, size int64, decode Decoder) (*File, error) {
	if size < SuperBlockSize {
		return nil, ErrTruncatedFile
	}
	var sb SuperBlock
	if err := binary.Read(io.NewSectionReader(r, 0, SuperBlockSize), binary.LittleEndian, &sb); err != nil {
		return nil, fmt.Errorf("vm: failed to read superblock: %w", err)
	}
	if err := sb.Validate(); err != nil {
		return nil, err
	}
	if size < int64(sb.NumPages)*int64(sb.PageSize) {
		return nil, fmt.Errorf("%w: got %d bytes, expected %d", ErrTruncatedFile, size, int64(sb.NumPages)*int64(sb.PageSize))
	}

	dir := make([]byte, sb.NumDirectoryBytes)
	if _, err := r.ReadAt(dir, sb.PageOffset(sb.DirectoryPage)); err != nil {
		return nil, fmt.Errorf("vm: failed to read directory: %w", err)
	}
	if len(dir) < 4 {
		return nil, ErrTruncatedDirectory
	}
	n := binary.LittleEndian.Uint32(dir)
	if uint64(len(dir)) < 4+uint64(n)*10 {
		return nil, ErrTruncatedDirectory
	}

	f := &File{entries: make([]entry, n), root: Handle(sb.Root)}
	off := 4
	for i := uint32(0); i < n; i++ {
		kind := Kind(binary.LittleEndian.Uint16(dir[off:]))
		bsize := binary.LittleEndian.Uint32(dir[off+2:])
		page := binary.LittleEndian.Uint32(dir[off+6:])
		off += 10

		if bsize == NilBlockSize {
			f.free = append(f.free, Handle(i+1))
			continue
		}
		if page >= sb.NumPages {
			return nil, fmt.Errorf("%w: block %d at page %d", ErrTruncatedFile, i+1, page)
		}
		data := make([]byte, bsize)
		if _, err := r.ReadAt(data, sb.PageOffset(page)); err != nil {
			return nil, fmt.Errorf("vm: failed to read block %d: %w", i+1, err)
		}
		b, err := decode(kind, data)
		if err != nil {
			return nil, fmt.Errorf("vm: block %d: %w", i+1, err)
		}
		f.entries[i] = entry{kind: kind, block: b, live: true}
	}
	return f, nil
}
