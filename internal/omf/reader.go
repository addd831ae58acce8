package omf

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Framing errors
var (
	ErrTruncatedRecord = errors.New("omf: truncated record")
	ErrBadChecksum     = errors.New("omf: record checksum mismatch")
	ErrNotObject       = errors.New("omf: not an object module")
)

// Reader frames OMF records from a byte stream.
type Reader struct {
	r      *bufio.Reader
	offset int64
	first  bool
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r), first: true}
}

// Next returns the next record, or io.EOF when the stream is exhausted.
func (rd *Reader) Next() (*Record, error) {
	var hdr [3]byte
	n, err := io.ReadFull(rd.r, hdr[:])
	if err != nil {
		if n == 0 && errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w at offset 0x%x", ErrTruncatedRecord, rd.offset)
	}

	typ := RecordType(hdr[0])
	if rd.first {
		rd.first = false
		if typ != THEADR && typ != LHEADR {
			return nil, fmt.Errorf("%w: first record is %s", ErrNotObject, typ)
		}
	}

	length := int(hdr[1]) | int(hdr[2])<<8
	if length == 0 {
		return nil, fmt.Errorf("%w: zero-length %s at offset 0x%x", ErrTruncatedRecord, typ, rd.offset)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(rd.r, body); err != nil {
		return nil, fmt.Errorf("%w: %s at offset 0x%x", ErrTruncatedRecord, typ, rd.offset)
	}

	// A zero checksum byte means the producer did not compute one.
	if sum := body[length-1]; sum != 0 {
		total := hdr[0] + hdr[1] + hdr[2]
		for _, b := range body {
			total += b
		}
		if total != 0 {
			return nil, fmt.Errorf("%w: %s at offset 0x%x", ErrBadChecksum, typ, rd.offset)
		}
	}

	rec := &Record{
		Type:   typ,
		Offset: rd.offset,
		Data:   body[:length-1],
	}
	rd.offset += int64(3 + length)
	return rec, nil
}
