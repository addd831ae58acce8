package codeview

import (
	"errors"
	"testing"

	"github.com/skdltmxn/cvdb-go/internal/stream"
)

func TestReadInteger(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want int64
	}{
		{"inline", []byte{0x7F}, 0x7F},
		{"word", []byte{LeafWord, 0xFF, 0xFF}, 0xFFFF},
		{"dword", []byte{LeafDword, 0, 0, 0, 0x80}, 0x80000000},
		{"sbyte", []byte{LeafSByte, 0xFE}, -2},
		{"sword", []byte{LeafSWord, 0x00, 0x80}, -0x8000},
		{"sdword", []byte{LeafSDword, 0xFF, 0xFF, 0xFF, 0xFF}, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := stream.NewReader(tt.data)
			got, err := ReadInteger(r)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
			if r.Remaining() != 0 {
				t.Errorf("%d bytes left unread", r.Remaining())
			}
		})
	}
}

func TestReadIntegerTruncated(t *testing.T) {
	if _, err := ReadInteger(stream.NewReader([]byte{LeafDword, 1})); err == nil {
		t.Error("truncated DWORD leaf accepted")
	}
}

func TestReadIntegerQword(t *testing.T) {
	defer func() {
		r := recover()
		ie, ok := r.(*InvariantError)
		if !ok {
			t.Fatalf("recovered %v, want *InvariantError", r)
		}
		if !errors.Is(ie, ErrInvariant) {
			t.Error("InvariantError does not unwrap to ErrInvariant")
		}
	}()
	ReadInteger(stream.NewReader([]byte{LeafQword, 0, 0, 0, 0, 0, 0, 0, 0}))
}

func TestReadString(t *testing.T) {
	got, err := ReadString(stream.NewReader([]byte{LeafString, 3, 'f', 'o', 'o'}))
	if err != nil || got != "foo" {
		t.Errorf("ReadString = %q, %v", got, err)
	}
	got, err = ReadString(stream.NewReader([]byte{LeafString, 0}))
	if err != nil || got != "" {
		t.Errorf("empty ReadString = %q, %v", got, err)
	}
	if _, err := ReadString(stream.NewReader([]byte{LeafIndex, 1, 2})); !errors.Is(err, ErrNotString) {
		t.Errorf("ReadString(INDEX) = %v, want ErrNotString", err)
	}
}

func TestPeekIs(t *testing.T) {
	r := stream.NewReader([]byte{LeafNil})
	if !PeekIs(r, LeafNil) || PeekIs(r, LeafList) {
		t.Error("PeekIs mismatch")
	}
	if r.Remaining() != 1 {
		t.Error("PeekIs consumed input")
	}
	if PeekIs(stream.NewReader(nil), LeafNil) {
		t.Error("PeekIs true at end of input")
	}
}
