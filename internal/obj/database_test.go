package obj

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestTypeSize(t *testing.T) {
	db := NewDatabase()
	src := scratchStruct(t, db, "rect", 8, []field{{"a", 0, Special(KindInt, 4)}})
	if err := db.EnterTypeSyms(db.Global, src); err != nil {
		t.Fatal(err)
	}
	tb := NewTypeBlock()
	arr := tb.Alloc(TypeDesc{Kind: DescArray, Len: 3, Base: tb.Named(db.Strings.Enter("rect"))})
	long := tb.Alloc(TypeDesc{Kind: DescArray, Len: 10, Base: Char})
	chain := tb.Alloc(TypeDesc{Kind: DescArray, Len: MaxArrayLen, More: true, Base: long})

	tests := []struct {
		name string
		w    TypeWord
		want uint32
	}{
		{"void", Void, 0},
		{"long", Special(KindSigned, 4), 4},
		{"near ptr", NearPtr, 2},
		{"far ptr", FarPtr, 4},
		{"struct array", arr, 24},
		{"chained array", chain, MaxArrayLen + 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := db.TypeSize(tb, tt.w); got != tt.want {
				t.Errorf("TypeSize = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTypeString(t *testing.T) {
	db := NewDatabase()
	tb := NewTypeBlock()
	arr := tb.Alloc(TypeDesc{Kind: DescArray, Len: 12, Base: Char})
	tests := []struct {
		w    TypeWord
		want string
	}{
		{Special(KindSigned, 2), "short"},
		{Special(KindInt, 1), "unsigned char"},
		{Special(KindFloat, 8), "double"},
		{FarPtr, "far ptr to void"},
		{Bitfield(true, 5, 3), "int:3@5"},
		{arr, "char[12]"},
	}
	for _, tt := range tests {
		if got := db.TypeString(tb, tt.w); got != tt.want {
			t.Errorf("TypeString(%#x) = %q, want %q", uint16(tt.w), got, tt.want)
		}
	}
}

func TestSaveAndRead(t *testing.T) {
	db := NewDatabase()
	src := scratchStruct(t, db, "point", 4, []field{{"x", 0, Char}, {"y", 2, Char}})
	if err := db.EnterTypeSyms(db.Global, src); err != nil {
		t.Fatal(err)
	}
	if err := db.FreeBlocks(src); err != nil {
		t.Fatal(err)
	}
	code := NewSegment(db.Strings.Enter("_TEXT"), db.Strings.Enter("CODE"), CombinePublic)
	code.Contribute(0x30, 1)
	code.Contribute(0x10, 16)
	db.AddSegment(code)

	var buf bytes.Buffer
	if err := db.Save(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := ReadDatabase(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	opts := cmp.Options{
		cmpopts.IgnoreFields(Segment{}, "Syms"),
	}
	if diff := cmp.Diff(db.Segments, got.Segments, opts); diff != "" {
		t.Errorf("segments mismatch (-want +got):\n%s", diff)
	}
	seg := got.FindSegment(got.Strings.Enter("_TEXT"), got.Strings.Enter("CODE"))
	if seg == nil || seg.NextOff != 0x30 || seg.Size != 0x40 {
		t.Errorf("_TEXT = %+v", seg)
	}
	ref, ok := got.Global.Find(got.Strings.Enter("point"))
	if !ok {
		t.Fatal("point missing after reload")
	}
	if diff := cmp.Diff([]string{"x", "y"}, memberNames(t, got, ref)); diff != "" {
		t.Errorf("members after reload (-want +got):\n%s", diff)
	}
}

func TestContributeCommon(t *testing.T) {
	s := NewSegment(1, 2, CombineCommon)
	s.Contribute(8, 1)
	s.Contribute(4, 1)
	if s.NextOff != 0 || s.Size != 8 {
		t.Errorf("common segment NextOff=%d Size=%d, want 0 and 8", s.NextOff, s.Size)
	}
}
