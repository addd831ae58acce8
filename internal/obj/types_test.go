package obj

import "testing"

func TestSpecialWords(t *testing.T) {
	tests := []struct {
		w    TypeWord
		kind SpecialKind
		size uint16
	}{
		{Void, KindVoid, 0},
		{Char, KindChar, 1},
		{Special(KindSigned, 2), KindSigned, 2},
		{Special(KindInt, 4), KindInt, 4},
		{Special(KindFloat, 10), KindFloat, 10},
	}
	for _, tt := range tests {
		if !tt.w.IsSpecial() {
			t.Errorf("%#x: not special", uint16(tt.w))
		}
		if got := tt.w.Kind(); got != tt.kind {
			t.Errorf("%#x: Kind() = %v, want %v", uint16(tt.w), got, tt.kind)
		}
		if got := tt.w.Size(); got != tt.size {
			t.Errorf("%#x: Size() = %d, want %d", uint16(tt.w), got, tt.size)
		}
	}
	if NearPtr.Flavor() != PtrNear || FarPtr.Flavor() != PtrFar {
		t.Error("pointer flavors not preserved")
	}
	if Near == Far || NearPtr == FarPtr {
		t.Error("near and far words collide")
	}
}

func TestBitfieldWord(t *testing.T) {
	w := Bitfield(true, 5, 3)
	if !w.IsBitfield() || !w.BitSigned() || w.BitOffset() != 5 || w.BitWidth() != 3 {
		t.Errorf("Bitfield(true,5,3) decoded as signed=%v off=%d width=%d",
			w.BitSigned(), w.BitOffset(), w.BitWidth())
	}
	if w == UnresolvedBitfield {
		t.Error("resolved bitfield equals placeholder")
	}
	if u := Bitfield(false, 0, 0); u != UnresolvedBitfield {
		t.Errorf("placeholder = %#x, want %#x", uint16(u), uint16(UnresolvedBitfield))
	}
}

func TestDescWords(t *testing.T) {
	tb := NewTypeBlock()
	p := tb.Alloc(TypeDesc{Kind: DescPointer, Flavor: PtrFar, Base: Char})
	if p.IsSpecial() {
		t.Fatal("descriptor word marked special")
	}
	d, ok := tb.Get(p)
	if !ok || d.Kind != DescPointer || d.Base != Char {
		t.Errorf("Get(%#x) = %+v, %v", uint16(p), d, ok)
	}
	if _, ok := tb.Get(DescWord(7)); ok {
		t.Error("Get of unallocated index succeeded")
	}
	n1 := tb.Named(3)
	if n2 := tb.Named(3); n1 != n2 {
		t.Errorf("Named(3) twice gave %#x and %#x", uint16(n1), uint16(n2))
	}
	n := len(tb.Types)
	if q := tb.Intern(TypeDesc{Kind: DescPointer, Flavor: PtrFar, Base: Char}); q != p || len(tb.Types) != n {
		t.Errorf("Intern of an existing pointer = %#x with %d descriptors, want %#x with %d", uint16(q), len(tb.Types), uint16(p), n)
	}
	if q := tb.Intern(TypeDesc{Kind: DescPointer, Flavor: PtrNear, Base: Char}); q == p || len(tb.Types) != n+1 {
		t.Errorf("Intern of a new pointer = %#x with %d descriptors", uint16(q), len(tb.Types))
	}
}
