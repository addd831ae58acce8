package codeview

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/skdltmxn/cvdb-go/internal/obj"
	"github.com/skdltmxn/cvdb-go/internal/omf/omftest"
)

type field struct {
	name string
	off  int
	typ  []byte
}

// structure adds a structure with indexed field lists and returns its
// index.
func structure(ty *omftest.Types, name string, bits int, fields []field) uint16 {
	var tl, nl [][]byte
	for _, f := range fields {
		tl = append(tl, f.typ)
		nl = append(nl, omftest.Str(f.name), omftest.Num(f.off))
	}
	tli := ty.Add(LeafList, tl...)
	nli := ty.Add(LeafList, nl...)
	return ty.Add(LeafStructure, omftest.Num(bits), omftest.Num(len(fields)),
		omftest.Idx(tli), omftest.Idx(nli), omftest.Str(name))
}

// decoder opens a file holding u's types and returns a fresh destination
// type block to decode into.
func decoder(t *testing.T, u *unit) (*harness, *obj.TypeBlock, func(idx uint16) obj.TypeWord) {
	t.Helper()
	h := open(t, u.object())
	_, dest := h.db.AllocBlocks()
	g, err := h.db.TypeBlock(dest)
	if err != nil {
		t.Fatal(err)
	}
	tb := g.Block
	g.Release()
	return h, tb, func(idx uint16) obj.TypeWord {
		return h.d.fetchType(idx, dest, 0)
	}
}

// global returns the aggregate or typedef registered as name, its members
// and the type block their types live in.
func (h *harness) global(name string) (obj.Sym, []obj.Sym, *obj.TypeBlock) {
	h.t.Helper()
	ref, s := h.find(h.db.Global, name)
	b, tb := h.block(ref)
	if !s.Kind.IsAggregate() {
		return s, nil, tb
	}
	return s, chain(b, ref.Off), tb
}

func TestPredefined(t *testing.T) {
	tests := []struct {
		idx  uint16
		want string
	}{
		{0x00, "void"},
		{0x81, "short"},
		{0x82, "long"},
		{0x84, "unsigned char"},
		{0x85, "unsigned short"},
		{0x88, "float"},
		{0x89, "double"},
		{0x8A, "long double"},
		{0x8C, "complex64"},
		{0x90, "unsigned char"},
		{0x94, "char"},
		{0x99, "currency"},
		{0x9C, "void"},
		{0xA1, "near ptr to short"},
		{0xC4, "far ptr to unsigned char"},
		{0xBC, "near ptr to void"},
	}
	h, tb, fetch := decoder(t, &unit{})
	for _, tt := range tests {
		if got := h.db.TypeString(tb, fetch(tt.idx)); got != tt.want {
			t.Errorf("predefined 0x%02X = %q, want %q", tt.idx, got, tt.want)
		}
	}
	if errs := h.messages(Error); len(errs) != 0 {
		t.Errorf("unexpected errors: %q", errs)
	}
	if w := fetch(1); w != obj.UnresolvedBitfield {
		t.Errorf("index 1 = %#x, want the bitfield placeholder", uint16(w))
	}
}

func TestPredefinedErrors(t *testing.T) {
	for _, idx := range []uint16{0xE1, 0x83, 0x02} {
		h, _, fetch := decoder(t, &unit{})
		if w := fetch(idx); w != obj.Void {
			t.Errorf("predefined 0x%02X = %#x, want void", idx, uint16(w))
		}
		if len(h.messages(Error)) != 1 {
			t.Errorf("predefined 0x%02X: errors %q, want one", idx, h.messages(Error))
		}
	}
}

func TestSelfReferentialStructure(t *testing.T) {
	u := &unit{}
	ptr := u.types.Add(LeafPointer, []byte{LeafNearPtr}, omftest.Idx(u.types.Next()+3))
	node := structure(&u.types, "node", 32, []field{
		{"next", 0, omftest.Idx(ptr)},
		{"value", 2, omftest.Idx(0x81)},
	})
	if node != ptr+3 {
		t.Fatalf("structure index %d, want %d", node, ptr+3)
	}

	h, tb, fetch := decoder(t, u)
	w := fetch(node)
	if got := h.db.TypeString(tb, w); got != "struct node" {
		t.Errorf("type = %q, want struct node", got)
	}

	head, fields, ftb := h.global("node")
	if head.Kind != obj.SymStruct || head.Size != 4 {
		t.Errorf("head = %v size %d, want struct size 4", head.Kind, head.Size)
	}
	var got []string
	for _, f := range fields {
		got = append(got, h.str(f.Name)+": "+h.db.TypeString(ftb, f.Type))
	}
	want := []string{"next: near ptr to struct node", "value: short"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	if d, ok := ftb.Get(fields[0].Type); !ok || d.Kind != obj.DescPointer {
		t.Fatalf("next is not a pointer descriptor")
	} else if base, _ := ftb.Get(d.Base); base.Kind != obj.DescNamed {
		t.Errorf("pointer base kind = %v, want a name reference", base.Kind)
	}
}

func TestMemoizedDecode(t *testing.T) {
	u := &unit{}
	s := structure(&u.types, "point", 32, []field{
		{"x", 0, omftest.Idx(0x81)},
		{"y", 2, omftest.Idx(0x81)},
	})
	h, tb, fetch := decoder(t, u)

	first := fetch(s)
	ndiags, ntypes, nglobal := len(h.d.Diagnostics()), len(tb.Types), h.db.Global.Syms.Len()
	second := fetch(s)
	if first != second {
		t.Errorf("second decode = %#x, want %#x", uint16(second), uint16(first))
	}
	if len(h.d.Diagnostics()) != ndiags || len(tb.Types) != ntypes || h.db.Global.Syms.Len() != nglobal {
		t.Error("second decode had side effects")
	}
	if w := h.d.fetchType(s, noDest, 0); w != obj.Void {
		t.Errorf("decode without destination = %#x, want void", uint16(w))
	}
}

func TestMemoizedDescriptors(t *testing.T) {
	tests := []struct {
		name string
		leaf uint8
		body [][]byte
		want string
	}{
		{"near pointer", LeafPointer, [][]byte{{LeafNearPtr}, omftest.Idx(0x81)}, "near ptr to short"},
		{"pointer to predefined pointer", LeafPointer, [][]byte{{LeafFarPtr}, omftest.Idx(0xA1)}, "far ptr to near ptr to short"},
		{"based pointer", LeafBased, [][]byte{omftest.Idx(0x81)}, "near ptr to short"},
		{"array", LeafArray, [][]byte{omftest.Num(96), omftest.Idx(0x82)}, "long[3]"},
		{"partial array", LeafArray, [][]byte{omftest.Num(72), omftest.Idx(0x82)}, "long[2]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &unit{}
			idx := u.types.Add(tt.leaf, tt.body...)
			h, tb, fetch := decoder(t, u)

			first := fetch(idx)
			if got := h.db.TypeString(tb, first); got != tt.want {
				t.Errorf("type = %q, want %q", got, tt.want)
			}
			ndiags, ntypes := len(h.d.Diagnostics()), len(tb.Types)
			if second := fetch(idx); second != first {
				t.Errorf("second decode = %#x, want %#x", uint16(second), uint16(first))
			}
			if len(h.d.Diagnostics()) != ndiags || len(tb.Types) != ntypes {
				t.Errorf("second decode: %d diagnostics and %d descriptors, want %d and %d",
					len(h.d.Diagnostics()), len(tb.Types), ndiags, ntypes)
			}
		})
	}
}

func TestPredefinedPointerReused(t *testing.T) {
	_, tb, fetch := decoder(t, &unit{})
	first := fetch(0xA1)
	n := len(tb.Types)
	if second := fetch(0xA1); second != first || len(tb.Types) != n {
		t.Errorf("second near ptr to short = %#x with %d descriptors, want %#x with %d",
			uint16(second), len(tb.Types), uint16(first), n)
	}
}

func TestPlaceholderBitfieldOutsideStructure(t *testing.T) {
	u := &unit{}
	td := u.types.Add(LeafTypedef, omftest.Idx(1), omftest.Str("BITS"))
	p := u.types.Add(LeafPointer, []byte{LeafNearPtr}, omftest.Idx(1))
	h, tb, fetch := decoder(t, u)

	fetch(td)
	if s, _, stb := h.global("BITS"); s.Type != obj.Void {
		t.Errorf("BITS = %q, want void", h.db.TypeString(stb, s.Type))
	}
	if got := h.db.TypeString(tb, fetch(p)); got != "near ptr to void" {
		t.Errorf("pointer = %q, want near ptr to void", got)
	}
	_, dest := h.db.AllocBlocks()
	if w := h.d.symbolType(1, dest, 0); w != obj.Void {
		t.Errorf("symbol of type 1 = %#x, want void", uint16(w))
	}

	errs := h.messages(Error)
	if len(errs) != 3 {
		t.Fatalf("errors = %q, want three", errs)
	}
	for _, e := range errs {
		if !strings.Contains(e, "unspecified width") {
			t.Errorf("error %q does not mention the placeholder", e)
		}
	}
}

func TestUnionClassification(t *testing.T) {
	tests := []struct {
		name    string
		offsets []int
		want    obj.SymKind
	}{
		{"shared offset", []int{0, 0, 2}, obj.SymUnion},
		{"distinct offsets", []int{0, 2, 4}, obj.SymStruct},
		{"late collision", []int{0, 2, 0}, obj.SymUnion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &unit{}
			var fields []field
			for i, off := range tt.offsets {
				fields = append(fields, field{string(rune('a' + i)), off, omftest.Idx(0x81)})
			}
			s := structure(&u.types, "agg", 48, fields)
			h, _, fetch := decoder(t, u)
			fetch(s)
			if head, _, _ := h.global("agg"); head.Kind != tt.want {
				t.Errorf("kind = %v, want %v", head.Kind, tt.want)
			}
		})
	}
}

// A zero-sized member sharing offset 0 with a real member makes the
// aggregate a union. This is a known limitation of classifying by
// offsets alone.
func TestZeroSizeMemberClassifiesAsUnion(t *testing.T) {
	u := &unit{}
	empty := u.types.Add(LeafArray, omftest.Num(0), omftest.Idx(0x81))
	s := structure(&u.types, "hdr", 16, []field{
		{"tag", 0, omftest.Idx(empty)},
		{"len", 0, omftest.Idx(0x81)},
	})
	h, _, fetch := decoder(t, u)
	fetch(s)
	if head, _, _ := h.global("hdr"); head.Kind != obj.SymUnion {
		t.Errorf("kind = %v, want union", head.Kind)
	}
}

func TestPlaceholderBitfields(t *testing.T) {
	tests := []struct {
		name   string
		widths []int
	}{
		{"declared order", []int{3, 5}},
		{"scrambled", []int{5, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &unit{}
			u.types.Add(LeafArray, omftest.Num(16), omftest.Idx(0x81))
			bit := 0
			for _, w := range tt.widths {
				u.types.Add(LeafBitfield, omftest.Num(w), []byte{LeafUnsigned}, omftest.Num(bit))
				bit += w
			}
			s := structure(&u.types, "flags", 16, []field{
				{"lo", 0, omftest.Idx(1)},
				{"hi", 0, omftest.Idx(1)},
			})

			h, _, fetch := decoder(t, u)
			fetch(s)
			head, fields, _ := h.global("flags")
			if head.Kind != obj.SymStruct {
				t.Errorf("kind = %v, want struct", head.Kind)
			}
			var got []int
			for _, f := range fields {
				got = append(got, int(f.Type.BitWidth()))
			}
			if diff := cmp.Diff(tt.widths, got); diff != "" {
				t.Errorf("widths mismatch (-want +got):\n%s", diff)
			}
			if fields[1].Type.BitOffset() != uint8(tt.widths[0]) {
				t.Errorf("second field at bit %d, want %d", fields[1].Type.BitOffset(), tt.widths[0])
			}
		})
	}
}

func TestPlaceholderBitfieldWithoutDescriptors(t *testing.T) {
	u := &unit{}
	s := structure(&u.types, "bad", 16, []field{{"x", 0, omftest.Idx(1)}})
	h, _, fetch := decoder(t, u)
	if w := fetch(s); w != obj.Void {
		t.Errorf("type = %#x, want void", uint16(w))
	}
	errs := h.messages(Error)
	if len(errs) != 1 || !strings.Contains(errs[0], "no bitfield descriptor") {
		t.Errorf("errors = %q", errs)
	}
	id, _ := h.db.Strings.Lookup("bad")
	if _, ok := h.db.Global.Find(id); ok {
		t.Error("abandoned structure was registered")
	}
	if n := len(h.d.ctx.scratch); n != 0 {
		t.Errorf("%d scratch blocks left", n)
	}
}

func TestListIndexMustNameList(t *testing.T) {
	u := &unit{}
	notList := u.types.Add(LeafArray, omftest.Num(16), omftest.Idx(0x81))
	names := u.types.Add(LeafList, omftest.Str("x"), omftest.Num(0))
	s := u.types.Add(LeafStructure, omftest.Num(16), omftest.Num(1),
		omftest.Idx(notList), omftest.Idx(names), omftest.Str("odd"))
	h, _, fetch := decoder(t, u)
	if w := fetch(s); w != obj.Void {
		t.Errorf("type = %#x, want void", uint16(w))
	}
	errs := h.messages(Error)
	if len(errs) != 1 || !strings.Contains(errs[0], "is not a LIST") {
		t.Errorf("errors = %q", errs)
	}
}

func TestArrayCounts(t *testing.T) {
	tests := []struct {
		name     string
		body     [][]byte
		want     string
		warnings int
	}{
		{"exact", [][]byte{omftest.Num(96), omftest.Idx(0x82)}, "long[3]", 0},
		{"partial element", [][]byte{omftest.Num(72), omftest.Idx(0x82)}, "long[2]", 1},
		{"partial byte and element", [][]byte{omftest.Num(20), omftest.Idx(0x82)}, "long[0]", 2},
		{"word index", [][]byte{omftest.Num(32), omftest.Idx(0x84), omftest.Idx(0x85)}, "unsigned char[4]", 0},
		{"real index", [][]byte{omftest.Num(32), omftest.Idx(0x84), omftest.Idx(0x88)}, "unsigned char[4]", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &unit{}
			a := u.types.Add(LeafArray, tt.body...)
			h, tb, fetch := decoder(t, u)
			if got := h.db.TypeString(tb, fetch(a)); got != tt.want {
				t.Errorf("type = %q, want %q", got, tt.want)
			}
			if got := h.messages(Warning); len(got) != tt.warnings {
				t.Errorf("warnings = %q, want %d", got, tt.warnings)
			}
			if errs := h.messages(Error); len(errs) != 0 {
				t.Errorf("errors = %q", errs)
			}
		})
	}
}

func TestStringType(t *testing.T) {
	u := &unit{}
	s := u.types.Add(LeafStringType, omftest.Num(80))
	h, tb, fetch := decoder(t, u)
	if got := h.db.TypeString(tb, fetch(s)); got != "char[10]" {
		t.Errorf("type = %q, want char[10]", got)
	}
}

func TestTypedefTags(t *testing.T) {
	u := &unit{}
	p := u.types.Add(LeafPointer, []byte{LeafNearPtr}, omftest.Idx(0x81), omftest.Str("PSHORT"))
	a := u.types.Add(LeafArray, omftest.Num(96), omftest.Idx(0x82), omftest.Nil, omftest.Str("VEC3"))
	h, _, fetch := decoder(t, u)
	fetch(p)
	fetch(a)
	n := h.db.Global.Syms.Len()
	fetch(p)
	if h.db.Global.Syms.Len() != n {
		t.Error("decoding a tagged pointer twice registered more names")
	}

	for name, want := range map[string]string{"PSHORT": "near ptr to short", "VEC3": "long[3]"} {
		s, _, tb := h.global(name)
		if s.Kind != obj.SymTypedef {
			t.Errorf("%s kind = %v, want typedef", name, s.Kind)
		}
		if got := h.db.TypeString(tb, s.Type); got != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestTypedef(t *testing.T) {
	u := &unit{}
	td := u.types.Add(LeafTypedef, omftest.Idx(0x85), omftest.Str("WORD"))
	h, tb, fetch := decoder(t, u)
	if got := h.db.TypeString(tb, fetch(td)); got != "WORD" {
		t.Errorf("type = %q, want WORD", got)
	}
	s, _, stb := h.global("WORD")
	if s.Kind != obj.SymTypedef || h.db.TypeString(stb, s.Type) != "unsigned short" {
		t.Errorf("WORD = %v %q", s.Kind, h.db.TypeString(stb, s.Type))
	}
}

func TestTypedefLoopTerminates(t *testing.T) {
	u := &unit{}
	loop := u.types.Add(LeafTypedef, omftest.Idx(omftest.FirstUserType), omftest.Str("LOOP"))
	h, _, fetch := decoder(t, u)
	fetch(loop)
	if !slices.ContainsFunc(h.messages(Error), func(m string) bool { return strings.Contains(m, "too deep") }) {
		t.Errorf("errors = %q, want a nesting error", h.messages(Error))
	}
}

func TestEnum(t *testing.T) {
	u := &unit{}
	members := u.types.Add(LeafList,
		omftest.Str("red"), omftest.Num(0),
		omftest.Str("green"), omftest.Num(1),
		omftest.Str("blue"), omftest.Num(-1))
	e := u.types.Add(LeafScalar, omftest.Num(16), []byte{LeafSigned}, omftest.Str("color"), omftest.Idx(members))
	plain := u.types.Add(LeafScalar, omftest.Num(16), []byte{LeafUnsigned})

	h, tb, fetch := decoder(t, u)
	if got := h.db.TypeString(tb, fetch(e)); got != "enum color" {
		t.Errorf("type = %q, want enum color", got)
	}
	if got := h.db.TypeString(tb, fetch(plain)); got != "unsigned short" {
		t.Errorf("plain scalar = %q", got)
	}

	head, syms, _ := h.global("color")
	if head.Kind != obj.SymEType || head.Size != 2 {
		t.Errorf("head = %v size %d", head.Kind, head.Size)
	}
	got := map[string]int32{}
	for _, s := range syms {
		got[h.str(s.Name)] = s.Value
	}
	if diff := cmp.Diff(map[string]int32{"red": 0, "green": 1, "blue": -1}, got); diff != "" {
		t.Errorf("members mismatch (-want +got):\n%s", diff)
	}
}

func TestAnonymousEnumReuse(t *testing.T) {
	u := &unit{}
	var enums []uint16
	for range 2 {
		l := u.types.Add(LeafList, omftest.Str("OFF"), omftest.Num(0), omftest.Str("ON"), omftest.Num(1))
		enums = append(enums, u.types.Add(LeafScalar, omftest.Num(16), []byte{LeafSigned}, omftest.Idx(l)))
	}
	h, tb, fetch := decoder(t, u)
	a := h.db.TypeString(tb, fetch(enums[0]))
	b := h.db.TypeString(tb, fetch(enums[1]))
	if a != b || !strings.HasPrefix(a, "enum ??anon") {
		t.Errorf("anonymous enums named %q and %q", a, b)
	}
	if w := h.messages(Warning); len(w) != 0 {
		t.Errorf("warnings = %q", w)
	}
}

func TestAnonymousStructReuse(t *testing.T) {
	u := &unit{}
	f := []field{{"lo", 0, omftest.Idx(0x85)}, {"hi", 2, omftest.Idx(0x85)}}
	a := structure(&u.types, "", 32, f)
	b := structure(&u.types, untagged, 32, f)
	h, tb, fetch := decoder(t, u)
	na := h.db.TypeString(tb, fetch(a))
	nb := h.db.TypeString(tb, fetch(b))
	if na != nb || !strings.HasPrefix(na, "struct ??anon") {
		t.Errorf("anonymous structures named %q and %q", na, nb)
	}
}

func TestUnsupportedTypeClass(t *testing.T) {
	u := &unit{}
	bad := u.types.Add(0x70, omftest.Num(1))
	h, _, fetch := decoder(t, u)
	if w := fetch(bad); w != obj.Void {
		t.Errorf("type = %#x, want void", uint16(w))
	}
	if errs := h.messages(Error); len(errs) != 1 || !strings.Contains(errs[0], "0x70") {
		t.Errorf("errors = %q", errs)
	}
}

func TestResidualSweep(t *testing.T) {
	u := &unit{}
	u.types.Add(LeafTypedef, omftest.Idx(0x81), omftest.Str("INT16"))
	structure(&u.types, "orphan", 16, []field{{"x", 0, omftest.Idx(0x81)}})
	h := load(t, u)
	for _, name := range []string{"INT16", "orphan"} {
		h.find(h.db.Global, name)
	}
}

func TestQwordLeafIsFatal(t *testing.T) {
	u := &unit{}
	u.types.Add(LeafStructure, []byte{LeafQword}, make([]byte, 8), omftest.Num(0))
	h := open(t, u.object())
	err := h.d.EndFile(true)
	if !errors.Is(err, ErrInvariant) {
		t.Fatalf("EndFile = %v, want an invariant error", err)
	}
	var pe *ParseError
	if !errors.As(err, &pe) || pe.File != "test.obj" {
		t.Errorf("error %v is not a ParseError for test.obj", err)
	}
	if h.d.ctx != nil {
		t.Error("file state survived EndFile")
	}
	if h.db.VM.Len() != 0 {
		t.Errorf("%d blocks left after teardown", h.db.VM.Len())
	}
}
