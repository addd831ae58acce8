package cvdb_test

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/skdltmxn/cvdb-go/cvdb"
	"github.com/skdltmxn/cvdb-go/internal/codeview"
	"github.com/skdltmxn/cvdb-go/internal/omf"
	"github.com/skdltmxn/cvdb-go/internal/omf/omftest"
)

// pointObject encodes a module with a struct point and a variable origin
// of that type.
func pointObject() []byte {
	var types omftest.Types
	tl := types.Add(codeview.LeafList, omftest.Idx(0x81), omftest.Idx(0x81))
	nl := types.Add(codeview.LeafList, omftest.Str("x"), omftest.Num(0), omftest.Str("y"), omftest.Num(2))
	point := types.Add(codeview.LeafStructure, omftest.Num(32), omftest.Num(2),
		omftest.Idx(tl), omftest.Idx(nl), omftest.Str("point"))

	var syms omftest.Symbols
	v := syms.Add(codeview.SymVariable, omftest.U16(0), omftest.U16(0), omftest.U16(point), omftest.PString("origin"))
	syms.Add(codeview.SymCodeLabel, omftest.U16(0), []byte{0}, omftest.PString("start"))

	o := omftest.NewObject("point.c")
	n := o.LNames("", "_TEXT", "CODE", "_DATA", "DATA", codeview.TypesSegment, "DEBTYP", codeview.SymbolsSegment, "DEBSYM")
	o.SegDef(n+1, n+2, omf.CombinePublic, 0x10)
	o.SegDef(n+3, n+4, omf.CombinePublic, 0x10)
	o.SegDef(n+5, n+6, omf.CombinePrivate, uint16(len(types.Bytes())))
	o.SegDef(n+7, n+8, omf.CombinePrivate, syms.Len())
	o.LPubDef(segText, omftest.Pub{Name: "start", Offset: 6})
	o.LEData(3, 0, types.Bytes())
	o.LEData(segSyms, 0, syms.Bytes())
	o.Fixupp(omftest.FixupSeg(v, segData, 8))
	o.ModEnd()
	return o.Bytes()
}

func pointDatabase(t *testing.T) *cvdb.Database {
	t.Helper()
	s := cvdb.New()
	if err := s.Load("point.obj", bytes.NewReader(pointObject())); err != nil {
		t.Fatal(err)
	}
	if d := s.Diagnostics(); len(d) != 0 {
		t.Fatalf("diagnostics = %v", d)
	}
	return s.Database()
}

func TestTypes(t *testing.T) {
	db := pointDatabase(t)
	types := slices.Collect(db.Types())
	if len(types) != 1 || types[0].Name != "point" || types[0].Kind != cvdb.KindStruct || types[0].Size != 4 {
		t.Fatalf("types = %+v", types)
	}
	fields, err := db.Children(types[0])
	if err != nil {
		t.Fatal(err)
	}
	type member struct {
		Name   string
		Offset int32
		Type   string
	}
	var got []member
	for _, f := range fields {
		got = append(got, member{f.Name, f.Offset, f.Type})
	}
	want := []member{{"x", 0, "short"}, {"y", 2, "short"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestSymbols(t *testing.T) {
	db := pointDatabase(t)

	data, err := db.Symbols("_DATA")
	if err != nil {
		t.Fatal(err)
	}
	vars := slices.Collect(data)
	if len(vars) != 1 {
		t.Fatalf("_DATA symbols = %+v", vars)
	}
	if v := vars[0]; v.Name != "origin" || v.Type != "struct point" || v.Size != 4 || v.Address != 8 || v.Global {
		t.Errorf("origin = %+v", v)
	}

	label := lookup(t, db, "start")
	if label.Kind != cvdb.KindLabel || label.Address != 6 || !label.Near || label.Global {
		t.Errorf("start = %+v", label)
	}

	var names []string
	for s := range db.AllSymbols() {
		names = append(names, s.Segment+":"+s.Name)
	}
	if diff := cmp.Diff([]string{"_TEXT:start", "_DATA:origin"}, names); diff != "" {
		t.Errorf("symbols mismatch (-want +got):\n%s", diff)
	}

	if _, err := db.Symbols("_BSS"); !errors.Is(err, cvdb.ErrSegmentNotFound) {
		t.Errorf("Symbols(_BSS) = %v", err)
	}
}

func TestByAddress(t *testing.T) {
	db := pointDatabase(t)
	at, err := db.ByAddress("_DATA", 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(at) != 1 || at[0].Name != "origin" {
		t.Errorf("ByAddress(_DATA, 8) = %+v", at)
	}
	if at, _ := db.ByAddress("_DATA", 9); len(at) != 0 {
		t.Errorf("ByAddress(_DATA, 9) = %+v", at)
	}
}

func TestStats(t *testing.T) {
	st := pointDatabase(t).Stats()
	if st.Segments != 2 || st.Symbols != 2 || st.Types != 1 || st.Blocks == 0 {
		t.Errorf("stats = %+v", st)
	}
}
