package codeview

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/skdltmxn/cvdb-go/internal/omf"
	"github.com/skdltmxn/cvdb-go/internal/omf/omftest"
)

func TestFixupUsesThreadsOfItsPosition(t *testing.T) {
	u := &unit{}
	v := varRec(&u.syms, 0x81, "x")
	u.fixups = [][]byte{omftest.FixupThread(v, 0, 6)}
	u.defs = func(o *omftest.Object) {
		o.LEData(segText, 0, []byte{0x90})
		o.Fixupp(omftest.TargetThread(0, omf.TargetSegment, segData))
	}
	u.tail = func(o *omftest.Object) {
		o.Fixupp(omftest.TargetThread(0, omf.TargetSegment, segText))
	}
	h := load(t, u)
	if errs := h.messages(Error); len(errs) != 0 {
		t.Fatalf("errors = %q", errs)
	}
	if _, s := h.find(h.segment(segData), "x"); s.Address != 6 {
		t.Errorf("x = %+v", s)
	}
}

func TestExternalFixup(t *testing.T) {
	u := &unit{}
	v := varRec(&u.syms, 0x81, "buf")
	lost := varRec(&u.syms, 0x81, "lost")
	u.fixups = [][]byte{
		omftest.FixupExt(v, 1, 2),
		omftest.FixupExt(lost, 2, 0),
	}
	u.defs = func(o *omftest.Object) {
		o.ExtDef("_storage", "_elsewhere")
		o.PubDef(segData, omftest.Pub{Name: "_storage", Offset: 0x10})
	}
	h := load(t, u)
	if diff := cmp.Diff([]string{"cannot determine segment and offset for variable lost"}, h.messages(Error)); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
	if _, s := h.find(h.segment(segData), "buf"); s.Address != 0x12 {
		t.Errorf("buf at %#x, want 0x12", s.Address)
	}
}

func TestGroupFixupUnsupported(t *testing.T) {
	u := &unit{}
	v := varRec(&u.syms, 0x81, "x")
	u.fixups = [][]byte{omftest.FixupGroup(v, 1)}
	u.defs = func(o *omftest.Object) {
		o.GrpDef(o.LNames("DGROUP"), segData)
	}
	h := load(t, u)
	want := []string{
		fmt.Sprintf("unsupported codeview-symbol fixup target %d", omf.TargetGroup),
		"cannot determine segment and offset for variable x",
	}
	if diff := cmp.Diff(want, h.messages(Error)); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestLocatePublic(t *testing.T) {
	u := &unit{}
	u.defs = func(o *omftest.Object) {
		o.PubDef(segData, omftest.Pub{Name: "_x", Offset: 2})
		o.PubDef(segData, omftest.Pub{Name: "_x", Offset: 4})
		o.LPubDef(segText, omftest.Pub{Name: "y", Offset: 8})
		o.ComDef("_z", 2)
	}

	type result struct {
		Found bool
		Seg   string
		Off   uint32
		Real  bool
		Alias string
	}
	tests := []struct {
		name  string
		rules NameRule
		want  result
	}{
		{"x", DefaultNameRules, result{true, "_DATA", 4, true, "_x"}},
		{"_x", DefaultNameRules, result{true, "_DATA", 4, true, "_x"}},
		{"y", DefaultNameRules, result{true, "_TEXT", 8, false, "y"}},
		{"z", DefaultNameRules, result{true, "", 0, true, "_z"}},
		{"w", DefaultNameRules, result{}},
		{"x", MatchExact, result{}},
		{"X", DefaultNameRules | MatchFoldCase, result{true, "_DATA", 4, true, "_x"}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%v", tt.name, tt.rules), func(t *testing.T) {
			h := open(t, u.object(), WithNameRules(tt.rules))
			defer h.d.EndFile(false)

			pub, ok := h.d.locatePublic(h.db.Strings.Enter(tt.name))
			got := result{Found: ok}
			if ok {
				got.Off, got.Real, got.Alias = pub.off, pub.real, h.str(pub.alias)
				if pub.seg != nil {
					got.Seg = h.str(pub.seg.Name)
				}
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("locatePublic mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
