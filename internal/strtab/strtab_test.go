package strtab

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEnter(t *testing.T) {
	tab := New()
	a := tab.Enter("foo")
	b := tab.Enter("bar")
	if a == b {
		t.Fatalf("distinct strings share ID %d", a)
	}
	if got := tab.Enter("foo"); got != a {
		t.Errorf("Enter(foo) again = %d, want %d", got, a)
	}
	if got := tab.Enter(""); got != NullID {
		t.Errorf("Enter(\"\") = %d, want NullID", got)
	}
	if got := tab.String(b); got != "bar" {
		t.Errorf("String(%d) = %q, want bar", b, got)
	}
	if got := tab.String(99); got != "" {
		t.Errorf("String(99) = %q, want empty", got)
	}
	if _, ok := tab.Lookup("baz"); ok {
		t.Error("Lookup(baz) found an unentered string")
	}
}

func TestMarshal(t *testing.T) {
	tab := New()
	for _, s := range []string{"main", "_main", "??block0"} {
		tab.Enter(s)
	}
	data, err := tab.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(tab.strs, got.strs); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	if id, _ := got.Lookup("_main"); id != 2 {
		t.Errorf("Lookup(_main) = %d, want 2", id)
	}

	if _, err := Unmarshal(data[:len(data)-1]); err == nil {
		t.Error("Unmarshal accepted truncated data")
	}
}
