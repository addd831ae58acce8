package omf_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/skdltmxn/cvdb-go/internal/omf"
	"github.com/skdltmxn/cvdb-go/internal/omf/omftest"
)

func readAll(t *testing.T, data []byte) ([]*omf.Record, error) {
	t.Helper()
	rd := omf.NewReader(bytes.NewReader(data))
	var recs []*omf.Record
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
}

func TestReaderFraming(t *testing.T) {
	o := omftest.NewObject("test.c")
	o.LNames("", "_TEXT", "CODE")
	o.ModEnd()

	recs, err := readAll(t, o.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(o.Records(), recs); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestReaderErrors(t *testing.T) {
	good := omftest.Frame(omf.THEADR, omftest.PString("a.c"))

	badSum := bytes.Clone(good)
	badSum[len(badSum)-1]++

	noSum := bytes.Clone(good)
	noSum[len(noSum)-1] = 0

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"not an object", omftest.Frame(omf.LNAMES, omftest.PString("x")), omf.ErrNotObject},
		{"bad checksum", badSum, omf.ErrBadChecksum},
		{"truncated", good[:len(good)-2], omf.ErrTruncatedRecord},
		{"zero checksum", noSum, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readAll(t, tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRecordTypeString(t *testing.T) {
	tests := map[omf.RecordType]string{
		omf.PUBDEF:           "PUBDEF",
		omf.PUBDEF32:         "PUBDEF32",
		omf.LEDATA32:         "LEDATA32",
		omf.RecordType(0xF0): "RECORD(0xF0)",
	}
	for typ, want := range tests {
		if got := typ.String(); got != want {
			t.Errorf("%#x.String() = %q, want %q", uint8(typ), got, want)
		}
	}
}
