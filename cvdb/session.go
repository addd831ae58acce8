package cvdb

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/skdltmxn/cvdb-go/internal/codeview"
	"github.com/skdltmxn/cvdb-go/internal/obj"
	"github.com/skdltmxn/cvdb-go/internal/omf"
)

// Session loads object files into a database. Files are processed one at
// a time, in the order they are loaded; segments with the same name and
// class accumulate the contributions of every file.
type Session struct {
	db    *obj.Database
	dec   *codeview.Decoder
	cfg   config
	files []string
}

// New returns a session with an empty database.
func New(opts ...Option) *Session {
	cfg := buildConfig(opts...)
	db := obj.NewDatabase()
	return &Session{
		db:  db,
		dec: codeview.New(db, cfg.decoder...),
		cfg: cfg,
	}
}

// LoadFile loads the object file at path.
func (s *Session) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cvdb: failed to open file: %w", err)
	}
	defer f.Close()
	return s.Load(path, f)
}

// Load reads one object module from r. name identifies the file in
// diagnostics and errors. Malformed debug information is reported through
// Diagnostics; an error is returned only when the file could not be read
// as an object module or its debug information could not be decoded at
// all.
func (s *Session) Load(name string, r io.Reader) error {
	mod := omf.NewModule()
	s.dec.BeginFile(name, mod, 1)

	l := &loader{s: s, name: name, mod: mod}
	err := l.run(omf.NewReader(r))
	if endErr := s.dec.EndFile(err == nil); err == nil && endErr != nil {
		err = &ParseError{File: name, Offset: -1, Message: "decoding debug information", Err: endErr}
	}
	if err != nil {
		return err
	}
	s.files = append(s.files, name)
	return nil
}

// Files returns the names of the files loaded successfully.
func (s *Session) Files() []string {
	return s.files
}

// Diagnostics returns every diagnostic produced so far.
func (s *Session) Diagnostics() []Diagnostic {
	return s.dec.Diagnostics()
}

// Database returns a query view of the database being built.
func (s *Session) Database() *Database {
	return &Database{db: s.db}
}

// Save writes the database to w.
func (s *Session) Save(w io.Writer) error {
	return s.db.Save(w)
}

// SaveFile writes the database to path.
func (s *Session) SaveFile(path string) error {
	if err := s.db.SaveFile(path); err != nil {
		return fmt.Errorf("cvdb: failed to save database: %w", err)
	}
	return nil
}

// loader drives the records of one object module through the decoder and
// maintains the regular segments they define.
type loader struct {
	s    *Session
	name string
	mod  *omf.Module

	// segs holds the segment of each SEGDEF in order, nil for the debug
	// segments the decoder keeps.
	segs []*obj.Segment
}

func (l *loader) run(rd *omf.Reader) error {
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return &ParseError{File: l.name, Offset: -1, Message: "reading records", Err: ErrNoModEnd}
		}
		if err != nil {
			return &ParseError{File: l.name, Offset: -1, Message: "reading records", Err: err}
		}
		if err := l.record(rec); err != nil {
			return &ParseError{File: l.name, Offset: rec.Offset, Message: rec.Type.String(), Err: err}
		}
		if rec.Type.Base() == omf.MODEND {
			return nil
		}
	}
}

func (l *loader) record(rec *omf.Record) error {
	used, err := l.s.dec.Offer(rec)
	if err != nil {
		return err
	}
	if rec.Type.Base() == omf.SEGDEF {
		if used {
			l.segs = append(l.segs, nil)
		} else if err := l.segDef(rec); err != nil {
			return err
		}
	}
	if err := l.mod.Observe(rec); err != nil {
		return err
	}
	if rec.Type.Base() == omf.GRPDEF {
		l.group(l.mod.Groups[len(l.mod.Groups)-1])
	}
	return nil
}

func (l *loader) segDef(rec *omf.Record) error {
	def, err := l.mod.DecodeSegDef(rec)
	if err != nil {
		return err
	}
	db := l.s.db
	name, class := db.Strings.Enter(def.Name), db.Strings.Enter(def.Class)
	seg := db.FindSegment(name, class)
	if seg == nil {
		seg = obj.NewSegment(name, class, l.s.combine(def))
		db.AddSegment(seg)
	}
	seg.Contribute(def.Size, alignment(def.Align))
	l.segs = append(l.segs, seg)
	l.s.dec.AddSegment(seg)
	return nil
}

// group records the membership of the segments g names.
func (l *loader) group(g *omf.GrpDef) {
	name := l.s.db.Strings.Enter(g.Name)
	for i, idx := range g.Segments {
		if idx == 0 || int(idx) > len(l.segs) || l.segs[idx-1] == nil {
			continue
		}
		seg := l.segs[idx-1]
		seg.Group = name
		seg.GroupOrder = i + 1
	}
}

func (s *Session) combine(def *omf.SegDef) obj.Combine {
	if def.Align == omf.AlignAbsolute {
		return obj.CombineAbsolute
	}
	if def.Class == s.cfg.lmem {
		return obj.CombineLMem
	}
	switch def.Combine {
	case omf.CombinePrivate:
		return obj.CombinePrivate
	case omf.CombineStack:
		return obj.CombineStack
	case omf.CombineCommon:
		return obj.CombineCommon
	}
	return obj.CombinePublic
}

func alignment(a uint8) uint32 {
	switch a {
	case omf.AlignWord:
		return 2
	case omf.AlignDword:
		return 4
	case omf.AlignPara:
		return 16
	case omf.AlignPage:
		return 256
	}
	return 1
}
