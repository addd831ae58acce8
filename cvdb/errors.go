// Package cvdb builds a symbol and type database from the CodeView debug
// information in OMF object files, saves it, and answers queries against a
// saved database.
package cvdb

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNoModEnd indicates an object module ended without a MODEND record.
	ErrNoModEnd = errors.New("cvdb: object module has no MODEND record")

	// ErrSymbolNotFound indicates a lookup matched no symbol.
	ErrSymbolNotFound = errors.New("cvdb: symbol not found")

	// ErrSegmentNotFound indicates a segment name matched no segment.
	ErrSegmentNotFound = errors.New("cvdb: segment not found")
)

// ParseError provides detailed information about a failure to load one
// object file.
type ParseError struct {
	File    string // Object file being loaded
	Offset  int64  // Byte offset within the file, or -1
	Message string // Description of the error
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("cvdb: %s: %s: %v", e.File, e.Message, e.Err)
	}
	return fmt.Sprintf("cvdb: %s at offset 0x%x: %s: %v", e.File, e.Offset, e.Message, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
