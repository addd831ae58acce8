package codeview

import (
	"errors"
	"fmt"
)

// Errors
var (
	// ErrCorruptSymbols is returned when a symbol record overruns the
	// symbol segment.
	ErrCorruptSymbols = errors.New("codeview: corrupt symbol segment")

	// ErrInvariant wraps every InvariantError.
	ErrInvariant = errors.New("codeview: invariant violated")
)

// InvariantError reports an encoding the decoder cannot represent at all.
// It is raised as a panic inside the decoder and returned from EndFile.
type InvariantError struct {
	Message string
}

func (e *InvariantError) Error() string {
	return "codeview: " + e.Message
}

// Unwrap returns ErrInvariant.
func (e *InvariantError) Unwrap() error {
	return ErrInvariant
}

func invariantf(format string, args ...any) *InvariantError {
	return &InvariantError{Message: fmt.Sprintf(format, args...)}
}

// must panics with an InvariantError when err is set. It is used for
// arena operations whose failure means the decoder's own state is broken.
func must(err error) {
	if err != nil {
		panic(invariantf("arena: %v", err))
	}
}

// ParseError describes a fatal failure while processing one object file.
type ParseError struct {
	File   string
	Offset int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s: offset 0x%x: %v", e.File, e.Offset, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}
