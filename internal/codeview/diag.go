package codeview

import "fmt"

// Severity grades a diagnostic.
type Severity uint8

// Severities
const (
	// Warning means a default was substituted and decoding continued.
	Warning Severity = iota + 1

	// Error means the symbol or type at hand was abandoned.
	Error
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return "unknown"
}

// Diagnostic is one message produced while decoding a file.
type Diagnostic struct {
	Severity Severity
	File     string

	// Offset is the position in the debug segment being decoded, or -1.
	Offset int

	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.File, d.Severity, d.Message)
}

func (d *Decoder) report(sev Severity, off int, format string, args ...any) {
	diag := Diagnostic{
		Severity: sev,
		Offset:   off,
		Message:  fmt.Sprintf(format, args...),
	}
	if d.ctx != nil {
		diag.File = d.ctx.file
	}
	d.diags = append(d.diags, diag)
	if d.opts.notify != nil {
		d.opts.notify(diag)
	}
}

func (d *Decoder) warnf(off int, format string, args ...any) {
	d.report(Warning, off, format, args...)
}

func (d *Decoder) errorf(off int, format string, args ...any) {
	d.report(Error, off, format, args...)
}
