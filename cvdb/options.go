package cvdb

import "github.com/skdltmxn/cvdb-go/internal/codeview"

// Diagnostic is a warning or error produced while decoding a file.
type Diagnostic = codeview.Diagnostic

// Severity grades a Diagnostic.
type Severity = codeview.Severity

// Severities
const (
	SeverityWarning = codeview.Warning
	SeverityError   = codeview.Error
)

// NameRule is a set of ways a public definition's name may differ from
// the CodeView name it stands for.
type NameRule = codeview.NameRule

// Name rules
const (
	MatchExact      = codeview.MatchExact
	MatchUnderscore = codeview.MatchUnderscore
	MatchFoldCase   = codeview.MatchFoldCase
	MatchStdcall    = codeview.MatchStdcall

	DefaultNameRules = codeview.DefaultNameRules
)

// ParseNameRules parses rule names (exact, underscore, foldcase, stdcall)
// separated by commas or bars.
func ParseNameRules(s string) (NameRule, bool) {
	return codeview.ParseNameRules(s)
}

// Option configures a Session.
type Option func(*config)

type config struct {
	decoder []codeview.Option
	lmem    string
}

// Defaults
const (
	DefaultMaxScopes         = codeview.DefaultMaxScopes
	DefaultMaxBlockSyms      = codeview.DefaultMaxBlockSyms
	DefaultSharedClassPrefix = codeview.DefaultSharedClassPrefix

	// DefaultLMemClass is the segment class that marks local-memory heaps.
	DefaultLMemClass = "LMEM"
)

func buildConfig(opts ...Option) config {
	c := config{lmem: DefaultLMemClass}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithMaxScopes sets how deeply procedures and blocks may nest.
func WithMaxScopes(n int) Option {
	return func(c *config) {
		c.decoder = append(c.decoder, codeview.WithMaxScopes(n))
	}
}

// WithMaxBlockSyms sets how many symbols an address block holds before a
// new one is started.
func WithMaxBlockSyms(n int) Option {
	return func(c *config) {
		c.decoder = append(c.decoder, codeview.WithMaxBlockSyms(n))
	}
}

// WithNameRules sets how public names are matched to CodeView names.
func WithNameRules(r NameRule) Option {
	return func(c *config) {
		c.decoder = append(c.decoder, codeview.WithNameRules(r))
	}
}

// WithSharedClassPrefix sets the segment name prefix whose variables are
// always global.
func WithSharedClassPrefix(p string) Option {
	return func(c *config) {
		c.decoder = append(c.decoder, codeview.WithSharedClassPrefix(p))
	}
}

// WithProcRelativeBlocks makes block addresses relative to their
// procedure.
func WithProcRelativeBlocks(enabled bool) Option {
	return func(c *config) {
		c.decoder = append(c.decoder, codeview.WithProcRelativeBlocks(enabled))
	}
}

// WithNotify sets a function called with every diagnostic as it is
// produced.
func WithNotify(fn func(Diagnostic)) Option {
	return func(c *config) {
		c.decoder = append(c.decoder, codeview.WithNotify(fn))
	}
}

// WithLMemClass sets the segment class that marks local-memory heaps.
func WithLMemClass(class string) Option {
	return func(c *config) {
		c.lmem = class
	}
}
