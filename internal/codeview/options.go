package codeview

// Defaults
const (
	DefaultMaxScopes         = 32
	DefaultMaxBlockSyms      = 128
	DefaultSharedClassPrefix = "_CLASSSEG_"
)

// Option configures a Decoder.
type Option func(*options)

type options struct {
	maxScopes          int
	maxBlockSyms       int
	nameRules          NameRule
	sharedClassPrefix  string
	procRelativeBlocks bool
	notify             func(Diagnostic)
}

func buildOptions(opts ...Option) options {
	o := options{
		maxScopes:         DefaultMaxScopes,
		maxBlockSyms:      DefaultMaxBlockSyms,
		nameRules:         DefaultNameRules,
		sharedClassPrefix: DefaultSharedClassPrefix,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithMaxScopes sets the depth of the lexical scope stack.
func WithMaxScopes(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxScopes = n
		}
	}
}

// WithMaxBlockSyms sets how many symbols an address block may hold before a
// new block is started for a different segment.
func WithMaxBlockSyms(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBlockSyms = n
		}
	}
}

// WithNameRules sets how public names are matched against CodeView names.
func WithNameRules(r NameRule) Option {
	return func(o *options) {
		o.nameRules = r | MatchExact
	}
}

// WithSharedClassPrefix sets the segment name prefix that marks variables
// as globally visible.
func WithSharedClassPrefix(p string) Option {
	return func(o *options) {
		o.sharedClassPrefix = p
	}
}

// WithProcRelativeBlocks makes block start addresses relative to the
// enclosing procedure, as some producers emit them.
func WithProcRelativeBlocks(enabled bool) Option {
	return func(o *options) {
		o.procRelativeBlocks = enabled
	}
}

// WithNotify sets a function called for every diagnostic as it is produced.
func WithNotify(fn func(Diagnostic)) Option {
	return func(o *options) {
		o.notify = fn
	}
}
