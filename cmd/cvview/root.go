package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/skdltmxn/cvdb-go/cvdb"
)

var (
	outputFile string
	output     io.Writer

	quiet              bool
	maxScopes          int
	maxBlockSyms       int
	sharedPrefix       string
	lmemClass          string
	procRelativeBlocks bool
	nameRules          = nameRulesFlag(cvdb.DefaultNameRules)
)

var rootCmd = &cobra.Command{
	Use:   "cvview",
	Short: "CodeView debug information viewer",
	Long: `cvview builds a symbol and type database from the CodeView debug
information in OMF object files, and displays its segments, symbols and
types.

Commands that read a database accept either a saved database (.cvdb) or
one or more object files, which are loaded first.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if outputFile != "" {
			f, err := os.Create(outputFile)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			output = f
		} else {
			output = os.Stdout
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if f, ok := output.(*os.File); ok && f != os.Stdout {
			f.Close()
		}
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&outputFile, "output", "o", "", "write output to file instead of stdout")
	flags.BoolVarP(&quiet, "quiet", "q", false, "do not print decoder diagnostics")
	flags.IntVar(&maxScopes, "max-scopes", cvdb.DefaultMaxScopes, "maximum nesting of procedures and blocks")
	flags.IntVar(&maxBlockSyms, "max-block-syms", cvdb.DefaultMaxBlockSyms, "symbols per address block before a new block is started")
	flags.StringVar(&sharedPrefix, "shared-prefix", cvdb.DefaultSharedClassPrefix, "segment name prefix whose variables are always global")
	flags.StringVar(&lmemClass, "lmem-class", cvdb.DefaultLMemClass, "segment class of local-memory heaps")
	flags.BoolVar(&procRelativeBlocks, "proc-relative-blocks", false, "block addresses are relative to their procedure")
	flags.Var(&nameRules, "name-rules", "how public names match CodeView names (exact, underscore, foldcase, stdcall)")

	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(symbolsCmd)
	rootCmd.AddCommand(typesCmd)
	rootCmd.AddCommand(lookupCmd)
	rootCmd.AddCommand(dumpCmd)
}

// nameRulesFlag parses --name-rules.
type nameRulesFlag cvdb.NameRule

var _ pflag.Value = (*nameRulesFlag)(nil)

func (f *nameRulesFlag) String() string {
	return cvdb.NameRule(*f).String()
}

func (f *nameRulesFlag) Set(s string) error {
	r, ok := cvdb.ParseNameRules(s)
	if !ok {
		return fmt.Errorf("unknown name rule in %q", s)
	}
	*f = nameRulesFlag(r)
	return nil
}

func (f *nameRulesFlag) Type() string {
	return "rules"
}

func newSession() *cvdb.Session {
	return cvdb.New(
		cvdb.WithMaxScopes(maxScopes),
		cvdb.WithMaxBlockSyms(maxBlockSyms),
		cvdb.WithSharedClassPrefix(sharedPrefix),
		cvdb.WithLMemClass(lmemClass),
		cvdb.WithProcRelativeBlocks(procRelativeBlocks),
		cvdb.WithNameRules(cvdb.NameRule(nameRules)),
		cvdb.WithNotify(func(d cvdb.Diagnostic) {
			if !quiet {
				log.Print(d)
			}
		}),
	)
}

// loadObjects loads every object file in paths into a new session.
func loadObjects(paths []string) (*cvdb.Session, error) {
	s := newSession()
	for _, path := range paths {
		if err := s.LoadFile(path); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// openDatabase opens a saved database, or builds one from object files.
func openDatabase(args []string) (*cvdb.Database, error) {
	if len(args) == 1 && strings.EqualFold(filepath.Ext(args[0]), ".cvdb") {
		db, err := cvdb.OpenDatabase(args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return db, nil
	}
	s, err := loadObjects(args)
	if err != nil {
		return nil, fmt.Errorf("failed to load objects: %w", err)
	}
	return s.Database(), nil
}
