package main

import (
	"fmt"
	"iter"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/cvdb-go/cvdb"
)

var (
	symbolsSegment string
	symbolsKind    string
	symbolsLimit   int
	symbolsLocals  bool
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols <database | object-file...>",
	Short: "List symbols",
	Long: `List the procedures, variables and labels bound in each segment.

Use --segment to list one segment, --kind to filter by symbol kind
(proc, var, label, ...) and --locals to show the locals of procedures.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSymbols,
}

func init() {
	symbolsCmd.Flags().StringVarP(&symbolsSegment, "segment", "s", "", "list only this segment")
	symbolsCmd.Flags().StringVarP(&symbolsKind, "kind", "k", "", "filter by symbol kind")
	symbolsCmd.Flags().IntVarP(&symbolsLimit, "limit", "n", 0, "limit number of symbols shown (0 = unlimited)")
	symbolsCmd.Flags().BoolVarP(&symbolsLocals, "locals", "l", false, "show locals of procedures and blocks")
}

var symbolKinds = []cvdb.SymbolKind{
	cvdb.KindProc, cvdb.KindBlockStart, cvdb.KindBlockEnd, cvdb.KindLocalVar,
	cvdb.KindVar, cvdb.KindLabel, cvdb.KindLocalLabel, cvdb.KindRegVar,
	cvdb.KindTypedef, cvdb.KindStruct, cvdb.KindUnion, cvdb.KindEnumType,
	cvdb.KindField, cvdb.KindEnum, cvdb.KindReturnType, cvdb.KindLocalStatic,
}

func parseKind(s string) (cvdb.SymbolKind, error) {
	s = strings.ToLower(s)
	if s == "enum" {
		return cvdb.KindEnumType, nil
	}
	for _, k := range symbolKinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown symbol kind: %s", s)
}

func runSymbols(cmd *cobra.Command, args []string) error {
	db, err := openDatabase(args)
	if err != nil {
		return err
	}

	var kind cvdb.SymbolKind
	if symbolsKind != "" {
		if kind, err = parseKind(symbolsKind); err != nil {
			return err
		}
	}

	var syms iter.Seq[*cvdb.Symbol]
	if symbolsSegment != "" {
		if syms, err = db.Symbols(symbolsSegment); err != nil {
			return err
		}
	} else {
		syms = db.AllSymbols()
	}

	fmt.Fprintf(output, "%-12s %-12s %-10s %-6s %s\n", "KIND", "SEGMENT", "ADDRESS", "FLAGS", "NAME")
	fmt.Fprintf(output, "%s\n", strings.Repeat("-", 70))

	count := 0
	for sym := range syms {
		if kind != 0 && sym.Kind != kind {
			continue
		}
		printSymbol(sym, 0)
		if symbolsLocals {
			if err := printChildren(db, sym, 1); err != nil {
				return err
			}
		}
		count++
		if symbolsLimit > 0 && count >= symbolsLimit {
			break
		}
	}

	fmt.Fprintf(output, "\nTotal: %d symbols\n", count)
	return nil
}

func symbolFlags(s *cvdb.Symbol) string {
	var b strings.Builder
	for _, f := range []struct {
		set bool
		c   byte
	}{
		{s.Global, 'G'},
		{s.Near, 'N'},
		{s.Pascal, 'P'},
		{s.Nameless, '?'},
	} {
		if f.set {
			b.WriteByte(f.c)
		}
	}
	if b.Len() == 0 {
		return "-"
	}
	return b.String()
}

// location renders where a symbol lives: its address, frame offset or
// register.
func location(s *cvdb.Symbol) string {
	switch {
	case s.Kind.HasAddress() || s.Kind == cvdb.KindLocalStatic:
		return fmt.Sprintf("0x%04X", s.Address)
	case s.Kind == cvdb.KindLocalVar:
		return fmt.Sprintf("bp%+d", s.Offset)
	case s.Kind == cvdb.KindField:
		return fmt.Sprintf("+%d", s.Offset)
	case s.Kind == cvdb.KindRegVar:
		return s.Register
	case s.Kind == cvdb.KindEnum:
		return fmt.Sprintf("=%d", s.Value)
	}
	return "-"
}

func printSymbol(s *cvdb.Symbol, depth int) {
	name := strings.Repeat("  ", depth) + s.Name
	if s.Type != "" {
		name += " : " + s.Type
	}
	fmt.Fprintf(output, "%-12s %-12s %-10s %-6s %s\n",
		s.Kind.String(), s.Segment, location(s), symbolFlags(s), name)
}

func printChildren(db *cvdb.Database, s *cvdb.Symbol, depth int) error {
	if !s.HasChildren() {
		return nil
	}
	children, err := db.Children(s)
	if err != nil {
		return err
	}
	for _, c := range children {
		printSymbol(c, depth)
		if c.Kind == cvdb.KindBlockStart {
			if err := printChildren(db, c, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
