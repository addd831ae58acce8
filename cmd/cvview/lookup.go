package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/cvdb-go/cvdb"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup <database | object-file...> <query>",
	Short: "Look up symbols by name or address",
	Long: `Look up symbols or types in a database.

Query can be:
  - Symbol or type name: lookup out.cvdb main
  - Segment address: lookup out.cvdb _TEXT:0x1234`,
	Args: cobra.MinimumNArgs(2),
	RunE: runLookup,
}

func runLookup(cmd *cobra.Command, args []string) error {
	query := args[len(args)-1]
	db, err := openDatabase(args[:len(args)-1])
	if err != nil {
		return err
	}

	if seg, addr, ok := strings.Cut(query, ":"); ok {
		return lookupAddress(db, seg, addr)
	}
	return lookupName(db, query)
}

func lookupName(db *cvdb.Database, name string) error {
	syms, err := db.Lookup(name)
	if err != nil {
		fmt.Fprintf(output, "No symbols found matching '%s'\n", name)
		return nil
	}
	for _, s := range syms {
		if err := printSymbolDetail(db, s); err != nil {
			return err
		}
	}
	fmt.Fprintf(output, "Found %d symbol(s)\n", len(syms))
	return nil
}

func lookupAddress(db *cvdb.Database, seg, addrStr string) error {
	addr, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimPrefix(addrStr, "0x"), "0X"), 16, 32)
	if err != nil {
		return fmt.Errorf("invalid address: %s", addrStr)
	}
	syms, err := db.ByAddress(seg, uint32(addr))
	if err != nil {
		return err
	}
	if len(syms) == 0 {
		fmt.Fprintf(output, "No symbols found at %s:0x%04X\n", seg, addr)
		return nil
	}
	for _, s := range syms {
		if err := printSymbolDetail(db, s); err != nil {
			return err
		}
	}
	return nil
}

func printSymbolDetail(db *cvdb.Database, s *cvdb.Symbol) error {
	fmt.Fprintf(output, "Symbol:\n")
	fmt.Fprintf(output, "  Name: %s\n", s.Name)
	fmt.Fprintf(output, "  Kind: %s\n", s.Kind.String())
	fmt.Fprintf(output, "  Segment: %s\n", s.Segment)
	if loc := location(s); loc != "-" {
		fmt.Fprintf(output, "  Location: %s\n", loc)
	}
	if s.Type != "" {
		fmt.Fprintf(output, "  Type: %s\n", s.Type)
	}
	if s.Size > 0 {
		fmt.Fprintf(output, "  Size: %d\n", s.Size)
	}
	if s.Kind == cvdb.KindBlockStart {
		fmt.Fprintf(output, "  Length: %d\n", s.Length)
	}
	fmt.Fprintf(output, "  Flags: %s\n", symbolFlags(s))

	if s.HasChildren() {
		fmt.Fprintf(output, "  Children:\n")
		if err := printChildren(db, s, 2); err != nil {
			return err
		}
	}
	fmt.Fprintln(output)
	return nil
}
