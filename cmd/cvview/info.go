package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/cvdb-go/cvdb"
)

var infoCmd = &cobra.Command{
	Use:   "info <database | object-file...>",
	Short: "Display database statistics and segments",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInfo,
}

func runInfo(cmd *cobra.Command, args []string) error {
	db, err := openDatabase(args)
	if err != nil {
		return err
	}
	printInfo(db)
	return nil
}

func printInfo(db *cvdb.Database) {
	st := db.Stats()
	fmt.Fprintf(output, "Segments: %d\n", st.Segments)
	fmt.Fprintf(output, "Symbols: %d\n", st.Symbols)
	fmt.Fprintf(output, "Types: %d\n", st.Types)
	fmt.Fprintf(output, "Blocks: %d\n", st.Blocks)
	fmt.Fprintf(output, "Strings: %d\n", st.Strings)

	fmt.Fprintf(output, "\n%-16s %-10s %-10s %-8s %-10s %s\n", "SEGMENT", "CLASS", "COMBINE", "SIZE", "GROUP", "SYMBOLS")
	fmt.Fprintf(output, "%s\n", strings.Repeat("-", 70))
	for _, seg := range db.Segments() {
		group := "-"
		if seg.Group != "" {
			group = fmt.Sprintf("%s/%d", seg.Group, seg.GroupOrder)
		}
		fmt.Fprintf(output, "%-16s %-10s %-10s 0x%04X   %-10s %d\n",
			seg.Name, seg.Class, seg.Combine, seg.Size, group, seg.Symbols)
	}
}
