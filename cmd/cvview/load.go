package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/cvdb-go/cvdb"
)

var loadDatabase string

var loadCmd = &cobra.Command{
	Use:   "load <object-file>...",
	Short: "Build a database from object files",
	Long: `Load the CodeView debug information of one or more OMF object files,
in order, and save the resulting database.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLoad,
}

func init() {
	loadCmd.Flags().StringVarP(&loadDatabase, "database", "d", "out.cvdb", "database file to write")
}

func runLoad(cmd *cobra.Command, args []string) error {
	s, err := loadObjects(args)
	if err != nil {
		return fmt.Errorf("failed to load objects: %w", err)
	}
	if err := s.SaveFile(loadDatabase); err != nil {
		return err
	}

	var warnings, errs int
	for _, d := range s.Diagnostics() {
		switch d.Severity {
		case cvdb.SeverityWarning:
			warnings++
		case cvdb.SeverityError:
			errs++
		}
	}
	st := s.Database().Stats()
	fmt.Fprintf(output, "Loaded %d file(s) into %s\n", len(s.Files()), loadDatabase)
	fmt.Fprintf(output, "Segments: %d, Symbols: %d, Types: %d\n", st.Segments, st.Symbols, st.Types)
	fmt.Fprintf(output, "Warnings: %d, Errors: %d\n", warnings, errs)
	return nil
}
