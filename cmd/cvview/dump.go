package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/cvdb-go/cvdb"
)

var dumpFormat string

var dumpCmd = &cobra.Command{
	Use:   "dump <database | object-file...>",
	Short: "Dump the whole database",
	Long: `Dump every segment, symbol and type of a database in structured format.

Supported formats:
  - text: Human-readable text (default)
  - json: JSON format`,
	Args: cobra.MinimumNArgs(1),
	RunE: runDump,
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpFormat, "format", "f", "text", "output format (text, json)")
}

func runDump(cmd *cobra.Command, args []string) error {
	db, err := openDatabase(args)
	if err != nil {
		return err
	}

	switch dumpFormat {
	case "json":
		return dumpJSON(db)
	case "text":
		return dumpText(db)
	default:
		return fmt.Errorf("unknown format: %s", dumpFormat)
	}
}

type DatabaseDump struct {
	Stats    cvdb.Stats     `json:"stats"`
	Segments []cvdb.Segment `json:"segments"`
	Symbols  []SymbolDump   `json:"symbols"`
	Types    []SymbolDump   `json:"types"`
}

type SymbolDump struct {
	Name     string       `json:"name"`
	Kind     string       `json:"kind"`
	Segment  string       `json:"segment,omitempty"`
	Location string       `json:"location,omitempty"`
	Type     string       `json:"type,omitempty"`
	Size     uint32       `json:"size,omitempty"`
	Global   bool         `json:"global,omitempty"`
	Children []SymbolDump `json:"children,omitempty"`
}

func symbolDump(db *cvdb.Database, s *cvdb.Symbol) (SymbolDump, error) {
	d := SymbolDump{
		Name:    s.Name,
		Kind:    s.Kind.String(),
		Segment: s.Segment,
		Type:    s.Type,
		Size:    s.Size,
		Global:  s.Global,
	}
	if loc := location(s); loc != "-" {
		d.Location = loc
	}
	if !s.HasChildren() {
		return d, nil
	}
	children, err := db.Children(s)
	if err != nil {
		return d, err
	}
	for _, c := range children {
		cd, err := symbolDump(db, c)
		if err != nil {
			return d, err
		}
		d.Children = append(d.Children, cd)
	}
	return d, nil
}

func dumpJSON(db *cvdb.Database) error {
	dump := &DatabaseDump{
		Stats:    db.Stats(),
		Segments: db.Segments(),
	}
	for s := range db.AllSymbols() {
		d, err := symbolDump(db, s)
		if err != nil {
			return err
		}
		dump.Symbols = append(dump.Symbols, d)
	}
	for s := range db.Types() {
		d, err := symbolDump(db, s)
		if err != nil {
			return err
		}
		dump.Types = append(dump.Types, d)
	}

	encoder := json.NewEncoder(output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(dump)
}

func dumpText(db *cvdb.Database) error {
	fmt.Fprintln(output, "=== Database Information ===")
	printInfo(db)

	fmt.Fprintln(output)
	fmt.Fprintln(output, "=== Symbols ===")
	for s := range db.AllSymbols() {
		printSymbol(s, 0)
		if err := printChildren(db, s, 1); err != nil {
			return err
		}
	}

	fmt.Fprintln(output)
	fmt.Fprintln(output, "=== Types ===")
	for typ := range db.Types() {
		printType(typ)
		members, err := db.Children(typ)
		if err != nil {
			return err
		}
		for _, m := range members {
			fmt.Fprintf(output, "%-8s %-8s   %s %s\n", "", location(m), m.Name, m.Type)
		}
	}
	return nil
}
