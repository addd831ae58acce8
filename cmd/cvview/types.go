package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skdltmxn/cvdb-go/cvdb"
)

var (
	typesKind    string
	typesLimit   int
	typesMembers bool
)

var typesCmd = &cobra.Command{
	Use:   "types <database | object-file...>",
	Short: "List structures, unions, enumerated types and typedefs",
	Long: `List the types registered in the global segment.

Use --kind to filter by type kind (struct, union, enum, typedef) and
--members to show fields and enum members.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTypes,
}

func init() {
	typesCmd.Flags().StringVarP(&typesKind, "kind", "k", "", "filter by type kind (struct, union, enum, typedef)")
	typesCmd.Flags().IntVarP(&typesLimit, "limit", "n", 0, "limit number of types shown (0 = unlimited)")
	typesCmd.Flags().BoolVarP(&typesMembers, "members", "m", false, "show members")
}

func runTypes(cmd *cobra.Command, args []string) error {
	db, err := openDatabase(args)
	if err != nil {
		return err
	}

	var kind cvdb.SymbolKind
	if typesKind != "" {
		switch strings.ToLower(typesKind) {
		case "struct":
			kind = cvdb.KindStruct
		case "union":
			kind = cvdb.KindUnion
		case "enum":
			kind = cvdb.KindEnumType
		case "typedef":
			kind = cvdb.KindTypedef
		default:
			return fmt.Errorf("unknown type kind: %s", typesKind)
		}
	}

	fmt.Fprintf(output, "%-8s %-8s %s\n", "KIND", "SIZE", "NAME")
	fmt.Fprintf(output, "%s\n", strings.Repeat("-", 60))

	count := 0
	for typ := range db.Types() {
		if kind != 0 && typ.Kind != kind {
			continue
		}
		printType(typ)
		if typesMembers {
			members, err := db.Children(typ)
			if err != nil {
				return err
			}
			for _, m := range members {
				fmt.Fprintf(output, "%-8s %-8s   %s %s\n", "", location(m), m.Name, m.Type)
			}
		}
		count++
		if typesLimit > 0 && count >= typesLimit {
			break
		}
	}

	fmt.Fprintf(output, "\nTotal: %d types\n", count)
	return nil
}

func printType(typ *cvdb.Symbol) {
	size := "-"
	if typ.Size > 0 {
		size = fmt.Sprintf("%d", typ.Size)
	}
	name := typ.Name
	if typ.Kind == cvdb.KindTypedef {
		name += " = " + typ.Type
	}
	fmt.Fprintf(output, "%-8s %-8s %s\n", typ.Kind.String(), size, name)
}
