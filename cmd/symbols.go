package cmd

import (
	"fmt"
	"strconv"

	"github.com/Manu343726/schedcheck/pkg/symtab"
	"github.com/Manu343726/schedcheck/pkg/utils"
	"github.com/spf13/cobra"
)

var (
	symbolsLookup  string
	symbolsScope   string
	symbolsKind    string
	symbolsResolve string
)

var symbolsCmd = &cobra.Command{
	Use:   "symbols <object>",
	Short: "Inspect the symbol table of a compiled object",
	Long: `Loads the symbol table of an ELF object the same way the checker does.

Without flags all indexed symbols are listed in address order. Local symbols
are shown as unit:name.

Example:
  schedcheck symbols artxtest.elf
  schedcheck symbols artxtest.elf --lookup run_ut0 --scope artxtest.c
  schedcheck symbols artxtest.elf --lookup artx_ticks --kind object
  schedcheck symbols artxtest.elf --resolve 0x1a4`,
	Args: cobra.ExactArgs(1),
	Run:  runSymbols,
}

func init() {
	RootCmd.AddCommand(symbolsCmd)
	symbolsCmd.Flags().StringVarP(&symbolsLookup, "lookup", "l", "", "Print the address of a symbol")
	symbolsCmd.Flags().StringVarP(&symbolsScope, "scope", "s", symtab.GlobalScope, "Compilation unit of local symbols (default: global namespace)")
	symbolsCmd.Flags().StringVarP(&symbolsKind, "kind", "k", symtab.KindFunction.String(), "Symbol kind for --lookup: function, object, common or tls")
	symbolsCmd.Flags().StringVarP(&symbolsResolve, "resolve", "r", "", "Print the symbol covering an address (decimal or 0x hex)")
}

func runSymbols(cmd *cobra.Command, args []string) {
	table, err := symtab.Load(args[0])
	if err != nil {
		fail("%v", err)
	}

	switch {
	case symbolsLookup != "":
		kind, err := symtab.ParseKind(symbolsKind)
		if err != nil {
			fail("%v", err)
		}

		addr, ok := table.Lookup(symbolsLookup, kind, symbolsScope)
		if !ok {
			fail("no %v '%s' in %s", kind, symbolsLookup, scopeName(symbolsScope))
		}
		fmt.Println(colorAddr.Sprint(utils.FormatUintHex(addr, 4)))

	case symbolsResolve != "":
		addr, err := strconv.ParseUint(symbolsResolve, 0, 64)
		if err != nil {
			fail("invalid address '%s': %v", symbolsResolve, err)
		}
		fmt.Println(table.Resolve(addr))

	default:
		listSymbols(table)
	}
}

func scopeName(scope string) string {
	if scope == symtab.GlobalScope {
		return "the global namespace"
	}
	return "'" + scope + "'"
}

func listSymbols(table *symtab.Table) {
	colorHeader.Printf("%-10s %-8s %-6s %s\n", "ADDRESS", "KIND", "SIZE", "NAME")
	for _, sym := range table.Symbols() {
		fmt.Printf("%s %-8s %-6d %s\n",
			colorAddr.Sprintf("%-10s", utils.FormatUintHex(sym.Address, 6)),
			sym.Kind,
			sym.Size,
			sym.DisplayName(),
		)
	}
	fmt.Printf("\n%d symbols, units: %s\n", table.Len(), utils.FormatSlice(table.Units(), ", "))
}
