// Package symtab resolves routine and variable names of a compiled object to
// simulated memory addresses, and addresses back to "name[+offset]" strings.
//
// The table is built once from the object's ELF symbol table and is read-only
// afterwards. Global symbols live in a flat namespace, while local (static)
// symbols are namespaced by the compilation unit that defines them, taken from
// the closest preceding file symbol (NoUnit before the first one). Section
// symbols and other untyped-but-not-none entries are kept for reverse lookups
// only:
//
//	table, err := symtab.Load("artxtest_atmega16.elf")
//	addr, ok := table.LookupFunction("run_ut0", "artxtest.c")
//	fmt.Println(table.Resolve(addr + 4)) // artxtest.c:run_ut0+4
package symtab

import (
	"debug/elf"
	"errors"
	"os"
	"sort"
	"strconv"

	"github.com/Manu343726/schedcheck/pkg/utils"
)

// ErrFormat is returned when the object file or its symbol table cannot be read
var ErrFormat = errors.New("malformed object file")

// GlobalScope selects the global namespace in lookups
const GlobalScope = ""

// NoUnit is the scope of local symbols that precede any file symbol, or
// follow a file symbol with an empty name
const NoUnit = "<none>"

// Kind classifies what a symbol refers to
type Kind int

const (
	KindFunction Kind = iota
	KindObject
	KindCommon
	KindTLS
	// KindOther covers sections and target specific types. Such symbols only
	// take part in reverse lookups
	KindOther
)

// String returns the string representation of a Kind
func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindObject:
		return "object"
	case KindCommon:
		return "common"
	case KindTLS:
		return "tls"
	case KindOther:
		return "other"
	default:
		return "unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// ParseKind parses the string representation of a Kind
func ParseKind(s string) (Kind, error) {
	switch s {
	case "function", "func":
		return KindFunction, nil
	case "object":
		return KindObject, nil
	case "common":
		return KindCommon, nil
	case "tls":
		return KindTLS, nil
	default:
		return 0, utils.MakeError(ErrFormat, "unknown symbol kind '%s'", s)
	}
}

func kindOf(t elf.SymType) Kind {
	switch t {
	case elf.STT_FUNC:
		return KindFunction
	case elf.STT_OBJECT:
		return KindObject
	case elf.STT_COMMON:
		return KindCommon
	case elf.STT_TLS:
		return KindTLS
	default:
		return KindOther
	}
}

// Symbol is an indexed entry of the object's symbol table
type Symbol struct {
	Name string
	// Scope is the defining compilation unit for local symbols, GlobalScope otherwise
	Scope   string
	Address uint64
	Size    uint64
	Kind    Kind
	Local   bool
}

// DisplayName returns the name used in reverse lookups ("unit:name" for locals)
func (s Symbol) DisplayName() string {
	if s.Local {
		return s.Scope + ":" + s.Name
	}
	return s.Name
}

type namespace map[Kind]map[string]uint64

func (ns namespace) add(kind Kind, name string, addr uint64) {
	names, ok := ns[kind]
	if !ok {
		names = make(map[string]uint64)
		ns[kind] = names
	}
	names[name] = addr
}

// Table is the immutable symbol lookup built from an object file
type Table struct {
	global namespace
	local  map[string]namespace

	// sorted by address, with addrs as the parallel search key
	index []Symbol
	addrs []uint64
}

// Load reads the symbol table of the given ELF object
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, utils.MakeError(ErrFormat, "failed to open '%s': %v", path, err)
	}
	defer f.Close()

	elfFile, err := elf.NewFile(f)
	if err != nil {
		return nil, utils.MakeError(ErrFormat, "failed to parse ELF file '%s': %v", path, err)
	}
	defer elfFile.Close()

	symbols, err := elfFile.Symbols()
	if err != nil {
		return nil, utils.MakeError(ErrFormat, "failed to read symbols of '%s': %v", path, err)
	}

	return New(symbols)
}

// New builds a table out of already read ELF symbols, in symbol table order
func New(symbols []elf.Symbol) (*Table, error) {
	if len(symbols) == 0 {
		return nil, utils.MakeError(ErrFormat, "empty symbol table")
	}

	t := &Table{
		global: make(namespace),
		local:  make(map[string]namespace),
	}

	currentUnit := NoUnit

	for _, sym := range symbols {
		if elf.ST_VISIBILITY(sym.Other) != elf.STV_DEFAULT {
			continue
		}

		symType := elf.ST_TYPE(sym.Info)
		switch symType {
		case elf.STT_NOTYPE:
			continue
		case elf.STT_FILE:
			currentUnit = sym.Name
			if currentUnit == "" {
				currentUnit = NoUnit
			}
			continue
		}

		entry := Symbol{
			Name:    sym.Name,
			Scope:   GlobalScope,
			Address: sym.Value,
			Size:    sym.Size,
			Kind:    kindOf(symType),
		}
		bind := elf.ST_BIND(sym.Info)
		if bind == elf.STB_LOCAL {
			entry.Scope = currentUnit
			entry.Local = true
		}
		t.index = append(t.index, entry)

		if entry.Kind == KindOther {
			continue
		}

		switch bind {
		case elf.STB_LOCAL:
			ns, ok := t.local[currentUnit]
			if !ok {
				ns = make(namespace)
				t.local[currentUnit] = ns
			}
			ns.add(entry.Kind, sym.Name, sym.Value)
		case elf.STB_GLOBAL, elf.STB_WEAK:
			t.global.add(entry.Kind, sym.Name, sym.Value)
		}
	}

	sort.SliceStable(t.index, func(i, j int) bool {
		return t.index[i].Address < t.index[j].Address
	})

	t.addrs = make([]uint64, len(t.index))
	for i := range t.index {
		t.addrs[i] = t.index[i].Address
	}

	return t, nil
}

// Lookup returns the address of a symbol. An empty scope searches the global
// namespace, otherwise only the locals of that compilation unit are searched
func (t *Table) Lookup(name string, kind Kind, scope string) (uint64, bool) {
	ns := t.global
	if scope != GlobalScope {
		var ok bool
		if ns, ok = t.local[scope]; !ok {
			return 0, false
		}
	}

	addr, ok := ns[kind][name]
	return addr, ok
}

// LookupFunction is Lookup for KindFunction symbols
func (t *Table) LookupFunction(name string, scope string) (uint64, bool) {
	return t.Lookup(name, KindFunction, scope)
}

// Location is the structured result of a reverse lookup
type Location struct {
	Symbol Symbol
	Offset uint64
}

// String formats the location the same way Resolve does
func (l Location) String() string {
	if l.Offset == 0 {
		return l.Symbol.DisplayName()
	}
	return l.Symbol.DisplayName() + "+" + strconv.FormatUint(l.Offset, 10)
}

// Locate finds the symbol covering an address: the closest symbol at or below
// it, as long as the address is its start or falls inside its size
func (t *Table) Locate(addr uint64) (Location, bool) {
	i := sort.Search(len(t.addrs), func(i int) bool {
		return t.addrs[i] > addr
	})
	if i == 0 {
		return Location{}, false
	}

	sym := t.index[i-1]
	offset := addr - sym.Address
	if offset != 0 && offset >= sym.Size {
		return Location{}, false
	}

	return Location{Symbol: sym, Offset: offset}, true
}

// Resolve returns "name", "name+offset" or the decimal address when no symbol covers it
func (t *Table) Resolve(addr uint64) string {
	if loc, ok := t.Locate(addr); ok {
		return loc.String()
	}
	return strconv.FormatUint(addr, 10)
}

// Symbols returns the indexed symbols sorted by address
func (t *Table) Symbols() []Symbol {
	out := make([]Symbol, len(t.index))
	copy(out, t.index)
	return out
}

// Units returns the compilation units that define local symbols
func (t *Table) Units() []string {
	return utils.SortedKeys(t.local)
}

// Len returns the number of indexed symbols
func (t *Table) Len() int {
	return len(t.index)
}
