// Package symtabtest writes minimal ELF objects carrying only a symbol table,
// so symbol resolution can be tested without an AVR toolchain.
package symtabtest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// Symbol describes one symbol table entry of the generated object
type Symbol struct {
	Name       string
	Value      uint32
	Size       uint32
	Type       elf.SymType
	Bind       elf.SymBind
	Visibility elf.SymVis
}

// File returns a compilation unit marker; locals following it belong to that unit
func File(name string) Symbol {
	return Symbol{Name: name, Type: elf.STT_FILE, Bind: elf.STB_LOCAL}
}

// Func returns a global function symbol
func Func(name string, addr, size uint32) Symbol {
	return Symbol{Name: name, Value: addr, Size: size, Type: elf.STT_FUNC, Bind: elf.STB_GLOBAL}
}

// LocalFunc returns a file static function symbol
func LocalFunc(name string, addr, size uint32) Symbol {
	return Symbol{Name: name, Value: addr, Size: size, Type: elf.STT_FUNC, Bind: elf.STB_LOCAL}
}

// Object returns a global data symbol
func Object(name string, addr, size uint32) Symbol {
	return Symbol{Name: name, Value: addr, Size: size, Type: elf.STT_OBJECT, Bind: elf.STB_GLOBAL}
}

// LocalObject returns a file static data symbol
func LocalObject(name string, addr, size uint32) Symbol {
	return Symbol{Name: name, Value: addr, Size: size, Type: elf.STT_OBJECT, Bind: elf.STB_LOCAL}
}

// Label returns an untyped symbol, as emitted for assembler labels
func Label(name string, addr uint32) Symbol {
	return Symbol{Name: name, Value: addr, Type: elf.STT_NOTYPE, Bind: elf.STB_LOCAL}
}

// Section returns a section symbol, as emitted by the assembler at section starts
func Section(name string, addr uint32) Symbol {
	return Symbol{Name: name, Value: addr, Type: elf.STT_SECTION, Bind: elf.STB_LOCAL}
}

// Hidden returns a copy of the symbol with hidden visibility
func Hidden(sym Symbol) Symbol {
	sym.Visibility = elf.STV_HIDDEN
	return sym
}

const (
	ehdrSize = 52
	shdrSize = 40
	symSize  = 16
)

type stringTable struct {
	data bytes.Buffer
}

func newStringTable() *stringTable {
	st := &stringTable{}
	st.data.WriteByte(0)
	return st
}

func (st *stringTable) add(s string) uint32 {
	if s == "" {
		return 0
	}
	offset := uint32(st.data.Len())
	st.data.WriteString(s)
	st.data.WriteByte(0)
	return offset
}

type sectionHeader struct {
	Name      uint32
	Type      uint32
	Flags     uint32
	Addr      uint32
	Offset    uint32
	Size      uint32
	Link      uint32
	Info      uint32
	AddrAlign uint32
	EntSize   uint32
}

// Build returns the bytes of a 32 bit little endian AVR ELF executable whose
// only contents are the given symbols, in order
func Build(symbols []Symbol) []byte {
	strtab := newStringTable()
	symtab := bytes.Buffer{}

	// index 0 is the reserved null symbol
	symtab.Write(make([]byte, symSize))

	firstGlobal := uint32(len(symbols) + 1)
	for i, sym := range symbols {
		if sym.Bind != elf.STB_LOCAL && firstGlobal > uint32(i+1) {
			firstGlobal = uint32(i + 1)
		}

		shndx := uint16(1)
		if sym.Type == elf.STT_FILE {
			shndx = uint16(elf.SHN_ABS)
		}

		binary.Write(&symtab, binary.LittleEndian, struct {
			Name  uint32
			Value uint32
			Size  uint32
			Info  uint8
			Other uint8
			Shndx uint16
		}{
			Name:  strtab.add(sym.Name),
			Value: sym.Value,
			Size:  sym.Size,
			Info:  elf.ST_INFO(sym.Bind, sym.Type),
			Other: uint8(sym.Visibility),
			Shndx: shndx,
		})
	}

	shstrtab := newStringTable()
	symtabName := shstrtab.add(".symtab")
	strtabName := shstrtab.add(".strtab")
	shstrtabName := shstrtab.add(".shstrtab")

	symtabOffset := uint32(ehdrSize)
	strtabOffset := symtabOffset + uint32(symtab.Len())
	shstrtabOffset := strtabOffset + uint32(strtab.data.Len())
	shoff := shstrtabOffset + uint32(shstrtab.data.Len())
	shoff = (shoff + 3) &^ 3

	out := bytes.Buffer{}

	ident := [elf.EI_NIDENT]byte{0x7f, 'E', 'L', 'F', byte(elf.ELFCLASS32), byte(elf.ELFDATA2LSB), byte(elf.EV_CURRENT)}
	out.Write(ident[:])
	binary.Write(&out, binary.LittleEndian, struct {
		Type      uint16
		Machine   uint16
		Version   uint32
		Entry     uint32
		Phoff     uint32
		Shoff     uint32
		Flags     uint32
		Ehsize    uint16
		Phentsize uint16
		Phnum     uint16
		Shentsize uint16
		Shnum     uint16
		Shstrndx  uint16
	}{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_AVR),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     shoff,
		Ehsize:    ehdrSize,
		Phentsize: 32,
		Shentsize: shdrSize,
		Shnum:     4,
		Shstrndx:  3,
	})

	out.Write(symtab.Bytes())
	out.Write(strtab.data.Bytes())
	out.Write(shstrtab.data.Bytes())
	for uint32(out.Len()) < shoff {
		out.WriteByte(0)
	}

	headers := []sectionHeader{
		{},
		{
			Name:      symtabName,
			Type:      uint32(elf.SHT_SYMTAB),
			Offset:    symtabOffset,
			Size:      uint32(symtab.Len()),
			Link:      2,
			Info:      firstGlobal,
			AddrAlign: 4,
			EntSize:   symSize,
		},
		{
			Name:      strtabName,
			Type:      uint32(elf.SHT_STRTAB),
			Offset:    strtabOffset,
			Size:      uint32(strtab.data.Len()),
			AddrAlign: 1,
		},
		{
			Name:      shstrtabName,
			Type:      uint32(elf.SHT_STRTAB),
			Offset:    shstrtabOffset,
			Size:      uint32(shstrtab.data.Len()),
			AddrAlign: 1,
		},
	}
	for _, h := range headers {
		binary.Write(&out, binary.LittleEndian, h)
	}

	return out.Bytes()
}

// WriteFile writes the object into the test's temporary directory and returns its path
func WriteFile(t testing.TB, name string, symbols ...Symbol) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, Build(symbols), 0o644); err != nil {
		t.Fatalf("failed to write ELF fixture: %v", err)
	}
	return path
}
