// Package inspect reads simulated data memory, with symbol aware word reads
// and recovery of the return address saved on the call stack.
package inspect

import (
	"github.com/Manu343726/schedcheck/pkg/symtab"
	"github.com/Manu343726/schedcheck/pkg/utils"
)

// MemoryReader reads one byte of simulated data memory. sim.Device implements it
type MemoryReader interface {
	ReadByte(addr uint32) byte
}

// Layout holds the architecture specific memory facts the inspector needs
type Layout struct {
	// StackPointer is the data memory address of the stack pointer register
	StackPointer uint32
	// DataMask maps data symbol addresses into the data address space
	DataMask uint32
	// CodeShift converts code-word addresses into byte addresses
	CodeShift uint
}

// AVRLayout is the layout of the classic AVR cores: SPL/SPH at 0x5d, data
// symbols linked at 0x800000, 16 bit instruction words
var AVRLayout = Layout{
	StackPointer: 0x5d,
	DataMask:     utils.AllOnes[uint32](20),
	CodeShift:    1,
}

// Inspector reads device memory
type Inspector struct {
	mem     MemoryReader
	symbols *symtab.Table
	layout  Layout
}

// New creates an inspector over a device's memory
func New(mem MemoryReader, symbols *symtab.Table, layout Layout) *Inspector {
	return &Inspector{
		mem:     mem,
		symbols: symbols,
		layout:  layout,
	}
}

// Layout returns the memory layout in use
func (i *Inspector) Layout() Layout {
	return i.layout
}

// ReadByte reads one byte of data memory
func (i *Inspector) ReadByte(addr uint32) byte {
	return i.mem.ReadByte(addr)
}

// ReadWord reads the little endian 16 bit word at addr, addr+1
func (i *Inspector) ReadWord(addr uint32) uint16 {
	return utils.LittleEndianWord(i.mem.ReadByte(addr), i.mem.ReadByte(addr+1))
}

// ReadNamedWord reads the word stored in a data object. An empty scope
// resolves the name in the global namespace
func (i *Inspector) ReadNamedWord(name string, scope string) (uint16, bool) {
	addr, ok := i.symbols.Lookup(name, symtab.KindObject, scope)
	if !ok {
		return 0, false
	}
	return i.ReadWord(uint32(addr) & i.layout.DataMask), true
}

// StackPointer returns the current value of the stack pointer register
func (i *Inspector) StackPointer() uint16 {
	return i.ReadWord(i.layout.StackPointer)
}

// ReturnAddress returns the byte address execution resumes at once the
// current interrupt or call returns. The stack pointer points at the saved
// return address, which is stored in code-word units
func (i *Inspector) ReturnAddress() uint64 {
	saved := i.ReadWord(uint32(i.StackPointer()))
	return uint64(saved) << i.layout.CodeShift
}
