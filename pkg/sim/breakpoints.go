package sim

import (
	"sort"

	"github.com/Manu343726/schedcheck/pkg/utils"
)

// Breakpoint is an armed code breakpoint associated to a routine display name
type Breakpoint struct {
	Name string
	// Address is a code-word address
	Address uint32
}

// Breakpoints keeps the bidirectional name <-> address map of the armed breakpoints
type Breakpoints struct {
	byName    map[string]uint32
	byAddress map[uint32]string
}

// NewBreakpoints creates an empty breakpoint set
func NewBreakpoints() *Breakpoints {
	return &Breakpoints{
		byName:    make(map[string]uint32),
		byAddress: make(map[uint32]string),
	}
}

func (b *Breakpoints) add(name string, addr uint32) {
	if previous, ok := b.byName[name]; ok {
		delete(b.byAddress, previous)
	}
	b.byName[name] = addr
	b.byAddress[addr] = name
}

func (b *Breakpoints) remove(name string) (uint32, bool) {
	addr, ok := b.byName[name]
	if !ok {
		return 0, false
	}
	delete(b.byName, name)
	delete(b.byAddress, addr)
	return addr, true
}

// Address returns the address of the named breakpoint
func (b *Breakpoints) Address(name string) (uint32, bool) {
	addr, ok := b.byName[name]
	return addr, ok
}

// Name returns the name of the breakpoint armed at an address
func (b *Breakpoints) Name(addr uint32) (string, bool) {
	name, ok := b.byAddress[addr]
	return name, ok
}

// Len returns the number of named breakpoints
func (b *Breakpoints) Len() int {
	return len(b.byName)
}

// List returns all breakpoints sorted by address
func (b *Breakpoints) List() []Breakpoint {
	bps := make([]Breakpoint, 0, len(b.byName))
	for addr, name := range utils.InvertedMap(b.byName) {
		bps = append(bps, Breakpoint{Name: name, Address: addr})
	}
	sort.Slice(bps, func(i, j int) bool {
		return bps[i].Address < bps[j].Address
	})
	return bps
}
