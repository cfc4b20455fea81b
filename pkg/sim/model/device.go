// Package model implements a deterministic, cycle counting reference device
// for the sim interfaces.
//
// The model does not execute machine code. It replays the control flow of a
// tick driven cooperative scheduler: after the entry routine initializes the
// system and enters the scheduler, a timer interrupt fires every TickCycles
// cycles, runs the vector routine (plus interrupt level tasks) and releases
// the periodic tasks that are due. Between interrupts the scheduler runs the
// released tasks in declaration order, and the background routine when no
// task is pending.
//
// Each routine occupies its entry address for one cycle and the next code
// word for the rest of its cycles, so breakpoints on routine entries fire
// exactly once per activation. The tick interrupt saves the interrupted
// program counter on the stack the way the hardware does, so stack
// inspection recovers it.
package model

import (
	"fmt"

	"github.com/Manu343726/schedcheck/pkg/sim"
	"github.com/Manu343726/schedcheck/pkg/symtab"
	"github.com/Manu343726/schedcheck/pkg/utils"
)

// StatusNotLoaded is returned when stepping a device without a loaded image
const StatusNotLoaded sim.Status = 1

const dataMemorySize = 1 << 16

type routine struct {
	name  string
	entry uint32
}

type task struct {
	Task
	routine
	pending bool
}

// Device is the modelled microcontroller
type Device struct {
	config  Config
	target  string
	symbols *symtab.Table
	period  sim.Time

	memory []byte
	armed  map[uint32]bool
	loaded bool

	entry      routine
	scheduler  routine
	vector     routine
	background routine
	tasks      []*task

	queue      []uint32
	isr        int
	cycle      uint64
	nextTick   uint64
	started    bool
	irqPending bool
	ticks      int
}

func newDevice(config Config, target string, symbols *symtab.Table) *Device {
	return &Device{
		config:  config,
		target:  target,
		symbols: symbols,
		period:  sim.DefaultClockPeriod,
		memory:  make([]byte, dataMemorySize),
		armed:   make(map[uint32]bool),
	}
}

// Target returns the target variant the device was instantiated as
func (d *Device) Target() string {
	return d.target
}

// Ticks returns the number of tick interrupts taken so far
func (d *Device) Ticks() int {
	return d.ticks
}

// Cycles returns the number of clock cycles executed since load
func (d *Device) Cycles() uint64 {
	return d.cycle
}

// Load resolves the configured routines in the object's symbol table and
// resets the device to its power on state
func (d *Device) Load(objectPath string) error {
	if d.symbols == nil {
		symbols, err := symtab.Load(objectPath)
		if err != nil {
			return err
		}
		d.symbols = symbols
	}

	var err error
	if d.entry, err = d.resolve(d.config.Entry, symtab.GlobalScope); err != nil {
		return err
	}
	if d.scheduler, err = d.resolve(d.config.Scheduler, symtab.GlobalScope); err != nil {
		return err
	}
	if d.vector, err = d.resolve(d.config.Vector, symtab.GlobalScope); err != nil {
		return err
	}
	if d.background, err = d.resolve(d.config.Background, d.config.Scope); err != nil {
		return err
	}

	d.tasks = make([]*task, 0, len(d.config.Tasks))
	for _, t := range d.config.Tasks {
		r, err := d.resolve(t.Routine, d.config.Scope)
		if err != nil {
			return err
		}
		d.tasks = append(d.tasks, &task{Task: t, routine: r})
	}

	d.reset()
	d.loaded = true
	return nil
}

// resolve finds a function in the given unit, falling back to the global namespace
func (d *Device) resolve(name string, scope string) (routine, error) {
	addr, ok := d.symbols.LookupFunction(name, scope)
	if !ok && scope != symtab.GlobalScope {
		addr, ok = d.symbols.LookupFunction(name, symtab.GlobalScope)
	}
	if !ok {
		return routine{}, utils.MakeError(ErrMissingRoutine, "'%s'", name)
	}
	return routine{name: name, entry: uint32(addr >> sim.DefaultCodeShift)}, nil
}

func (d *Device) reset() {
	clear(d.memory)
	d.cycle = 0
	d.nextTick = 0
	d.started = false
	d.irqPending = false
	d.ticks = 0
	d.isr = 0

	for _, t := range d.tasks {
		t.pending = false
	}

	// reset vector, then the entry routine initializing the system and calling the scheduler
	d.queue = []uint32{0}
	d.queue = append(d.queue, d.segment(d.entry, d.config.InitCycles)...)
	d.queue = append(d.queue, d.scheduler.entry)
}

// segment returns the program counter sequence of one routine activation
func (d *Device) segment(r routine, cycles int) []uint32 {
	pcs := make([]uint32, 0, cycles)
	pcs = append(pcs, r.entry)
	for i := 1; i < cycles; i++ {
		pcs = append(pcs, r.entry+1)
	}
	return pcs
}

func (d *Device) SetClockPeriod(period sim.Time) {
	d.period = period
}

// ClockPeriod returns the duration of one clock cycle
func (d *Device) ClockPeriod() sim.Time {
	return d.period
}

func (d *Device) PC() uint32 {
	if len(d.queue) == 0 {
		return 0
	}
	return d.queue[0]
}

func (d *Device) AddBreakpoint(addr uint32) {
	d.armed[addr] = true
}

func (d *Device) RemoveBreakpoint(addr uint32) {
	delete(d.armed, addr)
}

func (d *Device) ReadByte(addr uint32) byte {
	return d.memory[addr%dataMemorySize]
}

func (d *Device) writeWord(addr uint32, value uint16) {
	d.memory[addr%dataMemorySize] = byte(value)
	d.memory[(addr+1)%dataMemorySize] = byte(value >> utils.BitsPerByte)
}

// SymbolAddress resolves a global function of the loaded image as a code-word address
func (d *Device) SymbolAddress(name string) (uint32, bool) {
	if d.symbols == nil {
		return 0, false
	}
	addr, ok := d.symbols.LookupFunction(name, symtab.GlobalScope)
	return uint32(addr >> sim.DefaultCodeShift), ok
}

// step executes one clock cycle
func (d *Device) step() sim.Status {
	if !d.loaded {
		return StatusNotLoaded
	}

	from := d.PC()
	d.cycle++

	if d.started && d.cycle >= d.nextTick {
		d.nextTick += uint64(d.config.TickCycles)
		d.irqPending = true
	}

	if d.irqPending && d.isr == 0 {
		d.irqPending = false
		d.interrupt()
	} else {
		d.retire()
	}

	if to := d.PC(); to != from && d.armed[to] {
		return sim.StatusBreakpoint
	}
	return sim.StatusNormal
}

// retire completes the instruction at the program counter
func (d *Device) retire() {
	pc := d.queue[0]
	d.queue = d.queue[1:]

	if d.isr > 0 {
		d.isr--
	} else if !d.started && pc == d.scheduler.entry {
		// the scheduler starts the tick timer
		d.started = true
		d.nextTick = d.cycle + uint64(d.config.TickCycles)
	}

	if len(d.queue) == 0 {
		d.queue = d.dispatch()
	}
}

// dispatch picks what runs next once the current routine returns
func (d *Device) dispatch() []uint32 {
	if d.ticks == 0 {
		// scheduler idle loop, waiting for the first tick
		return []uint32{d.scheduler.entry + 1}
	}

	for _, t := range d.tasks {
		if !t.Interrupt && t.pending {
			t.pending = false
			return d.segment(t.routine, t.Cycles)
		}
	}

	return d.segment(d.background, d.config.BackgroundCycles)
}

// interrupt takes the tick interrupt before the instruction at the program
// counter executes, saving it as return address
func (d *Device) interrupt() {
	d.writeWord(d.config.StackPointer, uint16(d.config.StackBase))
	d.writeWord(d.config.StackBase, uint16(d.PC()))

	tick := d.ticks
	d.ticks++

	isr := make([]uint32, 0, d.config.isrCycles())
	for i := 0; i < d.config.IRQLatency; i++ {
		isr = append(isr, d.config.VectorSlot)
	}
	isr = append(isr, d.segment(d.vector, d.config.VectorCycles)...)

	for _, t := range d.tasks {
		if tick%t.Period != 0 {
			continue
		}
		if t.Interrupt {
			isr = append(isr, d.segment(t.routine, t.Cycles)...)
		} else {
			t.pending = true
		}
	}

	d.isr = len(isr)
	d.queue = append(isr, d.queue...)
}

// String returns a short description of the device state
func (d *Device) String() string {
	return fmt.Sprintf("%s pc=0x%04x cycle=%d ticks=%d", d.target, d.PC(), d.cycle, d.ticks)
}
