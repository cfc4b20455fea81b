package sim

import (
	"log/slog"

	"github.com/Manu343726/schedcheck/pkg/logging"
	"github.com/Manu343726/schedcheck/pkg/symtab"
	"github.com/Manu343726/schedcheck/pkg/utils"
)

// DefaultCodeShift converts byte addresses into code-word addresses on
// targets with 16 bit instructions (AVR)
const DefaultCodeShift = 1

// maxLeaveSteps bounds the steps taken to move the PC off a breakpoint
const maxLeaveSteps = 1 << 20

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the logger used to trace breakpoint and run activity
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) {
		c.log = log
	}
}

// WithSymbols uses an already loaded symbol table instead of reading the object again
func WithSymbols(symbols *symtab.Table) Option {
	return func(c *Controller) {
		c.symbols = symbols
	}
}

// WithCodeShift sets the right shift converting symbol byte addresses into code-word addresses
func WithCodeShift(shift uint) Option {
	return func(c *Controller) {
		c.codeShift = shift
	}
}

// WithClockPeriod overrides DefaultClockPeriod
func WithClockPeriod(period Time) Option {
	return func(c *Controller) {
		c.clockPeriod = period
	}
}

// Controller owns a loaded device and its clock, and exposes breakpoint
// based execution control on top of them
type Controller struct {
	clock       Clock
	device      Device
	symbols     *symtab.Table
	breakpoints *Breakpoints
	codeShift   uint
	clockPeriod Time
	log         *slog.Logger
}

// Load resets a fresh clock, instantiates a device of the target variant,
// loads the object's code image into it and registers it with the clock
func Load(backend Backend, target string, objectPath string, opts ...Option) (*Controller, error) {
	c := &Controller{
		breakpoints: NewBreakpoints(),
		codeShift:   DefaultCodeShift,
		clockPeriod: DefaultClockPeriod,
		log:         logging.Discard(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.symbols == nil {
		symbols, err := symtab.Load(objectPath)
		if err != nil {
			return nil, err
		}
		c.symbols = symbols
	}

	c.clock = backend.NewClock()
	c.clock.Reset()

	device, err := backend.MakeDevice(target)
	if err != nil {
		return nil, err
	}
	if err := device.Load(objectPath); err != nil {
		return nil, err
	}
	device.SetClockPeriod(c.clockPeriod)
	c.clock.Add(device)
	c.device = device

	c.log.Info("device loaded", "target", target, "object", objectPath, "symbols", c.symbols.Len())
	return c, nil
}

// Device returns the controlled device
func (c *Controller) Device() Device {
	return c.device
}

// Symbols returns the symbol table of the loaded object
func (c *Controller) Symbols() *symtab.Table {
	return c.symbols
}

// Breakpoints returns the named breakpoints currently armed
func (c *Controller) Breakpoints() *Breakpoints {
	return c.breakpoints
}

// Now returns the current simulated time
func (c *Controller) Now() Time {
	return c.clock.Now()
}

// PC returns the device program counter as a code-word address
func (c *Controller) PC() uint32 {
	return c.device.PC()
}

// AddBreakpoint arms a breakpoint at a code-word address
func (c *Controller) AddBreakpoint(addr uint32) {
	c.device.AddBreakpoint(addr)
}

// RemoveBreakpoint disarms a breakpoint at a code-word address
func (c *Controller) RemoveBreakpoint(addr uint32) {
	c.device.RemoveBreakpoint(addr)
}

// BreakAt arms a breakpoint at the entry of a function. An empty scope
// resolves the name in the global namespace
func (c *Controller) BreakAt(name string, scope string) (Breakpoint, error) {
	addr, ok := c.symbols.LookupFunction(name, scope)
	if !ok {
		if scope == symtab.GlobalScope {
			return Breakpoint{}, utils.MakeError(ErrUnknownSymbol, "no function '%s'", name)
		}
		return Breakpoint{}, utils.MakeError(ErrUnknownSymbol, "no function '%s' in '%s'", name, scope)
	}

	bp := Breakpoint{Name: name, Address: uint32(addr >> c.codeShift)}
	c.breakpoints.add(bp.Name, bp.Address)
	c.device.AddBreakpoint(bp.Address)

	c.log.Debug("breakpoint armed", "name", name, "scope", scope, "addr", bp.Address)
	return bp, nil
}

// Delete disarms a breakpoint set with BreakAt and forgets it
func (c *Controller) Delete(name string) error {
	addr, ok := c.breakpoints.remove(name)
	if !ok {
		return utils.MakeError(ErrUnknownBreakpoint, "no breakpoint named '%s'", name)
	}

	c.device.RemoveBreakpoint(addr)
	c.log.Debug("breakpoint deleted", "name", name, "addr", addr)
	return nil
}

// Step advances the clock by one quantum. Any status other than normal
// progress or a breakpoint hit is returned as a *FaultError
func (c *Controller) Step() (Status, error) {
	status := c.clock.Step()
	if status.IsFault() {
		return status, &FaultError{Status: status, PC: c.device.PC(), Time: c.clock.Now()}
	}
	return status, nil
}

// RunUntil steps until a breakpoint fires or the simulated time budget is
// exhausted. It returns StatusBreakpoint on a hit and StatusNormal on timeout
func (c *Controller) RunUntil(budget Time) (Status, error) {
	end := c.clock.Now() + budget

	for c.clock.Now() < end {
		status, err := c.Step()
		if err != nil {
			return status, err
		}
		if status == StatusBreakpoint {
			return status, nil
		}
	}

	return StatusNormal, nil
}

// Hit is a breakpoint the device is currently paused at
type Hit struct {
	Breakpoint
	Time Time

	ctrl *Controller
}

// Leave resumes past the breakpoint: see Controller.Leave
func (h *Hit) Leave() error {
	return h.ctrl.Leave(h.Address)
}

// Continue runs for at most budget and returns the breakpoint hit, or nil if
// the budget was exhausted first. Stopping at a breakpoint armed without a
// name is an ErrUnknownBreakpoint error, the device stays paused there
func (c *Controller) Continue(budget Time) (*Hit, error) {
	status, err := c.RunUntil(budget)
	if err != nil {
		return nil, err
	}
	if status != StatusBreakpoint {
		return nil, nil
	}

	pc := c.device.PC()
	name, ok := c.breakpoints.Name(pc)
	if !ok {
		return nil, utils.MakeError(ErrUnknownBreakpoint, "stopped at unnamed breakpoint 0x%04x (%s)", pc, c.symbols.Resolve(uint64(pc)<<c.codeShift))
	}

	return &Hit{
		Breakpoint: Breakpoint{Name: name, Address: pc},
		Time:       c.clock.Now(),
		ctrl:       c,
	}, nil
}

// Leave executes the instruction at a breakpoint the device is paused at.
// The simulator cannot step over an armed address, so the breakpoint is
// disarmed, the clock stepped until the PC moves away and the breakpoint
// armed again. Every one of those steps must make normal progress. The
// breakpoint is armed again even when stepping fails
func (c *Controller) Leave(addr uint32) error {
	c.device.RemoveBreakpoint(addr)
	defer c.device.AddBreakpoint(addr)

	for steps := 0; c.device.PC() == addr; steps++ {
		if steps >= maxLeaveSteps {
			return utils.MakeError(ErrUnexpectedStatus, "pc stuck at 0x%04x after %d steps", addr, steps)
		}

		status := c.clock.Step()
		if status.IsFault() {
			return &FaultError{Status: status, PC: c.device.PC(), Time: c.clock.Now()}
		}
		if status != StatusNormal {
			return utils.MakeError(ErrUnexpectedStatus, "step returned %v while leaving 0x%04x", status, addr)
		}
	}

	return nil
}

// CheckConsistency compares the device's own view of a symbol address with
// the symbol table. Devices that cannot resolve symbols are not checked
func (c *Controller) CheckConsistency(name string) error {
	addresser, ok := c.device.(SymbolAddresser)
	if !ok {
		c.log.Debug("device cannot resolve symbols, consistency not checked", "name", name)
		return nil
	}

	addr, ok := c.symbols.LookupFunction(name, symtab.GlobalScope)
	if !ok {
		return utils.MakeError(ErrUnknownSymbol, "no function '%s'", name)
	}

	deviceAddr, ok := addresser.SymbolAddress(name)
	if !ok {
		return utils.MakeError(ErrUnknownSymbol, "device cannot resolve '%s'", name)
	}

	if want := uint32(addr >> c.codeShift); deviceAddr != want {
		return utils.MakeError(ErrInconsistentSymbols, "'%s' is at 0x%04x on the device, 0x%04x in the symbol table", name, deviceAddr, want)
	}
	return nil
}

// Close disarms every named breakpoint and resets the clock, releasing the device
func (c *Controller) Close() {
	for _, bp := range c.breakpoints.List() {
		c.device.RemoveBreakpoint(bp.Address)
		c.breakpoints.remove(bp.Name)
	}
	c.clock.Reset()
	c.log.Debug("device released")
}
