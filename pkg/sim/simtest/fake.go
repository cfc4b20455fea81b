// Package simtest provides a scripted, recording implementation of the sim
// device interfaces for tests.
//
// The device walks a fixed program counter timeline, one entry per clock
// step, and records every step together with the breakpoints armed at the
// time, so tests can assert on how a controller manipulated the device.
package simtest

import (
	"sort"

	"github.com/Manu343726/schedcheck/pkg/sim"
)

// StepRecord describes one clock step taken by the fake device
type StepRecord struct {
	// From is the PC before the step, To the PC after it
	From   uint32
	To     uint32
	Status sim.Status
	// Armed lists the breakpoints armed while the step was taken
	Armed []uint32
}

// FromArmed returns true if a breakpoint was armed at the PC the step left from
func (r StepRecord) FromArmed() bool {
	for _, addr := range r.Armed {
		if addr == r.From {
			return true
		}
	}
	return false
}

// Device is a scripted sim.Device
type Device struct {
	// Timeline is the sequence of PC values, one per step. Once exhausted the PC stays at the last value
	Timeline []uint32
	// Memory is the data memory; unset addresses read as zero
	Memory map[uint32]byte
	// Faults forces the status returned by the n-th step (0 based)
	Faults map[int]sim.Status
	// Symbols is the device side symbol table, in code-word addresses
	Symbols map[string]uint32

	Target      string
	LoadedPath  string
	ClockPeriod sim.Time
	LoadErr     error
	Steps       []StepRecord

	pos   int
	armed map[uint32]bool
}

// NewDevice creates a fake device following the given PC timeline
func NewDevice(timeline ...uint32) *Device {
	return &Device{
		Timeline: timeline,
		Memory:   make(map[uint32]byte),
		Faults:   make(map[int]sim.Status),
		Symbols:  make(map[string]uint32),
		armed:    make(map[uint32]bool),
	}
}

func (d *Device) Load(objectPath string) error {
	d.LoadedPath = objectPath
	return d.LoadErr
}

func (d *Device) SetClockPeriod(period sim.Time) {
	d.ClockPeriod = period
}

func (d *Device) PC() uint32 {
	if len(d.Timeline) == 0 {
		return 0
	}
	return d.Timeline[d.pos]
}

func (d *Device) AddBreakpoint(addr uint32) {
	d.armed[addr] = true
}

func (d *Device) RemoveBreakpoint(addr uint32) {
	delete(d.armed, addr)
}

func (d *Device) ReadByte(addr uint32) byte {
	return d.Memory[addr]
}

func (d *Device) SymbolAddress(name string) (uint32, bool) {
	addr, ok := d.Symbols[name]
	return addr, ok
}

// IsArmed returns true if a breakpoint is armed at the address
func (d *Device) IsArmed(addr uint32) bool {
	return d.armed[addr]
}

// ArmedAddresses returns the armed breakpoints in ascending order
func (d *Device) ArmedAddresses() []uint32 {
	addrs := make([]uint32, 0, len(d.armed))
	for addr := range d.armed {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// SetWord stores a little endian 16 bit word in data memory
func (d *Device) SetWord(addr uint32, value uint16) {
	d.Memory[addr] = byte(value)
	d.Memory[addr+1] = byte(value >> 8)
}

func (d *Device) step() sim.Status {
	record := StepRecord{From: d.PC(), Armed: d.ArmedAddresses()}

	if d.pos+1 < len(d.Timeline) {
		d.pos++
	}
	record.To = d.PC()

	status := sim.StatusNormal
	if d.armed[record.To] && record.To != record.From {
		status = sim.StatusBreakpoint
	}
	if forced, ok := d.Faults[len(d.Steps)]; ok {
		status = forced
	}

	record.Status = status
	d.Steps = append(d.Steps, record)
	return status
}

// Clock is a sim.Clock advancing the registered fake devices
type Clock struct {
	Resets int

	now     sim.Time
	devices []*Device
}

func (c *Clock) Reset() {
	c.Resets++
	c.now = 0
	c.devices = nil
}

// Add registers a device. Only *Device values are supported
func (c *Clock) Add(device sim.Device) {
	c.devices = append(c.devices, device.(*Device))
}

func (c *Clock) Step() sim.Status {
	status := sim.StatusNormal
	period := sim.DefaultClockPeriod

	for _, d := range c.devices {
		if s := d.step(); s != sim.StatusNormal {
			status = s
		}
		if d.ClockPeriod != 0 {
			period = d.ClockPeriod
		}
	}

	c.now += period
	return status
}

func (c *Clock) Now() sim.Time {
	return c.now
}

// Backend hands out a single preset device and clock
type Backend struct {
	Device *Device
	Clock  *Clock
	Err    error
}

// NewBackend creates a backend around a fake device
func NewBackend(device *Device) *Backend {
	return &Backend{Device: device, Clock: &Clock{}}
}

func (b *Backend) NewClock() sim.Clock {
	return b.Clock
}

func (b *Backend) MakeDevice(target string) (sim.Device, error) {
	if b.Err != nil {
		return nil, b.Err
	}
	b.Device.Target = target
	return b.Device, nil
}
