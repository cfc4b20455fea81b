// Package sim drives a simulated device through a narrow control interface:
// breakpoints, single clock steps, bounded runs and memory reads.
//
// The simulator engine itself (instruction execution, peripherals, clocking)
// lives behind the Backend, Clock and Device interfaces. A Controller owns
// one device/clock pair for the lifetime of a run.
package sim

import (
	"fmt"
	"time"
)

// Time is simulated time in nanoseconds
type Time uint64

// Duration converts a wall clock style duration into simulated time
func Duration(d time.Duration) Time {
	return Time(d.Nanoseconds())
}

// String formats the simulated time as a duration
func (t Time) String() string {
	return time.Duration(t).String()
}

// DefaultClockPeriod is the device clock period set on load: 1000ns, 1MHz
const DefaultClockPeriod Time = 1000

// Status is the result code of a single clock step
type Status int

const (
	// StatusNormal means the step made normal progress
	StatusNormal Status = 0
	// StatusBreakpoint means the device stopped at an armed breakpoint
	StatusBreakpoint Status = -2
)

// String returns the string representation of a Status
func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusBreakpoint:
		return "breakpoint"
	default:
		return fmt.Sprintf("fault(%d)", int(s))
	}
}

// IsFault returns true for any status other than normal progress or a breakpoint hit
func (s Status) IsFault() bool {
	return s != StatusNormal && s != StatusBreakpoint
}

// Device is a simulated microcontroller instance. Code addresses are
// code-word indices (byte address shifted right by the instruction alignment)
type Device interface {
	// Load loads the code image of a compiled object
	Load(objectPath string) error
	// SetClockPeriod sets the duration of one device clock cycle
	SetClockPeriod(period Time)
	// PC returns the program counter as a code-word address
	PC() uint32
	AddBreakpoint(addr uint32)
	RemoveBreakpoint(addr uint32)
	// ReadByte reads one byte of data memory
	ReadByte(addr uint32) byte
}

// Clock is the simulation clock stepping all registered devices
type Clock interface {
	// Reset sets the simulated time back to zero and forgets registered devices
	Reset()
	Add(device Device)
	// Step advances the simulation by one scheduling quantum
	Step() Status
	Now() Time
}

// Backend instantiates clocks and devices of a simulator engine
type Backend interface {
	NewClock() Clock
	// MakeDevice instantiates a device of the given target variant (e.g. "atmega16")
	MakeDevice(target string) (Device, error)
}

// SymbolAddresser is implemented by devices that can resolve symbols of the
// loaded image themselves, returning code-word addresses
type SymbolAddresser interface {
	SymbolAddress(name string) (uint32, bool)
}
