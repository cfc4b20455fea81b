package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrFault is matched by every simulator fault reported by a step
	ErrFault = errors.New("simulator fault")
	// ErrUnexpectedStatus is returned when a step that must make normal progress does not
	ErrUnexpectedStatus = errors.New("unexpected step status")
	// ErrUnknownSymbol is returned when a breakpoint target cannot be resolved
	ErrUnknownSymbol = errors.New("unknown symbol")
	// ErrUnknownBreakpoint is returned when referring to a breakpoint that was never
	// set by name, or when stopping at one armed by address only
	ErrUnknownBreakpoint = errors.New("unknown breakpoint")
	// ErrInconsistentSymbols is returned when the device and the symbol table disagree on an address
	ErrInconsistentSymbols = errors.New("inconsistent symbol address")
)

// FaultError reports the status and location of a simulator fault
type FaultError struct {
	Status Status
	PC     uint32
	Time   Time
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("simulator fault: step returned %v at pc 0x%04x (t=%v)", e.Status, e.PC, e.Time)
}

// Is makes errors.Is(err, ErrFault) match any FaultError
func (e *FaultError) Is(target error) bool {
	return target == ErrFault
}
