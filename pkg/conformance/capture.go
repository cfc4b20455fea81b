package conformance

import (
	"fmt"
	"log/slog"

	"github.com/Manu343726/schedcheck/pkg/inspect"
	"github.com/Manu343726/schedcheck/pkg/logging"
	"github.com/Manu343726/schedcheck/pkg/sim"
	"github.com/Manu343726/schedcheck/pkg/symtab"
	"github.com/Manu343726/schedcheck/pkg/utils"
	"github.com/samber/lo"
)

// Option configures Capture
type Option func(*capturer)

// WithLogger sets the logger setup steps and events are traced on
func WithLogger(log *slog.Logger) Option {
	return func(c *capturer) {
		c.log = log
	}
}

type capturer struct {
	ctrl      *sim.Controller
	inspector *inspect.Inspector
	plan      Plan
	log       *slog.Logger
}

// Capture runs the program loaded in the controller through its
// initialization and records the activations of the plan's routines for
// the plan's measurement window.
//
// Setup arms the monitored routines, the entry point, the vector and the
// scheduler, then expects the entry point and the scheduler to be hit in
// that order. The scheduler breakpoint is deleted once passed: measuring
// starts when the scheduler is running.
//
// A tick interrupt taken right at the entry of a monitored routine returns
// to that entry, hitting its breakpoint a second time for the same
// activation. Such interrupts are detected from the saved return address
// and the repeated hit is not recorded.
func Capture(ctrl *sim.Controller, inspector *inspect.Inspector, plan Plan, opts ...Option) (*Trace, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	c := &capturer{
		ctrl:      ctrl,
		inspector: inspector,
		plan:      plan,
		log:       logging.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.setup(); err != nil {
		return nil, err
	}
	return c.measure()
}

func (c *capturer) arm(name string, scope string) error {
	if _, err := c.ctrl.BreakAt(name, scope); err != nil {
		return fmt.Errorf("%w: %w", ErrSetup, err)
	}
	return nil
}

// expect runs until the next breakpoint, which must be the given routine, and leaves it
func (c *capturer) expect(name string) error {
	hit, err := c.ctrl.Continue(sim.Duration(c.plan.Window))
	if err != nil {
		return err
	}
	if hit == nil {
		return utils.MakeError(ErrSetup, "'%s' not reached in %v", name, c.plan.Window)
	}
	if hit.Name != name {
		return utils.MakeError(ErrSetup, "expected '%s', hit '%s' at %v", name, hit.Name, hit.Time)
	}

	c.log.Info("setup breakpoint hit", "routine", name, "time", hit.Time)
	return hit.Leave()
}

func (c *capturer) setup() error {
	for _, routine := range c.plan.Routines {
		if err := c.arm(routine, c.plan.Scope); err != nil {
			return err
		}
	}
	for _, routine := range []string{c.plan.Entry, c.plan.Vector, c.plan.Scheduler} {
		if err := c.arm(routine, symtab.GlobalScope); err != nil {
			return err
		}
	}

	if err := c.expect(c.plan.Entry); err != nil {
		return err
	}
	if err := c.expect(c.plan.Scheduler); err != nil {
		return err
	}
	return c.ctrl.Delete(c.plan.Scheduler)
}

// reentered returns the monitored routine an interrupt was taken at the
// entry of, if any. Routines with the same name in other units do not count
func (c *capturer) reentered() (string, bool) {
	loc, ok := c.ctrl.Symbols().Locate(c.inspector.ReturnAddress())
	if !ok || loc.Offset != 0 || loc.Symbol.Scope != c.plan.Scope {
		return "", false
	}
	if !lo.Contains(c.plan.Routines, loc.Symbol.Name) {
		return "", false
	}
	return loc.Symbol.Name, true
}

func (c *capturer) measure() (*Trace, error) {
	trace := &Trace{
		Target: c.plan.Target,
		Start:  c.ctrl.Now(),
	}
	end := trace.Start + sim.Duration(c.plan.Window)
	suppressed := make(map[string]bool)

	c.log.Info("measuring", "start", trace.Start, "window", c.plan.Window)

	for now := c.ctrl.Now(); now < end; now = c.ctrl.Now() {
		hit, err := c.ctrl.Continue(end - now)
		if err != nil {
			return nil, err
		}
		if hit == nil {
			break
		}

		if hit.Name == c.plan.Vector {
			if routine, ok := c.reentered(); ok {
				suppressed[routine] = true
				c.log.Debug("interrupt at routine entry", "routine", routine, "time", hit.Time)
			}
		}

		if suppressed[hit.Name] {
			delete(suppressed, hit.Name)
			c.log.Debug("repeated hit not recorded", "routine", hit.Name, "time", hit.Time)
		} else {
			trace.add(hit.Name, hit.Time)
			c.log.Debug("event", "routine", hit.Name, "time", hit.Time)
		}

		if err := hit.Leave(); err != nil {
			return nil, err
		}
	}

	trace.End = c.ctrl.Now()
	c.log.Info("measurement done", "events", len(trace.Events), "end", trace.End)
	return trace, nil
}
