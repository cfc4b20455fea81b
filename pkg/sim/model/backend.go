package model

import (
	"fmt"
	"log/slog"

	"github.com/Manu343726/schedcheck/pkg/logging"
	"github.com/Manu343726/schedcheck/pkg/sim"
	"github.com/Manu343726/schedcheck/pkg/symtab"
	"github.com/Manu343726/schedcheck/pkg/utils"
)

// Clock steps every registered model device by one cycle. Simulated time
// advances by the longest clock period among them
type Clock struct {
	now     sim.Time
	devices []*Device
}

func (c *Clock) Reset() {
	c.now = 0
	c.devices = nil
}

// Add registers a device. Only devices created by this package can be driven
func (c *Clock) Add(device sim.Device) {
	d, ok := device.(*Device)
	if !ok {
		panic(fmt.Errorf("model clock cannot drive a %T", device))
	}
	c.devices = append(c.devices, d)
}

func (c *Clock) Step() sim.Status {
	status := sim.StatusNormal
	period := sim.Time(0)

	for _, d := range c.devices {
		s := d.step()
		if s.IsFault() || (s == sim.StatusBreakpoint && !status.IsFault()) {
			status = s
		}
		period = max(period, d.ClockPeriod())
	}

	if period == 0 {
		period = sim.DefaultClockPeriod
	}
	c.now += period
	return status
}

func (c *Clock) Now() sim.Time {
	return c.now
}

// Option configures a Backend
type Option func(*Backend)

// WithSymbols shares an already loaded symbol table with the devices
func WithSymbols(symbols *symtab.Table) Option {
	return func(b *Backend) {
		b.symbols = symbols
	}
}

// WithLogger sets the logger devices are reported on
func WithLogger(log *slog.Logger) Option {
	return func(b *Backend) {
		b.log = log
	}
}

// Backend creates model clocks and devices running one program configuration
type Backend struct {
	config  Config
	symbols *symtab.Table
	log     *slog.Logger
}

// NewBackend validates the configuration and returns a backend for it
func NewBackend(config Config, opts ...Option) (*Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	b := &Backend{
		config: config,
		log:    logging.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Backend) NewClock() sim.Clock {
	return &Clock{}
}

func (b *Backend) MakeDevice(target string) (sim.Device, error) {
	if !b.config.acceptsTarget(target) {
		return nil, utils.MakeError(ErrUnknownTarget, "'%s', supported targets are %v", target, b.config.Targets)
	}

	b.log.Debug("model device created", "target", target, "tasks", len(b.config.Tasks), "tick_cycles", b.config.TickCycles)
	return newDevice(b.config, target, b.symbols), nil
}
