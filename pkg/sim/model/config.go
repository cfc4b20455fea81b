package model

import (
	"errors"

	"github.com/Manu343726/schedcheck/pkg/utils"
	"github.com/samber/lo"
)

var (
	// ErrConfig is returned for model configurations that cannot be simulated
	ErrConfig = errors.New("invalid model configuration")
	// ErrUnknownTarget is returned when instantiating an unsupported target variant
	ErrUnknownTarget = errors.New("unknown target")
	// ErrMissingRoutine is returned when a configured routine is not in the loaded object
	ErrMissingRoutine = errors.New("routine not found in object")
)

// Task is a periodic routine dispatched by the modelled scheduler
type Task struct {
	Routine string `mapstructure:"routine"`
	// Period in ticks
	Period int `mapstructure:"period"`
	// Cycles the routine takes to run, entry instruction included
	Cycles int `mapstructure:"cycles"`
	// Interrupt tasks run inside the tick interrupt, right after the vector routine
	Interrupt bool `mapstructure:"interrupt"`
}

// Config describes the program running on the modelled device
type Config struct {
	// Targets lists the accepted target variants. Empty accepts any
	Targets []string `mapstructure:"targets"`

	Entry      string `mapstructure:"entry"`
	Scheduler  string `mapstructure:"scheduler"`
	Vector     string `mapstructure:"vector"`
	Background string `mapstructure:"background"`
	// Scope is the compilation unit tasks and background are looked up in
	Scope string `mapstructure:"scope"`
	Tasks []Task `mapstructure:"tasks"`

	TickCycles       int `mapstructure:"tick_cycles"`
	VectorCycles     int `mapstructure:"vector_cycles"`
	IRQLatency       int `mapstructure:"irq_latency"`
	InitCycles       int `mapstructure:"init_cycles"`
	BackgroundCycles int `mapstructure:"background_cycles"`

	// VectorSlot is the code-word address of the interrupt vector table entry
	VectorSlot uint32 `mapstructure:"vector_slot"`
	// StackPointer is the data address of the stack pointer register
	StackPointer uint32 `mapstructure:"stack_pointer"`
	// StackBase is where the return address of the tick interrupt is saved
	StackBase uint32 `mapstructure:"stack_base"`
}

// DefaultConfig models the ARTX test program: a 2ms tick, an interrupt level
// task and four user tasks of 8, 50, 32 and 64ms at a 1MHz clock
func DefaultConfig() Config {
	return Config{
		Targets:    []string{"atmega16", "attiny85"},
		Entry:      "main",
		Scheduler:  "ARTX_schedule",
		Vector:     "__vector_6",
		Background: "background",
		Scope:      "artxtest.c",
		Tasks: []Task{
			{Routine: "run_intr", Period: 1, Cycles: 40, Interrupt: true},
			{Routine: "run_ut0", Period: 4, Cycles: 300},
			{Routine: "run_ut1", Period: 25, Cycles: 250},
			{Routine: "run_ut2", Period: 16, Cycles: 200},
			{Routine: "run_ut3", Period: 32, Cycles: 150},
		},
		TickCycles:       2000,
		VectorCycles:     30,
		IRQLatency:       4,
		InitCycles:       500,
		BackgroundCycles: 100,
		VectorSlot:       0x0c,
		StackPointer:     0x5d,
		StackBase:        0x045f,
	}
}

// isrCycles returns the worst case length of the tick interrupt
func (c *Config) isrCycles() int {
	cycles := c.IRQLatency + c.VectorCycles
	for _, task := range c.Tasks {
		if task.Interrupt {
			cycles += task.Cycles
		}
	}
	return cycles
}

// Validate checks the configuration describes a program the model can run
func (c *Config) Validate() error {
	for name, value := range map[string]string{
		"entry":      c.Entry,
		"scheduler":  c.Scheduler,
		"vector":     c.Vector,
		"background": c.Background,
	} {
		if value == "" {
			return utils.MakeError(ErrConfig, "missing %s routine", name)
		}
	}

	if c.TickCycles <= 0 || c.IRQLatency <= 0 || c.InitCycles <= 0 {
		return utils.MakeError(ErrConfig, "tick_cycles, irq_latency and init_cycles must be positive")
	}
	if c.VectorCycles < 2 || c.BackgroundCycles < 2 {
		return utils.MakeError(ErrConfig, "vector_cycles and background_cycles must be at least 2")
	}

	for _, task := range c.Tasks {
		if task.Routine == "" {
			return utils.MakeError(ErrConfig, "task without routine")
		}
		if task.Period < 1 {
			return utils.MakeError(ErrConfig, "task '%s' period must be at least one tick", task.Routine)
		}
		if task.Cycles < 2 {
			return utils.MakeError(ErrConfig, "task '%s' must take at least 2 cycles", task.Routine)
		}
	}

	if isr := c.isrCycles(); isr >= c.TickCycles {
		return utils.MakeError(ErrConfig, "tick interrupt takes %d cycles, longer than the %d cycles tick", isr, c.TickCycles)
	}

	return nil
}

// acceptsTarget returns true if the target variant can be instantiated
func (c *Config) acceptsTarget(target string) bool {
	if len(c.Targets) == 0 {
		return true
	}
	return lo.Contains(c.Targets, target)
}
