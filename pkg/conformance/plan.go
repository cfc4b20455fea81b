// Package conformance checks that the periodic routines of a program driven
// by a tick scheduler meet their period and jitter contracts.
//
// Capture runs a program on a simulated device and records when every
// monitored routine is entered. Analyze judges a recorded trace against the
// plan's timebase: it anchors a time origin on the interrupt vector events,
// measures the lateness of every activation against its ideal instant and
// checks the background routine only runs once every periodic routine did.
package conformance

import (
	"time"

	"github.com/Manu343726/schedcheck/pkg/inspect"
	"github.com/Manu343726/schedcheck/pkg/utils"
	"github.com/samber/lo"
)

// Milliseconds scales nanosecond trace timestamps into milliseconds
const Milliseconds = 1e-6

// DefaultWindow is the simulated time measured after the scheduler starts
const DefaultWindow = time.Second

// Contract is the expected period and the jitter budget of a routine, in plan units
type Contract struct {
	Period    float64 `mapstructure:"period" yaml:"period"`
	MaxJitter float64 `mapstructure:"max_jitter" yaml:"max_jitter"`
}

// Plan describes what to monitor and the timing contracts to check
type Plan struct {
	// Target is the device variant to instantiate
	Target string `mapstructure:"target"`
	// Routines are the monitored routines, looked up in Scope
	Routines []string `mapstructure:"routines"`
	Scope    string   `mapstructure:"scope"`
	// Background must be one of Routines and has no contract
	Background string `mapstructure:"background"`
	// Vector is the tick interrupt routine anchoring the time origin
	Vector string `mapstructure:"vector"`
	// Entry and Scheduler are passed during setup, before measuring
	Entry     string `mapstructure:"entry"`
	Scheduler string `mapstructure:"scheduler"`
	// StackPointer is the data address of the stack pointer register
	StackPointer uint32              `mapstructure:"stack_pointer"`
	Timebase     map[string]Contract `mapstructure:"timebase"`
	// Window is the simulated time measured
	Window time.Duration `mapstructure:"window"`
	// Scale converts simulated nanoseconds into the timebase units
	Scale float64 `mapstructure:"scale"`
}

// Validate checks the plan is complete and consistent
func (p *Plan) Validate() error {
	for name, value := range map[string]string{
		"vector":     p.Vector,
		"entry":      p.Entry,
		"scheduler":  p.Scheduler,
		"background": p.Background,
	} {
		if value == "" {
			return utils.MakeError(ErrPlan, "no %s routine", name)
		}
	}

	if len(p.Routines) == 0 {
		return utils.MakeError(ErrPlan, "no routines to monitor")
	}
	if !lo.Contains(p.Routines, p.Background) {
		return utils.MakeError(ErrPlan, "background '%s' is not a monitored routine", p.Background)
	}
	if lo.Contains(p.Routines, p.Vector) {
		return utils.MakeError(ErrPlan, "vector '%s' cannot be a monitored routine", p.Vector)
	}
	if _, ok := p.Timebase[p.Vector]; !ok {
		return utils.MakeError(ErrPlan, "no contract for vector '%s'", p.Vector)
	}

	for _, routine := range p.Routines {
		if routine == p.Background {
			continue
		}
		if _, ok := p.Timebase[routine]; !ok {
			return utils.MakeError(ErrPlan, "no contract for routine '%s'", routine)
		}
	}

	for _, routine := range utils.SortedKeys(p.Timebase) {
		if routine != p.Vector && (routine == p.Background || !lo.Contains(p.Routines, routine)) {
			return utils.MakeError(ErrPlan, "contract for '%s', which is neither the vector nor a periodic routine", routine)
		}

		contract := p.Timebase[routine]
		if contract.Period <= 0 || contract.MaxJitter <= 0 {
			return utils.MakeError(ErrPlan, "contract of '%s' must have positive period and jitter", routine)
		}
	}

	if p.Window <= 0 {
		return utils.MakeError(ErrPlan, "measurement window must be positive")
	}
	if p.Scale <= 0 {
		return utils.MakeError(ErrPlan, "time scale must be positive")
	}

	return nil
}

// Layout returns the memory layout of the plan's target
func (p *Plan) Layout() inspect.Layout {
	layout := inspect.AVRLayout
	if p.StackPointer != 0 {
		layout.StackPointer = p.StackPointer
	}
	return layout
}

// Variant holds the per device facts of the test program
type Variant struct {
	Device string
	// Vector is the timer interrupt the scheduler tick runs from
	Vector       string
	StackPointer uint32
}

// Variants are the target variants the ARTX test program is built for
var Variants = map[string]Variant{
	"atmega16": {Device: "atmega16", Vector: "__vector_6", StackPointer: 0x5d},
	"attiny85": {Device: "attiny85", Vector: "__vector_3", StackPointer: 0x5d},
}

// DefaultPlan returns the ARTX scheduling plan for a target variant
func DefaultPlan(variant string) (Plan, error) {
	v, ok := Variants[variant]
	if !ok {
		return Plan{}, utils.MakeError(ErrUnknownVariant, "'%s', known variants are %v", variant, utils.SortedKeys(Variants))
	}

	return Plan{
		Target: v.Device,
		Routines: []string{
			"run_intr",
			"run_ut0",
			"run_ut1",
			"run_ut2",
			"run_ut3",
			"background",
		},
		Scope:        "artxtest.c",
		Background:   "background",
		Vector:       v.Vector,
		Entry:        "main",
		Scheduler:    "ARTX_schedule",
		StackPointer: v.StackPointer,
		Timebase: map[string]Contract{
			v.Vector:   {Period: 2, MaxJitter: 0.5},
			"run_intr": {Period: 2, MaxJitter: 1},
			"run_ut0":  {Period: 8, MaxJitter: 1.5},
			"run_ut1":  {Period: 50, MaxJitter: 2},
			"run_ut2":  {Period: 32, MaxJitter: 3},
			"run_ut3":  {Period: 64, MaxJitter: 4},
		},
		Window: DefaultWindow,
		Scale:  Milliseconds,
	}, nil
}
