package model_test

import (
	"testing"

	"github.com/Manu343726/schedcheck/pkg/inspect"
	"github.com/Manu343726/schedcheck/pkg/sim"
	"github.com/Manu343726/schedcheck/pkg/sim/model"
	"github.com/Manu343726/schedcheck/pkg/symtab"
	"github.com/Manu343726/schedcheck/pkg/symtab/symtabtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testObject(t *testing.T) string {
	t.Helper()

	return symtabtest.WriteFile(t, "artxtest.elf",
		symtabtest.Func("main", 0x0100, 0x40),
		symtabtest.Func("ARTX_schedule", 0x0140, 0x40),
		symtabtest.Func("__vector_6", 0x0180, 0x40),
		symtabtest.File("artxtest.c"),
		symtabtest.LocalFunc("run_intr", 0x0200, 0x20),
		symtabtest.LocalFunc("run_ut0", 0x0220, 0x20),
		symtabtest.LocalFunc("run_ut1", 0x0240, 0x20),
		symtabtest.LocalFunc("background", 0x02a0, 0x20),
	)
}

// testConfig is small enough to follow cycle by cycle:
//
//	cycle   1: main
//	cycle  11: ARTX_schedule, tick timer started at cycle 12
//	cycle 112: first tick, two cycles in the vector table
//	cycle 114: __vector_6 (5 cycles)
//	cycle 119: run_intr (3 cycles)
//	cycle 123: run_ut0 (6 cycles)
//	cycle 129: run_ut1 (5 cycles)
//	cycle 134: background (4 cycles), then background again every 4 cycles
func testConfig() model.Config {
	return model.Config{
		Targets:    []string{"atmega16"},
		Entry:      "main",
		Scheduler:  "ARTX_schedule",
		Vector:     "__vector_6",
		Background: "background",
		Scope:      "artxtest.c",
		Tasks: []model.Task{
			{Routine: "run_intr", Period: 1, Cycles: 3, Interrupt: true},
			{Routine: "run_ut0", Period: 2, Cycles: 6},
			{Routine: "run_ut1", Period: 4, Cycles: 5},
		},
		TickCycles:       100,
		VectorCycles:     5,
		IRQLatency:       2,
		InitCycles:       10,
		BackgroundCycles: 4,
		VectorSlot:       0x0c,
		StackPointer:     0x5d,
		StackBase:        0x045f,
	}
}

func load(t *testing.T, config model.Config) *sim.Controller {
	t.Helper()

	backend, err := model.NewBackend(config)
	require.NoError(t, err)

	ctrl, err := sim.Load(backend, "atmega16", testObject(t))
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)
	return ctrl
}

func breakAll(t *testing.T, ctrl *sim.Controller) {
	t.Helper()

	for _, name := range []string{"main", "ARTX_schedule", "__vector_6"} {
		_, err := ctrl.BreakAt(name, symtab.GlobalScope)
		require.NoError(t, err)
	}
	for _, name := range []string{"run_intr", "run_ut0", "run_ut1", "background"} {
		_, err := ctrl.BreakAt(name, "artxtest.c")
		require.NoError(t, err)
	}
}

type hit struct {
	name string
	time sim.Time
}

func next(t *testing.T, ctrl *sim.Controller) hit {
	t.Helper()

	h, err := ctrl.Continue(sim.Time(1_000_000))
	require.NoError(t, err)
	require.NotNil(t, h)
	require.NoError(t, h.Leave())
	return hit{name: h.Name, time: h.Time}
}

func TestSchedule(t *testing.T) {
	ctrl := load(t, testConfig())
	breakAll(t, ctrl)

	expected := []hit{
		{"main", 1_000},
		{"ARTX_schedule", 11_000},
		{"__vector_6", 114_000},
		{"run_intr", 119_000},
		{"run_ut0", 123_000},
		{"run_ut1", 129_000},
		{"background", 134_000},
		{"background", 138_000},
	}

	for _, want := range expected {
		assert.Equal(t, want, next(t, ctrl))
	}
}

func TestSchedule_Periods(t *testing.T) {
	ctrl := load(t, testConfig())
	breakAll(t, ctrl)
	for _, name := range []string{"main", "ARTX_schedule", "background"} {
		require.NoError(t, ctrl.Delete(name))
	}

	hits := make(map[string][]float64)
	for ctrl.Now() < sim.Time(1_000_000) {
		h := next(t, ctrl)
		hits[h.name] = append(hits[h.name], float64(h.time))
	}

	intervals := func(times []float64) []float64 {
		result := make([]float64, 0, len(times))
		for i := 1; i < len(times); i++ {
			result = append(result, times[i]-times[i-1])
		}
		return result
	}

	require.GreaterOrEqual(t, len(hits["__vector_6"]), 9)
	for _, interval := range intervals(hits["__vector_6"]) {
		assert.Equal(t, 100_000.0, interval)
	}
	for _, interval := range intervals(hits["run_intr"]) {
		assert.Equal(t, 100_000.0, interval)
	}

	// user tasks wait for the background routine to return
	backgroundCycles := float64(testConfig().BackgroundCycles) * float64(sim.DefaultClockPeriod)
	require.NotEmpty(t, hits["run_ut0"])
	for _, interval := range intervals(hits["run_ut0"]) {
		assert.InDelta(t, 200_000.0, interval, backgroundCycles)
	}
	require.NotEmpty(t, hits["run_ut1"])
	for _, interval := range intervals(hits["run_ut1"]) {
		assert.InDelta(t, 400_000.0, interval, backgroundCycles)
	}

	device := ctrl.Device().(*model.Device)
	assert.GreaterOrEqual(t, device.Ticks(), 9)
	assert.Equal(t, sim.DefaultClockPeriod, device.ClockPeriod())
	assert.Equal(t, uint64(ctrl.Now()/device.ClockPeriod()), device.Cycles(), "one cycle per clock step")
}

func TestInterruptSavesReturnAddress(t *testing.T) {
	ctrl := load(t, testConfig())
	_, err := ctrl.BreakAt("__vector_6", symtab.GlobalScope)
	require.NoError(t, err)

	h, err := ctrl.Continue(sim.Time(1_000_000))
	require.NoError(t, err)
	require.NotNil(t, h)

	inspector := inspect.New(ctrl.Device(), ctrl.Symbols(), inspect.AVRLayout)
	assert.Equal(t, uint16(0x045f), inspector.StackPointer())
	// interrupted in the scheduler idle loop
	assert.Equal(t, "ARTX_schedule+2", ctrl.Symbols().Resolve(inspector.ReturnAddress()))
}

func TestSymbolAddress(t *testing.T) {
	ctrl := load(t, testConfig())

	assert.NoError(t, ctrl.CheckConsistency("main"))
	assert.NoError(t, ctrl.CheckConsistency("__vector_6"))
	assert.ErrorIs(t, ctrl.CheckConsistency("run_ut0"), sim.ErrUnknownSymbol)
}

func TestBackend_Errors(t *testing.T) {
	t.Run("unknown target", func(t *testing.T) {
		backend, err := model.NewBackend(testConfig())
		require.NoError(t, err)

		_, err = backend.MakeDevice("attiny85")
		assert.ErrorIs(t, err, model.ErrUnknownTarget)
	})

	t.Run("any target", func(t *testing.T) {
		config := testConfig()
		config.Targets = nil
		backend, err := model.NewBackend(config)
		require.NoError(t, err)

		device, err := backend.MakeDevice("attiny85")
		require.NoError(t, err)
		assert.Equal(t, "attiny85", device.(*model.Device).Target())
	})

	t.Run("missing routine", func(t *testing.T) {
		config := testConfig()
		config.Tasks = append(config.Tasks, model.Task{Routine: "run_ut3", Period: 8, Cycles: 4})
		backend, err := model.NewBackend(config)
		require.NoError(t, err)

		_, err = sim.Load(backend, "atmega16", testObject(t))
		assert.ErrorIs(t, err, model.ErrMissingRoutine)
	})

	t.Run("not loaded", func(t *testing.T) {
		backend, err := model.NewBackend(testConfig())
		require.NoError(t, err)

		device, err := backend.MakeDevice("atmega16")
		require.NoError(t, err)
		clock := backend.NewClock()
		clock.Add(device)

		assert.Equal(t, model.StatusNotLoaded, clock.Step())
		assert.True(t, model.StatusNotLoaded.IsFault())
	})
}

func TestConfig_Validate(t *testing.T) {
	defaults := model.DefaultConfig()
	assert.NoError(t, defaults.Validate())

	tests := map[string]func(c *model.Config){
		"missing vector":       func(c *model.Config) { c.Vector = "" },
		"zero tick":            func(c *model.Config) { c.TickCycles = 0 },
		"short vector":         func(c *model.Config) { c.VectorCycles = 1 },
		"zero period":          func(c *model.Config) { c.Tasks[1].Period = 0 },
		"short task":           func(c *model.Config) { c.Tasks[1].Cycles = 1 },
		"anonymous task":       func(c *model.Config) { c.Tasks[1].Routine = "" },
		"interrupt too long":   func(c *model.Config) { c.Tasks[0].Cycles = 2000 },
		"negative irq latency": func(c *model.Config) { c.IRQLatency = -1 },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			config := model.DefaultConfig()
			mutate(&config)
			assert.ErrorIs(t, config.Validate(), model.ErrConfig)

			_, err := model.NewBackend(config)
			assert.ErrorIs(t, err, model.ErrConfig)
		})
	}
}
