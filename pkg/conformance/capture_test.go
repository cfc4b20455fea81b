package conformance_test

import (
	"testing"
	"time"

	"github.com/Manu343726/schedcheck/pkg/conformance"
	"github.com/Manu343726/schedcheck/pkg/inspect"
	"github.com/Manu343726/schedcheck/pkg/sim"
	"github.com/Manu343726/schedcheck/pkg/sim/model"
	"github.com/Manu343726/schedcheck/pkg/sim/simtest"
	"github.com/Manu343726/schedcheck/pkg/symtab/symtabtest"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Code-word addresses of the scripted program
const (
	mainPC       = 0x80
	schedulePC   = 0xa0
	vectorPC     = 0xe0
	runUt0PC     = 0x100
	backgroundPC = 0x120
	taskUt0PC    = 0x140
	vectorSlotPC = 0x06

	stackBase = 0x0400
)

func scriptedObject(t *testing.T) string {
	t.Helper()

	return symtabtest.WriteFile(t, "artxtest.elf",
		symtabtest.Func("main", mainPC<<1, 0x40),
		symtabtest.Func("ARTX_schedule", schedulePC<<1, 0x40),
		symtabtest.Func("__vector_6", vectorPC<<1, 0x40),
		symtabtest.File("artxtest.c"),
		symtabtest.LocalFunc("run_ut0", runUt0PC<<1, 0x20),
		symtabtest.LocalFunc("background", backgroundPC<<1, 0x20),
		symtabtest.File("task.c"),
		symtabtest.LocalFunc("run_ut0", taskUt0PC<<1, 0x20),
	)
}

func scriptedPlan() conformance.Plan {
	return conformance.Plan{
		Target:       "atmega16",
		Routines:     []string{"run_ut0", "background"},
		Scope:        "artxtest.c",
		Background:   "background",
		Vector:       "__vector_6",
		Entry:        "main",
		Scheduler:    "ARTX_schedule",
		StackPointer: 0x5d,
		Timebase: map[string]conformance.Contract{
			"__vector_6": {Period: 2, MaxJitter: 0.5},
			"run_ut0":    {Period: 8, MaxJitter: 1.5},
		},
		Window: 50 * time.Millisecond,
		Scale:  conformance.Milliseconds,
	}
}

// interruptedTimeline enters run_ut0, takes an interrupt while leaving its
// entry, returns from the vector to returnPC and runs background
func interruptedTimeline(returnPC uint32) *simtest.Device {
	device := simtest.NewDevice(
		0x10,
		mainPC, mainPC+1,
		schedulePC, schedulePC+1,
		runUt0PC,
		vectorSlotPC, vectorPC, vectorPC+1,
		returnPC, runUt0PC+1,
		backgroundPC, backgroundPC+1,
	)
	device.SetWord(0x5d, stackBase)
	device.SetWord(stackBase, uint16(returnPC))
	return device
}

func capture(t *testing.T, device *simtest.Device, plan conformance.Plan) (*conformance.Trace, error) {
	t.Helper()

	ctrl, err := sim.Load(simtest.NewBackend(device), plan.Target, scriptedObject(t))
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)

	inspector := inspect.New(ctrl.Device(), ctrl.Symbols(), plan.Layout())
	return conformance.Capture(ctrl, inspector, plan)
}

func routines(trace *conformance.Trace) []string {
	return lo.Map(trace.Events, func(e conformance.Event, _ int) string {
		return e.Routine
	})
}

func TestCapture_Setup(t *testing.T) {
	device := interruptedTimeline(runUt0PC + 1)
	trace, err := capture(t, device, scriptedPlan())
	require.NoError(t, err)

	// main and the scheduler are setup only
	assert.NotContains(t, routines(trace), "main")
	assert.NotContains(t, routines(trace), "ARTX_schedule")
	assert.False(t, device.IsArmed(schedulePC), "scheduler breakpoint deleted after setup")
	assert.True(t, device.IsArmed(mainPC))

	assert.Equal(t, sim.Time(4_000), trace.Start)
	assert.Equal(t, "atmega16", trace.Target)
	assert.GreaterOrEqual(t, trace.End, trace.Start+sim.Duration(50*time.Millisecond))
}

func TestCapture_ReentrySuppression(t *testing.T) {
	t.Run("interrupt at routine entry", func(t *testing.T) {
		trace, err := capture(t, interruptedTimeline(runUt0PC), scriptedPlan())
		require.NoError(t, err)

		assert.Equal(t, []string{"run_ut0", "__vector_6", "background"}, routines(trace))
		assert.Equal(t, sim.Time(5_000), trace.Events[0].Time)
	})

	t.Run("interrupt in the middle of a routine", func(t *testing.T) {
		device := simtest.NewDevice(
			0x10,
			mainPC, mainPC+1,
			schedulePC, schedulePC+1,
			runUt0PC, runUt0PC+1,
			vectorSlotPC, vectorPC, vectorPC+1,
			runUt0PC+1, runUt0PC, runUt0PC+1,
			backgroundPC, backgroundPC+1,
		)
		device.SetWord(0x5d, stackBase)
		device.SetWord(stackBase, runUt0PC+1)

		trace, err := capture(t, device, scriptedPlan())
		require.NoError(t, err)

		assert.Equal(t, []string{"run_ut0", "__vector_6", "run_ut0", "background"}, routines(trace))
	})

	t.Run("interrupt at the entry of an unmonitored routine", func(t *testing.T) {
		device := interruptedTimeline(runUt0PC)
		device.SetWord(stackBase, mainPC)

		trace, err := capture(t, device, scriptedPlan())
		require.NoError(t, err)

		assert.Equal(t, []string{"run_ut0", "__vector_6", "run_ut0", "background"}, routines(trace))
	})

	t.Run("interrupt at a routine of the same name in another unit", func(t *testing.T) {
		device := interruptedTimeline(runUt0PC)
		device.SetWord(stackBase, taskUt0PC)

		trace, err := capture(t, device, scriptedPlan())
		require.NoError(t, err)

		assert.Equal(t, []string{"run_ut0", "__vector_6", "run_ut0", "background"}, routines(trace))
	})

	t.Run("suppresses a single hit", func(t *testing.T) {
		device := simtest.NewDevice(
			0x10,
			mainPC, mainPC+1,
			schedulePC, schedulePC+1,
			runUt0PC,
			vectorSlotPC, vectorPC, vectorPC+1,
			runUt0PC, runUt0PC+1,
			backgroundPC, backgroundPC+1,
			runUt0PC, runUt0PC+1,
		)
		device.SetWord(0x5d, stackBase)
		device.SetWord(stackBase, runUt0PC)

		trace, err := capture(t, device, scriptedPlan())
		require.NoError(t, err)

		assert.Equal(t, []string{"run_ut0", "__vector_6", "background", "run_ut0"}, routines(trace))
	})
}

func TestCapture_Errors(t *testing.T) {
	t.Run("invalid plan", func(t *testing.T) {
		plan := scriptedPlan()
		plan.Window = 0

		_, err := capture(t, interruptedTimeline(runUt0PC), plan)
		assert.ErrorIs(t, err, conformance.ErrPlan)
	})

	t.Run("unknown routine", func(t *testing.T) {
		plan := scriptedPlan()
		plan.Routines = append(plan.Routines, "run_ut1")
		plan.Timebase["run_ut1"] = conformance.Contract{Period: 50, MaxJitter: 2}

		_, err := capture(t, interruptedTimeline(runUt0PC), plan)
		assert.ErrorIs(t, err, conformance.ErrSetup)
		assert.ErrorIs(t, err, sim.ErrUnknownSymbol)
	})

	t.Run("scheduler before entry", func(t *testing.T) {
		device := simtest.NewDevice(0x10, schedulePC, schedulePC+1, mainPC)

		_, err := capture(t, device, scriptedPlan())
		assert.ErrorIs(t, err, conformance.ErrSetup)
		assert.ErrorContains(t, err, "hit 'ARTX_schedule'")
	})

	t.Run("entry never reached", func(t *testing.T) {
		device := simtest.NewDevice(0x10, 0x11)

		_, err := capture(t, device, scriptedPlan())
		assert.ErrorIs(t, err, conformance.ErrSetup)
	})

	t.Run("fault while measuring", func(t *testing.T) {
		device := interruptedTimeline(runUt0PC)
		device.Faults[7] = sim.Status(3)

		_, err := capture(t, device, scriptedPlan())
		assert.ErrorIs(t, err, sim.ErrFault)
	})
}

func TestCapture_EmptyWindow(t *testing.T) {
	device := simtest.NewDevice(0x10, mainPC, mainPC+1, schedulePC, schedulePC+1)

	trace, err := capture(t, device, scriptedPlan())
	require.NoError(t, err)
	assert.Empty(t, trace.Events)

	report := conformance.Analyze(trace, scriptedPlan())
	assert.ErrorIs(t, report.Err(), conformance.ErrNoEvents)
}

func modelObject(t *testing.T) string {
	t.Helper()

	return symtabtest.WriteFile(t, "artxtest.elf",
		symtabtest.Func("main", 0x0100, 0x40),
		symtabtest.Func("ARTX_schedule", 0x0140, 0x40),
		symtabtest.Func("__vector_6", 0x0180, 0x40),
		symtabtest.File("artxtest.c"),
		symtabtest.LocalFunc("run_intr", 0x0200, 0x20),
		symtabtest.LocalFunc("run_ut0", 0x0220, 0x20),
		symtabtest.LocalFunc("run_ut1", 0x0240, 0x20),
		symtabtest.LocalFunc("run_ut2", 0x0260, 0x20),
		symtabtest.LocalFunc("run_ut3", 0x0280, 0x20),
		symtabtest.LocalFunc("background", 0x02a0, 0x20),
	)
}

func TestCaptureAndAnalyze_Model(t *testing.T) {
	plan, err := conformance.DefaultPlan("atmega16")
	require.NoError(t, err)
	plan.Window = 200 * time.Millisecond

	backend, err := model.NewBackend(model.DefaultConfig())
	require.NoError(t, err)
	ctrl, err := sim.Load(backend, plan.Target, modelObject(t))
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)

	trace, err := conformance.Capture(ctrl, inspect.New(ctrl.Device(), ctrl.Symbols(), plan.Layout()), plan)
	require.NoError(t, err)
	require.NotEmpty(t, trace.Events)
	assert.Equal(t, "__vector_6", trace.Events[0].Routine)

	report := conformance.Analyze(trace, plan)
	assert.True(t, report.Passed(), "%v", report.Err())

	assert.GreaterOrEqual(t, report.Stats["__vector_6"].Count, 99)
	assert.GreaterOrEqual(t, report.Stats["run_ut1"].Count, 4)
	for routine, stats := range report.Stats {
		assert.GreaterOrEqual(t, stats.Min, 0.0, routine)
		assert.Less(t, stats.Min, plan.Timebase[routine].MaxJitter, routine)
	}

	t.Run("slow vector delays interrupt level task", func(t *testing.T) {
		config := model.DefaultConfig()
		config.VectorCycles = 1500

		backend, err := model.NewBackend(config)
		require.NoError(t, err)
		ctrl, err := sim.Load(backend, plan.Target, modelObject(t))
		require.NoError(t, err)
		t.Cleanup(ctrl.Close)

		trace, err := conformance.Capture(ctrl, inspect.New(ctrl.Device(), ctrl.Symbols(), plan.Layout()), plan)
		require.NoError(t, err)

		report := conformance.Analyze(trace, plan)
		assert.False(t, report.Passed())

		jitter, ok := report.Find(conformance.PropertyJitter, "run_intr")
		require.True(t, ok)
		assert.ErrorIs(t, jitter.Err, conformance.ErrJitterExceeded)

		lateness, ok := report.Find(conformance.PropertyLateness, "run_intr")
		require.True(t, ok)
		assert.True(t, lateness.Passed())
	})
}
