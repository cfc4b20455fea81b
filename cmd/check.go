package cmd

import (
	"os"
	"time"

	"github.com/Manu343726/schedcheck/pkg/conformance"
	"github.com/Manu343726/schedcheck/pkg/inspect"
	"github.com/Manu343726/schedcheck/pkg/sim"
	"github.com/Manu343726/schedcheck/pkg/sim/model"
	"github.com/Manu343726/schedcheck/pkg/symtab"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	checkVariant  string
	checkTraceOut string
	checkWindow   time.Duration
)

var checkCmd = &cobra.Command{
	Use:   "check <object>",
	Short: "Run a program on the simulated device and check its scheduling",
	Long: `Loads the object on the device model, passes its initialization, records the
activations of the monitored routines during the measurement window and checks
them against the plan's timebase.

The plan starts from the defaults of the selected variant and is overridden by
the "plan" section of the config file, then by the "variants.<variant>" section.
A timebase given in either section replaces the previous one as a whole. The
"model" section describes the program running on the modelled device.

Exits with status 1 when any property is violated.

Example:
  schedcheck check artxtest.elf
  schedcheck check artxtest.elf --variant attiny85 --window 500ms
  schedcheck check artxtest.elf --config testdata/artx.yaml --trace-out trace.yaml`,
	Args: cobra.ExactArgs(1),
	Run:  runCheck,
}

func init() {
	RootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVarP(&checkVariant, "variant", "V", "", "Device variant: atmega16 or attiny85 (default atmega16)")
	checkCmd.Flags().StringVarP(&checkTraceOut, "trace-out", "o", "", "Save the recorded trace to this file")
	checkCmd.Flags().DurationVarP(&checkWindow, "window", "w", 0, "Simulated time to measure (default from plan)")

	viper.SetDefault("variant", "atmega16")
}

func runCheck(cmd *cobra.Command, args []string) {
	logger := newLogger()
	defer logger.Close()

	plan, err := loadPlan(checkVariant)
	if err != nil {
		fail("%v", err)
	}
	if checkWindow > 0 {
		plan.Window = checkWindow
	}

	config, err := loadModel(plan)
	if err != nil {
		fail("%v", err)
	}

	symbols, err := symtab.Load(args[0])
	if err != nil {
		fail("%v", err)
	}

	backend, err := model.NewBackend(config, model.WithSymbols(symbols), model.WithLogger(logger.Logger))
	if err != nil {
		fail("%v", err)
	}

	ctrl, err := sim.Load(backend, plan.Target, args[0], sim.WithSymbols(symbols), sim.WithLogger(logger.Logger))
	if err != nil {
		fail("%v", err)
	}
	defer ctrl.Close()

	if err := ctrl.CheckConsistency(plan.Entry); err != nil {
		fail("%v", err)
	}

	inspector := inspect.New(ctrl.Device(), symbols, plan.Layout())
	trace, err := conformance.Capture(ctrl, inspector, plan, conformance.WithLogger(logger.Logger))
	if err != nil {
		fail("%v", err)
	}

	if device, ok := ctrl.Device().(*model.Device); ok {
		logger.Info("model run done", "target", device.Target(), "cycles", device.Cycles(), "ticks", device.Ticks(), "clock_period", device.ClockPeriod())
	}

	if checkTraceOut != "" {
		saveTrace(trace, checkTraceOut)
	}

	printTraceSummary(os.Stdout, trace)
	report := conformance.Analyze(trace, plan)
	printReport(os.Stdout, report, plan)

	if !report.Passed() {
		logger.Error("scheduling not conformant", "error", report.Err())
		ctrl.Close()
		logger.Close()
		os.Exit(1)
	}
}

func saveTrace(trace *conformance.Trace, path string) {
	file, err := os.Create(path)
	if err != nil {
		fail("%v", err)
	}
	defer file.Close()

	if err := trace.Save(file); err != nil {
		fail("saving trace: %v", err)
	}
}
