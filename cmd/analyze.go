package cmd

import (
	"os"

	"github.com/Manu343726/schedcheck/pkg/conformance"
	"github.com/spf13/cobra"
)

var analyzeVariant string

var analyzeCmd = &cobra.Command{
	Use:   "analyze <trace.yaml>",
	Short: "Check a previously recorded trace",
	Long: `Runs the timing analysis on a trace saved by "check --trace-out", using the
same plan resolution as check.

Example:
  schedcheck analyze trace.yaml
  schedcheck analyze trace.yaml --config testdata/artx.yaml`,
	Args: cobra.ExactArgs(1),
	Run:  runAnalyze,
}

func init() {
	RootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&analyzeVariant, "variant", "V", "", "Device variant the plan defaults are taken from (default atmega16)")
}

func runAnalyze(cmd *cobra.Command, args []string) {
	plan, err := loadPlan(analyzeVariant)
	if err != nil {
		fail("%v", err)
	}

	file, err := os.Open(args[0])
	if err != nil {
		fail("%v", err)
	}
	trace, err := conformance.LoadTrace(file)
	file.Close()
	if err != nil {
		fail("%v", err)
	}

	printTraceSummary(os.Stdout, trace)
	report := conformance.Analyze(trace, plan)
	printReport(os.Stdout, report, plan)

	if !report.Passed() {
		os.Exit(1)
	}
}
