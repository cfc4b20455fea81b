package cmd

import (
	"fmt"
	"io"

	"github.com/Manu343726/schedcheck/pkg/conformance"
	"github.com/Manu343726/schedcheck/pkg/utils"
	"github.com/fatih/color"
)

var (
	colorAddr    = color.New(color.FgCyan)
	colorError   = color.New(color.FgRed, color.Bold)
	colorSuccess = color.New(color.FgGreen)
	colorHeader  = color.New(color.FgWhite, color.Bold, color.Underline)
	colorHiBlack = color.New(color.FgHiBlack)
)

// printReport writes one line per verdict followed by the lateness statistics
func printReport(w io.Writer, report *conformance.Report, plan conformance.Plan) {
	colorHeader.Fprintln(w, "Verdicts")
	for _, verdict := range report.Verdicts {
		if verdict.Passed() {
			fmt.Fprintf(w, "  %s %s\n", colorSuccess.Sprint("PASS"), verdict)
		} else {
			fmt.Fprintf(w, "  %s %s: %v\n", colorError.Sprint("FAIL"), verdict, verdict.Err)
		}
	}

	if len(report.Stats) > 0 {
		fmt.Fprintln(w)
		colorHeader.Fprintf(w, "Lateness (origin %.3f)\n", report.Origin)
		fmt.Fprintf(w, "  %-16s %6s %9s %9s %9s %9s %9s\n", "ROUTINE", "COUNT", "PERIOD", "MIN", "MAX", "MEAN", "JITTER")
		for _, routine := range utils.SortedKeys(report.Stats) {
			stats := report.Stats[routine]
			contract := plan.Timebase[routine]
			fmt.Fprintf(w, "  %-16s %6d %9.3f %9.3f %9.3f %9.3f %9.3f\n",
				routine, stats.Count, contract.Period, stats.Min, stats.Max, stats.Mean, contract.MaxJitter)
		}
	}

	fmt.Fprintln(w)
	if report.Passed() {
		colorSuccess.Fprintf(w, "PASS: %d properties hold\n", len(report.Verdicts))
	} else {
		colorError.Fprintf(w, "FAIL: %d of %d properties violated\n", len(report.Failures()), len(report.Verdicts))
	}
}

// printTraceSummary writes the number of events per routine
func printTraceSummary(w io.Writer, trace *conformance.Trace) {
	colorHiBlack.Fprintf(w, "%d events in [%v, %v]:", len(trace.Events), trace.Start, trace.End)
	for _, routine := range trace.Routines() {
		colorHiBlack.Fprintf(w, " %s=%d", routine, len(trace.Of(routine)))
	}
	fmt.Fprintln(w)
}
