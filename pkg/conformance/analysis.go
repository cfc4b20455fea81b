package conformance

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Manu343726/schedcheck/pkg/utils"
	"github.com/samber/lo"
)

// Property is a checked conformance property
type Property string

const (
	PropertyEvents   Property = "events"
	PropertyOrigin   Property = "origin"
	PropertyLateness Property = "lateness"
	PropertyJitter   Property = "jitter"
	PropertyFairness Property = "fairness"
)

// deltaTolerance absorbs the rounding of scaled timestamps, in plan units
const deltaTolerance = 1e-9

// Verdict is the outcome of one property, for one routine when the property is per routine
type Verdict struct {
	Property Property
	Routine  string
	// Err is nil when the property holds
	Err error
}

// Passed returns true if the property holds
func (v Verdict) Passed() bool {
	return v.Err == nil
}

// String returns "property" or "property/routine"
func (v Verdict) String() string {
	if v.Routine == "" {
		return string(v.Property)
	}
	return string(v.Property) + "/" + v.Routine
}

// Stats summarizes the lateness of a routine's activations
type Stats struct {
	Count int
	Min   float64
	Max   float64
	Mean  float64
}

// Report holds every verdict of one analysis
type Report struct {
	// Origin is the time origin anchored on the vector events, in plan units
	Origin   float64
	Verdicts []Verdict
	// Stats of the activation lateness per routine, in plan units
	Stats map[string]Stats
}

func (r *Report) add(property Property, routine string, err error) {
	r.Verdicts = append(r.Verdicts, Verdict{Property: property, Routine: routine, Err: err})
}

// Passed returns true if every property holds
func (r *Report) Passed() bool {
	return len(r.Failures()) == 0
}

// Failures returns the verdicts of the properties that do not hold
func (r *Report) Failures() []Verdict {
	return lo.Filter(r.Verdicts, func(v Verdict, _ int) bool {
		return !v.Passed()
	})
}

// Find returns the verdict of a property
func (r *Report) Find(property Property, routine string) (Verdict, bool) {
	return lo.Find(r.Verdicts, func(v Verdict) bool {
		return v.Property == property && v.Routine == routine
	})
}

// Err joins the errors of every failed property, nil if all hold
func (r *Report) Err() error {
	return errors.Join(lo.Map(r.Failures(), func(v Verdict, _ int) error {
		return fmt.Errorf("%s: %w", v, v.Err)
	})...)
}

// Analyze judges a trace against the plan's timebase. Every property is
// evaluated, violations are reported as failed verdicts
func Analyze(trace *Trace, plan Plan) *Report {
	report := &Report{Stats: make(map[string]Stats)}

	if len(trace.Events) == 0 {
		report.add(PropertyEvents, "", utils.MakeError(ErrNoEvents, "nothing hit in the %v window", plan.Window))
		return report
	}
	report.add(PropertyEvents, "", nil)

	checkTiming(trace, plan, report)
	checkFairness(trace, plan, report)
	return report
}

func checkTiming(trace *Trace, plan Plan, report *Report) {
	scaled := func(e Event) float64 {
		return float64(e.Time) * plan.Scale
	}

	vector := trace.Of(plan.Vector)
	if len(vector) == 0 {
		report.add(PropertyOrigin, "", utils.MakeError(ErrNoOrigin, "'%s' never hit", plan.Vector))
		return
	}

	tick := plan.Timebase[plan.Vector].Period
	report.Origin = lo.Min(lo.Map(vector, func(e Event, n int) float64 {
		return scaled(e) - float64(n)*tick
	}))
	report.add(PropertyOrigin, "", nil)

	deltas := make(map[string][]float64)
	for _, e := range trace.Events {
		contract, ok := plan.Timebase[e.Routine]
		if !ok || e.Routine == plan.Background {
			continue
		}

		d := deltas[e.Routine]
		ideal := report.Origin + float64(len(d))*contract.Period
		deltas[e.Routine] = append(d, normalize(scaled(e)-ideal))
	}

	for _, routine := range utils.SortedKeys(deltas) {
		d := deltas[routine]
		contract := plan.Timebase[routine]
		stats := Stats{
			Count: len(d),
			Min:   utils.Min(d),
			Max:   utils.Max(d),
			Mean:  utils.Mean(d),
		}
		report.Stats[routine] = stats

		if stats.Min < 0 {
			report.add(PropertyLateness, routine, utils.MakeError(ErrEarlyActivation, "min delta %.3f", stats.Min))
		} else {
			report.add(PropertyLateness, routine, nil)
		}

		if stats.Min >= contract.MaxJitter {
			report.add(PropertyJitter, routine, utils.MakeError(ErrJitterExceeded, "min delta %.3f, budget %.3f", stats.Min, contract.MaxJitter))
		} else {
			report.add(PropertyJitter, routine, nil)
		}
	}
}

func normalize(delta float64) float64 {
	if math.Abs(delta) < deltaTolerance {
		return 0
	}
	return delta
}

// checkFairness compares the routines seen before the first background
// event with the routines that have a contract
func checkFairness(trace *Trace, plan Plan, report *Report) {
	seen := make(map[string]bool)

	for _, e := range trace.Events {
		if e.Routine != plan.Background {
			seen[e.Routine] = true
			continue
		}

		missing := lo.Filter(utils.SortedKeys(plan.Timebase), func(routine string, _ int) bool {
			return !seen[routine]
		})
		unexpected := lo.Filter(utils.SortedKeys(seen), func(routine string, _ int) bool {
			_, ok := plan.Timebase[routine]
			return !ok
		})

		if len(missing) == 0 && len(unexpected) == 0 {
			report.add(PropertyFairness, "", nil)
			return
		}

		var details []string
		if len(missing) > 0 {
			details = append(details, "not yet run: "+strings.Join(missing, ", "))
		}
		if len(unexpected) > 0 {
			details = append(details, "unexpected: "+strings.Join(unexpected, ", "))
		}
		report.add(PropertyFairness, "", utils.MakeError(ErrUnfair, "at %v, %s", e.Time, strings.Join(details, "; ")))
		return
	}

	report.add(PropertyFairness, "", utils.MakeError(ErrBackgroundMissing, "'%s' never hit", plan.Background))
}
