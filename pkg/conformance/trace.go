package conformance

import (
	"io"

	"github.com/Manu343726/schedcheck/pkg/sim"
	"github.com/Manu343726/schedcheck/pkg/utils"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Event is the activation of a monitored routine at a simulated time
type Event struct {
	Routine string   `yaml:"routine"`
	Time    sim.Time `yaml:"time"`
}

// Trace is the ordered list of events captured in a measurement window
type Trace struct {
	Target string   `yaml:"target,omitempty"`
	Start  sim.Time `yaml:"start"`
	End    sim.Time `yaml:"end"`
	Events []Event  `yaml:"events"`
}

func (t *Trace) add(routine string, time sim.Time) {
	t.Events = append(t.Events, Event{Routine: routine, Time: time})
}

// Routines returns the distinct routines in order of first activation
func (t *Trace) Routines() []string {
	return lo.Uniq(lo.Map(t.Events, func(e Event, _ int) string {
		return e.Routine
	}))
}

// Of returns the events of one routine
func (t *Trace) Of(routine string) []Event {
	return lo.Filter(t.Events, func(e Event, _ int) bool {
		return e.Routine == routine
	})
}

// Save writes the trace as YAML
func (t *Trace) Save(w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)

	if err := encoder.Encode(t); err != nil {
		return err
	}
	return encoder.Close()
}

// LoadTrace reads a trace written by Save
func LoadTrace(r io.Reader) (*Trace, error) {
	var trace Trace
	if err := yaml.NewDecoder(r).Decode(&trace); err != nil {
		return nil, utils.MakeError(ErrTrace, "%v", err)
	}
	return &trace, nil
}
