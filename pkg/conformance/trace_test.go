package conformance

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrace_SaveLoad(t *testing.T) {
	trace := &Trace{
		Target: "attiny85",
		Start:  502_000,
		End:    1_000_502_000,
		Events: []Event{
			{Routine: "__vector_3", Time: 2_506_000},
			{Routine: "run_intr", Time: 2_536_000},
			{Routine: "background", Time: 3_400_000},
		},
	}

	var buffer bytes.Buffer
	require.NoError(t, trace.Save(&buffer))
	assert.Contains(t, buffer.String(), "routine: run_intr")

	loaded, err := LoadTrace(&buffer)
	require.NoError(t, err)
	assert.Equal(t, trace, loaded)
}

func TestLoadTrace_Invalid(t *testing.T) {
	for name, input := range map[string]string{
		"empty":      "",
		"not yaml":   "events: [",
		"bad events": "events: 42",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadTrace(strings.NewReader(input))
			assert.ErrorIs(t, err, ErrTrace)
		})
	}
}

func TestTrace_Routines(t *testing.T) {
	trace := traceOf(
		events("run_ut0", 0),
		events(vector, 1),
		events("run_ut0", 20),
		events("background", 21),
	)

	assert.Equal(t, []string{"run_ut0", vector, "background"}, trace.Routines())
	assert.Len(t, trace.Of("run_ut0"), 2)
	assert.Empty(t, trace.Of("run_ut3"))
}
