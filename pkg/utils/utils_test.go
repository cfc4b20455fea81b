package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllOnes(t *testing.T) {
	assert.Equal(t, uint8(0), AllOnes[uint8](0))
	assert.Equal(t, uint8(0x0f), AllOnes[uint8](4))
	assert.Equal(t, uint32(0xfffff), AllOnes[uint32](20))
	assert.Equal(t, uint64(0xffffffff), AllOnes[uint64](32))
}

func TestLittleEndianWord(t *testing.T) {
	assert.Equal(t, uint16(0x045f), LittleEndianWord(0x5f, 0x04))
	assert.Equal(t, uint16(0x00ff), LittleEndianWord(0xff, 0x00))
	assert.Equal(t, uint16(0xff00), LittleEndianWord(0x00, 0xff))
}

func TestInvertedMap(t *testing.T) {
	actual := InvertedMap(map[string]uint32{"main": 0x80, "background": 0x150})

	assert.Equal(t, map[uint32]string{0x80: "main", 0x150: "background"}, actual)
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]int{"c": 3, "a": 1, "b": 2}))
	assert.Empty(t, SortedKeys(map[int]bool{}))
}

func TestMinMax(t *testing.T) {
	input := []float64{3, -1.5, 7, 0}

	assert.Equal(t, -1.5, Min(input))
	assert.Equal(t, 7.0, Max(input))
	assert.Equal(t, 42, Min([]int{42}))
	assert.Equal(t, 42, Max([]int{42}))
}

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean([]float64{}))
	assert.Equal(t, 2.5, Mean([]int{1, 2, 3, 4}))
	assert.InDelta(t, 0.1, Mean([]float64{0, 0.1, 0.2}), 1e-12)
}

func TestReduce(t *testing.T) {
	actual := Reduce([]string{"a", "b", "c"}, func(item string, current string) string {
		return current + item
	})

	assert.Equal(t, "abc", actual)
}

func TestFormatUintHex(t *testing.T) {
	assert.Equal(t, "0x00a0", FormatUintHex(0xa0, 4))
	assert.Equal(t, "0x12345", FormatUintHex(0x12345, 4))
	assert.Equal(t, "0x0", FormatUintHex(0, 1))
}

func TestFormatSlice(t *testing.T) {
	assert.Equal(t, "", FormatSlice([]int{}, ", "))
	assert.Equal(t, "1", FormatSlice([]int{1}, ", "))
	assert.Equal(t, "main, artxtest.c", FormatSlice([]string{"main", "artxtest.c"}, ", "))
}

func TestMakeError(t *testing.T) {
	sentinel := errors.New("unknown symbol")

	err := MakeError(sentinel, "no function '%s' in %s", "run_ut0", "artxtest.c")

	assert.ErrorIs(t, err, sentinel)
	assert.EqualError(t, err, "unknown symbol: no function 'run_ut0' in artxtest.c")
}
