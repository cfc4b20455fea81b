package utils

import (
	"golang.org/x/exp/constraints"
)

// Reduces a sequence to a value given an accumulation function
func Reduce[T any, U any](input []T, foldFunc func(T, U) U) U {
	var result U

	for _, value := range input {
		result = foldFunc(value, result)
	}

	return result
}

// Returns the smaller item of a sequence. The sequence must not be empty
func Min[T constraints.Ordered](input []T) T {
	min := input[0]

	for _, item := range input {
		if item < min {
			min = item
		}
	}

	return min
}

// Returns the biggest item of a sequence. The sequence must not be empty
func Max[T constraints.Ordered](input []T) T {
	max := input[0]

	for _, item := range input {
		if item > max {
			max = item
		}
	}

	return max
}

// Returns the arithmetic mean of a sequence, zero if the sequence is empty
func Mean[T constraints.Integer | constraints.Float](input []T) float64 {
	if len(input) == 0 {
		return 0
	}

	sum := Reduce(input, func(item T, current float64) float64 {
		return current + float64(item)
	})

	return sum / float64(len(input))
}
