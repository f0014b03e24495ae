// Package util provides common utility functions for price calculations.
package util

import "math"

// tickEpsilon absorbs float64 division error when a price sits on an exact
// tick multiple, without masking genuine sub-tick deviations.
const tickEpsilon = 1e-12

// RoundToTick rounds x to the nearest tick increment, ties away from zero.
// For example, with tick=0.01, 1.2345 becomes 1.23 and 1.235 becomes 1.24.
// A zero tick, NaN or infinite x returns x unchanged; a negative tick is
// treated as its absolute value.
func RoundToTick(x, tick float64) float64 {
	if tick == 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	tick = math.Abs(tick)
	q := x / tick
	if q >= 0 {
		return math.Floor(q+0.5+tickEpsilon) * tick
	}
	return math.Ceil(q-0.5-tickEpsilon) * tick
}

// FloorToTick rounds x down to a tick multiple.
func FloorToTick(x, tick float64) float64 {
	if tick == 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	tick = math.Abs(tick)
	return math.Floor(snapToTick(x/tick)) * tick
}

// CeilToTick rounds x up to a tick multiple.
func CeilToTick(x, tick float64) float64 {
	if tick == 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	tick = math.Abs(tick)
	return math.Ceil(snapToTick(x/tick)) * tick
}

// snapToTick collapses a quotient sitting within tickEpsilon of an integer
// onto that integer, so exact multiples survive floor and ceil.
func snapToTick(q float64) float64 {
	r := math.Round(q)
	if math.Abs(q-r) <= tickEpsilon {
		return r
	}
	return q
}
