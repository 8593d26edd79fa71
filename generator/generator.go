package generator

import (
	"math/rand"
)

// Generator generates a sequence of string values, following some
// distribution (discrete, uniform, ...).
type Generator interface {
	// NextString generates the next value in the distribution.
	NextString() string

	// LastString returns the previous value generated by NextString().
	// Calling LastString() should not advance the distribution and should
	// be idempotent between NextString() calls.
	LastString() string
}

// NextFloat64 draws from the package random source. The top-level source in
// math/rand is internally locked, so draws are safe from concurrent
// goroutines.
func NextFloat64() float64 {
	return rand.Float64()
}

// NextInt64 draws a non-negative value below n from the package random source.
func NextInt64(n int64) int64 {
	return rand.Int63n(n)
}
