package gamelogic

import "math/rand/v2"

// RandomSource yields floats in [0, 1). *rand.Rand from math/rand/v2 satisfies it.
type RandomSource interface {
	Float64() float64
}

type globalRandom struct{}

func (globalRandom) Float64() float64 {
	return rand.Float64()
}

// GlobalRandom returns the goroutine-safe process-wide source
func GlobalRandom() RandomSource {
	return globalRandom{}
}
