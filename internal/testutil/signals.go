// Package testutil provides deterministic signal builders and tolerance
// helpers shared by the pipeline tests.
package testutil

import "math/rand"

// Burst returns a seeded broadband Gaussian signal. The same seed always
// produces the same samples.
func Burst(seed int64, n int) []float64 {
	rng := rand.New(rand.NewSource(seed))

	out := make([]float64, n)
	for i := range out {
		out[i] = rng.NormFloat64()
	}

	return out
}

// Shifted returns x delayed by the given number of whole samples, truncated
// to the original length.
func Shifted(x []float64, delay int) []float64 {
	out := make([]float64, len(x))
	for i := delay; i < len(x); i++ {
		out[i] = x[i-delay]
	}

	return out
}

// Impulse returns a unit impulse at the given position.
func Impulse(n, pos int) []float64 {
	out := make([]float64, n)
	if pos >= 0 && pos < n {
		out[pos] = 1
	}

	return out
}
