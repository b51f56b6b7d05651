// Package tdoa estimates time differences of arrival from propagated
// sensor signals by normalized cross-correlation against the reference
// channel, with sub-sample peak refinement on the correlation envelope.
package tdoa

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/cwbudde/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"github.com/sonarlab/echoloc/field"
)

// Errors returned by delay estimation.
var (
	ErrTooFewChannels    = errors.New("tdoa: need at least two channels")
	ErrEmptyChannel      = errors.New("tdoa: channel waveform is empty")
	ErrLengthMismatch    = errors.New("tdoa: channel lengths differ")
	ErrInvalidSampleRate = errors.New("tdoa: sample rate must be positive")
)

// Estimate recovers per-sensor delays relative to the reference channel
// (channel 0) from a propagated signal set.
//
// For each non-reference channel the energy-normalized cross-correlation
// against the reference is evaluated at every lag. The winning lag is read
// from the correlation envelope (the magnitude of the analytic correlation)
// rather than the raw oscillation: a narrowband call's correlation carries
// the resonance as a carrier, and its sidelobes can outgrow the true peak's
// nearest samples when the true delay falls between lags. The envelope is
// carrier-free and symmetric about the true delay, so its maximum is the
// correct coarse lag, refined to sub-sample precision by a parabolic fit
// through the peak and its neighbors. Exact ties resolve to the lowest lag
// index. Returns len(channels)-1 delays, in seconds, in channel order.
func Estimate(set *field.SignalSet, sampleRate float64) ([]float64, error) {
	return EstimateChannels(set.Waveforms, sampleRate)
}

// EstimateChannels is Estimate on a bare channel collection. Channel 0 is
// the reference.
func EstimateChannels(channels [][]float64, sampleRate float64) ([]float64, error) {
	if len(channels) < 2 {
		return nil, ErrTooFewChannels
	}

	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}

	ref := channels[0]
	if len(ref) == 0 {
		return nil, ErrEmptyChannel
	}

	for i, ch := range channels[1:] {
		if len(ch) == 0 {
			return nil, ErrEmptyChannel
		}
		if len(ch) != len(ref) {
			return nil, fmt.Errorf("%w: channel %d has %d samples, reference has %d",
				ErrLengthMismatch, i+1, len(ch), len(ref))
		}
	}

	n := len(ref)
	fftSize := nextPowerOf2(2*n - 1)

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("tdoa: failed to create FFT plan: %w", err)
	}

	// The reference spectrum is shared by every channel's correlation.
	refConj, err := conjSpectrum(plan, ref, fftSize)
	if err != nil {
		return nil, err
	}

	refEnergy := vecmath.DotProduct(ref, ref)

	delays := make([]float64, len(channels)-1)

	for i, ch := range channels[1:] {
		env, err := correlateAgainst(plan, ch, refConj, fftSize, n)
		if err != nil {
			return nil, err
		}

		norm := math.Sqrt(refEnergy * vecmath.DotProduct(ch, ch))
		if norm > 0 {
			vecmath.ScaleBlockInPlace(env, 1/norm)
		}

		peakIdx := peakIndex(env)
		lag := float64(peakIdx-(n-1)) + parabolicOffset(env, peakIdx)

		delays[i] = lag / sampleRate
	}

	return delays, nil
}

// peakIndex returns the index of the maximum value. The strict comparison
// keeps the lowest index on exact ties.
func peakIndex(v []float64) int {
	idx := 0
	for j, x := range v {
		if x > v[idx] {
			idx = j
		}
	}

	return idx
}

// parabolicOffset returns the sub-sample offset of the peak at i, from a
// parabola fitted through the peak and its two neighbors. The offset is in
// (-0.5, 0.5] when i is a strict local maximum; it is zero at the ends of
// the slice and on a degenerate (non-concave) fit.
func parabolicOffset(v []float64, i int) float64 {
	if i <= 0 || i >= len(v)-1 {
		return 0
	}

	den := v[i-1] - 2*v[i] + v[i+1]
	if den >= 0 {
		return 0
	}

	return 0.5 * (v[i-1] - v[i+1]) / den
}

// conjSpectrum returns the conjugated spectrum of x zero-padded to fftSize.
func conjSpectrum(plan *algofft.Plan[complex128], x []float64, fftSize int) ([]complex128, error) {
	padded := make([]complex128, fftSize)
	for i, v := range x {
		padded[i] = complex(v, 0)
	}

	freq := make([]complex128, fftSize)
	if err := plan.Forward(freq, padded); err != nil {
		return nil, fmt.Errorf("tdoa: forward FFT failed: %w", err)
	}

	for i := range freq {
		freq[i] = complex(real(freq[i]), -imag(freq[i]))
	}

	return freq, nil
}

// correlateAgainst computes the envelope of the full linear cross-correlation
// of x with the signal whose conjugated spectrum is refConj. Zeroing the
// negative-frequency half of the cross spectrum (and doubling the positive
// half) makes the inverse transform the analytic correlation, whose
// magnitude is the envelope. The result has length 2n-1; index k corresponds
// to lag k - (n - 1).
func correlateAgainst(plan *algofft.Plan[complex128], x []float64, refConj []complex128, fftSize, n int) ([]float64, error) {
	padded := make([]complex128, fftSize)
	for i, v := range x {
		padded[i] = complex(v, 0)
	}

	freq := make([]complex128, fftSize)
	if err := plan.Forward(freq, padded); err != nil {
		return nil, fmt.Errorf("tdoa: forward FFT failed: %w", err)
	}

	half := fftSize / 2
	freq[0] *= refConj[0]
	for i := 1; i < half; i++ {
		freq[i] *= 2 * refConj[i]
	}
	if half > 0 {
		freq[half] *= refConj[half]
	}
	for i := half + 1; i < fftSize; i++ {
		freq[i] = 0
	}

	out := make([]complex128, fftSize)
	if err := plan.Inverse(out, freq); err != nil {
		return nil, fmt.Errorf("tdoa: inverse FFT failed: %w", err)
	}

	// Rearrange the circular result into linear lag order: negative lags
	// wrap around at the end of the FFT buffer.
	env := make([]float64, 2*n-1)
	for i := 0; i < n; i++ {
		env[n-1+i] = magnitude(out[i])
	}
	for i := 0; i < n-1; i++ {
		env[i] = magnitude(out[fftSize-n+1+i])
	}

	return env, nil
}

func magnitude(c complex128) float64 {
	return math.Hypot(real(c), imag(c))
}

// nextPowerOf2 returns the next power of 2 >= n.
func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}

	p := 1
	for p < n {
		p *= 2
	}

	return p
}
