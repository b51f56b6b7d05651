package synth

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/cwbudde/algo-fft"
	"github.com/cwbudde/algo-vecmath"
)

// Errors returned by call synthesis.
var (
	ErrInvalidFrequency  = errors.New("synth: frequency must be positive")
	ErrFrequencyOrder    = errors.New("synth: start frequency must be less than end frequency")
	ErrInvalidDuration   = errors.New("synth: duration must be positive")
	ErrInvalidSampleRate = errors.New("synth: sample rate must be positive")
	ErrInvalidTaper      = errors.New("synth: taper percent must be >= 0")
	ErrAboveNyquist      = errors.New("synth: frequency content exceeds Nyquist")
)

// resonanceBandwidthFrac sets the half-power width of the resonance filter
// relative to its center frequency.
const resonanceBandwidthFrac = 0.15

// Call defines a synthetic echolocation call.
//
// The generated waveform sweeps from EndFreq down to StartFreq (the
// underlying quadratic sweep runs upward and is time-reversed), shaped by a
// resonance near the call's dominant frequency.
type Call struct {
	StartFreq    float64 // sweep start frequency in Hz
	EndFreq      float64 // sweep end frequency in Hz
	Duration     float64 // call duration in seconds, excluding silence padding
	SampleRate   float64 // sample rate in Hz
	TaperPercent float64 // silence padding on each side, as % of the sweep length
}

// Validate checks that the call parameters are physically realizable at the
// configured sample rate.
func (c *Call) Validate() error {
	if c.StartFreq <= 0 || c.EndFreq <= 0 {
		return ErrInvalidFrequency
	}

	if c.StartFreq >= c.EndFreq {
		return ErrFrequencyOrder
	}

	if c.Duration <= 0 {
		return ErrInvalidDuration
	}

	if c.SampleRate <= 0 {
		return ErrInvalidSampleRate
	}

	if c.TaperPercent < 0 {
		return ErrInvalidTaper
	}

	if c.EndFreq >= c.SampleRate/2 || c.ResonanceFreq() >= c.SampleRate/2 {
		return ErrAboveNyquist
	}

	if c.samples() <= 0 {
		return ErrInvalidDuration
	}

	return nil
}

// ResonanceFreq returns the center frequency of the spectral shaping filter.
func (c *Call) ResonanceFreq() float64 {
	return (c.StartFreq+c.EndFreq)/2 - c.StartFreq/3
}

// samples returns the number of samples in the sweep, excluding padding.
func (c *Call) samples() int {
	return int(math.Round(c.Duration * c.SampleRate))
}

// Generate synthesizes the call waveform.
//
// The instantaneous frequency of the underlying sweep rises quadratically:
//
//	f(t) = f1 + (f2-f1) * (t/T)^2
//
// with phase integral
//
//	phi(t) = 2*pi * (f1*t + (f2-f1)*t^3/(3*T^2))
//
// The sweep is time-reversed, filtered through a 4th-order resonance at
// ResonanceFreq, Hann-windowed, peak-normalized, and padded with
// TaperPercent% of silence on each side.
func (c *Call) Generate() ([]float64, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	n := c.samples()
	sweep := make([]float64, n)

	T := c.Duration
	k := c.EndFreq - c.StartFreq

	for i := range sweep {
		t := float64(i) / c.SampleRate
		phase := 2 * math.Pi * (c.StartFreq*t + k*t*t*t/(3*T*T))
		sweep[i] = math.Sin(phase)
	}

	// Time-reverse so the instantaneous frequency descends.
	for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
		sweep[i], sweep[j] = sweep[j], sweep[i]
	}

	shaped, err := c.applyResonance(sweep)
	if err != nil {
		return nil, err
	}

	vecmath.MulBlockInPlace(shaped, hann(n))

	// Peak-normalize: the resonance filter removes most of the sweep's
	// energy, so the surviving band is rescaled to unit amplitude.
	if peak := vecmath.MaxAbs(shaped); peak > 0 {
		vecmath.ScaleBlockInPlace(shaped, 1/peak)
	}

	pad := int(math.Round(c.TaperPercent / 100 * float64(n)))

	out := make([]float64, pad+n+pad)
	copy(out[pad:], shaped)

	return out, nil
}

// applyResonance filters the sweep through a 4th-order resonance centered at
// ResonanceFreq, with near-zero gain away from the resonance.
func (c *Call) applyResonance(sweep []float64) ([]float64, error) {
	n := len(sweep)
	fftSize := nextPowerOf2(n)

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("synth: failed to create FFT plan: %w", err)
	}

	padded := make([]complex128, fftSize)
	for i, v := range sweep {
		padded[i] = complex(v, 0)
	}

	freq := make([]complex128, fftSize)
	if err := plan.Forward(freq, padded); err != nil {
		return nil, fmt.Errorf("synth: forward FFT failed: %w", err)
	}

	fc := c.ResonanceFreq()
	bw := resonanceBandwidthFrac * fc

	// Apply the magnitude response to the positive-frequency half and
	// mirror it by conjugate symmetry so the output stays real.
	half := fftSize / 2
	for i := 0; i <= half; i++ {
		f := float64(i) * c.SampleRate / float64(fftSize)
		g := complex(resonanceGain(f, fc, bw), 0)

		freq[i] *= g
		if i > 0 && i < half {
			freq[fftSize-i] *= g
		}
	}

	out := make([]complex128, fftSize)
	if err := plan.Inverse(out, freq); err != nil {
		return nil, fmt.Errorf("synth: inverse FFT failed: %w", err)
	}

	result := make([]float64, n)
	for i := range result {
		result[i] = real(out[i])
	}

	return result, nil
}

// resonanceGain is the 4th-order resonance magnitude response:
//
//	g(f) = 1 / (1 + ((f - fc)/bw)^4)
func resonanceGain(f, fc, bw float64) float64 {
	d := (f - fc) / bw
	return 1 / (1 + d*d*d*d)
}

// hann returns a symmetric Hann window of the given length.
func hann(n int) []float64 {
	w := make([]float64, n)
	if n == 1 {
		w[0] = 1
		return w
	}

	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}

	return w
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
