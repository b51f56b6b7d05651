package field

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	algofft "github.com/cwbudde/algo-fft"
	"github.com/cwbudde/algo-vecmath"

	"github.com/sonarlab/echoloc/array"
)

// Errors returned by propagation.
var (
	ErrEmptyCall         = errors.New("field: call waveform is empty")
	ErrInvalidSampleRate = errors.New("field: sample rate must be positive")
	ErrInvalidSpeed      = errors.New("field: speed of sound must be positive")
	ErrSourceAtReference = errors.New("field: source coincides with reference sensor")
)

// AttenuationCoeff is k in the atmospheric absorption model
//
//	alpha(f) = k * (f/1 kHz)^2  [dB/m]
//
// scaled for ultrasonic propagation in air.
const AttenuationCoeff = 0.038

// SpeedOfSound is the default propagation speed in air, in m/s.
const SpeedOfSound = 343.0

// Model propagates calls from a source position to a fixed sensor array.
// Immutable once constructed; safe for concurrent use.
type Model struct {
	Geometry     array.Geometry
	SampleRate   float64 // Hz
	SpeedOfSound float64 // m/s
	SNRdB        float64 // target SNR; +Inf disables noise
	Seed         int64   // noise seed; a fixed seed makes propagation bit-reproducible
}

// SignalSet holds the per-sensor propagated waveforms for one source
// position, together with the ground truth used for error scoring.
type SignalSet struct {
	// Waveforms are the per-sensor channels, aligned to a common time base
	// and padded to equal length.
	Waveforms [][]float64

	// Distances are the true source-to-sensor distances in meters.
	Distances []float64

	// Delays are the true arrival delays in seconds, normalized so
	// Delays[0] (the reference sensor) is exactly zero.
	Delays []float64

	// True direction of the source relative to the reference sensor.
	AzimuthDeg   float64
	ElevationDeg float64
}

// Validate checks the model parameters.
func (m *Model) Validate() error {
	if err := m.Geometry.Validate(); err != nil {
		return err
	}

	if m.SampleRate <= 0 {
		return ErrInvalidSampleRate
	}

	if m.SpeedOfSound <= 0 {
		return ErrInvalidSpeed
	}

	return nil
}

// Propagate simulates the call arriving at every sensor from the given
// source position.
//
// Noise is injected once into the source call, so all sensors observe the
// same noise realization. The source must not coincide with the reference
// sensor: a zero reference distance leaves nothing to normalize delays and
// spreading against.
func (m *Model) Propagate(call []float64, source array.Position) (*SignalSet, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	if len(call) == 0 {
		return nil, ErrEmptyCall
	}

	sensors := m.Geometry.Sensors

	distances := make([]float64, len(sensors))
	delays := make([]float64, len(sensors))

	for i, s := range sensors {
		distances[i] = source.Dist(s)
		delays[i] = distances[i] / m.SpeedOfSound
	}

	refDist := distances[0]
	if refDist == 0 {
		return nil, ErrSourceAtReference
	}

	refDelay := delays[0]
	maxDelay := 0.0

	for i := range delays {
		delays[i] -= refDelay
		if delays[i] > maxDelay {
			maxDelay = delays[i]
		}
	}

	noisy := m.addNoise(call)

	spectrum, plan, err := forwardSpectrum(noisy)
	if err != nil {
		return nil, err
	}

	// Common channel length: worst-case arrival offset plus the call.
	length := int(math.Ceil(maxDelay*m.SampleRate)) + len(call)
	waveforms := make([][]float64, len(sensors))

	for i := range sensors {
		attenuated, err := m.attenuate(spectrum, plan, len(call), distances[i])
		if err != nil {
			return nil, err
		}

		// Geometric spreading relative to the reference sensor.
		vecmath.ScaleBlockInPlace(attenuated, refDist/distances[i])

		waveforms[i] = shiftFractional(attenuated, delays[i]*m.SampleRate, length)
	}

	az, el := array.Direction(sensors[0], source)

	return &SignalSet{
		Waveforms:    waveforms,
		Distances:    distances,
		Delays:       delays,
		AzimuthDeg:   az,
		ElevationDeg: el,
	}, nil
}

// addNoise returns the call with one Gaussian noise realization added,
// sized so the ratio of call power to noise power matches SNRdB. Power is
// averaged over the call's active extent, so the silence padding around the
// sweep does not dilute the target SNR.
func (m *Model) addNoise(call []float64) []float64 {
	out := make([]float64, len(call))
	copy(out, call)

	if math.IsInf(m.SNRdB, 1) {
		return out
	}

	active := activeLength(call)
	if active == 0 {
		return out
	}

	signalPower := vecmath.DotProduct(call, call) / float64(active)
	noisePower := signalPower / math.Pow(10, m.SNRdB/10)
	sigma := math.Sqrt(noisePower)

	rng := rand.New(rand.NewSource(m.Seed))
	for i := range out {
		out[i] += sigma * rng.NormFloat64()
	}

	return out
}

// activeLength returns the sample count between the first and last nonzero
// samples, inclusive. Zero for an all-silent call.
func activeLength(call []float64) int {
	first, last := -1, -1

	for i, v := range call {
		if v != 0 {
			if first < 0 {
				first = i
			}
			last = i
		}
	}

	if first < 0 {
		return 0
	}

	return last - first + 1
}

// forwardSpectrum transforms the call once; per-sensor attenuation then
// reuses the same spectrum and plan.
func forwardSpectrum(call []float64) ([]complex128, *algofft.Plan[complex128], error) {
	fftSize := nextPowerOf2(len(call))

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, nil, fmt.Errorf("field: failed to create FFT plan: %w", err)
	}

	padded := make([]complex128, fftSize)
	for i, v := range call {
		padded[i] = complex(v, 0)
	}

	freq := make([]complex128, fftSize)
	if err := plan.Forward(freq, padded); err != nil {
		return nil, nil, fmt.Errorf("field: forward FFT failed: %w", err)
	}

	return freq, plan, nil
}

// attenuate applies frequency-dependent atmospheric absorption over the
// given distance and returns the time-domain waveform truncated to n samples.
//
// The gain 10^(-alpha(f)*d/20) is applied to the positive-frequency half of
// the spectrum and mirrored by conjugate symmetry, keeping the result real.
func (m *Model) attenuate(spectrum []complex128, plan *algofft.Plan[complex128], n int, distance float64) ([]float64, error) {
	fftSize := len(spectrum)
	half := fftSize / 2

	shaped := make([]complex128, fftSize)

	for i := 0; i <= half; i++ {
		f := float64(i) * m.SampleRate / float64(fftSize)
		fkHz := f / 1000
		alphaDB := AttenuationCoeff * fkHz * fkHz * distance
		g := complex(math.Pow(10, -alphaDB/20), 0)

		shaped[i] = spectrum[i] * g
		if i > 0 && i < half {
			shaped[fftSize-i] = spectrum[fftSize-i] * g
		}
	}

	out := make([]complex128, fftSize)
	if err := plan.Inverse(out, shaped); err != nil {
		return nil, fmt.Errorf("field: inverse FFT failed: %w", err)
	}

	result := make([]float64, n)
	for i := range result {
		result[i] = real(out[i])
	}

	return result, nil
}

// shiftFractional resamples x at indices shifted by delaySamples using
// linear interpolation, zero outside the original range, into a channel of
// the given total length.
func shiftFractional(x []float64, delaySamples float64, length int) []float64 {
	out := make([]float64, length)

	for j := range out {
		t := float64(j) - delaySamples
		if t < 0 || t > float64(len(x)-1) {
			continue
		}

		i := int(t)
		frac := t - float64(i)

		if i+1 < len(x) {
			out[j] = x[i] + frac*(x[i+1]-x[i])
		} else {
			out[j] = x[i]
		}
	}

	return out
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
