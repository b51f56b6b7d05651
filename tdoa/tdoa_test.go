package tdoa

import (
	"errors"
	"math"
	"testing"

	"github.com/sonarlab/echoloc/array"
	"github.com/sonarlab/echoloc/field"
	"github.com/sonarlab/echoloc/internal/testutil"
	"github.com/sonarlab/echoloc/synth"
)

func burst(n int) []float64 {
	return testutil.Burst(42, n)
}

func TestEstimateValidation(t *testing.T) {
	ref := burst(64)

	tests := []struct {
		name       string
		channels   [][]float64
		sampleRate float64
		wantErr    error
	}{
		{"one channel", [][]float64{ref}, 48000, ErrTooFewChannels},
		{"empty reference", [][]float64{{}, ref}, 48000, ErrEmptyChannel},
		{"empty channel", [][]float64{ref, {}}, 48000, ErrEmptyChannel},
		{"length mismatch", [][]float64{ref, burst(32)}, 48000, ErrLengthMismatch},
		{"zero sample rate", [][]float64{ref, ref}, 0, ErrInvalidSampleRate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EstimateChannels(tt.channels, tt.sampleRate); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEstimateIntegerShifts(t *testing.T) {
	const sampleRate = 100000.0

	ref := burst(2048)

	shifts := []int{0, 1, 17, 250}

	channels := [][]float64{ref}
	for _, s := range shifts[1:] {
		channels = append(channels, testutil.Shifted(ref, s))
	}
	channels = append(channels, ref) // zero shift as last channel

	delays, err := EstimateChannels(channels, sampleRate)
	if err != nil {
		t.Fatal(err)
	}

	// The broadband correlation peak is a near-impulse, so the parabolic
	// refinement may wander a few hundredths of a sample off the exact lag.
	tol := 0.1 / sampleRate

	want := []float64{1 / sampleRate, 17 / sampleRate, 250 / sampleRate, 0}
	for i, w := range want {
		if math.Abs(delays[i]-w) > tol {
			t.Errorf("delay[%d] = %g, want %g", i, delays[i], w)
		}
	}
}

func TestEstimateNegativeShift(t *testing.T) {
	const sampleRate = 100000.0

	ch := burst(1024)
	ref := testutil.Shifted(ch, 33) // reference arrives later than the channel

	delays, err := EstimateChannels([][]float64{ref, ch}, sampleRate)
	if err != nil {
		t.Fatal(err)
	}

	if want := -33 / sampleRate; math.Abs(delays[0]-want) > 0.1/sampleRate {
		t.Errorf("delay = %g, want %g", delays[0], want)
	}
}

func TestPeakIndexTieResolvesToLowestIndex(t *testing.T) {
	tests := []struct {
		name string
		v    []float64
		want int
	}{
		{"single", []float64{0, 3, 1}, 1},
		{"two-way tie", []float64{0, 2, 0, 2, 0}, 1},
		{"all equal", []float64{1, 1, 1}, 0},
		{"tie at ends", []float64{5, 0, 5}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := peakIndex(tt.v); got != tt.want {
				t.Errorf("peakIndex = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParabolicOffset(t *testing.T) {
	tests := []struct {
		name string
		v    []float64
		i    int
		want float64
	}{
		{"symmetric peak", []float64{1, 2, 1}, 1, 0},
		{"leaning right", []float64{0, 2, 1}, 1, 1.0 / 6},
		{"leaning left", []float64{1, 2, 0}, 1, -1.0 / 6},
		{"left edge", []float64{2, 1, 0}, 0, 0},
		{"right edge", []float64{0, 1, 2}, 2, 0},
		{"flat", []float64{1, 1, 1}, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parabolicOffset(tt.v, tt.i)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("parabolicOffset = %g, want %g", got, tt.want)
			}
		})
	}
}

func TestEstimateEqualArrivalsPickEarlier(t *testing.T) {
	// A single unit impulse correlated with a two-impulse channel produces
	// equal-energy correlation maxima at two lags; the estimate must settle
	// on the earlier one.
	ref := testutil.Impulse(64, 10)

	ch := testutil.Impulse(64, 20)
	ch[30] = 1

	delays, err := EstimateChannels([][]float64{ref, ch}, 1)
	if err != nil {
		t.Fatal(err)
	}

	if math.Abs(delays[0]-10) > 0.5 {
		t.Errorf("equal arrivals resolved to delay %g, want the earlier lag 10", delays[0])
	}
}

func TestEstimateWithinFeasibleBound(t *testing.T) {
	c := &synth.Call{
		StartFreq:    25000,
		EndFreq:      55000,
		Duration:     0.002,
		SampleRate:   250000,
		TaperPercent: 10,
	}

	call, err := c.Generate()
	if err != nil {
		t.Fatal(err)
	}

	geom := array.Tetrahedron(0.5)
	m := &field.Model{
		Geometry:     geom,
		SampleRate:   c.SampleRate,
		SpeedOfSound: field.SpeedOfSound,
		SNRdB:        20,
		Seed:         7,
	}

	bound := geom.MaxBaseline() / m.SpeedOfSound

	sources := []array.Position{
		{X: 1.2, Y: -0.8, Z: 2.5},
		{X: -2, Y: 0.5, Z: 1},
		{X: 0.3, Y: 0.3, Z: -0.9},
	}

	for _, src := range sources {
		set, err := m.Propagate(call, src)
		if err != nil {
			t.Fatal(err)
		}

		delays, err := Estimate(set, m.SampleRate)
		if err != nil {
			t.Fatal(err)
		}

		for i, d := range delays {
			if math.Abs(d) > bound {
				t.Errorf("source %v sensor %d: |delay| %g exceeds baseline bound %g", src, i+1, math.Abs(d), bound)
			}
		}
	}
}

func TestEstimateRecoversPropagationDelays(t *testing.T) {
	c := &synth.Call{
		StartFreq:    25000,
		EndFreq:      55000,
		Duration:     0.002,
		SampleRate:   250000,
		TaperPercent: 10,
	}

	call, err := c.Generate()
	if err != nil {
		t.Fatal(err)
	}

	m := &field.Model{
		Geometry:     array.Tetrahedron(0.5),
		SampleRate:   c.SampleRate,
		SpeedOfSound: field.SpeedOfSound,
		SNRdB:        math.Inf(1),
		Seed:         1,
	}

	// True delays land between sample instants for these sources, which is
	// exactly where a raw integer-lag pick can slide onto a carrier sidelobe
	// several samples away. The envelope pick plus parabolic refinement must
	// stay within a fraction of a sample.
	tol := 0.25 / m.SampleRate

	sources := []array.Position{
		{X: 1.2, Y: -0.8, Z: 2.5},
		{X: -2, Y: 0.5, Z: 1},
		{X: 0.3, Y: 0.3, Z: -0.9},
	}

	for _, src := range sources {
		set, err := m.Propagate(call, src)
		if err != nil {
			t.Fatal(err)
		}

		delays, err := Estimate(set, m.SampleRate)
		if err != nil {
			t.Fatal(err)
		}

		for i, d := range delays {
			if math.Abs(d-set.Delays[i+1]) > tol {
				t.Errorf("source %v sensor %d: estimated delay %g, true %g", src, i+1, d, set.Delays[i+1])
			}
		}
	}
}

func BenchmarkEstimate(b *testing.B) {
	ref := burst(4096)
	channels := [][]float64{ref, testutil.Shifted(ref, 40), testutil.Shifted(ref, 80), testutil.Shifted(ref, 120)}

	b.ResetTimer()

	for b.Loop() {
		if _, err := EstimateChannels(channels, 250000); err != nil {
			b.Fatal(err)
		}
	}
}
