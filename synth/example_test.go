package synth_test

import (
	"fmt"

	"github.com/sonarlab/echoloc/synth"
)

func ExampleCall_Generate() {
	c := &synth.Call{
		StartFreq:    20000,
		EndFreq:      80000,
		Duration:     0.003,
		SampleRate:   250000,
		TaperPercent: 10,
	}

	call, err := c.Generate()
	if err != nil {
		panic(err)
	}

	fmt.Printf("Call length: %d samples (%.1f ms)\n", len(call), float64(len(call))/250)
	fmt.Printf("Resonance: %.0f Hz\n", c.ResonanceFreq())

	// Output:
	// Call length: 900 samples (3.6 ms)
	// Resonance: 43333 Hz
}
