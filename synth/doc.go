// Package synth generates synthetic echolocation calls.
//
// A call is a quadratic frequency sweep played back time-reversed, so the
// instantaneous frequency descends the way a bat's FM call does. A 4th-order
// resonance filter concentrates energy around the call's dominant frequency,
// a Hann window smooths onset and offset, and leading/trailing silence frames
// the call for downstream delay processing.
//
// Generation is deterministic: the same parameters always produce the same
// waveform, so one call can be cached and reused across an entire sweep.
//
//	c := &synth.Call{
//	    StartFreq:  25000,
//	    EndFreq:    55000,
//	    Duration:   0.003,
//	    SampleRate: 250000,
//	    TaperPercent: 10,
//	}
//	waveform, err := c.Generate()
package synth
