// Package field models the acoustic propagation of an echolocation call
// from a point source to a sensor array.
//
// Propagation applies, in order: additive Gaussian noise sized to a target
// SNR (one realization shared by all sensors), frequency-dependent
// atmospheric attenuation, geometric spreading relative to the reference
// sensor, and a fractional-sample arrival delay per sensor. The output
// bundles the per-sensor waveforms with the ground truth needed to score a
// localization attempt.
package field
