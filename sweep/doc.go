// Package sweep drives the simulate-estimate-solve pipeline over a 3D grid
// of source positions and aggregates per-point localization error metrics.
//
// Grid points are independent, so the per-point pipeline runs on a bounded
// worker pool; the synthesized call is generated once and shared read-only
// by every point. A failed inversion at one point is logged and recorded
// with NaN estimate fields, and the sweep continues. The whole sweep is
// cancellable through its context.
package sweep
