// Package locate inverts time-difference-of-arrival measurements into a 3D
// source position by nonlinear least squares.
//
// The solver works in a frame centered on the reference sensor. Each
// non-reference sensor i contributes a range-difference residual
//
//	r_i(x) = |u_i - x| - |x| - c*tau_i
//
// where u_i is the sensor offset from the reference and tau_i the measured
// delay. A Levenberg-Marquardt iteration minimizes the squared residual sum,
// seeded at the centroid of the sensor offsets. Non-convergence surfaces as
// ErrNoConvergence rather than a silently wrong position.
package locate
