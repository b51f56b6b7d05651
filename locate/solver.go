package locate

import (
	"errors"
	"fmt"
	"math"

	"github.com/sonarlab/echoloc/array"
)

// Errors returned by the solver.
var (
	ErrDelayCount    = errors.New("locate: delay count must be sensor count minus one")
	ErrInvalidSpeed  = errors.New("locate: speed of sound must be positive")
	ErrNoConvergence = errors.New("locate: least-squares solve did not converge")
)

const (
	defaultMaxIterations = 200
	defaultTolerance     = 1e-12

	// lambda schedule for the Levenberg-Marquardt damping term.
	lambdaInit     = 1e-3
	lambdaGrow     = 10
	lambdaShrink   = 0.3
	lambdaCeiling  = 1e12
	normFloor      = 1e-12 // keeps |x| out of the denominator's singularity
	singularityTol = 1e-18 // 3x3 determinant threshold
)

// Estimate is a localization result.
type Estimate struct {
	// Position is the estimated source position in absolute coordinates.
	Position array.Position

	// Direction of the estimate relative to the reference sensor, in
	// degrees. Both NaN when the estimate coincides with the reference.
	AzimuthDeg   float64
	ElevationDeg float64

	// Iterations spent in the least-squares loop.
	Iterations int

	// Residual is the final root-mean-square range residual in meters.
	Residual float64
}

// Solver configures the iterative solve. The zero value uses defaults.
// MaxIterations bounds the per-solve work so a degenerate geometry cannot
// stall a sweep.
type Solver struct {
	MaxIterations int
	Tolerance     float64
}

// Solve estimates the source position from per-sensor delays.
//
// delays holds one entry per non-reference sensor, in sensor order, as
// produced by the tdoa package. The solve runs unconstrained from the
// centroid of the non-reference sensor offsets and reports the result in
// absolute coordinates.
func (s Solver) Solve(delays []float64, geom array.Geometry, speedOfSound float64) (Estimate, error) {
	if err := geom.Validate(); err != nil {
		return Estimate{}, err
	}

	if speedOfSound <= 0 {
		return Estimate{}, ErrInvalidSpeed
	}

	if len(delays) != len(geom.Sensors)-1 {
		return Estimate{}, fmt.Errorf("%w: got %d delays for %d sensors",
			ErrDelayCount, len(delays), len(geom.Sensors))
	}

	maxIter := s.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}

	tol := s.Tolerance
	if tol <= 0 {
		tol = defaultTolerance
	}

	ref := geom.Sensors[0]

	// Sensor offsets and range differences in the reference frame.
	m := len(delays)
	offsets := make([]array.Position, m)
	ranges := make([]float64, m)

	var seed array.Position
	for i := 0; i < m; i++ {
		offsets[i] = geom.Sensors[i+1].Sub(ref)
		ranges[i] = speedOfSound * delays[i]
		seed = seed.Add(offsets[i])
	}

	x := seed.Scale(1 / float64(m))

	residuals := make([]float64, m)
	trial := make([]float64, m)
	jac := make([][3]float64, m)

	cost := evalResiduals(x, offsets, ranges, residuals)
	lambda := lambdaInit
	converged := cost < tol

	var iter int
	for iter = 0; iter < maxIter && !converged; iter++ {
		fillJacobian(x, offsets, jac)

		var h [3][3]float64
		var g [3]float64

		for i := 0; i < m; i++ {
			for a := 0; a < 3; a++ {
				g[a] += jac[i][a] * residuals[i]
				for b := 0; b < 3; b++ {
					h[a][b] += jac[i][a] * jac[i][b]
				}
			}
		}

		// Retry with heavier damping until a step reduces the cost.
		accepted := false
		for lambda <= lambdaCeiling {
			damped := h
			for a := 0; a < 3; a++ {
				damped[a][a] += lambda
			}

			step, ok := solve3(damped, [3]float64{-g[0], -g[1], -g[2]})
			if !ok {
				lambda *= lambdaGrow
				continue
			}

			candidate := x.Add(array.Position{X: step[0], Y: step[1], Z: step[2]})
			candidateCost := evalResiduals(candidate, offsets, ranges, trial)

			if candidateCost < cost {
				stepNorm := math.Sqrt(step[0]*step[0] + step[1]*step[1] + step[2]*step[2])

				x = candidate
				copy(residuals, trial)

				if stepNorm < tol*(x.Norm()+tol) || cost-candidateCost < tol*cost {
					converged = true
				}

				cost = candidateCost
				lambda *= lambdaShrink
				accepted = true

				break
			}

			lambda *= lambdaGrow
		}

		if !accepted {
			return Estimate{}, fmt.Errorf("%w: damping exhausted after %d iterations", ErrNoConvergence, iter+1)
		}
	}

	if !converged {
		return Estimate{}, fmt.Errorf("%w: %d iterations", ErrNoConvergence, maxIter)
	}

	absolute := ref.Add(x)
	az, el := array.Direction(ref, absolute)

	return Estimate{
		Position:     absolute,
		AzimuthDeg:   az,
		ElevationDeg: el,
		Iterations:   iter,
		Residual:     math.Sqrt(cost / float64(m)),
	}, nil
}

// evalResiduals fills r with the range-difference residuals at x and
// returns the squared residual sum.
func evalResiduals(x array.Position, offsets []array.Position, ranges, r []float64) float64 {
	xNorm := x.Norm()

	var cost float64
	for i := range offsets {
		r[i] = offsets[i].Sub(x).Norm() - xNorm - ranges[i]
		cost += r[i] * r[i]
	}

	return cost
}

// fillJacobian fills jac with the residual gradients at x.
func fillJacobian(x array.Position, offsets []array.Position, jac [][3]float64) {
	xNorm := x.Norm()
	if xNorm < normFloor {
		xNorm = normFloor
	}

	for i := range offsets {
		d := offsets[i].Sub(x)

		dNorm := d.Norm()
		if dNorm < normFloor {
			dNorm = normFloor
		}

		jac[i] = [3]float64{
			-d.X/dNorm - x.X/xNorm,
			-d.Y/dNorm - x.Y/xNorm,
			-d.Z/dNorm - x.Z/xNorm,
		}
	}
}

// solve3 solves a 3x3 linear system by Cramer's rule. Returns false when
// the matrix is numerically singular.
func solve3(a [3][3]float64, b [3]float64) ([3]float64, bool) {
	det := a[0][0]*(a[1][1]*a[2][2]-a[1][2]*a[2][1]) -
		a[0][1]*(a[1][0]*a[2][2]-a[1][2]*a[2][0]) +
		a[0][2]*(a[1][0]*a[2][1]-a[1][1]*a[2][0])

	if math.Abs(det) < singularityTol {
		return [3]float64{}, false
	}

	var out [3]float64
	for col := 0; col < 3; col++ {
		t := a
		for row := 0; row < 3; row++ {
			t[row][col] = b[row]
		}

		out[col] = (t[0][0]*(t[1][1]*t[2][2]-t[1][2]*t[2][1]) -
			t[0][1]*(t[1][0]*t[2][2]-t[1][2]*t[2][0]) +
			t[0][2]*(t[1][0]*t[2][1]-t[1][1]*t[2][0])) / det
	}

	return out, true
}
