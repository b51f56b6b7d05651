package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/sonarlab/echoloc/array"
	"github.com/sonarlab/echoloc/field"
	"github.com/sonarlab/echoloc/locate"
	"github.com/sonarlab/echoloc/synth"
	"github.com/sonarlab/echoloc/tdoa"
)

// Errors returned by the driver.
var (
	ErrEmptyRange        = errors.New("sweep: coordinate range yields no values")
	ErrUnsupportedMethod = errors.New("sweep: secondary localization method is not implemented")
)

// Range describes one coordinate axis of the grid, inclusive of Max when it
// lands on a step.
type Range struct {
	Min  float64
	Max  float64
	Step float64
}

// Values expands the range into grid coordinates.
func (r Range) Values() []float64 {
	if r.Step <= 0 || r.Max < r.Min {
		return nil
	}

	var out []float64
	// Index-based stepping avoids drift from repeated addition.
	for i := 0; ; i++ {
		v := r.Min + float64(i)*r.Step
		if v > r.Max+r.Step*1e-9 {
			break
		}
		out = append(out, v)
	}

	return out
}

// Method identifies a localization pathway.
type Method int

const (
	// MethodMultilateration is the nonlinear least-squares inversion.
	MethodMultilateration Method = iota

	// MethodSRPPHAT is a declared steered-response-power pathway. Selecting
	// it as a secondary method fails with ErrUnsupportedMethod.
	MethodSRPPHAT
)

// Result aggregates a completed sweep.
type Result struct {
	Records  []Record
	Points   int
	Failures int
	Elapsed  time.Duration
}

// Driver orchestrates the per-point pipeline over a grid of source
// positions. All fields are read-only during a run.
type Driver struct {
	Call   *synth.Call
	Model  *field.Model
	Solver locate.Solver
	Logger *slog.Logger

	// Workers bounds the pool size; 0 means GOMAXPROCS.
	Workers int

	// Secondary optionally selects an additional localization method to
	// attempt per point. Only MethodMultilateration (the zero value,
	// meaning "none extra") is currently supported.
	Secondary Method
}

type pointJob struct {
	index  int
	source array.Position
}

type pointResult struct {
	index  int
	record Record
	fatal  error
}

// Run sweeps the Cartesian product of the three ranges (x outer, y middle,
// z inner) and returns one record per grid point in iteration order.
//
// A convergence failure at a point is recovered locally: the point is
// recorded with NaN estimate fields and the sweep continues. Configuration
// errors (invalid call or model, a grid point on the reference sensor)
// abort the run.
func (d *Driver) Run(ctx context.Context, xr, yr, zr Range) (*Result, error) {
	if d.Secondary != MethodMultilateration {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedMethod, d.Secondary)
	}

	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	xs, ys, zs := xr.Values(), yr.Values(), zr.Values()
	if len(xs) == 0 || len(ys) == 0 || len(zs) == 0 {
		return nil, ErrEmptyRange
	}

	// The call depends only on the configuration, so it is synthesized
	// once and shared read-only by every worker.
	call, err := d.Call.Generate()
	if err != nil {
		return nil, err
	}

	if err := d.Model.Validate(); err != nil {
		return nil, err
	}

	total := len(xs) * len(ys) * len(zs)
	workers := d.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > total {
		workers = total
	}

	logger.Info("starting grid sweep",
		"points", total,
		"workers", workers,
		"sensors", len(d.Model.Geometry.Sensors),
	)

	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan pointJob, workers*2)
	results := make(chan pointResult, workers*2)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.worker(ctx, call, jobs, results, logger)
		}()
	}

	go func() {
		defer close(jobs)
		i := 0
		for _, x := range xs {
			for _, y := range ys {
				for _, z := range zs {
					job := pointJob{index: i, source: array.Position{X: x, Y: y, Z: z}}
					i++
					select {
					case jobs <- job:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	records := make([]Record, total)
	collected, failures := 0, 0

	var fatal error
	for res := range results {
		if res.fatal != nil {
			if fatal == nil {
				fatal = res.fatal
				cancel()
			}
			continue
		}

		records[res.index] = res.record
		if !res.record.Solved {
			failures++
		}

		collected++
		if collected == total {
			break
		}
	}

	if fatal != nil {
		return nil, fatal
	}

	if collected < total {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("sweep: collected %d of %d points", collected, total)
	}

	elapsed := time.Since(start)

	logger.Info("grid sweep complete",
		"points", total,
		"failures", failures,
		"elapsed", elapsed,
	)

	return &Result{
		Records:  records,
		Points:   total,
		Failures: failures,
		Elapsed:  elapsed,
	}, nil
}

// worker consumes grid points until the jobs channel closes or the context
// is cancelled.
func (d *Driver) worker(ctx context.Context, call []float64, jobs <-chan pointJob, results chan<- pointResult, logger *slog.Logger) {
	for job := range jobs {
		res := d.evaluate(call, job, logger)
		select {
		case results <- res:
		case <-ctx.Done():
			return
		}
	}
}

// evaluate runs the propagate-estimate-solve pipeline for one grid point.
func (d *Driver) evaluate(call []float64, job pointJob, logger *slog.Logger) pointResult {
	src := job.source

	set, err := d.Model.Propagate(call, src)
	if err != nil {
		// Propagation failures are configuration problems (for example a
		// grid point on the reference sensor), not per-point noise.
		return pointResult{index: job.index, fatal: fmt.Errorf("propagating point (%g, %g, %g): %w", src.X, src.Y, src.Z, err)}
	}

	record := newFailedRecord(src.X, src.Y, src.Z, set.AzimuthDeg, set.ElevationDeg)

	delays, err := tdoa.Estimate(set, d.Model.SampleRate)
	if err != nil {
		logger.Warn("delay estimation failed", "x", src.X, "y", src.Y, "z", src.Z, "error", err)
		return pointResult{index: job.index, record: record}
	}

	est, err := d.Solver.Solve(delays, d.Model.Geometry, d.Model.SpeedOfSound)
	if err != nil {
		logger.Warn("localization failed", "x", src.X, "y", src.Y, "z", src.Z, "error", err)
		return pointResult{index: job.index, record: record}
	}

	record.EstimatedX = est.Position.X
	record.EstimatedY = est.Position.Y
	record.EstimatedZ = est.Position.Z
	record.PositionErrorCm = est.Position.Dist(src) * 100
	record.EstimatedAzimuthDeg = est.AzimuthDeg
	record.EstimatedElevationDeg = est.ElevationDeg
	record.AngularErrorDeg = angularError(set.AzimuthDeg, set.ElevationDeg, est.AzimuthDeg, est.ElevationDeg)
	record.Solved = true

	return pointResult{index: job.index, record: record}
}

// MeanPositionErrorCm averages the position error over solved points.
// Returns NaN when nothing solved.
func (r *Result) MeanPositionErrorCm() float64 {
	var sum float64
	var n int

	for _, rec := range r.Records {
		if rec.Solved {
			sum += rec.PositionErrorCm
			n++
		}
	}

	if n == 0 {
		return math.NaN()
	}

	return sum / float64(n)
}
