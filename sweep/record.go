package sweep

import "math"

// Record is one grid point's outcome. The eleven fields ending at
// EstimatedElevationDeg form the fixed export schema; estimate fields hold
// NaN when the inversion failed at this point.
type Record struct {
	SourceX float64
	SourceY float64
	SourceZ float64

	SourceAzimuthDeg   float64
	SourceElevationDeg float64

	EstimatedX float64
	EstimatedY float64
	EstimatedZ float64

	PositionErrorCm float64

	EstimatedAzimuthDeg   float64
	EstimatedElevationDeg float64

	// AngularErrorDeg is the Euclidean norm of the azimuth and elevation
	// errors in degrees. Not part of the export schema.
	AngularErrorDeg float64

	// Solved reports whether the inversion converged at this point.
	Solved bool
}

// newFailedRecord returns a record with the true-position fields populated
// and every estimate field set to the NaN missing marker.
func newFailedRecord(x, y, z, azDeg, elDeg float64) Record {
	nan := math.NaN()

	return Record{
		SourceX:               x,
		SourceY:               y,
		SourceZ:               z,
		SourceAzimuthDeg:      azDeg,
		SourceElevationDeg:    elDeg,
		EstimatedX:            nan,
		EstimatedY:            nan,
		EstimatedZ:            nan,
		PositionErrorCm:       nan,
		EstimatedAzimuthDeg:   nan,
		EstimatedElevationDeg: nan,
		AngularErrorDeg:       nan,
	}
}

// angularError returns the Euclidean norm of the azimuth and elevation
// differences in degrees. The azimuth difference wraps to [-180, 180].
func angularError(trueAz, trueEl, estAz, estEl float64) float64 {
	dAz := estAz - trueAz
	for dAz > 180 {
		dAz -= 360
	}
	for dAz < -180 {
		dAz += 360
	}

	return math.Hypot(dAz, estEl-trueEl)
}
