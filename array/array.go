package array

import (
	"errors"
	"fmt"
	"math"
)

// Errors returned by geometry constructors and validation.
var (
	ErrTooFewSensors   = errors.New("array: at least 4 sensors required")
	ErrCoplanarSensors = errors.New("array: sensor geometry is coplanar")
	ErrInvalidEdge     = errors.New("array: edge length must be positive")
	ErrUnknownLayout   = errors.New("array: unknown layout name")
)

// coplanarTolerance is the minimum absolute scalar triple product of three
// edge vectors from the reference sensor for the geometry to count as
// three-dimensional. Below this the range-difference problem is ill-posed.
const coplanarTolerance = 1e-9

// Position is a point in 3D space, in meters.
type Position struct {
	X, Y, Z float64
}

// Add returns p + q.
func (p Position) Add(q Position) Position {
	return Position{p.X + q.X, p.Y + q.Y, p.Z + q.Z}
}

// Sub returns p - q.
func (p Position) Sub(q Position) Position {
	return Position{p.X - q.X, p.Y - q.Y, p.Z - q.Z}
}

// Scale returns p scaled by s.
func (p Position) Scale(s float64) Position {
	return Position{p.X * s, p.Y * s, p.Z * s}
}

// Norm returns the Euclidean length of p.
func (p Position) Norm() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y + p.Z*p.Z)
}

// Dist returns the Euclidean distance between p and q.
func (p Position) Dist(q Position) float64 {
	return p.Sub(q).Norm()
}

// Direction returns the azimuth and elevation, in degrees, of the vector
// from one position to another. Both angles are NaN when the displacement
// is exactly zero.
func Direction(from, to Position) (azimuthDeg, elevationDeg float64) {
	d := to.Sub(from)

	n := d.Norm()
	if n == 0 {
		return math.NaN(), math.NaN()
	}

	azimuthDeg = math.Atan2(d.Y, d.X) * 180 / math.Pi
	elevationDeg = math.Asin(d.Z/n) * 180 / math.Pi

	return azimuthDeg, elevationDeg
}

// Geometry is an ordered set of sensor positions. Sensor 0 is the delay and
// angle reference for every downstream computation.
type Geometry struct {
	Sensors []Position
}

// Validate checks that the geometry admits a well-posed 3D inversion:
// at least 4 sensors, not all in one plane.
func (g Geometry) Validate() error {
	if len(g.Sensors) < 4 {
		return ErrTooFewSensors
	}

	// The geometry is three-dimensional when some triple of edge vectors
	// from sensor 0 spans a non-degenerate volume.
	ref := g.Sensors[0]
	for i := 1; i < len(g.Sensors)-2; i++ {
		a := g.Sensors[i].Sub(ref)
		for j := i + 1; j < len(g.Sensors)-1; j++ {
			b := g.Sensors[j].Sub(ref)
			for k := j + 1; k < len(g.Sensors); k++ {
				c := g.Sensors[k].Sub(ref)
				if math.Abs(tripleProduct(a, b, c)) > coplanarTolerance {
					return nil
				}
			}
		}
	}

	return ErrCoplanarSensors
}

// Reference returns the reference sensor position (sensor 0).
func (g Geometry) Reference() Position {
	return g.Sensors[0]
}

// MaxBaseline returns the largest pairwise sensor distance. It bounds the
// physically feasible delay between any two sensors.
func (g Geometry) MaxBaseline() float64 {
	var maxDist float64

	for i := range g.Sensors {
		for j := i + 1; j < len(g.Sensors); j++ {
			if d := g.Sensors[i].Dist(g.Sensors[j]); d > maxDist {
				maxDist = d
			}
		}
	}

	return maxDist
}

// tripleProduct returns a · (b × c).
func tripleProduct(a, b, c Position) float64 {
	return a.X*(b.Y*c.Z-b.Z*c.Y) - a.Y*(b.X*c.Z-b.Z*c.X) + a.Z*(b.X*c.Y-b.Y*c.X)
}

// Layout identifies a named sensor arrangement.
type Layout int

const (
	LayoutTetrahedron Layout = iota
	LayoutPyramid
	LayoutOctahedron
)

var layoutNames = map[Layout]string{
	LayoutTetrahedron: "tetrahedron",
	LayoutPyramid:     "pyramid",
	LayoutOctahedron:  "octahedron",
}

// String returns the canonical layout name.
func (l Layout) String() string {
	if name, ok := layoutNames[l]; ok {
		return name
	}

	return fmt.Sprintf("layout(%d)", int(l))
}

// ParseLayout maps a layout name to its Layout value. Unknown names return
// ErrUnknownLayout.
func ParseLayout(name string) (Layout, error) {
	for l, n := range layoutNames {
		if n == name {
			return l, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownLayout, name)
}

// New builds the named layout scaled to the given edge length.
func New(l Layout, edge float64) (Geometry, error) {
	if edge <= 0 {
		return Geometry{}, ErrInvalidEdge
	}

	switch l {
	case LayoutTetrahedron:
		return Tetrahedron(edge), nil
	case LayoutPyramid:
		return Pyramid(edge), nil
	case LayoutOctahedron:
		return Octahedron(edge), nil
	default:
		return Geometry{}, fmt.Errorf("%w: %s", ErrUnknownLayout, l)
	}
}

// Tetrahedron returns a regular 4-sensor tetrahedron with the given edge
// length, centered on the origin. This is the default array when no explicit
// geometry is supplied.
func Tetrahedron(edge float64) Geometry {
	s := edge / (2 * math.Sqrt2)

	return Geometry{Sensors: []Position{
		{s, s, s},
		{s, -s, -s},
		{-s, s, -s},
		{-s, -s, s},
	}}
}

// Pyramid returns a 5-sensor square-base pyramid. The base sits in the
// z = 0 plane with the given edge length; the apex sensor is raised by the
// same edge length above the base center.
func Pyramid(edge float64) Geometry {
	h := edge / 2

	return Geometry{Sensors: []Position{
		{0, 0, edge},
		{h, h, 0},
		{h, -h, 0},
		{-h, -h, 0},
		{-h, h, 0},
	}}
}

// Octahedron returns a regular 6-sensor octahedron with the given edge
// length, centered on the origin.
func Octahedron(edge float64) Geometry {
	s := edge / math.Sqrt2

	return Geometry{Sensors: []Position{
		{s, 0, 0},
		{-s, 0, 0},
		{0, s, 0},
		{0, -s, 0},
		{0, 0, s},
		{0, 0, -s},
	}}
}
