package array

import (
	"errors"
	"math"
	"testing"
)

func TestTetrahedronEdgeLengths(t *testing.T) {
	const edge = 0.5

	g := Tetrahedron(edge)

	if len(g.Sensors) != 4 {
		t.Fatalf("sensor count = %d, want 4", len(g.Sensors))
	}

	for i := range g.Sensors {
		for j := i + 1; j < len(g.Sensors); j++ {
			d := g.Sensors[i].Dist(g.Sensors[j])
			if math.Abs(d-edge) > 1e-12 {
				t.Errorf("edge (%d,%d) = %g, want %g", i, j, d, edge)
			}
		}
	}
}

func TestOctahedronEdgeLengths(t *testing.T) {
	const edge = 1.0

	g := Octahedron(edge)

	if len(g.Sensors) != 6 {
		t.Fatalf("sensor count = %d, want 6", len(g.Sensors))
	}

	// Each sensor has 4 neighbors at the edge length and 1 antipode.
	for i := range g.Sensors {
		var atEdge int
		for j := range g.Sensors {
			if i == j {
				continue
			}
			if math.Abs(g.Sensors[i].Dist(g.Sensors[j])-edge) < 1e-12 {
				atEdge++
			}
		}
		if atEdge != 4 {
			t.Errorf("sensor %d has %d edge-length neighbors, want 4", i, atEdge)
		}
	}
}

func TestGeometryValidate(t *testing.T) {
	tests := []struct {
		name    string
		geom    Geometry
		wantErr error
	}{
		{"tetrahedron", Tetrahedron(0.5), nil},
		{"pyramid", Pyramid(0.3), nil},
		{"octahedron", Octahedron(1), nil},
		{"too few", Geometry{Sensors: []Position{{}, {1, 0, 0}, {0, 1, 0}}}, ErrTooFewSensors},
		{
			"coplanar square",
			Geometry{Sensors: []Position{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0}}},
			ErrCoplanarSensors,
		},
		{
			"collinear",
			Geometry{Sensors: []Position{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}, {3, 0, 0}}},
			ErrCoplanarSensors,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.geom.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDirection(t *testing.T) {
	tests := []struct {
		name   string
		to     Position
		wantAz float64
		wantEl float64
	}{
		{"+x", Position{1, 0, 0}, 0, 0},
		{"+y", Position{0, 1, 0}, 90, 0},
		{"-x", Position{-1, 0, 0}, 180, 0},
		{"up", Position{0, 0, 2}, 0, 90},
		{"diagonal", Position{1, 1, 0}, 45, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			az, el := Direction(Position{}, tt.to)
			if math.Abs(az-tt.wantAz) > 1e-9 {
				t.Errorf("azimuth = %g, want %g", az, tt.wantAz)
			}
			if math.Abs(el-tt.wantEl) > 1e-9 {
				t.Errorf("elevation = %g, want %g", el, tt.wantEl)
			}
		})
	}
}

func TestDirectionZeroDisplacement(t *testing.T) {
	p := Position{1.5, -2, 0.25}

	az, el := Direction(p, p)
	if !math.IsNaN(az) || !math.IsNaN(el) {
		t.Errorf("Direction(p, p) = (%g, %g), want (NaN, NaN)", az, el)
	}
}

func TestParseLayout(t *testing.T) {
	tests := []struct {
		name    string
		want    Layout
		wantErr error
	}{
		{"tetrahedron", LayoutTetrahedron, nil},
		{"pyramid", LayoutPyramid, nil},
		{"octahedron", LayoutOctahedron, nil},
		{"cube", 0, ErrUnknownLayout},
		{"", 0, ErrUnknownLayout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLayout(tt.name)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseLayout(%q) error = %v, want %v", tt.name, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseLayout(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestNewRejectsBadEdge(t *testing.T) {
	if _, err := New(LayoutTetrahedron, 0); !errors.Is(err, ErrInvalidEdge) {
		t.Errorf("New(edge=0) error = %v, want ErrInvalidEdge", err)
	}
}

func TestMaxBaseline(t *testing.T) {
	g := Tetrahedron(0.5)

	if got := g.MaxBaseline(); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("MaxBaseline() = %g, want 0.5", got)
	}
}
