package render

import (
	"errors"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/sonarlab/echoloc/sweep"
)

func sliceRecords() []sweep.Record {
	records := make([]sweep.Record, 0, 4)

	for i, err := range []float64{0.5, 2, 8, math.NaN()} {
		rec := sweep.Record{
			SourceX:         float64(i % 2),
			SourceY:         float64(i / 2),
			SourceZ:         1.5,
			PositionErrorCm: err,
			Solved:          !math.IsNaN(err),
		}
		records = append(records, rec)
	}

	return records
}

func TestRenderSliceDimensions(t *testing.T) {
	r, err := NewRenderer(Config{CellSize: 10})
	if err != nil {
		t.Fatal(err)
	}

	img, err := r.RenderSlice(sliceRecords(), 1.5)
	if err != nil {
		t.Fatal(err)
	}

	b := img.Bounds()
	if b.Dx() != 20 {
		t.Errorf("width = %d, want 20 (2 cells x 10 px)", b.Dx())
	}
	if b.Dy() != 20+labelBand {
		t.Errorf("height = %d, want %d", b.Dy(), 20+labelBand)
	}
}

func TestRenderSliceColors(t *testing.T) {
	r, err := NewRenderer(Config{CellSize: 10, Theme: ThemeGrayscale})
	if err != nil {
		t.Fatal(err)
	}

	img, err := r.RenderSlice(sliceRecords(), 1.5)
	if err != nil {
		t.Fatal(err)
	}

	// (0,0) has the lowest error and (0,1) the highest: darker vs lighter.
	low := img.RGBAAt(5, 15)  // x=0, y=0 cell (bottom row)
	high := img.RGBAAt(5, 5)  // x=0, y=1 cell (top row)
	fail := img.RGBAAt(15, 5) // x=1, y=1 cell: failed point marker

	if low.R >= high.R {
		t.Errorf("low-error cell (%d) not darker than high-error cell (%d)", low.R, high.R)
	}

	if fail != failedColor {
		t.Errorf("failed cell color = %v, want %v", fail, failedColor)
	}
}

func TestRenderSliceNoData(t *testing.T) {
	r, err := NewRenderer(Config{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.RenderSlice(sliceRecords(), 99); !errors.Is(err, ErrNoSliceData) {
		t.Errorf("error = %v, want ErrNoSliceData", err)
	}
}

func TestWritePNG(t *testing.T) {
	r, err := NewRenderer(Config{})
	if err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "slice.png")
	if err := r.WritePNG(path, sliceRecords(), 1.5); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if _, err := png.Decode(f); err != nil {
		t.Errorf("written file does not decode as PNG: %v", err)
	}
}

func TestNewRendererMissingFont(t *testing.T) {
	if _, err := NewRenderer(Config{FontPath: "does-not-exist.ttf"}); err == nil {
		t.Error("expected error for missing font file")
	}
}
