package render

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math"
	"os"
	"sort"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	"github.com/sonarlab/echoloc/sweep"
)

// ErrNoSliceData is returned when no record matches the requested z-slice.
var ErrNoSliceData = errors.New("render: no records in requested z-slice")

const (
	defaultCellSize = 24
	labelBand       = 28 // pixels reserved under the grid for annotation
	fontDPI         = 72
	fontSize        = 12
)

// Config configures heatmap rendering.
type Config struct {
	Theme    Theme
	CellSize int

	// FontPath optionally names a TTF file for slice annotation. Without
	// it the heatmap is rendered unannotated.
	FontPath string
}

// Renderer draws per-slice heatmaps from sweep records.
type Renderer struct {
	config Config
	font   *truetype.Font
}

// NewRenderer creates a renderer, loading the annotation font when one is
// configured.
func NewRenderer(config Config) (*Renderer, error) {
	if config.CellSize <= 0 {
		config.CellSize = defaultCellSize
	}

	if config.Theme == "" {
		config.Theme = ThemeThermal
	}

	r := &Renderer{config: config}

	if config.FontPath != "" {
		data, err := os.ReadFile(config.FontPath)
		if err != nil {
			return nil, fmt.Errorf("render: reading font: %w", err)
		}

		parsed, err := freetype.ParseFont(data)
		if err != nil {
			return nil, fmt.Errorf("render: parsing font: %w", err)
		}

		r.font = parsed
	}

	return r, nil
}

// RenderSlice draws the (x, y) heatmap of position error for all records at
// the given z coordinate. Failed points render in the failure marker color.
func (r *Renderer) RenderSlice(records []sweep.Record, z float64) (*image.RGBA, error) {
	var slice []*sweep.Record
	for i := range records {
		if records[i].SourceZ == z {
			slice = append(slice, &records[i])
		}
	}

	if len(slice) == 0 {
		return nil, ErrNoSliceData
	}

	xs := axisValues(slice, func(rec *sweep.Record) float64 { return rec.SourceX })
	ys := axisValues(slice, func(rec *sweep.Record) float64 { return rec.SourceY })

	minErr, maxErr := errorBounds(slice)
	mapper := newColorMapper(r.config.Theme, minErr, maxErr)

	cell := r.config.CellSize
	width := len(xs) * cell
	height := len(ys)*cell + labelBand

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	xIdx := indexOf(xs)
	yIdx := indexOf(ys)

	for _, rec := range slice {
		cx := xIdx[rec.SourceX]
		// Image rows grow downward; y axis grows upward.
		cy := len(ys) - 1 - yIdx[rec.SourceY]

		c := mapper.get(rec.PositionErrorCm)
		for py := cy * cell; py < (cy+1)*cell; py++ {
			for px := cx * cell; px < (cx+1)*cell; px++ {
				img.SetRGBA(px, py, c)
			}
		}
	}

	if r.font != nil {
		label := fmt.Sprintf("z = %g m    error %.1f-%.1f cm", z, minErr, maxErr)
		if err := r.annotate(img, label, height-labelBand/3); err != nil {
			return nil, err
		}
	}

	return img, nil
}

// WritePNG renders the slice and writes it to the named file.
func (r *Renderer) WritePNG(path string, records []sweep.Record, z float64) (err error) {
	img, err := r.RenderSlice(records, z)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("render: creating %s: %w", path, err)
	}
	defer func() {
		if cErr := f.Close(); cErr != nil && err == nil {
			err = cErr
		}
	}()

	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("render: encoding png: %w", err)
	}

	return nil
}

func (r *Renderer) annotate(img *image.RGBA, text string, baseline int) error {
	ctx := freetype.NewContext()
	ctx.SetDPI(fontDPI)
	ctx.SetFont(r.font)
	ctx.SetFontSize(fontSize)
	ctx.SetClip(img.Bounds())
	ctx.SetDst(img)
	ctx.SetSrc(image.Black)
	ctx.SetHinting(font.HintingFull)

	if _, err := ctx.DrawString(text, freetype.Pt(4, baseline)); err != nil {
		return fmt.Errorf("render: drawing annotation: %w", err)
	}

	return nil
}

// axisValues returns the sorted distinct coordinates along one axis.
func axisValues(slice []*sweep.Record, get func(*sweep.Record) float64) []float64 {
	seen := make(map[float64]struct{})
	for _, rec := range slice {
		seen[get(rec)] = struct{}{}
	}

	out := make([]float64, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}

	sort.Float64s(out)

	return out
}

func indexOf(values []float64) map[float64]int {
	idx := make(map[float64]int, len(values))
	for i, v := range values {
		idx[v] = i
	}

	return idx
}

// errorBounds returns the finite min and max position error in the slice.
func errorBounds(slice []*sweep.Record) (minErr, maxErr float64) {
	minErr = math.Inf(1)
	maxErr = math.Inf(-1)

	for _, rec := range slice {
		if math.IsNaN(rec.PositionErrorCm) {
			continue
		}
		if rec.PositionErrorCm < minErr {
			minErr = rec.PositionErrorCm
		}
		if rec.PositionErrorCm > maxErr {
			maxErr = rec.PositionErrorCm
		}
	}

	if math.IsInf(minErr, 1) {
		// Every point failed; bounds only feed the color scale.
		return 0, 1
	}

	return minErr, maxErr
}
