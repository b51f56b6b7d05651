// Package render draws diagnostic heatmaps of grid sweep error metrics.
// One image per z-slice: each cell is an (x, y) grid point colored by its
// position error, with failed points in a dedicated marker color.
package render

import (
	"image/color"
	"math"
)

// Theme selects a color scheme for error visualization.
type Theme string

const (
	ThemeThermal   Theme = "thermal"   // black to red to yellow to white
	ThemeGrayscale Theme = "grayscale" // black to white

	colorMapSize = 256
)

// failedColor marks grid points whose inversion failed.
var failedColor = color.RGBA{R: 0, G: 64, B: 160, A: 255}

// colorMapper maps error values onto a precomputed color gradient.
type colorMapper struct {
	colors   []color.RGBA
	min      float64
	perIndex float64
}

func newColorMapper(theme Theme, min, max float64) *colorMapper {
	if max <= min {
		max = min + 1
	}

	cm := &colorMapper{
		colors:   make([]color.RGBA, colorMapSize),
		min:      min,
		perIndex: (max - min) / float64(colorMapSize-1),
	}

	themeFn := thermal
	if theme == ThemeGrayscale {
		themeFn = grayscale
	}

	for i := range cm.colors {
		cm.colors[i] = themeFn(float64(i) / float64(colorMapSize-1))
	}

	return cm
}

// get returns the color for an error value; NaN maps to the failure marker.
func (cm *colorMapper) get(v float64) color.RGBA {
	if math.IsNaN(v) {
		return failedColor
	}

	idx := int((v - cm.min) / cm.perIndex)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(cm.colors) {
		idx = len(cm.colors) - 1
	}

	return cm.colors[idx]
}

// thermal maps [0,1] through black, red, yellow, white.
func thermal(t float64) color.RGBA {
	switch {
	case t < 1.0/3:
		return color.RGBA{R: ramp(t * 3), A: 255}
	case t < 2.0/3:
		return color.RGBA{R: 255, G: ramp((t - 1.0/3) * 3), A: 255}
	default:
		return color.RGBA{R: 255, G: 255, B: ramp((t - 2.0/3) * 3), A: 255}
	}
}

// grayscale maps [0,1] through black to white.
func grayscale(t float64) color.RGBA {
	v := ramp(t)
	return color.RGBA{R: v, G: v, B: v, A: 255}
}

func ramp(t float64) uint8 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 255
	}

	return uint8(math.Round(t * 255))
}
