// Package colormap provides color schemes for population plots.
package colormap

import (
	"fmt"
	"image/color"
)

// CategoricalColormap provides distinct colors for categories.
type CategoricalColormap struct {
	colors []color.RGBA
}

// Len returns the palette size.
func (c CategoricalColormap) Len() int {
	return len(c.colors)
}

// AtIndex returns color at index i (wraps around, negative indices included).
func (c CategoricalColormap) AtIndex(i int) color.RGBA {
	n := len(c.colors)
	idx := i % n
	if idx < 0 {
		idx += n
	}
	return c.colors[idx]
}

// HexAt returns the color at index i as "#rrggbb".
func (c CategoricalColormap) HexAt(i int) string {
	return Hex(c.AtIndex(i))
}

// Hex formats an RGBA color as "#rrggbb". Alpha is ignored.
func Hex(c color.RGBA) string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Populations is the fixed 15-color palette used for gated populations.
// Order matters: population i is drawn with Populations.AtIndex(i).
var Populations = CategoricalColormap{
	colors: []color.RGBA{
		{0x34, 0x98, 0xdb, 255}, // Blue
		{0xe7, 0x4c, 0x3c, 255}, // Red
		{0x2e, 0xcc, 0x71, 255}, // Green
		{0xf1, 0xc4, 0x0f, 255}, // Yellow
		{0x9b, 0x59, 0xb6, 255}, // Purple
		{0x1a, 0xbc, 0x9c, 255}, // Teal
		{0xe6, 0x7e, 0x22, 255}, // Orange
		{0x34, 0x49, 0x5e, 255}, // Navy
		{0xe8, 0x43, 0x93, 255}, // Pink
		{0x00, 0xce, 0xc9, 255}, // Cyan
		{0xfd, 0xcb, 0x6e, 255}, // Sand
		{0x6c, 0x5c, 0xe7, 255}, // Indigo
		{0xff, 0x76, 0x75, 255}, // Salmon
		{0xa2, 0x9b, 0xfe, 255}, // Lavender
		{0xff, 0xea, 0xa7, 255}, // Cream
	},
}

// Unassigned is the color for events without a population label.
var Unassigned = color.RGBA{0xbd, 0xc3, 0xc7, 255}

// ColorFor returns the display color of a population id.
// It is a pure function of id mod Populations.Len().
func ColorFor(populationID int) string {
	return Populations.HexAt(populationID)
}

// RGBAFor is ColorFor for raster renderers.
func RGBAFor(populationID int) color.RGBA {
	return Populations.AtIndex(populationID)
}

// ParseHex parses "#rrggbb" into an opaque color.
func ParseHex(s string) (color.RGBA, error) {
	var c color.RGBA
	if len(s) != 7 || s[0] != '#' {
		return c, fmt.Errorf("invalid hex color %q", s)
	}
	if _, err := fmt.Sscanf(s[1:], "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return c, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	c.A = 255
	return c, nil
}
