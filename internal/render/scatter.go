// Package render draws gated populations as scatter plots using fogleman/gg
// (PNG) and go-echarts (interactive HTML).
package render

import (
	"bytes"
	"fmt"
	"image/color"
	"image/png"
	"math"
	"sync"

	"github.com/cytobridge/client/internal/gating"
	"github.com/cytobridge/client/pkg/colormap"
	"github.com/fogleman/gg"
)

const (
	marginLeft   = 64.0
	marginRight  = 150.0
	marginTop    = 40.0
	marginBottom = 48.0
)

// Config contains renderer configuration.
type Config struct {
	Width     int
	Height    int
	PointSize float64
	Opacity   float64
}

// Title returns the plot title for an axis pair.
func Title(x, y gating.Channel) string {
	return fmt.Sprintf("Clustering: %s vs %s", x, y)
}

// Bounds is the finite data extent of a set of series.
type Bounds struct {
	MinX, MaxX float64
	MinY, MaxY float64
}

// DataBounds returns the extent over all finite points. Degenerate ranges are
// widened so the scale is always defined.
func DataBounds(series []gating.PlotSeries) (Bounds, bool) {
	b := Bounds{MinX: math.Inf(1), MaxX: math.Inf(-1), MinY: math.Inf(1), MaxY: math.Inf(-1)}
	found := false
	for _, s := range series {
		for i := range s.Xs {
			x, y := s.Xs[i], s.Ys[i]
			if !finite(x) || !finite(y) {
				continue
			}
			found = true
			b.MinX = math.Min(b.MinX, x)
			b.MaxX = math.Max(b.MaxX, x)
			b.MinY = math.Min(b.MinY, y)
			b.MaxY = math.Max(b.MaxY, y)
		}
	}
	if !found {
		return Bounds{0, 1, 0, 1}, false
	}
	if b.MaxX == b.MinX {
		b.MinX, b.MaxX = b.MinX-0.5, b.MaxX+0.5
	}
	if b.MaxY == b.MinY {
		b.MinY, b.MaxY = b.MinY-0.5, b.MaxY+0.5
	}
	return b, true
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ScatterRenderer renders PNG scatter plots.
type ScatterRenderer struct {
	config      Config
	contextPool sync.Pool
	bufferPool  sync.Pool
}

// NewScatterRenderer creates a new scatter renderer.
func NewScatterRenderer(cfg Config) *ScatterRenderer {
	if cfg.Width <= 0 {
		cfg.Width = 800
	}
	if cfg.Height <= 0 {
		cfg.Height = 600
	}
	if cfg.PointSize <= 0 {
		cfg.PointSize = 2
	}
	if cfg.Opacity <= 0 || cfg.Opacity > 1 {
		cfg.Opacity = 0.7
	}

	return &ScatterRenderer{
		config: cfg,
		contextPool: sync.Pool{
			New: func() interface{} {
				return gg.NewContext(cfg.Width, cfg.Height)
			},
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 64*1024))
			},
		},
	}
}

// Config returns the effective renderer configuration.
func (r *ScatterRenderer) Config() Config {
	return r.config
}

// RenderPNG draws every series in order, so later populations paint over
// earlier ones. Points with a missing coordinate are skipped.
func (r *ScatterRenderer) RenderPNG(series []gating.PlotSeries, x, y gating.Channel) ([]byte, error) {
	dc := r.contextPool.Get().(*gg.Context)
	defer r.contextPool.Put(dc)

	dc.SetColor(color.White)
	dc.Clear()

	w, h := float64(r.config.Width), float64(r.config.Height)
	plotW := w - marginLeft - marginRight
	plotH := h - marginTop - marginBottom

	b, _ := DataBounds(series)
	px := func(v float64) float64 { return marginLeft + (v-b.MinX)/(b.MaxX-b.MinX)*plotW }
	py := func(v float64) float64 { return marginTop + plotH - (v-b.MinY)/(b.MaxY-b.MinY)*plotH }

	r.drawFrame(dc, b, x, y, plotW, plotH)

	for _, s := range series {
		c := seriesColor(s)
		dc.SetRGBA255(int(c.R), int(c.G), int(c.B), int(r.config.Opacity*255))
		for i := range s.Xs {
			if !finite(s.Xs[i]) || !finite(s.Ys[i]) {
				continue
			}
			dc.DrawCircle(px(s.Xs[i]), py(s.Ys[i]), r.config.PointSize)
			dc.Fill()
		}
	}

	r.drawLegend(dc, series, w-marginRight+12)

	return r.encodeContext(dc)
}

func (r *ScatterRenderer) drawFrame(dc *gg.Context, b Bounds, x, y gating.Channel, plotW, plotH float64) {
	dc.SetRGB(0.2, 0.2, 0.2)
	dc.DrawStringAnchored(Title(x, y), marginLeft+plotW/2, marginTop/2, 0.5, 0.5)

	dc.SetLineWidth(1)
	dc.DrawRectangle(marginLeft, marginTop, plotW, plotH)
	dc.Stroke()

	bottom := marginTop + plotH
	dc.DrawStringAnchored(x, marginLeft+plotW/2, bottom+32, 0.5, 0.5)
	dc.DrawStringAnchored(formatTick(b.MinX), marginLeft, bottom+14, 0, 0.5)
	dc.DrawStringAnchored(formatTick(b.MaxX), marginLeft+plotW, bottom+14, 1, 0.5)

	dc.DrawStringAnchored(formatTick(b.MaxY), marginLeft-6, marginTop, 1, 0.5)
	dc.DrawStringAnchored(formatTick(b.MinY), marginLeft-6, bottom, 1, 0.5)

	dc.Push()
	dc.RotateAbout(-math.Pi/2, 14, marginTop+plotH/2)
	dc.DrawStringAnchored(y, 14, marginTop+plotH/2, 0.5, 0.5)
	dc.Pop()
}

func (r *ScatterRenderer) drawLegend(dc *gg.Context, series []gating.PlotSeries, left float64) {
	top := marginTop + 8
	for i, s := range series {
		c := seriesColor(s)
		cy := top + float64(i)*18
		dc.SetRGB255(int(c.R), int(c.G), int(c.B))
		dc.DrawCircle(left+5, cy, 5)
		dc.Fill()
		dc.SetRGB(0.2, 0.2, 0.2)
		dc.DrawStringAnchored(fmt.Sprintf("%s (%d)", s.Label, s.Len()), left+16, cy, 0, 0.5)
	}
}

func seriesColor(s gating.PlotSeries) color.RGBA {
	c, err := colormap.ParseHex(s.Color)
	if err != nil {
		return colormap.Unassigned
	}
	return c
}

func formatTick(v float64) string {
	if math.Abs(v) >= 1e5 || (v != 0 && math.Abs(v) < 1e-2) {
		return fmt.Sprintf("%.2e", v)
	}
	return fmt.Sprintf("%.4g", v)
}

func (r *ScatterRenderer) encodeContext(dc *gg.Context) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, dc.Image()); err != nil {
		return nil, err
	}

	// Copy buffer contents (buffer will be reused)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}
