package render

import (
	"bytes"
	"fmt"

	"github.com/cytobridge/client/internal/gating"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const htmlSymbolSize = 5

// RenderHTML renders an interactive scatter page with one legend entry per
// population. Points with a missing coordinate are skipped.
func (r *ScatterRenderer) RenderHTML(series []gating.PlotSeries, x, y gating.Channel) ([]byte, error) {
	total := 0
	for _, s := range series {
		total += s.Len()
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: Title(x, y),
			Width:     fmt.Sprintf("%dpx", r.config.Width),
			Height:    fmt.Sprintf("%dpx", r.config.Height),
		}),
		charts.WithTitleOpts(opts.Title{Title: Title(x, y), Subtitle: fmt.Sprintf("populations=%d events=%d", len(series), total)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: x, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: y, NameLocation: "middle", NameGap: 40}),
	)

	for _, s := range series {
		pts := make([]opts.ScatterData, 0, s.Len())
		for i := range s.Xs {
			if !finite(s.Xs[i]) || !finite(s.Ys[i]) {
				continue
			}
			pts = append(pts, opts.ScatterData{Value: []interface{}{s.Xs[i], s.Ys[i]}})
		}
		scatter.AddSeries(s.Label, pts,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: htmlSymbolSize}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: s.Color}),
		)
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return nil, fmt.Errorf("failed to render scatter page: %w", err)
	}
	return buf.Bytes(), nil
}
