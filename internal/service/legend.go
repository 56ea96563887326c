package service

import (
	"math"

	"github.com/cytobridge/client/internal/gating"
	"gonum.org/v1/gonum/stat"
)

// LegendItem summarizes one population of the current result.
type LegendItem struct {
	PopulationID int      `json:"population_id"`
	Label        string   `json:"label"`
	Color        string   `json:"color"`
	Count        int      `json:"count"`
	Missing      int      `json:"missing"`
	Fraction     float64  `json:"fraction"`
	X            *float64 `json:"x"`
	Y            *float64 `json:"y"`
	SpreadX      *float64 `json:"spread_x"`
	SpreadY      *float64 `json:"spread_y"`
}

// ComputeLegend returns one item per series in series order. Centroids and
// spreads (sample standard deviation) are taken over points whose coordinates
// are both present; they are nil when no such point exists.
func ComputeLegend(series []gating.PlotSeries) []LegendItem {
	total := 0
	for _, s := range series {
		total += s.Len()
	}

	legend := make([]LegendItem, len(series))
	for i, s := range series {
		xs := make([]float64, 0, s.Len())
		ys := make([]float64, 0, s.Len())
		for j := range s.Xs {
			if math.IsNaN(s.Xs[j]) || math.IsNaN(s.Ys[j]) {
				continue
			}
			xs = append(xs, s.Xs[j])
			ys = append(ys, s.Ys[j])
		}

		item := LegendItem{
			PopulationID: s.PopulationID,
			Label:        s.Label,
			Color:        s.Color,
			Count:        s.Len(),
			Missing:      s.Len() - len(xs),
		}
		if total > 0 {
			item.Fraction = float64(s.Len()) / float64(total)
		}
		if len(xs) > 0 {
			mx, sx := stat.MeanStdDev(xs, nil)
			my, sy := stat.MeanStdDev(ys, nil)
			item.X, item.Y = &mx, &my
			if len(xs) > 1 {
				item.SpreadX, item.SpreadY = &sx, &sy
			}
		}
		legend[i] = item
	}
	return legend
}
