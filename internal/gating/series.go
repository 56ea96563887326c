package gating

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/cytobridge/client/pkg/colormap"
)

// Unassigned is the reserved population id for records without a usable
// Population_Gate value.
const Unassigned = -1

// PlotSeries is one population's scatter trace. Missing coordinates are NaN.
type PlotSeries struct {
	PopulationID int
	Label        string
	Xs           []float64
	Ys           []float64
	Color        string
}

// Len returns the number of points in the series.
func (s PlotSeries) Len() int {
	return len(s.Xs)
}

// MarshalJSON encodes NaN coordinates as null.
func (s PlotSeries) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		PopulationID int        `json:"population_id"`
		Label        string     `json:"label"`
		Xs           []*float64 `json:"x"`
		Ys           []*float64 `json:"y"`
		Color        string     `json:"color"`
	}{
		PopulationID: s.PopulationID,
		Label:        s.Label,
		Xs:           nullable(s.Xs),
		Ys:           nullable(s.Ys),
		Color:        s.Color,
	})
}

func nullable(vs []float64) []*float64 {
	out := make([]*float64, len(vs))
	for i := range vs {
		if !math.IsNaN(vs[i]) {
			out[i] = &vs[i]
		}
	}
	return out
}

// PopulationLabel returns the 1-based display label of a population.
func PopulationLabel(id int) string {
	if id == Unassigned {
		return "Unassigned"
	}
	return "Pop " + strconv.Itoa(id+1)
}

// PopulationColor returns the display color of a population.
func PopulationColor(id int) string {
	if id == Unassigned {
		return colormap.Hex(colormap.Unassigned)
	}
	return colormap.ColorFor(id)
}

// Format groups sample by population into plot series using x and y as axes.
// Series appear in order of first appearance in sample; points keep sample
// order. A channel missing from a record yields a NaN coordinate.
func Format(sample Sample, x, y Channel) []PlotSeries {
	series := make([]PlotSeries, 0, 8)
	index := make(map[int]int)

	for _, rec := range sample {
		pop, ok := rec.Population()
		if !ok {
			pop = Unassigned
		}

		i, seen := index[pop]
		if !seen {
			i = len(series)
			index[pop] = i
			series = append(series, PlotSeries{
				PopulationID: pop,
				Label:        PopulationLabel(pop),
				Color:        PopulationColor(pop),
			})
		}

		series[i].Xs = append(series[i].Xs, coord(rec, x))
		series[i].Ys = append(series[i].Ys, coord(rec, y))
	}
	return series
}

func coord(rec CellRecord, ch Channel) float64 {
	v, ok := rec.Float(ch)
	if !ok {
		return math.NaN()
	}
	return v
}
