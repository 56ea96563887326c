package gating

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func scenarioSample() Sample {
	return Sample{
		NewRecord("FSC-A", 1, "SSC-A", 2, PopulationField, 0),
		NewRecord("FSC-A", 3, "SSC-A", 4, PopulationField, 1),
		NewRecord("FSC-A", 5, "SSC-A", 6, PopulationField, 0),
	}
}

func TestFormatScenario(t *testing.T) {
	got := Format(scenarioSample(), "FSC-A", "SSC-A")
	want := []PlotSeries{
		{PopulationID: 0, Label: "Pop 1", Xs: []float64{1, 5}, Ys: []float64{2, 6}, Color: "#3498db"},
		{PopulationID: 1, Label: "Pop 2", Xs: []float64{3}, Ys: []float64{4}, Color: "#e74c3c"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Format mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatFirstAppearanceOrder(t *testing.T) {
	ids := []int{7, 2, 7, 0, 11, 2, 0, 3}
	sample := make(Sample, len(ids))
	for i, id := range ids {
		sample[i] = NewRecord("a", i, "b", -i, PopulationField, id)
	}

	got := Format(sample, "a", "b")
	order := make([]int, len(got))
	for i, s := range got {
		order[i] = s.PopulationID
	}
	if diff := cmp.Diff([]int{7, 2, 0, 11, 3}, order); diff != "" {
		t.Fatalf("series order mismatch (-want +got):\n%s", diff)
	}

	// points stay in sample order within a series
	if diff := cmp.Diff([]float64{0, 2}, got[0].Xs); diff != "" {
		t.Fatalf("pop 7 xs mismatch (-want +got):\n%s", diff)
	}
	if got[3].Label != "Pop 12" {
		t.Fatalf("expected label Pop 12, got %q", got[3].Label)
	}
}

func TestFormatIsStableAcrossCalls(t *testing.T) {
	sample := scenarioSample()
	first := Format(sample, "FSC-A", "SSC-A")
	swapped := Format(sample, "SSC-A", "FSC-A")
	if len(first) != len(swapped) {
		t.Fatalf("series count changed: %d vs %d", len(first), len(swapped))
	}
	for i := range first {
		if first[i].Color != swapped[i].Color || first[i].PopulationID != swapped[i].PopulationID {
			t.Fatalf("series %d changed identity after axis swap", i)
		}
	}
}

func TestFormatMissingChannel(t *testing.T) {
	sample := Sample{
		NewRecord("FSC-A", 1, PopulationField, 0),
	}
	got := Format(sample, "FSC-A", "FL1-A")
	if len(got) != 1 || got[0].Len() != 1 {
		t.Fatalf("unexpected series: %+v", got)
	}
	if got[0].Xs[0] != 1 || !math.IsNaN(got[0].Ys[0]) {
		t.Fatalf("expected x=1 and y=NaN, got %v/%v", got[0].Xs[0], got[0].Ys[0])
	}

	body, err := json.Marshal(got[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ys := decoded["y"].([]any); ys[0] != nil {
		t.Fatalf("expected null y, got %v", ys[0])
	}
}

func TestFormatNonFiniteIsMissing(t *testing.T) {
	sample := Sample{
		NewRecord("FSC-A", "Infinity", "SSC-A", 2, PopulationField, 0),
		NewRecord("FSC-A", 3, "SSC-A", "-Infinity", PopulationField, 0),
		NewRecord("FSC-A", "NaN", "SSC-A", 5, PopulationField, 1),
	}
	got := Format(sample, "FSC-A", "SSC-A")
	if len(got) != 2 {
		t.Fatalf("expected 2 series, got %d", len(got))
	}
	if !math.IsNaN(got[0].Xs[0]) || got[0].Ys[0] != 2 {
		t.Errorf("expected x=NaN y=2, got %v/%v", got[0].Xs[0], got[0].Ys[0])
	}
	if got[0].Xs[1] != 3 || !math.IsNaN(got[0].Ys[1]) {
		t.Errorf("expected x=3 y=NaN, got %v/%v", got[0].Xs[1], got[0].Ys[1])
	}
	if !math.IsNaN(got[1].Xs[0]) {
		t.Errorf("expected x=NaN, got %v", got[1].Xs[0])
	}

	if _, err := json.Marshal(got); err != nil {
		t.Fatalf("series with non-finite input must encode: %v", err)
	}
}

func TestFormatUnassigned(t *testing.T) {
	sample := Sample{
		NewRecord("x", 1, "y", 1),
		NewRecord("x", 2, "y", 2, PopulationField, 0),
		NewRecord("x", 3, "y", 3, PopulationField, "n/a"),
	}
	got := Format(sample, "x", "y")
	want := []PlotSeries{
		{PopulationID: Unassigned, Label: "Unassigned", Xs: []float64{1, 3}, Ys: []float64{1, 3}, Color: "#bdc3c7"},
		{PopulationID: 0, Label: "Pop 1", Xs: []float64{2}, Ys: []float64{2}, Color: "#3498db"},
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateNaNs()); diff != "" {
		t.Fatalf("Format mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatEmpty(t *testing.T) {
	if got := Format(nil, "x", "y"); len(got) != 0 {
		t.Fatalf("expected no series, got %d", len(got))
	}
}
