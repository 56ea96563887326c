package colormap

import (
	"image/color"
	"testing"
)

func TestPopulationsPalette(t *testing.T) {
	t.Parallel()

	if Populations.Len() < 15 {
		t.Fatalf("palette too small: %d", Populations.Len())
	}

	seen := make(map[color.RGBA]bool)
	for i := 0; i < Populations.Len(); i++ {
		c := Populations.AtIndex(i)
		if seen[c] {
			t.Fatalf("duplicate color at index %d: %#v", i, c)
		}
		seen[c] = true
	}

	if got := ColorFor(0); got != "#3498db" {
		t.Fatalf("unexpected ColorFor(0): %q", got)
	}
	if got := ColorFor(1); got != "#e74c3c" {
		t.Fatalf("unexpected ColorFor(1): %q", got)
	}
}

func TestColorForWrapsAround(t *testing.T) {
	t.Parallel()

	n := Populations.Len()
	for i := 0; i < 40; i++ {
		for k := 0; k < 4; k++ {
			if ColorFor(i) != ColorFor(i+k*n) {
				t.Fatalf("ColorFor(%d) != ColorFor(%d)", i, i+k*n)
			}
		}
	}
}

func TestAtIndexNegative(t *testing.T) {
	t.Parallel()

	n := Populations.Len()
	if Populations.AtIndex(-1) != Populations.AtIndex(n-1) {
		t.Fatalf("expected -1 to wrap to last color")
	}
}

func TestParseHexRoundTrip(t *testing.T) {
	t.Parallel()

	for i := 0; i < Populations.Len(); i++ {
		hex := ColorFor(i)
		c, err := ParseHex(hex)
		if err != nil {
			t.Fatalf("ParseHex(%q): %v", hex, err)
		}
		if c != RGBAFor(i) {
			t.Fatalf("ParseHex(%q) = %#v, want %#v", hex, c, RGBAFor(i))
		}
	}

	if _, err := ParseHex("3498db"); err == nil {
		t.Fatalf("expected error for missing '#'")
	}
}
