package gating

import "fmt"

// Bounds of the manual population count.
const (
	MinClusters = 1
	MaxClusters = 15
)

// DefaultClusters is the manual population count before the operator moves it.
const DefaultClusters = 3

// Selection is the operator's analysis configuration. It is a value type:
// the With* methods return an updated copy.
type Selection struct {
	X            Channel `json:"x"`
	Y            Channel `json:"y"`
	ClusterCount int     `json:"clusters"`
	AutoDetect   bool    `json:"auto_detect"`
}

// DefaultSelection returns FSC-A vs SSC-A, 3 populations, auto-detect on.
func DefaultSelection() Selection {
	return Selection{
		X:            DefaultX,
		Y:            DefaultY,
		ClusterCount: DefaultClusters,
		AutoDetect:   true,
	}
}

// ValidClusterCount reports whether n is an accepted manual population count.
func ValidClusterCount(n int) bool {
	return n >= MinClusters && n <= MaxClusters
}

// WithX returns s with the x axis set to c.
func (s Selection) WithX(c Channel) Selection {
	s.X = c
	return s
}

// WithY returns s with the y axis set to c.
func (s Selection) WithY(c Channel) Selection {
	s.Y = c
	return s
}

// WithClusterCount returns s with the manual count set to n.
// n outside [MinClusters, MaxClusters] is a caller bug and panics.
func (s Selection) WithClusterCount(n int) Selection {
	if !ValidClusterCount(n) {
		panic(fmt.Sprintf("gating: cluster count %d outside [%d,%d]", n, MinClusters, MaxClusters))
	}
	s.ClusterCount = n
	return s
}

// WithAutoDetect returns s with auto-detection toggled. ClusterCount is kept
// so it can be reused when auto mode is switched off again.
func (s Selection) WithAutoDetect(on bool) Selection {
	s.AutoDetect = on
	return s
}

// RequestedPopulations is the n_populations value sent to the service:
// 0 asks the service to estimate the count itself.
func (s Selection) RequestedPopulations() int {
	if s.AutoDetect {
		return 0
	}
	return s.ClusterCount
}
