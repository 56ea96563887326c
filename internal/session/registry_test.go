package session

import (
	"testing"
	"time"

	"github.com/cytobridge/client/internal/gating"
)

func TestRegistryLifecycle(t *testing.T) {
	var counts []int
	reg := NewRegistry(RegistryConfig{OnChange: func(n int) { counts = append(counts, n) }})

	a := reg.Create()
	b := reg.Create()
	if a.ID() == b.ID() {
		t.Fatalf("expected distinct ids")
	}
	if reg.Get(a.ID()) != a {
		t.Fatalf("Get returned wrong session")
	}
	if a.Selection() != gating.DefaultSelection() {
		t.Fatalf("unexpected default selection %+v", a.Selection())
	}

	list := reg.List()
	if len(list) != 2 || list[0].ID != a.ID() {
		t.Fatalf("unexpected list %+v", list)
	}

	if !reg.Delete(a.ID()) || reg.Delete(a.ID()) {
		t.Fatalf("unexpected delete results")
	}
	if reg.Get(a.ID()) != nil {
		t.Fatalf("session still present after delete")
	}
	if len(counts) != 3 || counts[2] != 1 {
		t.Fatalf("unexpected change notifications %v", counts)
	}
}

func TestRegistryIndependentSessions(t *testing.T) {
	reg := NewRegistry(RegistryConfig{})
	a, b := reg.Create(), reg.Create()

	a.UpdateSelection(func(s gating.Selection) gating.Selection { return s.WithAutoDetect(false).WithClusterCount(11) })
	if b.Selection().ClusterCount != gating.DefaultClusters {
		t.Fatalf("sessions share selection state")
	}
}

func TestRegistryEvictIdle(t *testing.T) {
	reg := NewRegistry(RegistryConfig{IdleTTL: time.Minute})
	idle := reg.Create()
	busy := reg.Create()
	if err := busy.SetUpload(Upload{Name: "a.fcs"}); err != nil {
		t.Fatalf("SetUpload: %v", err)
	}
	if _, err := busy.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if n := reg.EvictIdle(time.Now()); n != 0 {
		t.Fatalf("evicted fresh sessions: %d", n)
	}
	if n := reg.EvictIdle(time.Now().Add(2 * time.Minute)); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if reg.Get(idle.ID()) != nil || reg.Get(busy.ID()) == nil {
		t.Fatalf("wrong session evicted")
	}
}

func TestRegistryStartStop(t *testing.T) {
	reg := NewRegistry(RegistryConfig{IdleTTL: time.Minute, CleanupPeriod: time.Millisecond})
	reg.Start()
	reg.Stop()
	reg.Stop()
}
