package history

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/cytobridge/client/internal/analysis"
	"github.com/cytobridge/client/internal/gating"
	"github.com/cytobridge/client/internal/session"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "history", "runs.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunFromOutcome_Success(t *testing.T) {
	sel := gating.DefaultSelection()
	out := session.Outcome{
		Request: session.Request{
			SessionID: "s1",
			Selection: sel,
			Upload:    session.Upload{Name: "sample.fcs"},
		},
		Params: analysis.ParamsFor(sel),
		Response: &analysis.Response{
			GatedDataSample: gating.Sample{
				gating.NewRecord("FSC-A", 1.0, gating.PopulationField, 0),
				gating.NewRecord("FSC-A", 2.0, gating.PopulationField, 1),
				gating.NewRecord("FSC-A", 3.0, gating.PopulationField, 1),
				gating.NewRecord("FSC-A", 4.0),
			},
			AutoDetected:          true,
			PopulationsIdentified: 2,
		},
		Duration: 1500 * time.Millisecond,
	}

	got := RunFromOutcome(out)
	want := &Run{
		SessionID:    "s1",
		FileName:     "sample.fcs",
		ChannelX:     "FSC-A",
		ChannelY:     "SSC-A",
		AutoDetect:   true,
		NPopulations: 0,
		Outcome:      OutcomeSucceeded,
		Events:       4,
		Populations:  3,
		Detected:     2,
		DurationMS:   1500,
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Run{}, "ID", "FinishedAt")); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}
	if got.ID == "" {
		t.Errorf("expected a run id")
	}
}

func TestRunFromOutcome_Failure(t *testing.T) {
	sel := gating.DefaultSelection().WithAutoDetect(false)
	out := session.Outcome{
		Request: session.Request{SessionID: "s1", Selection: sel},
		Params:  analysis.ParamsFor(sel),
		Err:     &gating.BusinessError{Message: "Channel 'FSC-A' not found"},
	}

	got := RunFromOutcome(out)
	if got.Outcome != OutcomeFailed || got.ErrorKind != "business_error" {
		t.Fatalf("unexpected outcome %q kind %q", got.Outcome, got.ErrorKind)
	}
	if got.Error != "Channel 'FSC-A' not found" {
		t.Errorf("message not kept verbatim: %q", got.Error)
	}
	if got.NPopulations != gating.DefaultClusters {
		t.Errorf("expected manual count %d, got %d", gating.DefaultClusters, got.NPopulations)
	}

	unreachable := RunFromOutcome(session.Outcome{Err: fmt.Errorf("dial: %w", gating.ErrUnreachable)})
	if unreachable.ErrorKind != "unreachable" || unreachable.Error != gating.ErrUnreachable.Error() {
		t.Errorf("unexpected unreachable run %+v", unreachable)
	}
}

func TestStore_InsertListGet(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, sid := range []string{"a", "b", "a"} {
		run := &Run{
			ID:         fmt.Sprintf("run-%d", i),
			SessionID:  sid,
			ChannelX:   "FSC-A",
			ChannelY:   "SSC-A",
			AutoDetect: i%2 == 0,
			Outcome:    OutcomeSucceeded,
			Events:     10 * (i + 1),
			FinishedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.Insert(run); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	all, err := s.List("", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	var ids []string
	for _, r := range all {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"run-2", "run-1", "run-0"}, ids); diff != "" {
		t.Errorf("unexpected order (-want +got):\n%s", diff)
	}

	forA, err := s.List("a", 1)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(forA) != 1 || forA[0].ID != "run-2" {
		t.Fatalf("expected newest run of session a, got %+v", forA)
	}

	got, err := s.Get("run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.SessionID != "b" || got.Events != 20 || got.AutoDetect {
		t.Fatalf("unexpected run %+v", got)
	}
	if !got.FinishedAt.Equal(base.Add(time.Second)) {
		t.Errorf("timestamp not preserved: %v", got.FinishedAt)
	}

	missing, err := s.Get("nope")
	if err != nil || missing != nil {
		t.Errorf("expected nil for unknown run, got %+v, %v", missing, err)
	}
}

func TestStore_RecordRunAndExpire(t *testing.T) {
	s := newTestStore(t)

	old := &Run{ID: "old", SessionID: "s", Outcome: OutcomeFailed, FinishedAt: time.Now().AddDate(0, 0, -40)}
	if err := s.Insert(old); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	s.RecordRun(session.Outcome{
		Request: session.Request{SessionID: "s", Selection: gating.DefaultSelection()},
		Err:     gating.ErrUnreachable,
	})

	n, err := s.DeleteExpired(30)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired run, got %d", n)
	}

	runs, err := s.List("s", 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 1 || runs[0].Outcome != OutcomeFailed || runs[0].ErrorKind != "unreachable" {
		t.Fatalf("unexpected remaining runs %+v", runs)
	}
}
