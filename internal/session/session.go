// Package session holds per-operator gating state and the orchestration of
// analysis requests against the gating service.
package session

import (
	"log"
	"sync"
	"time"

	"github.com/cytobridge/client/internal/gating"
)

// Upload is the file chosen by the operator. Contents stay in memory for the
// life of the session only.
type Upload struct {
	Name string
	Data []byte
}

// Request is the immutable snapshot taken when an analysis is dispatched.
type Request struct {
	SessionID  string
	Selection  gating.Selection
	Upload     Upload
	Generation uint64
}

// Session is one operator's workspace. All methods are safe for concurrent use.
type Session struct {
	id        string
	createdAt time.Time

	mu         sync.Mutex
	selection  gating.Selection
	channels   []gating.Channel
	status     gating.Status
	upload     *Upload
	sample     gating.Sample
	series     []gating.PlotSeries
	generation uint64
	lastUsed   time.Time
}

// New creates a session with the given initial selection.
func New(id string, sel gating.Selection) *Session {
	now := time.Now()
	return &Session{
		id:        id,
		createdAt: now,
		selection: sel,
		channels:  gating.DefaultChannels(),
		status:    gating.StatusIdle,
		lastUsed:  now,
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) touch() {
	s.lastUsed = time.Now()
}

// LastUsed returns the time of the last operation on the session.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// Selection returns the current selection.
func (s *Session) Selection() gating.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// Status returns the current request status.
func (s *Session) Status() gating.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Channels returns the known channel set.
func (s *Session) Channels() []gating.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]gating.Channel, len(s.channels))
	copy(out, s.channels)
	return out
}

// Sample returns the last successful gated sample. Callers must not modify it.
func (s *Session) Sample() gating.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sample
}

// Series returns the plot series for the current sample and axes, along with
// the generation they belong to.
func (s *Session) Series() ([]gating.PlotSeries, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.series, s.generation
}

// Generation increments whenever the sample or the plotted axes change.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// UpdateSelection applies fn to the selection. Series are rebuilt when the
// axes change.
func (s *Session) UpdateSelection(fn func(gating.Selection) gating.Selection) gating.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	prev := s.selection
	s.selection = fn(prev)
	if (prev.X != s.selection.X || prev.Y != s.selection.Y) && s.sample != nil {
		s.series = gating.Format(s.sample, s.selection.X, s.selection.Y)
		s.generation++
	}
	return s.selection
}

// SetUpload replaces the chosen file and discards the previous result. It
// fails with gating.ErrAlreadyRunning while an analysis is in flight.
func (s *Session) SetUpload(u Upload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if s.status.Running() {
		return gating.ErrAlreadyRunning
	}
	s.upload = &u
	s.sample = nil
	s.series = nil
	s.status = gating.StatusIdle
	s.generation++
	log.Printf("[Session %s] file selected: %s (%d bytes)", s.id, u.Name, len(u.Data))
	return nil
}

// Begin marks the session in flight and snapshots what the request needs.
// No state changes when it fails.
func (s *Session) Begin() (Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if s.upload == nil {
		return Request{}, gating.ErrNoFileSelected
	}
	if s.status.Running() {
		return Request{}, gating.ErrAlreadyRunning
	}

	s.status = gating.StatusInFlight
	return Request{
		SessionID:  s.id,
		Selection:  s.selection,
		Upload:     *s.upload,
		Generation: s.generation,
	}, nil
}

// Apply folds an outcome into the session. Failed outcomes only change the
// status; the previous result is kept intact.
func (s *Session) Apply(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if o.Err != nil {
		s.status = gating.StatusFailed(o.Err)
		log.Printf("[Session %s] analysis failed (%s): %v", s.id, gating.KindOf(o.Err), o.Err)
		return
	}

	resp := o.Response
	if resp.AllChannels != nil {
		s.channels = append([]gating.Channel(nil), resp.AllChannels...)
	}
	s.sample = resp.GatedDataSample

	if o.Request.Selection.AutoDetect && resp.AutoDetected {
		if gating.ValidClusterCount(resp.PopulationsIdentified) {
			s.selection = s.selection.WithClusterCount(resp.PopulationsIdentified)
		} else {
			log.Printf("[Session %s] ignoring detected population count %d", s.id, resp.PopulationsIdentified)
		}
	}

	s.series = gating.Format(s.sample, s.selection.X, s.selection.Y)
	s.generation++
	s.status = gating.StatusSucceeded
	log.Printf("[Session %s] analysis succeeded: %d events, %d populations", s.id, len(s.sample), len(s.series))
}

// Export renders the current sample as CSV along with its download filename.
// ok is false when there is nothing to export.
func (s *Session) Export() (text, filename string, ok bool) {
	s.mu.Lock()
	sample, clusters := s.sample, s.selection.ClusterCount
	s.touch()
	s.mu.Unlock()

	text, ok = gating.Export(sample)
	if !ok {
		return "", "", false
	}
	if bad := gating.DelimiterUnsafe(sample); len(bad) > 0 {
		log.Printf("[Session %s] export contains %d delimiter-bearing values; CSV will not round-trip", s.id, len(bad))
	}
	return text, gating.ExportFilename(clusters), true
}

// Snapshot is a point-in-time view of a session for display.
type Snapshot struct {
	ID          string           `json:"id"`
	Selection   gating.Selection `json:"selection"`
	Channels    []gating.Channel `json:"channels"`
	Status      gating.Status    `json:"status"`
	FileName    string           `json:"file_name,omitempty"`
	Events      int              `json:"events"`
	Populations int              `json:"populations"`
	Generation  uint64           `json:"generation"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Snapshot returns the session's current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:          s.id,
		Selection:   s.selection,
		Channels:    append([]gating.Channel(nil), s.channels...),
		Status:      s.status,
		Events:      len(s.sample),
		Populations: len(s.series),
		Generation:  s.generation,
		CreatedAt:   s.createdAt,
	}
	if s.upload != nil {
		snap.FileName = s.upload.Name
	}
	return snap
}
