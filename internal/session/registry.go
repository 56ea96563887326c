package session

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/cytobridge/client/internal/gating"
	"github.com/google/uuid"
)

// RegistryConfig contains configuration for the session registry.
type RegistryConfig struct {
	DefaultSelection gating.Selection
	IdleTTL          time.Duration // sessions unused this long are evicted (0 disables)
	CleanupPeriod    time.Duration
	// OnChange, if set, is called with the session count after it changes.
	OnChange func(n int)
}

// Registry holds the live sessions of this process.
type Registry struct {
	cfg      RegistryConfig
	mu       sync.RWMutex
	sessions map[string]*Session
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.DefaultSelection == (gating.Selection{}) {
		cfg.DefaultSelection = gating.DefaultSelection()
	}
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = 5 * time.Minute
	}
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		stopCh:   make(chan struct{}),
	}
}

// Create starts a new session with the default selection.
func (r *Registry) Create() *Session {
	s := New(uuid.NewString(), r.cfg.DefaultSelection)

	r.mu.Lock()
	r.sessions[s.ID()] = s
	n := len(r.sessions)
	r.mu.Unlock()

	log.Printf("[Registry] created session %s", s.ID())
	r.changed(n)
	return s
}

// Get returns a session by id, or nil if not found.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Delete removes a session. It reports whether the session existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()

	if ok {
		r.changed(n)
	}
	return ok
}

// List returns snapshots of all sessions, oldest first.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	out := make([]Snapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Snapshot())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Start starts the idle-session cleaner.
func (r *Registry) Start() {
	if r.cfg.IdleTTL <= 0 {
		return
	}
	r.wg.Add(1)
	go r.cleaner()
}

// Stop stops the cleaner.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()
	})
}

func (r *Registry) cleaner() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.CleanupPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if n := r.EvictIdle(time.Now()); n > 0 {
				log.Printf("[Registry] evicted %d idle sessions", n)
			}
		}
	}
}

// EvictIdle removes sessions idle for longer than IdleTTL as of now. Sessions
// with an analysis in flight are kept.
func (r *Registry) EvictIdle(now time.Time) int {
	if r.cfg.IdleTTL <= 0 {
		return 0
	}

	r.mu.Lock()
	evicted := 0
	for id, s := range r.sessions {
		if s.Status().Running() {
			continue
		}
		if now.Sub(s.LastUsed()) > r.cfg.IdleTTL {
			delete(r.sessions, id)
			evicted++
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	if evicted > 0 {
		r.changed(n)
	}
	return evicted
}

func (r *Registry) changed(n int) {
	if r.cfg.OnChange != nil {
		r.cfg.OnChange(n)
	}
}
