package session

import (
	"context"
	"errors"
	"log"
	"sync"
)

// ErrQueueFull is returned by Dispatcher.Submit when no queue slot is free.
var ErrQueueFull = errors.New("analysis queue is full; try again later")

// ErrDispatcherStopped is returned by Dispatcher.Submit after Stop.
var ErrDispatcherStopped = errors.New("analysis dispatcher stopped")

// DispatcherConfig contains configuration for the dispatcher.
type DispatcherConfig struct {
	MaxConcurrent int // concurrent requests to the service (default 2)
	QueueSize     int // accepted but not yet started requests (default 32)
}

type job struct {
	session *Session
	request Request
	done    chan Outcome
}

// Dispatcher runs analyses in the background on a fixed pool of workers.
type Dispatcher struct {
	cfg   DispatcherConfig
	orch  *Orchestrator
	queue chan job
	slots chan struct{}

	mu       sync.RWMutex
	stopped  bool
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewDispatcher creates a dispatcher. Call Start before submitting.
func NewDispatcher(orch *Orchestrator, cfg DispatcherConfig) *Dispatcher {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	return &Dispatcher{
		cfg:   cfg,
		orch:  orch,
		queue: make(chan job, cfg.QueueSize),
		slots: make(chan struct{}, cfg.QueueSize),
	}
}

// Start starts the worker goroutines.
func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.MaxConcurrent; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Stop stops accepting work and waits for queued analyses to finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		close(d.queue)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		out := d.orch.Run(context.Background(), j.request)
		j.session.Apply(out)
		<-d.slots
		j.done <- out
	}
}

// Submit marks s in flight and queues its analysis. Precondition failures
// are returned immediately and leave s unchanged, as does a full queue. The
// returned channel receives the outcome once it has been applied to s.
func (d *Dispatcher) Submit(s *Session) (<-chan Outcome, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return nil, ErrDispatcherStopped
	}

	select {
	case d.slots <- struct{}{}:
	default:
		log.Printf("[Dispatcher] queue full, rejecting session %s", s.ID())
		return nil, ErrQueueFull
	}

	req, err := s.Begin()
	if err != nil {
		<-d.slots
		d.orch.rejected(s, err)
		return nil, err
	}

	done := make(chan Outcome, 1)
	d.queue <- job{session: s, request: req, done: done}
	return done, nil
}
