package session

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/cytobridge/client/internal/analysis"
	"github.com/cytobridge/client/internal/gating"
)

// Gater runs gating on an uploaded file. *analysis.Client implements it.
type Gater interface {
	Gate(ctx context.Context, filename string, file io.Reader, p analysis.Params) (*analysis.Response, error)
}

// Recorder observes finished analyses. *metrics.Metrics implements it.
type Recorder interface {
	ObserveAnalysis(kind gating.ErrorKind, auto bool, d time.Duration)
}

// Journal keeps a record of dispatched analyses. *history.Store implements it.
type Journal interface {
	RecordRun(o Outcome)
}

// Outcome is the result of one dispatched analysis. Exactly one of Response
// and Err is meaningful: Err is nil on success.
type Outcome struct {
	Request  Request
	Params   analysis.Params
	Response *analysis.Response
	Err      error
	Duration time.Duration
}

// Orchestrator turns a session's selection into service calls.
type Orchestrator struct {
	gater    Gater
	recorder Recorder
	journal  Journal
}

// NewOrchestrator creates an orchestrator. recorder may be nil.
func NewOrchestrator(g Gater, recorder Recorder) *Orchestrator {
	return &Orchestrator{gater: g, recorder: recorder}
}

// WithJournal makes o report every dispatched analysis to j.
func (o *Orchestrator) WithJournal(j Journal) *Orchestrator {
	o.journal = j
	return o
}

// Run performs the service call for req and returns its outcome without
// touching any session. Once dispatched the call is not cancelled by ctx;
// only the HTTP client's own timeout can end it early.
func (o *Orchestrator) Run(ctx context.Context, req Request) Outcome {
	params := analysis.ParamsFor(req.Selection)
	start := time.Now()

	resp, err := o.gater.Gate(context.WithoutCancel(ctx), req.Upload.Name, bytes.NewReader(req.Upload.Data), params)

	out := Outcome{
		Request:  req,
		Params:   params,
		Duration: time.Since(start),
	}
	switch {
	case err != nil:
		out.Err = err
	case resp == nil:
		out.Response = &analysis.Response{}
	default:
		out.Response = resp
	}

	if o.recorder != nil {
		o.recorder.ObserveAnalysis(gating.KindOf(out.Err), req.Selection.AutoDetect, out.Duration)
	}
	if o.journal != nil {
		o.journal.RecordRun(out)
	}
	return out
}

// RunAnalysis begins a request on s, runs it and applies the outcome.
// Local precondition failures (no file, already running) are returned before
// any network call and leave s unchanged.
func (o *Orchestrator) RunAnalysis(ctx context.Context, s *Session) (Outcome, error) {
	req, err := s.Begin()
	if err != nil {
		o.rejected(s, err)
		return Outcome{Err: err}, err
	}

	out := o.Run(ctx, req)
	s.Apply(out)
	return out, out.Err
}

// rejected records a request refused before dispatch.
func (o *Orchestrator) rejected(s *Session, err error) {
	if o.recorder != nil {
		o.recorder.ObserveAnalysis(gating.KindOf(err), s.Selection().AutoDetect, 0)
	}
}
