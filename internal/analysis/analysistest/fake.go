// Package analysistest provides an in-process stand-in for the gating service.
package analysistest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// Call is one request received by the fake service.
type Call struct {
	NPopulations int
	ChannelX     string
	ChannelY     string
	Filename     string
	Content      []byte
}

// Reply is the canned answer to a call. Body is JSON-encoded unless it is a
// string, which is written verbatim.
type Reply struct {
	Status int
	Body   any
}

// Service is a fake gating service backed by httptest.Server.
type Service struct {
	*httptest.Server

	mu      sync.Mutex
	calls   []Call
	respond func(Call) Reply
	gate    chan struct{}
}

// NewService starts a fake service. Close it when done.
func NewService() *Service {
	s := &Service{}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// SetRespond sets the reply builder. The default is Success(call, 3).
func (s *Service) SetRespond(fn func(Call) Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.respond = fn
}

// Hold keeps subsequent requests in flight until release is called.
func (s *Service) Hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// Calls returns a copy of the calls received so far.
func (s *Service) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *Service) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	n, _ := strconv.Atoi(q.Get("n_populations"))
	call := Call{
		NPopulations: n,
		ChannelX:     q.Get("channel_x"),
		ChannelY:     q.Get("channel_y"),
	}

	f, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, `{"detail":"file field missing"}`, http.StatusUnprocessableEntity)
		return
	}
	call.Filename = hdr.Filename
	call.Content, _ = io.ReadAll(f)
	f.Close()

	s.mu.Lock()
	s.calls = append(s.calls, call)
	respond := s.respond
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if respond == nil {
		respond = func(c Call) Reply { return Reply{Body: Success(c, 3)} }
	}
	reply := respond(call)
	if reply.Status == 0 {
		reply.Status = http.StatusOK
	}

	if raw, ok := reply.Body.(string); ok {
		w.WriteHeader(reply.Status)
		io.WriteString(w, raw)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(reply.Status)
	json.NewEncoder(w).Encode(reply.Body)
}

// Success builds a well-formed response for c. When c asks for auto
// detection the fake reports detected populations.
func Success(c Call, detected int) map[string]any {
	k := c.NPopulations
	auto := false
	if k == 0 {
		k = detected
		auto = true
	}
	sample := make([]map[string]any, 0, 6)
	for i := 0; i < 6; i++ {
		sample = append(sample, map[string]any{
			c.ChannelX:        float64(i) * 10,
			c.ChannelY:        float64(i)*10 + 1,
			"Population_Gate": i % k,
		})
	}
	return map[string]any{
		"all_channels":           []string{"FSC-A", "SSC-A", "FL1-A", "FL2-A"},
		"gated_data_sample":      sample,
		"populations_identified": k,
		"auto_detected":          auto,
		"status":                 "Success",
	}
}
