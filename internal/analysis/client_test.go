package analysis

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cytobridge/client/internal/analysis/analysistest"
	"github.com/cytobridge/client/internal/gating"
)

func newTestClient(t *testing.T, svc *analysistest.Service) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: svc.URL}, svc.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "http://localhost:8000/"}, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.Endpoint() != "http://localhost:8000/api/v1/auto-gate" {
		t.Errorf("unexpected endpoint %q", c.Endpoint())
	}

	if _, err := NewClient(Config{BaseURL: "localhost"}, nil); err == nil {
		t.Errorf("expected error for base url without scheme")
	}
}

func TestParamsFor(t *testing.T) {
	sel := gating.DefaultSelection().WithAutoDetect(false).WithClusterCount(7)
	p := ParamsFor(sel)
	if p.NPopulations != 7 || p.ChannelX != "FSC-A" || p.ChannelY != "SSC-A" {
		t.Fatalf("unexpected params %+v", p)
	}
	if got := p.Query().Encode(); got != "channel_x=FSC-A&channel_y=SSC-A&n_populations=7" {
		t.Fatalf("unexpected query %q", got)
	}

	if ParamsFor(sel.WithAutoDetect(true)).NPopulations != 0 {
		t.Fatalf("auto mode must send 0")
	}
}

func TestGate_Success(t *testing.T) {
	svc := analysistest.NewService()
	defer svc.Close()
	c := newTestClient(t, svc)

	resp, err := c.Gate(context.Background(), "sample.fcs", strings.NewReader("FCS3.0"), Params{
		NPopulations: 0, ChannelX: "FSC-A", ChannelY: "SSC-A",
	})
	if err != nil {
		t.Fatalf("Gate: %v", err)
	}
	if !resp.AutoDetected || resp.PopulationsIdentified != 3 {
		t.Errorf("unexpected auto fields: %+v", resp)
	}
	if len(resp.AllChannels) != 4 || len(resp.GatedDataSample) != 6 {
		t.Errorf("unexpected payload sizes: channels=%d sample=%d", len(resp.AllChannels), len(resp.GatedDataSample))
	}

	calls := svc.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Filename != "sample.fcs" || string(calls[0].Content) != "FCS3.0" {
		t.Errorf("unexpected upload: %+v", calls[0])
	}
	if calls[0].NPopulations != 0 || calls[0].ChannelX != "FSC-A" {
		t.Errorf("unexpected query: %+v", calls[0])
	}
}

func TestGate_BusinessError(t *testing.T) {
	svc := analysistest.NewService()
	defer svc.Close()
	svc.SetRespond(func(analysistest.Call) analysistest.Reply {
		return analysistest.Reply{Body: map[string]any{
			"error":        "Channels FL9-A or SSC-A not found.",
			"all_channels": []string{"FSC-A", "SSC-A"},
		}}
	})
	c := newTestClient(t, svc)

	_, err := c.Gate(context.Background(), "a.fcs", strings.NewReader("x"), Params{NPopulations: 3, ChannelX: "FL9-A", ChannelY: "SSC-A"})
	var be *gating.BusinessError
	if !errors.As(err, &be) {
		t.Fatalf("expected BusinessError, got %v", err)
	}
	if be.Message != "Channels FL9-A or SSC-A not found." {
		t.Errorf("message not verbatim: %q", be.Message)
	}
}

func TestGate_BusinessErrorWithFailureStatus(t *testing.T) {
	svc := analysistest.NewService()
	defer svc.Close()
	svc.SetRespond(func(analysistest.Call) analysistest.Reply {
		return analysistest.Reply{Status: http.StatusInternalServerError, Body: map[string]any{"error": "boom"}}
	})
	c := newTestClient(t, svc)

	_, err := c.Gate(context.Background(), "a.fcs", strings.NewReader("x"), Params{})
	if gating.KindOf(err) != gating.KindBusiness {
		t.Fatalf("expected business error, got %v", err)
	}
}

func TestGate_Unreachable(t *testing.T) {
	t.Run("nonJSON", func(t *testing.T) {
		svc := analysistest.NewService()
		defer svc.Close()
		svc.SetRespond(func(analysistest.Call) analysistest.Reply {
			return analysistest.Reply{Body: "<html>Bad Gateway</html>"}
		})
		c := newTestClient(t, svc)
		_, err := c.Gate(context.Background(), "a.fcs", strings.NewReader("x"), Params{})
		if !errors.Is(err, gating.ErrUnreachable) {
			t.Fatalf("expected ErrUnreachable, got %v", err)
		}
	})

	t.Run("statusWithoutError", func(t *testing.T) {
		svc := analysistest.NewService()
		defer svc.Close()
		svc.SetRespond(func(analysistest.Call) analysistest.Reply {
			return analysistest.Reply{Status: http.StatusUnprocessableEntity, Body: map[string]any{"detail": "bad"}}
		})
		c := newTestClient(t, svc)
		_, err := c.Gate(context.Background(), "a.fcs", strings.NewReader("x"), Params{})
		if !errors.Is(err, gating.ErrUnreachable) {
			t.Fatalf("expected ErrUnreachable, got %v", err)
		}
	})

	for name, body := range map[string]string{"nullBody": "null", "arrayBody": "[]", "numberBody": "42"} {
		t.Run(name, func(t *testing.T) {
			svc := analysistest.NewService()
			defer svc.Close()
			svc.SetRespond(func(analysistest.Call) analysistest.Reply {
				return analysistest.Reply{Body: body}
			})
			c := newTestClient(t, svc)
			resp, err := c.Gate(context.Background(), "a.fcs", strings.NewReader("x"), Params{})
			if !errors.Is(err, gating.ErrUnreachable) {
				t.Fatalf("expected ErrUnreachable for %q, got %v", body, err)
			}
			if resp != nil {
				t.Errorf("expected no response for %q, got %+v", body, resp)
			}
		})
	}

	t.Run("closedServer", func(t *testing.T) {
		svc := analysistest.NewService()
		url := svc.URL
		svc.Close()
		c, err := NewClient(Config{BaseURL: url, Timeout: 2 * time.Second}, nil)
		if err != nil {
			t.Fatalf("NewClient: %v", err)
		}
		_, err = c.Gate(context.Background(), "a.fcs", strings.NewReader("x"), Params{})
		if !errors.Is(err, gating.ErrUnreachable) {
			t.Fatalf("expected ErrUnreachable, got %v", err)
		}
	})
}

func TestGate_MissingSampleIsEmpty(t *testing.T) {
	svc := analysistest.NewService()
	defer svc.Close()
	svc.SetRespond(func(analysistest.Call) analysistest.Reply {
		return analysistest.Reply{Body: map[string]any{"status": "Success"}}
	})
	c := newTestClient(t, svc)

	resp, err := c.Gate(context.Background(), "a.fcs", strings.NewReader("x"), Params{NPopulations: 2})
	if err != nil {
		t.Fatalf("Gate: %v", err)
	}
	if len(resp.GatedDataSample) != 0 || resp.AllChannels != nil {
		t.Fatalf("expected empty result, got %+v", resp)
	}
}
