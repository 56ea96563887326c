// Package analysis is the HTTP client for the remote gating service.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cytobridge/client/internal/gating"
)

// DefaultGatePath is the service route that runs gating on an uploaded file.
const DefaultGatePath = "/api/v1/auto-gate"

// HTTPDoer is the subset of *http.Client used by Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Params are the query parameters of a gating request.
type Params struct {
	// NPopulations is 0 to let the service estimate the count (elbow method).
	NPopulations int
	ChannelX     string
	ChannelY     string
}

// ParamsFor derives request parameters from a selection.
func ParamsFor(sel gating.Selection) Params {
	return Params{
		NPopulations: sel.RequestedPopulations(),
		ChannelX:     sel.X,
		ChannelY:     sel.Y,
	}
}

// Query encodes p as URL query values.
func (p Params) Query() url.Values {
	q := url.Values{}
	q.Set("n_populations", strconv.Itoa(p.NPopulations))
	q.Set("channel_x", p.ChannelX)
	q.Set("channel_y", p.ChannelY)
	return q
}

// Response is the JSON body returned by the service.
type Response struct {
	Error                 string        `json:"error,omitempty"`
	AllChannels           []string      `json:"all_channels,omitempty"`
	GatedDataSample       gating.Sample `json:"gated_data_sample,omitempty"`
	AutoDetected          bool          `json:"auto_detected,omitempty"`
	PopulationsIdentified int           `json:"populations_identified,omitempty"`
	Status                string        `json:"status,omitempty"`
}

// Config contains client configuration.
type Config struct {
	BaseURL  string
	GatePath string
	// Timeout bounds a whole request. Zero leaves it to the transport.
	Timeout time.Duration
}

// Client calls the gating service.
type Client struct {
	httpClient HTTPDoer
	endpoint   string
}

// NewClient creates a new client. A nil httpClient gets an *http.Client
// with cfg.Timeout.
func NewClient(cfg Config, httpClient HTTPDoer) (*Client, error) {
	if cfg.GatePath == "" {
		cfg.GatePath = DefaultGatePath
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid service base url %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid service base url %q: missing scheme or host", cfg.BaseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		httpClient: httpClient,
		endpoint:   base.String() + "/" + strings.TrimLeft(cfg.GatePath, "/"),
	}, nil
}

// Endpoint returns the gating URL without query parameters.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Gate uploads file under the multipart field "file" and returns the decoded
// response. A response carrying "error" yields *gating.BusinessError; network,
// status and decoding failures wrap gating.ErrUnreachable.
func (c *Client) Gate(ctx context.Context, filename string, file io.Reader, p Params) (*Response, error) {
	body, contentType, err := multipartBody(filename, file)
	if err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}

	u := c.endpoint + "?" + p.Query().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gating.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", gating.ErrUnreachable, err)
	}

	var out *Response
	if err := json.Unmarshal(raw, &out); err != nil {
		log.Printf("[Analysis] undecodable response (status %d, %d bytes): %v", resp.StatusCode, len(raw), err)
		return nil, fmt.Errorf("%w: decoding response: %v", gating.ErrUnreachable, err)
	}
	// A JSON null decodes without error but carries no result.
	if out == nil {
		log.Printf("[Analysis] response is not a JSON object (status %d)", resp.StatusCode)
		return nil, fmt.Errorf("%w: empty response body", gating.ErrUnreachable)
	}
	if out.Error != "" {
		return out, &gating.BusinessError{Message: out.Error}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d: %s", gating.ErrUnreachable, resp.StatusCode, truncate(raw, 200))
	}
	return out, nil
}

func multipartBody(filename string, file io.Reader) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
