package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stentech/gerberstack/pkg/observability"
)

const defaultHTTPTimeout = 2 * time.Minute

// maxErrorBody bounds how much of a failed response is quoted in the error.
const maxErrorBody = 4 << 10

// HTTPRenderer renders by posting layers to a renderer sidecar.
//
// Request body:
//
//	{"id": "<board id>", "layers": [{"filename": "top.gtl", "gerber": "..."}]}
//
// A 200 response carries a [Stackup]. Any other status is a render failure;
// a JSON body of the form {"error": "..."} is used as the diagnostic.
// Requests are never retried.
type HTTPRenderer struct {
	URL    string
	Client *http.Client
}

// NewHTTPRenderer creates a renderer posting to endpoint.
func NewHTTPRenderer(endpoint string) *HTTPRenderer {
	return &HTTPRenderer{
		URL:    endpoint,
		Client: &http.Client{Timeout: defaultHTTPTimeout},
	}
}

type httpLayer struct {
	Filename string `json:"filename"`
	Gerber   string `json:"gerber"`
}

type httpRequest struct {
	ID     string      `json:"id"`
	Layers []httpLayer `json:"layers"`
}

// Name implements the optional naming interface used by [Name].
func (r *HTTPRenderer) Name() string { return "http" }

// Render sends one request to the sidecar.
func (r *HTTPRenderer) Render(ctx context.Context, layers []Layer, opts Options) (*Stackup, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, fmt.Errorf("renderer url: %w", err)
	}

	body := httpRequest{ID: opts.BoardID, Layers: make([]httpLayer, 0, len(layers))}
	for _, l := range layers {
		var text []byte
		if l.Content != nil {
			if text, err = io.ReadAll(l.Content); err != nil {
				return nil, fmt.Errorf("read layer %s: %w", l.Filename, err)
			}
		}
		body.Layers = append(body.Layers, httpLayer{Filename: l.Filename, Gerber: string(text)})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	hooks := observability.HTTP()
	hooks.OnRequest(ctx, req.Method, u.Host, u.Path)
	start := time.Now()

	resp, err := r.client().Do(req)
	if err != nil {
		hooks.OnError(ctx, req.Method, u.Host, u.Path, err)
		return nil, fmt.Errorf("renderer request: %w", err)
	}
	defer resp.Body.Close()
	hooks.OnResponse(ctx, req.Method, u.Host, u.Path, resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	var out Stackup
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode renderer response: %w", err)
	}
	return &out, nil
}

func (r *HTTPRenderer) client() *http.Client {
	if r.Client != nil {
		return r.Client
	}
	return http.DefaultClient
}

func statusError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var msg struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &msg) == nil && msg.Error != "" {
		return fmt.Errorf("renderer returned status %d: %s", resp.StatusCode, msg.Error)
	}
	return fmt.Errorf("renderer returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}
